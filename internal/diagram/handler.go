package diagram

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lackhoa/fractal-sky/internal/auth"
	"github.com/lackhoa/fractal-sky/internal/typeid"
)

// maxBodyBytes bounds uploaded documents.
const maxBodyBytes = 4 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Name     string          `json:"name"`
	Template string          `json:"template"`
	Content  json.RawMessage `json:"content"`
}

type updateRequest struct {
	Name    string          `json:"name"`
	Content json.RawMessage `json:"content"`
	Version int             `json:"version"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	d, err := h.service.Create(r.Context(), userID, req.Name, req.Template, req.Content)
	if err != nil {
		HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	diagramID, ok := DiagramID(w, r)
	if !ok {
		return
	}

	d, err := h.service.Get(r.Context(), diagramID, userID)
	if err != nil {
		HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	diagrams, err := h.service.List(r.Context(), userID)
	if err != nil {
		slog.Error("list diagrams failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, diagrams)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	diagramID, ok := DiagramID(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	d, err := h.service.Update(r.Context(), diagramID, userID, strings.TrimSpace(req.Name), req.Content, req.Version)
	if err != nil {
		HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	diagramID, ok := DiagramID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), diagramID, userID); err != nil {
		HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DiagramID reads and validates the {diagramId} route variable, answering
// 400 itself when it is malformed.
func DiagramID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["diagramId"]
	if err := typeid.Validate(id, typeid.PrefixDiagram); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid diagram id"})
		return "", false
	}
	return id, true
}

// HandleError maps service errors to HTTP responses.
func HandleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, ErrStale):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "diagram was modified, reload and retry"})
	case errors.Is(err, ErrInvalidDocument), errors.Is(err, ErrUnknownTemplate):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		slog.Error("service error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
