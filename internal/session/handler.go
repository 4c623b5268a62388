package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/lackhoa/fractal-sky/internal/auth"
	"github.com/lackhoa/fractal-sky/internal/diagram"
	"github.com/lackhoa/fractal-sky/internal/editor"
	"github.com/lackhoa/fractal-sky/internal/history"
	"github.com/lackhoa/fractal-sky/internal/typeid"
)

// Tracker is told when sessions open and close.
type Tracker interface {
	SessionOpened()
	SessionClosed()
}

type Handler struct {
	diagrams *diagram.Service
	editor   editor.Config
	origins  []string
	tracker  Tracker
	observer history.Observer
}

// NewHandler serves editing sessions for diagrams. origins are the allowed
// browser origins (scheme and host, or "*"); tracker and observer may be nil.
func NewHandler(diagrams *diagram.Service, cfg editor.Config, origins []string, tracker Tracker, observer history.Observer) *Handler {
	return &Handler{
		diagrams: diagrams,
		editor:   cfg,
		origins:  originPatterns(origins),
		tracker:  tracker,
		observer: observer,
	}
}

// originPatterns turns "http://localhost:5173" into the host pattern the
// websocket library matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if strings.Contains(o, "://") {
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				o = u.Host
			}
		}
		out = append(out, o)
	}
	return out
}

// ServeWS upgrades GET /ws/diagram/{diagramId}. The caller must already be
// authenticated.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	diagramID, ok := diagram.DiagramID(w, r)
	if !ok {
		return
	}

	d, err := h.diagrams.Get(r.Context(), diagramID, userID)
	if err != nil {
		diagram.HandleError(w, err)
		return
	}

	s, err := New(Config{
		ID:        typeid.NewSessionID(),
		UserID:    userID,
		DiagramID: diagramID,
		Version:   d.Version,
		Content:   d.Content,
		Editor:    h.editor,
		Save: func(ctx context.Context, content []byte, version int) (int, error) {
			updated, err := h.diagrams.Update(ctx, diagramID, userID, "", content, version)
			if err != nil {
				return 0, err
			}
			return updated.Version, nil
		},
		Observer: h.observer,
	})
	if err != nil {
		slog.Error("open session", "diagram", diagramID, "error", err)
		http.Error(w, "diagram could not be opened", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	if h.tracker != nil {
		h.tracker.SessionOpened()
		defer h.tracker.SessionClosed()
	}
	slog.Info("session opened", "session", s.id, "diagram", diagramID, "user", userID)
	s.Run(r.Context(), conn)
	slog.Info("session closed", "session", s.id, "diagram", diagramID)
}
