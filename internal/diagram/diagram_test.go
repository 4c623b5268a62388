package diagram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/lackhoa/fractal-sky/internal/auth"
	"github.com/lackhoa/fractal-sky/internal/blob"
	"github.com/lackhoa/fractal-sky/internal/document"
	"github.com/lackhoa/fractal-sky/internal/editor"
	"github.com/lackhoa/fractal-sky/internal/store"
	"github.com/lackhoa/fractal-sky/internal/typeid"
)

func newTestService() (*Service, *blob.Memory) {
	blobs := blob.NewMemory()
	return NewService(store.NewMemory(), blobs, editor.DefaultConfig()), blobs
}

func TestCreateFromTemplate(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	d, err := s.Create(ctx, "user_a", "sierpinski", TemplateSample, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := typeid.Validate(d.ID, typeid.PrefixDiagram); err != nil {
		t.Fatalf("bad id: %v", err)
	}
	got, err := s.Get(ctx, d.ID, "user_a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	records, err := document.Decode(got.Content)
	if err != nil {
		t.Fatalf("decode stored content: %v", err)
	}
	if shapes, frames := document.Counts(records); shapes != 1 || frames != 3 {
		t.Fatalf("expected 1 shape and 3 frames, got %d and %d", shapes, frames)
	}

	if _, err := s.Create(ctx, "user_a", "x", "mandelbrot", nil); !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestCreateRejectsInvalidContent(t *testing.T) {
	s, _ := newTestService()
	for _, content := range []string{`{"not":"an array"}`, `[{"type":"frame","xform":[1,2]}]`, `[{"type":"ghost"}]`} {
		if _, err := s.Create(context.Background(), "user_a", "x", "", json.RawMessage(content)); !errors.Is(err, ErrInvalidDocument) {
			t.Fatalf("%s: expected ErrInvalidDocument, got %v", content, err)
		}
	}
}

func TestOwnershipAndVersions(t *testing.T) {
	s, blobs := newTestService()
	ctx := context.Background()
	d, err := s.Create(ctx, "user_a", "mine", TemplateBlank, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.Get(ctx, d.ID, "user_b"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := s.Delete(ctx, d.ID, "user_b"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on delete, got %v", err)
	}
	if _, err := s.Get(ctx, typeid.NewDiagramID(), "user_a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	updated, err := s.Update(ctx, d.ID, "user_a", "", json.RawMessage(`[{"type":"frame","xform":[0.5,0,0,0.5,10,20]}]`), 1)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || updated.Name != "mine" {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, err := s.Update(ctx, d.ID, "user_a", "again", nil, 1); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}

	if _, err := blobs.Put(ctx, ExportPrefix(d.ID)+"v2-d1.svg", strings.NewReader("<svg/>"), "image/svg+xml"); err != nil {
		t.Fatalf("seed export: %v", err)
	}
	if err := s.Delete(ctx, d.ID, "user_a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if list, _ := blobs.List(ctx, ExportPrefix(d.ID)); len(list) != 0 {
		t.Fatalf("expected cached exports to be purged, got %d", len(list))
	}
	if list, _ := s.List(ctx, "user_a"); len(list) != 0 {
		t.Fatalf("expected no diagrams, got %d", len(list))
	}
}

func TestCanonicalizeNormalizesFrames(t *testing.T) {
	s, _ := newTestService()
	out, err := s.Canonicalize([]byte(`[{"type":"frame","xform":[0.5,0,0,0.5,10,20]},{"type":"shape","tag":"rect","width":1,"height":1}]`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	records, err := document.Decode(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 2 || records[0].Type != document.TypeShape || records[1].Type != document.TypeFrame {
		t.Fatalf("expected shape then frame, got %+v", records)
	}
	if x := *records[1].Xform; x[0] != 0.5 || x[4] != 10 || x[5] != 20 {
		t.Fatalf("frame transform changed: %v", x)
	}
}

func newRouter(h *Handler, userID string) *mux.Router {
	r := mux.NewRouter()
	withUser := func(fn http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			fn(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
		}
	}
	r.HandleFunc("/api/diagrams", withUser(h.List)).Methods("GET")
	r.HandleFunc("/api/diagrams", withUser(h.Create)).Methods("POST")
	r.HandleFunc("/api/diagrams/{diagramId}", withUser(h.Get)).Methods("GET")
	r.HandleFunc("/api/diagrams/{diagramId}", withUser(h.Update)).Methods("PUT")
	r.HandleFunc("/api/diagrams/{diagramId}", withUser(h.Delete)).Methods("DELETE")
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerLifecycle(t *testing.T) {
	s, _ := newTestService()
	h := NewHandler(s)
	owner := newRouter(h, "user_a")
	stranger := newRouter(h, "user_b")

	if rec := do(owner, "POST", "/api/diagrams", `{"name":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name: status %d", rec.Code)
	}
	if rec := do(owner, "POST", "/api/diagrams", `{"name":"x","content":[{"type":"frame","xform":"nope"}]}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad content: status %d", rec.Code)
	}

	rec := do(owner, "POST", "/api/diagrams", `{"name":"tri","template":"sample"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d %s", rec.Code, rec.Body.String())
	}
	var created Diagram
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	path := "/api/diagrams/" + created.ID

	if rec := do(owner, "GET", "/api/diagrams/not-an-id", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed id: status %d", rec.Code)
	}
	if rec := do(stranger, "GET", path, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("stranger get: status %d", rec.Code)
	}

	rec = do(owner, "GET", path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	var got WithContent
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "tri" || len(got.Content) == 0 {
		t.Fatalf("unexpected diagram %+v", got)
	}

	if rec := do(owner, "PUT", path, `{"name":"renamed","version":1}`); rec.Code != http.StatusOK {
		t.Fatalf("update: status %d", rec.Code)
	}
	if rec := do(owner, "PUT", path, `{"name":"again","version":1}`); rec.Code != http.StatusConflict {
		t.Fatalf("stale update: status %d", rec.Code)
	}

	rec = do(owner, "GET", "/api/diagrams", "")
	var list []Diagram
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil || len(list) != 1 || list[0].Name != "renamed" {
		t.Fatalf("list: %v %+v", err, list)
	}

	if rec := do(owner, "DELETE", path, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	if rec := do(owner, "GET", path, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d", rec.Code)
	}
}
