package export

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/lackhoa/fractal-sky/internal/auth"
	"github.com/lackhoa/fractal-sky/internal/blob"
	"github.com/lackhoa/fractal-sky/internal/diagram"
	"github.com/lackhoa/fractal-sky/internal/document"
	"github.com/lackhoa/fractal-sky/internal/editor"
	"github.com/lackhoa/fractal-sky/internal/store"
)

type countingObserver struct{ hits, misses int }

func (c *countingObserver) ExportServed(cached bool) {
	if cached {
		c.hits++
	} else {
		c.misses++
	}
}

func setup(t *testing.T) (http.Handler, *blob.Memory, *countingObserver, string) {
	t.Helper()
	blobs := blob.NewMemory()
	cfg := editor.DefaultConfig()
	diagrams := diagram.NewService(store.NewMemory(), blobs, cfg)
	d, err := diagrams.Create(context.Background(), "user_a", "Sierpinski triangle", diagram.TemplateSample, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	obs := &countingObserver{}
	h := NewHandler(diagrams, blobs, cfg, 2, 3, obs)

	r := mux.NewRouter()
	r.HandleFunc("/api/diagrams/{diagramId}/export.svg", func(w http.ResponseWriter, r *http.Request) {
		h.ExportSVG(w, r.WithContext(auth.WithUserID(r.Context(), "user_a")))
	})
	return r, blobs, obs, d.ID
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRenderCountsCopies(t *testing.T) {
	content, err := document.Encode(document.NewSampleDiagram(600))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	svg, err := Render(content, 2, true, editor.DefaultConfig())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if n := strings.Count(string(svg), "<path"); n != 13 {
		t.Fatalf("expected 1+3+9 triangles at depth 2, got %d", n)
	}
	if strings.Contains(string(svg), "data-") {
		t.Fatalf("export leaked editor attributes")
	}

	leaves, err := Render(content, 2, false, editor.DefaultConfig())
	if err != nil {
		t.Fatalf("render leaves: %v", err)
	}
	if n := strings.Count(string(leaves), "<path"); n != 9 {
		t.Fatalf("expected 9 innermost triangles, got %d", n)
	}
}

func TestExportCachesByVersionAndDepth(t *testing.T) {
	h, blobs, obs, id := setup(t)
	path := "/api/diagrams/" + id + "/export.svg"

	rec := get(h, path)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first export: status %d cache %q", rec.Code, rec.Header().Get("X-Cache"))
	}
	if rec.Header().Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("content type %q", rec.Header().Get("Content-Type"))
	}
	first := rec.Body.String()

	rec = get(h, path+"?download=1")
	if rec.Header().Get("X-Cache") != "HIT" || rec.Body.String() != first {
		t.Fatalf("second export was not served from cache")
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="Sierpinski-triangle-d2.svg"` {
		t.Fatalf("content disposition %q", cd)
	}

	rec = get(h, path+"?depth=99")
	if rec.Code != http.StatusOK {
		t.Fatalf("deep export: status %d", rec.Code)
	}
	if n := strings.Count(rec.Body.String(), "<path"); n != 40 {
		t.Fatalf("expected depth capped at 3 (40 triangles), got %d", n)
	}

	if _, rc, err := blobs.Get(context.Background(), CacheKey(id, 1, 3, true)); err != nil {
		t.Fatalf("expected cached render at depth 3: %v", err)
	} else {
		rc.Close()
	}
	if obs.hits != 1 || obs.misses != 2 {
		t.Fatalf("observer saw %d hits and %d misses", obs.hits, obs.misses)
	}
}

func TestExportRejectsBadInput(t *testing.T) {
	h, _, _, id := setup(t)
	prefix := "/api/diagrams/" + id + "/export.svg"
	cases := []struct {
		path string
		want int
	}{
		{prefix + "?depth=0", http.StatusBadRequest},
		{prefix + "?depth=two", http.StatusBadRequest},
		{prefix + "?branches=maybe", http.StatusBadRequest},
		{"/api/diagrams/bogus/export.svg", http.StatusBadRequest},
		{"/api/diagrams/diag_01h2xcejqtf2nbrexx3vqjhp41/export.svg", http.StatusNotFound},
	}
	for _, tc := range cases {
		if rec := get(h, tc.path); rec.Code != tc.want {
			t.Fatalf("%s: status %d, want %d", tc.path, rec.Code, tc.want)
		}
	}
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey("diag_x", 4, 2, true); got != "exports/diag_x/v4-d2.svg" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := CacheKey("diag_x", 4, 2, false); got != "exports/diag_x/v4-d2-leaves.svg" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestExportRejectsDepthOverViewBudget(t *testing.T) {
	blobs := blob.NewMemory()
	cfg := editor.DefaultConfig()
	// The sample diagram needs 25 views at depth 2 and 79 at depth 3.
	cfg.MaxViews = 50
	diagrams := diagram.NewService(store.NewMemory(), blobs, cfg)
	d, err := diagrams.Create(context.Background(), "user_a", "tiny", diagram.TemplateSample, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h := NewHandler(diagrams, blobs, cfg, 1, 6, nil)
	r := mux.NewRouter()
	r.HandleFunc("/api/diagrams/{diagramId}/export.svg", func(w http.ResponseWriter, r *http.Request) {
		h.ExportSVG(w, r.WithContext(auth.WithUserID(r.Context(), "user_a")))
	})

	if rec := get(r, "/api/diagrams/"+d.ID+"/export.svg?depth=2"); rec.Code != http.StatusOK {
		t.Fatalf("depth 2: expected 200, got %d", rec.Code)
	}
	rec := get(r, "/api/diagrams/"+d.ID+"/export.svg?depth=3")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("depth 3: expected 422, got %d", rec.Code)
	}
	if keys, _ := blobs.List(context.Background(), diagram.ExportPrefix(d.ID)); len(keys) != 1 {
		t.Fatalf("expected only the depth 2 render cached, got %d", len(keys))
	}
}
