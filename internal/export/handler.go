// Package export renders saved diagrams to standalone SVG at a chosen
// nesting depth, caching each render in blob storage.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/lackhoa/fractal-sky/internal/auth"
	"github.com/lackhoa/fractal-sky/internal/blob"
	"github.com/lackhoa/fractal-sky/internal/diagram"
	"github.com/lackhoa/fractal-sky/internal/editor"
	"github.com/lackhoa/fractal-sky/internal/render"
)

const contentType = "image/svg+xml"

// Observer is told whether each export came from the cache.
type Observer interface {
	ExportServed(cached bool)
}

type Handler struct {
	diagrams     *diagram.Service
	blobs        blob.Store
	editor       editor.Config
	defaultDepth int
	maxDepth     int
	observer     Observer
}

// NewHandler creates an export handler. Depth requests above maxDepth are
// capped; observer may be nil.
func NewHandler(diagrams *diagram.Service, blobs blob.Store, cfg editor.Config, defaultDepth, maxDepth int, observer Observer) *Handler {
	if maxDepth < 1 {
		maxDepth = 1
	}
	defaultDepth = min(max(defaultDepth, 1), maxDepth)
	cfg.Logger = slog.New(slog.DiscardHandler)
	return &Handler{
		diagrams:     diagrams,
		blobs:        blobs,
		editor:       cfg,
		defaultDepth: defaultDepth,
		maxDepth:     maxDepth,
		observer:     observer,
	}
}

// Render draws a diagram document at depth as an SVG document covering the
// frame square. Without branches only the innermost shape copies are drawn.
// A depth the view budget cannot hold fails with editor.ErrViewBudget.
func Render(content []byte, depth int, branches bool, cfg editor.Config) ([]byte, error) {
	tree := render.NewTree()
	ed := editor.New(tree, nil, cfg)
	if err := ed.LoadJSON(content); err != nil {
		return nil, fmt.Errorf("load diagram: %w", err)
	}
	if limit := ed.DepthLimit(); depth > limit && limit < ed.MaxDepth() {
		return nil, fmt.Errorf("%w: depth %d, limit %d for this diagram", editor.ErrViewBudget, depth, limit)
	}
	ed.SetDepth(depth)
	ed.SetBranchesVisible(branches)

	dim := ed.Scene().FrameDim()
	var buf bytes.Buffer
	if err := tree.WriteSVG(&buf, render.SVGOptions{Width: dim, Height: dim, Background: "black"}); err != nil {
		return nil, fmt.Errorf("write svg: %w", err)
	}
	return buf.Bytes(), nil
}

// CacheKey is where a render of one diagram version at one depth is kept.
func CacheKey(diagramID string, version, depth int, branches bool) string {
	suffix := ""
	if !branches {
		suffix = "-leaves"
	}
	return fmt.Sprintf("%sv%d-d%d%s.svg", diagram.ExportPrefix(diagramID), version, depth, suffix)
}

// ExportSVG serves GET /api/diagrams/{diagramId}/export.svg. Query
// parameters: depth (capped at the configured maximum), branches=false to
// draw only the innermost copies, download to ask for an attachment.
func (h *Handler) ExportSVG(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	diagramID, ok := diagram.DiagramID(w, r)
	if !ok {
		return
	}

	depth := h.defaultDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "depth must be a positive integer", http.StatusBadRequest)
			return
		}
		depth = min(n, h.maxDepth)
	}

	branches := true
	if raw := r.URL.Query().Get("branches"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "branches must be a boolean", http.StatusBadRequest)
			return
		}
		branches = b
	}

	d, err := h.diagrams.Get(r.Context(), diagramID, userID)
	if err != nil {
		diagram.HandleError(w, err)
		return
	}

	key := CacheKey(d.ID, d.Version, depth, branches)
	if h.serveCached(w, r, key, d.Name, depth) {
		return
	}

	svg, err := Render(d.Content, depth, branches, h.editor)
	if errors.Is(err, editor.ErrViewBudget) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		slog.Error("render export", "diagram", d.ID, "depth", depth, "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	if _, err := h.blobs.Put(r.Context(), key, bytes.NewReader(svg), contentType); err != nil {
		// The render is still good; only the cache is lost.
		slog.Warn("cache export", "key", key, "error", err)
	}
	if h.observer != nil {
		h.observer.ExportServed(false)
	}
	slog.Info("export rendered", "diagram", d.ID, "depth", depth, "bytes", len(svg))

	writeHeaders(w, r, d.Name, depth, "MISS")
	_, _ = w.Write(svg)
}

func (h *Handler) serveCached(w http.ResponseWriter, r *http.Request, key, name string, depth int) bool {
	_, rc, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			slog.Warn("read cached export", "key", key, "error", err)
		}
		return false
	}
	defer rc.Close()

	if h.observer != nil {
		h.observer.ExportServed(true)
	}
	writeHeaders(w, r, name, depth, "HIT")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Error("stream cached export", "key", key, "error", err)
	}
	return true
}

func writeHeaders(w http.ResponseWriter, r *http.Request, name string, depth int, cache string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Cache", cache)
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-d%d.svg"`, sanitizeName(name), depth))
	}
	w.WriteHeader(http.StatusOK)
}

func sanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, name)
	if name == "" {
		return "diagram"
	}
	return name
}
