// Package diagram manages saved diagrams: ownership, versioning and
// validation of their content.
package diagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lackhoa/fractal-sky/internal/blob"
	"github.com/lackhoa/fractal-sky/internal/document"
	"github.com/lackhoa/fractal-sky/internal/editor"
	"github.com/lackhoa/fractal-sky/internal/scene"
	"github.com/lackhoa/fractal-sky/internal/store"
	"github.com/lackhoa/fractal-sky/internal/typeid"
)

var (
	ErrNotFound        = errors.New("diagram not found")
	ErrForbidden       = errors.New("forbidden")
	ErrStale           = errors.New("diagram was modified concurrently")
	ErrInvalidDocument = errors.New("invalid diagram document")
	ErrUnknownTemplate = errors.New("unknown template")
)

const (
	TemplateBlank  = "blank"
	TemplateSample = "sample"
)

type Service struct {
	store  store.Store
	blobs  blob.Store
	editor editor.Config
	log    *slog.Logger
}

// NewService creates a service. cfg is used to build the throwaway editors
// that validate and canonicalise diagram content.
func NewService(st store.Store, blobs blob.Store, cfg editor.Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	// Validation editors stay quiet.
	cfg.Logger = slog.New(slog.DiscardHandler)
	return &Service{store: st, blobs: blobs, editor: cfg, log: log}
}

type Diagram struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerID   string `json:"ownerId"`
	Version   int    `json:"version"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// WithContent is a diagram together with its document.
type WithContent struct {
	Diagram
	Content json.RawMessage `json:"content"`
}

func (s *Service) Create(ctx context.Context, ownerID, name, template string, content json.RawMessage) (*Diagram, error) {
	var raw []byte
	if len(content) > 0 {
		raw = content
	} else {
		records, err := s.template(template)
		if err != nil {
			return nil, err
		}
		if raw, err = document.Encode(records); err != nil {
			return nil, fmt.Errorf("encode template: %w", err)
		}
	}
	canonical, err := s.Canonicalize(raw)
	if err != nil {
		return nil, err
	}

	d, err := s.store.CreateDiagram(ctx, store.Diagram{
		ID:      typeid.NewDiagramID(),
		OwnerID: ownerID,
		Name:    name,
		Content: canonical,
	})
	if err != nil {
		return nil, fmt.Errorf("create diagram: %w", err)
	}
	s.log.Info("diagram created", "diagram", d.ID, "owner", ownerID)
	return toDiagram(d), nil
}

func (s *Service) template(name string) ([]document.Record, error) {
	switch name {
	case "", TemplateBlank:
		return document.NewBlankDiagram(), nil
	case TemplateSample:
		return document.NewSampleDiagram(s.frameDim()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
}

func (s *Service) frameDim() float64 {
	if s.editor.Scene.FrameDim > 0 {
		return s.editor.Scene.FrameDim
	}
	return scene.DefaultFrameDim
}

func (s *Service) Get(ctx context.Context, diagramID, userID string) (*WithContent, error) {
	d, err := s.owned(ctx, diagramID, userID)
	if err != nil {
		return nil, err
	}
	return &WithContent{Diagram: *toDiagram(d), Content: d.Content}, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Diagram, error) {
	list, err := s.store.ListDiagrams(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list diagrams: %w", err)
	}
	out := make([]Diagram, len(list))
	for i := range list {
		out[i] = *toDiagram(&list[i])
	}
	return out, nil
}

// Update replaces the diagram's name and content. A non-zero version must
// match the stored one.
func (s *Service) Update(ctx context.Context, diagramID, userID, name string, content json.RawMessage, version int) (*Diagram, error) {
	current, err := s.owned(ctx, diagramID, userID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = current.Name
	}
	raw := current.Content
	if len(content) > 0 {
		if raw, err = s.Canonicalize(content); err != nil {
			return nil, err
		}
	}

	d, err := s.store.UpdateDiagram(ctx, diagramID, name, raw, version)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrStale):
			return nil, ErrStale
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update diagram: %w", err)
	}
	return toDiagram(d), nil
}

// Delete removes the diagram and its cached exports.
func (s *Service) Delete(ctx context.Context, diagramID, userID string) error {
	if _, err := s.owned(ctx, diagramID, userID); err != nil {
		return err
	}
	if err := s.store.DeleteDiagram(ctx, diagramID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete diagram: %w", err)
	}
	if s.blobs != nil {
		n, err := blob.DeletePrefix(ctx, s.blobs, ExportPrefix(diagramID))
		if err != nil {
			s.log.Warn("failed to purge exports", "diagram", diagramID, "error", err)
		} else if n > 0 {
			s.log.Info("purged exports", "diagram", diagramID, "count", n)
		}
	}
	return nil
}

// Canonicalize loads content into a scratch editor and saves it back, so
// stored documents are always ones the editor accepts.
func (s *Service) Canonicalize(content []byte) ([]byte, error) {
	ed := editor.New(&scene.DiscardSink{}, nil, s.editor)
	if err := ed.LoadJSON(content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	out, err := ed.SaveJSON()
	if err != nil {
		return nil, fmt.Errorf("encode diagram: %w", err)
	}
	return out, nil
}

func (s *Service) owned(ctx context.Context, diagramID, userID string) (*store.Diagram, error) {
	d, err := s.store.GetDiagram(ctx, diagramID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get diagram: %w", err)
	}
	if d.OwnerID != userID {
		return nil, ErrForbidden
	}
	return d, nil
}

// ExportPrefix is the blob key prefix under which a diagram's renders are
// cached.
func ExportPrefix(diagramID string) string {
	return "exports/" + diagramID + "/"
}

func toDiagram(d *store.Diagram) *Diagram {
	return &Diagram{
		ID:        d.ID,
		Name:      d.Name,
		OwnerID:   d.OwnerID,
		Version:   d.Version,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
