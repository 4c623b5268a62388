// Package store persists users and diagrams. Implementations are safe for
// concurrent use.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	ErrStale    = errors.New("version mismatch")
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

// Diagram is a saved document. Content holds the encoded diagram file and is
// left nil by ListDiagrams.
type Diagram struct {
	ID        string
	OwnerID   string
	Name      string
	Version   int
	Content   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store interface {
	CreateUser(ctx context.Context, u User) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)

	CreateDiagram(ctx context.Context, d Diagram) (*Diagram, error)
	GetDiagram(ctx context.Context, id string) (*Diagram, error)
	ListDiagrams(ctx context.Context, ownerID string) ([]Diagram, error)
	// UpdateDiagram replaces name and content and bumps the version. A
	// non-zero expectVersion must match the stored version or ErrStale is
	// returned.
	UpdateDiagram(ctx context.Context, id, name string, content []byte, expectVersion int) (*Diagram, error)
	DeleteDiagram(ctx context.Context, id string) error

	Close() error
}
