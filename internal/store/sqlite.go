package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password      TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS diagrams (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	name        TEXT NOT NULL,
	version     INTEGER NOT NULL,
	content     BLOB NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS diagrams_owner_idx ON diagrams (owner_id, updated_at DESC);
`

// SQLite is a single-file Store using the pure Go modernc driver. Times are
// stored as unix nanoseconds.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "fractal.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLite) CreateUser(ctx context.Context, u User) (*User, error) {
	u.CreatedAt = s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password, display_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, u.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (s *SQLite) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.user(ctx, `SELECT id, email, password, display_name, created_at FROM users WHERE email = ?`, email)
}

func (s *SQLite) UserByID(ctx context.Context, id string) (*User, error) {
	return s.user(ctx, `SELECT id, email, password, display_name, created_at FROM users WHERE id = ?`, id)
}

func (s *SQLite) user(ctx context.Context, query string, arg string) (*User, error) {
	var (
		u       User
		created int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	return &u, nil
}

func (s *SQLite) CreateDiagram(ctx context.Context, d Diagram) (*Diagram, error) {
	now := s.now()
	d.Version = 1
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Content == nil {
		d.Content = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO diagrams (id, owner_id, name, version, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.Name, d.Version, d.Content, now.UnixNano(), now.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create diagram: %w", err)
	}
	return copyDiagram(d), nil
}

func (s *SQLite) GetDiagram(ctx context.Context, id string) (*Diagram, error) {
	var (
		d                Diagram
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, version, content, created_at, updated_at FROM diagrams WHERE id = ?`, id).
		Scan(&d.ID, &d.OwnerID, &d.Name, &d.Version, &d.Content, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get diagram: %w", err)
	}
	d.CreatedAt = time.Unix(0, created).UTC()
	d.UpdatedAt = time.Unix(0, updated).UTC()
	return &d, nil
}

func (s *SQLite) ListDiagrams(ctx context.Context, ownerID string) ([]Diagram, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, version, created_at, updated_at FROM diagrams
		 WHERE owner_id = ? ORDER BY updated_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list diagrams: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Diagram
	for rows.Next() {
		var (
			d                Diagram
			created, updated int64
		)
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Version, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan diagram: %w", err)
		}
		d.CreatedAt = time.Unix(0, created).UTC()
		d.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list diagrams: %w", err)
	}
	return out, nil
}

func (s *SQLite) UpdateDiagram(ctx context.Context, id, name string, content []byte, expectVersion int) (*Diagram, error) {
	if content == nil {
		content = []byte{}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE diagrams SET name = ?, content = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND (? = 0 OR version = ?)`,
		name, content, s.now().UnixNano(), id, expectVersion, expectVersion)
	if err != nil {
		return nil, fmt.Errorf("update diagram: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update diagram: %w", err)
	}
	if n == 0 {
		if _, err := s.GetDiagram(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrStale
	}
	return s.GetDiagram(ctx, id)
}

func (s *SQLite) DeleteDiagram(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM diagrams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete diagram: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Store = (*SQLite)(nil)
