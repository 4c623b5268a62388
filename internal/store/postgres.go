package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password      TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS diagrams (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	version     INTEGER NOT NULL DEFAULT 1,
	content     BYTEA NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS diagrams_owner_idx ON diagrams (owner_id, updated_at DESC);
`

// Postgres is a Store over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) CreateUser(ctx context.Context, u User) (*User, error) {
	row := p.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password, display_name) VALUES ($1, $2, $3, $4)
		 RETURNING id, email, password, display_name, created_at`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName)
	out, err := scanUser(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return out, nil
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (*User, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, email, password, display_name, created_at FROM users WHERE email = $1`, email)
	return pgUser(scanUser(row))
}

func (p *Postgres) UserByID(ctx context.Context, id string) (*User, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, email, password, display_name, created_at FROM users WHERE id = $1`, id)
	return pgUser(scanUser(row))
}

func (p *Postgres) CreateDiagram(ctx context.Context, d Diagram) (*Diagram, error) {
	row := p.pool.QueryRow(ctx,
		`INSERT INTO diagrams (id, owner_id, name, content) VALUES ($1, $2, $3, $4)
		 RETURNING id, owner_id, name, version, content, created_at, updated_at`,
		d.ID, d.OwnerID, d.Name, d.Content)
	out, err := scanDiagram(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create diagram: %w", err)
	}
	return out, nil
}

func (p *Postgres) GetDiagram(ctx context.Context, id string) (*Diagram, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, version, content, created_at, updated_at FROM diagrams WHERE id = $1`, id)
	d, err := scanDiagram(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get diagram: %w", err)
	}
	return d, nil
}

func (p *Postgres) ListDiagrams(ctx context.Context, ownerID string) ([]Diagram, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, owner_id, name, version, created_at, updated_at FROM diagrams
		 WHERE owner_id = $1 ORDER BY updated_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list diagrams: %w", err)
	}
	defer rows.Close()

	var out []Diagram
	for rows.Next() {
		var d Diagram
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan diagram: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list diagrams: %w", err)
	}
	return out, nil
}

func (p *Postgres) UpdateDiagram(ctx context.Context, id, name string, content []byte, expectVersion int) (*Diagram, error) {
	row := p.pool.QueryRow(ctx,
		`UPDATE diagrams SET name = $2, content = $3, version = version + 1, updated_at = now()
		 WHERE id = $1 AND ($4 = 0 OR version = $4)
		 RETURNING id, owner_id, name, version, content, created_at, updated_at`,
		id, name, content, expectVersion)
	d, err := scanDiagram(row)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update diagram: %w", err)
	}
	// Nothing matched: either the diagram is gone or the version moved on.
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM diagrams WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("update diagram: %w", err)
	}
	if exists {
		return nil, ErrStale
	}
	return nil, ErrNotFound
}

func (p *Postgres) DeleteDiagram(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM diagrams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete diagram: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func pgUser(u *User, err error) (*User, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func scanDiagram(row pgx.Row) (*Diagram, error) {
	var d Diagram
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Version, &d.Content, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*Postgres)(nil)
