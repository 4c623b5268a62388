// Package blob stores rendered artifacts (SVG exports) by key. Keys are
// slash-separated relative paths such as "exports/diag_x/v3-d2.svg".
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

type Driver string

const (
	DriverMemory     Driver = "memory"
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

var ErrNotFound = errors.New("blob not found")

// Info describes a stored blob.
type Info struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Store is a thin S3-like abstraction. Put overwrites an existing key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// Config selects and parameterises a driver.
type Config struct {
	Driver    Driver
	Dir       string
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverFilesystem:
		return NewFilesystem(cfg.Dir)
	case DriverS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// DeletePrefix removes every blob under prefix and returns how many went.
func DeletePrefix(ctx context.Context, s Store, prefix string) (int, error) {
	infos, err := s.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", prefix, err)
	}
	for i, info := range infos {
		if err := s.Delete(ctx, info.Key); err != nil && !errors.Is(err, ErrNotFound) {
			return i, fmt.Errorf("delete %s: %w", info.Key, err)
		}
	}
	return len(infos), nil
}
