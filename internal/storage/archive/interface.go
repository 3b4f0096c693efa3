// Package archive stores opaque blobs under slash-separated keys on the
// local filesystem or an S3-compatible bucket.
package archive

import (
	"context"
	"fmt"

	"github.com/newthinker/pitval/internal/config"
	"github.com/newthinker/pitval/internal/core"
)

// Storage is a flat blob store
type Storage interface {
	// Write stores data at key, replacing any existing blob
	Write(ctx context.Context, key string, data []byte) error

	// Read returns the blob at key. A missing key wraps core.ErrNoData.
	Read(ctx context.Context, key string) ([]byte, error)

	// List returns the keys under prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether key is present
	Exists(ctx context.Context, key string) (bool, error)
}

// New opens the backend selected by cfg.Type
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "", "localfs":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(ctx, S3Config(cfg.S3))
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown storage type %q", cfg.Type))
	}
}

func notFound(key string, cause error) error {
	return core.WrapError(core.ErrNoData, fmt.Errorf("%s: %w", key, cause))
}
