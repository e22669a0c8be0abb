// Package storage selects the blob store that fetched documents are written
// to. Backends live in subpackages (local filesystem, in-memory, Google Cloud
// Storage); Open wires the configured one.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/JakeFAU/simplecrawler/internal/storage/gcs"
	"github.com/JakeFAU/simplecrawler/internal/storage/local"
	"github.com/JakeFAU/simplecrawler/internal/storage/memory"
	"google.golang.org/api/option"
)

// Supported backend names.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
	BackendNone   = "none"
)

// Config selects and configures a backend.
type Config struct {
	Backend string       `mapstructure:"backend" yaml:"backend"`
	Local   local.Config `mapstructure:"local" yaml:"local"`
	GCS     gcs.Config   `mapstructure:"gcs" yaml:"gcs"`
}

// Provider is the common interface for a blob storage backend.
type Provider interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Backend is an opened Provider plus its release function.
type Backend struct {
	Provider
	close    func() error
	once     sync.Once
	closeErr error
}

// Close releases resources held by the backend. Later calls return the
// result of the first one.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	b.once.Do(func() {
		b.closeErr = b.close()
	})
	return b.closeErr
}

// NoOpProvider discards content. It is used for dry runs where documents are
// fetched but not saved.
type NoOpProvider struct{}

// PutObject for NoOpProvider drains nothing and always succeeds.
func (NoOpProvider) PutObject(_ context.Context, path string, _ string, _ io.Reader) (string, error) {
	return "none://" + path, nil
}

// Validate checks the backend-specific requirements.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendLocal, "":
		if strings.TrimSpace(c.Local.BaseDir) == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case BackendGCS:
		if strings.TrimSpace(c.GCS.Bucket) == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs backend")
		}
	case BackendMemory, BackendNone:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	return nil
}

// Open constructs the configured backend. Extra client options are passed to
// the GCS client only.
func Open(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		return &Backend{Provider: memory.NewBlobStore()}, nil
	case BackendNone:
		return &Backend{Provider: NoOpProvider{}}, nil
	case BackendGCS:
		store, err := gcs.Open(ctx, cfg.GCS, opts...)
		if err != nil {
			return nil, fmt.Errorf("open gcs backend: %w", err)
		}
		return &Backend{Provider: store, close: store.Close}, nil
	default:
		store, err := local.New(cfg.Local)
		if err != nil {
			return nil, fmt.Errorf("open local backend: %w", err)
		}
		return &Backend{Provider: store}, nil
	}
}
