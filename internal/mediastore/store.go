// Package mediastore stores media blobs such as rendered invoices and deposit
// receipt proofs, addressed by slash-separated keys.
package mediastore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a requested blob does not exist.
	ErrNotFound = errors.New("mediastore: blob not found")
	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("mediastore: invalid key")
)

// Store defines the interface for media storage backends.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Config holds configuration for creating a Store.
type Config struct {
	Type       string // "local" or "s3"
	Path       string // base directory for local store
	S3Bucket   string
	S3Prefix   string
	S3Endpoint string
	S3Region   string
}

// New creates a Store based on the provided configuration.
// If Type is empty or unsupported, it defaults to local storage and logs a warning.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "local":
		return NewLocalFileStore(cfg.Path)
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg)
	default:
		logger.Warn().
			Str("type", cfg.Type).
			Msg("unsupported or empty media store type, defaulting to local")
		return NewLocalFileStore(cfg.Path)
	}
}

// cleanKey validates a key and returns its canonical form.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}
