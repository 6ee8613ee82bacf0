// Package storage provides per-job working directories and publication of
// finished assets. It defines the Publisher interface (port) and
// implementations for a local output directory and S3.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrInvalidKey is returned when an object key is empty or escapes its root.
var ErrInvalidKey = errors.New("storage: invalid object key")

// Publisher makes finished assets reachable by URL.
type Publisher interface {
	// Publish stores data under key and returns its public URL.
	Publish(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)

	// Sweep removes published assets last modified before cutoff and
	// returns how many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (removed int, err error)
}
