// Package fetch retrieves the raw bytes of slide sources from http(s) URLs,
// s3://bucket/key references, or a local source directory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/maauso/reelcard-api/internal/failure"
)

// DefaultMaxBytes bounds a single fetched source.
const DefaultMaxBytes int64 = 100 << 20

// Static errors for fetch operations.
var (
	// ErrTooLarge is returned when a source exceeds the configured size limit.
	ErrTooLarge = errors.New("fetch: source exceeds size limit")
	// ErrUnsupportedScheme is returned for references no fetcher handles.
	ErrUnsupportedScheme = errors.New("fetch: unsupported reference scheme")
	// ErrEmptyReference is returned for a blank reference.
	ErrEmptyReference = errors.New("fetch: empty reference")
)

// Fetcher retrieves the bytes behind a source reference. Failures are
// reported as *failure.FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Router dispatches references to a fetcher by scheme. A nil fetcher for a
// scheme disables that scheme.
type Router struct {
	HTTP  Fetcher
	S3    Fetcher
	Local Fetcher
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, &failure.FetchError{Ref: ref, Err: ErrEmptyReference}
	}

	var target Fetcher
	switch scheme(ref) {
	case "http", "https":
		target = r.HTTP
	case "s3":
		target = r.S3
	case "", "file":
		target = r.Local
	}
	if target == nil {
		return nil, &failure.FetchError{Ref: ref, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme(ref))}
	}
	return target.Fetch(ctx, ref)
}

func scheme(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// readLimited reads at most limit bytes from r and fails with ErrTooLarge
// when more are available.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w of %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}
