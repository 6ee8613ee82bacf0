package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/maauso/reelcard-api/internal/failure"
)

// LocalFetcher reads sources from a directory. References are plain relative
// paths or file:// URLs relative to that directory; nothing outside it can be read.
type LocalFetcher struct {
	dir      string
	maxBytes int64
}

// NewLocalFetcher creates a LocalFetcher rooted at dir.
func NewLocalFetcher(dir string, maxBytes int64) (*LocalFetcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source directory %s is not a directory", dir)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &LocalFetcher{dir: dir, maxBytes: maxBytes}, nil
}

// Fetch implements Fetcher.
func (f *LocalFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &failure.FetchError{Ref: ref, Err: fmt.Errorf("context cancelled: %w", err)}
	}

	name := ref
	if u, err := url.Parse(ref); err == nil && u.Scheme == "file" {
		name = u.Host + u.Path
	}
	name = strings.TrimPrefix(name, "/")

	root, err := os.OpenRoot(f.dir)
	if err != nil {
		return nil, &failure.FetchError{Ref: ref, Err: fmt.Errorf("open source directory: %w", err)}
	}
	defer func() { _ = root.Close() }()

	file, err := root.Open(name)
	if err != nil {
		return nil, &failure.FetchError{Ref: ref, NotFound: errors.Is(err, fs.ErrNotExist), Err: err}
	}
	defer func() { _ = file.Close() }()

	data, err := readLimited(file, f.maxBytes)
	if err != nil {
		return nil, &failure.FetchError{Ref: ref, Err: err}
	}
	return data, nil
}
