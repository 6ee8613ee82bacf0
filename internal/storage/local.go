package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// LocalPublisher implements Publisher by writing into a directory that is
// served over HTTP at baseURL.
type LocalPublisher struct {
	dir     string
	baseURL string
}

// NewLocalPublisher creates a new LocalPublisher.
// The directory is created if it doesn't exist.
func NewLocalPublisher(dir, baseURL string) (*LocalPublisher, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "reelcard", "out")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	return &LocalPublisher{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the output directory.
func (p *LocalPublisher) Dir() string {
	return p.dir
}

// Publish writes data to key below the output directory. The write goes to a
// temporary file first so readers never observe a partial asset.
func (p *LocalPublisher) Publish(ctx context.Context, key string, data io.Reader, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(p.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return "", fmt.Errorf("create asset directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(dst), ".publish_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close asset: %w", err)
	}
	if err := os.Chmod(tmp, 0640); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("chmod asset: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move asset into place: %w", err)
	}

	return p.baseURL + "/" + clean, nil
}

// Sweep removes files under the output directory modified before cutoff.
// It continues past failures, returning the first one.
func (p *LocalPublisher) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	var firstErr error

	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("context cancelled: %w", ctxErr)
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove asset %s: %w", path, err)
			}
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}
	return removed, firstErr
}

// cleanKey normalizes an object key to a relative slash path that cannot
// escape its root.
func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
