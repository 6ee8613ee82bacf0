package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Workspaces creates job-scoped working directories under a root directory.
type Workspaces struct {
	root string
}

// NewWorkspaces creates a new Workspaces instance.
// If root is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewWorkspaces(root string) (*Workspaces, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "reelcard", "work")
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}

	return &Workspaces{root: root}, nil
}

// Root returns the directory holding all workspaces.
func (w *Workspaces) Root() string {
	return w.root
}

// Create makes a fresh workspace. The name is used as a prefix of the
// directory name. The caller owns the workspace and must Close it.
func (w *Workspaces) Create(ctx context.Context, name string) (*Workspace, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dir, err := os.MkdirTemp(w.root, sanitize(name)+"_*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Sweep removes workspaces left behind by jobs that ended before cutoff,
// such as after a crash. It continues past failures, returning the first one.
func (w *Workspaces) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return 0, fmt.Errorf("read work directory: %w", err)
	}

	removed := 0
	var firstErr error
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return removed, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		info, err := e.Info()
		if err != nil || !e.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(w.root, e.Name())); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove workspace %s: %w", e.Name(), err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// Workspace is a directory exclusively owned by one job.
type Workspace struct {
	dir string
}

// Dir returns the workspace directory.
func (ws *Workspace) Dir() string {
	return ws.dir
}

// Path returns the path of name inside the workspace.
func (ws *Workspace) Path(name string) string {
	return filepath.Join(ws.dir, sanitize(name))
}

// Save writes data to name inside the workspace and returns the file path.
func (ws *Workspace) Save(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path := ws.Path(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) // #nosec G304 - path is inside the workspace
	if err != nil {
		return "", fmt.Errorf("create workspace file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write workspace file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close workspace file: %w", err)
	}

	return path, nil
}

// Close removes the workspace and everything in it.
func (ws *Workspace) Close() error {
	if err := os.RemoveAll(ws.dir); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

// sanitize keeps a single path element free of separators.
func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "file"
	}
	return name
}
