package server

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// APIKey protects every route except /health and /assets/. Empty disables auth.
	APIKey string
	// AssetsDir is served under /assets/ when set (local publishing).
	AssetsDir string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /v1/images", h.RenderImage)
	mux.HandleFunc("POST /v1/videos", h.CreateVideo)
	mux.HandleFunc("POST /v1/videos/preview", h.PreviewVideo)
	mux.HandleFunc("GET /v1/videos/{id}", h.GetVideo)

	if cfg.AssetsDir != "" {
		files := http.FileServer(noListing{http.Dir(cfg.AssetsDir)})
		mux.Handle("GET /assets/", http.StripPrefix("/assets", files))
	}

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
		APIKeyMiddleware(cfg.APIKey, "/health", "/assets/"),
	)

	return chain(mux)
}

// noListing hides directory indexes from the asset file server.
type noListing struct {
	root http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	if strings.HasSuffix(name, "/") {
		return nil, fs.ErrNotExist
	}
	f, err := n.root.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if stat.IsDir() {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
