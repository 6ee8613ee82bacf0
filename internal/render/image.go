package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/maauso/reelcard-api/internal/failure"
	"github.com/maauso/reelcard-api/internal/fetch"
	"github.com/maauso/reelcard-api/internal/raster"
	"github.com/maauso/reelcard-api/internal/storage"
	"github.com/maauso/reelcard-api/internal/typography"
)

// ContentTypeJPEG is the media type of rendered images.
const ContentTypeJPEG = "image/jpeg"

// Size bounds for requested canvases.
const (
	MinCanvas = 160
	MaxCanvas = 4096
)

// Cache stores finished image renders by request key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
}

// ImageRequest describes a single overlaid still image.
type ImageRequest struct {
	Source         string
	Title          string
	Attribution    string
	AttributionURL string // Optional; renders a QR badge linking here
	Width          int    // Zero selects the profile default
	Height         int
	MaxLines       int
}

// ImageResult is a rendered JPEG.
type ImageResult struct {
	Data   []byte
	Layout typography.Layout
	Key    string
	Cached bool
}

// ImageService renders overlaid still images.
type ImageService struct {
	profile    Profile
	engine     *typography.Engine
	fetcher    fetch.Fetcher
	rasterizer raster.Rasterizer
	compositor *raster.Compositor
	publisher  storage.Publisher
	cache      Cache
	logger     *slog.Logger
}

// ImageOption configures an ImageService.
type ImageOption func(*ImageService)

// WithImageCache enables caching of finished renders.
func WithImageCache(c Cache) ImageOption {
	return func(s *ImageService) {
		s.cache = c
	}
}

// WithImagePublisher enables publishing renders by URL.
func WithImagePublisher(p storage.Publisher) ImageOption {
	return func(s *ImageService) {
		s.publisher = p
	}
}

// NewImageService creates an ImageService.
func NewImageService(profile Profile, fetcher fetch.Fetcher, rasterizer raster.Rasterizer, logger *slog.Logger, opts ...ImageOption) *ImageService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ImageService{
		profile:    profile,
		engine:     typography.NewEngine(profile.Typography),
		fetcher:    fetcher,
		rasterizer: rasterizer,
		compositor: raster.NewCompositor(profile.JPEGQuality),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Normalize fills defaults into req and validates it.
func (s *ImageService) Normalize(req ImageRequest) (ImageRequest, error) {
	req.Source = strings.TrimSpace(req.Source)
	req.Title = strings.TrimSpace(req.Title)
	req.Attribution = strings.TrimSpace(req.Attribution)
	req.AttributionURL = strings.TrimSpace(req.AttributionURL)
	if req.Width == 0 {
		req.Width = s.profile.ImageWidth
	}
	if req.Height == 0 {
		req.Height = s.profile.ImageHeight
	}
	if req.MaxLines == 0 {
		req.MaxLines = s.profile.ImageMaxLines
	}

	switch {
	case req.Source == "":
		return req, failure.Validation("source", "is required")
	case req.Width < MinCanvas || req.Width > MaxCanvas:
		return req, failure.Validation("width", "must lie in [%d,%d], got %d", MinCanvas, MaxCanvas, req.Width)
	case req.Height < MinCanvas || req.Height > MaxCanvas:
		return req, failure.Validation("height", "must lie in [%d,%d], got %d", MinCanvas, MaxCanvas, req.Height)
	case !inLines(req.MaxLines):
		return req, failure.Validation("max_lines", "must lie in [1,%d], got %d", MaxCaptionLines, req.MaxLines)
	}
	return req, nil
}

// Layout returns the caption layout req would be rendered with.
func (s *ImageService) Layout(req ImageRequest) typography.Layout {
	return s.engine.Layout(typography.Request{
		Width:       req.Width,
		Height:      req.Height,
		Title:       req.Title,
		Attribution: req.Attribution,
		MaxLines:    req.MaxLines,
		Anchor:      typography.AnchorTop,
	})
}

// Render produces the JPEG for req. Identical requests are served from the
// cache when one is configured.
func (s *ImageService) Render(ctx context.Context, requestID string, req ImageRequest) (*ImageResult, error) {
	req, err := s.Normalize(req)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(slog.String("request_id", requestID))
	start := time.Now()

	key := s.cacheKey(req)
	layout := s.Layout(req)

	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("image cache lookup failed", slog.String("error", err.Error()))
		} else if ok {
			logger.Debug("image cache hit", slog.String("key", key))
			return &ImageResult{Data: data, Layout: layout, Key: key, Cached: true}, nil
		}
	}

	raw, err := s.fetcher.Fetch(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	src, err := s.compositor.Decode(raw)
	if err != nil {
		return nil, &failure.FetchError{Ref: req.Source, Err: err}
	}

	canvas := s.compositor.Cover(src, req.Width, req.Height)
	if !layout.Empty() {
		layer, err := s.rasterizer.Rasterize(layout)
		if err != nil {
			return nil, err
		}
		s.compositor.Overlay(canvas, layer, image.Point{})
	}

	if req.AttributionURL != "" {
		if err := s.drawBadge(canvas, req.AttributionURL); err != nil {
			logger.Warn("skipping branding badge", slog.String("error", err.Error()))
		}
	}

	var buf bytes.Buffer
	if err := s.compositor.EncodeJPEG(&buf, canvas); err != nil {
		return nil, fmt.Errorf("render image: %w", err)
	}
	data := buf.Bytes()

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, data); err != nil {
			logger.Warn("image cache store failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("image rendered",
		slog.Int("width", req.Width),
		slog.Int("height", req.Height),
		slog.Int("lines", len(layout.Lines)),
		slog.Bool("truncated", layout.Truncated),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)),
	)

	return &ImageResult{Data: data, Layout: layout, Key: key}, nil
}

// Publish stores a rendered image and returns its URL.
func (s *ImageService) Publish(ctx context.Context, res *ImageResult) (string, error) {
	if s.publisher == nil {
		return "", fmt.Errorf("publish image: no publisher configured")
	}
	url, err := s.publisher.Publish(ctx, "images/"+res.Key+".jpg", bytes.NewReader(res.Data), ContentTypeJPEG)
	if err != nil {
		return "", fmt.Errorf("publish image: %w", err)
	}
	return url, nil
}

func (s *ImageService) drawBadge(canvas *image.RGBA, url string) error {
	size := min(s.profile.BadgeSize, canvas.Bounds().Dx()/3, canvas.Bounds().Dy()/3)
	badge, err := raster.Badge(url, size)
	if err != nil {
		return err
	}
	b := canvas.Bounds()
	s.compositor.Overlay(canvas, badge, raster.BadgePosition(b.Dx(), b.Dy(), badge.Bounds().Dx(), s.profile.BadgeMargin))
	return nil
}

// cacheKey hashes the normalized request together with the constants that
// shape its output.
func (s *ImageService) cacheKey(req ImageRequest) string {
	payload, _ := json.Marshal(struct {
		Req        ImageRequest
		Typography typography.Params
		Quality    int
		Badge      [2]int
	}{req, s.profile.Typography, s.profile.JPEGQuality, [2]int{s.profile.BadgeSize, s.profile.BadgeMargin}})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
