package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/reelcard-api/internal/failure"
	"github.com/maauso/reelcard-api/internal/fetch"
	"github.com/maauso/reelcard-api/internal/filtergraph"
	"github.com/maauso/reelcard-api/internal/media"
	"github.com/maauso/reelcard-api/internal/motion"
	"github.com/maauso/reelcard-api/internal/raster"
	"github.com/maauso/reelcard-api/internal/storage"
	"github.com/maauso/reelcard-api/internal/timing"
	"github.com/maauso/reelcard-api/internal/typography"
)

// ContentTypeMP4 is the media type of rendered reels.
const ContentTypeMP4 = "video/mp4"

// Progress milestones reported while a reel renders.
const (
	ProgressFetched     = 40
	ProgressSynthesized = 60
	ProgressEncoded     = 90
	ProgressDone        = 100
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".webm": true, ".mkv": true, ".avi": true,
}

// sniffedExtensions maps http.DetectContentType results to file extensions.
var sniffedExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
	"video/avi":  ".avi",
}

// SlideRequest describes one slide of a reel.
type SlideRequest struct {
	Source   string  `json:"source"`
	Duration float64 `json:"duration"`
	Caption  string  `json:"caption,omitempty"`
	MaxLines int     `json:"max_lines,omitempty"`
}

// VideoRequest describes a multi-slide vertical reel.
type VideoRequest struct {
	Slides     []SlideRequest `json:"slides"`
	Transition string         `json:"transition,omitempty"`
	Width      int            `json:"width,omitempty"`
	Height     int            `json:"height,omitempty"`
}

// VideoResult describes a published reel.
type VideoResult struct {
	URL      string
	Duration float64
	Graph    *filtergraph.Graph
}

// Preview is the pipeline a request would run, computed without any external call.
type Preview struct {
	Graph        *filtergraph.Graph  `json:"graph"`
	FilterGraph  string              `json:"filter_complex"`
	Plan         timing.Plan         `json:"plan"`
	Trajectories []motion.Trajectory `json:"trajectories"`
	Captions     []*CaptionPreview   `json:"captions"`
}

// CaptionPreview is the resolved layout of one slide caption, nil entries
// mark slides without one.
type CaptionPreview struct {
	Layout   typography.Layout     `json:"layout"`
	Markup   string                `json:"markup"`
	Position filtergraph.Placement `json:"position"`
}

// plan is a validated request with everything that can be computed before
// touching the network or filesystem.
type plan struct {
	req          VideoRequest
	output       motion.Size
	transition   filtergraph.Transition
	timing       timing.Plan
	trajectories []motion.Trajectory
	captions     []typography.Layout
	placement    filtergraph.Placement
}

// VideoService renders multi-slide reels.
type VideoService struct {
	profile    Profile
	engine     *typography.Engine
	fetcher    fetch.Fetcher
	rasterizer raster.Rasterizer
	prober     media.Prober
	executor   media.Executor
	workspaces *storage.Workspaces
	publisher  storage.Publisher
	logger     *slog.Logger
}

// NewVideoService creates a VideoService.
func NewVideoService(
	profile Profile,
	fetcher fetch.Fetcher,
	rasterizer raster.Rasterizer,
	prober media.Prober,
	executor media.Executor,
	workspaces *storage.Workspaces,
	publisher storage.Publisher,
	logger *slog.Logger,
) *VideoService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoService{
		profile:    profile,
		engine:     typography.NewEngine(profile.Typography),
		fetcher:    fetcher,
		rasterizer: rasterizer,
		prober:     prober,
		executor:   executor,
		workspaces: workspaces,
		publisher:  publisher,
		logger:     logger,
	}
}

// Validate checks req and reconciles its timeline without side effects.
func (s *VideoService) Validate(req VideoRequest) error {
	_, err := s.plan(req)
	return err
}

// Preview returns the pipeline req would run. Sources are not fetched, so
// slide kinds are guessed from their extensions and no slide carries audio.
func (s *VideoService) Preview(req VideoRequest) (*Preview, error) {
	p, err := s.plan(req)
	if err != nil {
		return nil, err
	}

	slides := make([]filtergraph.Slide, len(p.req.Slides))
	captions := make([]*CaptionPreview, len(p.req.Slides))
	for i, sr := range p.req.Slides {
		slides[i] = filtergraph.Slide{
			Path: sr.Source,
			Kind: kindFromExtension(sr.Source),
		}
		if l := p.captions[i]; !l.Empty() {
			slides[i].CaptionPath = fmt.Sprintf("caption_%d.png", i)
			captions[i] = &CaptionPreview{Layout: l, Markup: l.Markup(), Position: p.placement}
		}
	}

	g, err := s.synthesize(p, slides, "reel.mp4")
	if err != nil {
		return nil, err
	}
	return &Preview{
		Graph:        g,
		FilterGraph:  g.FilterComplex(),
		Plan:         p.timing,
		Trajectories: p.trajectories,
		Captions:     captions,
	}, nil
}

// Render runs req and publishes the reel under key. progress, when non-nil,
// receives milestone percentages. The job workspace is removed on return.
func (s *VideoService) Render(ctx context.Context, requestID, key string, req VideoRequest, progress func(int)) (*VideoResult, error) {
	if progress == nil {
		progress = func(int) {}
	}
	p, err := s.plan(req)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(slog.String("request_id", requestID), slog.String("key", key))
	start := time.Now()

	ws, err := s.workspaces.Create(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if err := ws.Close(); err != nil {
			logger.Warn("failed to remove workspace", slog.String("dir", ws.Dir()), slog.String("error", err.Error()))
		}
	}()

	slides, err := s.prepareSlides(ctx, ws, p)
	if err != nil {
		return nil, err
	}
	progress(ProgressFetched)

	if len(p.timing.Clamped) > 0 {
		logger.Warn("crossfade offsets clamped", slog.Any("offsets", p.timing.Offsets), slog.Any("clamped", p.timing.Clamped))
	}

	outPath := ws.Path("reel.mp4")
	g, err := s.synthesize(p, slides, outPath)
	if err != nil {
		return nil, err
	}
	progress(ProgressSynthesized)
	logger.Debug("pipeline synthesized",
		slog.Int("stages", len(g.Stages)),
		slog.String("filter_complex", g.FilterComplex()),
	)

	if err := s.executor.Execute(ctx, g.Args); err != nil {
		return nil, err
	}
	progress(ProgressEncoded)

	f, err := os.Open(outPath) // #nosec G304 - path is inside the job workspace
	if err != nil {
		return nil, fmt.Errorf("open encoded reel: %w", err)
	}
	defer func() { _ = f.Close() }()

	url, err := s.publisher.Publish(ctx, "reels/"+key+".mp4", f, ContentTypeMP4)
	if err != nil {
		return nil, fmt.Errorf("publish reel: %w", err)
	}
	progress(ProgressDone)

	logger.Info("reel rendered",
		slog.Int("slides", len(slides)),
		slog.Float64("total", g.Total),
		slog.String("url", url),
		slog.Duration("duration", time.Since(start)),
	)
	return &VideoResult{URL: url, Duration: g.Total, Graph: g}, nil
}

func (s *VideoService) plan(req VideoRequest) (*plan, error) {
	if req.Width == 0 {
		req.Width = s.profile.VideoWidth
	}
	if req.Height == 0 {
		req.Height = s.profile.VideoHeight
	}

	n := len(req.Slides)
	if n == 0 || n > s.profile.MaxSlides {
		return nil, failure.Validation("slides", "must contain between 1 and %d slides, got %d", s.profile.MaxSlides, n)
	}
	if req.Width < MinCanvas || req.Width > MaxCanvas || req.Width%2 != 0 {
		return nil, failure.Validation("width", "must be even and lie in [%d,%d], got %d", MinCanvas, MaxCanvas, req.Width)
	}
	if req.Height < MinCanvas || req.Height > MaxCanvas || req.Height%2 != 0 {
		return nil, failure.Validation("height", "must be even and lie in [%d,%d], got %d", MinCanvas, MaxCanvas, req.Height)
	}
	transition, err := filtergraph.ParseTransition(req.Transition)
	if err != nil {
		return nil, err
	}

	slides := make([]SlideRequest, n)
	durations := make([]float64, n)
	for i, sr := range req.Slides {
		sr.Source = strings.TrimSpace(sr.Source)
		sr.Caption = strings.TrimSpace(sr.Caption)
		if sr.Source == "" {
			return nil, failure.Validation(fmt.Sprintf("slides[%d].source", i), "is required")
		}
		if sr.MaxLines == 0 {
			sr.MaxLines = s.profile.VideoMaxLines
		}
		if !inLines(sr.MaxLines) {
			return nil, failure.Validation(fmt.Sprintf("slides[%d].max_lines", i), "must lie in [1,%d], got %d", MaxCaptionLines, sr.MaxLines)
		}
		slides[i] = sr
		durations[i] = sr.Duration
	}
	req.Slides = slides

	if err := timing.Validate(durations, s.profile.Timing); err != nil {
		return nil, err
	}
	tp, err := timing.Reconcile(durations, s.profile.Timing)
	if err != nil {
		return nil, err
	}

	output := motion.Size{W: req.Width, H: req.Height}
	preScale := s.profile.Motion.PreScale(output)
	band, placement := s.profile.captionBand(output)

	p := &plan{
		req:          req,
		output:       output,
		transition:   transition,
		timing:       tp,
		trajectories: make([]motion.Trajectory, n),
		captions:     make([]typography.Layout, n),
		placement:    placement,
	}
	for i, sr := range slides {
		p.trajectories[i] = motion.Compute(s.profile.Motion, tp.Durations[i], s.profile.FrameRate, preScale, output, i)
		p.captions[i] = s.engine.Layout(typography.Request{
			Width:    band.W,
			Height:   band.H,
			Title:    sr.Caption,
			MaxLines: sr.MaxLines,
			Anchor:   typography.AnchorBottom,
		})
	}
	return p, nil
}

// prepareSlides fetches every source and rasterizes every caption concurrently.
func (s *VideoService) prepareSlides(ctx context.Context, ws *storage.Workspace, p *plan) ([]filtergraph.Slide, error) {
	slides := make([]filtergraph.Slide, len(p.req.Slides))
	g, gctx := errgroup.WithContext(ctx)

	for i, sr := range p.req.Slides {

		g.Go(func() error {
			data, err := s.fetcher.Fetch(gctx, sr.Source)
			if err != nil {
				return err
			}
			kind, ext := detectKind(sr.Source, data)
			file, err := ws.Save(gctx, fmt.Sprintf("slide_%d%s", i, ext), bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("store slide %d: %w", i, err)
			}
			slides[i].Path = file
			slides[i].Kind = kind

			if kind == filtergraph.SourceVideo {
				info, err := s.prober.Probe(gctx, file)
				if err != nil {
					return &failure.FetchError{Ref: sr.Source, Err: fmt.Errorf("probe video: %w", err)}
				}
				if !info.HasVideo {
					return &failure.FetchError{Ref: sr.Source, Err: fmt.Errorf("source has no video stream")}
				}
				slides[i].HasAudio = info.HasAudio
			}
			return nil
		})

		layout := p.captions[i]
		if layout.Empty() {
			continue
		}
		g.Go(func() error {
			img, err := s.rasterizer.Rasterize(layout)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := raster.EncodePNG(&buf, img); err != nil {
				return &failure.RasterizationError{Err: err}
			}
			file, err := ws.Save(gctx, fmt.Sprintf("caption_%d.png", i), &buf)
			if err != nil {
				return fmt.Errorf("store caption %d: %w", i, err)
			}
			slides[i].CaptionPath = file
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slides, nil
}

func (s *VideoService) synthesize(p *plan, slides []filtergraph.Slide, outPath string) (*filtergraph.Graph, error) {
	return filtergraph.Synthesize(filtergraph.Request{
		Slides:       slides,
		Trajectories: p.trajectories,
		Plan:         p.timing,
		Transition:   p.transition,
		Output:       p.output,
		FrameRate:    s.profile.FrameRate,
		Caption:      p.placement,
		Encoder:      s.profile.Encoder,
		OutputPath:   outPath,
	})
}

// detectKind sniffs the fetched bytes, falling back to the reference
// extension, and returns the file extension the encoder should see.
func detectKind(ref string, data []byte) (filtergraph.SourceKind, string) {
	ct, _, _ := strings.Cut(http.DetectContentType(data), ";")
	if ext, ok := sniffedExtensions[ct]; ok {
		if strings.HasPrefix(ct, "video/") {
			return filtergraph.SourceVideo, ext
		}
		return filtergraph.SourceImage, ext
	}

	kind := kindFromExtension(ref)
	ext := strings.ToLower(path.Ext(refPath(ref)))
	switch {
	case ext != "" && len(ext) <= 5:
		return kind, ext
	case kind == filtergraph.SourceVideo:
		return kind, ".mp4"
	default:
		return kind, ".jpg"
	}
}

func kindFromExtension(ref string) filtergraph.SourceKind {
	if videoExtensions[strings.ToLower(path.Ext(refPath(ref)))] {
		return filtergraph.SourceVideo
	}
	return filtergraph.SourceImage
}

// refPath drops any query or fragment from a reference.
func refPath(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}
