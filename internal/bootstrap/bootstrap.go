// Package bootstrap provides dependency initialization for the Reelcard API.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maauso/reelcard-api/internal/cache"
	"github.com/maauso/reelcard-api/internal/config"
	"github.com/maauso/reelcard-api/internal/fetch"
	"github.com/maauso/reelcard-api/internal/janitor"
	"github.com/maauso/reelcard-api/internal/job"
	"github.com/maauso/reelcard-api/internal/media"
	"github.com/maauso/reelcard-api/internal/notify"
	"github.com/maauso/reelcard-api/internal/raster"
	"github.com/maauso/reelcard-api/internal/render"
	"github.com/maauso/reelcard-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Images       *render.ImageService
	Videos       *render.VideoService
	VideoService *job.ProcessVideoService
	Janitor      *janitor.Janitor
	// AssetsDir is the local publishing directory served under /assets/,
	// empty when assets go to S3.
	AssetsDir string

	closers []func() error
}

// Close releases connections opened by NewDependencies in reverse order.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
// On error every connection opened so far is closed.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}
	ready := false
	defer func() {
		if !ready {
			_ = deps.Close()
		}
	}()

	profile, err := config.LoadProfile(cfg.RenderProfile)
	if err != nil {
		return nil, err
	}

	// Initialize S3 client shared by the fetcher and the publisher
	var s3Client storage.S3API
	s3Cfg := storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Prefix:          cfg.S3Prefix,
		PublicBaseURL:   cfg.S3PublicBaseURL,
	}
	if cfg.S3Region != "" {
		client, err := storage.NewS3Client(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 client: %w", err)
		}
		s3Client = client
	}

	fetcher, err := initFetcher(cfg, s3Client, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := initPublisher(cfg, s3Client, s3Cfg, logger)
	if err != nil {
		return nil, err
	}
	if local, ok := publisher.(*storage.LocalPublisher); ok {
		deps.AssetsDir = local.Dir()
	}

	workspaces, err := storage.NewWorkspaces(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("create workspaces: %w", err)
	}

	rasterizer, err := raster.NewFontRasterizer()
	if err != nil {
		return nil, fmt.Errorf("create rasterizer: %w", err)
	}

	executor := media.NewFFmpegExecutor(cfg.FFmpegPath, media.WithTimeout(cfg.EncodeTimeout()))
	prober := media.NewFFprobeProber(cfg.FetchTimeout())

	// Image renders, optionally cached in Redis
	imageOpts := []render.ImageOption{render.WithImagePublisher(publisher)}
	if cfg.CacheEnabled() {
		redisCache, err := cache.NewRedisCache(ctx, cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL(),
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.closers = append(deps.closers, redisCache.Close)
		imageOpts = append(imageOpts, render.WithImageCache(redisCache))
		logger.Info("image cache configured", slog.String("addr", cfg.RedisAddr))
	}
	deps.Images = render.NewImageService(profile, fetcher, rasterizer, logger, imageOpts...)
	deps.Videos = render.NewVideoService(profile, fetcher, rasterizer, prober, executor, workspaces, publisher, logger)

	repo, err := initRepository(ctx, cfg, deps, logger)
	if err != nil {
		return nil, err
	}

	serviceOpts := []job.ServiceOption{job.WithMaxConcurrentRenders(cfg.MaxConcurrentRenders)}
	if cfg.MQTTEnabled() {
		notifier, err := notify.NewMQTTNotifier(cfg.MQTTURL, cfg.MQTTClientID, cfg.MQTTTopic, logger)
		if err != nil {
			return nil, fmt.Errorf("connect mqtt: %w", err)
		}
		deps.closers = append(deps.closers, func() error {
			notifier.Close()
			return nil
		})
		serviceOpts = append(serviceOpts, job.WithNotifier(notifier))
		logger.Info("job events configured",
			slog.String("broker", cfg.MQTTURL),
			slog.String("topic", cfg.MQTTTopic),
		)
	}
	deps.VideoService = job.NewProcessVideoService(repo, deps.Videos, logger, serviceOpts...)

	// Retention sweeps
	deps.Janitor = janitor.New(cfg.Retention(), logger)
	deps.Janitor.Add("workspaces", workspaces)
	deps.Janitor.Add("published assets", publisher)
	deps.Janitor.Add("finished jobs", janitor.SweepFunc(deps.VideoService.Cleanup))

	ready = true
	return deps, nil
}

// initFetcher routes http(s) always, s3:// when a region is configured and
// bare paths when SOURCE_DIR is set.
func initFetcher(cfg *config.Config, s3Client storage.S3API, logger *slog.Logger) (*fetch.Router, error) {
	router := &fetch.Router{
		HTTP: fetch.NewHTTPFetcher(
			fetch.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout()}),
			fetch.WithMaxBytes(cfg.MaxFetchBytes),
		),
	}
	if s3Client != nil {
		router.S3 = fetch.NewS3Fetcher(s3Client, cfg.MaxFetchBytes)
	}
	if cfg.SourceDir != "" {
		local, err := fetch.NewLocalFetcher(cfg.SourceDir, cfg.MaxFetchBytes)
		if err != nil {
			return nil, fmt.Errorf("create local fetcher: %w", err)
		}
		router.Local = local
	}
	logger.Info("source fetchers configured",
		slog.Bool("s3", router.S3 != nil),
		slog.Bool("local", router.Local != nil),
	)
	return router, nil
}

// initPublisher creates the appropriate publishing backend based on configuration.
func initPublisher(cfg *config.Config, s3Client storage.S3API, s3Cfg storage.S3Config, logger *slog.Logger) (storage.Publisher, error) {
	if cfg.S3Enabled() {
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return storage.NewS3Publisher(s3Client, s3Cfg), nil
	}

	local, err := storage.NewLocalPublisher(cfg.OutputDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create local publisher: %w", err)
	}
	logger.Info("local publishing configured",
		slog.String("output_dir", cfg.OutputDir),
		slog.String("base_url", cfg.PublicBaseURL),
	)
	return local, nil
}

// initRepository opens Postgres when DATABASE_URL is set and falls back to memory.
func initRepository(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (job.Repository, error) {
	if !cfg.PostgresEnabled() {
		logger.Info("in-memory job store configured")
		return job.NewMemoryRepository(), nil
	}
	repo, err := job.NewPostgresRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	deps.closers = append(deps.closers, repo.Close)
	logger.Info("postgres job store configured")
	return repo, nil
}
