package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/maauso/reelcard-api/internal/failure"
	"github.com/maauso/reelcard-api/internal/notify"
	"github.com/maauso/reelcard-api/internal/render"
)

// Renderer turns a validated video request into a published reel.
// render.VideoService is the production implementation.
type Renderer interface {
	// Validate checks the request synchronously, without touching disk or network.
	Validate(req render.VideoRequest) error
	// Render produces the reel. key names the workspace and published asset.
	Render(ctx context.Context, requestID, key string, req render.VideoRequest, progress func(int)) (*render.VideoResult, error)
}

// ProcessVideoInput contains the input parameters for video processing.
type ProcessVideoInput struct {
	// RequestID correlates logs and events with the originating HTTP request.
	RequestID string
	// Request is the reel to render.
	Request render.VideoRequest
}

// ProcessVideoOutput contains the result of video processing.
type ProcessVideoOutput struct {
	// JobID is the unique identifier for the job.
	JobID string
	// Status is the final job status.
	Status Status
	// VideoURL is where the reel was published.
	VideoURL string
	// Duration is the reel length in seconds.
	Duration float64
	// Error contains the error message if processing failed.
	Error string
	// Code is the machine-readable failure reason.
	Code string
}

// ProcessVideoService orchestrates asynchronous reel rendering: it records
// the job, runs the renderer in the background, keeps progress current in
// the repository and announces lifecycle changes through the notifier.
type ProcessVideoService struct {
	repo     Repository
	renderer Renderer
	notifier notify.Notifier
	logger   *slog.Logger
	// slots limits how many renders run at once.
	slots          *semaphore.Weighted
	maxConcurrency int
}

// ServiceOption configures optional ProcessVideoService settings.
type ServiceOption func(*ProcessVideoService)

// WithNotifier sets the notifier that receives job lifecycle events.
func WithNotifier(n notify.Notifier) ServiceOption {
	return func(s *ProcessVideoService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithMaxConcurrentRenders limits how many renders run in parallel.
// Values below 1 are ignored.
func WithMaxConcurrentRenders(n int) ServiceOption {
	return func(s *ProcessVideoService) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// NewProcessVideoService creates a new ProcessVideoService.
func NewProcessVideoService(repo Repository, renderer Renderer, logger *slog.Logger, opts ...ServiceOption) *ProcessVideoService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ProcessVideoService{
		repo:           repo,
		renderer:       renderer,
		notifier:       notify.Nop{},
		logger:         logger,
		maxConcurrency: 2,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.slots = semaphore.NewWeighted(int64(s.maxConcurrency))
	return s
}

// Validate checks a request without creating a job.
func (s *ProcessVideoService) Validate(req render.VideoRequest) error {
	return s.renderer.Validate(req)
}

// CreateJob validates the request and persists a new IN_QUEUE job.
// Invalid requests are rejected here so no job record is ever created for them.
func (s *ProcessVideoService) CreateJob(ctx context.Context, input ProcessVideoInput) (*Job, error) {
	if err := s.renderer.Validate(input.Request); err != nil {
		return nil, err
	}

	job := New()
	job.RequestID = input.RequestID
	job.SlideCount = len(input.Request.Slides)
	job.Width = input.Request.Width
	job.Height = input.Request.Height

	logger := s.jobLogger(job)
	logger.Info("creating new job",
		slog.Int("slides", job.SlideCount),
		slog.String("transition", input.Request.Transition),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		logger.Error("failed to save job", slog.String("error", err.Error()))
		return nil, fmt.Errorf("save job: %w", err)
	}

	s.notify(ctx, job, notify.EventQueued)
	return job, nil
}

// GetJob retrieves a job by ID.
func (s *ProcessVideoService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// Process creates a job and renders it synchronously.
func (s *ProcessVideoService) Process(ctx context.Context, input ProcessVideoInput) (*ProcessVideoOutput, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.ProcessExistingJob(ctx, job.ID, input)
}

// ProcessExistingJob renders a job previously created by CreateJob.
// The job always ends in a terminal state; the returned error is the render
// failure, if any.
func (s *ProcessVideoService) ProcessExistingJob(ctx context.Context, jobID string, input ProcessVideoInput) (*ProcessVideoOutput, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	logger := s.jobLogger(job)

	if err := s.slots.Acquire(ctx, 1); err != nil {
		_ = job.Cancel()
		s.save(ctx, job, logger)
		return s.output(job), fmt.Errorf("wait for render slot: %w", err)
	}
	defer s.slots.Release(1)

	if err := job.Start(); err != nil {
		return s.output(job), fmt.Errorf("start job %s: %w", jobID, err)
	}
	s.save(ctx, job, logger)
	s.notify(ctx, job, notify.EventStarted)

	started := time.Now()
	res, renderErr := s.renderer.Render(ctx, input.RequestID, job.ID, input.Request, func(p int) {
		job.UpdateProgress(p)
		s.save(ctx, job, logger)
	})

	if renderErr != nil {
		code := failure.Code(renderErr)
		msg := publicMessage(renderErr)
		var execErr *failure.ExecutionError
		if errors.As(renderErr, &execErr) && execErr.TimedOut {
			_ = job.Timeout(msg, code)
		} else {
			_ = job.Fail(msg, code)
		}
		s.save(ctx, job, logger)
		s.notify(ctx, job, notify.EventFailed)
		logger.Error("job failed",
			slog.String("status", string(job.GetStatus())),
			slog.String("code", code),
			slog.String("error", renderErr.Error()),
		)
		return s.output(job), renderErr
	}

	if err := job.Complete(res.URL, res.Duration); err != nil {
		return s.output(job), fmt.Errorf("complete job %s: %w", jobID, err)
	}
	s.save(ctx, job, logger)
	s.notify(ctx, job, notify.EventCompleted)
	logger.Info("job completed",
		slog.String("url", res.URL),
		slog.Float64("duration", res.Duration),
		slog.Duration("elapsed", time.Since(started)),
	)
	return s.output(job), nil
}

// Cleanup removes terminal jobs that finished before cutoff.
func (s *ProcessVideoService) Cleanup(ctx context.Context, cutoff time.Time) (int, error) {
	removed, err := s.repo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	if removed > 0 {
		s.logger.Info("expired jobs removed", slog.Int("count", removed), slog.Time("cutoff", cutoff))
	}
	return removed, nil
}

func (s *ProcessVideoService) jobLogger(job *Job) *slog.Logger {
	return s.logger.With(slog.String("job_id", job.ID), slog.String("request_id", job.RequestID))
}

// save persists job; failures are logged since the in-flight render is still
// the source of truth.
func (s *ProcessVideoService) save(ctx context.Context, job *Job, logger *slog.Logger) {
	if err := s.repo.Save(ctx, job); err != nil {
		logger.Error("failed to save job", slog.String("error", err.Error()))
	}
}

func (s *ProcessVideoService) notify(ctx context.Context, job *Job, eventType string) {
	snap := job.Clone()
	event := notify.Event{
		Type:      eventType,
		JobID:     snap.ID,
		RequestID: snap.RequestID,
		Status:    string(snap.Status),
		URL:       snap.VideoURL,
		Duration:  snap.Duration,
		Code:      snap.ErrorCode,
		Error:     snap.Error,
		Time:      snap.UpdatedAt.UTC(),
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.jobLogger(snap).Warn("failed to publish job event",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ProcessVideoService) output(job *Job) *ProcessVideoOutput {
	snap := job.Clone()
	return &ProcessVideoOutput{
		JobID:    snap.ID,
		Status:   snap.Status,
		VideoURL: snap.VideoURL,
		Duration: snap.Duration,
		Error:    snap.Error,
		Code:     snap.ErrorCode,
	}
}

// publicMessage keeps encoder stderr out of job records.
func publicMessage(err error) string {
	var execErr *failure.ExecutionError
	if errors.As(err, &execErr) {
		if execErr.TimedOut {
			return "encoding timed out"
		}
		return fmt.Sprintf("encoding failed with exit code %d", execErr.ExitCode)
	}
	return err.Error()
}
