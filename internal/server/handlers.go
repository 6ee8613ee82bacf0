package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/reelcard-api/internal/failure"
	"github.com/maauso/reelcard-api/internal/job"
	"github.com/maauso/reelcard-api/internal/job/id"
	"github.com/maauso/reelcard-api/internal/render"
	"github.com/maauso/reelcard-api/internal/sysinfo"
)

// maxBodyBytes bounds request bodies; sources are passed by reference.
const maxBodyBytes = 1 << 20

// ImageRenderer renders and publishes single cards.
type ImageRenderer interface {
	Render(ctx context.Context, requestID string, req render.ImageRequest) (*render.ImageResult, error)
	Publish(ctx context.Context, res *render.ImageResult) (string, error)
}

// VideoPreviewer plans a reel without fetching or encoding anything.
type VideoPreviewer interface {
	Preview(req render.VideoRequest) (*render.Preview, error)
}

// VideoJobs creates and runs asynchronous reel jobs.
type VideoJobs interface {
	CreateJob(ctx context.Context, input job.ProcessVideoInput) (*job.Job, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ProcessExistingJob(ctx context.Context, jobID string, input job.ProcessVideoInput) (*job.ProcessVideoOutput, error)
}

// Services groups the use cases exposed over HTTP.
type Services struct {
	Images   ImageRenderer
	Previews VideoPreviewer
	Jobs     VideoJobs
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	services           Services
	validator          *validator.Validate
	logger             *slog.Logger
	systemInfo         func(context.Context) (sysinfo.Snapshot, error)
	enableAsyncProcess bool
	background         sync.WaitGroup
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateVideo only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithSystemInfo adds a host snapshot to /health responses.
func WithSystemInfo(collect func(context.Context) (sysinfo.Snapshot, error)) HandlerOption {
	return func(h *Handlers) {
		h.systemInfo = collect
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(services Services, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		services:           services,
		validator:          newValidator(),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Wait blocks until background renders started by CreateVideo finish or ctx ends.
func (h *Handlers) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.systemInfo != nil {
		snap, err := h.systemInfo(r.Context())
		if err != nil {
			h.logger.Debug("system info incomplete", slog.String("error", err.Error()))
		}
		resp.System = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// RenderImage handles POST /v1/images requests.
// The JPEG is returned directly unless ?publish=true asks for a hosted URL.
func (h *Handlers) RenderImage(w http.ResponseWriter, r *http.Request) {
	var req CreateImageRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	requestID := RequestIDFromContext(r.Context())
	res, err := h.services.Images.Render(r.Context(), requestID, render.ImageRequest{
		Source:         req.Source,
		Title:          req.Title,
		Attribution:    req.Attribution,
		AttributionURL: req.AttributionURL,
		Width:          req.Width,
		Height:         req.Height,
		MaxLines:       req.MaxLines,
	})
	if err != nil {
		h.writeFailure(w, r, "image render failed", err)
		return
	}

	cacheStatus := "MISS"
	if res.Cached {
		cacheStatus = "HIT"
	}
	w.Header().Set("X-Cache", cacheStatus)

	if publish, _ := strconv.ParseBool(r.URL.Query().Get("publish")); publish {
		url, err := h.services.Images.Publish(r.Context(), res)
		if err != nil {
			h.writeFailure(w, r, "image publish failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, PublishedImageResponse{URL: url, Key: res.Key, Cached: res.Cached})
		return
	}

	w.Header().Set("Content-Type", render.ContentTypeJPEG)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("ETag", `"`+res.Key+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		h.logger.Warn("failed to write image response",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}

// CreateVideo handles POST /v1/videos requests.
func (h *Handlers) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req CreateVideoRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	input := job.ProcessVideoInput{
		RequestID: RequestIDFromContext(r.Context()),
		Request:   toVideoRequest(req),
	}

	// Create job first (synchronously) so invalid requests never get a record
	createdJob, err := h.services.Jobs.CreateJob(r.Context(), input)
	if err != nil {
		h.writeFailure(w, r, "failed to create job", err)
		return
	}

	// Start processing in background with a detached context
	// Use context.WithoutCancel to prevent cancellation when the request ends
	if h.enableAsyncProcess {
		h.background.Add(1)
		go func(ctx context.Context, jobID string, inp job.ProcessVideoInput) {
			defer h.background.Done()
			_, processErr := h.services.Jobs.ProcessExistingJob(ctx, jobID, inp)
			if processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("request_id", inp.RequestID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID, input)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("request_id", input.RequestID),
		slog.Int("slides", len(req.Slides)),
	)

	w.Header().Set("Location", "/v1/videos/"+createdJob.ID)
	writeJSON(w, http.StatusAccepted, CreateVideoResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// GetVideo handles GET /v1/videos/{id} requests.
func (h *Handlers) GetVideo(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}
	if !id.Valid(jobID) {
		writeError(w, r, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}

	foundJob, err := h.services.Jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, r, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, VideoResponse{
		ID:        foundJob.ID,
		Status:    string(foundJob.Status),
		Progress:  foundJob.Progress,
		Error:     foundJob.Error,
		Code:      foundJob.ErrorCode,
		URL:       foundJob.VideoURL,
		Duration:  foundJob.Duration,
		Slides:    foundJob.SlideCount,
		CreatedAt: foundJob.CreatedAt,
		UpdatedAt: foundJob.UpdatedAt,
	})
}

// PreviewVideo handles POST /v1/videos/preview requests. It returns the
// pipeline the request would run without fetching or encoding anything.
func (h *Handlers) PreviewVideo(w http.ResponseWriter, r *http.Request) {
	var req CreateVideoRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.services.Previews.Preview(toVideoRequest(req))
	if err != nil {
		h.writeFailure(w, r, "preview failed", err)
		return
	}

	resp := PreviewResponse{
		FilterComplex: p.FilterGraph,
		Args:          p.Graph.Args,
		Stages:        p.Graph.Stages,
		Offsets:       p.Plan.Offsets,
		TotalDuration: p.Plan.Total,
		Clamped:       p.Plan.Clamped,
		Trajectories:  p.Trajectories,
		Captions:      []CaptionPreviewResponse{},
	}
	for i, c := range p.Captions {
		if c == nil {
			continue
		}
		resp.Captions = append(resp.Captions, CaptionPreviewResponse{
			Slide:     i,
			X:         c.Position.X,
			Y:         c.Position.Y,
			Width:     c.Layout.Width,
			Height:    c.Layout.Height,
			FontSize:  c.Layout.FontSize,
			Lines:     c.Layout.Lines,
			Truncated: c.Layout.Truncated,
			Markup:    c.Markup,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func toVideoRequest(req CreateVideoRequest) render.VideoRequest {
	slides := make([]render.SlideRequest, len(req.Slides))
	for i, s := range req.Slides {
		slides[i] = render.SlideRequest{
			Source:   strings.TrimSpace(s.Source),
			Duration: s.Duration,
			Caption:  strings.TrimSpace(s.Caption),
			MaxLines: s.MaxLines,
		}
	}
	return render.VideoRequest{
		Slides:     slides,
		Transition: req.Transition,
		Width:      req.Width,
		Height:     req.Height,
	}
}

// decodeAndValidate parses the JSON body into dst and runs struct validation.
// It writes the error response and returns false on failure.
func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large", "BODY_TOO_LARGE")
			return false
		}
		writeError(w, r, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusBadRequest, validationMessage(err), failure.CodeValidation)
		return false
	}
	return true
}

// validationMessage lists failing fields by their JSON path.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// statusFor maps failure reason codes to HTTP statuses.
func statusFor(code string) int {
	switch code {
	case failure.CodeValidation, failure.CodeFetchFailed:
		return http.StatusBadRequest
	case failure.CodeSourceNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure reports a domain error with its reason code.
func (h *Handlers) writeFailure(w http.ResponseWriter, r *http.Request, msg string, err error) {
	code := failure.Code(err)
	status := statusFor(code)
	logAttrs := []any{
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("code", code),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, logAttrs...)
	} else {
		h.logger.Warn(msg, logAttrs...)
	}

	message := err.Error()
	if code == failure.CodeInternal {
		message = msg
	}
	writeError(w, r, status, message, code)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	})
}
