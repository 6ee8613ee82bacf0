// Package job provides the Job aggregate for asynchronous reel renders.
// It includes the Job entity with its state machine, the repository port
// with in-memory and Postgres implementations, and the service that runs
// renders in the background.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/reelcard-api/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job was accepted and waits for processing.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the reel is being rendered.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the reel was rendered and published.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the render failed.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before it finished.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the encoder did not finish in time.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// IsTerminal reports whether s is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// Job represents one asynchronous reel render.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// RequestID correlates the job with the HTTP request that created it.
	RequestID string
	// Status is the current job state.
	Status Status
	// Progress is the percentage of completion (0-100).
	Progress int
	// Error contains the error message if the job failed.
	Error string
	// ErrorCode is the machine-readable failure reason.
	ErrorCode string
	// SlideCount is the number of slides in the reel.
	SlideCount int
	// Width is the output video width.
	Width int
	// Height is the output video height.
	Height int
	// VideoURL is where the published reel can be downloaded.
	VideoURL string
	// Duration is the reel length in seconds.
	Duration float64
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the published reel and transitions the job to COMPLETED.
func (j *Job) Complete(videoURL string, duration float64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.VideoURL = videoURL
	j.Duration = duration
	j.Progress = 100
	return nil
}

// Fail transitions the job to FAILED with an error message and reason code.
func (j *Job) Fail(errMsg, code string) error {
	return j.finishWithError(StatusFailed, errMsg, code)
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// Timeout transitions the job to TIMED_OUT with an error message and reason code.
func (j *Job) Timeout(errMsg, code string) error {
	return j.finishWithError(StatusTimedOut, errMsg, code)
}

func (j *Job) finishWithError(status Status, errMsg, code string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(status); err != nil {
		return err
	}
	j.Error = errMsg
	j.ErrorCode = code
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress sets the progress percentage (0-100). Progress never moves backwards.
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress = min(max(progress, 0), 100)
	if progress < j.Progress {
		return
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status.IsTerminal()
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		RequestID:   j.RequestID,
		Status:      j.Status,
		Progress:    j.Progress,
		Error:       j.Error,
		ErrorCode:   j.ErrorCode,
		SlideCount:  j.SlideCount,
		Width:       j.Width,
		Height:      j.Height,
		VideoURL:    j.VideoURL,
		Duration:    j.Duration,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
