package job

import (
	"strings"
	"testing"
	"time"

	"github.com/maauso/reelcard-api/internal/job/id"
)

func TestNew(t *testing.T) {
	job := New()

	if !strings.HasPrefix(job.ID, id.Prefix) {
		t.Errorf("expected generated job ID, got %q", job.ID)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}

func TestNewWithID(t *testing.T) {
	jobID := "test-job-123"
	job := NewWithID(jobID)

	if job.ID != jobID {
		t.Errorf("expected ID %s, got %s", jobID, job.ID)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		// Valid transitions from IN_QUEUE
		{"IN_QUEUE to RUNNING", StatusInQueue, StatusRunning, false},
		{"IN_QUEUE to CANCELLED", StatusInQueue, StatusCancelled, false},
		{"IN_QUEUE to TIMED_OUT", StatusInQueue, StatusTimedOut, false},
		// Valid transitions from RUNNING
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		{"RUNNING to CANCELLED", StatusRunning, StatusCancelled, false},
		{"RUNNING to TIMED_OUT", StatusRunning, StatusTimedOut, false},
		// Invalid transitions
		{"IN_QUEUE to COMPLETED", StatusInQueue, StatusCompleted, true},
		{"IN_QUEUE to FAILED", StatusInQueue, StatusFailed, true},
		{"COMPLETED to IN_QUEUE", StatusCompleted, StatusInQueue, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to RUNNING", StatusFailed, StatusRunning, true},
		{"FAILED to COMPLETED", StatusFailed, StatusCompleted, true},
		{"CANCELLED to RUNNING", StatusCancelled, StatusRunning, true},
		{"TIMED_OUT to RUNNING", StatusTimedOut, StatusRunning, true},
		{"unknown state", Status("PAUSED"), StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("test")
			job.Status = tt.from

			err := job.TransitionTo(tt.to)

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_Start(t *testing.T) {
	job := New()
	beforeStart := time.Now()

	err := job.Start()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, job.Status)
	}
	if job.StartedAt.Before(beforeStart) {
		t.Error("expected StartedAt to be set after test start")
	}
}

func TestJob_Complete(t *testing.T) {
	job := New()
	_ = job.Start()

	err := job.Complete("https://cdn.example.com/reels/a.mp4", 13)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, job.Status)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
	if job.VideoURL != "https://cdn.example.com/reels/a.mp4" {
		t.Errorf("unexpected VideoURL %q", job.VideoURL)
	}
	if job.Duration != 13 {
		t.Errorf("expected Duration 13, got %v", job.Duration)
	}
	if job.Progress != 100 {
		t.Errorf("expected Progress 100, got %d", job.Progress)
	}
}

func TestJob_CompleteFromQueue(t *testing.T) {
	job := New()

	if err := job.Complete("https://x/a.mp4", 4); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if job.VideoURL != "" {
		t.Error("a rejected transition must not record output")
	}
}

func TestJob_Fail(t *testing.T) {
	job := New()
	_ = job.Start()

	err := job.Fail("source not found", "SOURCE_NOT_FOUND")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
	if job.Error != "source not found" {
		t.Errorf("expected error message, got %q", job.Error)
	}
	if job.ErrorCode != "SOURCE_NOT_FOUND" {
		t.Errorf("expected error code, got %q", job.ErrorCode)
	}
}

func TestJob_Cancel(t *testing.T) {
	job := New()

	if err := job.Cancel(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusCancelled {
		t.Errorf("expected status %s, got %s", StatusCancelled, job.Status)
	}
}

func TestJob_Timeout(t *testing.T) {
	job := New()
	_ = job.Start()

	if err := job.Timeout("encoder timed out", "ENCODING_TIMEOUT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusTimedOut {
		t.Errorf("expected status %s, got %s", StatusTimedOut, job.Status)
	}
	if job.ErrorCode != "ENCODING_TIMEOUT" {
		t.Errorf("expected error code, got %q", job.ErrorCode)
	}
}

func TestJob_CannotTransitionFromTerminalState(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut}
	for _, from := range terminal {
		for _, to := range []Status{StatusInQueue, StatusRunning, StatusCompleted, StatusFailed} {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				job := NewWithID("test")
				job.Status = from

				if err := job.TransitionTo(to); err != ErrInvalidTransition {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
			})
		}
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusInQueue, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
		{StatusTimedOut, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := NewWithID("test")
			job.Status = tt.status

			if got := job.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestJob_UpdateProgress(t *testing.T) {
	job := New()

	tests := []struct {
		input    int
		expected int
	}{
		{-10, 0},
		{40, 40},
		{20, 40}, // never moves backwards
		{60, 60},
		{150, 100},
	}

	for _, tt := range tests {
		job.UpdateProgress(tt.input)
		if job.Progress != tt.expected {
			t.Errorf("UpdateProgress(%d): expected %d, got %d", tt.input, tt.expected, job.Progress)
		}
	}
}

func TestJob_Clone(t *testing.T) {
	job := New()
	job.Status = StatusRunning
	job.Progress = 50
	job.RequestID = "req-1"
	job.SlideCount = 3

	clone := job.Clone()

	if clone.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, clone.ID)
	}
	if clone.Status != job.Status {
		t.Errorf("expected Status %s, got %s", job.Status, clone.Status)
	}
	if clone.Progress != job.Progress {
		t.Errorf("expected Progress %d, got %d", job.Progress, clone.Progress)
	}
	if clone.RequestID != "req-1" || clone.SlideCount != 3 {
		t.Errorf("expected request fields to be copied, got %q/%d", clone.RequestID, clone.SlideCount)
	}

	// Verify clone is independent
	clone.Status = StatusCompleted
	if job.Status == StatusCompleted {
		t.Error("modifying clone should not affect original")
	}
}

func TestJob_GetStatus_ThreadSafe(t *testing.T) {
	job := New()

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			_ = job.GetStatus()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = job.Start()
			job.UpdateProgress(i)
		}
		done <- true
	}()

	<-done
	<-done
	// If no race conditions, test passes
}
