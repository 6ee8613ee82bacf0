package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/maauso/reelcard-api/internal/failure"
)

// DefaultStderrLimit is the number of trailing stderr bytes kept for diagnostics.
const DefaultStderrLimit = 8 << 10

// waitDelay bounds how long Execute waits for stderr to drain after the process is killed.
const waitDelay = 5 * time.Second

// FFmpegExecutor implements Executor using the ffmpeg CLI.
type FFmpegExecutor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath  string
	timeout     time.Duration
	stderrLimit int
}

// ExecutorOption configures an FFmpegExecutor.
type ExecutorOption func(*FFmpegExecutor)

// WithTimeout bounds every invocation. Zero disables the bound.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *FFmpegExecutor) { e.timeout = d }
}

// WithStderrLimit sets how many trailing stderr bytes are kept.
func WithStderrLimit(n int) ExecutorOption {
	return func(e *FFmpegExecutor) {
		if n > 0 {
			e.stderrLimit = n
		}
	}
}

// NewFFmpegExecutor creates a new FFmpegExecutor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegExecutor(ffmpegPath string, opts ...ExecutorOption) *FFmpegExecutor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	e := &FFmpegExecutor{ffmpegPath: ffmpegPath, stderrLimit: DefaultStderrLimit}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs ffmpeg with args. A run exceeding the configured timeout is
// killed and reported as a timed out *failure.ExecutionError.
func (e *FFmpegExecutor) Execute(ctx context.Context, args []string) error {
	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(runCtx, e.ffmpegPath, args...)
	cmd.WaitDelay = waitDelay

	stderr := newTailBuffer(e.stderrLimit)
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	// Check if the caller cancelled rather than our own deadline firing
	if ctx.Err() != nil {
		return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
	}

	execErr := &failure.ExecutionError{
		Args:     args,
		Stderr:   stderr.String(),
		ExitCode: -1,
		Err:      err,
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		execErr.TimedOut = true
		execErr.Err = fmt.Errorf("ffmpeg exceeded %s: %w", e.timeout, runCtx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		execErr.ExitCode = exitErr.ExitCode()
	}
	return execErr
}

// tailBuffer is an io.Writer that keeps only the last limit bytes written.
// ffmpeg reports the fatal error at the end of its output.
type tailBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if len(p) >= b.limit {
		b.truncated = b.truncated || len(b.buf) > 0 || len(p) > b.limit
		b.buf = append(b.buf[:0], p[len(p)-b.limit:]...)
		return n, nil
	}
	if over := len(b.buf) + len(p) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.truncated {
		return "…" + string(b.buf)
	}
	return string(b.buf)
}
