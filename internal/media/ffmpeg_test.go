package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maauso/reelcard-api/internal/failure"
	"github.com/maauso/reelcard-api/internal/filtergraph"
	"github.com/maauso/reelcard-api/internal/motion"
	"github.com/maauso/reelcard-api/internal/timing"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

func skipIfNoShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found in PATH, skipping test")
	}
	return sh
}

// createTestImage creates a solid color image using ffmpeg.
func createTestImage(t *testing.T, path string, width, height int, color string) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=%dx%d:d=1", color, width, height),
		"-frames:v", "1",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test image: %v\noutput: %s", err, output)
	}
}

func TestNewFFmpegExecutor(t *testing.T) {
	t.Run("default path", func(t *testing.T) {
		e := NewFFmpegExecutor("")
		if e.ffmpegPath != "ffmpeg" {
			t.Errorf("expected default path 'ffmpeg', got %q", e.ffmpegPath)
		}
		if e.stderrLimit != DefaultStderrLimit {
			t.Errorf("expected default stderr limit, got %d", e.stderrLimit)
		}
	})

	t.Run("custom options", func(t *testing.T) {
		e := NewFFmpegExecutor("/usr/local/bin/ffmpeg", WithTimeout(time.Minute), WithStderrLimit(64))
		if e.ffmpegPath != "/usr/local/bin/ffmpeg" {
			t.Errorf("expected custom path, got %q", e.ffmpegPath)
		}
		if e.timeout != time.Minute || e.stderrLimit != 64 {
			t.Errorf("options not applied: timeout=%s limit=%d", e.timeout, e.stderrLimit)
		}
	})
}

func TestExecute_NonZeroExit(t *testing.T) {
	sh := skipIfNoShell(t)
	e := NewFFmpegExecutor(sh)

	err := e.Execute(context.Background(), []string{"-c", "echo boom >&2; exit 3"})

	var execErr *failure.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if execErr.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", execErr.ExitCode)
	}
	if execErr.Stderr != "boom\n" {
		t.Errorf("expected stderr %q, got %q", "boom\n", execErr.Stderr)
	}
	if execErr.TimedOut {
		t.Error("expected TimedOut to be false")
	}
	if failure.Code(err) != failure.CodeEncodingFailed {
		t.Errorf("unexpected code %s", failure.Code(err))
	}
}

func TestExecute_BoundedStderr(t *testing.T) {
	sh := skipIfNoShell(t)
	e := NewFFmpegExecutor(sh, WithStderrLimit(16))

	err := e.Execute(context.Background(), []string{"-c", "i=0; while [ $i -lt 200 ]; do echo noise >&2; i=$((i+1)); done; echo FATAL-END >&2; exit 1"})

	var execErr *failure.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if !strings.HasSuffix(execErr.Stderr, "FATAL-END\n") {
		t.Errorf("expected stderr tail to end with the last line, got %q", execErr.Stderr)
	}
	if got := len(strings.TrimPrefix(execErr.Stderr, "…")); got != 16 {
		t.Errorf("expected 16 bytes of stderr, got %d", got)
	}
}

func TestExecute_Timeout(t *testing.T) {
	sh := skipIfNoShell(t)
	e := NewFFmpegExecutor(sh, WithTimeout(100*time.Millisecond))

	err := e.Execute(context.Background(), []string{"-c", "exec sleep 5"})

	var execErr *failure.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if !execErr.TimedOut {
		t.Error("expected TimedOut to be true")
	}
	if failure.Code(err) != failure.CodeEncodingTimeout {
		t.Errorf("unexpected code %s", failure.Code(err))
	}
}

func TestExecute_CallerCancelled(t *testing.T) {
	sh := skipIfNoShell(t)
	e := NewFFmpegExecutor(sh)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Execute(ctx, []string{"-c", "sleep 5"})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExecute_MissingBinary(t *testing.T) {
	e := NewFFmpegExecutor(filepath.Join(t.TempDir(), "no-such-ffmpeg"))

	err := e.Execute(context.Background(), []string{"-version"})

	if !errors.Is(err, failure.ErrExecution) {
		t.Errorf("expected ErrExecution, got %v", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tests := []struct {
		name   string
		limit  int
		writes []string
		want   string
	}{
		{"under limit", 10, []string{"abc", "def"}, "abcdef"},
		{"exact limit", 6, []string{"abc", "def"}, "abcdef"},
		{"rolls over", 4, []string{"abc", "def"}, "…cdef"},
		{"single oversized write", 3, []string{"abcdef"}, "…def"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTailBuffer(tt.limit)
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				if err != nil || n != len(w) {
					t.Fatalf("write %q: n=%d err=%v", w, n, err)
				}
			}
			if got := b.String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestExecute_SynthesizedReel(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	out := motion.Size{W: 320, H: 568}
	fps := 15
	durations := []float64{2, 2}

	slides := make([]filtergraph.Slide, len(durations))
	trajectories := make([]motion.Trajectory, len(durations))
	mp := motion.DefaultParams()
	for i, d := range durations {
		path := filepath.Join(tmpDir, fmt.Sprintf("src%d.png", i))
		createTestImage(t, path, 400, 300, []string{"red", "blue"}[i])
		slides[i] = filtergraph.Slide{Path: path}
		trajectories[i] = motion.Compute(mp, d, fps, mp.PreScale(out), out, i)
	}

	plan, err := timing.Reconcile(durations, timing.DefaultParams())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	output := filepath.Join(tmpDir, "reel.mp4")
	enc := filtergraph.DefaultEncoder()
	enc.Preset = "ultrafast"
	g, err := filtergraph.Synthesize(filtergraph.Request{
		Slides:       slides,
		Trajectories: trajectories,
		Plan:         plan,
		Output:       out,
		FrameRate:    fps,
		Encoder:      enc,
		OutputPath:   output,
	})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := NewFFmpegExecutor("", WithTimeout(time.Minute)).Execute(ctx, g.Args); err != nil {
		t.Fatalf("execute: %v", err)
	}

	info, err := NewFFprobeProber(10*time.Second).Probe(ctx, output)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.Width != out.W || info.Height != out.H {
		t.Errorf("expected %s, got %dx%d", out, info.Width, info.Height)
	}
	if info.HasAudio {
		t.Error("expected no audio stream")
	}
	if d := info.Duration; d < 2.8 || d > 3.2 {
		t.Errorf("expected duration near 3s, got %.2f", d)
	}
}
