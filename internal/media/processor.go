// Package media runs the external ffmpeg encoder and probes source media.
package media

import "context"

// Executor runs the external encoder with a synthesized argument vector.
// Implementations must bound captured diagnostic output and must not retry.
type Executor interface {
	// Execute runs the encoder and returns a *failure.ExecutionError on a
	// non-zero exit or timeout.
	Execute(ctx context.Context, args []string) error
}

// Info describes a probed media file.
type Info struct {
	Duration float64
	HasAudio bool
	HasVideo bool
	Width    int
	Height   int
}

// Prober inspects media files.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}
