package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ErrFFprobeExecution is returned when ffprobe fails.
var ErrFFprobeExecution = errors.New("ffprobe execution failed")

// FFprobeProber implements Prober with ffprobe through ffmpeg-go.
type FFprobeProber struct {
	timeout time.Duration
}

// NewFFprobeProber creates a prober. A zero timeout means no bound.
func NewFFprobeProber(timeout time.Duration) *FFprobeProber {
	return &FFprobeProber{timeout: timeout}
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the duration, dimensions and stream layout of path.
func (p *FFprobeProber) Probe(ctx context.Context, path string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, fmt.Errorf("ffprobe cancelled: %w", err)
	}

	out, err := ffmpeg.ProbeWithTimeout(path, p.timeout, ffmpeg.KwArgs{})
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrFFprobeExecution, path, err)
	}
	return parseProbe(out)
}

func parseProbe(raw string) (Info, error) {
	var data probeOutput
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info Info
	for _, s := range data.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
		case "video":
			if !info.HasVideo {
				info.HasVideo = true
				info.Width, info.Height = s.Width, s.Height
				info.Duration = parseSeconds(s.Duration)
			}
		}
	}

	// Stream duration is missing for some containers
	if d := parseSeconds(data.Format.Duration); d > 0 && info.Duration == 0 {
		info.Duration = d
	}
	return info, nil
}

func parseSeconds(s string) float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return d
}
