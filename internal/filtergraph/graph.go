// Package filtergraph synthesizes ffmpeg filter_complex pipelines for
// multi-slide reels. A Graph is built in memory as an ordered list of stages
// connected by named pads, validated, and only then serialized to the
// textual form ffmpeg expects.
package filtergraph

import (
	"fmt"
	"strings"

	"github.com/maauso/reelcard-api/internal/failure"
)

// Pad is a named connection point between stages. Raw input pads use the
// ffmpeg stream specifier form "<input>:v" or "<input>:a".
type Pad string

// RawVideo returns the video pad of input i.
func RawVideo(i int) Pad { return Pad(fmt.Sprintf("%d:v", i)) }

// RawAudio returns the audio pad of input i.
func RawAudio(i int) Pad { return Pad(fmt.Sprintf("%d:a", i)) }

func (p Pad) String() string { return "[" + string(p) + "]" }

// Filter is one ffmpeg filter with its argument string.
type Filter struct {
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
}

func (f Filter) String() string {
	if f.Args == "" {
		return f.Name
	}
	return f.Name + "=" + f.Args
}

// Stage kinds.
const (
	StageMotion     = "motion"
	StageClip       = "clip"
	StageCaption    = "caption"
	StageCrossfade  = "crossfade"
	StageAudio      = "audio"
	StageSilence    = "silence"
	StageAudioFade  = "audio_crossfade"
	StageFinalVideo = "final_video"
)

// Stage is one filter chain consuming named pads and producing a single pad.
type Stage struct {
	Kind string `json:"kind"`
	// Role is set on per-slide source stages.
	Role    Role     `json:"role,omitempty"`
	Inputs  []Pad    `json:"inputs"`
	Output  Pad      `json:"output"`
	Filters []Filter `json:"filters"`
}

// String renders the stage as a filter_complex chain.
func (s Stage) String() string {
	var b strings.Builder
	for _, in := range s.Inputs {
		b.WriteString(in.String())
	}
	for i, f := range s.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	b.WriteString(s.Output.String())
	return b.String()
}

// Input is one ffmpeg input file with the options preceding its -i flag.
type Input struct {
	Path    string   `json:"path"`
	Options []string `json:"options,omitempty"`
}

// Graph is a synthesized pipeline. It is immutable once returned by Synthesize.
type Graph struct {
	Inputs     []Input   `json:"inputs"`
	Stages     []Stage   `json:"stages"`
	VideoOut   Pad       `json:"video_out"`
	AudioOut   Pad       `json:"audio_out,omitempty"`
	SlideCount int       `json:"slide_count"`
	Offsets    []float64 `json:"offsets"`
	Total      float64   `json:"total"`
	Args       []string  `json:"args"`
}

// FilterComplex serializes the stages in order.
func (g *Graph) FilterComplex() string {
	parts := make([]string, len(g.Stages))
	for i, s := range g.Stages {
		parts[i] = s.String()
	}
	return strings.Join(parts, ";")
}

// Validate checks the pad invariants: every stage input is a raw input pad or
// the output of an earlier stage, pad names are unique, each pad is consumed
// at most once, every intermediate pad is consumed, and the graph contains
// exactly SlideCount-1 crossfade stages.
func (g *Graph) Validate() error {
	produced := make(map[Pad]bool)
	consumed := make(map[Pad]bool)

	raw := func(p Pad) bool {
		for i := range g.Inputs {
			if p == RawVideo(i) || p == RawAudio(i) {
				return true
			}
		}
		return false
	}

	crossfades := 0
	for i, s := range g.Stages {
		for _, in := range s.Inputs {
			if !raw(in) && !produced[in] {
				return &failure.GraphConstructionError{
					Kind: failure.KindDanglingPad,
					Msg:  fmt.Sprintf("stage %d (%s) references %s before it is produced", i, s.Kind, in),
				}
			}
			if consumed[in] {
				return &failure.GraphConstructionError{
					Kind: failure.KindReusedPad,
					Msg:  fmt.Sprintf("stage %d (%s) consumes %s a second time", i, s.Kind, in),
				}
			}
			consumed[in] = true
		}
		if s.Output == "" || raw(s.Output) || produced[s.Output] {
			return &failure.GraphConstructionError{
				Kind: failure.KindDuplicatePad,
				Msg:  fmt.Sprintf("stage %d (%s) output %q is not unique", i, s.Kind, s.Output),
			}
		}
		produced[s.Output] = true
		if s.Kind == StageCrossfade {
			crossfades++
		}
	}

	if g.VideoOut == "" || !produced[g.VideoOut] {
		return &failure.GraphConstructionError{
			Kind: failure.KindMissingOutput,
			Msg:  fmt.Sprintf("video output %q is not produced", g.VideoOut),
		}
	}
	if g.AudioOut != "" && !produced[g.AudioOut] {
		return &failure.GraphConstructionError{
			Kind: failure.KindMissingOutput,
			Msg:  fmt.Sprintf("audio output %q is not produced", g.AudioOut),
		}
	}

	// Deterministic order: report the first unconsumed pad in stage order.
	for _, s := range g.Stages {
		if !consumed[s.Output] && s.Output != g.VideoOut && s.Output != g.AudioOut {
			return &failure.GraphConstructionError{
				Kind: failure.KindUnusedPad,
				Msg:  fmt.Sprintf("pad %s is never consumed", s.Output),
			}
		}
	}

	if want := max(0, g.SlideCount-1); crossfades != want {
		return &failure.GraphConstructionError{
			Kind: failure.KindTransitionCount,
			Msg:  fmt.Sprintf("%d crossfade stages for %d slides, want %d", crossfades, g.SlideCount, want),
		}
	}
	return nil
}
