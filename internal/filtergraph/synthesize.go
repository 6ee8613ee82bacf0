package filtergraph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/maauso/reelcard-api/internal/failure"
	"github.com/maauso/reelcard-api/internal/motion"
	"github.com/maauso/reelcard-api/internal/timing"
)

// Transition is a supported crossfade kind.
type Transition string

// TransitionFade is the only supported transition.
const TransitionFade Transition = "fade"

// ParseTransition validates a requested transition name. Empty means fade.
func ParseTransition(s string) (Transition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(TransitionFade):
		return TransitionFade, nil
	default:
		return "", failure.Validation("transition", "unsupported transition %q, only %q is available", s, TransitionFade)
	}
}

// SourceKind tells whether a slide source is a still image or a video clip.
type SourceKind int

const (
	SourceImage SourceKind = iota
	SourceVideo
)

func (k SourceKind) String() string {
	if k == SourceVideo {
		return "video"
	}
	return "image"
}

// Role is a slide's position within the reel.
type Role string

const (
	RoleOnly   Role = "only"
	RoleFirst  Role = "first"
	RoleMiddle Role = "middle"
	RoleLast   Role = "last"
)

// RoleOf returns the role of slide i among n slides.
func RoleOf(i, n int) Role {
	switch {
	case n == 1:
		return RoleOnly
	case i == 0:
		return RoleFirst
	case i == n-1:
		return RoleLast
	default:
		return RoleMiddle
	}
}

// Slide is one fetched slide ready for synthesis.
type Slide struct {
	Path     string
	Kind     SourceKind
	HasAudio bool
	// CaptionPath is the rasterized caption layer, empty when the slide has no caption.
	CaptionPath string
}

// Placement is where caption layers are overlaid on each frame.
type Placement struct {
	X int
	Y int
}

// Request carries everything Synthesize needs for one job.
type Request struct {
	Slides       []Slide
	Trajectories []motion.Trajectory
	Plan         timing.Plan
	Transition   Transition
	Output       motion.Size
	FrameRate    int
	Caption      Placement
	Encoder      Encoder
	OutputPath   string
}

// Synthesize builds, validates and serializes the pipeline for req.
func Synthesize(req Request) (*Graph, error) {
	n := len(req.Slides)
	if n == 0 {
		return nil, &failure.GraphConstructionError{Kind: failure.KindMissingOutput, Msg: "no slides"}
	}
	if len(req.Trajectories) != n || len(req.Plan.Durations) != n || len(req.Plan.Offsets) != n-1 {
		return nil, &failure.GraphConstructionError{
			Kind: failure.KindMismatchedInputs,
			Msg: fmt.Sprintf("%d slides, %d trajectories, %d durations, %d offsets",
				n, len(req.Trajectories), len(req.Plan.Durations), len(req.Plan.Offsets)),
		}
	}
	if req.Transition == "" {
		req.Transition = TransitionFade
	}

	g := &Graph{
		SlideCount: n,
		Offsets:    append([]float64(nil), req.Plan.Offsets...),
		Total:      req.Plan.Total,
	}

	// Slide inputs come first so slide i is input i; caption layers follow.
	for i, s := range req.Slides {
		g.Inputs = append(g.Inputs, slideInput(s, req.Plan.Durations[i], req.FrameRate))
	}

	video := make([]Pad, n)
	for i, s := range req.Slides {
		d := req.Plan.Durations[i]
		pad := Pad(fmt.Sprintf("v%d", i))
		role := RoleOf(i, n)
		if s.Kind == SourceVideo {
			g.Stages = append(g.Stages, Stage{
				Kind:    StageClip,
				Role:    role,
				Inputs:  []Pad{RawVideo(i)},
				Output:  pad,
				Filters: clipFilters(req.Output, req.FrameRate, d),
			})
		} else {
			g.Stages = append(g.Stages, Stage{
				Kind:    StageMotion,
				Role:    role,
				Inputs:  []Pad{RawVideo(i)},
				Output:  pad,
				Filters: parseChain(req.Trajectories[i].Filter()),
			})
		}

		if s.CaptionPath != "" {
			g.Inputs = append(g.Inputs, Input{Path: s.CaptionPath})
			captioned := Pad(fmt.Sprintf("v%dcap", i))
			g.Stages = append(g.Stages, Stage{
				Kind:   StageCaption,
				Inputs: []Pad{pad, RawVideo(len(g.Inputs) - 1)},
				Output: captioned,
				Filters: []Filter{{
					Name: "overlay",
					Args: fmt.Sprintf("x=%d:y=%d:format=auto", req.Caption.X, req.Caption.Y),
				}},
			})
			pad = captioned
		}
		video[i] = pad
	}

	prev := video[0]
	for k := 1; k < n; k++ {
		out := Pad(fmt.Sprintf("xf%d", k))
		g.Stages = append(g.Stages, Stage{
			Kind:   StageCrossfade,
			Inputs: []Pad{prev, video[k]},
			Output: out,
			Filters: []Filter{{
				Name: "xfade",
				Args: fmt.Sprintf("transition=%s:duration=%s:offset=%s",
					req.Transition, num(req.Plan.Transition), num(req.Plan.Offsets[k-1])),
			}},
		})
		prev = out
	}

	g.VideoOut = "vout"
	g.Stages = append(g.Stages, Stage{
		Kind:    StageFinalVideo,
		Inputs:  []Pad{prev},
		Output:  g.VideoOut,
		Filters: []Filter{{Name: "format", Args: "yuv420p"}},
	})

	if hasAudio(req.Slides) {
		g.AudioOut = synthesizeAudio(g, req)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	g.Args = buildArgs(g, req.Encoder, req.FrameRate, req.OutputPath)
	return g, nil
}

// synthesizeAudio appends one normalized audio pad per slide, silence for
// slides without audio, chained with acrossfades of the transition length.
// The mix is fitted to Plan.Total when offsets were clamped.
func synthesizeAudio(g *Graph, req Request) Pad {
	rate := req.Encoder.SampleRate
	n := len(req.Slides)
	audio := make([]Pad, n)
	for i, s := range req.Slides {
		d := num(req.Plan.Durations[i])
		audio[i] = Pad(fmt.Sprintf("a%d", i))
		if s.HasAudio {
			g.Stages = append(g.Stages, Stage{
				Kind:   StageAudio,
				Inputs: []Pad{RawAudio(i)},
				Output: audio[i],
				Filters: []Filter{
					{Name: "aresample", Args: strconv.Itoa(rate)},
					{Name: "aformat", Args: "sample_fmts=fltp:channel_layouts=stereo"},
					{Name: "apad", Args: "whole_dur=" + d},
					{Name: "atrim", Args: "duration=" + d},
					{Name: "asetpts", Args: "PTS-STARTPTS"},
				},
			})
			continue
		}
		g.Stages = append(g.Stages, Stage{
			Kind:   StageSilence,
			Output: audio[i],
			Filters: []Filter{
				{Name: "anullsrc", Args: fmt.Sprintf("channel_layout=stereo:sample_rate=%d", rate)},
				{Name: "atrim", Args: "duration=" + d},
				{Name: "aformat", Args: "sample_fmts=fltp:channel_layouts=stereo"},
			},
		})
	}

	prev := audio[0]
	for k := 1; k < n; k++ {
		out := Pad(fmt.Sprintf("axf%d", k))
		g.Stages = append(g.Stages, Stage{
			Kind:   StageAudioFade,
			Inputs: []Pad{prev, audio[k]},
			Output: out,
			Filters: []Filter{{
				Name: "acrossfade",
				Args: fmt.Sprintf("d=%s:c1=tri:c2=tri", num(req.Plan.Transition)),
			}},
		})
		prev = out
	}
	if n == 1 {
		return audio[0]
	}
	if len(req.Plan.Clamped) > 0 {
		// Clamped offsets shorten the video timeline; the crossfade chain
		// still spans every slide, so pad or cut the mix to Plan.Total.
		total := num(req.Plan.Total)
		g.Stages = append(g.Stages, Stage{
			Kind:   StageAudio,
			Inputs: []Pad{prev},
			Output: "afit",
			Filters: []Filter{
				{Name: "apad", Args: "whole_dur=" + total},
				{Name: "atrim", Args: "duration=" + total},
				{Name: "asetpts", Args: "PTS-STARTPTS"},
			},
		})
		return "afit"
	}
	return prev
}

func slideInput(s Slide, duration float64, fps int) Input {
	if s.Kind == SourceVideo {
		return Input{Path: s.Path}
	}
	return Input{
		Path: s.Path,
		Options: []string{
			"-loop", "1",
			"-framerate", strconv.Itoa(fps),
			"-t", num(duration),
		},
	}
}

// clipFilters fits a video clip to the output canvas with a centered crop,
// holds its last frame when it is shorter than the slide, and trims it to the
// slide duration.
func clipFilters(out motion.Size, fps int, duration float64) []Filter {
	d := num(duration)
	return []Filter{
		{Name: "scale", Args: fmt.Sprintf("%d:%d:force_original_aspect_ratio=increase", out.W, out.H)},
		{Name: "crop", Args: fmt.Sprintf("%d:%d", out.W, out.H)},
		{Name: "fps", Args: strconv.Itoa(fps)},
		{Name: "tpad", Args: "stop_mode=clone:stop_duration=" + d},
		{Name: "trim", Args: "duration=" + d},
		{Name: "setpts", Args: "PTS-STARTPTS"},
		{Name: "setsar", Args: "1"},
		{Name: "format", Args: "yuv420p"},
	}
}

// parseChain splits a comma-separated filter chain, ignoring commas inside
// single-quoted expressions.
func parseChain(chain string) []Filter {
	var filters []Filter
	var cur strings.Builder
	quoted := false
	flush := func() {
		name, args, _ := strings.Cut(cur.String(), "=")
		filters = append(filters, Filter{Name: name, Args: args})
		cur.Reset()
	}
	for _, r := range chain {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == ',' && !quoted:
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		flush()
	}
	return filters
}

func hasAudio(slides []Slide) bool {
	for _, s := range slides {
		if s.HasAudio {
			return true
		}
	}
	return false
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
