// Package motion computes Ken Burns pan/zoom trajectories for still slides
// and renders them as ffmpeg filter expressions.
package motion

import (
	"fmt"
	"math"
	"strconv"
)

// Params holds the engine constants driving every trajectory.
type Params struct {
	ZoomStart      float64 `yaml:"zoom_start"`
	ZoomStep       float64 `yaml:"zoom_step"` // zoom increment per frame
	ZoomMax        float64 `yaml:"zoom_max"`
	PanStep        float64 `yaml:"pan_step"` // pre-scale pixels per frame
	PreScaleFactor float64 `yaml:"pre_scale_factor"`
}

// DefaultParams returns the trajectory constants used when no render profile overrides them.
func DefaultParams() Params {
	return Params{
		ZoomStart:      1.0,
		ZoomStep:       0.0006,
		ZoomMax:        1.5,
		PanStep:        1.5,
		PreScaleFactor: 1.2,
	}
}

// Size is a canvas size in pixels.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.W, s.H) }

// PreScale returns the oversized canvas a slide is scaled to before cropping,
// rounded to even dimensions as required by yuv420p.
func (p Params) PreScale(output Size) Size {
	return Size{
		W: even(float64(output.W) * p.PreScaleFactor),
		H: even(float64(output.H) * p.PreScaleFactor),
	}
}

// Direction is the horizontal pan direction of a slide.
type Direction int

const (
	LeftToRight Direction = iota
	RightToLeft
)

func (d Direction) String() string {
	if d == RightToLeft {
		return "right_to_left"
	}
	return "left_to_right"
}

// Trajectory is the pan/zoom plan for one slide.
type Trajectory struct {
	PreScale  Size      `json:"pre_scale"`
	Output    Size      `json:"output"`
	FrameRate int       `json:"frame_rate"`
	Frames    int       `json:"frames"`
	ZoomStart float64   `json:"zoom_start"`
	ZoomStep  float64   `json:"zoom_step"`
	ZoomMax   float64   `json:"zoom_max"`
	Direction Direction `json:"-"`
	PanStep   float64   `json:"pan_step"`
	PanStart  float64   `json:"pan_start"` // x at frame 0
	PanMax    int       `json:"pan_max"`
	OffsetY   int       `json:"offset_y"`
}

// Compute derives the trajectory of the slide at slideIndex. The first slide
// pans left to right and every later slide pans right to left, so adjacent
// slides meet with opposite motion.
func Compute(p Params, duration float64, frameRate int, preScale, output Size, slideIndex int) Trajectory {
	frames := max(1, int(math.Round(duration*float64(frameRate))))
	panMax := max(0, preScale.W-output.W)

	t := Trajectory{
		PreScale:  preScale,
		Output:    output,
		FrameRate: frameRate,
		Frames:    frames,
		ZoomStart: p.ZoomStart,
		ZoomStep:  p.ZoomStep,
		ZoomMax:   p.ZoomMax,
		PanStep:   p.PanStep,
		PanMax:    panMax,
		OffsetY:   max(0, (preScale.H-output.H)/2),
	}
	if slideIndex > 0 {
		t.Direction = RightToLeft
		t.PanStart = clamp(float64(frames-1)*p.PanStep, 0, float64(panMax))
	}
	return t
}

// X returns the horizontal crop offset at frame f.
func (t Trajectory) X(f int) float64 {
	if t.Direction == RightToLeft {
		return clamp(t.PanStart-float64(f)*t.PanStep, 0, float64(t.PanMax))
	}
	return clamp(float64(f)*t.PanStep, 0, float64(t.PanMax))
}

// Zoom returns the zoom factor at frame f.
func (t Trajectory) Zoom(f int) float64 {
	z := t.ZoomStart + t.ZoomStep*float64(f)
	if t.ZoomMax > 0 && z > t.ZoomMax {
		return t.ZoomMax
	}
	return z
}

// XExpr is X as a crop expression of the frame number n.
func (t Trajectory) XExpr() string {
	if t.Direction == RightToLeft {
		return fmt.Sprintf("max(%s-n*%s,0)", num(t.PanStart), num(t.PanStep))
	}
	return fmt.Sprintf("min(n*%s,%d)", num(t.PanStep), t.PanMax)
}

// ZoomExpr is Zoom as a zoompan expression of the output frame number on.
func (t Trajectory) ZoomExpr() string {
	expr := fmt.Sprintf("%s+%s*on", num(t.ZoomStart), num(t.ZoomStep))
	if t.ZoomMax > 0 {
		return fmt.Sprintf("min(%s,%s)", expr, num(t.ZoomMax))
	}
	return expr
}

// Filter renders the trajectory as a filter chain for a looped still image:
// cover-scale to the pre-scale canvas, a per-frame pan crop, then a centered
// zoom at the output size and frame rate.
func (t Trajectory) Filter() string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,"+
			"crop=%d:%d:x='%s':y=%d,"+
			"zoompan=z='%s':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=1:s=%s:fps=%d,"+
			"setsar=1,format=yuv420p",
		t.PreScale.W, t.PreScale.H, t.PreScale.W, t.PreScale.H,
		t.Output.W, t.Output.H, t.XExpr(), t.OffsetY,
		t.ZoomExpr(), t.Output, t.FrameRate,
	)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func even(v float64) int {
	n := int(math.Round(v))
	return n - n%2
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
