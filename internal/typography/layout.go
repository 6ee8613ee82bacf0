// Package typography computes deterministic caption layouts for fixed
// canvases. Text width is estimated from an average glyph width heuristic
// rather than measured font metrics.
package typography

import (
	"math"
)

// Anchor selects how caption lines are positioned vertically.
type Anchor int

const (
	// AnchorTop stacks lines downward from the top padding (still images).
	AnchorTop Anchor = iota
	// AnchorBottom stacks lines upward so the last line sits above the bottom padding (video captions).
	AnchorBottom
)

// String returns the anchor name used in render profiles.
func (a Anchor) String() string {
	if a == AnchorBottom {
		return "bottom"
	}
	return "top"
}

// Params holds the empirically tuned layout constants.
type Params struct {
	TitleRatio         float64 `yaml:"title_ratio"`
	AttributionRatio   float64 `yaml:"attribution_ratio"`
	CharWidthFactor    float64 `yaml:"char_width_factor"`
	SidePadding        int     `yaml:"side_padding"`
	TopPaddingRatio    float64 `yaml:"top_padding_ratio"`
	BottomPaddingRatio float64 `yaml:"bottom_padding_ratio"`
	LineHeightFactor   float64 `yaml:"line_height_factor"`
	StrokeFactor       float64 `yaml:"stroke_factor"`
	MinStroke          int     `yaml:"min_stroke"`
	MinCharsPerLine    int     `yaml:"min_chars_per_line"`
}

// DefaultParams returns the layout constants used when no render profile overrides them.
func DefaultParams() Params {
	return Params{
		TitleRatio:         0.065,
		AttributionRatio:   0.028,
		CharWidthFactor:    0.60,
		SidePadding:        60,
		TopPaddingRatio:    0.08,
		BottomPaddingRatio: 0.08,
		LineHeightFactor:   1.2,
		StrokeFactor:       0.08,
		MinStroke:          2,
		MinCharsPerLine:    10,
	}
}

// Request describes one caption to lay out.
type Request struct {
	Width       int
	Height      int
	Title       string
	Attribution string
	MaxLines    int
	Anchor      Anchor
}

// Line is one positioned line of text. X is the horizontal center and Y the baseline.
type Line struct {
	Text string `json:"text"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// Layout is the resolved rendering plan for one caption.
type Layout struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Anchor       Anchor `json:"-"`
	Lines        []Line `json:"lines"`
	FontSize     int    `json:"font_size"`
	LineHeight   int    `json:"line_height"`
	StrokeWidth  int    `json:"stroke_width"`
	CharsPerLine int    `json:"chars_per_line"`
	Truncated    bool   `json:"truncated"`

	// Attribution is nil when no attribution text was supplied.
	Attribution         *Line `json:"attribution,omitempty"`
	AttributionFontSize int   `json:"attribution_font_size"`
	AttributionStroke   int   `json:"attribution_stroke"`
}

// Empty reports whether the layout has nothing to draw.
func (l Layout) Empty() bool {
	return len(l.Lines) == 0 && l.Attribution == nil
}

// Engine lays out captions with a fixed set of parameters. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	params Params
}

// NewEngine creates an Engine with the given parameters.
func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

// Params returns the engine's layout constants.
func (e *Engine) Params() Params {
	return e.params
}

// FontSize returns the title font size for a canvas.
func (e *Engine) FontSize(width, height int) int {
	return scaled(width, height, e.params.TitleRatio)
}

// CharsPerLine returns the estimated character budget per line for a font size.
func (e *Engine) CharsPerLine(width, fontSize int) int {
	if fontSize <= 0 {
		return e.params.MinCharsPerLine
	}
	usable := float64(width - 2*e.params.SidePadding)
	n := int(math.Floor(usable / (float64(fontSize) * e.params.CharWidthFactor)))
	return max(e.params.MinCharsPerLine, n)
}

// Layout wraps, truncates and positions the request's text.
func (e *Engine) Layout(req Request) Layout {
	p := e.params
	fontSize := e.FontSize(req.Width, req.Height)
	budget := e.CharsPerLine(req.Width, fontSize)

	out := Layout{
		Width:        req.Width,
		Height:       req.Height,
		Anchor:       req.Anchor,
		FontSize:     fontSize,
		LineHeight:   round(float64(fontSize) * p.LineHeightFactor),
		StrokeWidth:  max(p.MinStroke, round(float64(fontSize)*p.StrokeFactor)),
		CharsPerLine: budget,
	}

	attrText := ""
	if req.Attribution != "" {
		out.AttributionFontSize = scaled(req.Width, req.Height, p.AttributionRatio)
		out.AttributionStroke = max(1, round(float64(out.AttributionFontSize)*p.StrokeFactor))
		attrText, _ = Truncate(req.Attribution, e.CharsPerLine(req.Width, out.AttributionFontSize))
	}
	attrLineHeight := round(float64(out.AttributionFontSize) * p.LineHeightFactor)

	attrSpace := 0
	if attrText != "" {
		attrSpace = attrLineHeight
		if req.Anchor != AnchorBottom {
			attrSpace += out.AttributionFontSize / 2
		}
	}
	maxLines := min(req.MaxLines, e.capacity(req.Height, fontSize, out.LineHeight, attrSpace))

	texts, truncated := Wrap(req.Title, budget, maxLines)
	out.Truncated = truncated

	centerX := req.Width / 2
	out.Lines = make([]Line, 0, len(texts))

	switch req.Anchor {
	case AnchorBottom:
		bottom := req.Height - round(float64(req.Height)*p.BottomPaddingRatio)
		if attrText != "" {
			out.Attribution = &Line{Text: attrText, X: centerX, Y: bottom}
			bottom -= attrLineHeight
		}
		for i, t := range texts {
			y := bottom - (len(texts)-1-i)*out.LineHeight
			out.Lines = append(out.Lines, Line{Text: t, X: centerX, Y: y})
		}
	default:
		y := round(float64(req.Height)*p.TopPaddingRatio) + fontSize
		for i, t := range texts {
			out.Lines = append(out.Lines, Line{Text: t, X: centerX, Y: y + i*out.LineHeight})
		}
		if attrText != "" {
			attrY := round(float64(req.Height)*p.TopPaddingRatio) + out.AttributionFontSize
			if n := len(out.Lines); n > 0 {
				attrY = out.Lines[n-1].Y + attrLineHeight + out.AttributionFontSize/2
			}
			out.Attribution = &Line{Text: attrText, X: centerX, Y: attrY}
		}
	}

	return out
}

// capacity returns how many lines of lineHeight fit between the paddings
// after reserving attrSpace, never less than one.
func (e *Engine) capacity(height, fontSize, lineHeight, attrSpace int) int {
	if lineHeight <= 0 {
		return 1
	}
	top := round(float64(height) * e.params.TopPaddingRatio)
	bottom := round(float64(height) * e.params.BottomPaddingRatio)
	avail := height - top - bottom - attrSpace - fontSize
	if avail < 0 {
		return 1
	}
	return avail/lineHeight + 1
}

func scaled(width, height int, ratio float64) int {
	return round(float64(min(width, height)) * ratio)
}

func round(v float64) int {
	return int(math.Round(v))
}
