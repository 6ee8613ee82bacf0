// Package raster turns caption layouts into bitmaps and composites still images.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/maauso/reelcard-api/internal/failure"
	"github.com/maauso/reelcard-api/internal/typography"
)

// ErrEmptyCanvas is returned when a layout has no drawable area.
var ErrEmptyCanvas = errors.New("raster: canvas must have positive dimensions")

var (
	fillColor   = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	strokeColor = color.RGBA{A: 0xff}
)

// Rasterizer renders a caption layout onto a transparent bitmap.
type Rasterizer interface {
	Rasterize(layout typography.Layout) (*image.RGBA, error)
}

// FontRasterizer draws layouts with the embedded Go fonts.
type FontRasterizer struct {
	title       *opentype.Font
	attribution *opentype.Font
}

// NewFontRasterizer parses the embedded fonts.
func NewFontRasterizer() (*FontRasterizer, error) {
	title, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	attribution, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	return &FontRasterizer{title: title, attribution: attribution}, nil
}

// Rasterize draws every line of l, centered on its X coordinate with its
// baseline at Y, outlined with the layout's stroke width.
func (r *FontRasterizer) Rasterize(l typography.Layout) (*image.RGBA, error) {
	if l.Width <= 0 || l.Height <= 0 {
		return nil, &failure.RasterizationError{Err: ErrEmptyCanvas}
	}
	img := image.NewRGBA(image.Rect(0, 0, l.Width, l.Height))

	if len(l.Lines) > 0 {
		if err := r.drawLines(img, r.title, l.Lines, l.FontSize, l.StrokeWidth); err != nil {
			return nil, &failure.RasterizationError{Err: err}
		}
	}
	if l.Attribution != nil {
		err := r.drawLines(img, r.attribution, []typography.Line{*l.Attribution}, l.AttributionFontSize, l.AttributionStroke)
		if err != nil {
			return nil, &failure.RasterizationError{Err: err}
		}
	}
	return img, nil
}

func (r *FontRasterizer) drawLines(dst *image.RGBA, f *opentype.Font, lines []typography.Line, size, stroke int) error {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return fmt.Errorf("create %dpx face: %w", size, err)
	}
	defer func() { _ = face.Close() }()

	d := &font.Drawer{Dst: dst, Face: face}
	offsets := strokeOffsets(stroke)
	for _, line := range lines {
		width := d.MeasureString(line.Text)
		origin := fixed.P(line.X, line.Y).Sub(fixed.Point26_6{X: width / 2})

		d.Src = image.NewUniform(strokeColor)
		for _, off := range offsets {
			d.Dot = origin.Add(off)
			d.DrawString(line.Text)
		}
		d.Src = image.NewUniform(fillColor)
		d.Dot = origin
		d.DrawString(line.Text)
	}
	return nil
}

// strokeOffsets samples a disc of the given radius. Drawing the text once per
// offset produces the outline.
func strokeOffsets(radius int) []fixed.Point26_6 {
	var out []fixed.Point26_6
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if (dx != 0 || dy != 0) && dx*dx+dy*dy <= radius*radius {
				out = append(out, fixed.P(dx, dy))
			}
		}
	}
	return out
}

// EncodePNG writes img as PNG, reporting failures as rasterization errors.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return &failure.RasterizationError{Err: fmt.Errorf("encode png: %w", err)}
	}
	return nil
}
