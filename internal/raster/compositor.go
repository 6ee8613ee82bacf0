package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	// Decoders for supported source formats.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
	"golang.org/x/image/draw"
)

// DefaultJPEGQuality is the quality of encoded still images.
const DefaultJPEGQuality = 90

// Compositor scales source images onto a canvas and overlays layers.
type Compositor struct {
	quality int
}

// NewCompositor creates a Compositor. Non-positive quality selects DefaultJPEGQuality.
func NewCompositor(quality int) *Compositor {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Compositor{quality: quality}
}

// Decode decodes a JPEG, PNG, GIF or WebP image.
func (c *Compositor) Decode(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode image: empty %s", format)
	}
	return img, nil
}

// Cover scales src to fill a w×h canvas, cropping the overflow around the center.
func (c *Compositor) Cover(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	sb := src.Bounds()

	scale := max(float64(w)/float64(sb.Dx()), float64(h)/float64(sb.Dy()))
	cropW := min(sb.Dx(), int(float64(w)/scale+0.5))
	cropH := min(sb.Dy(), int(float64(h)/scale+0.5))
	x0 := sb.Min.X + (sb.Dx()-cropW)/2
	y0 := sb.Min.Y + (sb.Dy()-cropH)/2

	draw.CatmullRom.Scale(dst, dst.Bounds(), src, image.Rect(x0, y0, x0+cropW, y0+cropH), draw.Src, nil)
	return dst
}

// Overlay draws layer onto dst with its top-left corner at p, blending alpha.
func (c *Compositor) Overlay(dst draw.Image, layer image.Image, p image.Point) {
	lb := layer.Bounds()
	draw.Draw(dst, image.Rectangle{Min: p, Max: p.Add(lb.Size())}, layer, lb.Min, draw.Over)
}

// EncodeJPEG writes img as JPEG at the configured quality.
func (c *Compositor) EncodeJPEG(w io.Writer, img image.Image) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}
