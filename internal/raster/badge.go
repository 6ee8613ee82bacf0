package raster

import (
	"errors"
	"fmt"
	"image"

	"github.com/skip2/go-qrcode"
)

// ErrEmptyBadgeURL is returned when a badge is requested without a target URL.
var ErrEmptyBadgeURL = errors.New("raster: badge url must not be empty")

// Badge renders a square QR code linking to url.
func Badge(url string, size int) (image.Image, error) {
	if url == "" {
		return nil, ErrEmptyBadgeURL
	}
	q, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return q.Image(size), nil
}

// BadgePosition returns the top-left corner that places a size×size badge in
// the bottom-right corner of a w×h canvas, margin pixels from both edges.
func BadgePosition(w, h, size, margin int) image.Point {
	return image.Pt(w-size-margin, h-size-margin)
}
