package typography

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Colors used for caption text.
const (
	FillColor   = "#FFFFFF"
	StrokeColor = "#000000"
	FontFamily  = "Go, DejaVu Sans, Arial, sans-serif"
)

// Markup renders the layout as a standalone SVG document with a transparent
// background. Text content is XML-escaped.
func (l Layout) Markup() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		l.Width, l.Height, l.Width, l.Height)
	b.WriteByte('\n')
	for _, line := range l.Lines {
		writeText(&b, line, l.FontSize, l.StrokeWidth, "bold")
	}
	if l.Attribution != nil {
		writeText(&b, *l.Attribution, l.AttributionFontSize, l.AttributionStroke, "normal")
	}
	b.WriteString("</svg>\n")
	return b.String()
}

func writeText(b *bytes.Buffer, line Line, size, stroke int, weight string) {
	fmt.Fprintf(b,
		`  <text x="%d" y="%d" font-family="%s" font-size="%d" font-weight="%s" fill="%s" stroke="%s" stroke-width="%d" paint-order="stroke" text-anchor="middle">`,
		line.X, line.Y, FontFamily, size, weight, FillColor, StrokeColor, stroke)
	// bytes.Buffer writes never fail
	_ = xml.EscapeText(b, []byte(line.Text))
	b.WriteString("</text>\n")
}
