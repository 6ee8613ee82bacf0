package typography

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultParams())
}

func TestEngine_MetricsForPortraitCanvas(t *testing.T) {
	e := newTestEngine()

	assert.Equal(t, 70, e.FontSize(1080, 1350))
	assert.Equal(t, 22, e.CharsPerLine(1080, 70))
}

func TestEngine_CharsPerLineFloor(t *testing.T) {
	e := newTestEngine()

	// A huge font on a narrow canvas still gets the minimum budget.
	assert.Equal(t, 10, e.CharsPerLine(300, 200))
}

func TestLayout_EmptyTitle(t *testing.T) {
	e := newTestEngine()

	l := e.Layout(Request{Width: 1080, Height: 1350, MaxLines: 5})

	assert.Empty(t, l.Lines)
	assert.False(t, l.Truncated)
	assert.Nil(t, l.Attribution)
	assert.True(t, l.Empty())
}

func TestLayout_WhitespaceOnlyTitle(t *testing.T) {
	e := newTestEngine()

	l := e.Layout(Request{Width: 1080, Height: 1350, Title: " \t\n ", MaxLines: 5})

	assert.Empty(t, l.Lines)
	assert.False(t, l.Truncated)
}

func TestLayout_TruncatesToMaxLines(t *testing.T) {
	e := newTestEngine()

	l := e.Layout(Request{
		Width:    1080,
		Height:   1350,
		Title:    "one two three four five six seven eight nine ten",
		MaxLines: 2,
	})

	require.Len(t, l.Lines, 2)
	assert.True(t, l.Truncated)
	assert.Equal(t, "one two three four", l.Lines[0].Text)
	assert.Equal(t, "five six seven eight…", l.Lines[1].Text)
	assert.True(t, strings.HasSuffix(l.Lines[1].Text, Ellipsis))
}

func TestLayout_FitsWithoutTruncation(t *testing.T) {
	e := newTestEngine()

	l := e.Layout(Request{Width: 1080, Height: 1350, Title: "hello  world", MaxLines: 3})

	require.Len(t, l.Lines, 1)
	assert.Equal(t, "hello world", l.Lines[0].Text)
	assert.False(t, l.Truncated)
	assert.Equal(t, 540, l.Lines[0].X)
}

func TestLayout_Deterministic(t *testing.T) {
	e := newTestEngine()
	req := Request{
		Width:       1080,
		Height:      1920,
		Title:       "The quick brown fox jumps over the lazy dog while the cat watches from the window",
		Attribution: "example.com/news/fox",
		MaxLines:    3,
		Anchor:      AnchorBottom,
	}

	first := e.Layout(req)
	second := e.Layout(req)

	assert.Equal(t, first, second)
	assert.Equal(t, first.Markup(), second.Markup())
}

func TestLayout_Invariants(t *testing.T) {
	e := newTestEngine()
	titles := []string{
		"",
		"a",
		"one two three four five six seven eight nine ten",
		"Supercalifragilisticexpialidocious-and-then-some-more-characters word",
		strings.Repeat("lorem ipsum dolor sit amet ", 20),
		"ünïcödé wörds with àccents ünïcödé wörds with àccents ünïcödé wörds",
	}
	canvases := [][2]int{{1080, 1350}, {1080, 1920}, {720, 1280}, {400, 400}}

	for _, title := range titles {
		for _, c := range canvases {
			for maxLines := 1; maxLines <= 20; maxLines++ {
				l := e.Layout(Request{Width: c[0], Height: c[1], Title: title, MaxLines: maxLines})

				assert.LessOrEqual(t, len(l.Lines), maxLines)
				for i, line := range l.Lines {
					n := utf8.RuneCountInString(line.Text)
					assert.LessOrEqual(t, n, l.CharsPerLine, "line %d %q", i, line.Text)
				}

				joined := make([]string, len(l.Lines))
				for i, line := range l.Lines {
					joined[i] = line.Text
				}
				normalized := strings.Join(strings.Fields(title), " ")
				if utf8.RuneCountInString(strings.Join(joined, " ")) < utf8.RuneCountInString(normalized) {
					require.NotEmpty(t, l.Lines)
					assert.True(t, strings.HasSuffix(l.Lines[len(l.Lines)-1].Text, Ellipsis))
					assert.True(t, l.Truncated)
				}
			}
		}
	}
}

func TestLayout_TopAnchorStacksDownward(t *testing.T) {
	e := newTestEngine()

	l := e.Layout(Request{
		Width:       1080,
		Height:      1350,
		Title:       "one two three four five six seven eight nine ten",
		Attribution: "source.example",
		MaxLines:    5,
		Anchor:      AnchorTop,
	})

	require.Len(t, l.Lines, 3)
	assert.Equal(t, 108+70, l.Lines[0].Y)
	for i := 1; i < len(l.Lines); i++ {
		assert.Equal(t, l.LineHeight, l.Lines[i].Y-l.Lines[i-1].Y)
	}
	require.NotNil(t, l.Attribution)
	assert.Greater(t, l.Attribution.Y, l.Lines[2].Y)
	assert.Equal(t, "source.example", l.Attribution.Text)
}

func TestLayout_BottomAnchorStacksUpward(t *testing.T) {
	e := newTestEngine()

	l := e.Layout(Request{
		Width:       1080,
		Height:      768,
		Title:       "one two three four five six seven eight nine ten eleven twelve",
		Attribution: "source.example",
		MaxLines:    4,
		Anchor:      AnchorBottom,
	})

	require.NotEmpty(t, l.Lines)
	require.NotNil(t, l.Attribution)
	bottom := 768 - 61
	assert.Equal(t, bottom, l.Attribution.Y)
	last := l.Lines[len(l.Lines)-1]
	assert.Less(t, last.Y, l.Attribution.Y)
	for i := 1; i < len(l.Lines); i++ {
		assert.Equal(t, l.LineHeight, l.Lines[i].Y-l.Lines[i-1].Y)
	}
}

func TestLayout_StrokeWidth(t *testing.T) {
	e := newTestEngine()

	large := e.Layout(Request{Width: 1080, Height: 1350, Title: "x", MaxLines: 1})
	tiny := e.Layout(Request{Width: 100, Height: 100, Title: "x", MaxLines: 1})

	assert.Equal(t, 6, large.StrokeWidth)
	assert.Equal(t, 2, tiny.StrokeWidth)
}

func TestLayout_AttributionTruncated(t *testing.T) {
	e := newTestEngine()

	l := e.Layout(Request{
		Width:       1080,
		Height:      1350,
		Attribution: strings.Repeat("very-long-source-name ", 10),
		MaxLines:    1,
	})

	require.NotNil(t, l.Attribution)
	assert.True(t, strings.HasSuffix(l.Attribution.Text, Ellipsis))
	assert.False(t, l.Empty())
}

func TestLayout_LinesStayOnCanvas(t *testing.T) {
	e := newTestEngine()
	title := strings.Repeat("lorem ipsum dolor sit amet ", 40)

	tests := []struct {
		name        string
		width       int
		height      int
		anchor      Anchor
		attribution string
	}{
		{name: "top anchored card", width: 1080, height: 1350, anchor: AnchorTop, attribution: "Photo by Someone"},
		{name: "top anchored no attribution", width: 1080, height: 1350, anchor: AnchorTop},
		{name: "bottom anchored caption band", width: 1080, height: 768, anchor: AnchorBottom, attribution: "Photo by Someone"},
		{name: "bottom anchored small canvas", width: 400, height: 400, anchor: AnchorBottom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := e.Layout(Request{
				Width:       tt.width,
				Height:      tt.height,
				Title:       title,
				Attribution: tt.attribution,
				MaxLines:    20,
				Anchor:      tt.anchor,
			})

			require.NotEmpty(t, l.Lines)
			assert.Less(t, len(l.Lines), 20)
			for i, line := range l.Lines {
				assert.GreaterOrEqual(t, line.Y, l.FontSize, "line %d", i)
				assert.LessOrEqual(t, line.Y, tt.height, "line %d", i)
			}
			if l.Attribution != nil {
				assert.GreaterOrEqual(t, l.Attribution.Y, l.FontSize)
				assert.LessOrEqual(t, l.Attribution.Y, tt.height)
			}
			assert.True(t, l.Truncated)
			assert.True(t, strings.HasSuffix(l.Lines[len(l.Lines)-1].Text, Ellipsis))
		})
	}
}
