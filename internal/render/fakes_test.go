package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maauso/reelcard-api/internal/failure"
	"github.com/maauso/reelcard-api/internal/media"
	"github.com/maauso/reelcard-api/internal/raster"
)

// mp4Header is the smallest ftyp box http.DetectContentType reports as video/mp4.
var mp4Header = []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0, 0, 0, 0, 'm', 'p', '4', '2', 'i', 's', 'o', 'm'}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newRasterizer(t *testing.T) *raster.FontRasterizer {
	t.Helper()
	r, err := raster.NewFontRasterizer()
	require.NoError(t, err)
	return r
}

type fakeFetcher struct {
	mu      sync.Mutex
	sources map[string][]byte
	calls   int
}

func (f *fakeFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	data, ok := f.sources[ref]
	if !ok {
		return nil, &failure.FetchError{Ref: ref, NotFound: true}
	}
	return data, nil
}

type fakeProber struct {
	info media.Info
	err  error
}

func (p *fakeProber) Probe(_ context.Context, _ string) (media.Info, error) {
	return p.info, p.err
}

// fakeExecutor records the argument vector and writes a stand-in output file.
type fakeExecutor struct {
	args [][]string
	err  error
}

func (e *fakeExecutor) Execute(_ context.Context, args []string) error {
	e.args = append(e.args, args)
	if e.err != nil {
		return e.err
	}
	return os.WriteFile(args[len(args)-1], []byte("encoded reel"), 0600)
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
	sets  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.items[key]
	return data, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = data
	c.sets++
	return nil
}
