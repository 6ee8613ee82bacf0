package render

import (
	"bytes"
	"context"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/reelcard-api/internal/failure"
	"github.com/maauso/reelcard-api/internal/storage"
)

func newImageService(t *testing.T, fetcher *fakeFetcher, opts ...ImageOption) *ImageService {
	t.Helper()
	return NewImageService(DefaultProfile(), fetcher, newRasterizer(t), discardLogger(), opts...)
}

func TestImageService_Render(t *testing.T) {
	fetcher := &fakeFetcher{sources: map[string][]byte{"photo.png": pngBytes(t, 64, 48)}}
	svc := newImageService(t, fetcher)

	res, err := svc.Render(context.Background(), "req-1", ImageRequest{
		Source:         "photo.png",
		Title:          "A headline long enough to wrap onto a second line of the card",
		Attribution:    "example.com",
		AttributionURL: "https://example.com/story",
		Width:          400,
		Height:         500,
	})
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 500, img.Bounds().Dy())
	assert.False(t, res.Cached)
	assert.Len(t, res.Key, 64)
	assert.NotEmpty(t, res.Layout.Lines)
	assert.NotNil(t, res.Layout.Attribution)
}

func TestImageService_Defaults(t *testing.T) {
	svc := newImageService(t, &fakeFetcher{})

	req, err := svc.Normalize(ImageRequest{Source: " photo.png "})
	require.NoError(t, err)

	assert.Equal(t, "photo.png", req.Source)
	assert.Equal(t, 1080, req.Width)
	assert.Equal(t, 1350, req.Height)
	assert.Equal(t, 5, req.MaxLines)
}

func TestImageService_Validation(t *testing.T) {
	svc := newImageService(t, &fakeFetcher{})

	tests := []struct {
		name  string
		req   ImageRequest
		field string
	}{
		{"missing source", ImageRequest{Title: "x"}, "source"},
		{"narrow canvas", ImageRequest{Source: "a.png", Width: 10}, "width"},
		{"tall canvas", ImageRequest{Source: "a.png", Height: 5000}, "height"},
		{"too many lines", ImageRequest{Source: "a.png", MaxLines: 21}, "max_lines"},
		{"negative lines", ImageRequest{Source: "a.png", MaxLines: -1}, "max_lines"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Render(context.Background(), "req", tt.req)

			var ve *failure.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestImageService_CacheHit(t *testing.T) {
	fetcher := &fakeFetcher{sources: map[string][]byte{"photo.png": pngBytes(t, 32, 32)}}
	cache := newMemoryCache()
	svc := newImageService(t, fetcher, WithImageCache(cache))
	req := ImageRequest{Source: "photo.png", Title: "Cached", Width: 200, Height: 200}

	first, err := svc.Render(context.Background(), "req-1", req)
	require.NoError(t, err)
	second, err := svc.Render(context.Background(), "req-2", req)
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 1, cache.sets)
}

func TestImageService_CacheKeyTracksRequest(t *testing.T) {
	svc := newImageService(t, &fakeFetcher{})

	a := svc.cacheKey(ImageRequest{Source: "a.png", Title: "one", Width: 200, Height: 200, MaxLines: 2})
	b := svc.cacheKey(ImageRequest{Source: "a.png", Title: "two", Width: 200, Height: 200, MaxLines: 2})

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, svc.cacheKey(ImageRequest{Source: "a.png", Title: "one", Width: 200, Height: 200, MaxLines: 2}))
}

func TestImageService_SourceErrors(t *testing.T) {
	fetcher := &fakeFetcher{sources: map[string][]byte{"broken.png": []byte("not an image")}}
	svc := newImageService(t, fetcher)

	_, err := svc.Render(context.Background(), "req", ImageRequest{Source: "missing.png"})
	assert.Equal(t, failure.CodeSourceNotFound, failure.Code(err))

	_, err = svc.Render(context.Background(), "req", ImageRequest{Source: "broken.png"})
	assert.Equal(t, failure.CodeFetchFailed, failure.Code(err))
}

func TestImageService_Publish(t *testing.T) {
	dir := t.TempDir()
	publisher, err := storage.NewLocalPublisher(dir, "http://localhost:8080/assets")
	require.NoError(t, err)
	fetcher := &fakeFetcher{sources: map[string][]byte{"photo.png": pngBytes(t, 32, 32)}}
	svc := newImageService(t, fetcher, WithImagePublisher(publisher))

	res, err := svc.Render(context.Background(), "req", ImageRequest{Source: "photo.png", Width: 200, Height: 200})
	require.NoError(t, err)
	url, err := svc.Publish(context.Background(), res)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/assets/images/"+res.Key+".jpg", url)
	data, err := os.ReadFile(filepath.Join(dir, "images", res.Key+".jpg"))
	require.NoError(t, err)
	assert.Equal(t, res.Data, data)
}

func TestImageService_PublishWithoutPublisher(t *testing.T) {
	svc := newImageService(t, &fakeFetcher{})

	_, err := svc.Publish(context.Background(), &ImageResult{Key: "k"})

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no publisher"))
}
