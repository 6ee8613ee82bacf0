package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/reelcard-api/internal/failure"
)

func fastHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	return NewHTTPFetcher(append([]HTTPOption{WithBaseBackoff(time.Millisecond)}, opts...)...)
}

func TestHTTPFetcher_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "reelcard-api/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	data, err := fastHTTPFetcher().Fetch(context.Background(), server.URL+"/a.jpg")

	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
}

func TestHTTPFetcher_NotFound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := fastHTTPFetcher().Fetch(context.Background(), server.URL+"/missing.jpg")

	var fe *failure.FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.NotFound)
	assert.Equal(t, failure.CodeSourceNotFound, failure.Code(err))
	assert.Equal(t, int32(1), calls.Load(), "not found must not be retried")
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	data, err := fastHTTPFetcher(WithMaxRetries(3)).Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := fastHTTPFetcher(WithMaxRetries(1)).Fetch(context.Background(), server.URL)

	assert.ErrorIs(t, err, failure.ErrFetch)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, failure.CodeFetchFailed, failure.Code(err))
}

func TestHTTPFetcher_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := fastHTTPFetcher().Fetch(context.Background(), server.URL)

	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcher_TooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer server.Close()

	_, err := fastHTTPFetcher(WithMaxBytes(32)).Fetch(context.Background(), server.URL)

	assert.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorIs(t, err, failure.ErrFetch)
}

type stubGetter struct {
	objects map[string]string
	err     error
}

func (s *stubGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	body, ok := s.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3Fetcher(t *testing.T) {
	getter := &stubGetter{objects: map[string]string{"media/slides/a.jpg": "jpeg"}}
	f := NewS3Fetcher(getter, 0)

	data, err := f.Fetch(context.Background(), "s3://media/slides/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	_, err = f.Fetch(context.Background(), "s3://media/slides/missing.jpg")
	assert.Equal(t, failure.CodeSourceNotFound, failure.Code(err))

	_, err = f.Fetch(context.Background(), "s3://media")
	assert.ErrorIs(t, err, ErrInvalidS3Reference)

	getter.err = errors.New("access denied")
	_, err = f.Fetch(context.Background(), "s3://media/slides/a.jpg")
	assert.Equal(t, failure.CodeFetchFailed, failure.Code(err))
}

func TestLocalFetcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "slides"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slides", "a.png"), []byte("png"), 0600))
	outside := filepath.Join(filepath.Dir(dir), "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0600))
	t.Cleanup(func() { _ = os.Remove(outside) })

	f, err := NewLocalFetcher(dir, 0)
	require.NoError(t, err)
	ctx := context.Background()

	data, err := f.Fetch(ctx, "slides/a.png")
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	data, err = f.Fetch(ctx, "file:///slides/a.png")
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	_, err = f.Fetch(ctx, "slides/missing.png")
	assert.Equal(t, failure.CodeSourceNotFound, failure.Code(err))

	_, err = f.Fetch(ctx, "../outside.txt")
	assert.ErrorIs(t, err, failure.ErrFetch)
}

func TestNewLocalFetcher_MissingDir(t *testing.T) {
	_, err := NewLocalFetcher(filepath.Join(t.TempDir(), "nope"), 0)

	assert.Error(t, err)
}

type recordingFetcher struct {
	refs []string
}

func (r *recordingFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	r.refs = append(r.refs, ref)
	return []byte(ref), nil
}

func TestRouter(t *testing.T) {
	httpF, s3F, localF := &recordingFetcher{}, &recordingFetcher{}, &recordingFetcher{}
	r := &Router{HTTP: httpF, S3: s3F, Local: localF}
	ctx := context.Background()

	for _, ref := range []string{"https://x/a.jpg", "HTTP://x/b.jpg", "s3://b/k", "slides/a.png", "file:///a.png"} {
		_, err := r.Fetch(ctx, ref)
		require.NoError(t, err, ref)
	}

	assert.Equal(t, []string{"https://x/a.jpg", "HTTP://x/b.jpg"}, httpF.refs)
	assert.Equal(t, []string{"s3://b/k"}, s3F.refs)
	assert.Equal(t, []string{"slides/a.png", "file:///a.png"}, localF.refs)

	_, err := r.Fetch(ctx, "ftp://x/a.jpg")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = r.Fetch(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyReference)

	_, err = (&Router{}).Fetch(ctx, "s3://b/k")
	assert.Equal(t, failure.CodeFetchFailed, failure.Code(err))
}
