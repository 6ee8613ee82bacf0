package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func testS3Config(endpoint string) S3Config {
	return S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
		Prefix:          "reelcard",
	}
}

func TestNewS3Client(t *testing.T) {
	client, err := NewS3Client(context.Background(), testS3Config("http://localhost:4566"))
	if err != nil {
		t.Fatalf("NewS3Client() error = %v", err)
	}
	if client == nil {
		t.Fatal("expected client")
	}
}

func TestS3Publisher_Publish_MockServer(t *testing.T) {
	// Create a mock S3 server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}

		if r.URL.Path != "/test-bucket/reelcard/reels/job-1.mp4" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "video/mp4" {
			t.Errorf("unexpected content type: %s", ct)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if !strings.Contains(string(body), "test content") {
			t.Errorf("unexpected body: %s", string(body))
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testS3Config(server.URL)
	client, err := NewS3Client(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewS3Client() error = %v", err)
	}

	url, err := NewS3Publisher(client, cfg).Publish(context.Background(), "reels/job-1.mp4",
		bytes.NewReader([]byte("test content")), "video/mp4")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	expectedURL := "https://test-bucket.s3.us-east-1.amazonaws.com/reelcard/reels/job-1.mp4"
	if url != expectedURL {
		t.Errorf("url = %v, want %v", url, expectedURL)
	}
}

func TestS3Publisher_PublicBaseURL(t *testing.T) {
	fake := newFakeS3()
	cfg := testS3Config("")
	cfg.PublicBaseURL = "https://cdn.example.com/"

	url, err := NewS3Publisher(fake, cfg).Publish(context.Background(), "images/a.jpg", strings.NewReader("x"), "image/jpeg")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if url != "https://cdn.example.com/reelcard/images/a.jpg" {
		t.Errorf("url = %v", url)
	}
	if string(fake.objects["reelcard/images/a.jpg"].body) != "x" {
		t.Error("expected object to be stored")
	}
}

func TestS3Publisher_Sweep(t *testing.T) {
	fake := newFakeS3()
	now := time.Now()
	fake.objects["reelcard/reels/old.mp4"] = fakeObject{modified: now.Add(-48 * time.Hour)}
	fake.objects["reelcard/reels/new.mp4"] = fakeObject{modified: now}
	fake.objects["other/old.mp4"] = fakeObject{modified: now.Add(-48 * time.Hour)}

	removed, err := NewS3Publisher(fake, testS3Config("")).Sweep(context.Background(), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := fake.objects["reelcard/reels/old.mp4"]; ok {
		t.Error("expected old object to be deleted")
	}
	if _, ok := fake.objects["other/old.mp4"]; !ok {
		t.Error("objects outside the prefix must not be touched")
	}
}

type fakeObject struct {
	body     []byte
	modified time.Time
}

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	objects map[string]fakeObject
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = fakeObject{body: body, modified: time.Now()}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key, obj := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(key),
				LastModified: aws.Time(obj.modified),
			})
		}
	}
	return out, nil
}
