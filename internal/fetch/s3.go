package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/maauso/reelcard-api/internal/failure"
)

// ErrInvalidS3Reference is returned for references not shaped s3://bucket/key.
var ErrInvalidS3Reference = errors.New("fetch: invalid s3 reference")

// ObjectGetter is the S3 operation S3Fetcher needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher downloads s3://bucket/key references.
type S3Fetcher struct {
	client   ObjectGetter
	maxBytes int64
}

// NewS3Fetcher creates an S3Fetcher. Non-positive maxBytes selects DefaultMaxBytes.
func NewS3Fetcher(client ObjectGetter, maxBytes int64) *S3Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &S3Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch implements Fetcher.
func (f *S3Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return nil, &failure.FetchError{Ref: ref, Err: err}
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		notFound := errors.As(err, &noKey) || errors.As(err, &noBucket)
		return nil, &failure.FetchError{Ref: ref, NotFound: notFound, Err: fmt.Errorf("get object: %w", err)}
	}
	defer func() { _ = out.Body.Close() }()

	data, err := readLimited(out.Body, f.maxBytes)
	if err != nil {
		return nil, &failure.FetchError{Ref: ref, Err: err}
	}
	return data, nil
}

func parseS3Ref(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidS3Reference, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidS3Reference, ref)
	}
	return bucket, key, nil
}
