package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lysyi3m/music-digest/app/daterange"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive stores rendered digests in an S3 bucket.
type S3Archive struct {
	client  objectPutter
	bucket  string
	prefix  string
	timeout time.Duration
}

func NewS3Archive(ctx context.Context, bucket, prefix, region string) (*S3Archive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is not set")
	}

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return newS3Archive(s3.NewFromConfig(awsCfg), bucket, prefix), nil
}

func newS3Archive(client objectPutter, bucket, prefix string) *S3Archive {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Archive{client: client, bucket: bucket, prefix: prefix, timeout: 30 * time.Second}
}

// Key is the object key for the digest covering window.
func (a *S3Archive) Key(window daterange.Range) string {
	return fmt.Sprintf("%s%s_%s.html",
		a.prefix, daterange.FormatDateOnly(window.Start), daterange.FormatDateOnly(window.End))
}

// Store uploads html and returns the object key.
func (a *S3Archive) Store(ctx context.Context, window daterange.Range, html []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	key := a.Key(window)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(html),
		ContentType: aws.String("text/html; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload digest to S3: %w", err)
	}

	slog.Info("Digest archived", "bucket", a.bucket, "key", key, "size", len(html))
	return key, nil
}
