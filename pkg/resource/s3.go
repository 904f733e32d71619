package resource

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Blob stores resource bytes in an S3 bucket under a key prefix.
// Downloads are handed out as presigned GET URLs so clients fetch
// directly from S3 instead of proxying through the gateway.
type S3Blob struct {
	client    *s3.Client
	presign   *s3.PresignClient
	bucket    string
	prefix    string
	urlExpiry time.Duration
}

// NewS3Blob returns an S3-backed blob store.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	blob := resource.NewS3Blob(s3.NewFromConfig(cfg), "my-bucket", "live2d/")
func NewS3Blob(client *s3.Client, bucket, prefix string) *S3Blob {
	return &S3Blob{
		client:    client,
		presign:   s3.NewPresignClient(client),
		bucket:    bucket,
		prefix:    prefix,
		urlExpiry: 24 * time.Hour,
	}
}

// WithURLExpiry sets how long presigned URLs stay valid.
func (b *S3Blob) WithURLExpiry(d time.Duration) *S3Blob {
	b.urlExpiry = d
	return b
}

func (b *S3Blob) key(rid string) string { return b.prefix + rid }

// s3Writer buffers the object and uploads it on Close. Resource objects
// are capped by the store quota, so buffering is acceptable.
type s3Writer struct {
	blob *S3Blob
	rid  string
	buf  bytes.Buffer
}

func (w *s3Writer) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *s3Writer) Close() error {
	_, err := w.blob.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(w.blob.bucket),
		Key:    aws.String(w.blob.key(w.rid)),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	return err
}

func (b *S3Blob) Writer(rid string) (io.WriteCloser, error) {
	return &s3Writer{blob: b, rid: rid}, nil
}

func (b *S3Blob) Open(rid string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(rid)),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (b *S3Blob) Remove(rid string) error {
	_, err := b.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(rid)),
	})
	return err
}

func (b *S3Blob) URL(ctx context.Context, rid string) (string, bool) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(rid)),
	}, s3.WithPresignExpires(b.urlExpiry))
	if err != nil {
		return "", false
	}
	return req.URL, true
}
