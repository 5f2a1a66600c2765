package recording

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/rapidaai/dialer/internal/dialererr"
)

// S3Backend stores recordings in an S3 bucket under a date-partitioned key.
type S3Backend struct {
	Bucket string
	Region string
	client *s3.S3
}

func NewS3Backend(bucket, region string) (*S3Backend, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, dialererr.New(dialererr.KindFatal, "recording.s3.session", err)
	}
	return &S3Backend{Bucket: bucket, Region: region, client: s3.New(sess)}, nil
}

func (b *S3Backend) Store(ctx context.Context, recordingID string, startedAt time.Time, format string, data []byte) (string, error) {
	key := datePartitionedKey(recordingID, startedAt, format)
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", dialererr.New(dialererr.KindTransientNetwork, "recording.s3.put", err)
	}
	return key, nil
}

func (b *S3Backend) Retrieve(ctx context.Context, path string) ([]byte, error) {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, dialererr.New(dialererr.KindNotFound, "recording.s3.get", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *S3Backend) Delete(ctx context.Context, path string) error {
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return dialererr.New(dialererr.KindFatal, "recording.s3.delete", err)
	}
	return nil
}

func (b *S3Backend) URL(path string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.Bucket, b.Region, path)
}
