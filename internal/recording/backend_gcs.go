package recording

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	storage "google.golang.org/api/storage/v1"

	"github.com/rapidaai/dialer/internal/dialererr"
)

// GCSBackend stores recordings in a Google Cloud Storage bucket.
type GCSBackend struct {
	Bucket  string
	service *storage.Service
}

func NewGCSBackend(ctx context.Context, bucket string) (*GCSBackend, error) {
	svc, err := storage.NewService(ctx)
	if err != nil {
		return nil, dialererr.New(dialererr.KindFatal, "recording.gcs.service", err)
	}
	return &GCSBackend{Bucket: bucket, service: svc}, nil
}

func (b *GCSBackend) Store(ctx context.Context, recordingID string, startedAt time.Time, format string, data []byte) (string, error) {
	key := datePartitionedKey(recordingID, startedAt, format)
	obj := &storage.Object{Name: key, Bucket: b.Bucket}
	_, err := b.service.Objects.Insert(b.Bucket, obj).Media(bytes.NewReader(data)).Context(ctx).Do()
	if err != nil {
		return "", dialererr.New(dialererr.KindTransientNetwork, "recording.gcs.insert", err)
	}
	return key, nil
}

func (b *GCSBackend) Retrieve(ctx context.Context, path string) ([]byte, error) {
	resp, err := b.service.Objects.Get(b.Bucket, path).Download()
	if err != nil {
		return nil, dialererr.New(dialererr.KindNotFound, "recording.gcs.get", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (b *GCSBackend) Delete(ctx context.Context, path string) error {
	if err := b.service.Objects.Delete(b.Bucket, path).Context(ctx).Do(); err != nil {
		return dialererr.New(dialererr.KindFatal, "recording.gcs.delete", err)
	}
	return nil
}

func (b *GCSBackend) URL(path string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.Bucket, path)
}
