package recording

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rapidaai/dialer/internal/dialererr"
)

// LocalBackend stores recordings on the local filesystem under a
// date-partitioned directory tree, matching the original's
// YYYY/MM/DD layout.
type LocalBackend struct {
	BaseDir string
}

func NewLocalBackend(baseDir string) *LocalBackend {
	return &LocalBackend{BaseDir: baseDir}
}

func (b *LocalBackend) Store(ctx context.Context, recordingID string, startedAt time.Time, format string, data []byte) (string, error) {
	key := datePartitionedKey(recordingID, startedAt, format)
	fullPath := filepath.Join(b.BaseDir, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", dialererr.New(dialererr.KindFatal, "recording.local.mkdir", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", dialererr.New(dialererr.KindFatal, "recording.local.write", err)
	}
	return key, nil
}

func (b *LocalBackend) Retrieve(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.BaseDir, path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dialererr.New(dialererr.KindNotFound, "recording.local.retrieve", err)
		}
		return nil, dialererr.New(dialererr.KindFatal, "recording.local.retrieve", err)
	}
	return data, nil
}

func (b *LocalBackend) Delete(ctx context.Context, path string) error {
	if err := os.Remove(filepath.Join(b.BaseDir, path)); err != nil && !os.IsNotExist(err) {
		return dialererr.New(dialererr.KindFatal, "recording.local.delete", err)
	}
	return nil
}

func (b *LocalBackend) URL(path string) string {
	return "/media/recordings/" + path
}
