// Package recording implements §4.7 CallRecorder: recording lifecycle
// management plus pluggable blob storage backends, date-partitioned with
// SHA-256 checksums and retention-based cleanup.
package recording

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rapidaai/dialer/internal/domain"
)

// Backend is the storage abstraction every recording blob backend
// implements — local disk, S3, GCS, Azure, FTP.
type Backend interface {
	// Store writes data under a date-partitioned key derived from
	// recordingID and the recording's start time, returning the
	// backend-relative path.
	Store(ctx context.Context, recordingID string, startedAt time.Time, format string, data []byte) (path string, err error)
	Retrieve(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	URL(path string) string
}

func datePartitionedKey(recordingID string, startedAt time.Time, format string) string {
	return fmt.Sprintf("%04d/%02d/%02d/%s.%s",
		startedAt.Year(), startedAt.Month(), startedAt.Day(), recordingID, format)
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// verifyChecksum stamps meta.Checksum with the SHA-256 hex digest of data;
// it does not compare against any earlier value.
func verifyChecksum(data []byte, meta *domain.RecordingMetadata) {
	meta.Checksum = checksum(data)
}
