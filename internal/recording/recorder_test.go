package recording

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/logging"
)

type fakeAriRecorder struct {
	startErr error
	stopErr  error
	started  []string
	stopped  []string
}

func (f *fakeAriRecorder) StartRecording(ctx context.Context, channelID, name, format string) error {
	f.started = append(f.started, name)
	return f.startErr
}

func (f *fakeAriRecorder) StopRecording(ctx context.Context, name string) error {
	f.stopped = append(f.stopped, name)
	return f.stopErr
}

type fakeStore struct {
	saved []*domain.RecordingMetadata
}

func (f *fakeStore) SaveRecording(ctx context.Context, m *domain.RecordingMetadata) error {
	f.saved = append(f.saved, m)
	return nil
}

func TestRecorderStartRequiresConsentWhenConfigured(t *testing.T) {
	ari := &fakeAriRecorder{}
	store := &fakeStore{}
	r := NewRecorder(ari, NewLocalBackend(t.TempDir()), store, nil, Config{Enabled: true, ConsentRequired: true, Format: "wav"}, logging.Noop{})

	_, err := r.Start(context.Background(), 1, "chan-1", "agent-1", false)
	if err == nil {
		t.Fatal("expected consent-required failure")
	}
}

func TestRecorderStartIsIdempotent(t *testing.T) {
	ari := &fakeAriRecorder{}
	store := &fakeStore{}
	r := NewRecorder(ari, NewLocalBackend(t.TempDir()), store, nil, Config{Enabled: true, Format: "wav"}, logging.Noop{})

	m1, err := r.Start(context.Background(), 1, "chan-1", "agent-1", true)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	m2, err := r.Start(context.Background(), 1, "chan-1", "agent-1", true)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if m1 != m2 {
		t.Fatal("expected idempotent start to return existing metadata")
	}
	if len(ari.started) != 1 {
		t.Fatalf("expected exactly one ARI start action, got %d", len(ari.started))
	}
}

func TestRecorderStopStoresFileAndPersistsMetadata(t *testing.T) {
	dir := t.TempDir()
	ari := &fakeAriRecorder{}
	store := &fakeStore{}
	fetched := []byte("fake-wav-bytes")
	r := NewRecorder(ari, NewLocalBackend(dir), store, func(ctx context.Context, name string) ([]byte, error) {
		return fetched, nil
	}, Config{Enabled: true, Format: "wav", RetentionDays: 30}, logging.Noop{})

	meta, err := r.Start(context.Background(), 1, "chan-1", "agent-1", true)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	final, err := r.Stop(context.Background(), 1)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if final.State != domain.RecordingCompleted {
		t.Fatalf("expected completed state, got %s", final.State)
	}
	if final.Checksum == "" {
		t.Fatal("expected checksum to be set")
	}
	if len(store.saved) != 1 || store.saved[0].ID != meta.ID {
		t.Fatalf("expected metadata to be persisted, got %+v", store.saved)
	}
	if _, err := os.Stat(filepath.Join(dir, final.Path)); err != nil {
		t.Fatalf("expected stored recording file: %v", err)
	}
}

func TestSweepExpiredSkipsUnexpiredRecordings(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(&fakeAriRecorder{}, NewLocalBackend(dir), &fakeStore{}, nil, Config{}, logging.Noop{})
	future := &domain.RecordingMetadata{RetentionDeadline: time.Now().Add(24 * time.Hour)}
	cleaned, err := r.SweepExpired(context.Background(), []*domain.RecordingMetadata{future})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if cleaned != 0 {
		t.Fatalf("expected 0 cleaned, got %d", cleaned)
	}
}
