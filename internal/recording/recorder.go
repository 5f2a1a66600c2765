package recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/logging"
)

// AriClient is the subset of *ari.Client CallRecorder drives.
type AriClient interface {
	StartRecording(ctx context.Context, channelID, name, format string) error
	StopRecording(ctx context.Context, name string) error
}

// Store persists recording metadata, kept separate from the reporting
// layer the spec excludes.
type Store interface {
	SaveRecording(ctx context.Context, m *domain.RecordingMetadata) error
}

// FileFetcher retrieves the finished recording's bytes from the PBX once
// StopRecording completes, so Recorder can hand them to a Backend.
type FileFetcher func(ctx context.Context, name string) ([]byte, error)

// Config mirrors the original's RecordingConfig knobs.
type Config struct {
	Enabled       bool
	AutoRecord    bool
	Format        string
	SampleRate    int
	MaxDuration   time.Duration
	RetentionDays int
	ConsentRequired bool
}

// Recorder manages the recording lifecycle for calls: Start and Stop, then
// ships the finished file to a Backend and persists metadata. It has no
// pause or resume operation.
type Recorder struct {
	ari     AriClient
	backend Backend
	store   Store
	fetch   FileFetcher
	cfg     Config
	logger  logging.Logger

	mu     sync.Mutex
	active map[uint64]*domain.RecordingMetadata // callTaskID -> metadata
}

func NewRecorder(ari AriClient, backend Backend, store Store, fetch FileFetcher, cfg Config, logger logging.Logger) *Recorder {
	return &Recorder{
		ari: ari, backend: backend, store: store, fetch: fetch,
		cfg: cfg, logger: logger,
		active: make(map[uint64]*domain.RecordingMetadata),
	}
}

// Start begins recording a call. Consent is enforced when ConsentRequired
// is set — compliance failures surface as PolicyDenied, per §7.
func (r *Recorder) Start(ctx context.Context, callTaskID uint64, channelID, agentID string, consent bool) (*domain.RecordingMetadata, error) {
	if !r.cfg.Enabled {
		return nil, dialererr.New(dialererr.KindPolicyDenied, "recording.start", fmt.Errorf("recording disabled"))
	}
	if r.cfg.ConsentRequired && !consent {
		return nil, dialererr.New(dialererr.KindPolicyDenied, "recording.start", fmt.Errorf("consent required"))
	}

	r.mu.Lock()
	if existing, ok := r.active[callTaskID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.mu.Unlock()

	recordingID := uuid.NewString()
	meta := &domain.RecordingMetadata{
		ID:         recordingID,
		CallTaskID: callTaskID,
		AgentID:    agentID,
		Start:      time.Now(),
		Format:     r.cfg.Format,
		SampleRate: r.cfg.SampleRate,
		Consent:    consent,
		State:      domain.RecordingStarting,
	}
	if r.cfg.RetentionDays > 0 {
		meta.RetentionDeadline = meta.Start.AddDate(0, 0, r.cfg.RetentionDays)
	}

	if err := r.ari.StartRecording(ctx, channelID, recordingID, r.cfg.Format); err != nil {
		meta.State = domain.RecordingFailed
		return nil, err
	}
	meta.State = domain.RecordingActive

	r.mu.Lock()
	r.active[callTaskID] = meta
	r.mu.Unlock()
	return meta, nil
}

// Stop ends a call's recording, fetches the finished file, stores it via
// Backend, and persists the resulting metadata.
func (r *Recorder) Stop(ctx context.Context, callTaskID uint64) (*domain.RecordingMetadata, error) {
	r.mu.Lock()
	meta, ok := r.active[callTaskID]
	if ok {
		delete(r.active, callTaskID)
	}
	r.mu.Unlock()
	if !ok {
		return nil, dialererr.New(dialererr.KindNotFound, "recording.stop", fmt.Errorf("no active recording for call %d", callTaskID))
	}

	if err := r.ari.StopRecording(ctx, meta.ID); err != nil {
		meta.State = domain.RecordingFailed
		return meta, err
	}
	now := time.Now()
	meta.End = &now
	meta.State = domain.RecordingStopping

	data, err := r.fetch(ctx, meta.ID)
	if err != nil {
		meta.State = domain.RecordingFailed
		return meta, err
	}

	path, err := r.backend.Store(ctx, meta.ID, meta.Start, meta.Format, data)
	if err != nil {
		meta.State = domain.RecordingFailed
		return meta, err
	}
	meta.Path = path
	meta.Backend = fmt.Sprintf("%T", r.backend)
	verifyChecksum(data, meta)
	meta.State = domain.RecordingCompleted

	if err := r.store.SaveRecording(ctx, meta); err != nil {
		return meta, err
	}
	return meta, nil
}

// Active returns the in-flight recording for a call, if any.
func (r *Recorder) Active(callTaskID uint64) (*domain.RecordingMetadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.active[callTaskID]
	return m, ok
}

// SweepExpired deletes backend blobs for the given recordings whose
// retention deadline has passed and returns how many were deleted.
func (r *Recorder) SweepExpired(ctx context.Context, expired []*domain.RecordingMetadata) (int, error) {
	cleaned := 0
	for _, m := range expired {
		if m.RetentionDeadline.IsZero() || time.Now().Before(m.RetentionDeadline) {
			continue
		}
		if err := r.backend.Delete(ctx, m.Path); err != nil {
			r.logger.Warnf("recording: retention sweep failed to delete %s: %v", m.Path, err)
			continue
		}
		cleaned++
	}
	return cleaned, nil
}
