package gormstore

import (
	"context"
	"time"

	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/store"
)

// SaveRecording implements recording.Store.
func (s *Store) SaveRecording(ctx context.Context, m *domain.RecordingMetadata) error {
	row := store.RecordingToRow(m)
	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "gormstore.SaveRecording", err)
	}
	return nil
}

// ExpiredRecordings returns recordings whose retention deadline has
// passed and are still in a terminal (completed) state, for the
// retention sweep.
func (s *Store) ExpiredRecordings(ctx context.Context, now time.Time, limit int) ([]*domain.RecordingMetadata, error) {
	var rows []store.RecordingRow
	err := s.db.WithContext(ctx).
		Where("retention_deadline <= ? AND state = ?", now, string(domain.RecordingCompleted)).
		Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "gormstore.ExpiredRecordings", err)
	}
	recs := make([]*domain.RecordingMetadata, len(rows))
	for i := range rows {
		recs[i] = store.RowToRecording(&rows[i])
	}
	return recs, nil
}
