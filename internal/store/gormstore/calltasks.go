package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/store"
)

// SaveCallTask implements telephony.Store: an upsert keyed on id, since
// TelephonyService calls this on every state transition.
func (s *Store) SaveCallTask(ctx context.Context, t *domain.CallTask) error {
	row := store.CallTaskToRow(t)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "gormstore.SaveCallTask", err)
	}
	t.ID = row.ID
	return nil
}

// CallTaskByChannel implements telephony.Store.
func (s *Store) CallTaskByChannel(ctx context.Context, channelID string) (*domain.CallTask, bool, error) {
	var row store.CallTaskRow
	err := s.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dialererr.New(dialererr.KindTransientNetwork, "gormstore.CallTaskByChannel", err)
	}
	return store.RowToCallTask(&row), true, nil
}
