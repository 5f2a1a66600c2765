package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/store"
)

// FetchCandidates implements dispatcher.LeadStore: predicates 1-3
// (status/attempts/DNC+consent) applied in SQL, ordered
// (priority desc, last_call_at asc, created_at asc) so the dispatcher's
// in-memory timezone gate only has to truncate, not re-sort arbitrarily.
func (s *Store) FetchCandidates(ctx context.Context, campaignID uint64, limit int) ([]*domain.Lead, error) {
	var rows []store.LeadRow
	err := s.db.WithContext(ctx).
		Where("campaign_id = ? AND status IN ? AND dnc = false AND consent = true", campaignID,
			[]string{string(domain.LeadStatusNew), string(domain.LeadStatusCallback), string(domain.LeadStatusRetry)}).
		Where("attempts < (SELECT retry_max_attempts FROM campaigns WHERE id = ?)", campaignID).
		Order("priority DESC, last_call_at ASC, created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "gormstore.FetchCandidates", err)
	}

	leads := make([]*domain.Lead, len(rows))
	for i := range rows {
		leads[i] = store.RowToLead(&rows[i])
	}
	return leads, nil
}

// SaveLead implements dispatcher.LeadStore, updating via the optimistic
// Version token; a zero rows-affected update surfaces as StateConflict
// per the supplemented optimistic-concurrency-retry feature.
func (s *Store) SaveLead(ctx context.Context, lead *domain.Lead) error {
	row := store.LeadToRow(lead)
	if row.ID == 0 {
		if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
			return dialererr.New(dialererr.KindTransientNetwork, "gormstore.SaveLead", err)
		}
		lead.ID = row.ID
		return nil
	}

	previousVersion := row.Version
	row.Version++
	result := s.db.WithContext(ctx).Model(&store.LeadRow{}).
		Where("id = ? AND version = ?", row.ID, previousVersion).
		Select("*").Updates(row)
	if result.Error != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "gormstore.SaveLead", result.Error)
	}
	if result.RowsAffected == 0 {
		return dialererr.New(dialererr.KindStateConflict, "gormstore.SaveLead", errors.New("version mismatch"))
	}
	lead.Version = row.Version
	return nil
}

// RecyclableLeads implements dispatcher.LeadStore: leads in status whose
// last_call_at predates olderThan, recycle_count below maxRecycle, with
// DNC leads excluded when excludeDNC is set.
func (s *Store) RecyclableLeads(ctx context.Context, campaignID uint64, status domain.LeadStatus, olderThan time.Time, maxRecycle int, excludeDNC bool, limit int) ([]*domain.Lead, error) {
	q := s.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ? AND last_call_at <= ? AND recycle_count < ?",
			campaignID, string(status), olderThan, maxRecycle)
	if excludeDNC {
		q = q.Where("dnc = false")
	}

	var rows []store.LeadRow
	if err := q.Limit(limit).Find(&rows).Error; err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "gormstore.RecyclableLeads", err)
	}

	leads := make([]*domain.Lead, len(rows))
	for i := range rows {
		leads[i] = store.RowToLead(&rows[i])
	}
	return leads, nil
}
