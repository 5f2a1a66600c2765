package gormstore

import (
	"context"
	"time"

	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/store"
)

// SaveCDR persists the immutable post-mortem record of a completed call.
func (s *Store) SaveCDR(ctx context.Context, cdr *domain.CDR) error {
	row := &store.CDRRow{
		ID: cdr.ID, CallTaskID: cdr.CallTaskID, CampaignID: cdr.CampaignID, LeadID: cdr.LeadID,
		RingDurationSeconds: cdr.RingDuration.Seconds(), TalkDurationSeconds: cdr.TalkDuration.Seconds(),
		HoldDurationSeconds: cdr.HoldDuration.Seconds(), WrapDurationSeconds: cdr.WrapDuration.Seconds(),
		Outcome: cdr.Outcome, HangupParty: cdr.HangupParty, CostCents: cdr.CostCents, WrittenAt: cdr.WrittenAt,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "gormstore.SaveCDR", err)
	}
	cdr.ID = row.ID
	return nil
}

// CountCallsInWindow implements droprate.CallStats: total calls and
// abandoned calls (no_answer/busy/abandoned/failed) for campaignID
// since the given cutoff, read from the CDR table (the durable record of
// a call's terminal outcome).
func (s *Store) CountCallsInWindow(ctx context.Context, campaignID uint64, since time.Time) (int, int, error) {
	var total, abandoned int64
	if err := s.db.WithContext(ctx).Model(&store.CDRRow{}).
		Where("campaign_id = ? AND written_at >= ?", campaignID, since).
		Count(&total).Error; err != nil {
		return 0, 0, dialererr.New(dialererr.KindTransientNetwork, "gormstore.CountCallsInWindow", err)
	}

	abandonedOutcomes := []string{
		string(domain.CallStateNoAnswer), string(domain.CallStateBusy),
		string(domain.CallStateAbandoned), string(domain.CallStateFailed),
	}
	if err := s.db.WithContext(ctx).Model(&store.CDRRow{}).
		Where("campaign_id = ? AND written_at >= ? AND outcome IN ?", campaignID, since, abandonedOutcomes).
		Count(&abandoned).Error; err != nil {
		return 0, 0, dialererr.New(dialererr.KindTransientNetwork, "gormstore.CountCallsInWindow", err)
	}
	return int(total), int(abandoned), nil
}
