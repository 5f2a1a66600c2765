package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/pacing"
	"github.com/rapidaai/dialer/internal/store"
)

// ActiveCampaigns implements scheduler.CampaignLister.
func (s *Store) ActiveCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	var rows []store.CampaignRow
	if err := s.db.WithContext(ctx).Where("status = ?", string(domain.CampaignStatusActive)).Find(&rows).Error; err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "gormstore.ActiveCampaigns", err)
	}
	campaigns := make([]*domain.Campaign, len(rows))
	for i := range rows {
		campaigns[i] = store.RowToCampaign(&rows[i])
	}
	return campaigns, nil
}

// SaveCampaign implements scheduler.CampaignStore.
func (s *Store) SaveCampaign(ctx context.Context, campaign *domain.Campaign) error {
	row := store.CampaignToRow(campaign)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "gormstore.SaveCampaign", err)
	}
	campaign.ID = row.ID
	return nil
}

// CampaignByID is a convenience lookup used by the webhook/API layer.
func (s *Store) CampaignByID(ctx context.Context, id uint64) (*domain.Campaign, error) {
	var row store.CampaignRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dialererr.New(dialererr.KindNotFound, "gormstore.CampaignByID", err)
	}
	if err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "gormstore.CampaignByID", err)
	}
	return store.RowToCampaign(&row), nil
}

// CallHistory aggregates the call_tasks table into the rolling
// contact-rate snapshot pacing.Calculator needs. Agent-side utilization
// is filled in by the caller (see store.CombinedMetricsSource), since live
// agent presence lives in the Redis-backed cache, not this table.
func (s *Store) CallHistory(ctx context.Context, campaignID uint64) (pacing.HistoricalData, error) {
	var total, answered int64
	if err := s.db.WithContext(ctx).Model(&store.CallTaskRow{}).
		Where("campaign_id = ?", campaignID).Count(&total).Error; err != nil {
		return pacing.HistoricalData{}, dialererr.New(dialererr.KindTransientNetwork, "gormstore.CallHistory", err)
	}
	if err := s.db.WithContext(ctx).Model(&store.CallTaskRow{}).
		Where("campaign_id = ? AND state IN ?", campaignID, []string{string(domain.CallStateAnswered), string(domain.CallStateConnected), string(domain.CallStateCompleted)}).
		Count(&answered).Error; err != nil {
		return pacing.HistoricalData{}, dialererr.New(dialererr.KindTransientNetwork, "gormstore.CallHistory", err)
	}

	hist := pacing.HistoricalData{TotalCalls: int(total), AnsweredCalls: int(answered)}
	if total > 0 {
		hist.ContactRate = float64(answered) / float64(total) * 100.0
	}
	return hist, nil
}
