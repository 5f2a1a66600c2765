package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/logging"
)

type fakeLeadStore struct {
	candidates []*domain.Lead
	recyclable []*domain.Lead
	saved      []*domain.Lead
}

func (f *fakeLeadStore) FetchCandidates(ctx context.Context, campaignID uint64, limit int) ([]*domain.Lead, error) {
	if limit > len(f.candidates) {
		limit = len(f.candidates)
	}
	return f.candidates[:limit], nil
}

func (f *fakeLeadStore) SaveLead(ctx context.Context, lead *domain.Lead) error {
	f.saved = append(f.saved, lead)
	return nil
}

func (f *fakeLeadStore) RecyclableLeads(ctx context.Context, campaignID uint64, status domain.LeadStatus, olderThan time.Time, maxRecycle int, excludeDNC bool, limit int) ([]*domain.Lead, error) {
	var out []*domain.Lead
	for _, l := range f.recyclable {
		if l.Status != status {
			continue
		}
		if l.LastCallAt == nil || !l.LastCallAt.Before(olderThan) {
			continue
		}
		if l.RecycleCount >= maxRecycle {
			continue
		}
		if excludeDNC && l.DNC {
			continue
		}
		out = append(out, l)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// businessHoursCampaign returns a campaign open every day 09:00-17:00 local.
func businessHoursCampaign(tz string) *domain.Campaign {
	return &domain.Campaign{
		ID:          1,
		Status:      domain.CampaignStatusActive,
		WeekdayMask: 0x7F, // all days
		Window:      domain.TimeWindow{StartMinute: 9 * 60, EndMinute: 17 * 60},
		Timezone:    tz,
		Retry:       domain.RetryPolicy{MaxAttempts: 5, MinGap: time.Hour},
	}
}

// TestSelectTimezoneGateExcludesOutOfWindowLead covers the spec's
// timezone-gated selection scenario: a lead whose local time falls
// outside the campaign's call window must not be selected even though
// every other predicate holds, while an in-window lead in a different
// zone is.
func TestSelectTimezoneGateExcludesOutOfWindowLead(t *testing.T) {
	// Fixed instant: 2026-03-02 20:00 UTC (a Monday).
	fixedNow := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)

	campaign := businessHoursCampaign("UTC")
	// New York is UTC-5 in March (before DST starts 2026-03-08): 20:00 UTC -> 15:00 local, in window.
	inWindow := &domain.Lead{ID: 1, CampaignID: 1, Status: domain.LeadStatusNew, Timezone: "America/New_York", CreatedAt: fixedNow}
	// Tokyo is UTC+9: 20:00 UTC -> 05:00 local next day, outside 09-17 window.
	outOfWindow := &domain.Lead{ID: 2, CampaignID: 1, Status: domain.LeadStatusNew, Timezone: "Asia/Tokyo", CreatedAt: fixedNow}

	store := &fakeLeadStore{candidates: []*domain.Lead{inWindow, outOfWindow}}
	d := New(store, logging.Noop{})
	d.now = func() time.Time { return fixedNow }

	selected, err := d.Select(context.Background(), campaign, 10)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(selected) != 1 || selected[0].ID != 1 {
		t.Fatalf("expected only the in-window lead selected, got %+v", selected)
	}
}

func TestSelectOverfetchesAndTruncatesToN(t *testing.T) {
	fixedNow := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	campaign := businessHoursCampaign("UTC")

	// FetchCandidates returns rows already ordered priority-desc, so the
	// fixture is listed that way: priorities 9, 8, ..., 0.
	var candidates []*domain.Lead
	for i := 0; i < 10; i++ {
		candidates = append(candidates, &domain.Lead{ID: uint64(i), CampaignID: 1, Status: domain.LeadStatusNew, Priority: 9 - i, CreatedAt: fixedNow})
	}
	store := &fakeLeadStore{candidates: candidates}
	d := New(store, logging.Noop{})
	d.now = func() time.Time { return fixedNow }

	selected, err := d.Select(context.Background(), campaign, 2)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(selected) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(selected))
	}
	// Highest priority (9) should sort first.
	if selected[0].Priority != 9 || selected[1].Priority != 8 {
		t.Fatalf("expected priority-desc ordering, got %+v", selected)
	}
}

func TestScheduleRetrySetsNextCallAtFromRetryPolicy(t *testing.T) {
	fixedNow := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &fakeLeadStore{}
	d := New(store, logging.Noop{})
	d.now = func() time.Time { return fixedNow }

	campaign := businessHoursCampaign("UTC")
	lead := &domain.Lead{ID: 1, Attempts: 2}

	if err := d.ScheduleRetry(context.Background(), lead, campaign, OutcomeNoAnswer); err != nil {
		t.Fatalf("schedule retry: %v", err)
	}
	if lead.Status != domain.LeadStatusNoAnswer || lead.Attempts != 3 {
		t.Fatalf("unexpected lead state: %+v", lead)
	}
	if lead.NextCallAt == nil || !lead.NextCallAt.Equal(fixedNow.Add(time.Hour)) {
		t.Fatalf("expected next_call_at = now + retry delay, got %v", lead.NextCallAt)
	}
}

func TestScheduleRetryMachineOutcomeUsesHalfBackoff(t *testing.T) {
	fixedNow := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &fakeLeadStore{}
	d := New(store, logging.Noop{})
	d.now = func() time.Time { return fixedNow }

	campaign := businessHoursCampaign("UTC")
	lead := &domain.Lead{ID: 1, Attempts: 0}

	if err := d.ScheduleRetry(context.Background(), lead, campaign, OutcomeMachine); err != nil {
		t.Fatalf("schedule retry: %v", err)
	}
	// An AMD machine verdict is a contact, not a no-answer, so it should
	// retry sooner than a true no-answer rather than sharing its backoff.
	if lead.Status != domain.LeadStatusNoAnswer || lead.Attempts != 1 {
		t.Fatalf("unexpected lead state: %+v", lead)
	}
	if lead.NextCallAt == nil || !lead.NextCallAt.Equal(fixedNow.Add(30*time.Minute)) {
		t.Fatalf("expected next_call_at = now + half retry delay, got %v", lead.NextCallAt)
	}
}

// TestRecycleResetsEligibleLeadAndIsIdempotent covers the spec's lead
// recycling scenario: a no_answer lead past its recycle threshold is
// reset to new/attempts=0/recycle_count=1, and a second immediate
// recycle pass with no intervening call activity makes no further
// changes.
func TestRecycleResetsEligibleLeadAndIsIdempotent(t *testing.T) {
	fixedNow := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	eightDaysAgo := fixedNow.AddDate(0, 0, -8)

	lead := &domain.Lead{ID: 1, CampaignID: 1, Status: domain.LeadStatusNoAnswer, Attempts: 3, RecycleCount: 0, LastCallAt: &eightDaysAgo}
	store := &fakeLeadStore{recyclable: []*domain.Lead{lead}}
	d := New(store, logging.Noop{})
	d.now = func() time.Time { return fixedNow }

	campaign := businessHoursCampaign("UTC")
	campaign.RecycleEnabled = true
	campaign.Recycle = domain.RecycleThresholds{NoAnswerDays: 7, BusyDays: 7, DisconnectedDays: 7, MaxRecycles: 2, ExcludeDNC: true}

	results, err := d.Recycle(context.Background(), campaign, 100)
	if err != nil {
		t.Fatalf("recycle: %v", err)
	}
	if results[domain.LeadStatusNoAnswer] != 1 {
		t.Fatalf("expected 1 lead recycled, got %+v", results)
	}
	if lead.Status != domain.LeadStatusNew || lead.Attempts != 0 || lead.RecycleCount != 1 {
		t.Fatalf("unexpected lead state after recycle: %+v", lead)
	}

	// Second pass: the lead's status is now "new", so RecyclableLeads (in
	// a real store) would no longer return it for the no_answer bucket.
	store.recyclable = nil
	results, err = d.Recycle(context.Background(), campaign, 100)
	if err != nil {
		t.Fatalf("recycle (second pass): %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no further resets on second pass, got %+v", results)
	}
}

func TestRecycleSkippedWhenCampaignInactive(t *testing.T) {
	fixedNow := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	eightDaysAgo := fixedNow.AddDate(0, 0, -8)
	lead := &domain.Lead{ID: 1, CampaignID: 1, Status: domain.LeadStatusNoAnswer, LastCallAt: &eightDaysAgo}
	store := &fakeLeadStore{recyclable: []*domain.Lead{lead}}
	d := New(store, logging.Noop{})
	d.now = func() time.Time { return fixedNow }

	campaign := businessHoursCampaign("UTC")
	campaign.RecycleEnabled = true
	campaign.Status = domain.CampaignStatusPaused
	campaign.Recycle = domain.RecycleThresholds{NoAnswerDays: 7, MaxRecycles: 2}

	results, err := d.Recycle(context.Background(), campaign, 100)
	if err != nil {
		t.Fatalf("recycle: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected recycling skipped for non-active campaign, got %+v", results)
	}
}
