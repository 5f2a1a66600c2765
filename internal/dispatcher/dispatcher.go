// Package dispatcher implements §4.11 LeadDispatcher: dialable-lead
// selection with timezone/call-window gating, retry scheduling and
// recycling, ported from PyDialer's Lead model methods
// (is_callable/is_in_call_window/schedule_next_attempt) and
// campaigns.services.LeadRecyclingService.
package dispatcher

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/logging"
)

// overfetchFactor is how much more than n the store is asked for, since
// the timezone gate can only be evaluated after the rows are in memory.
const overfetchFactor = 3

// LeadStore is the narrow read/write surface the dispatcher needs.
// FetchCandidates must already apply predicates 1-3 (status, attempts,
// DNC/consent) and order by (priority desc, last_call_at asc, created_at
// asc); the dispatcher applies the remaining gates and the over-fetch
// truncation in memory.
type LeadStore interface {
	FetchCandidates(ctx context.Context, campaignID uint64, limit int) ([]*domain.Lead, error)
	SaveLead(ctx context.Context, lead *domain.Lead) error
	RecyclableLeads(ctx context.Context, campaignID uint64, status domain.LeadStatus, olderThan time.Time, maxRecycle int, excludeDNC bool, limit int) ([]*domain.Lead, error)
}

// Dispatcher selects callable leads and manages their retry/recycle
// lifecycle.
type Dispatcher struct {
	store  LeadStore
	logger logging.Logger
	now    func() time.Time
}

func New(store LeadStore, logger logging.Logger) *Dispatcher {
	return &Dispatcher{store: store, logger: logger, now: time.Now}
}

// Select returns up to n currently-callable leads for campaign, ordered
// (priority desc, last_call_at asc, created_at asc). It over-fetches by
// overfetchFactor because the timezone gate can only be applied once the
// rows are loaded, then truncates to n.
func (d *Dispatcher) Select(ctx context.Context, campaign *domain.Campaign, n int) ([]*domain.Lead, error) {
	if n <= 0 {
		return nil, nil
	}
	candidates, err := d.store.FetchCandidates(ctx, campaign.ID, n*overfetchFactor)
	if err != nil {
		return nil, err
	}

	now := d.now()
	callable := make([]*domain.Lead, 0, len(candidates))
	for _, lead := range candidates {
		if d.isCallable(lead, campaign, now) {
			callable = append(callable, lead)
		}
	}

	sort.SliceStable(callable, func(i, j int) bool {
		a, b := callable[i], callable[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		at, bt := leadLastCallAt(a), leadLastCallAt(b)
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	if len(callable) > n {
		callable = callable[:n]
	}
	return callable, nil
}

// isCallable evaluates gating predicates 4-6; predicates 1-3 are assumed
// already applied by FetchCandidates.
func (d *Dispatcher) isCallable(lead *domain.Lead, campaign *domain.Campaign, now time.Time) bool {
	if lead.LastCallAt != nil && now.Sub(*lead.LastCallAt) < campaign.Retry.MinGap {
		return false
	}
	if lead.DoNotCallAfter != nil && now.After(*lead.DoNotCallAfter) {
		return false
	}
	return d.inCallWindow(lead, campaign, now)
}

// inCallWindow converts now to the lead's timezone (falling back to the
// campaign's, then UTC), checks the weekday mask and daily window, and
// additionally applies the lead's own best-call-time range if set.
func (d *Dispatcher) inCallWindow(lead *domain.Lead, campaign *domain.Campaign, now time.Time) bool {
	loc := resolveLocation(lead.Timezone, campaign.Timezone)
	local := now.In(loc)

	weekday := uint8(local.Weekday())
	if campaign.WeekdayMask&(1<<weekday) == 0 {
		return false
	}

	minuteOfDay := local.Hour()*60 + local.Minute()
	if !campaign.Window.Contains(minuteOfDay) {
		return false
	}
	if lead.BestCallWindow != nil && !lead.BestCallWindow.Contains(minuteOfDay) {
		return false
	}
	return true
}

func resolveLocation(leadTZ, campaignTZ string) *time.Location {
	if leadTZ != "" {
		if loc, err := time.LoadLocation(leadTZ); err == nil {
			return loc
		}
	}
	if campaignTZ != "" {
		if loc, err := time.LoadLocation(campaignTZ); err == nil {
			return loc
		}
	}
	return time.UTC
}

func leadLastCallAt(l *domain.Lead) time.Time {
	if l.LastCallAt == nil {
		return time.Time{}
	}
	return *l.LastCallAt
}

// Outcome is a terminal dial result fed back into ScheduleRetry.
type Outcome string

const (
	OutcomeNoAnswer     Outcome = "no_answer"
	OutcomeBusy         Outcome = "busy"
	OutcomeDisconnected Outcome = "disconnected"
	OutcomeAnswered     Outcome = "answered"
	OutcomeCompleted    Outcome = "completed"
	OutcomeInvalid      Outcome = "invalid"
	// OutcomeMachine is a contact outcome: AMD classified the pickup as an
	// answering machine, so the line is live but no human screened the
	// call away. It is a distinct outcome from OutcomeNoAnswer (no pickup
	// at all) even though both currently recycle the lead as not-yet-
	// reached, per §3's supplemented AMD verdict lifecycle.
	OutcomeMachine Outcome = "machine"
)

// leadStatusForOutcome maps a dial outcome to the stored lead status.
// OutcomeMachine has no dedicated LeadStatus — a machine pickup still
// means nobody answered for the campaign's purposes — but ScheduleRetry
// treats it as a contact, not a no-contact, when computing the next
// attempt's backoff.
func leadStatusForOutcome(outcome Outcome) domain.LeadStatus {
	if outcome == OutcomeMachine {
		return domain.LeadStatusNoAnswer
	}
	return domain.LeadStatus(outcome)
}

// ScheduleRetry records a dial outcome: status becomes the outcome,
// attempts increments, last_call_at is stamped now, and next_call_at is
// set using the campaign's retry policy. A machine-detected pickup is a
// contact, not a no-answer, so it backs off at half the configured gap
// rather than the full no-contact gap. A StateConflict from the store
// (optimistic-concurrency failure) is retried once before giving up, per
// the supplemented optimistic-concurrency behavior.
func (d *Dispatcher) ScheduleRetry(ctx context.Context, lead *domain.Lead, campaign *domain.Campaign, outcome Outcome) error {
	apply := func() error {
		lead.Status = leadStatusForOutcome(outcome)
		lead.Attempts++
		now := d.now()
		lead.LastCallAt = &now
		gap := campaign.Retry.MinGap
		if outcome == OutcomeMachine {
			gap /= 2
		}
		next := now.Add(gap)
		lead.NextCallAt = &next
		return d.store.SaveLead(ctx, lead)
	}

	err := apply()
	var conflict *dialererr.Error
	if errors.As(err, &conflict) && conflict.Kind == dialererr.KindStateConflict {
		d.logger.Warnf("lead save conflict, retrying once: lead_id=%d", lead.ID)
		err = apply()
	}
	return err
}

// RecycleResults counts leads reset per originating status.
type RecycleResults map[domain.LeadStatus]int

// Recycle sweeps no_answer/busy/disconnected leads whose last_call_at is
// older than the campaign's per-outcome threshold and whose recycle
// counter is below the campaign max, resetting them to status=new,
// attempts=0, recycle_count+=1. Gated by campaign activity and the
// optional business-hours restriction; calling it twice within the same
// interval with no intervening call activity produces no further resets
// because the recyclable set is empty the second time.
func (d *Dispatcher) Recycle(ctx context.Context, campaign *domain.Campaign, batchSize int) (RecycleResults, error) {
	results := RecycleResults{}
	if !d.canRecycleNow(campaign) {
		return results, nil
	}

	now := d.now()
	thresholds := map[domain.LeadStatus]int{
		domain.LeadStatusNoAnswer:     campaign.Recycle.NoAnswerDays,
		domain.LeadStatusBusy:         campaign.Recycle.BusyDays,
		domain.LeadStatusDisconnected: campaign.Recycle.DisconnectedDays,
	}

	for status, days := range thresholds {
		if days <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -days)
		leads, err := d.store.RecyclableLeads(ctx, campaign.ID, status, cutoff, campaign.Recycle.MaxRecycles, campaign.Recycle.ExcludeDNC, batchSize)
		if err != nil {
			return results, err
		}
		for _, lead := range leads {
			if !d.recycleLead(ctx, lead, campaign) {
				continue
			}
			results[status]++
		}
	}
	return results, nil
}

func (d *Dispatcher) canRecycleNow(campaign *domain.Campaign) bool {
	if !campaign.RecycleEnabled {
		return false
	}
	if campaign.Status != domain.CampaignStatusActive {
		return false
	}
	if campaign.Recycle.BusinessHoursOnly {
		now := d.now()
		loc := resolveLocation("", campaign.Timezone)
		local := now.In(loc)
		if !campaign.Window.Contains(local.Hour()*60 + local.Minute()) {
			return false
		}
	}
	return true
}

func (d *Dispatcher) recycleLead(ctx context.Context, lead *domain.Lead, campaign *domain.Campaign) bool {
	if lead.RecycleCount >= campaign.Recycle.MaxRecycles {
		return false
	}
	if campaign.Recycle.ExcludeDNC && lead.DNC {
		return false
	}
	lead.Status = domain.LeadStatusNew
	lead.Attempts = 0
	lead.RecycleCount++
	lead.NextCallAt = nil
	lead.LastCallAt = nil
	if err := d.store.SaveLead(ctx, lead); err != nil {
		d.logger.Errorf("recycle save failed: lead_id=%d error=%v", lead.ID, err)
		return false
	}
	return true
}
