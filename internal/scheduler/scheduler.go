// Package scheduler implements §4.13 Scheduler: the periodic-tick driver
// that ticks PacingEngine, DropRateMonitor, InboundRouter and
// LeadDispatcher across every active campaign. Per-tick campaign fan-out
// uses golang.org/x/sync/errgroup, the same pattern the teacher uses to
// parallelize independent startup work in
// internal/agent/executor/llm/internal/websocket/websocket_executor.go;
// singleflight guards a tick against overlapping with a still-running
// previous tick of the same kind.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rapidaai/dialer/internal/dispatcher"
	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/droprate"
	"github.com/rapidaai/dialer/internal/logging"
	"github.com/rapidaai/dialer/internal/notify"
	"github.com/rapidaai/dialer/internal/pacing"
	"github.com/rapidaai/dialer/internal/router"
)

// CampaignLister provides the active-campaign set the scheduler fans out
// over; CampaignStore additionally persists pacing/stat mutations.
type CampaignLister interface {
	ActiveCampaigns(ctx context.Context) ([]*domain.Campaign, error)
}

// CampaignStore persists a campaign after an in-tick mutation (pacing
// ratio change, daily counter reset), using optimistic concurrency.
type CampaignStore interface {
	SaveCampaign(ctx context.Context, campaign *domain.Campaign) error
}

// AgentMetricsSource supplies the per-campaign agent/historical snapshot
// PacingEngine needs; a thin adapter over the presence cache/report store.
type AgentMetricsSource interface {
	AgentMetrics(ctx context.Context, campaignID uint64) (pacing.AgentMetrics, pacing.HistoricalData, error)
}

// Originator places N new calls for a campaign, delegated to
// TelephonyService via the dispatcher's selected leads.
type Originator interface {
	PlaceCalls(ctx context.Context, campaign *domain.Campaign, leads []*domain.Lead) error
}

// Scheduler drives all periodic work in one place so there is a single
// definition of "what runs how often" instead of scattered goroutines.
type Scheduler struct {
	campaigns   CampaignLister
	store       CampaignStore
	agentStats  AgentMetricsSource
	dispatch    *dispatcher.Dispatcher
	pacer       *pacing.Calculator
	dropMon     *droprate.Monitor
	inbound     *router.Router
	originator  Originator
	notifier    notify.Notifier
	keepalive   func(ctx context.Context) error
	logger      logging.Logger

	group singleflight.Group
	mu    sync.Mutex
	lastMidnightReset map[uint64]time.Time
	utilCache         map[uint64]float64 // campaignID -> last-rolled-up utilization percent
	lastSeverity      map[uint64]droprate.Severity // campaignID -> severity seen on the previous tick
}

// Config bundles the Scheduler's collaborators.
type Config struct {
	Campaigns  CampaignLister
	Store      CampaignStore
	AgentStats AgentMetricsSource
	Dispatch   *dispatcher.Dispatcher
	Pacer      *pacing.Calculator
	DropMon    *droprate.Monitor
	Inbound    *router.Router
	Originator Originator
	Notifier   notify.Notifier
	Keepalive  func(ctx context.Context) error
	Logger     logging.Logger
}

func New(cfg Config) *Scheduler {
	return &Scheduler{
		campaigns:         cfg.Campaigns,
		store:             cfg.Store,
		agentStats:        cfg.AgentStats,
		dispatch:          cfg.Dispatch,
		pacer:             cfg.Pacer,
		dropMon:           cfg.DropMon,
		inbound:           cfg.Inbound,
		originator:        cfg.Originator,
		notifier:          cfg.Notifier,
		keepalive:         cfg.Keepalive,
		logger:            cfg.Logger,
		lastMidnightReset: make(map[uint64]time.Time),
		utilCache:         make(map[uint64]float64),
	}
}

// Run blocks, driving every periodic job on its own ticker until ctx is
// cancelled. Jobs are idempotent and missed ticks are not backfilled —
// each ticker fires independently and a slow tick simply skips to the
// next one via singleflight rather than queuing.
func (s *Scheduler) Run(ctx context.Context) error {
	tickers := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context) error
	}{
		{"campaign_tick", 5 * time.Second, s.CampaignTick},
		{"inbound_monitor", 5 * time.Second, s.InboundMonitorTick},
		{"utilization_rollup", 30 * time.Second, s.UtilizationRollup},
		{"keepalive", 60 * time.Second, s.Keepalive},
		{"recycle", time.Hour, s.RecycleTick},
		{"midnight_reset", time.Minute, s.MidnightResetTick},
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, tk := range tickers {
		tk := tk
		g.Go(func() error {
			ticker := time.NewTicker(tk.interval)
			defer ticker.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
					s.runOnce(gCtx, tk.name, tk.fn)
				}
			}
		})
	}
	return g.Wait()
}

// runOnce executes fn under singleflight keyed by name so an
// overrunning tick never overlaps with the next firing of the same
// ticker; errors are logged, not propagated, so one failing job never
// stops the others.
func (s *Scheduler) runOnce(ctx context.Context, name string, fn func(context.Context) error) {
	_, _, _ = s.group.Do(name, func() (interface{}, error) {
		if err := fn(ctx); err != nil {
			s.logger.Errorf("scheduler: %s failed: %v", name, err)
		}
		return nil, nil
	})
}

// CampaignTick is the ~5s per-campaign job: refresh stats, tick pacing,
// evaluate drop rate compliance, apply any recommended adjustment, and
// place N new originations.
func (s *Scheduler) CampaignTick(ctx context.Context) error {
	active, err := s.campaigns.ActiveCampaigns(ctx)
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, campaign := range active {
		campaign := campaign
		g.Go(func() error {
			return s.tickCampaign(gCtx, campaign)
		})
	}
	return g.Wait()
}

func (s *Scheduler) tickCampaign(ctx context.Context, campaign *domain.Campaign) error {
	agents, hist, err := s.agentStats.AgentMetrics(ctx, campaign.ID)
	if err != nil {
		return err
	}

	hist.Utilization = s.utilizationFor(campaign.ID)

	details := s.pacer.CalculateOptimalRatio(campaign, agents, hist)
	if ok, newRatio := pacing.ShouldAdjust(campaign.PacingRatio, details.OptimalRatio); ok {
		campaign.PacingRatio = newRatio
	}

	check, err := s.dropMon.CheckCompliance(ctx, campaign)
	if err != nil {
		return err
	}
	rec := droprate.RecommendAdjustment(check, campaign)
	if newRatio, adjusted := droprate.ApplyAdjustment(rec, campaign.PacingRatio); adjusted {
		campaign.PacingRatio = newRatio
	}
	s.mu.Lock()
	if s.lastSeverity == nil {
		s.lastSeverity = make(map[uint64]droprate.Severity)
	}
	prevSeverity := s.lastSeverity[campaign.ID]
	s.lastSeverity[campaign.ID] = check.OverallSeverity
	s.mu.Unlock()
	enteredCritical := check.OverallSeverity == droprate.SeverityCritical && prevSeverity != droprate.SeverityCritical
	if enteredCritical && s.notifier != nil {
		if err := s.notifier.Notify(ctx, notify.Alert{
			Subject:  "drop rate critical: " + campaign.Name,
			Body:     rec.Reason,
			Severity: string(check.OverallSeverity),
		}); err != nil {
			s.logger.Errorf("scheduler: alert notify failed for campaign %d: %v", campaign.ID, err)
		}
	}

	if err := s.store.SaveCampaign(ctx, campaign); err != nil {
		return err
	}

	callsToPlace := int(float64(agents.Available) * campaign.PacingRatio)
	if callsToPlace <= 0 || s.originator == nil {
		return nil
	}
	leads, err := s.dispatch.Select(ctx, campaign, callsToPlace)
	if err != nil {
		return err
	}
	if len(leads) == 0 {
		return nil
	}
	return s.originator.PlaceCalls(ctx, campaign, leads)
}

// InboundMonitorTick is the ~5s InboundRouter pass: abandonment
// sweep, queue drain, and a queue-stats snapshot publish per queue (§4.3).
func (s *Scheduler) InboundMonitorTick(ctx context.Context) error {
	if s.inbound == nil {
		return nil
	}
	s.inbound.MonitorOnce(ctx)
	return nil
}

// UtilizationRollup is the ~30s agent utilization rollup job: it
// snapshots OnCall/LoggedIn per active campaign and caches the result as
// a percentage, which CampaignTick's next pacing calculation reads via
// utilizationFor — CallHistory's 24h-window query has no agent-presence
// dimension to draw this from (agent state lives in the presence cache,
// not the relational store), so the rollup is what actually populates it.
func (s *Scheduler) UtilizationRollup(ctx context.Context) error {
	active, err := s.campaigns.ActiveCampaigns(ctx)
	if err != nil {
		return err
	}
	for _, campaign := range active {
		agents, _, err := s.agentStats.AgentMetrics(ctx, campaign.ID)
		if err != nil {
			s.logger.Errorf("scheduler: utilization rollup failed for campaign %d: %v", campaign.ID, err)
			continue
		}
		utilization := 0.0
		if agents.LoggedIn > 0 {
			utilization = float64(agents.OnCall) / float64(agents.LoggedIn) * 100.0
		}
		s.mu.Lock()
		s.utilCache[campaign.ID] = utilization
		s.mu.Unlock()
	}
	return nil
}

func (s *Scheduler) utilizationFor(campaignID uint64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.utilCache[campaignID]
}

// Keepalive is the ~60s PBX connectivity check.
func (s *Scheduler) Keepalive(ctx context.Context) error {
	if s.keepalive == nil {
		return nil
	}
	return s.keepalive(ctx)
}

// RecycleTick is the hourly lead-recycling sweep across every campaign
// with recycling enabled.
func (s *Scheduler) RecycleTick(ctx context.Context) error {
	active, err := s.campaigns.ActiveCampaigns(ctx)
	if err != nil {
		return err
	}
	for _, campaign := range active {
		if !campaign.RecycleEnabled {
			continue
		}
		if _, err := s.dispatch.Recycle(ctx, campaign, 100); err != nil {
			s.logger.Errorf("scheduler: recycle failed for campaign %d: %v", campaign.ID, err)
		}
	}
	return nil
}

// MidnightResetTick runs every minute and resets each campaign's daily
// counters exactly once per local calendar day, the first time the tick
// observes local midnight has passed since the last reset.
func (s *Scheduler) MidnightResetTick(ctx context.Context) error {
	active, err := s.campaigns.ActiveCampaigns(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, campaign := range active {
		loc := time.UTC
		if campaign.Timezone != "" {
			if l, err := time.LoadLocation(campaign.Timezone); err == nil {
				loc = l
			}
		}
		now := time.Now().In(loc)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		if last, ok := s.lastMidnightReset[campaign.ID]; ok && !last.Before(today) {
			continue
		}
		campaign.CurrentDropRate = 0
		if err := s.store.SaveCampaign(ctx, campaign); err != nil {
			s.logger.Errorf("scheduler: midnight reset failed for campaign %d: %v", campaign.ID, err)
			continue
		}
		s.lastMidnightReset[campaign.ID] = today
	}
	return nil
}
