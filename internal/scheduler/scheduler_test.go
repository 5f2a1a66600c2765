package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rapidaai/dialer/internal/dispatcher"
	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/droprate"
	"github.com/rapidaai/dialer/internal/logging"
	"github.com/rapidaai/dialer/internal/pacing"
	"github.com/rapidaai/dialer/internal/router"
)

type fakeCampaigns struct {
	campaigns []*domain.Campaign
	saved     int32
}

func (f *fakeCampaigns) ActiveCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	return f.campaigns, nil
}

func (f *fakeCampaigns) SaveCampaign(ctx context.Context, campaign *domain.Campaign) error {
	atomic.AddInt32(&f.saved, 1)
	return nil
}

type fakeAgentStats struct{}

func (fakeAgentStats) AgentMetrics(ctx context.Context, campaignID uint64) (pacing.AgentMetrics, pacing.HistoricalData, error) {
	return pacing.AgentMetrics{TotalAssigned: 5, LoggedIn: 5, Available: 2}, pacing.HistoricalData{ContactRate: 40, Utilization: 50}, nil
}

type fakeCallStats struct{}

func (fakeCallStats) CountCallsInWindow(ctx context.Context, campaignID uint64, since time.Time) (int, int, error) {
	return 10, 0, nil
}

type fakeLeadStoreForSched struct{}

func (fakeLeadStoreForSched) FetchCandidates(ctx context.Context, campaignID uint64, limit int) ([]*domain.Lead, error) {
	return nil, nil
}
func (fakeLeadStoreForSched) SaveLead(ctx context.Context, lead *domain.Lead) error { return nil }
func (fakeLeadStoreForSched) RecyclableLeads(ctx context.Context, campaignID uint64, status domain.LeadStatus, olderThan time.Time, maxRecycle int, excludeDNC bool, limit int) ([]*domain.Lead, error) {
	return nil, nil
}

type fakeOriginator struct {
	calls int32
}

func (f *fakeOriginator) PlaceCalls(ctx context.Context, campaign *domain.Campaign, leads []*domain.Lead) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

func TestCampaignTickSavesEachActiveCampaignOnce(t *testing.T) {
	campaigns := &fakeCampaigns{campaigns: []*domain.Campaign{
		{ID: 1, Name: "a", Status: domain.CampaignStatusActive, PacingRatio: 1.0, DropSLA: 5.0},
		{ID: 2, Name: "b", Status: domain.CampaignStatusActive, PacingRatio: 1.0, DropSLA: 5.0},
	}}
	sched := New(Config{
		Campaigns:  campaigns,
		Store:      campaigns,
		AgentStats: fakeAgentStats{},
		Dispatch:   dispatcher.New(fakeLeadStoreForSched{}, logging.Noop{}),
		Pacer:      pacing.NewCalculator(nil),
		DropMon:    droprate.NewMonitor(fakeCallStats{}, logging.Noop{}),
		Logger:     logging.Noop{},
	})

	if err := sched.CampaignTick(context.Background()); err != nil {
		t.Fatalf("campaign tick: %v", err)
	}
	if atomic.LoadInt32(&campaigns.saved) != 2 {
		t.Fatalf("expected both campaigns saved, got %d", campaigns.saved)
	}
}

func TestCampaignTickPlacesNoCallsWhenNoLeadsSelected(t *testing.T) {
	campaigns := &fakeCampaigns{campaigns: []*domain.Campaign{
		{ID: 1, Name: "a", Status: domain.CampaignStatusActive, PacingRatio: 1.0, DropSLA: 5.0},
	}}
	orig := &fakeOriginator{}
	sched := New(Config{
		Campaigns:  campaigns,
		Store:      campaigns,
		AgentStats: fakeAgentStats{},
		Dispatch:   dispatcher.New(fakeLeadStoreForSched{}, logging.Noop{}),
		Pacer:      pacing.NewCalculator(nil),
		DropMon:    droprate.NewMonitor(fakeCallStats{}, logging.Noop{}),
		Originator: orig,
		Logger:     logging.Noop{},
	})

	if err := sched.CampaignTick(context.Background()); err != nil {
		t.Fatalf("campaign tick: %v", err)
	}
	// fakeLeadStoreForSched returns no candidates, so PlaceCalls should
	// never be invoked despite Available > 0.
	if atomic.LoadInt32(&orig.calls) != 0 {
		t.Fatalf("expected no calls placed with zero selected leads, got %d", orig.calls)
	}
}

type noAgentsLocator struct{}

func (noAgentsLocator) AvailableAgents(queue string, requiredSkills []string) []*domain.AgentPresence {
	return nil
}
func (noAgentsLocator) Assign(ctx context.Context, agentID string, call domain.QueuedCall) error {
	return nil
}

type fakeQueuePublisher struct {
	topics []string
}

func (f *fakeQueuePublisher) Publish(topic string, payload interface{}) {
	f.topics = append(f.topics, topic)
}

func TestInboundMonitorTickPublishesQueueSnapshot(t *testing.T) {
	pub := &fakeQueuePublisher{}
	r := router.New(noAgentsLocator{}, pub, logging.Noop{})
	r.AddQueue(router.QueueConfig{Name: "sales"})

	sched := New(Config{
		Campaigns: &fakeCampaigns{},
		Store:     &fakeCampaigns{},
		Inbound:   r,
		Logger:    logging.Noop{},
	})

	if err := sched.InboundMonitorTick(context.Background()); err != nil {
		t.Fatalf("inbound monitor tick: %v", err)
	}
	found := false
	for _, topic := range pub.topics {
		if topic == "queue/sales" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a queue/sales snapshot publish, got topics %v", pub.topics)
	}
}

func TestUtilizationRollupPopulatesCacheUsedByNextCampaignTick(t *testing.T) {
	campaigns := &fakeCampaigns{campaigns: []*domain.Campaign{
		{ID: 1, Name: "a", Status: domain.CampaignStatusActive, PacingRatio: 1.0, DropSLA: 5.0},
	}}
	sched := New(Config{
		Campaigns:  campaigns,
		Store:      campaigns,
		AgentStats: fakeAgentStats{}, // LoggedIn: 5, OnCall: 0 -> 0% utilization
		Dispatch:   dispatcher.New(fakeLeadStoreForSched{}, logging.Noop{}),
		Pacer:      pacing.NewCalculator(nil),
		DropMon:    droprate.NewMonitor(fakeCallStats{}, logging.Noop{}),
		Logger:     logging.Noop{},
	})

	if err := sched.UtilizationRollup(context.Background()); err != nil {
		t.Fatalf("utilization rollup: %v", err)
	}
	if got := sched.utilizationFor(1); got != 0 {
		t.Fatalf("expected 0%% utilization cached for zero on-call agents, got %f", got)
	}
}

func TestRunOnceDoesNotOverlapSameTickerName(t *testing.T) {
	sched := New(Config{
		Campaigns:  &fakeCampaigns{},
		Store:      &fakeCampaigns{},
		AgentStats: fakeAgentStats{},
		Dispatch:   dispatcher.New(fakeLeadStoreForSched{}, logging.Noop{}),
		Pacer:      pacing.NewCalculator(nil),
		DropMon:    droprate.NewMonitor(fakeCallStats{}, logging.Noop{}),
		Logger:     logging.Noop{},
	})

	var running int32
	var overlapped int32
	block := make(chan struct{})
	slow := func(ctx context.Context) error {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			atomic.StoreInt32(&overlapped, 1)
			return nil
		}
		defer atomic.StoreInt32(&running, 0)
		<-block
		return nil
	}

	done := make(chan struct{})
	go func() {
		sched.runOnce(context.Background(), "test_tick", slow)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	second := make(chan struct{})
	go func() {
		sched.runOnce(context.Background(), "test_tick", slow) // should join the in-flight call, not run concurrently
		close(second)
	}()
	time.Sleep(20 * time.Millisecond)
	close(block)
	<-done
	<-second

	if atomic.LoadInt32(&overlapped) != 0 {
		t.Fatalf("expected singleflight to prevent overlap")
	}
}
