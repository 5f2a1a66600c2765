// Package store wires the two halves of scheduler.AgentMetricsSource
// together: live agent counts live in Redis (store/cache, since they
// change on every presence update) while contact-rate history lives in
// Postgres (store/gormstore, since it is computed from durable call
// records). Neither half alone satisfies the interface the scheduler
// needs, so this file composes them.
package store

import (
	"context"

	"github.com/rapidaai/dialer/internal/pacing"
)

// AgentCounter supplies the live half of the snapshot.
type AgentCounter interface {
	AgentMetrics(ctx context.Context, campaignID uint64) (pacing.AgentMetrics, error)
}

// HistoryLookup supplies the historical half.
type HistoryLookup interface {
	CallHistory(ctx context.Context, campaignID uint64) (pacing.HistoricalData, error)
}

// CombinedMetricsSource implements scheduler.AgentMetricsSource by
// fanning a single call out to the presence cache and the relational
// store and joining their results.
type CombinedMetricsSource struct {
	Agents  AgentCounter
	History HistoryLookup
}

func NewCombinedMetricsSource(agents AgentCounter, history HistoryLookup) *CombinedMetricsSource {
	return &CombinedMetricsSource{Agents: agents, History: history}
}

func (c *CombinedMetricsSource) AgentMetrics(ctx context.Context, campaignID uint64) (pacing.AgentMetrics, pacing.HistoricalData, error) {
	agents, err := c.Agents.AgentMetrics(ctx, campaignID)
	if err != nil {
		return pacing.AgentMetrics{}, pacing.HistoricalData{}, err
	}
	hist, err := c.History.CallHistory(ctx, campaignID)
	if err != nil {
		return pacing.AgentMetrics{}, pacing.HistoricalData{}, err
	}
	return agents, hist, nil
}
