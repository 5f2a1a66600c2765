// Package pacing implements §4.9 PacingEngine: the multi-factor pacing
// ratio calculation that drives predictive dialing concurrency, ported
// from PyDialer's PacingCalculator.
package pacing

import (
	"math"
	"time"

	"github.com/rapidaai/dialer/internal/domain"
)

// AgentMetrics is the agent-status snapshot the ratio calculation reads,
// equivalent to AgentAvailabilityTracker.get_current_agent_metrics.
type AgentMetrics struct {
	TotalAssigned int
	LoggedIn      int
	Available     int
	OnCall        int
}

// HistoricalData is the rolling-window call performance snapshot,
// equivalent to get_agent_utilization_history.
type HistoricalData struct {
	TotalCalls    int
	AnsweredCalls int
	ContactRate   float64 // percent
	Utilization   float64 // percent
}

// Details carries every intermediate factor, mirroring the original's
// calculation_details dict for observability/audit logging.
type Details struct {
	BaseRatio               float64
	ContactRateFactor       float64
	DropRateFactor          float64
	AgentAvailabilityFactor float64
	UtilizationFactor       float64
	TimeOfDayFactor         float64
	AdjustedRatio           float64
	OptimalRatio            float64
}

// Calculator computes the optimal pacing ratio for one campaign.
type Calculator struct {
	now func() time.Time
}

func NewCalculator(now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{now: now}
}

// CalculateOptimalRatio is the Go port of calculate_optimal_pacing_ratio:
// base ratio times five independent adjustment factors, clamped to
// [0.5, min(10.0, 2x total assigned agents)].
func (c *Calculator) CalculateOptimalRatio(campaign *domain.Campaign, agents AgentMetrics, hist HistoricalData) Details {
	base := campaign.PacingRatio

	d := Details{
		BaseRatio:               base,
		ContactRateFactor:       contactRateFactor(hist.ContactRate),
		DropRateFactor:          dropRateFactor(campaign.CurrentDropRate, campaign.DropSLA),
		AgentAvailabilityFactor: agentAvailabilityFactor(agents),
		UtilizationFactor:       utilizationFactor(hist.Utilization),
		TimeOfDayFactor:         timeOfDayFactor(c.now()),
	}

	d.AdjustedRatio = base * d.ContactRateFactor * d.DropRateFactor * d.AgentAvailabilityFactor * d.UtilizationFactor * d.TimeOfDayFactor

	minRatio := 0.5
	maxRatio := math.Min(10.0, float64(agents.TotalAssigned)*2.0)
	d.OptimalRatio = math.Max(minRatio, math.Min(d.AdjustedRatio, maxRatio))
	return d
}

func contactRateFactor(contactRate float64) float64 {
	switch {
	case contactRate >= 50.0:
		return 0.8 + (contactRate-50)/100*0.1
	case contactRate >= 30.0:
		return 0.9 + (contactRate-30)/20*0.1
	case contactRate >= 15.0:
		return 1.0 + (30-contactRate)/15*0.3
	default:
		return 1.3 + (15-contactRate)/15*0.4
	}
}

func dropRateFactor(currentDropRate, slaDropRate float64) float64 {
	if slaDropRate <= 0 {
		return 1.0
	}
	switch {
	case currentDropRate > slaDropRate*1.2:
		return 0.5
	case currentDropRate > slaDropRate:
		excessRatio := currentDropRate / slaDropRate
		return math.Max(0.6, 1.0-(excessRatio-1.0)*0.4)
	case currentDropRate < slaDropRate*0.5:
		return math.Min(1.3, 1.0+(slaDropRate*0.5-currentDropRate)/(slaDropRate*0.5)*0.3)
	default:
		return 1.0
	}
}

func agentAvailabilityFactor(m AgentMetrics) float64 {
	if m.LoggedIn == 0 {
		return 0.0
	}
	ratio := float64(m.Available) / float64(m.LoggedIn)
	switch {
	case ratio >= 0.8:
		return 1.2
	case ratio >= 0.6:
		return 1.0
	case ratio >= 0.4:
		return 0.9
	case ratio >= 0.2:
		return 0.7
	default:
		return 0.5
	}
}

func utilizationFactor(utilization float64) float64 {
	switch {
	case utilization >= 90.0:
		return 0.8
	case utilization >= 75.0:
		return 0.9
	case utilization >= 60.0:
		return 1.0
	case utilization >= 40.0:
		return 1.1
	default:
		return 1.3
	}
}

func timeOfDayFactor(now time.Time) float64 {
	hour := now.Hour()
	switch {
	case (hour >= 10 && hour <= 14) || (hour >= 18 && hour <= 20):
		return 1.1
	case hour >= 8 && hour <= 17:
		return 1.0
	case (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19):
		return 0.95
	default:
		return 0.8
	}
}

// adjustmentThreshold is the 5% hysteresis band from should_adjust_pacing.
const adjustmentThreshold = 0.05

// ShouldAdjust reports whether the pacing ratio should move, applying the
// 5% hysteresis band so small fluctuations don't cause thrashing.
func ShouldAdjust(currentRatio, optimalRatio float64) (bool, float64) {
	if currentRatio == 0 {
		return optimalRatio != 0, optimalRatio
	}
	diff := math.Abs(optimalRatio-currentRatio) / currentRatio
	if diff > adjustmentThreshold {
		return true, optimalRatio
	}
	return false, currentRatio
}
