package pacing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rapidaai/dialer/internal/domain"
)

func TestCalculateOptimalRatioWithinBounds(t *testing.T) {
	c := NewCalculator(func() time.Time { return time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC) })
	campaign := &domain.Campaign{PacingRatio: 2.0, DropSLA: 3.0, CurrentDropRate: 3.0}
	d := c.CalculateOptimalRatio(campaign, AgentMetrics{TotalAssigned: 10, LoggedIn: 10, Available: 8}, HistoricalData{ContactRate: 40, Utilization: 65})
	require.GreaterOrEqual(t, d.OptimalRatio, 0.5)
	require.LessOrEqual(t, d.OptimalRatio, 10.0)
}

func TestNoLoggedInAgentsZeroesAvailabilityFactor(t *testing.T) {
	c := NewCalculator(nil)
	campaign := &domain.Campaign{PacingRatio: 2.0, DropSLA: 5.0}
	d := c.CalculateOptimalRatio(campaign, AgentMetrics{TotalAssigned: 0, LoggedIn: 0, Available: 0}, HistoricalData{})
	require.Equal(t, 0.0, d.AgentAvailabilityFactor)
	require.Equal(t, 0.5, d.OptimalRatio, "expected ratio floor of 0.5 when adjusted ratio collapses to zero")
}

func TestDropRateOverSLAReducesPacingAggressively(t *testing.T) {
	factor := dropRateFactor(6.0, 3.0) // 2x SLA, > 1.2x threshold
	require.Equal(t, 0.5, factor, "expected aggressive 0.5 reduction factor")
}

func TestShouldAdjustRespectsFivePercentHysteresis(t *testing.T) {
	ok, ratio := ShouldAdjust(2.0, 2.05) // 2.5% diff, under threshold
	require.False(t, ok, "expected no adjustment within hysteresis band, got ratio=%f", ratio)

	ok, ratio = ShouldAdjust(2.0, 2.2) // 10% diff, over threshold
	require.True(t, ok)
	require.Equal(t, 2.2, ratio)
}

func TestTimeOfDayFactorPeaksDuringBusinessPeakHours(t *testing.T) {
	peak := timeOfDayFactor(time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC))
	overnight := timeOfDayFactor(time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC))
	require.Greater(t, peak, overnight)
}
