// Package droprate implements §4.10 DropRateMonitor: multi-window
// compliance checking against a campaign's abandon-rate SLA, severity
// classification, and atomic pacing-ratio correction, ported from
// PyDialer's DropRateCalculator/DropRateMonitor.
package droprate

import (
	"context"
	"fmt"
	"time"

	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/logging"
)

// Severity is the overall compliance severity.
type Severity string

const (
	SeverityCompliant Severity = "compliant"
	SeverityMedium    Severity = "medium"
	SeverityHigh      Severity = "high"
	SeverityCritical  Severity = "critical"
)

// Action is the recommended pacing response to a compliance check.
type Action string

const (
	ActionIncreasePacing      Action = "increase_pacing"
	ActionMaintainPacing      Action = "maintain_pacing"
	ActionModerateReduction   Action = "moderate_reduction"
	ActionSignificantReduction Action = "significant_reduction"
	ActionEmergencyReduction  Action = "emergency_reduction"
)

// WindowStats is a single-window drop rate snapshot.
type WindowStats struct {
	Window      string
	Minutes     int
	TotalCalls  int
	Abandoned   int
	DropRate    float64 // percent
	SLAThreshold float64
	ExceedsSLA  bool
}

func windowStats(window string, minutes int, totalCalls, abandoned int, slaThreshold float64) WindowStats {
	dropRate := 0.0
	if totalCalls > 0 {
		dropRate = float64(abandoned) / float64(totalCalls) * 100.0
	}
	return WindowStats{
		Window: window, Minutes: minutes, TotalCalls: totalCalls, Abandoned: abandoned,
		DropRate: dropRate, SLAThreshold: slaThreshold, ExceedsSLA: dropRate > slaThreshold,
	}
}

// Violation records one window's SLA breach.
type Violation struct {
	Window    string
	DropRate  float64
	Threshold float64
	Severity  Severity
}

// ComplianceCheck is the result of checking all configured windows.
type ComplianceCheck struct {
	CampaignName string
	Violations   []Violation
	OverallSeverity Severity
	LastHour     WindowStats
	Last30Min    WindowStats
	Last15Min    WindowStats
	Daily        WindowStats
	CheckedAt    time.Time
}

// CallStats is the narrow read surface the monitor needs per window; the
// reporting/CDR store implements this.
type CallStats interface {
	CountCallsInWindow(ctx context.Context, campaignID uint64, since time.Time) (total, abandoned int, err error)
}

// Monitor checks a campaign's drop rate against SLA across 15/30/60
// minute and daily windows, and atomically corrects pacing on violation.
type Monitor struct {
	stats  CallStats
	logger logging.Logger
	now    func() time.Time
}

func NewMonitor(stats CallStats, logger logging.Logger) *Monitor {
	return &Monitor{stats: stats, logger: logger, now: time.Now}
}

// CheckCompliance evaluates the 60/30/15-minute and daily windows and
// classifies the overall severity per the original's rule: any 15-minute
// violation with >=10 samples escalates to high; two+ violations without
// a high one escalate to high overall; any high violation escalates the
// overall status to critical.
func (m *Monitor) CheckCompliance(ctx context.Context, campaign *domain.Campaign) (*ComplianceCheck, error) {
	now := m.now()
	hour, err := m.window(ctx, campaign, "last_hour", 60, now)
	if err != nil {
		return nil, err
	}
	half, err := m.window(ctx, campaign, "last_30_minutes", 30, now)
	if err != nil {
		return nil, err
	}
	quarter, err := m.window(ctx, campaign, "last_15_minutes", 15, now)
	if err != nil {
		return nil, err
	}
	daily, err := m.window(ctx, campaign, "today", int(now.Sub(startOfDay(now)).Minutes()), startOfDay(now))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	if hour.ExceedsSLA {
		sev := SeverityMedium
		if hour.DropRate >= hour.SLAThreshold*1.5 {
			sev = SeverityHigh
		}
		violations = append(violations, Violation{Window: hour.Window, DropRate: hour.DropRate, Threshold: hour.SLAThreshold, Severity: sev})
	}
	if half.ExceedsSLA {
		sev := SeverityMedium
		if half.DropRate >= half.SLAThreshold*1.5 {
			sev = SeverityHigh
		}
		violations = append(violations, Violation{Window: half.Window, DropRate: half.DropRate, Threshold: half.SLAThreshold, Severity: sev})
	}
	if quarter.ExceedsSLA && quarter.TotalCalls >= 10 {
		violations = append(violations, Violation{Window: quarter.Window, DropRate: quarter.DropRate, Threshold: quarter.SLAThreshold, Severity: SeverityHigh})
	}

	overall := SeverityCompliant
	if len(violations) > 0 {
		hasHigh := false
		for _, v := range violations {
			if v.Severity == SeverityHigh {
				hasHigh = true
			}
		}
		switch {
		case hasHigh:
			overall = SeverityCritical
		case len(violations) >= 2:
			overall = SeverityHigh
		default:
			overall = SeverityMedium
		}
	}

	return &ComplianceCheck{
		CampaignName: campaign.Name, Violations: violations, OverallSeverity: overall,
		LastHour: hour, Last30Min: half, Last15Min: quarter, Daily: daily, CheckedAt: now,
	}, nil
}

func (m *Monitor) window(ctx context.Context, campaign *domain.Campaign, name string, minutes int, since time.Time) (WindowStats, error) {
	cutoff := since
	if minutes > 0 && name != "today" {
		cutoff = m.now().Add(-time.Duration(minutes) * time.Minute)
	}
	total, abandoned, err := m.stats.CountCallsInWindow(ctx, campaign.ID, cutoff)
	if err != nil {
		return WindowStats{}, err
	}
	return windowStats(name, minutes, total, abandoned, campaign.DropSLA), nil
}

func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

// Recommendation is the pacing action recommended for a compliance check.
type Recommendation struct {
	Action               Action
	Reason               string
	Urgency              string
	AlertSupervisors     bool
	PauseNewCalls        bool
}

// RecommendAdjustment maps a compliance check to a pacing action,
// mirroring recommend_pacing_adjustment exactly.
func RecommendAdjustment(check *ComplianceCheck, campaign *domain.Campaign) Recommendation {
	if check.OverallSeverity == SeverityCompliant {
		if check.LastHour.DropRate < campaign.DropSLA*0.5 {
			return Recommendation{Action: ActionIncreasePacing, Reason: "drop rate well below SLA, can optimize efficiency", Urgency: "low"}
		}
		return Recommendation{Action: ActionMaintainPacing, Reason: "drop rate within acceptable range", Urgency: "none"}
	}

	switch check.OverallSeverity {
	case SeverityCritical:
		return Recommendation{Action: ActionEmergencyReduction, Reason: "critical drop rate violation requiring immediate action", Urgency: "immediate", AlertSupervisors: true, PauseNewCalls: true}
	case SeverityHigh:
		return Recommendation{Action: ActionSignificantReduction, Reason: "high drop rate violation", Urgency: "high", AlertSupervisors: true}
	default:
		return Recommendation{Action: ActionModerateReduction, Reason: "moderate drop rate violation", Urgency: "medium"}
	}
}

// ApplyAdjustment computes the new pacing ratio for a recommendation.
// Callers are responsible for persisting campaign.PacingRatio atomically
// (optimistic concurrency at the store layer), matching the original's
// transaction.atomic block.
func ApplyAdjustment(rec Recommendation, oldRatio float64) (newRatio float64, adjusted bool) {
	switch rec.Action {
	case ActionEmergencyReduction:
		return 0.5, true
	case ActionSignificantReduction:
		return max(0.5, oldRatio*0.7), true
	case ActionModerateReduction:
		return max(0.5, oldRatio*0.85), true
	case ActionIncreasePacing:
		return min(oldRatio*2, oldRatio*1.1), true
	default:
		return oldRatio, false
	}
}

// AuditEntry is the persisted record of one automatic pacing adjustment.
type AuditEntry struct {
	CampaignID uint64
	OldRatio   float64
	NewRatio   float64
	Reason     string
	Severity   Severity
	AppliedAt  time.Time
}

func (a AuditEntry) String() string {
	return fmt.Sprintf("campaign=%d %0.2f->%0.2f severity=%s reason=%q", a.CampaignID, a.OldRatio, a.NewRatio, a.Severity, a.Reason)
}
