package store

import (
	"strings"
	"time"

	"github.com/rapidaai/dialer/internal/domain"
)

func CampaignToRow(c *domain.Campaign) *CampaignRow {
	return &CampaignRow{
		ID: c.ID, Name: c.Name, Mode: string(c.Mode), Status: string(c.Status),
		PacingRatio: c.PacingRatio, DropSLA: c.DropSLA, CurrentDropRate: c.CurrentDropRate,
		WeekdayMask: c.WeekdayMask, WindowStart: c.Window.StartMinute, WindowEnd: c.Window.EndMinute,
		Timezone: c.Timezone, RetryMaxAttempts: c.Retry.MaxAttempts, RetryMinGapSeconds: int(c.Retry.MinGap.Seconds()),
		RecycleNoAnswerDays: c.Recycle.NoAnswerDays, RecycleBusyDays: c.Recycle.BusyDays,
		RecycleDisconnectedDays: c.Recycle.DisconnectedDays, RecycleMaxAttempts: c.Recycle.MaxRecycles,
		RecycleExcludeDNC: c.Recycle.ExcludeDNC, RecycleBusinessHoursOnly: c.Recycle.BusinessHoursOnly,
		RecycleEnabled: c.RecycleEnabled, EnableAMD: c.EnableAMD,
		RequiredSkillsCSV: strings.Join(c.RequiredSkills, ","), CallerID: c.CallerID,
		MaxConcurrent: c.MaxConcurrent, CreatedAt: c.CreatedAt,
	}
}

func RowToCampaign(r *CampaignRow) *domain.Campaign {
	var skills []string
	if r.RequiredSkillsCSV != "" {
		skills = strings.Split(r.RequiredSkillsCSV, ",")
	}
	return &domain.Campaign{
		ID: r.ID, Name: r.Name, Mode: domain.DialingMode(r.Mode), Status: domain.CampaignStatus(r.Status),
		PacingRatio: r.PacingRatio, DropSLA: r.DropSLA, CurrentDropRate: r.CurrentDropRate,
		WeekdayMask: r.WeekdayMask, Window: domain.TimeWindow{StartMinute: r.WindowStart, EndMinute: r.WindowEnd},
		Timezone: r.Timezone,
		Retry:    domain.RetryPolicy{MaxAttempts: r.RetryMaxAttempts, MinGap: time.Duration(r.RetryMinGapSeconds) * time.Second},
		Recycle: domain.RecycleThresholds{
			NoAnswerDays: r.RecycleNoAnswerDays, BusyDays: r.RecycleBusyDays, DisconnectedDays: r.RecycleDisconnectedDays,
			MaxRecycles: r.RecycleMaxAttempts, ExcludeDNC: r.RecycleExcludeDNC, BusinessHoursOnly: r.RecycleBusinessHoursOnly,
		},
		RecycleEnabled: r.RecycleEnabled, EnableAMD: r.EnableAMD, RequiredSkills: skills,
		CallerID: r.CallerID, MaxConcurrent: r.MaxConcurrent, CreatedAt: r.CreatedAt,
	}
}

func LeadToRow(l *domain.Lead) *LeadRow {
	row := &LeadRow{
		ID: l.ID, CampaignID: l.CampaignID, Phone: l.Phone, AltPhone: l.AltPhone, Timezone: l.Timezone,
		Status: string(l.Status), Attempts: l.Attempts, RecycleCount: l.RecycleCount,
		LastCallAt: l.LastCallAt, NextCallAt: l.NextCallAt, Priority: l.Priority,
		DNC: l.DNC, Consent: l.Consent, DoNotCallAfter: l.DoNotCallAfter, CreatedAt: l.CreatedAt, Version: l.Version,
	}
	if l.BestCallWindow != nil {
		row.BestWindowStart = &l.BestCallWindow.StartMinute
		row.BestWindowEnd = &l.BestCallWindow.EndMinute
	}
	return row
}

func RowToLead(r *LeadRow) *domain.Lead {
	lead := &domain.Lead{
		ID: r.ID, CampaignID: r.CampaignID, Phone: r.Phone, AltPhone: r.AltPhone, Timezone: r.Timezone,
		Status: domain.LeadStatus(r.Status), Attempts: r.Attempts, RecycleCount: r.RecycleCount,
		LastCallAt: r.LastCallAt, NextCallAt: r.NextCallAt, Priority: r.Priority,
		DNC: r.DNC, Consent: r.Consent, DoNotCallAfter: r.DoNotCallAfter, CreatedAt: r.CreatedAt, Version: r.Version,
	}
	if r.BestWindowStart != nil && r.BestWindowEnd != nil {
		lead.BestCallWindow = &domain.TimeWindow{StartMinute: *r.BestWindowStart, EndMinute: *r.BestWindowEnd}
	}
	return lead
}

func CallTaskToRow(t *domain.CallTask) *CallTaskRow {
	return &CallTaskRow{
		ID: t.ID, LeadID: t.LeadID, CampaignID: t.CampaignID, AgentID: t.AgentID, State: string(t.State),
		Phone: t.Phone, ChannelID: t.ChannelID, QueuedAt: t.QueuedAt, DialingAt: t.DialingAt,
		AnsweredAt: t.AnsweredAt, ConnectedAt: t.ConnectedAt, CompletedAt: t.CompletedAt,
		AMDVerdict: string(t.AMDVerdict), AMDConfidence: t.AMDConfidence, RetryCount: t.RetryCount, LastError: t.LastError,
	}
}

func RowToCallTask(r *CallTaskRow) *domain.CallTask {
	return &domain.CallTask{
		ID: r.ID, LeadID: r.LeadID, CampaignID: r.CampaignID, AgentID: r.AgentID, State: domain.CallTaskState(r.State),
		Phone: r.Phone, ChannelID: r.ChannelID, QueuedAt: r.QueuedAt, DialingAt: r.DialingAt,
		AnsweredAt: r.AnsweredAt, ConnectedAt: r.ConnectedAt, CompletedAt: r.CompletedAt,
		AMDVerdict: domain.AMDVerdict(r.AMDVerdict), AMDConfidence: r.AMDConfidence, RetryCount: r.RetryCount, LastError: r.LastError,
	}
}

func RecordingToRow(m *domain.RecordingMetadata) *RecordingRow {
	return &RecordingRow{
		ID: m.ID, CallTaskID: m.CallTaskID, AgentID: m.AgentID, Start: m.Start, End: m.End,
		Format: m.Format, SampleRate: m.SampleRate, Backend: m.Backend, Path: m.Path, Checksum: m.Checksum,
		RetentionDeadline: m.RetentionDeadline, Consent: m.Consent, State: string(m.State),
	}
}

func RowToRecording(r *RecordingRow) *domain.RecordingMetadata {
	return &domain.RecordingMetadata{
		ID: r.ID, CallTaskID: r.CallTaskID, AgentID: r.AgentID, Start: r.Start, End: r.End,
		Format: r.Format, SampleRate: r.SampleRate, Backend: r.Backend, Path: r.Path, Checksum: r.Checksum,
		RetentionDeadline: r.RetentionDeadline, Consent: r.Consent, State: domain.RecordingState(r.State),
	}
}
