// Package store defines the gorm row models that back every domain
// entity, plus the to/from-domain conversions the gormstore package uses.
// Modeled on the teacher's callcontext.CallContext row
// (internal/callcontext/store.go): a plain gorm.Model-shaped struct with
// explicit column types, no ORM-magic associations.
package store

import "time"

// CampaignRow is the gorm row for domain.Campaign.
type CampaignRow struct {
	ID              uint64 `gorm:"primaryKey"`
	Name            string `gorm:"uniqueIndex;size:255"`
	Mode            string `gorm:"size:32"`
	Status          string `gorm:"size:32;index"`
	PacingRatio     float64
	DropSLA         float64
	CurrentDropRate float64
	WeekdayMask     uint8
	WindowStart     int
	WindowEnd       int
	Timezone        string `gorm:"size:64"`
	RetryMaxAttempts int
	RetryMinGapSeconds int
	RecycleNoAnswerDays int
	RecycleBusyDays     int
	RecycleDisconnectedDays int
	RecycleMaxAttempts  int
	RecycleExcludeDNC   bool
	RecycleBusinessHoursOnly bool
	RecycleEnabled      bool
	EnableAMD           bool
	RequiredSkillsCSV   string
	CallerID            string `gorm:"size:32"`
	MaxConcurrent       int
	CreatedAt           time.Time
}

func (CampaignRow) TableName() string { return "campaigns" }

// LeadRow is the gorm row for domain.Lead.
type LeadRow struct {
	ID             uint64 `gorm:"primaryKey"`
	CampaignID     uint64 `gorm:"index:idx_leads_dialable"`
	Phone          string `gorm:"size:32;index"`
	AltPhone       string `gorm:"size:32"`
	Timezone       string `gorm:"size:64"`
	BestWindowStart *int
	BestWindowEnd   *int
	Status          string `gorm:"size:32;index:idx_leads_dialable"`
	Attempts        int
	RecycleCount    int
	LastCallAt      *time.Time `gorm:"index:idx_leads_dialable"`
	NextCallAt      *time.Time
	Priority        int
	DNC             bool
	Consent         bool
	DoNotCallAfter  *time.Time
	CreatedAt       time.Time
	Version         int
}

func (LeadRow) TableName() string { return "leads" }

// CallTaskRow is the gorm row for domain.CallTask.
type CallTaskRow struct {
	ID            uint64 `gorm:"primaryKey"`
	LeadID        uint64
	CampaignID    uint64 `gorm:"index"`
	AgentID       *string
	State         string `gorm:"size:32;index"`
	Phone         string `gorm:"size:32"`
	ChannelID     string `gorm:"size:64;uniqueIndex"`
	QueuedAt      time.Time
	DialingAt     *time.Time
	AnsweredAt    *time.Time
	ConnectedAt   *time.Time
	CompletedAt   *time.Time
	AMDVerdict    string `gorm:"size:16"`
	AMDConfidence float64
	RetryCount    int
	LastError     string `gorm:"size:512"`
}

func (CallTaskRow) TableName() string { return "call_tasks" }

// CDRRow is the gorm row for domain.CDR.
type CDRRow struct {
	ID                  uint64 `gorm:"primaryKey"`
	CallTaskID          uint64 `gorm:"index"`
	CampaignID          uint64 `gorm:"index:idx_cdr_campaign_time"`
	LeadID              uint64
	RingDurationSeconds float64
	TalkDurationSeconds float64
	HoldDurationSeconds float64
	WrapDurationSeconds float64
	Outcome             string `gorm:"size:32"`
	HangupParty         string `gorm:"size:16"`
	CostCents           int64
	WrittenAt           time.Time `gorm:"index:idx_cdr_campaign_time"`
}

func (CDRRow) TableName() string { return "cdrs" }

// RecordingRow is the gorm row for domain.RecordingMetadata.
type RecordingRow struct {
	ID                string `gorm:"primaryKey;size:36"`
	CallTaskID        uint64 `gorm:"index"`
	AgentID           string `gorm:"size:64"`
	Start             time.Time
	End               *time.Time
	Format            string `gorm:"size:16"`
	SampleRate        int
	Backend           string `gorm:"size:16"`
	Path              string `gorm:"size:512"`
	Checksum          string `gorm:"size:64"`
	RetentionDeadline time.Time `gorm:"index"`
	Consent           bool
	State             string `gorm:"size:16"`
}

func (RecordingRow) TableName() string { return "recordings" }
