// Package domain holds the core entities of the dialer: Campaign, Lead,
// CallTask, CDR, AgentPresence, QueuedCall and RecordingMetadata, plus the
// enums and invariants that the rest of the engine is built around.
package domain

import "time"

// DialingMode is a closed tagged variant — the set of campaign dialing
// strategies is fixed by regulation and product scope.
type DialingMode string

const (
	DialingModeManual      DialingMode = "manual"
	DialingModePreview     DialingMode = "preview"
	DialingModeProgressive DialingMode = "progressive"
	DialingModeRatio       DialingMode = "ratio"
	DialingModePredictive  DialingMode = "predictive"
)

// CampaignStatus is the campaign lifecycle: created inactive → active →
// paused/completed.
type CampaignStatus string

const (
	CampaignStatusInactive CampaignStatus = "inactive"
	CampaignStatusActive   CampaignStatus = "active"
	CampaignStatusPaused   CampaignStatus = "paused"
	CampaignStatusComplete CampaignStatus = "completed"
)

// TimeWindow is a local daily call window, HH:MM granularity.
type TimeWindow struct {
	StartMinute int // minutes since local midnight
	EndMinute   int
}

// Contains reports whether minute-of-day m falls within the window.
func (w TimeWindow) Contains(m int) bool {
	if w.StartMinute <= w.EndMinute {
		return m >= w.StartMinute && m <= w.EndMinute
	}
	// overnight window, e.g. 22:00-06:00
	return m >= w.StartMinute || m <= w.EndMinute
}

// RetryPolicy bounds a lead's re-dial attempts.
type RetryPolicy struct {
	MaxAttempts int
	MinGap      time.Duration
}

// RecycleThresholds maps a terminal outcome to how many days must pass
// before a lead in that state is recycled back to `new`.
type RecycleThresholds struct {
	NoAnswerDays    int
	BusyDays        int
	DisconnectedDays int
	MaxRecycles     int
	ExcludeDNC      bool
	BusinessHoursOnly bool
}

// Campaign is the unit of pacing, scheduling and dialing-mode selection.
type Campaign struct {
	ID             uint64
	Name           string
	Mode           DialingMode
	Status         CampaignStatus
	PacingRatio    float64 // r ∈ [1.0, 10.0], mutated by PacingEngine/DropRateMonitor
	DropSLA        float64 // δ, percent, [0,100]
	CurrentDropRate float64
	WeekdayMask    uint8 // bit 0 = Sunday .. bit 6 = Saturday
	Window         TimeWindow
	Timezone       string // IANA zone, fallback when a lead has none
	Retry          RetryPolicy
	Recycle        RecycleThresholds
	RecycleEnabled bool
	EnableAMD      bool
	RequiredSkills []string
	CallerID       string
	MaxConcurrent  int
	CreatedAt      time.Time
}

// LeadStatus is the lead lifecycle per §3.
type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "new"
	LeadStatusActive       LeadStatus = "active"
	LeadStatusCalled       LeadStatus = "called"
	LeadStatusAnswered     LeadStatus = "answered"
	LeadStatusNoAnswer     LeadStatus = "no_answer"
	LeadStatusBusy         LeadStatus = "busy"
	LeadStatusDisconnected LeadStatus = "disconnected"
	LeadStatusCallback     LeadStatus = "callback"
	LeadStatusDNC          LeadStatus = "dnc"
	LeadStatusCompleted    LeadStatus = "completed"
	LeadStatusInvalid      LeadStatus = "invalid"
	LeadStatusRetry        LeadStatus = "retry"
)

// Lead is a dialable phone record.
type Lead struct {
	ID              uint64
	CampaignID      uint64
	Phone           string // E.164
	AltPhone        string
	Timezone        string
	BestCallWindow  *TimeWindow
	Status          LeadStatus
	Attempts        int
	RecycleCount    int
	LastCallAt      *time.Time
	NextCallAt      *time.Time
	Priority        int // 1..5
	DNC             bool
	Consent         bool
	DoNotCallAfter  *time.Time
	CreatedAt       time.Time
	Version         int // optimistic concurrency token
}

// CallTaskState is the §4.5 TelephonyService DAG.
type CallTaskState string

const (
	CallStatePending       CallTaskState = "pending"
	CallStateQueued        CallTaskState = "queued"
	CallStateDialing       CallTaskState = "dialing"
	CallStateRinging       CallTaskState = "ringing"
	CallStateAnswered      CallTaskState = "answered"
	CallStateConnected     CallTaskState = "connected"
	CallStateHold          CallTaskState = "hold"
	CallStateTransferring  CallTaskState = "transferring"
	CallStateConferenced   CallTaskState = "conferenced"
	CallStateCompleted     CallTaskState = "completed"
	CallStateFailed        CallTaskState = "failed"
	CallStateAbandoned     CallTaskState = "abandoned"
	CallStateNoAnswer      CallTaskState = "no_answer"
	CallStateBusy          CallTaskState = "busy"
	CallStateInvalid       CallTaskState = "invalid"
)

// terminalStates are states with no outgoing transition.
var terminalStates = map[CallTaskState]bool{
	CallStateCompleted: true,
	CallStateFailed:    true,
	CallStateAbandoned: true,
	CallStateNoAnswer:  true,
	CallStateBusy:      true,
	CallStateInvalid:   true,
}

// IsTerminal reports whether s has no further transitions.
func IsTerminal(s CallTaskState) bool { return terminalStates[s] }

// validTransitions encodes the DAG of §4.5. Any state may jump to a
// terminal state; the rest is the forward-progress path plus hold↔connected.
var validTransitions = map[CallTaskState]map[CallTaskState]bool{
	CallStatePending:      {CallStateQueued: true},
	CallStateQueued:       {CallStateDialing: true},
	CallStateDialing:      {CallStateRinging: true},
	CallStateRinging:      {CallStateAnswered: true},
	CallStateAnswered:     {CallStateConnected: true},
	CallStateConnected:    {CallStateHold: true, CallStateTransferring: true},
	CallStateHold:         {CallStateConnected: true},
	CallStateTransferring: {CallStateConferenced: true},
	CallStateConferenced:  {},
}

// CanTransition reports whether from→to is legal: the forward edge in
// validTransitions, or any state into a terminal state.
func CanTransition(from, to CallTaskState) bool {
	if from == to {
		return true // idempotent re-application, e.g. duplicate hangup event
	}
	if terminalStates[to] {
		return true
	}
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// AMDVerdict is the answering-machine-detection result.
type AMDVerdict string

const (
	AMDHuman   AMDVerdict = "human"
	AMDMachine AMDVerdict = "machine"
	AMDUnknown AMDVerdict = "unknown"
)

// CallTask tracks one dial attempt end-to-end.
type CallTask struct {
	ID            uint64
	LeadID        uint64
	CampaignID    uint64
	AgentID       *string
	State         CallTaskState
	Phone         string
	ChannelID     string // PBX channel id, bound on first PBX event
	QueuedAt      time.Time
	DialingAt     *time.Time
	AnsweredAt    *time.Time
	ConnectedAt   *time.Time
	CompletedAt   *time.Time
	AMDVerdict    AMDVerdict
	AMDConfidence float64
	RetryCount    int
	LastError     string
}

// CDR is the immutable post-mortem of a CallTask.
type CDR struct {
	ID           uint64
	CallTaskID   uint64
	CampaignID   uint64
	LeadID       uint64
	RingDuration time.Duration
	TalkDuration time.Duration
	HoldDuration time.Duration
	WrapDuration time.Duration
	Outcome      string
	HangupParty  string
	CostCents    int64
	WrittenAt    time.Time
}

// AgentStatus is the presence state machine for §3 AgentPresence.
type AgentStatus string

const (
	AgentOffline   AgentStatus = "offline"
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentOnCall    AgentStatus = "on_call"
	AgentWrapUp    AgentStatus = "wrap_up"
	AgentBreak     AgentStatus = "break"
	AgentLunch     AgentStatus = "lunch"
)

// AgentPresence is an agent's live status.
type AgentPresence struct {
	AgentID           string
	Status            AgentStatus
	Since             time.Time
	Skills            map[string]bool
	AssignedCampaigns []uint64
	AssignedQueues    []string
	CurrentCallTaskID *uint64
	LastCallEndAt     *time.Time // for ROUND_ROBIN
	TotalCalls        int        // for LEAST_OCCUPIED
}

// QueuedCall is an inbound call waiting for an agent.
type QueuedCall struct {
	ChannelID      string
	CallerID       string
	DID            string
	Priority       int
	RequiredSkills []string
	Queue          string
	EnqueuedAt     time.Time
	MaxWait        time.Duration
}

// RecordingState is the canonical state set for §4.7; it is the single
// recording state set used throughout the repo.
type RecordingState string

const (
	RecordingStarting  RecordingState = "starting"
	RecordingActive    RecordingState = "recording"
	RecordingPaused    RecordingState = "paused"
	RecordingStopping  RecordingState = "stopping"
	RecordingCompleted RecordingState = "completed"
	RecordingFailed    RecordingState = "failed"
)

// RecordingMetadata describes one call recording's lifecycle and storage.
type RecordingMetadata struct {
	ID               string
	CallTaskID       uint64
	AgentID          string
	Start            time.Time
	End              *time.Time
	Format           string
	SampleRate       int
	Backend          string
	Path             string
	Checksum         string
	RetentionDeadline time.Time
	Consent          bool
	State            RecordingState
}
