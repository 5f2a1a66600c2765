// Package telephony implements §4.5 TelephonyService: the call-state
// facade that drives every CallTask through its lifecycle from whichever
// PBX backend is wired in, preferring ARI and falling back to AMI.
package telephony

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rapidaai/dialer/internal/amd"
	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/logging"
	"github.com/rapidaai/dialer/internal/pbx/ami"
	"github.com/rapidaai/dialer/internal/pbx/ari"
)

// Provider is the minimal call-control surface TelephonyService depends on
// so alternate backends (Twilio, Vonage) can stand in for ARI/AMI.
type Provider interface {
	Originate(ctx context.Context, destination, callerID string, timeoutSeconds int) (channelID string, err error)
	Hangup(ctx context.Context, channelID, reason string) error
	Answer(ctx context.Context, channelID string) error
}

// Store is the narrow persistence surface TelephonyService needs, kept
// separate from the reporting/CRUD layer the spec excludes.
type Store interface {
	SaveCallTask(ctx context.Context, t *domain.CallTask) error
	CallTaskByChannel(ctx context.Context, channelID string) (*domain.CallTask, bool, error)
}

// Service owns the live CallTask set and drives transitions from PBX
// events. It never mutates module-level state — every dependency is
// wired in at construction, per the application-struct design note.
type Service struct {
	logger   logging.Logger
	store    Store
	primary  Provider
	fallback Provider
	amd      amd.Classifier

	actionTimeout time.Duration
	amdTimeout    time.Duration

	mu        sync.RWMutex
	byChannel map[string]*domain.CallTask
	amdGated  map[string]bool                  // channelID -> EnableAMD for the task currently dialing/ringing on it
	watchers  map[string]func(*domain.CallTask) // channelID -> terminal-outcome observer
}

// NewService wires a primary provider (typically ARI) with an optional
// fallback (typically AMI) used only when the primary origination fails.
func NewService(store Store, primary, fallback Provider, actionTimeout time.Duration, logger logging.Logger) *Service {
	if actionTimeout <= 0 {
		actionTimeout = 30 * time.Second
	}
	return &Service{
		logger:        logger,
		store:         store,
		primary:       primary,
		fallback:      fallback,
		actionTimeout: actionTimeout,
		amdTimeout:    3 * time.Second,
		byChannel:     make(map[string]*domain.CallTask),
		amdGated:      make(map[string]bool),
		watchers:      make(map[string]func(*domain.CallTask)),
	}
}

// SetAMDClassifier wires the answering-machine-detection classifier used
// for campaigns with EnableAMD set. Left nil, AMD is a no-op regardless of
// EnableAMD — campaigns never stall waiting for a classifier that was
// never configured.
func (s *Service) SetAMDClassifier(c amd.Classifier, window time.Duration) {
	s.amd = c
	if window > 0 {
		s.amdTimeout = window
	}
}

// WatchOutcome registers fn to run once, exactly when task next reaches a
// terminal state, so a caller that places the call (and holds the Lead
// and Campaign that Service itself doesn't track) can react to the final
// outcome — in particular an AMD machine verdict — without Service taking
// on a dependency on the dispatcher/lead-store.
func (s *Service) WatchOutcome(task *domain.CallTask, fn func(*domain.CallTask)) {
	if task.ChannelID == "" {
		return
	}
	s.mu.Lock()
	s.watchers[task.ChannelID] = fn
	s.mu.Unlock()
}

// Dial originates a call for task against destination, preferring the
// primary provider and falling back on failure, per §4.5/§7. enableAMD
// turns on the post-answer classification window (§3 supplemented
// feature): when true, the answered transition starts s.amd in the
// background; the call's later PBX events are not held back while it runs.
func (s *Service) Dial(ctx context.Context, task *domain.CallTask, destination, callerID string, enableAMD bool) error {
	if !domain.CanTransition(task.State, domain.CallStateDialing) {
		return dialererr.New(dialererr.KindStateConflict, "telephony.dial",
			fmt.Errorf("cannot dial from state %s", task.State))
	}

	ctx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	defer cancel()

	channelID, err := s.primary.Originate(ctx, destination, callerID, int(s.actionTimeout.Seconds()))
	usedFallback := false
	if err != nil {
		s.logger.Warnf("telephony: primary origination failed for lead %d, falling back: %v", task.LeadID, err)
		if s.fallback == nil {
			return &dialererr.OriginationFailed{Reason: err.Error()}
		}
		channelID, err = s.fallback.Originate(ctx, destination, callerID, int(s.actionTimeout.Seconds()))
		if err != nil {
			return &dialererr.OriginationFailed{Reason: fmt.Sprintf("primary and fallback both failed: %v", err)}
		}
		usedFallback = true
	}

	now := time.Now()
	task.ChannelID = channelID
	task.State = domain.CallStateDialing
	task.DialingAt = &now

	s.mu.Lock()
	s.byChannel[channelID] = task
	if enableAMD {
		s.amdGated[channelID] = true
	}
	s.mu.Unlock()

	if usedFallback {
		s.logger.Infof("telephony: call task %d dialing via AMI fallback on channel %s", task.ID, channelID)
	}
	return s.store.SaveCallTask(ctx, task)
}

// Hangup tears down a call's channel. Already-gone channels are treated as
// success — hangup is idempotent per §7. reason is stamped onto the task
// as its completion cause (e.g. "amd_machine", "reconnect_reconciled") —
// the closest field CallTask has to a dedicated termination-cause column.
func (s *Service) Hangup(ctx context.Context, task *domain.CallTask, reason string) error {
	task.LastError = reason
	if task.ChannelID == "" {
		return s.transition(ctx, task, domain.CallStateCompleted)
	}
	ctx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	defer cancel()
	if err := s.primary.Hangup(ctx, task.ChannelID, reason); err != nil {
		if s.fallback != nil {
			if ferr := s.fallback.Hangup(ctx, task.ChannelID, reason); ferr != nil {
				return ferr
			}
		} else {
			return err
		}
	}
	s.mu.Lock()
	delete(s.byChannel, task.ChannelID)
	s.mu.Unlock()
	return s.transition(ctx, task, domain.CallStateCompleted)
}

// Answer marks a channel answered, invoked from a PBX answer event.
func (s *Service) Answer(ctx context.Context, task *domain.CallTask) error {
	return s.transition(ctx, task, domain.CallStateAnswered)
}

// OnEvent applies a normalized PBX event (ARI or AMI, shared shape) to the
// CallTask bound to its channel, tolerating events for channels this
// process doesn't track (another process's call, or a stale event).
func (s *Service) OnEvent(ctx context.Context, channelID, eventType string) {
	s.mu.RLock()
	task, ok := s.byChannel[channelID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	var target domain.CallTaskState
	switch eventType {
	case "StasisStart", "ChannelStateChange:Ringing", "Ringing":
		target = domain.CallStateRinging
	case "ChannelStateChange:Up", "Answer", "Up":
		target = domain.CallStateAnswered
	case "Bridge", "BridgeEnter":
		target = domain.CallStateConnected
	case "StasisEnd", "Hangup", "ChannelDestroyed":
		target = domain.CallStateCompleted
	default:
		return
	}
	if err := s.transition(ctx, task, target); err != nil {
		s.logger.Warnf("telephony: event %s for channel %s rejected: %v", eventType, channelID, err)
	}
}

func (s *Service) transition(ctx context.Context, task *domain.CallTask, to domain.CallTaskState) error {
	if !domain.CanTransition(task.State, to) {
		return dialererr.New(dialererr.KindStateConflict, "telephony.transition",
			fmt.Errorf("illegal transition %s -> %s", task.State, to))
	}
	now := time.Now()
	task.State = to
	switch to {
	case domain.CallStateAnswered:
		task.AnsweredAt = &now
	case domain.CallStateConnected:
		task.ConnectedAt = &now
	case domain.CallStateCompleted, domain.CallStateFailed, domain.CallStateAbandoned,
		domain.CallStateNoAnswer, domain.CallStateBusy, domain.CallStateInvalid:
		task.CompletedAt = &now
	}
	if err := s.store.SaveCallTask(ctx, task); err != nil {
		return err
	}

	if to == domain.CallStateAnswered {
		s.maybeClassifyAMD(task)
	}
	if domain.IsTerminal(to) {
		s.notifyOutcome(task)
	}
	return nil
}

// maybeClassifyAMD runs the post-answer classification window in the
// background when the campaign that placed task had EnableAMD set. A
// machine verdict hangs the call up; a human or unknown verdict changes
// nothing. Classification does not delay the call's next PBX event
// (typically Bridge/BridgeEnter), so a call can already be connected to an
// agent when a machine verdict arrives.
func (s *Service) maybeClassifyAMD(task *domain.CallTask) {
	s.mu.Lock()
	gated := s.amdGated[task.ChannelID]
	delete(s.amdGated, task.ChannelID)
	s.mu.Unlock()
	if !gated || s.amd == nil {
		return
	}

	channelID := task.ChannelID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.amdTimeout)
		defer cancel()
		verdictResult, confidence := s.amd.Classify(ctx, channelID)

		s.mu.Lock()
		current, stillTracked := s.byChannel[channelID]
		s.mu.Unlock()
		if !stillTracked || current != task {
			return // hung up before classification resolved
		}

		task.AMDVerdict = verdictResult
		task.AMDConfidence = confidence
		saveCtx, saveCancel := context.WithTimeout(context.Background(), s.actionTimeout)
		defer saveCancel()
		if err := s.store.SaveCallTask(saveCtx, task); err != nil {
			s.logger.Errorf("telephony: AMD verdict save failed for channel %s: %v", channelID, err)
		}

		if verdictResult == domain.AMDMachine {
			hangupCtx, hangupCancel := context.WithTimeout(context.Background(), s.actionTimeout)
			defer hangupCancel()
			if err := s.Hangup(hangupCtx, task, "amd_machine"); err != nil {
				s.logger.Warnf("telephony: hangup after machine verdict failed for channel %s: %v", channelID, err)
			}
		}
	}()
}

// notifyOutcome invokes and clears the terminal-state watcher registered
// for task's channel, if any.
func (s *Service) notifyOutcome(task *domain.CallTask) {
	s.mu.Lock()
	fn, ok := s.watchers[task.ChannelID]
	if ok {
		delete(s.watchers, task.ChannelID)
	}
	s.mu.Unlock()
	if ok {
		fn(task)
	}
}

// ReconcileChannels completes, with cause "reconnect_reconciled", every
// tracked CallTask whose channel is missing from liveChannelIDs — the
// PBX's authoritative post-reconnect channel list. A websocket outage can
// silently miss the StasisEnd/Hangup for a call that ended mid-gap; this
// catches it up instead of leaving the task stuck non-terminal forever,
// per §8 scenario 6.
func (s *Service) ReconcileChannels(ctx context.Context, liveChannelIDs []string) {
	live := make(map[string]bool, len(liveChannelIDs))
	for _, id := range liveChannelIDs {
		live[id] = true
	}

	s.mu.RLock()
	var orphaned []*domain.CallTask
	for channelID, task := range s.byChannel {
		if !live[channelID] && !domain.IsTerminal(task.State) {
			orphaned = append(orphaned, task)
		}
	}
	s.mu.RUnlock()

	for _, task := range orphaned {
		if err := s.Hangup(ctx, task, "reconnect_reconciled"); err != nil {
			s.logger.Warnf("telephony: reconnect reconciliation failed for channel %s: %v", task.ChannelID, err)
		}
	}
}

// TaskByChannel returns the in-memory CallTask bound to a channel.
func (s *Service) TaskByChannel(channelID string) (*domain.CallTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byChannel[channelID]
	return t, ok
}

var _ Provider = (*AriProvider)(nil)
var _ Provider = (*AmiProvider)(nil)

// AriProvider adapts *ari.Client to the Provider interface.
type AriProvider struct {
	Client       *ari.Client
	ExternalHost string
	AudioFormat  string
}

func (p *AriProvider) Originate(ctx context.Context, destination, callerID string, timeoutSeconds int) (string, error) {
	res, err := p.Client.Originate(ctx, destination, callerID, timeoutSeconds)
	if err != nil {
		return "", err
	}
	return res.ChannelID, nil
}

func (p *AriProvider) Hangup(ctx context.Context, channelID, reason string) error {
	return p.Client.Hangup(ctx, channelID, reason)
}

func (p *AriProvider) Answer(ctx context.Context, channelID string) error {
	return p.Client.Answer(ctx, channelID)
}

// AmiProvider adapts *ami.Client to the Provider interface, used as the
// fallback path when ARI origination fails (§4.5).
type AmiProvider struct {
	Client  *ami.Client
	Context string
	Exten   string
}

func (p *AmiProvider) Originate(ctx context.Context, destination, callerID string, timeoutSeconds int) (string, error) {
	resp, err := p.Client.Originate(ctx, destination, p.Context, p.Exten, callerID, 1)
	if err != nil {
		return "", err
	}
	if resp.Get("Response") != "Success" {
		return "", dialererr.New(dialererr.KindTransientNetwork, "ami.originate", fmt.Errorf("%s", resp.Get("Message")))
	}
	return destination, nil
}

func (p *AmiProvider) Hangup(ctx context.Context, channelID, reason string) error {
	_, err := p.Client.Hangup(ctx, channelID)
	return err
}

func (p *AmiProvider) Answer(ctx context.Context, channelID string) error {
	return nil // AMI has no direct answer action; answering happens in dialplan
}
