// Package amd implements the supplemented answering-machine-detection
// verdict lifecycle: a short post-answer classification window driven by
// Asterisk's own AMD() dialplan application, which reports its verdict
// back over AMI as a UserEvent. TelephonyService never analyzes audio
// itself — it asks the PBX, the same "let Asterisk do the signal
// processing, just consume the event" pattern internal/pbx already
// follows for recording and media.
package amd

import (
	"context"
	"sync"
	"time"

	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/pbx/ami"
)

// Classifier resolves the answering-machine-detection verdict for a
// channel, blocking for up to its configured window.
type Classifier interface {
	Classify(ctx context.Context, channelID string) (domain.AMDVerdict, float64)
}

type verdict struct {
	v    domain.AMDVerdict
	conf float64
}

// AMIClassifier correlates Asterisk's AMD() UserEvent against the channel
// that triggered it. Wire OnUserEvent via
// ami.Client.RegisterHandler("UserEvent", classifier.OnUserEvent) once at
// process boot.
type AMIClassifier struct {
	window time.Duration

	mu      sync.Mutex
	waiters map[string]chan verdict
}

// NewAMIClassifier builds a classifier that waits up to window for a
// verdict before giving up. window <= 0 defaults to 3s, long enough for
// AMD() to hear a few hundred ms of greeting without stalling the
// answered->connected handoff noticeably.
func NewAMIClassifier(window time.Duration) *AMIClassifier {
	if window <= 0 {
		window = 3 * time.Second
	}
	return &AMIClassifier{window: window, waiters: make(map[string]chan verdict)}
}

// Classify waits for a matching AMDSTATUS UserEvent for channelID, or
// returns AMDUnknown once the window elapses — a line the PBX couldn't
// classify in time is handed to an agent rather than stalled forever.
func (c *AMIClassifier) Classify(ctx context.Context, channelID string) (domain.AMDVerdict, float64) {
	ch := make(chan verdict, 1)
	c.mu.Lock()
	c.waiters[channelID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, channelID)
		c.mu.Unlock()
	}()

	timer := time.NewTimer(c.window)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v.v, v.conf
	case <-timer.C:
		return domain.AMDUnknown, 0
	case <-ctx.Done():
		return domain.AMDUnknown, 0
	}
}

// OnUserEvent is the AMI EventHandler for "UserEvent". Asterisk's AMD()
// application posts UserEvent: AMDSTATUS with a Status header in
// {HUMAN, MACHINE, NOTSURE} and the channel's Uniqueid — which is the
// same identifier ARI reports as a channel's "id", so a channel tracked
// from either backend correlates on this one field.
func (c *AMIClassifier) OnUserEvent(msg ami.Message) {
	if msg.Get("UserEvent") != "AMDSTATUS" {
		return
	}
	channelID := msg.Get("Uniqueid")
	c.mu.Lock()
	ch, ok := c.waiters[channelID]
	c.mu.Unlock()
	if !ok {
		return
	}

	v := verdict{v: domain.AMDUnknown, conf: 0.4}
	switch msg.Get("Status") {
	case "HUMAN":
		v = verdict{v: domain.AMDHuman, conf: 0.9}
	case "MACHINE":
		v = verdict{v: domain.AMDMachine, conf: 0.9}
	}
	select {
	case ch <- v:
	default:
	}
}
