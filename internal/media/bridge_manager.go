// Package media implements §4.6 MediaBridgeManager: wiring a call's PBX
// channel to an ExternalMedia channel inside a mixing bridge so the RTP
// gateway can stream audio to and from the speech pipeline.
package media

import (
	"context"
	"sync"

	"github.com/rapidaai/dialer/internal/logging"
)

// AriClient is the subset of *ari.Client this package depends on.
type AriClient interface {
	CreateExternalMedia(ctx context.Context, externalHost, format string) (string, error)
	CreateBridge(ctx context.Context) (string, error)
	AddChannelToBridge(ctx context.Context, bridgeID, channelID string) error
	DestroyBridge(ctx context.Context, bridgeID string) error
	Hangup(ctx context.Context, channelID, reason string) error
}

// Binding is the set of PBX resources backing one call's media path.
type Binding struct {
	CallTaskID      uint64
	ChannelID       string
	ExternalChannel string
	BridgeID        string
	RTPSessionID    string
}

// Manager sets up and tears down one Binding per active call.
type Manager struct {
	ari          AriClient
	externalHost string
	audioFormat  string
	logger       logging.Logger

	mu       sync.Mutex
	bindings map[uint64]*Binding
}

// NewManager constructs a Manager. externalHost is the host:port the PBX
// should open an RTP stream to, typically the RTPGateway's advertised
// address.
func NewManager(ari AriClient, externalHost, audioFormat string, logger logging.Logger) *Manager {
	return &Manager{
		ari:          ari,
		externalHost: externalHost,
		audioFormat:  audioFormat,
		logger:       logger,
		bindings:     make(map[uint64]*Binding),
	}
}

// Setup is idempotent: calling it twice for the same callTaskID with an
// existing binding returns the existing one without issuing new PBX
// actions. On partial failure it tears down whatever it already created.
func (m *Manager) Setup(ctx context.Context, callTaskID uint64, channelID, rtpSessionID string) (*Binding, error) {
	m.mu.Lock()
	if existing, ok := m.bindings[callTaskID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	externalChannel, err := m.ari.CreateExternalMedia(ctx, m.externalHost, m.audioFormat)
	if err != nil {
		return nil, err
	}

	bridgeID, err := m.ari.CreateBridge(ctx)
	if err != nil {
		m.compensateExternalChannel(ctx, externalChannel)
		return nil, err
	}

	if err := m.ari.AddChannelToBridge(ctx, bridgeID, channelID); err != nil {
		m.compensateBridge(ctx, bridgeID)
		m.compensateExternalChannel(ctx, externalChannel)
		return nil, err
	}

	if err := m.ari.AddChannelToBridge(ctx, bridgeID, externalChannel); err != nil {
		m.compensateBridge(ctx, bridgeID)
		m.compensateExternalChannel(ctx, externalChannel)
		return nil, err
	}

	b := &Binding{
		CallTaskID:      callTaskID,
		ChannelID:       channelID,
		ExternalChannel: externalChannel,
		BridgeID:        bridgeID,
		RTPSessionID:    rtpSessionID,
	}
	m.mu.Lock()
	m.bindings[callTaskID] = b
	m.mu.Unlock()
	return b, nil
}

// Teardown releases a call's bridge and external media channel. Missing
// resources (already torn down by the PBX side) are not errors.
func (m *Manager) Teardown(ctx context.Context, callTaskID uint64) error {
	m.mu.Lock()
	b, ok := m.bindings[callTaskID]
	if ok {
		delete(m.bindings, callTaskID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	var firstErr error
	if err := m.ari.DestroyBridge(ctx, b.BridgeID); err != nil {
		firstErr = err
	}
	if err := m.ari.Hangup(ctx, b.ExternalChannel, "normal"); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Binding returns the tracked media binding for a call, if any.
func (m *Manager) Binding(callTaskID uint64) (*Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[callTaskID]
	return b, ok
}

func (m *Manager) compensateExternalChannel(ctx context.Context, channelID string) {
	if err := m.ari.Hangup(ctx, channelID, "normal"); err != nil {
		m.logger.Warnf("media: compensating teardown of external channel %s failed: %v", channelID, err)
	}
}

func (m *Manager) compensateBridge(ctx context.Context, bridgeID string) {
	if err := m.ari.DestroyBridge(ctx, bridgeID); err != nil {
		m.logger.Warnf("media: compensating teardown of bridge %s failed: %v", bridgeID, err)
	}
}
