package media

import (
	"context"
	"errors"
	"testing"

	"github.com/rapidaai/dialer/internal/logging"
)

type fakeAri struct {
	externalMediaErr error
	bridgeCreateErr  error
	addChannelErr    map[string]error // keyed by channelID
	destroyedBridges []string
	hungUpChannels   []string
}

func (f *fakeAri) CreateExternalMedia(ctx context.Context, host, format string) (string, error) {
	if f.externalMediaErr != nil {
		return "", f.externalMediaErr
	}
	return "ext-chan-1", nil
}

func (f *fakeAri) CreateBridge(ctx context.Context) (string, error) {
	if f.bridgeCreateErr != nil {
		return "", f.bridgeCreateErr
	}
	return "bridge-1", nil
}

func (f *fakeAri) AddChannelToBridge(ctx context.Context, bridgeID, channelID string) error {
	if err, ok := f.addChannelErr[channelID]; ok {
		return err
	}
	return nil
}

func (f *fakeAri) DestroyBridge(ctx context.Context, bridgeID string) error {
	f.destroyedBridges = append(f.destroyedBridges, bridgeID)
	return nil
}

func (f *fakeAri) Hangup(ctx context.Context, channelID, reason string) error {
	f.hungUpChannels = append(f.hungUpChannels, channelID)
	return nil
}

func TestSetupIsIdempotent(t *testing.T) {
	ari := &fakeAri{addChannelErr: map[string]error{}}
	m := NewManager(ari, "127.0.0.1:40000", "ulaw", logging.Noop{})

	b1, err := m.Setup(context.Background(), 1, "chan-1", "sess-1")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	b2, err := m.Setup(context.Background(), 1, "chan-1", "sess-1")
	if err != nil {
		t.Fatalf("second setup: %v", err)
	}
	if b1 != b2 {
		t.Fatal("expected idempotent setup to return the same binding")
	}
}

func TestSetupCompensatesOnBridgeAddFailure(t *testing.T) {
	ari := &fakeAri{addChannelErr: map[string]error{"chan-1": errors.New("add failed")}}
	m := NewManager(ari, "127.0.0.1:40000", "ulaw", logging.Noop{})

	_, err := m.Setup(context.Background(), 1, "chan-1", "sess-1")
	if err == nil {
		t.Fatal("expected setup to fail")
	}
	if len(ari.destroyedBridges) != 1 {
		t.Fatalf("expected bridge to be compensated, got %v", ari.destroyedBridges)
	}
	if len(ari.hungUpChannels) != 1 || ari.hungUpChannels[0] != "ext-chan-1" {
		t.Fatalf("expected external channel to be compensated, got %v", ari.hungUpChannels)
	}
}

func TestTeardownReleasesBridgeAndExternalChannel(t *testing.T) {
	ari := &fakeAri{addChannelErr: map[string]error{}}
	m := NewManager(ari, "127.0.0.1:40000", "ulaw", logging.Noop{})
	if _, err := m.Setup(context.Background(), 1, "chan-1", "sess-1"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := m.Teardown(context.Background(), 1); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if _, ok := m.Binding(1); ok {
		t.Fatal("expected binding to be removed after teardown")
	}
}
