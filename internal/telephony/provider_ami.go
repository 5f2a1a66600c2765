package telephony

import (
	"context"
	"fmt"

	"github.com/rapidaai/dialer/internal/pbx/ami"
)

// AmiProvider adapts the legacy AMI Originate/Hangup actions to the
// telephony.Provider facade, used only as a fallback when ARI
// origination fails (§4.5).
type AmiProvider struct {
	client        *ami.Client
	channelPrefix string
	dialContext   string
	dialExten     string
}

func NewAmiProvider(client *ami.Client, channelPrefix, dialContext, dialExten string) *AmiProvider {
	return &AmiProvider{client: client, channelPrefix: channelPrefix, dialContext: dialContext, dialExten: dialExten}
}

// Originate issues an async AMI Originate. AMI's Async response carries
// no channel id, so the dialed channel string itself (the same one AMI
// assigns the new leg) is returned as the tracking handle.
func (p *AmiProvider) Originate(ctx context.Context, destination, callerID string, timeoutSeconds int) (string, error) {
	channel := fmt.Sprintf("%s/%s", p.channelPrefix, destination)
	if _, err := p.client.Originate(ctx, channel, p.dialContext, p.dialExten, callerID, 1); err != nil {
		return "", err
	}
	return channel, nil
}

func (p *AmiProvider) Hangup(ctx context.Context, channelID, reason string) error {
	_, err := p.client.Hangup(ctx, channelID)
	return err
}

// Answer is a no-op: AMI-originated legs auto-answer into the dialplan
// extension configured on the PBX, there is no separate answer action.
func (p *AmiProvider) Answer(ctx context.Context, channelID string) error {
	return nil
}
