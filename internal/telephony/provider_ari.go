package telephony

import (
	"context"

	"github.com/rapidaai/dialer/internal/pbx/ari"
)

// AriProvider adapts *ari.Client's richer Originate signature
// (returning *ari.OriginateResult) to the narrow telephony.Provider
// facade, so Service can treat ARI and AMI interchangeably as
// primary/fallback.
type AriProvider struct {
	client *ari.Client
}

func NewAriProvider(client *ari.Client) *AriProvider {
	return &AriProvider{client: client}
}

func (p *AriProvider) Originate(ctx context.Context, destination, callerID string, timeoutSeconds int) (string, error) {
	res, err := p.client.Originate(ctx, destination, callerID, timeoutSeconds)
	if err != nil {
		return "", err
	}
	return res.ChannelID, nil
}

func (p *AriProvider) Hangup(ctx context.Context, channelID, reason string) error {
	return p.client.Hangup(ctx, channelID, reason)
}

func (p *AriProvider) Answer(ctx context.Context, channelID string) error {
	return p.client.Answer(ctx, channelID)
}
