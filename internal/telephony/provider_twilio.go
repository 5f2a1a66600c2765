package telephony

import (
	"context"
	"fmt"

	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	twilio "github.com/twilio/twilio-go"

	"github.com/rapidaai/dialer/internal/dialererr"
)

// TwilioProvider adapts Twilio's Programmable Voice REST API to Provider,
// standing in for ARI/AMI when a campaign's PBX is Twilio-hosted rather
// than an on-prem Asterisk box.
type TwilioProvider struct {
	Client    *twilio.RestClient
	VoiceURL  string // TwiML webhook Twilio fetches on answer
	FromPhone string
}

// NewTwilioProvider builds a client from account credentials.
func NewTwilioProvider(accountSID, authToken, voiceURL, fromPhone string) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioProvider{Client: client, VoiceURL: voiceURL, FromPhone: fromPhone}
}

func (p *TwilioProvider) Originate(ctx context.Context, destination, callerID string, timeoutSeconds int) (string, error) {
	params := &twilioapi.CreateCallParams{}
	params.SetTo(destination)
	from := callerID
	if from == "" {
		from = p.FromPhone
	}
	params.SetFrom(from)
	params.SetUrl(p.VoiceURL)
	params.SetTimeout(timeoutSeconds)

	resp, err := p.Client.Api.CreateCall(params)
	if err != nil {
		return "", dialererr.New(dialererr.KindTransientNetwork, "twilio.originate", err)
	}
	if resp.Sid == nil {
		return "", dialererr.New(dialererr.KindProtocolViolation, "twilio.originate", fmt.Errorf("no call sid returned"))
	}
	return *resp.Sid, nil
}

func (p *TwilioProvider) Hangup(ctx context.Context, channelID, reason string) error {
	params := &twilioapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := p.Client.Api.UpdateCall(channelID, params); err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "twilio.hangup", err)
	}
	return nil
}

func (p *TwilioProvider) Answer(ctx context.Context, channelID string) error {
	return nil // Twilio answers via TwiML fetched from VoiceURL, not an explicit action
}
