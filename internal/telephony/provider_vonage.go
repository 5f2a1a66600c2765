package telephony

import (
	"context"
	"fmt"

	vonagego "github.com/vonage/vonage-go-sdk"

	"github.com/rapidaai/dialer/internal/dialererr"
)

// VonageProvider adapts the Vonage Voice API to Provider.
type VonageProvider struct {
	Voice     *vonagego.VoiceClient
	AnswerURL string
	EventURL  string
	FromPhone string
}

// NewVonageProvider builds a client from an application keypair, the same
// CreateAuthFromAppPrivateKey shape the rest of this codebase's voice
// stack uses for Vonage.
func NewVonageProvider(applicationID string, privateKeyPEM []byte, answerURL, eventURL, fromPhone string) (*VonageProvider, error) {
	auth, err := vonagego.CreateAuthFromAppPrivateKey(applicationID, privateKeyPEM)
	if err != nil {
		return nil, dialererr.New(dialererr.KindFatal, "vonage.auth", err)
	}
	voice := vonagego.NewVoiceClient(auth)
	return &VonageProvider{Voice: voice, AnswerURL: answerURL, EventURL: eventURL, FromPhone: fromPhone}, nil
}

func (p *VonageProvider) Originate(ctx context.Context, destination, callerID string, timeoutSeconds int) (string, error) {
	from := callerID
	if from == "" {
		from = p.FromPhone
	}
	result, _, err := p.Voice.CreateCall(vonagego.CreateCallRequest{
		To: []vonagego.CallTo{{Type: "phone", Number: destination}},
		From: vonagego.CallFrom{Type: "phone", Number: from},
		AnswerUrl: []string{p.AnswerURL},
		EventUrl:  []string{p.EventURL},
	})
	if err != nil {
		return "", dialererr.New(dialererr.KindTransientNetwork, "vonage.originate", err)
	}
	if result.Uuid == "" {
		return "", dialererr.New(dialererr.KindProtocolViolation, "vonage.originate", fmt.Errorf("no call uuid returned"))
	}
	return result.Uuid, nil
}

func (p *VonageProvider) Hangup(ctx context.Context, channelID, reason string) error {
	if _, _, err := p.Voice.UpdateCall(channelID, vonagego.UpdateCallRequest{Action: "hangup"}); err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "vonage.hangup", err)
	}
	return nil
}

func (p *VonageProvider) Answer(ctx context.Context, channelID string) error {
	return nil // Vonage answers via the configured AnswerURL NCCO fetch
}
