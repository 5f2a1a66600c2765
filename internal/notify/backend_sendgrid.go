package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/rapidaai/dialer/internal/logging"
)

// SendGridNotifier sends alerts through SendGrid's v3 mail API; the
// fallback backend when SES isn't configured for a deployment.
type SendGridNotifier struct {
	client *sendgrid.Client
	from   *mail.Email
	logger logging.Logger
}

func NewSendGridNotifier(apiKey, fromName, fromAddress string, logger logging.Logger) *SendGridNotifier {
	return &SendGridNotifier{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromAddress),
		logger: logger,
	}
}

func (n *SendGridNotifier) Notify(ctx context.Context, alert Alert) error {
	body, err := renderAlert(alert)
	if err != nil {
		return err
	}
	if len(alert.To) == 0 {
		n.logger.Warnf("notify: sendgrid alert %q has no recipients, skipping send", alert.Subject)
		return nil
	}

	for _, recipient := range alert.To {
		to := mail.NewEmail("", recipient)
		msg := mail.NewSingleEmail(n.from, alert.Subject, to, alert.Severity+": "+alert.Body, body)
		resp, err := n.client.SendWithContext(ctx, msg)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("notify: sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
		}
	}
	return nil
}
