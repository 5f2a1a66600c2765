package notify

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/rapidaai/dialer/internal/logging"
)

// SESNotifier sends alerts through Amazon SES.
type SESNotifier struct {
	client *ses.Client
	from   string
	logger logging.Logger
}

func NewSESNotifier(client *ses.Client, from string, logger logging.Logger) *SESNotifier {
	return &SESNotifier{client: client, from: from, logger: logger}
}

func (n *SESNotifier) Notify(ctx context.Context, alert Alert) error {
	body, err := renderAlert(alert)
	if err != nil {
		return err
	}
	to := alert.To
	if len(to) == 0 {
		n.logger.Warnf("notify: ses alert %q has no recipients, skipping send", alert.Subject)
		return nil
	}

	_, err = n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.from),
		Destination: &sestypes.Destination{ToAddresses: to},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(alert.Subject)},
			Body:    &sestypes.Body{Html: &sestypes.Content{Data: aws.String(body)}},
		},
	})
	return err
}
