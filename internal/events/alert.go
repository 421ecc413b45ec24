// internal/events/alert.go
package events

import (
	"context"
	"fmt"

	awsclient "contract-runtime/internal/common/aws"
	"contract-runtime/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAlerter mails an operations address when an event could not be
// delivered. Alert failures are logged and swallowed: alerting must never
// cascade into the request path.
type SESAlerter struct {
	client *awsclient.SESClient
	from   string
	to     string
	logger logger.Logger
}

func NewSESAlerter(client *awsclient.SESClient, from, to string, log logger.Logger) *SESAlerter {
	return &SESAlerter{client: client, from: from, to: to, logger: log}
}

func (a *SESAlerter) Alert(ctx context.Context, event ChangeEvent, cause error) {
	subject := fmt.Sprintf("[contract-runtime] event delivery degraded: %s", event.Name)
	body := fmt.Sprintf(
		"Event %s (%s) for %s/%s could not be delivered to topic %s.\n\nLast error: %v\n\nThe record write committed; the event needs manual replay.",
		event.Name, event.ID, event.Resource, event.Key, event.Topic, cause,
	)

	_, err := a.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{a.to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(a.from),
	})
	if err != nil {
		a.logger.Error("failed to send degraded-event alert", map[string]interface{}{
			"eventId": event.ID,
			"error":   err,
		})
	}
}
