// internal/events/sns.go
package events

import (
	"context"
	"encoding/json"
	"fmt"

	awsclient "contract-runtime/internal/common/aws"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSPublisher publishes events to an SNS topic, carrying the logical topic
// and event name as message attributes for subscriber filtering.
type SNSPublisher struct {
	client   *awsclient.SNSClient
	topicARN string
}

func NewSNSPublisher(client *awsclient.SNSClient, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

func (p *SNSPublisher) Publish(ctx context.Context, topic string, event ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"topic": {
				DataType:    aws.String("String"),
				StringValue: aws.String(topic),
			},
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Name),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish to %s: %w", topic, err)
	}
	return nil
}
