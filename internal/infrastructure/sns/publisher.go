package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-auth-nosql/internal/domain"
)

type publishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends account lifecycle events to an SNS topic. The event type is
// set as a message attribute so subscribers can filter on it.
type Publisher struct {
	client   publishAPI
	topicARN string
}

// NewPublisher creates a publisher for topicARN. A non-empty endpoint
// overrides the SNS endpoint (LocalStack).
func NewPublisher(cfg aws.Config, topicARN, endpoint string) *Publisher {
	var opts []func(*sns.Options)
	if endpoint != "" {
		opts = append(opts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return &Publisher{client: sns.NewFromConfig(cfg, opts...), topicARN: topicARN}
}

func (p *Publisher) Publish(ctx context.Context, e domain.AccountEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(string(e.Type))},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Discard drops every event. Used when no topic is configured.
type Discard struct{}

func (Discard) Publish(context.Context, domain.AccountEvent) error { return nil }
