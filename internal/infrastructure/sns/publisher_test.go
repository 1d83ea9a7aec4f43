package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublishAPI struct{ mock.Mock }

func (m *mockPublishAPI) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func TestPublisher_Publish(t *testing.T) {
	api := &mockPublishAPI{}
	var got *sns.PublishInput
	api.On("Publish", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(1).(*sns.PublishInput)
	}).Return(&sns.PublishOutput{}, nil)
	p := &Publisher{client: api, topicARN: "arn:aws:sns:us-east-1:000000000000:accounts"}

	err := p.Publish(context.Background(), domain.AccountEvent{
		Type:       domain.EventAccountRegistered,
		AccountID:  "acc-1",
		Email:      "a@b.com",
		Role:       domain.RoleCustomer,
		OccurredAt: time.Unix(0, 0).UTC(),
	})

	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:accounts", *got.TopicArn)
	assert.Equal(t, "account.registered", *got.MessageAttributes["event_type"].StringValue)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(*got.Message), &body))
	assert.Equal(t, "acc-1", body["account_id"])
	assert.Equal(t, "Customer", body["role"])
}

func TestPublisher_PublishError(t *testing.T) {
	api := &mockPublishAPI{}
	api.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("denied"))
	p := &Publisher{client: api, topicARN: "arn"}

	err := p.Publish(context.Background(), domain.AccountEvent{Type: domain.EventAccountVerified})
	assert.ErrorContains(t, err, "publish account.verified: denied")
}
