package retrievalevent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/jarrod-lowe/docfetch-lambdas/internal/retrieval"
)

// Publisher publishes retrieval events to an async queue.
type Publisher interface {
	PublishRetrieval(ctx context.Context, requestID string, messageIDs []string, res retrieval.Result) error
}

// SQSSender abstracts SQS send operations for dependency inversion.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher publishes retrieval events to an SQS queue.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	newID    func() string
	now      func() time.Time
}

// NewSQSPublisher creates a new SQSPublisher.
func NewSQSPublisher(client SQSSender, queueURL string) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// PublishRetrieval sends one event describing a successful retrieval.
func (p *SQSPublisher) PublishRetrieval(ctx context.Context, requestID string, messageIDs []string, res retrieval.Result) error {
	msg := NewMessage(p.newID(), requestID, p.now(), messageIDs, res)

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("AttachmentsRetrieved"),
			},
		},
	})
	return err
}
