package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Publisher records an event for later delivery.
type Publisher interface {
	Publish(ctx context.Context, practiceID, eventType string, payload any) error
}

// OutboxPublisher writes events to the outbox table.
type OutboxPublisher struct {
	store *OutboxStore
}

func NewOutboxPublisher(store *OutboxStore) *OutboxPublisher {
	return &OutboxPublisher{store: store}
}

func (p *OutboxPublisher) Publish(ctx context.Context, practiceID, eventType string, payload any) error {
	if _, err := p.store.Insert(ctx, practiceID, eventType, payload); err != nil {
		return err
	}
	return nil
}

// NopPublisher drops every event. Used when no database is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSDelivery forwards outbox entries to an SQS queue.
type SQSDelivery struct {
	client   sqsAPI
	queueURL string
}

// NewSQSDelivery accepts an *sqs.Client or a test double.
func NewSQSDelivery(client sqsAPI, queueURL string) *SQSDelivery {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSDelivery{client: client, queueURL: queueURL}
}

func (d *SQSDelivery) Handle(ctx context.Context, entry OutboxEntry) error {
	_, err := d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(entry.Payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(entry.Type),
			},
			"event_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(entry.ID.String()),
			},
			"practice_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(entry.PracticeID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}
