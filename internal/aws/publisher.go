package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Message is one queue message. GroupID and DeduplicationID are only sent to FIFO queues.
type Message struct {
	Body            string
	Attributes      map[string]string
	GroupID         string
	DeduplicationID string
}

// Publisher sends messages to one SQS queue.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
	fifo     bool
}

// NewPublisher returns a Publisher bound to a queue URL. A URL ending in ".fifo" enables
// message groups and deduplication ids.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// Send publishes msg. Empty attribute values are dropped.
func (p *Publisher) Send(ctx context.Context, msg Message) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: awsString(msg.Body),
	}
	for k, v := range msg.Attributes {
		if v == "" {
			continue
		}
		if input.MessageAttributes == nil {
			input.MessageAttributes = map[string]sqstypes.MessageAttributeValue{}
		}
		input.MessageAttributes[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(v),
		}
	}
	if p.fifo {
		if msg.GroupID == "" {
			return errors.New("send message: fifo queue requires a group id")
		}
		input.MessageGroupId = awsString(msg.GroupID)
		if msg.DeduplicationID != "" {
			input.MessageDeduplicationId = awsString(msg.DeduplicationID)
		}
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
