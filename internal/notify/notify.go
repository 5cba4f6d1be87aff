package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/aws"
)

// Kind names a notification sent to a swap party.
type Kind string

const (
	KindSwapCreated           Kind = "swap_created"
	KindRequirementsSubmitted Kind = "requirements_submitted"
	KindRequirementsApproved  Kind = "requirements_approved"
	KindFeePaid               Kind = "fee_paid"
	KindFeesComplete          Kind = "fees_complete"
	KindDispatched            Kind = "dispatched"
	KindBothDispatched        Kind = "both_dispatched"
	KindReceiptConfirmed      Kind = "receipt_confirmed"
	KindSwapCompleted         Kind = "swap_completed"
	KindSwapCancelled         Kind = "swap_cancelled"
)

// Event is one message for one recipient.
type Event struct {
	EventID     string    `json:"event_id"`
	Kind        Kind      `json:"kind"`
	OrderID     string    `json:"order_id"`
	RecipientID string    `json:"recipient_id"`
	ActorID     string    `json:"actor_id"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier dispatches events. Delivery is best effort; the order state is already committed.
type Notifier interface {
	Notify(ctx context.Context, events ...Event) error
}

// Sender is satisfied by the SQS publisher.
type Sender interface {
	Send(ctx context.Context, msg aws.Message) error
}

// SQSNotifier publishes every event as its own queue message. Messages of one order share a
// group so FIFO queues deliver them in transition order.
type SQSNotifier struct {
	sender Sender
}

// NewSQSNotifier returns a notifier backed by sender.
func NewSQSNotifier(sender Sender) *SQSNotifier {
	return &SQSNotifier{sender: sender}
}

// Notify sends each event and joins the failures.
func (n *SQSNotifier) Notify(ctx context.Context, events ...Event) error {
	var errs []error
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal event %s: %w", ev.EventID, err))
			continue
		}
		msg := aws.Message{
			Body: string(body),
			Attributes: map[string]string{
				"event_kind":   string(ev.Kind),
				"order_id":     ev.OrderID,
				"recipient_id": ev.RecipientID,
			},
			GroupID:         ev.OrderID,
			DeduplicationID: ev.EventID,
		}
		if err := n.sender.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("publish %s for order %s: %w", ev.Kind, ev.OrderID, err))
		}
	}
	return errors.Join(errs...)
}

// Noop discards events.
type Noop struct{}

func (Noop) Notify(context.Context, ...Event) error { return nil }
