package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/settlement"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
)

// OrderReader loads the current swap order.
type OrderReader interface {
	Get(ctx context.Context, orderID string) (*swaporder.SwapOrder, error)
}

// OrderSettler moves the escrowed fees of a terminal order.
type OrderSettler interface {
	Settle(ctx context.Context, o *swaporder.SwapOrder) (settlement.Summary, error)
}

// Processor consumes the swap orders table stream and settles orders as they become terminal.
type Processor struct {
	orders  OrderReader
	settler OrderSettler
	logger  *slog.Logger
}

// NewProcessor creates a stream processor.
func NewProcessor(orders OrderReader, settler OrderSettler, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{orders: orders, settler: settler, logger: logger}
}

// Handle processes a stream batch. Failed records are reported back so Lambda retries only those;
// settlement is idempotent per fee reference, so a retried record never moves money twice.
func (p *Processor) Handle(ctx context.Context, ev events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var resp events.DynamoDBEventResponse
	for _, rec := range ev.Records {
		if err := p.processRecord(ctx, rec); err != nil {
			p.logger.Error("settlement record failed",
				"event_id", rec.EventID, "sequence", rec.Change.SequenceNumber, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{
				ItemIdentifier: rec.Change.SequenceNumber,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processRecord(ctx context.Context, rec events.DynamoDBEventRecord) error {
	change, ok := changeFromRecord(rec)
	if !ok || !change.becameTerminal() {
		return nil
	}
	return p.SettleOrder(ctx, change.OrderID)
}

// SettleOrder settles one order by id, reading the stored record rather than the stream image.
func (p *Processor) SettleOrder(ctx context.Context, orderID string) error {
	o, err := p.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load swap order %s: %w", orderID, err)
	}
	if o == nil {
		return fmt.Errorf("swap order %s not found", orderID)
	}
	if !o.Status.Terminal() {
		p.logger.Warn("skipping settlement of active order", "order_id", orderID, "status", o.Status)
		return nil
	}

	sum, err := p.settler.Settle(ctx, o)
	if err != nil {
		return err
	}
	p.logger.Info("swap order settled",
		"order_id", orderID, "outcome", sum.Outcome, "moved", len(sum.Moved), "already_settled", sum.Already)
	return nil
}
