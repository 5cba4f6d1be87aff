package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/payments"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
)

// Outcomes
const (
	OutcomeReleased = "released"
	OutcomeRefunded = "refunded"
)

// ErrNotTerminal is returned when asked to settle an order that is still active.
var ErrNotTerminal = errors.New("swap order is not terminal")

// Escrow moves held commitment fees. Both calls are idempotent per reference; applied is false
// when the hold had already been moved the same way.
type Escrow interface {
	Release(ctx context.Context, reference string) (hold payments.Hold, applied bool, err error)
	Refund(ctx context.Context, reference string) (hold payments.Hold, applied bool, err error)
}

// Recorder receives one call per hold actually moved.
type Recorder interface {
	RecordSettlement(ctx context.Context, outcome string, amount decimal.Decimal) error
}

// Summary describes one settlement run.
type Summary struct {
	OrderID string
	Outcome string
	Moved   []payments.Hold
	Already int
}

// Settler releases fees of completed orders and refunds fees of cancelled ones.
type Settler struct {
	escrow   Escrow
	recorder Recorder
	logger   *slog.Logger
}

// NewSettler builds a Settler. recorder may be nil.
func NewSettler(escrow Escrow, recorder Recorder, logger *slog.Logger) *Settler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Settler{escrow: escrow, recorder: recorder, logger: logger}
}

// Settle moves every collected fee of a terminal order. A completed order releases the fees it
// recorded. A cancelled order attempts a refund for both parties, because a capture can land in
// escrow without the order recording it (lost save, unconfirmed pending payment); references the
// escrow never saw are skipped. Re-running Settle on the same order is a no-op.
func (s *Settler) Settle(ctx context.Context, o *swaporder.SwapOrder) (Summary, error) {
	sum := Summary{OrderID: o.OrderID}
	move := s.escrow.Release
	switch o.Status {
	case swaporder.StatusCompleted:
		sum.Outcome = OutcomeReleased
	case swaporder.StatusCancelled:
		sum.Outcome = OutcomeRefunded
		move = s.escrow.Refund
	default:
		return sum, fmt.Errorf("%w: %s is %s", ErrNotTerminal, o.OrderID, o.Status)
	}

	for _, p := range []swaporder.Party{swaporder.PartyRequester, swaporder.PartyOwner} {
		recorded := o.FeePaid(p)
		if !recorded && sum.Outcome == OutcomeReleased {
			continue
		}
		ref := o.FeeRef(p)
		if ref == "" {
			ref = payments.Reference(o.OrderID, string(p))
		}
		hold, applied, err := move(ctx, ref)
		if !recorded && errors.Is(err, payments.ErrUnknownReference) {
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("%s %s: %w", sum.Outcome, ref, err)
		}
		if !applied {
			sum.Already++
			continue
		}
		sum.Moved = append(sum.Moved, hold)
		if !recorded {
			s.logger.Warn("refunded a fee the order never recorded", "order_id", o.OrderID, "reference", ref)
		}
		s.logger.Info("commitment fee settled",
			"order_id", o.OrderID, "reference", ref, "outcome", sum.Outcome, "amount", hold.Amount.String())
		if s.recorder != nil {
			if err := s.recorder.RecordSettlement(ctx, sum.Outcome, hold.Amount); err != nil {
				s.logger.Warn("settlement metric failed", "order_id", o.OrderID, "error", err)
			}
		}
	}
	return sum, nil
}
