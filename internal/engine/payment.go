package engine

import (
	"context"
	"errors"
	"time"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/payments"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
)

// PayFee collects the caller's commitment fee. A captured payment sets the caller's fee flag; a
// pending one stores the reference and waits for the payment callback. Paying twice is a no-op.
func (e *Engine) PayFee(ctx context.Context, actorID, orderID string) (*swaporder.SwapOrder, payments.Receipt, error) {
	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, payments.Receipt{}, err
	}
	p, done, err := o.CheckFeePayable(actorID)
	if err != nil {
		e.observe(swaporder.ActionPayFee, outcomeRejected)
		return nil, payments.Receipt{}, err
	}
	ref := payments.Reference(orderID, string(p))
	if done {
		e.observe(swaporder.ActionPayFee, outcomeNoop)
		return o, payments.Receipt{Reference: o.FeeRef(p), Status: payments.StatusCaptured}, nil
	}

	receipt, err := e.payments.Collect(ctx, payments.Charge{
		Reference: ref,
		OrderID:   orderID,
		PayerID:   actorID,
		Party:     string(p),
		Amount:    o.CommitmentFee.Decimal,
	})
	if err != nil {
		e.observe(swaporder.ActionPayFee, outcomeRejected)
		return nil, payments.Receipt{}, swaporder.PaymentError(swaporder.CodePaymentUnavailable, "payment service unavailable, try again", err)
	}

	switch receipt.Status {
	case payments.StatusCaptured:
		updated, err := e.recordCapture(ctx, orderID, actorID, p, ref)
		return updated, receipt, err
	case payments.StatusPending:
		updated, err := e.mutate(ctx, orderID, swaporder.ActionFeePending, actorID, func(o *swaporder.SwapOrder, now time.Time) (bool, error) {
			return o.RecordFeePending(p, ref, now)
		})
		return updated, receipt, err
	default:
		e.observe(swaporder.ActionPayFee, outcomeRejected)
		msg := "commitment fee payment was declined"
		if receipt.Reason != "" {
			msg += ": " + receipt.Reason
		}
		return nil, receipt, swaporder.PaymentError(swaporder.CodePaymentDeclined, msg, nil)
	}
}

// ConfirmFeePayment applies an asynchronous payment result. The reference names the order and
// party; the authoritative status is re-read from the payment collaborator.
func (e *Engine) ConfirmFeePayment(ctx context.Context, reference string) (*swaporder.SwapOrder, error) {
	orderID, party, err := payments.ParseReference(reference)
	if err != nil || (party != string(swaporder.PartyRequester) && party != string(swaporder.PartyOwner)) {
		return nil, swaporder.ValidationError(swaporder.CodeUnknownPayment, "malformed payment reference")
	}
	p := swaporder.Party(party)

	receipt, err := e.payments.Lookup(ctx, reference)
	if errors.Is(err, payments.ErrUnknownReference) {
		return nil, swaporder.ValidationError(swaporder.CodeUnknownPayment, "payment reference is unknown")
	} else if err != nil {
		return nil, swaporder.PaymentError(swaporder.CodePaymentUnavailable, "payment service unavailable, try again", err)
	}

	switch receipt.Status {
	case payments.StatusCaptured:
		o, err := e.load(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.FeePaid(p) {
			e.observe(swaporder.ActionPayFee, outcomeNoop)
			return o, nil
		}
		return e.recordCapture(ctx, orderID, o.PartyID(p), p, reference)
	case payments.StatusPending:
		return e.load(ctx, orderID)
	default:
		return nil, swaporder.PaymentError(swaporder.CodePaymentDeclined, "commitment fee payment was declined", nil)
	}
}

// recordCapture sets the fee flag for a captured payment. A capture that lands on an order that
// became terminal in the meantime is refunded straight away.
func (e *Engine) recordCapture(ctx context.Context, orderID, actorID string, p swaporder.Party, ref string) (*swaporder.SwapOrder, error) {
	o, err := e.mutate(ctx, orderID, swaporder.ActionPayFee, actorID, func(o *swaporder.SwapOrder, now time.Time) (bool, error) {
		return o.RecordFeePaid(p, ref, now)
	})
	if err != nil && swaporder.IsKind(err, swaporder.KindTerminal) {
		if current, lerr := e.load(ctx, orderID); lerr == nil && !current.FeePaid(p) {
			e.refundOrphan(ctx, orderID, ref)
		}
	}
	return o, err
}

func (e *Engine) refundOrphan(ctx context.Context, orderID, ref string) {
	if e.refunds == nil {
		e.logger.Error("captured fee on terminal order needs a manual refund", "order_id", orderID, "reference", ref)
		return
	}
	hold, applied, err := e.refunds.Refund(ctx, ref)
	if err != nil {
		e.logger.Error("refund of late capture failed", "order_id", orderID, "reference", ref, "error", err)
		return
	}
	e.logger.Warn("late capture refunded", "order_id", orderID, "reference", ref, "applied", applied, "amount", hold.Amount.String())
}
