package engine

import (
	"github.com/imrishuroy/go-bookswap-orderflow/internal/notify"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
)

var parties = []swaporder.Party{swaporder.PartyRequester, swaporder.PartyOwner}

// deriveEvents compares the committed order with its previous version and returns the
// notifications the change implies.
func (e *Engine) deriveEvents(before, after *swaporder.SwapOrder, actorID string) []notify.Event {
	var out []notify.Event
	add := func(kind notify.Kind, recipient, msg string) {
		out = append(out, e.event(after, kind, recipient, actorID, msg))
	}
	both := func(kind notify.Kind, msg string) {
		for _, p := range parties {
			add(kind, after.PartyID(p), msg)
		}
	}

	if after.Status == swaporder.StatusCancelled && before.Status != swaporder.StatusCancelled {
		recipient := after.OwnerID
		if after.CancelledBy == after.OwnerID {
			recipient = after.RequesterID
		}
		add(notify.KindSwapCancelled, recipient, "the swap was cancelled: "+after.CancellationReason)
		return out
	}

	if after.RequirementsSubmitted && !before.RequirementsSubmitted {
		add(notify.KindRequirementsSubmitted, after.OwnerID, "meetup details were proposed and wait for your approval")
	}
	if after.RequirementsApproved && !before.RequirementsApproved {
		add(notify.KindRequirementsApproved, after.RequesterID, "meetup details were approved, pay your commitment fee to continue")
	}

	for _, p := range parties {
		if after.FeePaid(p) && !before.FeePaid(p) {
			add(notify.KindFeePaid, after.PartyID(p.Counterpart()), "the other party paid their commitment fee")
		}
	}
	if bothFees(after) && !bothFees(before) {
		both(notify.KindFeesComplete, "both commitment fees are paid, you can dispatch your book")
	}

	for _, p := range parties {
		if after.Shipped(p) && !before.Shipped(p) {
			add(notify.KindDispatched, after.PartyID(p.Counterpart()), "the other party dispatched their book")
		}
	}
	if bothShipped(after) && !bothShipped(before) {
		both(notify.KindBothDispatched, "both books are on their way")
	}

	for _, p := range parties {
		if after.Received(p) && !before.Received(p) {
			add(notify.KindReceiptConfirmed, after.PartyID(p.Counterpart()), "the other party confirmed they received your book")
		}
	}
	if after.Status == swaporder.StatusCompleted && before.Status != swaporder.StatusCompleted {
		both(notify.KindSwapCompleted, "the swap is complete")
	}
	return out
}

func (e *Engine) event(o *swaporder.SwapOrder, kind notify.Kind, recipient, actorID, msg string) notify.Event {
	return notify.Event{
		EventID:     e.newID(),
		Kind:        kind,
		OrderID:     o.OrderID,
		RecipientID: recipient,
		ActorID:     actorID,
		Status:      string(o.Status),
		Message:     msg,
		OccurredAt:  o.UpdatedAt,
	}
}

func bothFees(o *swaporder.SwapOrder) bool { return o.RequesterPaidFee && o.OwnerPaidFee }

func bothShipped(o *swaporder.SwapOrder) bool { return o.RequesterShipped && o.OwnerShipped }
