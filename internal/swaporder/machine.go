package swaporder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Actions recorded in the audit history.
const (
	ActionCreate              = "create"
	ActionSubmitRequirements  = "submit_requirements"
	ActionApproveRequirements = "approve_requirements"
	ActionFeePending          = "fee_payment_pending"
	ActionPayFee              = "pay_commitment_fee"
	ActionDispatch            = "dispatch"
	ActionConfirmReceipt      = "confirm_receipt"
	ActionCancel              = "cancel"
)

// ErrInvariant is returned by Validate when an order violates a lifecycle invariant.
var ErrInvariant = errors.New("swap order invariant violated")

// NewOrder carries the fields frozen at creation time.
type NewOrder struct {
	OrderID            string
	RequesterID        string
	OwnerID            string
	RequesterListingID string
	OwnerListingID     string
	CommitmentFee      Money
}

// New builds an order in pending_requirements.
func New(in NewOrder, now time.Time) (*SwapOrder, error) {
	switch {
	case in.OrderID == "" || in.RequesterID == "" || in.OwnerID == "":
		return nil, validationError(CodeInvalidOrder, "order id and both party ids are required")
	case in.RequesterListingID == "" || in.OwnerListingID == "":
		return nil, validationError(CodeInvalidOrder, "both listing ids are required")
	case in.RequesterID == in.OwnerID:
		return nil, validationError(CodeInvalidOrder, "requester and owner must be different users")
	case in.RequesterListingID == in.OwnerListingID:
		return nil, validationError(CodeInvalidOrder, "a swap needs two different listings")
	case !ValidAmount(in.CommitmentFee.Decimal):
		return nil, validationError(CodeInvalidOrder, "commitment fee must be a positive amount in whole cents")
	}

	o := &SwapOrder{
		OrderID:            in.OrderID,
		RequesterID:        in.RequesterID,
		OwnerID:            in.OwnerID,
		RequesterListingID: in.RequesterListingID,
		OwnerListingID:     in.OwnerListingID,
		Status:             StatusPendingRequirements,
		CommitmentFee:      in.CommitmentFee,
		CreatedAt:          now,
	}
	o.record(ActionCreate, in.RequesterID, PartyRequester, StatusPendingRequirements, now)
	return o, nil
}

// SubmitRequirements records the requester's meetup proposal. Resubmitting identical
// details is a no-op; different details after submission are rejected because no
// reject/resubmit cycle exists, only cancellation.
func (o *SwapOrder) SubmitRequirements(actorID string, r Requirements, now time.Time) (bool, error) {
	p, err := o.authorize(actorID)
	if err != nil {
		return false, err
	}
	if p != PartyRequester {
		return false, authorizationError(CodeRequesterOnly, "only the requester submits meetup requirements")
	}

	location := strings.TrimSpace(r.MeetupLocation)
	notes := strings.TrimSpace(r.AdditionalNotes)
	if o.RequirementsSubmitted {
		if location == o.MeetupLocation && r.MeetupTime.Equal(o.MeetupTime) && notes == o.AdditionalNotes {
			return false, nil
		}
		return false, conflictError(CodeRequirementsSubmitted, "meetup requirements were already submitted; cancel the order to renegotiate")
	}
	if o.Status != StatusPendingRequirements {
		return false, conflictError(CodeRequirementsSubmitted, fmt.Sprintf("requirements cannot be submitted while order is %s", o.Status))
	}

	switch {
	case location == "":
		return false, validationError(CodeMeetupLocationRequired, "meetup location is required")
	case r.MeetupTime.IsZero():
		return false, validationError(CodeMeetupTimeRequired, "meetup time is required")
	case r.MeetupTime.Before(now):
		return false, validationError(CodeMeetupTimeInPast, "meetup time must not be in the past")
	}

	from := o.Status
	o.MeetupLocation = location
	o.MeetupTime = r.MeetupTime.UTC()
	o.AdditionalNotes = notes
	o.RequirementsSubmitted = true
	o.Status = StatusRequirementsSubmitted
	o.record(ActionSubmitRequirements, actorID, p, from, now)
	return true, nil
}

// ApproveRequirements is the owner's single, irreversible approval.
func (o *SwapOrder) ApproveRequirements(actorID string, now time.Time) (bool, error) {
	p, err := o.authorize(actorID)
	if err != nil {
		return false, err
	}
	if p != PartyOwner {
		return false, authorizationError(CodeOwnerOnly, "only the book owner can approve meetup requirements")
	}
	if o.RequirementsApproved {
		return false, nil
	}
	if !o.RequirementsSubmitted || o.Status != StatusRequirementsSubmitted {
		return false, conflictError(CodeRequirementsNotReady, "waiting for the requester to submit meetup requirements")
	}

	from := o.Status
	o.RequirementsApproved = true
	o.Status = StatusInProgress
	o.record(ActionApproveRequirements, actorID, p, from, now)
	return true, nil
}

// CheckFeePayable evaluates the fee guards for actorID without mutating the order.
// done is true when the caller's fee is already collected.
func (o *SwapOrder) CheckFeePayable(actorID string) (p Party, done bool, err error) {
	p, err = o.authorize(actorID)
	if err != nil {
		return "", false, err
	}
	if o.FeePaid(p) {
		return p, true, nil
	}
	if !o.RequirementsApproved {
		return p, false, conflictError(CodeRequirementsNotApproved, "meetup requirements must be approved before paying the commitment fee")
	}
	return p, false, nil
}

// RecordFeePending stores the reference of a payment the collaborator has not confirmed yet.
func (o *SwapOrder) RecordFeePending(p Party, reference string, now time.Time) (bool, error) {
	if o.Status.Terminal() {
		return false, terminalError(o.Status)
	}
	if o.FeePaid(p) || o.FeeRef(p) == reference {
		return false, nil
	}
	*o.feeRef(p) = reference
	o.record(ActionFeePending, o.PartyID(p), p, o.Status, now)
	return true, nil
}

// RecordFeePaid flips p's fee flag once the collaborator has confirmed the capture.
func (o *SwapOrder) RecordFeePaid(p Party, reference string, now time.Time) (bool, error) {
	if o.Status.Terminal() {
		return false, terminalError(o.Status)
	}
	if o.FeePaid(p) {
		return false, nil
	}
	if !o.RequirementsApproved {
		return false, conflictError(CodeRequirementsNotApproved, "meetup requirements must be approved before paying the commitment fee")
	}
	*o.feePaid(p) = true
	*o.feeRef(p) = reference
	o.record(ActionPayFee, o.PartyID(p), p, o.Status, now)
	return true, nil
}

// MarkDispatched records the caller's self-declared shipment.
func (o *SwapOrder) MarkDispatched(actorID string, now time.Time) (bool, error) {
	p, err := o.authorize(actorID)
	if err != nil {
		return false, err
	}
	if o.Shipped(p) {
		return false, nil
	}
	if o.Status != StatusInProgress && o.Status != StatusDelivered {
		return false, conflictError(CodeRequirementsNotApproved, "meetup requirements must be approved before dispatching")
	}
	if !o.FeePaid(p) {
		if o.FeeRef(p) != "" {
			return false, conflictError(CodePaymentPending, "your commitment fee payment is still awaiting confirmation")
		}
		return false, conflictError(CodeFeeUnpaid, "pay your commitment fee before dispatching your book")
	}
	*o.shipped(p) = true
	o.record(ActionDispatch, actorID, p, o.Status, now)
	return true, nil
}

// ConfirmReceipt records the caller's receipt of the counterpart's book. The first
// confirmation moves the order to delivered, the second completes it.
func (o *SwapOrder) ConfirmReceipt(actorID string, now time.Time) (bool, error) {
	p, err := o.authorize(actorID)
	if err != nil {
		return false, err
	}
	if o.Received(p) {
		return false, nil
	}
	if o.Status != StatusInProgress && o.Status != StatusDelivered {
		return false, conflictError(CodeRequirementsNotApproved, "meetup requirements must be approved before confirming receipt")
	}
	if !o.Shipped(p.Counterpart()) {
		return false, conflictError(CodeCounterpartNotShipped, "waiting for the other party to dispatch their book")
	}

	from := o.Status
	*o.received(p) = true
	if o.RequesterReceivedBook && o.OwnerReceivedBook {
		o.Status = StatusCompleted
	} else {
		o.Status = StatusDelivered
	}
	o.record(ActionConfirmReceipt, actorID, p, from, now)
	return true, nil
}

// Cancel moves any non-terminal order to cancelled.
func (o *SwapOrder) Cancel(actorID, reason string, now time.Time) (bool, error) {
	p, err := o.authorize(actorID)
	if err != nil {
		return false, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return false, validationError(CodeReasonRequired, "a cancellation reason is required")
	}

	from := o.Status
	o.Status = StatusCancelled
	o.CancellationReason = reason
	o.CancelledBy = actorID
	o.record(ActionCancel, actorID, p, from, now)
	return true, nil
}

// Validate checks the lifecycle invariants. The store refuses to persist an order that fails it.
func (o *SwapOrder) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: order %s: %s", ErrInvariant, o.OrderID, fmt.Sprintf(format, args...))
	}
	if !o.Status.Valid() {
		return fail("unknown status %q", o.Status)
	}
	if o.RequesterID == "" || o.OwnerID == "" || o.RequesterID == o.OwnerID {
		return fail("parties must be two distinct users")
	}
	if o.RequirementsApproved && !o.RequirementsSubmitted {
		return fail("requirements approved without submission")
	}
	for _, p := range []Party{PartyRequester, PartyOwner} {
		if o.Shipped(p) && !o.FeePaid(p) {
			return fail("%s dispatched before paying the commitment fee", p)
		}
		if o.Received(p) && !o.Shipped(p.Counterpart()) {
			return fail("%s received a book the %s never dispatched", p, p.Counterpart())
		}
	}
	switch o.Status {
	case StatusInProgress, StatusDelivered, StatusCompleted:
		if !o.RequirementsApproved {
			return fail("status %s requires approved requirements", o.Status)
		}
	}
	if o.Status == StatusDelivered && o.RequesterReceivedBook == o.OwnerReceivedBook {
		return fail("delivered requires exactly one receipt confirmation")
	}
	if o.Status == StatusCompleted && !(o.RequesterReceivedBook && o.OwnerReceivedBook) {
		return fail("completed requires both receipt confirmations")
	}
	if o.Status == StatusCancelled && (o.CancellationReason == "" || o.CancelledBy == "") {
		return fail("cancelled requires a reason and the cancelling party")
	}
	return nil
}

// authorize resolves the caller's role and rejects commands against terminal orders.
func (o *SwapOrder) authorize(actorID string) (Party, error) {
	p, ok := o.PartyOf(actorID)
	if !ok {
		return "", authorizationError(CodeNotAParty, "caller is not a party to this swap order")
	}
	if o.Status.Terminal() {
		return "", terminalError(o.Status)
	}
	return p, nil
}

func (o *SwapOrder) record(action, actorID string, p Party, from Status, now time.Time) {
	o.History = append(o.History, Transition{
		Action:  action,
		ActorID: actorID,
		Party:   p,
		From:    from,
		To:      o.Status,
		At:      now,
	})
	o.UpdatedAt = now
}
