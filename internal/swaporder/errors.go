package swaporder

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected command.
type Kind int

const (
	KindValidation    Kind = iota + 1 // malformed input, rejected before mutation
	KindAuthorization                 // wrong party or role
	KindStateConflict                 // guard not met for the current state
	KindTerminal                      // order already completed or cancelled
	KindPayment                       // payment collaborator declined or failed
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindStateConflict:
		return "state_conflict"
	case KindTerminal:
		return "terminal"
	case KindPayment:
		return "payment"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Machine-readable rejection codes.
const (
	CodeMeetupLocationRequired  = "meetup_location_required"
	CodeMeetupTimeRequired      = "meetup_time_required"
	CodeMeetupTimeInPast        = "meetup_time_in_past"
	CodeReasonRequired          = "cancellation_reason_required"
	CodeInvalidOrder            = "invalid_order"
	CodeNotAParty               = "not_a_party"
	CodeRequesterOnly           = "requester_only"
	CodeOwnerOnly               = "owner_only"
	CodeListingOwnership        = "listing_ownership_mismatch"
	CodeRequirementsSubmitted   = "requirements_already_submitted"
	CodeRequirementsNotReady    = "requirements_not_submitted"
	CodeRequirementsNotApproved = "requirements_not_approved"
	CodeFeeUnpaid               = "commitment_fee_unpaid"
	CodeCounterpartNotShipped   = "counterpart_not_dispatched"
	CodePaymentPending          = "payment_pending"
	CodeOrderTerminal           = "order_terminal"
	CodePaymentDeclined         = "payment_declined"
	CodePaymentUnavailable      = "payment_unavailable"
	CodeUnknownPayment          = "unknown_payment_reference"
	CodeOrderNotFound           = "order_not_found"
)

// Error is a command rejection. Every rejection is raised before any state is written.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a rejection of the given kind. A terminal-state rejection is also
// a state conflict.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind || (kind == KindStateConflict && e.Kind == KindTerminal)
}

// CodeOf returns the rejection code of err, or "" when err is not a rejection.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func validationError(code, msg string) error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func authorizationError(code, msg string) error {
	return &Error{Kind: KindAuthorization, Code: code, Message: msg}
}

func conflictError(code, msg string) error {
	return &Error{Kind: KindStateConflict, Code: code, Message: msg}
}

func terminalError(status Status) error {
	return &Error{Kind: KindTerminal, Code: CodeOrderTerminal, Message: fmt.Sprintf("order is %s and can no longer change", status)}
}

// NotFoundError reports a missing order.
func NotFoundError(orderID string) error {
	return &Error{Kind: KindNotFound, Code: CodeOrderNotFound, Message: fmt.Sprintf("swap order %s not found", orderID)}
}

// PaymentError wraps a collaborator failure or decline.
func PaymentError(code, msg string, err error) error {
	return &Error{Kind: KindPayment, Code: code, Message: msg, Err: err}
}

// ValidationError is exported for guards evaluated outside the aggregate (order creation).
func ValidationError(code, msg string) error { return validationError(code, msg) }

// AuthorizationError is exported for guards evaluated outside the aggregate (order creation).
func AuthorizationError(code, msg string) error { return authorizationError(code, msg) }
