package swaporder

import (
	"time"
)

// Status is the single authoritative lifecycle field of a swap order.
type Status string

// Order statuses
const (
	StatusPendingRequirements   Status = "pending_requirements"
	StatusRequirementsSubmitted Status = "requirements_submitted"
	StatusInProgress            Status = "in_progress"
	StatusDelivered             Status = "delivered" // one receipt confirmation in, waiting for the other
	StatusCompleted             Status = "completed"
	StatusCancelled             Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingRequirements, StatusRequirementsSubmitted, StatusInProgress,
		StatusDelivered, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further mutation is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Party is a role within one order.
type Party string

const (
	PartyRequester Party = "requester"
	PartyOwner     Party = "owner"
)

// Counterpart returns the other side of the exchange.
func (p Party) Counterpart() Party {
	if p == PartyOwner {
		return PartyRequester
	}
	return PartyOwner
}

// Requirements are the meetup logistics the requester proposes.
type Requirements struct {
	MeetupLocation  string
	MeetupTime      time.Time
	AdditionalNotes string
}

// Transition is one entry of the audit history kept for dispute evidence.
type Transition struct {
	Action  string    `dynamodbav:"action" json:"action"`
	ActorID string    `dynamodbav:"actor_id" json:"actor_id"`
	Party   Party     `dynamodbav:"party" json:"party"`
	From    Status    `dynamodbav:"from" json:"from"`
	To      Status    `dynamodbav:"to" json:"to"`
	At      time.Time `dynamodbav:"at" json:"at"`
}

// SwapOrder represents the item stored in the swap orders DynamoDB table.
// It is also the projection returned to both parties.
type SwapOrder struct {
	OrderID            string `dynamodbav:"order_id" json:"order_id"` // PK
	RequesterID        string `dynamodbav:"requester_id" json:"requester_id"`
	OwnerID            string `dynamodbav:"owner_id" json:"owner_id"`
	RequesterListingID string `dynamodbav:"requester_listing_id" json:"requester_listing_id"`
	OwnerListingID     string `dynamodbav:"owner_listing_id" json:"owner_listing_id"`
	Status             Status `dynamodbav:"status" json:"status"`

	MeetupLocation        string    `dynamodbav:"meetup_location,omitempty" json:"meetup_location,omitempty"`
	MeetupTime            time.Time `dynamodbav:"meetup_time" json:"meetup_time"`
	AdditionalNotes       string    `dynamodbav:"additional_notes,omitempty" json:"additional_notes,omitempty"`
	RequirementsSubmitted bool      `dynamodbav:"requirements_submitted" json:"requirements_submitted"`
	RequirementsApproved  bool      `dynamodbav:"requirements_approved" json:"requirements_approved"`

	CommitmentFee    Money  `dynamodbav:"commitment_fee" json:"commitment_fee"`
	RequesterPaidFee bool   `dynamodbav:"requester_paid_fee" json:"requester_paid_fee"`
	OwnerPaidFee     bool   `dynamodbav:"owner_paid_fee" json:"owner_paid_fee"`
	RequesterFeeRef  string `dynamodbav:"requester_fee_ref,omitempty" json:"requester_fee_ref,omitempty"`
	OwnerFeeRef      string `dynamodbav:"owner_fee_ref,omitempty" json:"owner_fee_ref,omitempty"`

	RequesterShipped bool `dynamodbav:"requester_shipped" json:"requester_shipped"`
	OwnerShipped     bool `dynamodbav:"owner_shipped" json:"owner_shipped"`

	RequesterReceivedBook bool `dynamodbav:"requester_received_book" json:"requester_received_book"`
	OwnerReceivedBook     bool `dynamodbav:"owner_received_book" json:"owner_received_book"`

	CancellationReason string `dynamodbav:"cancellation_reason,omitempty" json:"cancellation_reason,omitempty"`
	CancelledBy        string `dynamodbav:"cancelled_by,omitempty" json:"cancelled_by,omitempty"`

	History   []Transition `dynamodbav:"history" json:"history"`
	CreatedAt time.Time    `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt time.Time    `dynamodbav:"updated_at" json:"updated_at"`
	Version   int64        `dynamodbav:"version" json:"version"`
}

// PartyOf resolves a user id to its role in the order.
func (o *SwapOrder) PartyOf(userID string) (Party, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == o.RequesterID:
		return PartyRequester, true
	case userID == o.OwnerID:
		return PartyOwner, true
	default:
		return "", false
	}
}

// PartyID returns the user id holding the given role.
func (o *SwapOrder) PartyID(p Party) string {
	if p == PartyOwner {
		return o.OwnerID
	}
	return o.RequesterID
}

// FeePaid reports whether p's commitment fee has been collected.
func (o *SwapOrder) FeePaid(p Party) bool { return *o.feePaid(p) }

// Shipped reports whether p has declared dispatch.
func (o *SwapOrder) Shipped(p Party) bool { return *o.shipped(p) }

// Received reports whether p has confirmed receipt of the counterpart's book.
func (o *SwapOrder) Received(p Party) bool { return *o.received(p) }

// FeeRef returns the payment reference recorded for p, pending or captured.
func (o *SwapOrder) FeeRef(p Party) string { return *o.feeRef(p) }

func (o *SwapOrder) feePaid(p Party) *bool {
	if p == PartyOwner {
		return &o.OwnerPaidFee
	}
	return &o.RequesterPaidFee
}

func (o *SwapOrder) shipped(p Party) *bool {
	if p == PartyOwner {
		return &o.OwnerShipped
	}
	return &o.RequesterShipped
}

func (o *SwapOrder) received(p Party) *bool {
	if p == PartyOwner {
		return &o.OwnerReceivedBook
	}
	return &o.RequesterReceivedBook
}

func (o *SwapOrder) feeRef(p Party) *string {
	if p == PartyOwner {
		return &o.OwnerFeeRef
	}
	return &o.RequesterFeeRef
}

// Clone returns a deep copy so callers can diff before/after snapshots.
func (o *SwapOrder) Clone() *SwapOrder {
	if o == nil {
		return nil
	}
	clone := *o
	if o.History != nil {
		clone.History = make([]Transition, len(o.History))
		copy(clone.History, o.History)
	}
	return &clone
}
