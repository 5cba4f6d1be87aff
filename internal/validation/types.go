package validation

import "time"

// CreateSwapOrderRequest is the payload for POST /swap-orders, sent once a swap proposal is accepted.
type CreateSwapOrderRequest struct {
	RequesterID        string  `json:"requester_id" validate:"required,max=128"`
	OwnerID            string  `json:"owner_id" validate:"required,max=128,nefield=RequesterID"`
	RequesterListingID string  `json:"requester_listing_id" validate:"required,max=128"`
	OwnerListingID     string  `json:"owner_listing_id" validate:"required,max=128,nefield=RequesterListingID"`
	CommitmentFee      *string `json:"commitment_fee,omitempty"` // decimal string; defaults to the configured fee
}

// SubmitRequirementsRequest is the requester's meetup proposal.
type SubmitRequirementsRequest struct {
	MeetupLocation  string     `json:"meetup_location" validate:"required,max=200"`
	MeetupTime      *time.Time `json:"meetup_time" validate:"required"` // RFC 3339
	AdditionalNotes string     `json:"additional_notes,omitempty" validate:"max=1000"`
}

// CancelRequest carries the mandatory cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// PaymentCallbackRequest is posted by the payment collaborator when an asynchronous payment settles.
type PaymentCallbackRequest struct {
	Reference string `json:"reference" validate:"required,max=300"`
}
