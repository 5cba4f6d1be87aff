package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Status is the collaborator's view of one commitment-fee collection.
type Status string

const (
	StatusCaptured Status = "captured"
	StatusPending  Status = "pending"
	StatusDeclined Status = "declined"
)

// ErrUnknownReference is returned by Lookup when no collection exists for a reference.
var ErrUnknownReference = errors.New("unknown payment reference")

// Charge is one request to collect a party's commitment fee into escrow.
type Charge struct {
	Reference string
	OrderID   string
	PayerID   string
	Party     string
	Amount    decimal.Decimal
}

// Receipt is the outcome of Collect or Lookup.
type Receipt struct {
	Reference   string `json:"reference"`
	Status      Status `json:"status"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Hold is a collected fee sitting in escrow.
type Hold struct {
	Reference string
	OrderID   string
	PayerID   string
	Amount    decimal.Decimal
}

// Gateway collects commitment fees. Collect must be idempotent on Charge.Reference:
// collecting twice with the same reference never debits twice.
type Gateway interface {
	Collect(ctx context.Context, c Charge) (Receipt, error)
	Lookup(ctx context.Context, reference string) (Receipt, error)
}

const referenceSuffix = "commitment_fee"

// Reference builds the deterministic escrow reference for one party's fee on one order.
func Reference(orderID, party string) string {
	return orderID + ":" + party + ":" + referenceSuffix
}

// ParseReference splits a reference built by Reference.
func ParseReference(ref string) (orderID, party string, err error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] != referenceSuffix {
		return "", "", fmt.Errorf("malformed payment reference %q", ref)
	}
	return parts[0], parts[1], nil
}
