package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/payments"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
)

type fakeEscrow struct {
	mu    sync.Mutex
	holds map[string]string // reference -> held|released|refunded
	fail  error
}

func (f *fakeEscrow) move(ref, to string) (payments.Hold, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return payments.Hold{}, false, f.fail
	}
	status, ok := f.holds[ref]
	if !ok {
		return payments.Hold{}, false, payments.ErrUnknownReference
	}
	hold := payments.Hold{Reference: ref, Amount: decimal.NewFromInt(200)}
	if status == to {
		return hold, false, nil
	}
	f.holds[ref] = to
	return hold, true, nil
}

func (f *fakeEscrow) Release(_ context.Context, ref string) (payments.Hold, bool, error) {
	return f.move(ref, OutcomeReleased)
}

func (f *fakeEscrow) Refund(_ context.Context, ref string) (payments.Hold, bool, error) {
	return f.move(ref, OutcomeRefunded)
}

type recorded struct {
	outcome string
	amount  decimal.Decimal
}

type fakeRecorder struct{ calls []recorded }

func (r *fakeRecorder) RecordSettlement(_ context.Context, outcome string, amount decimal.Decimal) error {
	r.calls = append(r.calls, recorded{outcome, amount})
	return nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func orderWithFees(t *testing.T, payRequester, payOwner bool) *swaporder.SwapOrder {
	t.Helper()
	now := time.Now().UTC()
	o, err := swaporder.New(swaporder.NewOrder{
		OrderID: "o1", RequesterID: "alice", OwnerID: "bob",
		RequesterListingID: "la", OwnerListingID: "lb",
		CommitmentFee: swaporder.NewMoney(decimal.NewFromInt(200)),
	}, now)
	require.NoError(t, err)
	_, err = o.SubmitRequirements("alice", swaporder.Requirements{MeetupLocation: "Library", MeetupTime: now.Add(time.Hour)}, now)
	require.NoError(t, err)
	_, err = o.ApproveRequirements("bob", now)
	require.NoError(t, err)
	if payRequester {
		_, err = o.RecordFeePaid(swaporder.PartyRequester, payments.Reference("o1", "requester"), now)
		require.NoError(t, err)
	}
	if payOwner {
		_, err = o.RecordFeePaid(swaporder.PartyOwner, payments.Reference("o1", "owner"), now)
		require.NoError(t, err)
	}
	return o
}

func TestSettle_CompletedReleasesBothFees(t *testing.T) {
	o := orderWithFees(t, true, true)
	now := time.Now()
	for _, step := range []func() (bool, error){
		func() (bool, error) { return o.MarkDispatched("alice", now) },
		func() (bool, error) { return o.MarkDispatched("bob", now) },
		func() (bool, error) { return o.ConfirmReceipt("alice", now) },
		func() (bool, error) { return o.ConfirmReceipt("bob", now) },
	} {
		_, err := step()
		require.NoError(t, err)
	}
	require.Equal(t, swaporder.StatusCompleted, o.Status)

	escrow := &fakeEscrow{holds: map[string]string{
		"o1:requester:commitment_fee": "held",
		"o1:owner:commitment_fee":     "held",
	}}
	rec := &fakeRecorder{}
	s := NewSettler(escrow, rec, quietLogger())

	sum, err := s.Settle(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReleased, sum.Outcome)
	assert.Len(t, sum.Moved, 2)
	assert.Len(t, rec.calls, 2)
	assert.Equal(t, OutcomeReleased, escrow.holds["o1:owner:commitment_fee"])

	// second run moves nothing
	sum, err = s.Settle(context.Background(), o)
	require.NoError(t, err)
	assert.Empty(t, sum.Moved)
	assert.Equal(t, 2, sum.Already)
	assert.Len(t, rec.calls, 2)
}

func TestSettle_CancelledRefundsOnlyCollectedFees(t *testing.T) {
	o := orderWithFees(t, true, false)
	_, err := o.Cancel("bob", "changed mind", time.Now())
	require.NoError(t, err)

	escrow := &fakeEscrow{holds: map[string]string{"o1:requester:commitment_fee": "held"}}
	s := NewSettler(escrow, nil, quietLogger())

	sum, err := s.Settle(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefunded, sum.Outcome)
	require.Len(t, sum.Moved, 1)
	assert.Equal(t, "o1:requester:commitment_fee", sum.Moved[0].Reference)
	assert.Equal(t, OutcomeRefunded, escrow.holds["o1:requester:commitment_fee"])
}

func TestSettle_RejectsActiveOrder(t *testing.T) {
	o := orderWithFees(t, true, true)
	s := NewSettler(&fakeEscrow{}, nil, quietLogger())

	_, err := s.Settle(context.Background(), o)
	assert.ErrorIs(t, err, ErrNotTerminal)
}

func TestSettle_PropagatesEscrowFailure(t *testing.T) {
	o := orderWithFees(t, true, false)
	_, err := o.Cancel("alice", "lost the book", time.Now())
	require.NoError(t, err)

	s := NewSettler(&fakeEscrow{fail: errors.New("db down")}, nil, quietLogger())
	_, err = s.Settle(context.Background(), o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestSettle_CancelledRefundsCaptureTheOrderNeverRecorded(t *testing.T) {
	// requester's collect succeeded but the order write was lost
	o := orderWithFees(t, false, false)
	_, err := o.Cancel("alice", "gave up", time.Now())
	require.NoError(t, err)
	require.False(t, o.RequesterPaidFee)

	escrow := &fakeEscrow{holds: map[string]string{"o1:requester:commitment_fee": "held"}}
	rec := &fakeRecorder{}
	s := NewSettler(escrow, rec, quietLogger())

	sum, err := s.Settle(context.Background(), o)
	require.NoError(t, err)
	require.Len(t, sum.Moved, 1)
	assert.Equal(t, "o1:requester:commitment_fee", sum.Moved[0].Reference)
	assert.Equal(t, OutcomeRefunded, escrow.holds["o1:requester:commitment_fee"])
	assert.Len(t, rec.calls, 1)

	sum, err = s.Settle(context.Background(), o)
	require.NoError(t, err)
	assert.Empty(t, sum.Moved)
	assert.Equal(t, 1, sum.Already)
}

func TestSettle_CompletedReleasesOnlyRecordedFees(t *testing.T) {
	o := orderWithFees(t, true, true)
	o.Status = swaporder.StatusCompleted
	o.OwnerPaidFee = false

	escrow := &fakeEscrow{holds: map[string]string{
		"o1:requester:commitment_fee": "held",
		"o1:owner:commitment_fee":     "held",
	}}
	s := NewSettler(escrow, nil, quietLogger())

	sum, err := s.Settle(context.Background(), o)
	require.NoError(t, err)
	require.Len(t, sum.Moved, 1)
	assert.Equal(t, "held", escrow.holds["o1:owner:commitment_fee"])
}
