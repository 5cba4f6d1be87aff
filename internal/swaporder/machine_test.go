package swaporder

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func approvedOrder(t *testing.T) *SwapOrder {
	t.Helper()
	o := newTestOrder(t, "order-m")
	_, err := o.SubmitRequirements("alice", Requirements{MeetupLocation: "Library", MeetupTime: t0.Add(48 * time.Hour)}, t0)
	require.NoError(t, err)
	_, err = o.ApproveRequirements("bob", t0)
	require.NoError(t, err)
	return o
}

func requireKind(t *testing.T, err error, kind Kind, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, IsKind(err, kind), "expected kind %s, got %v", kind, err)
	if code != "" {
		assert.Equal(t, code, CodeOf(err))
	}
}

func TestNew_Guards(t *testing.T) {
	fee := NewMoney(decimal.NewFromInt(200))
	cases := map[string]NewOrder{
		"same parties":  {OrderID: "o", RequesterID: "a", OwnerID: "a", RequesterListingID: "l1", OwnerListingID: "l2", CommitmentFee: fee},
		"same listing":  {OrderID: "o", RequesterID: "a", OwnerID: "b", RequesterListingID: "l1", OwnerListingID: "l1", CommitmentFee: fee},
		"zero fee":      {OrderID: "o", RequesterID: "a", OwnerID: "b", RequesterListingID: "l1", OwnerListingID: "l2"},
		"sub-cent fee":  {OrderID: "o", RequesterID: "a", OwnerID: "b", RequesterListingID: "l1", OwnerListingID: "l2", CommitmentFee: NewMoney(decimal.RequireFromString("0.005"))},
		"missing owner": {OrderID: "o", RequesterID: "a", RequesterListingID: "l1", OwnerListingID: "l2", CommitmentFee: fee},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(in, t0)
			requireKind(t, err, KindValidation, CodeInvalidOrder)
		})
	}
}

func TestHappyPath_ReachesCompleted(t *testing.T) {
	o := newTestOrder(t, "order-happy")

	changed, err := o.SubmitRequirements("alice", Requirements{MeetupLocation: "Library", MeetupTime: t0.Add(time.Hour)}, t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusRequirementsSubmitted, o.Status)

	_, err = o.ApproveRequirements("bob", t0)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, o.Status)

	_, err = o.RecordFeePaid(PartyRequester, "ref-r", t0)
	require.NoError(t, err)
	assert.True(t, o.RequesterPaidFee)
	assert.Equal(t, StatusInProgress, o.Status)

	_, err = o.RecordFeePaid(PartyOwner, "ref-o", t0)
	require.NoError(t, err)

	_, err = o.MarkDispatched("alice", t0)
	require.NoError(t, err)
	_, err = o.MarkDispatched("bob", t0)
	require.NoError(t, err)

	_, err = o.ConfirmReceipt("alice", t0)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, o.Status)

	_, err = o.ConfirmReceipt("bob", t0)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, o.Status)

	require.NoError(t, o.Validate())
	assert.True(t, o.RequesterPaidFee && o.OwnerPaidFee)
	assert.True(t, o.RequesterShipped && o.OwnerShipped)
	assert.True(t, o.RequesterReceivedBook && o.OwnerReceivedBook)
	assert.Len(t, o.History, 9)
}

func TestSubmitRequirements_Guards(t *testing.T) {
	o := newTestOrder(t, "order-req")

	_, err := o.SubmitRequirements("bob", Requirements{MeetupLocation: "Cafe", MeetupTime: t0.Add(time.Hour)}, t0)
	requireKind(t, err, KindAuthorization, CodeRequesterOnly)

	_, err = o.SubmitRequirements("mallory", Requirements{MeetupLocation: "Cafe", MeetupTime: t0.Add(time.Hour)}, t0)
	requireKind(t, err, KindAuthorization, CodeNotAParty)

	_, err = o.SubmitRequirements("alice", Requirements{MeetupLocation: "  ", MeetupTime: t0.Add(time.Hour)}, t0)
	requireKind(t, err, KindValidation, CodeMeetupLocationRequired)

	_, err = o.SubmitRequirements("alice", Requirements{MeetupLocation: "Cafe"}, t0)
	requireKind(t, err, KindValidation, CodeMeetupTimeRequired)

	_, err = o.SubmitRequirements("alice", Requirements{MeetupLocation: "Cafe", MeetupTime: t0.Add(-time.Minute)}, t0)
	requireKind(t, err, KindValidation, CodeMeetupTimeInPast)

	assert.Equal(t, StatusPendingRequirements, o.Status)
	assert.False(t, o.RequirementsSubmitted)
}

func TestSubmitRequirements_RetryIsNoop_ChangeIsConflict(t *testing.T) {
	o := newTestOrder(t, "order-req2")
	req := Requirements{MeetupLocation: "Library", MeetupTime: t0.Add(time.Hour), AdditionalNotes: "near the entrance"}

	_, err := o.SubmitRequirements("alice", req, t0)
	require.NoError(t, err)
	version := len(o.History)

	changed, err := o.SubmitRequirements("alice", req, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, o.History, version)

	req.MeetupLocation = "Station"
	_, err = o.SubmitRequirements("alice", req, t0)
	requireKind(t, err, KindStateConflict, CodeRequirementsSubmitted)
	assert.Equal(t, "Library", o.MeetupLocation)
}

func TestApproveRequirements_OwnerOnly(t *testing.T) {
	o := newTestOrder(t, "order-appr")

	_, err := o.ApproveRequirements("bob", t0)
	requireKind(t, err, KindStateConflict, CodeRequirementsNotReady)

	_, err = o.SubmitRequirements("alice", Requirements{MeetupLocation: "Library", MeetupTime: t0.Add(time.Hour)}, t0)
	require.NoError(t, err)

	_, err = o.ApproveRequirements("alice", t0)
	requireKind(t, err, KindAuthorization, CodeOwnerOnly)
	assert.Equal(t, StatusRequirementsSubmitted, o.Status)

	changed, err := o.ApproveRequirements("bob", t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = o.ApproveRequirements("bob", t0)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestFee_RequiresApproval_AndIsIdempotent(t *testing.T) {
	o := newTestOrder(t, "order-fee")
	_, _, err := o.CheckFeePayable("alice")
	requireKind(t, err, KindStateConflict, CodeRequirementsNotApproved)

	o = approvedOrder(t)
	p, done, err := o.CheckFeePayable("bob")
	require.NoError(t, err)
	assert.Equal(t, PartyOwner, p)
	assert.False(t, done)

	// owner may pay before the requester
	changed, err := o.RecordFeePaid(PartyOwner, "ref-o", t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = o.RecordFeePaid(PartyOwner, "ref-o", t0)
	require.NoError(t, err)
	assert.False(t, changed)

	_, done, err = o.CheckFeePayable("bob")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "ref-o", o.FeeRef(PartyOwner))
}

func TestFeePending_RecordsReferenceOnce(t *testing.T) {
	o := approvedOrder(t)

	changed, err := o.RecordFeePending(PartyRequester, "ref-r", t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, o.RequesterPaidFee)

	changed, err = o.RecordFeePending(PartyRequester, "ref-r", t0)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = o.MarkDispatched("alice", t0)
	requireKind(t, err, KindStateConflict, CodePaymentPending)
	assert.False(t, o.RequesterShipped)
}

func TestDispatch_BeforeFee_IsConflict(t *testing.T) {
	o := approvedOrder(t)

	_, err := o.MarkDispatched("alice", t0)
	requireKind(t, err, KindStateConflict, CodeFeeUnpaid)
	assert.False(t, o.RequesterShipped)

	_, err = o.RecordFeePaid(PartyRequester, "ref-r", t0)
	require.NoError(t, err)
	changed, err := o.MarkDispatched("alice", t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = o.MarkDispatched("alice", t0)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestConfirmReceipt_WaitsForCounterpartDispatch(t *testing.T) {
	o := approvedOrder(t)
	_, _ = o.RecordFeePaid(PartyRequester, "ref-r", t0)
	_, _ = o.MarkDispatched("alice", t0)

	_, err := o.ConfirmReceipt("alice", t0)
	requireKind(t, err, KindStateConflict, CodeCounterpartNotShipped)

	changed, err := o.ConfirmReceipt("bob", t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusDelivered, o.Status)

	changed, err = o.ConfirmReceipt("bob", t0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusDelivered, o.Status)
}

func TestCancel_RequiresReason_AndFreezesOrder(t *testing.T) {
	o := approvedOrder(t)

	_, err := o.Cancel("bob", "   ", t0)
	requireKind(t, err, KindValidation, CodeReasonRequired)
	assert.Equal(t, StatusInProgress, o.Status)

	_, err = o.Cancel("bob", "changed mind", t0)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, "bob", o.CancelledBy)
	assert.Equal(t, "changed mind", o.CancellationReason)

	snapshot := o.Clone()

	_, err = o.MarkDispatched("alice", t0)
	requireKind(t, err, KindTerminal, CodeOrderTerminal)
	assert.True(t, IsKind(err, KindStateConflict), "terminal rejections are state conflicts")
	_, err = o.Cancel("alice", "again", t0)
	requireKind(t, err, KindTerminal, CodeOrderTerminal)
	_, err = o.RecordFeePaid(PartyRequester, "late", t0)
	requireKind(t, err, KindTerminal, CodeOrderTerminal)
	_, err = o.ConfirmReceipt("bob", t0)
	requireKind(t, err, KindTerminal, CodeOrderTerminal)

	assert.Equal(t, snapshot, o)
}

func TestValidate_DetectsViolations(t *testing.T) {
	o := approvedOrder(t)
	require.NoError(t, o.Validate())

	bad := o.Clone()
	bad.OwnerShipped = true
	assert.ErrorIs(t, bad.Validate(), ErrInvariant)

	bad = o.Clone()
	bad.Status = StatusCompleted
	assert.ErrorIs(t, bad.Validate(), ErrInvariant)

	bad = o.Clone()
	bad.RequirementsSubmitted = false
	assert.ErrorIs(t, bad.Validate(), ErrInvariant)
}
