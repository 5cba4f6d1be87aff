package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/aws"
)

type fakeSender struct {
	msgs   []aws.Message
	failOn Kind
}

func (f *fakeSender) Send(_ context.Context, msg aws.Message) error {
	if msg.Attributes["event_kind"] == string(f.failOn) {
		return errors.New("queue unavailable")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestSQSNotifier_PublishesEachEvent(t *testing.T) {
	s := &fakeSender{}
	n := NewSQSNotifier(s)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := n.Notify(context.Background(),
		Event{EventID: "e1", Kind: KindDispatched, OrderID: "o1", RecipientID: "bob", ActorID: "alice", Status: "in_progress", OccurredAt: at},
		Event{EventID: "e2", Kind: KindBothDispatched, OrderID: "o1", RecipientID: "alice", Status: "in_progress", OccurredAt: at},
	)
	require.NoError(t, err)
	require.Len(t, s.msgs, 2)

	assert.Equal(t, "dispatched", s.msgs[0].Attributes["event_kind"])
	assert.Equal(t, "bob", s.msgs[0].Attributes["recipient_id"])
	assert.Equal(t, "o1", s.msgs[0].GroupID)
	assert.Equal(t, "e1", s.msgs[0].DeduplicationID)

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(s.msgs[1].Body), &ev))
	assert.Equal(t, KindBothDispatched, ev.Kind)
	assert.Equal(t, "alice", ev.RecipientID)
	assert.True(t, ev.OccurredAt.Equal(at))
}

func TestSQSNotifier_ContinuesAfterFailure(t *testing.T) {
	s := &fakeSender{failOn: KindFeePaid}
	n := NewSQSNotifier(s)

	err := n.Notify(context.Background(),
		Event{EventID: "e1", Kind: KindFeePaid, OrderID: "o1", RecipientID: "bob"},
		Event{EventID: "e2", Kind: KindFeesComplete, OrderID: "o1", RecipientID: "alice"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee_paid")
	assert.Len(t, s.msgs, 1)
}
