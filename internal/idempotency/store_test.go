package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestCreateIfNotExists_Get_MarkDone(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)

	ctx := context.Background()
	key := ScopedKey("order-123", "dispatch", "alice", "k-1")
	hash := HashRequest([]byte(`{}`))

	created, err := s.CreateIfNotExists(ctx, key, "order-123", hash)
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, key, "order-123", hash)
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", rec.Status)
	}
	if rec.RequestHash != hash || rec.OrderID != "order-123" {
		t.Fatalf("record mismatch: %+v", rec)
	}

	if err := s.MarkDone(ctx, key, `{"status":"in_progress"}`, 200); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	item := mock.table[key]
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}
	if rb, ok := item["response_body"].(*types.AttributeValueMemberS); !ok || rb.Value != `{"status":"in_progress"}` {
		t.Fatalf("response_body not set correctly: %+v", item["response_body"])
	}

	// a finished record cannot be failed or reclaimed
	if err := s.MarkFailed(ctx, key, "late"); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
	if err := s.Reclaim(ctx, key); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
}

func TestMarkFailed_ThenReclaim(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()
	key := ScopedKey("order-9", "pay_commitment_fee", "bob", "k-2")

	if _, err := s.CreateIfNotExists(ctx, key, "order-9", HashRequest(nil)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkFailed(ctx, key, "payment_declined"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	if n, ok := mock.table[key]["note"].(*types.AttributeValueMemberS); !ok || n.Value != "payment_declined" {
		t.Fatalf("note not set, got %+v", mock.table[key]["note"])
	}

	if err := s.Reclaim(ctx, key); err != nil {
		t.Fatalf("Reclaim error: %v", err)
	}
	rec, _ := s.Get(ctx, key)
	if rec.Status != StatusInProgress || rec.Note != "" {
		t.Fatalf("expected reclaimed IN_PROGRESS record, got %+v", rec)
	}

	// only one reclaimer wins
	if err := s.Reclaim(ctx, key); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed on second reclaim, got %v", err)
	}
}

func TestExpiredRecord_IsReplaced(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return start }

	if _, err := s.CreateIfNotExists(ctx, "k", "o", "h1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	s.nowFunc = func() time.Time { return start.Add(2 * time.Hour) }
	rec, err := s.Get(ctx, "k")
	if err != nil || rec != nil {
		t.Fatalf("expected expired record to read as missing, got %+v, %v", rec, err)
	}
	created, err := s.CreateIfNotExists(ctx, "k", "o", "h2")
	if err != nil || !created {
		t.Fatalf("expected expired record to be replaced, created=%v err=%v", created, err)
	}
}

func TestScopedKey_And_HashRequest(t *testing.T) {
	if got := ScopedKey("o1", "cancel", "alice", "abc"); got != "o1:cancel:alice:abc" {
		t.Fatalf("unexpected scoped key %q", got)
	}
	if HashRequest([]byte("a")) == HashRequest([]byte("b")) {
		t.Fatalf("different bodies must hash differently")
	}
	if len(HashRequest(nil)) != 64 {
		t.Fatalf("expected hex sha256")
	}
}
