package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/listings"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/notify"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/payments"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/settlement"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
)

const defaultMaxAttempts = 5

// ErrContention is returned when a command kept losing the version race.
var ErrContention = errors.New("swap order is busy, retry the command")

// OrderStore persists swap orders with optimistic concurrency.
type OrderStore interface {
	Create(ctx context.Context, o *swaporder.SwapOrder) error
	Get(ctx context.Context, orderID string) (*swaporder.SwapOrder, error)
	Save(ctx context.Context, o *swaporder.SwapOrder, expectedVersion int64) error
}

// ListingDirectory resolves listing ownership at creation time.
type ListingDirectory interface {
	OwnerOf(ctx context.Context, listingID string) (string, error)
}

// Settler moves escrowed fees of a terminal order.
type Settler interface {
	Settle(ctx context.Context, o *swaporder.SwapOrder) (settlement.Summary, error)
}

// Refunder returns a captured fee to its payer.
type Refunder interface {
	Refund(ctx context.Context, reference string) (payments.Hold, bool, error)
}

// Config wires the engine's collaborators. Settler is optional: when nil, settlement is left to
// the stream worker.
type Config struct {
	Store       OrderStore
	Payments    payments.Gateway
	Refunds     Refunder
	Notifier    notify.Notifier
	Settler     Settler
	Listings    ListingDirectory
	Logger      *slog.Logger
	Now         func() time.Time
	NewID       func() string
	MaxAttempts int
	DefaultFee  decimal.Decimal
}

// Engine applies swap order commands. Each command is a consistent read, a pure transition on a
// copy, and a conditional write; a lost race reloads and re-applies.
type Engine struct {
	store       OrderStore
	payments    payments.Gateway
	refunds     Refunder
	notifier    notify.Notifier
	settler     Settler
	listings    ListingDirectory
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
	maxAttempts int
	defaultFee  decimal.Decimal
}

// New builds an Engine, filling defaults for optional collaborators.
func New(cfg Config) *Engine {
	e := &Engine{
		store:       cfg.Store,
		payments:    cfg.Payments,
		refunds:     cfg.Refunds,
		notifier:    cfg.Notifier,
		settler:     cfg.Settler,
		listings:    cfg.Listings,
		logger:      cfg.Logger,
		now:         cfg.Now,
		newID:       cfg.NewID,
		maxAttempts: cfg.MaxAttempts,
		defaultFee:  cfg.DefaultFee,
	}
	if e.notifier == nil {
		e.notifier = notify.Noop{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.New().String() }
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = defaultMaxAttempts
	}
	return e
}

// CreateInput describes an accepted swap proposal.
type CreateInput struct {
	RequesterID        string
	OwnerID            string
	RequesterListingID string
	OwnerListingID     string
	CommitmentFee      *decimal.Decimal
}

// Create opens a swap order between the two parties of an accepted proposal. The caller must be
// one of them and each listing must currently belong to its party.
func (e *Engine) Create(ctx context.Context, actorID string, in CreateInput) (*swaporder.SwapOrder, error) {
	if actorID == "" || (actorID != in.RequesterID && actorID != in.OwnerID) {
		e.observe(swaporder.ActionCreate, outcomeRejected)
		return nil, swaporder.AuthorizationError(swaporder.CodeNotAParty, "caller is not a party to this swap")
	}
	fee := e.defaultFee
	if in.CommitmentFee != nil {
		fee = *in.CommitmentFee
	}

	o, err := swaporder.New(swaporder.NewOrder{
		OrderID:            e.newID(),
		RequesterID:        in.RequesterID,
		OwnerID:            in.OwnerID,
		RequesterListingID: in.RequesterListingID,
		OwnerListingID:     in.OwnerListingID,
		CommitmentFee:      swaporder.NewMoney(fee),
	}, e.now())
	if err != nil {
		e.observe(swaporder.ActionCreate, outcomeRejected)
		return nil, err
	}
	if err := e.checkOwnership(ctx, in.RequesterListingID, in.RequesterID); err != nil {
		e.observe(swaporder.ActionCreate, outcomeRejected)
		return nil, err
	}
	if err := e.checkOwnership(ctx, in.OwnerListingID, in.OwnerID); err != nil {
		e.observe(swaporder.ActionCreate, outcomeRejected)
		return nil, err
	}

	if err := e.store.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create swap order: %w", err)
	}
	e.observe(swaporder.ActionCreate, outcomeApplied)
	e.logger.Info("swap order created",
		"order_id", o.OrderID, "requester_id", o.RequesterID, "owner_id", o.OwnerID, "commitment_fee", o.CommitmentFee.String())

	recipient := o.OwnerID
	if actorID == o.OwnerID {
		recipient = o.RequesterID
	}
	e.publish(ctx, o, []notify.Event{e.event(o, notify.KindSwapCreated, recipient, actorID, "a new book swap was opened with you")})
	return o, nil
}

func (e *Engine) checkOwnership(ctx context.Context, listingID, userID string) error {
	if e.listings == nil {
		return nil
	}
	owner, err := e.listings.OwnerOf(ctx, listingID)
	if errors.Is(err, listings.ErrListingNotFound) {
		return swaporder.ValidationError(swaporder.CodeListingOwnership, fmt.Sprintf("listing %s does not exist", listingID))
	} else if err != nil {
		return fmt.Errorf("resolve listing owner: %w", err)
	}
	if owner != userID {
		return swaporder.ValidationError(swaporder.CodeListingOwnership, fmt.Sprintf("listing %s does not belong to %s", listingID, userID))
	}
	return nil
}

// Get returns the order projection to one of its parties.
func (e *Engine) Get(ctx context.Context, actorID, orderID string) (*swaporder.SwapOrder, error) {
	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if _, ok := o.PartyOf(actorID); !ok {
		return nil, swaporder.AuthorizationError(swaporder.CodeNotAParty, "caller is not a party to this swap order")
	}
	return o, nil
}

// SubmitRequirements records the requester's meetup proposal.
func (e *Engine) SubmitRequirements(ctx context.Context, actorID, orderID string, r swaporder.Requirements) (*swaporder.SwapOrder, error) {
	return e.mutate(ctx, orderID, swaporder.ActionSubmitRequirements, actorID, func(o *swaporder.SwapOrder, now time.Time) (bool, error) {
		return o.SubmitRequirements(actorID, r, now)
	})
}

// ApproveRequirements records the owner's approval.
func (e *Engine) ApproveRequirements(ctx context.Context, actorID, orderID string) (*swaporder.SwapOrder, error) {
	return e.mutate(ctx, orderID, swaporder.ActionApproveRequirements, actorID, func(o *swaporder.SwapOrder, now time.Time) (bool, error) {
		return o.ApproveRequirements(actorID, now)
	})
}

// MarkDispatched records the caller's shipment.
func (e *Engine) MarkDispatched(ctx context.Context, actorID, orderID string) (*swaporder.SwapOrder, error) {
	return e.mutate(ctx, orderID, swaporder.ActionDispatch, actorID, func(o *swaporder.SwapOrder, now time.Time) (bool, error) {
		return o.MarkDispatched(actorID, now)
	})
}

// ConfirmReceipt records the caller's receipt of the counterpart's book.
func (e *Engine) ConfirmReceipt(ctx context.Context, actorID, orderID string) (*swaporder.SwapOrder, error) {
	return e.mutate(ctx, orderID, swaporder.ActionConfirmReceipt, actorID, func(o *swaporder.SwapOrder, now time.Time) (bool, error) {
		return o.ConfirmReceipt(actorID, now)
	})
}

// Cancel terminates a non-terminal order.
func (e *Engine) Cancel(ctx context.Context, actorID, orderID, reason string) (*swaporder.SwapOrder, error) {
	return e.mutate(ctx, orderID, swaporder.ActionCancel, actorID, func(o *swaporder.SwapOrder, now time.Time) (bool, error) {
		return o.Cancel(actorID, reason, now)
	})
}

type transition func(o *swaporder.SwapOrder, now time.Time) (bool, error)

// mutate runs one command under optimistic concurrency. Rejections are returned before anything
// is written. Side effects run only after the write committed.
func (e *Engine) mutate(ctx context.Context, orderID, action, actorID string, apply transition) (*swaporder.SwapOrder, error) {
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		current, err := e.load(ctx, orderID)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		changed, err := apply(next, e.now())
		if err != nil {
			e.observe(action, outcomeRejected)
			e.logger.Info("swap command rejected",
				"order_id", orderID, "action", action, "actor", actorID, "status", current.Status, "code", swaporder.CodeOf(err))
			return nil, err
		}
		if !changed {
			e.observe(action, outcomeNoop)
			return current, nil
		}

		err = e.store.Save(ctx, next, current.Version)
		if errors.Is(err, swaporder.ErrVersionConflict) {
			e.logger.Debug("swap order version conflict, retrying",
				"order_id", orderID, "action", action, "attempt", attempt, "version", current.Version)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save swap order %s: %w", orderID, err)
		}

		e.observe(action, outcomeApplied)
		e.logger.Info("swap order transition",
			"order_id", orderID, "action", action, "actor", actorID, "from", current.Status, "to", next.Status, "version", next.Version)
		e.publish(ctx, next, e.deriveEvents(current, next, actorID))
		e.settleInline(ctx, current, next)
		return next, nil
	}
	e.observe(action, outcomeContention)
	return nil, ErrContention
}

func (e *Engine) load(ctx context.Context, orderID string) (*swaporder.SwapOrder, error) {
	o, err := e.store.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load swap order %s: %w", orderID, err)
	}
	if o == nil {
		return nil, swaporder.NotFoundError(orderID)
	}
	return o, nil
}

func (e *Engine) publish(ctx context.Context, o *swaporder.SwapOrder, events []notify.Event) {
	if len(events) == 0 {
		return
	}
	if err := e.notifier.Notify(ctx, events...); err != nil {
		e.logger.Warn("notification dispatch failed", "order_id", o.OrderID, "events", len(events), "error", err)
	}
}

func (e *Engine) settleInline(ctx context.Context, before, after *swaporder.SwapOrder) {
	if e.settler == nil || before.Status.Terminal() || !after.Status.Terminal() {
		return
	}
	if _, err := e.settler.Settle(ctx, after); err != nil {
		e.logger.Error("inline settlement failed", "order_id", after.OrderID, "status", after.Status, "error", err)
	}
}
