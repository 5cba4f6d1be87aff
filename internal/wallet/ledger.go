package wallet

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/payments"
)

//go:embed schema.sql
var schema string

// escrowAccount is the ledger account that holds collected fees until settlement.
const escrowAccount = "escrow"

// Hold statuses
const (
	holdHeld     = "held"
	holdReleased = "released"
	holdRefunded = "refunded"
)

// Decline reasons
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonNoWallet          = "wallet_not_found"
)

var (
	// ErrHoldSettled means the hold was already settled the other way (released vs refunded).
	ErrHoldSettled = errors.New("escrow hold already settled")
)

// Ledger is the wallet-backed payment collaborator. Fees move from the payer's wallet into an
// escrow hold keyed by the payment reference and leave it exactly once, either released to the
// settlement account or refunded to the payer. Every movement writes a balanced pair of entries.
type Ledger struct {
	db                  *pgxpool.Pool
	settlementAccountID string
}

// Connect opens and pings a pool for the wallet database.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

// NewLedger wraps pool. settlementAccountID receives released fees.
func NewLedger(pool *pgxpool.Pool, settlementAccountID string) *Ledger {
	return &Ledger{db: pool, settlementAccountID: settlementAccountID}
}

// EnsureSchema creates the wallet tables if they are missing.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply wallet schema: %w", err)
	}
	return nil
}

// Collect debits the payer into an escrow hold. Collecting an existing reference returns the
// original capture without touching balances. Declines are not persisted so the payer can top up
// and retry with the same reference.
func (l *Ledger) Collect(ctx context.Context, c payments.Charge) (payments.Receipt, error) {
	if !c.Amount.IsPositive() {
		return payments.Receipt{}, fmt.Errorf("collect %s: amount must be positive", c.Reference)
	}
	receipt, err := l.collect(ctx, c)
	if isSerializationFailure(err) {
		// another collect touched the payer's wallet; re-run against the committed state
		receipt, err = l.collect(ctx, c)
	}
	if isUniqueViolation(err) {
		// a concurrent collect with the same reference won; report its outcome
		return l.Lookup(ctx, c.Reference)
	}
	return receipt, err
}

func (l *Ledger) collect(ctx context.Context, c payments.Charge) (payments.Receipt, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return payments.Receipt{}, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing string
	err = tx.QueryRow(ctx, "SELECT status FROM escrow_holds WHERE reference = $1", c.Reference).Scan(&existing)
	if err == nil {
		return captured(c.Reference), nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return payments.Receipt{}, fmt.Errorf("hold lookup failed: %w", err)
	}

	var balanceText string
	err = tx.QueryRow(ctx, "SELECT balance::text FROM wallets WHERE user_id = $1 FOR UPDATE", c.PayerID).Scan(&balanceText)
	if errors.Is(err, pgx.ErrNoRows) {
		return declined(c.Reference, ReasonNoWallet), nil
	} else if err != nil {
		return payments.Receipt{}, fmt.Errorf("lock acquisition failed: %w", err)
	}
	balance, err := decimal.NewFromString(balanceText)
	if err != nil {
		return payments.Receipt{}, fmt.Errorf("parse balance: %w", err)
	}
	if balance.LessThan(c.Amount) {
		return declined(c.Reference, ReasonInsufficientFunds), nil
	}

	amount := c.Amount.StringFixed(2)
	if _, err = tx.Exec(ctx,
		"INSERT INTO escrow_holds (reference, order_id, payer_id, amount, status) VALUES ($1, $2, $3, $4::numeric, $5)",
		c.Reference, c.OrderID, c.PayerID, amount, holdHeld,
	); err != nil {
		return payments.Receipt{}, fmt.Errorf("hold insert failed: %w", err)
	}
	if err = transfer(ctx, tx, c.Reference, "collect", c.PayerID, escrowAccount, amount); err != nil {
		return payments.Receipt{}, err
	}
	if _, err = tx.Exec(ctx,
		"UPDATE wallets SET balance = balance - $1::numeric, updated_at = now() WHERE user_id = $2",
		amount, c.PayerID,
	); err != nil {
		return payments.Receipt{}, fmt.Errorf("debit failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return payments.Receipt{}, fmt.Errorf("tx commit failed: %w", err)
	}
	return captured(c.Reference), nil
}

// Lookup reports whether a reference was captured. Wallet collections are synchronous, so a
// known reference is always captured.
func (l *Ledger) Lookup(ctx context.Context, reference string) (payments.Receipt, error) {
	var status string
	err := l.db.QueryRow(ctx, "SELECT status FROM escrow_holds WHERE reference = $1", reference).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return payments.Receipt{}, payments.ErrUnknownReference
	} else if err != nil {
		return payments.Receipt{}, fmt.Errorf("hold lookup failed: %w", err)
	}
	return captured(reference), nil
}

// Release pays a held fee out to the settlement account. applied is false when the hold had
// already been released.
func (l *Ledger) Release(ctx context.Context, reference string) (payments.Hold, bool, error) {
	return l.settle(ctx, reference, holdReleased, l.settlementAccountID)
}

// Refund returns a held fee to its payer. applied is false when the hold had already been refunded.
func (l *Ledger) Refund(ctx context.Context, reference string) (payments.Hold, bool, error) {
	return l.settle(ctx, reference, holdRefunded, "")
}

func (l *Ledger) settle(ctx context.Context, reference, to, beneficiary string) (payments.Hold, bool, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return payments.Hold{}, false, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		hold       payments.Hold
		amountText string
		status     string
	)
	err = tx.QueryRow(ctx,
		"SELECT reference, order_id, payer_id, amount::text, status FROM escrow_holds WHERE reference = $1 FOR UPDATE",
		reference,
	).Scan(&hold.Reference, &hold.OrderID, &hold.PayerID, &amountText, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return payments.Hold{}, false, payments.ErrUnknownReference
	} else if err != nil {
		return payments.Hold{}, false, fmt.Errorf("lock acquisition failed: %w", err)
	}
	if hold.Amount, err = decimal.NewFromString(amountText); err != nil {
		return payments.Hold{}, false, fmt.Errorf("parse hold amount: %w", err)
	}

	switch status {
	case to:
		return hold, false, nil
	case holdHeld:
	default:
		return hold, false, fmt.Errorf("%w: %s is %s", ErrHoldSettled, reference, status)
	}

	if beneficiary == "" {
		beneficiary = hold.PayerID
	}
	if _, err = tx.Exec(ctx,
		`INSERT INTO wallets (user_id, balance) VALUES ($1, $2::numeric)
		 ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()`,
		beneficiary, amountText,
	); err != nil {
		return hold, false, fmt.Errorf("credit failed: %w", err)
	}
	if err = transfer(ctx, tx, reference, to, escrowAccount, beneficiary, amountText); err != nil {
		return hold, false, err
	}
	if _, err = tx.Exec(ctx,
		"UPDATE escrow_holds SET status = $1, settled_at = now() WHERE reference = $2",
		to, reference,
	); err != nil {
		return hold, false, fmt.Errorf("hold update failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return hold, false, fmt.Errorf("tx commit failed: %w", err)
	}
	return hold, true, nil
}

// transfer writes the debit and credit entries of one movement.
func transfer(ctx context.Context, tx pgx.Tx, reference, entryType, from, to, amount string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (reference, account_id, entry_type, delta)
		 VALUES ($1, $2, $3, -($4::numeric)), ($1, $5, $3, $4::numeric)`,
		reference, from, entryType, amount, to,
	)
	if err != nil {
		return fmt.Errorf("ledger entry failed: %w", err)
	}
	return nil
}

func captured(ref string) payments.Receipt {
	return payments.Receipt{Reference: ref, Status: payments.StatusCaptured}
}

func declined(ref, reason string) payments.Receipt {
	return payments.Receipt{Reference: ref, Status: payments.StatusDeclined, Reason: reason}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
