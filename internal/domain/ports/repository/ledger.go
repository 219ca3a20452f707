package repository

import (
	"context"

	"character-chat-billing/internal/domain/model"
)

// LedgerRepository persists the append-only token log and the derived
// per-user balance. Balance mutation primitives are conditional so concurrent
// handlers coordinate through the store, never through in-process locks.
type LedgerRepository interface {
	// Append inserts one immutable token transaction row.
	Append(ctx context.Context, tx Tx, t *model.TokenTransaction) error

	// FindByPaymentRef returns a prior transaction with the same type and
	// related payment id, or domain.ErrNotFound.
	FindByPaymentRef(ctx context.Context, tx Tx, typ model.TokenTransactionType, relatedPaymentID string) (*model.TokenTransaction, error)

	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.TokenTransaction, error)

	// GetBalance returns the stored balance; domain.ErrNotFound when the user
	// has no balance row yet.
	GetBalance(ctx context.Context, tx Tx, userID string) (*model.TokenBalance, error)

	// GetBalanceForUpdate locks the balance row for the duration of tx,
	// creating a zero row first when absent. Requires a live tx.
	GetBalanceForUpdate(ctx context.Context, tx Tx, userID string) (*model.TokenBalance, error)

	// SetBalanceIf updates the balance only when the stored value still equals
	// expected (compare-and-set). Returns true when the update applied.
	SetBalanceIf(ctx context.Context, tx Tx, userID string, expected, next int64) (bool, error)

	// SumByUser recomputes the balance from the log; used by invariant checks.
	SumByUser(ctx context.Context, tx Tx, userID string) (int64, error)
}
