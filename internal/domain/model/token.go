package model

import (
	"fmt"
	"time"
)

type TokenTransactionType string

const (
	TokenTxPurchase           TokenTransactionType = "purchase"
	TokenTxUsage              TokenTransactionType = "usage"
	TokenTxManualVerification TokenTransactionType = "manual_verification"
	TokenTxMonthlyGrant       TokenTransactionType = "monthly_premium_grant"
	TokenTxRefund             TokenTransactionType = "refund"
)

// TokenTransaction is one immutable row in the append-only token log.
// Amount is signed: positive for credits, negative for debits.
type TokenTransaction struct {
	ID               string // ULID; sortable within the log
	UserID           string
	Amount           int64
	Type             TokenTransactionType
	Description      string
	RelatedPaymentID *string // dedup key for replayed credits
	CreatedAt        time.Time
}

// TokenBalance is the derived per-user balance. Invariant: Balance equals the
// sum of all TokenTransaction amounts for the user after any operation.
type TokenBalance struct {
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}

// GrantPeriodKey builds the period-scoped idempotency key for monthly grants,
// e.g. "grant:2026-08:u1". Re-running a grant within the same calendar month
// collides on this key and credits nothing.
func GrantPeriodKey(period time.Time, userID string) string {
	return fmt.Sprintf("grant:%s:%s", period.UTC().Format("2006-01"), userID)
}
