package repository

import (
	"context"
	"time"

	"character-chat-billing/internal/domain/model"
)

// PaymentRepository persists PaymentTransaction rows keyed by the gateway
// session id (unique). Rows are created once and only ever updated forward.
type PaymentRepository interface {
	// InsertOrGet atomically inserts p or, when a row with the same
	// external_session_id already exists (a racing channel won), returns that
	// row instead. created reports whether p was actually inserted.
	InsertOrGet(ctx context.Context, tx Tx, p *model.PaymentTransaction) (existing *model.PaymentTransaction, created bool, err error)

	FindBySessionID(ctx context.Context, tx Tx, sessionID string) (*model.PaymentTransaction, error)

	// AdvanceStatus applies newStatus only when it is a forward progression
	// from the stored status (paid never regresses to pending). Returns true
	// when the row changed.
	AdvanceStatus(ctx context.Context, tx Tx, sessionID string, newStatus model.PaymentStatus) (bool, error)

	// MergeMetadata folds entries into the stored metadata map without
	// removing existing keys; incoming values win per key.
	MergeMetadata(ctx context.Context, tx Tx, sessionID string, md map[string]string) error

	// CompleteFromGateway fills the fields a degraded row lacks and clears
	// its incomplete flag; a no-op once the row is complete.
	CompleteFromGateway(ctx context.Context, tx Tx, sessionID string, amount float64, currency string, paymentMethod, customerID, subscriptionID *string) error

	// LinkUser fills in user_id on an orphaned transaction.
	LinkUser(ctx context.Context, tx Tx, sessionID, userID string) error

	// ListIncompleteOlderThan returns degraded rows (recorded without a
	// successful gateway fetch) awaiting a resync.
	ListIncompleteOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error)
}
