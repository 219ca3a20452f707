package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"character-chat-billing/internal/domain"
	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, external_session_id, user_id, amount, currency, status, payment_method, gateway_customer_id, subscription_id, plan_id, plan_name, plan_duration, incomplete, metadata, created_at, updated_at`

func (r *paymentRepo) InsertOrGet(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) (*model.PaymentTransaction, bool, error) {
	md, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, false, domain.ErrInvalidArgument
	}

	const q = `
INSERT INTO payment_transactions (
  id, external_session_id, user_id, amount, currency, status, payment_method, gateway_customer_id, subscription_id, plan_id, plan_name, plan_duration, incomplete, metadata, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
) ON CONFLICT (external_session_id) DO NOTHING;`

	cmd, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.ExternalSessionID, p.UserID, p.Amount, p.Currency, p.Status, p.PaymentMethod,
		p.GatewayCustomerID, p.SubscriptionID, p.PlanID, p.PlanName, p.PlanDuration,
		p.Incomplete, md, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, false, err
		}
		return nil, false, domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 1 {
		return p, true, nil
	}

	// Conflict: a concurrent channel inserted this session first.
	existing, err := r.FindBySessionID(ctx, tx, p.ExternalSessionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *paymentRepo) FindBySessionID(ctx context.Context, tx repository.Tx, sessionID string) (*model.PaymentTransaction, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE external_session_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, sessionID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) AdvanceStatus(ctx context.Context, tx repository.Tx, sessionID string, newStatus model.PaymentStatus) (bool, error) {
	const q = `
UPDATE payment_transactions
   SET status = $2,
       updated_at = NOW()
 WHERE external_session_id = $1
   AND CASE status WHEN 'unknown' THEN 0 WHEN 'pending' THEN 1 WHEN 'failed' THEN 2 WHEN 'paid' THEN 3 WHEN 'refunded' THEN 4 ELSE -1 END
     < CASE $2::text WHEN 'unknown' THEN 0 WHEN 'pending' THEN 1 WHEN 'failed' THEN 2 WHEN 'paid' THEN 3 WHEN 'refunded' THEN 4 ELSE -1 END;`

	cmd, err := execSQL(ctx, r.pool, tx, q, sessionID, string(newStatus))
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) MergeMetadata(ctx context.Context, tx repository.Tx, sessionID string, md map[string]string) error {
	if len(md) == 0 {
		return nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `UPDATE payment_transactions SET metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb, updated_at = NOW() WHERE external_session_id=$1;`
	if _, err := execSQL(ctx, r.pool, tx, q, sessionID, b); err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// CompleteFromGateway fills in the fields a degraded row is missing and
// clears the incomplete flag. Only applies while the row is still degraded.
func (r *paymentRepo) CompleteFromGateway(ctx context.Context, tx repository.Tx, sessionID string, amount float64, currency string, paymentMethod, customerID, subscriptionID *string) error {
	const q = `
UPDATE payment_transactions
   SET amount = $2,
       currency = $3,
       payment_method = COALESCE($4, payment_method),
       gateway_customer_id = COALESCE($5, gateway_customer_id),
       subscription_id = COALESCE($6, subscription_id),
       incomplete = FALSE,
       updated_at = NOW()
 WHERE external_session_id = $1
   AND incomplete;`

	if _, err := execSQL(ctx, r.pool, tx, q, sessionID, amount, currency, paymentMethod, customerID, subscriptionID); err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) LinkUser(ctx context.Context, tx repository.Tx, sessionID, userID string) error {
	const q = `UPDATE payment_transactions SET user_id=$2, updated_at=NOW() WHERE external_session_id=$1 AND user_id IS NULL;`
	if _, err := execSQL(ctx, r.pool, tx, q, sessionID, userID); err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) ListIncompleteOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE incomplete AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.PaymentTransaction
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func scanPayment(row pgx.Row) (*model.PaymentTransaction, error) {
	p := &model.PaymentTransaction{}
	var md []byte
	err := row.Scan(&p.ID, &p.ExternalSessionID, &p.UserID, &p.Amount, &p.Currency, &p.Status,
		&p.PaymentMethod, &p.GatewayCustomerID, &p.SubscriptionID, &p.PlanID, &p.PlanName,
		&p.PlanDuration, &p.Incomplete, &md, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if len(md) > 0 {
		if err := json.Unmarshal(md, &p.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if p.Metadata == nil {
		p.Metadata = map[string]string{}
	}
	return p, nil
}
