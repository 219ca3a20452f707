package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"character-chat-billing/internal/domain"
	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/domain/ports/repository"
)

var _ repository.LedgerRepository = (*ledgerRepo)(nil)

type ledgerRepo struct{ pool *pgxpool.Pool }

func NewLedgerRepo(pool *pgxpool.Pool) *ledgerRepo {
	return &ledgerRepo{pool: pool}
}

const tokenTxColumns = `id, user_id, amount, type, description, related_payment_id, created_at`

func (r *ledgerRepo) Append(ctx context.Context, tx repository.Tx, t *model.TokenTransaction) error {
	const q = `
INSERT INTO token_transactions (id, user_id, amount, type, description, related_payment_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`

	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.UserID, t.Amount, t.Type, t.Description, t.RelatedPaymentID, t.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Unique (type, related_payment_id) backstop tripped: another
			// process credited this payment between our check and insert.
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *ledgerRepo) FindByPaymentRef(ctx context.Context, tx repository.Tx, typ model.TokenTransactionType, relatedPaymentID string) (*model.TokenTransaction, error) {
	const q = `SELECT ` + tokenTxColumns + ` FROM token_transactions WHERE type=$1 AND related_payment_id=$2 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, typ, relatedPaymentID)
	if err != nil {
		return nil, err
	}
	return scanTokenTx(row)
}

func (r *ledgerRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.TokenTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + tokenTxColumns + ` FROM token_transactions WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.TokenTransaction
	for rows.Next() {
		t, err := scanTokenTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *ledgerRepo) GetBalance(ctx context.Context, tx repository.Tx, userID string) (*model.TokenBalance, error) {
	const q = `SELECT user_id, balance, updated_at FROM token_balances WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanBalance(row)
}

// GetBalanceForUpdate creates the zero row when absent and locks it for the
// duration of the surrounding transaction.
func (r *ledgerRepo) GetBalanceForUpdate(ctx context.Context, tx repository.Tx, userID string) (*model.TokenBalance, error) {
	if !inTx(tx) {
		return nil, domain.ErrInvalidExecContext
	}

	const ins = `INSERT INTO token_balances (user_id, balance, updated_at) VALUES ($1, 0, NOW()) ON CONFLICT (user_id) DO NOTHING;`
	if _, err := execSQL(ctx, r.pool, tx, ins, userID); err != nil {
		return nil, domain.ErrOperationFailed
	}

	const q = `SELECT user_id, balance, updated_at FROM token_balances WHERE user_id=$1 FOR UPDATE;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanBalance(row)
}

func (r *ledgerRepo) SetBalanceIf(ctx context.Context, tx repository.Tx, userID string, expected, next int64) (bool, error) {
	const q = `UPDATE token_balances SET balance=$3, updated_at=NOW() WHERE user_id=$1 AND balance=$2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, expected, next)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *ledgerRepo) SumByUser(ctx context.Context, tx repository.Tx, userID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM token_transactions WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func scanTokenTx(row pgx.Row) (*model.TokenTransaction, error) {
	t := &model.TokenTransaction{}
	err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &t.RelatedPaymentID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}

func scanBalance(row pgx.Row) (*model.TokenBalance, error) {
	b := &model.TokenBalance{}
	if err := row.Scan(&b.UserID, &b.Balance, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return b, nil
}
