package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/domain/ports/repository"
	"character-chat-billing/internal/infra/metrics"
	red "character-chat-billing/internal/infra/redis"
)

var _ repository.LedgerRepository = (*ledgerRepoCacheDecorator)(nil)

// ledgerRepoCacheDecorator caches GetBalance reads in Redis. Every write path
// invalidates the user's key before hitting Postgres, so the cache can serve
// stale data for at most one in-flight write; the store stays the source of
// truth and all locked/conditional reads bypass the cache entirely.
type ledgerRepoCacheDecorator struct {
	inner repository.LedgerRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewLedgerRepoCacheDecorator(inner repository.LedgerRepository, cache red.RedisClient, ttl time.Duration) repository.LedgerRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ledgerRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func balanceKey(userID string) string { return fmt.Sprintf("token_balance:%s", userID) }

func (d *ledgerRepoCacheDecorator) GetBalance(ctx context.Context, tx repository.Tx, userID string) (*model.TokenBalance, error) {
	if val, err := d.cache.Get(ctx, balanceKey(userID)); err == nil {
		if n, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			metrics.IncCacheRequest("token_balance", "hit")
			return &model.TokenBalance{UserID: userID, Balance: n}, nil
		}
	}

	metrics.IncCacheRequest("token_balance", "miss")
	bal, err := d.inner.GetBalance(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	_ = d.cache.Set(ctx, balanceKey(userID), strconv.FormatInt(bal.Balance, 10), d.ttl)
	return bal, nil
}

func (d *ledgerRepoCacheDecorator) Append(ctx context.Context, tx repository.Tx, t *model.TokenTransaction) error {
	_ = d.cache.Del(ctx, balanceKey(t.UserID))
	return d.inner.Append(ctx, tx, t)
}

func (d *ledgerRepoCacheDecorator) SetBalanceIf(ctx context.Context, tx repository.Tx, userID string, expected, next int64) (bool, error) {
	_ = d.cache.Del(ctx, balanceKey(userID))
	return d.inner.SetBalanceIf(ctx, tx, userID, expected, next)
}

// Locked reads and log queries pass straight through.

func (d *ledgerRepoCacheDecorator) GetBalanceForUpdate(ctx context.Context, tx repository.Tx, userID string) (*model.TokenBalance, error) {
	return d.inner.GetBalanceForUpdate(ctx, tx, userID)
}

func (d *ledgerRepoCacheDecorator) FindByPaymentRef(ctx context.Context, tx repository.Tx, typ model.TokenTransactionType, relatedPaymentID string) (*model.TokenTransaction, error) {
	return d.inner.FindByPaymentRef(ctx, tx, typ, relatedPaymentID)
}

func (d *ledgerRepoCacheDecorator) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.TokenTransaction, error) {
	return d.inner.ListByUser(ctx, tx, userID, limit)
}

func (d *ledgerRepoCacheDecorator) SumByUser(ctx context.Context, tx repository.Tx, userID string) (int64, error) {
	return d.inner.SumByUser(ctx, tx, userID)
}
