//go:build !integration

package postgres

import (
	"context"
	"time"

	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/domain/ports/repository"
	red "character-chat-billing/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockRedisClient implements the redis port with per-call overrides.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func (m *mockRedisClient) Close() error { return nil }

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", context.Canceled // any non-nil error reads as a miss
}

func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}

func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}

func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	if m.IncrFunc != nil {
		return m.IncrFunc(ctx, key)
	}
	return 1, nil
}

func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if m.ExpireFunc != nil {
		return m.ExpireFunc(ctx, key, expiration)
	}
	return nil
}

// mockInnerPlanRepo mocks the database repository that the plan decorator wraps.
type mockInnerPlanRepo struct {
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error)
	ListAllFunc  func(ctx context.Context, tx repository.Tx) ([]*model.Plan, error)
	SaveFunc     func(ctx context.Context, tx repository.Tx, plan *model.Plan) error
}

var _ repository.PlanRepository = (*mockInnerPlanRepo)(nil)

func (m *mockInnerPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	return m.ListAllFunc(ctx, tx)
}
func (m *mockInnerPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	return m.SaveFunc(ctx, tx, plan)
}

// mockInnerLedgerRepo mocks the database repository that the ledger decorator wraps.
type mockInnerLedgerRepo struct {
	repository.LedgerRepository // embed for the passthrough methods tests don't override

	AppendFunc       func(ctx context.Context, tx repository.Tx, t *model.TokenTransaction) error
	GetBalanceFunc   func(ctx context.Context, tx repository.Tx, userID string) (*model.TokenBalance, error)
	SetBalanceIfFunc func(ctx context.Context, tx repository.Tx, userID string, expected, next int64) (bool, error)
}

func (m *mockInnerLedgerRepo) Append(ctx context.Context, tx repository.Tx, t *model.TokenTransaction) error {
	return m.AppendFunc(ctx, tx, t)
}
func (m *mockInnerLedgerRepo) GetBalance(ctx context.Context, tx repository.Tx, userID string) (*model.TokenBalance, error) {
	return m.GetBalanceFunc(ctx, tx, userID)
}
func (m *mockInnerLedgerRepo) SetBalanceIf(ctx context.Context, tx repository.Tx, userID string, expected, next int64) (bool, error) {
	return m.SetBalanceIfFunc(ctx, tx, userID, expected, next)
}
