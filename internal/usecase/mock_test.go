//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"character-chat-billing/internal/domain"
	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/domain/ports/adapter"
	"character-chat-billing/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger so test output stays clean.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func strPtr(s string) *string { return &s }

// ---- MockTxManager ----

// MockTxManager serializes transactions with a mutex, which stands in for the
// row locks the real store takes inside a transaction.
type MockTxManager struct {
	mu         sync.Mutex
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

// ---- MockPaymentRepo ----

type MockPaymentRepo struct {
	mu    sync.Mutex
	store map[string]*model.PaymentTransaction // by external session id

	InsertOrGetFunc   func(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) (*model.PaymentTransaction, bool, error)
	AdvanceStatusFunc func(ctx context.Context, tx repository.Tx, sessionID string, newStatus model.PaymentStatus) (bool, error)
}

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{store: make(map[string]*model.PaymentTransaction)}
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func (m *MockPaymentRepo) InsertOrGet(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) (*model.PaymentTransaction, bool, error) {
	if m.InsertOrGetFunc != nil {
		return m.InsertOrGetFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.store[p.ExternalSessionID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	cp := *p
	m.store[p.ExternalSessionID] = &cp
	out := cp
	return &out, true, nil
}

func (m *MockPaymentRepo) FindBySessionID(ctx context.Context, tx repository.Tx, sessionID string) (*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) AdvanceStatus(ctx context.Context, tx repository.Tx, sessionID string, newStatus model.PaymentStatus) (bool, error) {
	if m.AdvanceStatusFunc != nil {
		return m.AdvanceStatusFunc(ctx, tx, sessionID, newStatus)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[sessionID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !p.Status.CanTransition(newStatus) {
		return false, nil
	}
	p.Status = newStatus
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockPaymentRepo) MergeMetadata(ctx context.Context, tx repository.Tx, sessionID string, md map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Metadata == nil {
		p.Metadata = map[string]string{}
	}
	for k, v := range md {
		p.Metadata[k] = v
	}
	return nil
}

func (m *MockPaymentRepo) CompleteFromGateway(ctx context.Context, tx repository.Tx, sessionID string, amount float64, currency string, paymentMethod, customerID, subscriptionID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	if !p.Incomplete {
		return nil
	}
	p.Amount = amount
	p.Currency = currency
	if paymentMethod != nil {
		p.PaymentMethod = paymentMethod
	}
	if customerID != nil {
		p.GatewayCustomerID = customerID
	}
	if subscriptionID != nil {
		p.SubscriptionID = subscriptionID
	}
	p.Incomplete = false
	p.UpdatedAt = time.Now()
	return nil
}

func (m *MockPaymentRepo) LinkUser(ctx context.Context, tx repository.Tx, sessionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.UserID == nil {
		uid := userID
		p.UserID = &uid
	}
	return nil
}

func (m *MockPaymentRepo) ListIncompleteOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentTransaction
	for _, p := range m.store {
		if p.Incomplete && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ---- MockLedgerRepo ----

type MockLedgerRepo struct {
	mu       sync.Mutex
	entries  []*model.TokenTransaction
	balances map[string]*model.TokenBalance

	AppendErr error // simulate insert failures
}

func NewMockLedgerRepo() *MockLedgerRepo {
	return &MockLedgerRepo{balances: make(map[string]*model.TokenBalance)}
}

var _ repository.LedgerRepository = (*MockLedgerRepo)(nil)

func (m *MockLedgerRepo) Append(ctx context.Context, tx repository.Tx, t *model.TokenTransaction) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.RelatedPaymentID != nil {
		for _, e := range m.entries {
			if e.Type == t.Type && e.RelatedPaymentID != nil && *e.RelatedPaymentID == *t.RelatedPaymentID {
				return domain.ErrAlreadyExists
			}
		}
	}
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *MockLedgerRepo) FindByPaymentRef(ctx context.Context, tx repository.Tx, typ model.TokenTransactionType, relatedPaymentID string) (*model.TokenTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Type == typ && e.RelatedPaymentID != nil && *e.RelatedPaymentID == relatedPaymentID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockLedgerRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.TokenTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.TokenTransaction
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			cp := *m.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockLedgerRepo) GetBalance(ctx context.Context, tx repository.Tx, userID string) (*model.TokenBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MockLedgerRepo) GetBalanceForUpdate(ctx context.Context, tx repository.Tx, userID string) (*model.TokenBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok {
		b = &model.TokenBalance{UserID: userID}
		m.balances[userID] = b
	}
	cp := *b
	return &cp, nil
}

func (m *MockLedgerRepo) SetBalanceIf(ctx context.Context, tx repository.Tx, userID string, expected, next int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok || b.Balance != expected {
		return false, nil
	}
	b.Balance = next
	b.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockLedgerRepo) SumByUser(ctx context.Context, tx repository.Tx, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum, nil
}

// Entries returns a copy of the log for assertions.
func (m *MockLedgerRepo) Entries() []*model.TokenTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.TokenTransaction, 0, len(m.entries))
	for _, e := range m.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out
}

// ---- MockUserRepo ----

type MockUserRepo struct {
	mu    sync.Mutex
	store map[string]*model.User
}

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{store: make(map[string]*model.User)}
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func (m *MockUserRepo) Put(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.store[u.ID] = &cp
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.store {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) ListPremium(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var premium []*model.User
	for _, u := range m.store {
		if u.Premium {
			premium = append(premium, u)
		}
	}
	// Deterministic order for paging.
	for i := 0; i < len(premium); i++ {
		for j := i + 1; j < len(premium); j++ {
			if premium[j].ID < premium[i].ID {
				premium[i], premium[j] = premium[j], premium[i]
			}
		}
	}
	if offset >= len(premium) {
		return nil, nil
	}
	end := offset + limit
	if end > len(premium) {
		end = len(premium)
	}
	out := make([]*model.User, 0, end-offset)
	for _, u := range premium[offset:end] {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

// ---- MockPlanRepo ----

type MockPlanRepo struct {
	mu    sync.Mutex
	store map[string]*model.Plan
}

func NewMockPlanRepo() *MockPlanRepo {
	return &MockPlanRepo{store: make(map[string]*model.Plan)}
}

var _ repository.PlanRepository = (*MockPlanRepo)(nil)

func (m *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Plan, 0, len(m.store))
	for _, p := range m.store {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *plan
	m.store[plan.ID] = &cp
	return nil
}

// ---- MockGateway ----

type MockGateway struct {
	CreateSessionFunc func(ctx context.Context, params adapter.CreateSessionParams) (*model.CheckoutSession, error)
	GetSessionFunc    func(ctx context.Context, sessionID string) (*model.GatewaySession, error)

	mu          sync.Mutex
	GetCalls    int
	CreateCalls int
}

var _ adapter.CheckoutGateway = (*MockGateway)(nil)

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreateSession(ctx context.Context, params adapter.CreateSessionParams) (*model.CheckoutSession, error) {
	m.mu.Lock()
	m.CreateCalls++
	m.mu.Unlock()
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, params)
	}
	return &model.CheckoutSession{ID: "sess_mock", URL: "https://gateway.example/c/sess_mock"}, nil
}

func (m *MockGateway) GetSession(ctx context.Context, sessionID string) (*model.GatewaySession, error) {
	m.mu.Lock()
	m.GetCalls++
	m.mu.Unlock()
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, sessionID)
	}
	return nil, domain.ErrNotFound
}
