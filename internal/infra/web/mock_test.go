//go:build !integration

package web

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"character-chat-billing/internal/domain"
	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/usecase"
)

// --- Mock use cases with overridable behavior per test ---

type mockCheckoutUC struct {
	BuildSessionFunc func(ctx context.Context, intent model.PurchaseIntent) (*model.CheckoutSession, error)
}

var _ usecase.CheckoutUseCase = (*mockCheckoutUC)(nil)

func (m *mockCheckoutUC) BuildSession(ctx context.Context, intent model.PurchaseIntent) (*model.CheckoutSession, error) {
	if m.BuildSessionFunc != nil {
		return m.BuildSessionFunc(ctx, intent)
	}
	return &model.CheckoutSession{ID: "sess_mock", URL: "https://pay.example/sess_mock"}, nil
}

type mockReconcileUC struct {
	ReconcileFunc func(ctx context.Context, sessionID string, observed model.PaymentStatus, metaOverrides map[string]string) (*model.PaymentTransaction, error)
	Calls         int
}

var _ usecase.ReconcileUseCase = (*mockReconcileUC)(nil)

func (m *mockReconcileUC) Reconcile(ctx context.Context, sessionID string, observed model.PaymentStatus, metaOverrides map[string]string) (*model.PaymentTransaction, error) {
	m.Calls++
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, sessionID, observed, metaOverrides)
	}
	return &model.PaymentTransaction{
		ID:                "pay-1",
		ExternalSessionID: sessionID,
		Status:            observed,
		Metadata:          metaOverrides,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}, nil
}

type mockVerifyUC struct {
	SyncPullFunc     func(ctx context.Context, sessionID string) (*model.PaymentTransaction, string, error)
	ManualVerifyFunc func(ctx context.Context, sessionID string) (int64, error)
}

var _ usecase.VerifyUseCase = (*mockVerifyUC)(nil)

func (m *mockVerifyUC) SyncPull(ctx context.Context, sessionID string) (*model.PaymentTransaction, string, error) {
	if m.SyncPullFunc != nil {
		return m.SyncPullFunc(ctx, sessionID)
	}
	return &model.PaymentTransaction{ID: "pay-1", ExternalSessionID: sessionID, Status: model.PaymentStatusPaid}, "", nil
}

func (m *mockVerifyUC) ManualVerify(ctx context.Context, sessionID string) (int64, error) {
	if m.ManualVerifyFunc != nil {
		return m.ManualVerifyFunc(ctx, sessionID)
	}
	return 500, nil
}

type mockLedgerUC struct {
	CreditFunc     func(ctx context.Context, userID string, amount int64, typ model.TokenTransactionType, description string, relatedPaymentID *string) (*model.TokenTransaction, error)
	DebitFunc      func(ctx context.Context, userID string, amount int64, typ model.TokenTransactionType, description string) (*model.TokenTransaction, error)
	GetBalanceFunc func(ctx context.Context, userID string) (int64, error)
}

var _ usecase.LedgerUseCase = (*mockLedgerUC)(nil)

func (m *mockLedgerUC) Credit(ctx context.Context, userID string, amount int64, typ model.TokenTransactionType, description string, relatedPaymentID *string) (*model.TokenTransaction, error) {
	if m.CreditFunc != nil {
		return m.CreditFunc(ctx, userID, amount, typ, description, relatedPaymentID)
	}
	return &model.TokenTransaction{ID: "tx-1", UserID: userID, Amount: amount, Type: typ}, nil
}

func (m *mockLedgerUC) Debit(ctx context.Context, userID string, amount int64, typ model.TokenTransactionType, description string) (*model.TokenTransaction, error) {
	if m.DebitFunc != nil {
		return m.DebitFunc(ctx, userID, amount, typ, description)
	}
	return &model.TokenTransaction{ID: "tx-1", UserID: userID, Amount: -amount, Type: typ}, nil
}

func (m *mockLedgerUC) GetBalance(ctx context.Context, userID string) (int64, error) {
	if m.GetBalanceFunc != nil {
		return m.GetBalanceFunc(ctx, userID)
	}
	return 0, nil
}

type mockGrantUC struct {
	RunFunc func(ctx context.Context, period time.Time) (int, error)
}

var _ usecase.GrantUseCase = (*mockGrantUC)(nil)

func (m *mockGrantUC) RunMonthlyGrant(ctx context.Context, period time.Time) (int, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, period)
	}
	return 0, nil
}

// testDeps bundles fresh mocks plus a server wired to them.
type testDeps struct {
	checkout  *mockCheckoutUC
	reconcile *mockReconcileUC
	verify    *mockVerifyUC
	ledger    *mockLedgerUC
	grant     *mockGrantUC
	auth      *AuthManager
	server    *Server
}

const testWebhookSecret = "whsec_test"

func newTestDeps() *testDeps {
	d := &testDeps{
		checkout:  &mockCheckoutUC{},
		reconcile: &mockReconcileUC{},
		verify:    &mockVerifyUC{},
		ledger:    &mockLedgerUC{},
		grant:     &mockGrantUC{},
		auth:      NewAuthManager("op-secret", time.Minute),
	}
	logger := zerolog.New(io.Discard)
	d.server = NewServer(ServerConfig{
		Addr:          ":0",
		WebhookSecret: testWebhookSecret,
		DeductCost:    1,
	}, d.checkout, d.reconcile, d.verify, d.ledger, d.grant, d.auth, nil, &logger)
	return d
}

var errBoom = domain.ErrOperationFailed
