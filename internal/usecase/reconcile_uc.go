package usecase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"character-chat-billing/internal/domain"
	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/domain/ports/adapter"
	"character-chat-billing/internal/domain/ports/repository"
	"character-chat-billing/internal/infra/metrics"
	"character-chat-billing/internal/infra/retry"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase converges local transaction state with the gateway's view
// of a session, no matter which channel observed it first. Safe under
// concurrent invocation for the same session across processes.
type ReconcileUseCase interface {
	Reconcile(ctx context.Context, sessionID string, observed model.PaymentStatus, metaOverrides map[string]string) (*model.PaymentTransaction, error)
}

type reconcileUC struct {
	payments repository.PaymentRepository
	gateway  adapter.CheckoutGateway
	ledger   LedgerUseCase
	policy   retry.Policy
	log      *zerolog.Logger
}

func NewReconcileUseCase(payments repository.PaymentRepository, gateway adapter.CheckoutGateway, ledger LedgerUseCase, policy retry.Policy, logger *zerolog.Logger) *reconcileUC {
	l := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{payments: payments, gateway: gateway, ledger: ledger, policy: policy, log: &l}
}

func (u *reconcileUC) Reconcile(ctx context.Context, sessionID string, observed model.PaymentStatus, metaOverrides map[string]string) (*model.PaymentTransaction, error) {
	if sessionID == "" {
		return nil, domain.ErrInvalidArgument
	}

	existing, err := u.payments.FindBySessionID(ctx, nil, sessionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return u.mergeObservation(ctx, existing, observed, metaOverrides)
	}

	// First observation of this session: pull the full picture from the
	// gateway under the bounded retry budget.
	var sess *model.GatewaySession
	fetchErr := u.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		sess, err = u.gateway.GetSession(ctx, sessionID)
		return err
	})

	now := time.Now()
	p := &model.PaymentTransaction{
		ID:                uuid.NewString(),
		ExternalSessionID: sessionID,
		Status:            model.PaymentStatusUnknown,
		Metadata:          map[string]string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for k, v := range metaOverrides {
		p.Metadata[k] = v
	}

	if fetchErr != nil {
		// Retries exhausted. Record a degraded row so the event leaves an
		// auditable trace instead of vanishing; the resync worker heals it.
		// The status stays unknown until the gateway confirms it; the raw
		// observation rides along in metadata for the audit trail.
		p.Incomplete = true
		if observed != "" {
			p.Metadata["observedStatus"] = string(observed)
		}
		u.log.Warn().Err(fetchErr).Str("session_id", sessionID).Msg("gateway fetch exhausted; recording degraded transaction")
		metrics.IncDegraded()
	} else {
		applyGatewaySession(p, sess)
		if observed != "" && p.Status.CanTransition(observed) {
			p.Status = observed
		}
	}

	winner, created, err := u.payments.InsertOrGet(ctx, nil, p)
	if err != nil {
		return nil, err
	}
	if !created {
		// A racing channel inserted first; fold our observation into theirs.
		return u.mergeObservation(ctx, winner, observed, metaOverrides)
	}

	metrics.IncPayment(string(winner.Status))
	u.log.Info().Str("session_id", sessionID).Str("status", string(winner.Status)).Bool("orphan", winner.UserID == nil).Msg("payment transaction recorded")

	if winner.Status == model.PaymentStatusPaid {
		if err := u.creditPurchase(ctx, winner); err != nil {
			return winner, err
		}
	}
	return winner, nil
}

// mergeObservation folds a later observation into an existing transaction.
// paid never regresses to pending; equal status is a no-op.
func (u *reconcileUC) mergeObservation(ctx context.Context, p *model.PaymentTransaction, observed model.PaymentStatus, metaOverrides map[string]string) (*model.PaymentTransaction, error) {
	changed := false
	if p.Incomplete {
		healed, err := u.healDegraded(ctx, p)
		if err == nil && healed {
			changed = true
		}
	}
	if observed != "" && p.Status.CanTransition(observed) {
		advanced, err := u.payments.AdvanceStatus(ctx, nil, p.ExternalSessionID, observed)
		if err != nil {
			return nil, err
		}
		changed = changed || advanced
	}
	if len(metaOverrides) > 0 {
		if err := u.payments.MergeMetadata(ctx, nil, p.ExternalSessionID, metaOverrides); err != nil {
			return nil, err
		}
		changed = true
	}
	if changed {
		fresh, err := u.payments.FindBySessionID(ctx, nil, p.ExternalSessionID)
		if err != nil {
			return nil, err
		}
		p = fresh
		metrics.IncPayment(string(p.Status))
	}
	if p.Status == model.PaymentStatusPaid {
		if err := u.creditPurchase(ctx, p); err != nil {
			return p, err
		}
	}
	return p, nil
}

// healDegraded retries the gateway fetch for a transaction recorded while the
// gateway was unreachable and fills in whatever the row is missing.
func (u *reconcileUC) healDegraded(ctx context.Context, p *model.PaymentTransaction) (bool, error) {
	var sess *model.GatewaySession
	err := u.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		sess, err = u.gateway.GetSession(ctx, p.ExternalSessionID)
		return err
	})
	if err != nil {
		// Still unreachable; the row stays degraded for the next sweep.
		return false, err
	}

	var pm, cust, sub *string
	if sess.PaymentMethod != "" {
		pm = &sess.PaymentMethod
	}
	if sess.CustomerID != "" {
		cust = &sess.CustomerID
	}
	if sess.SubscriptionID != "" {
		sub = &sess.SubscriptionID
	}
	if err := u.payments.CompleteFromGateway(ctx, nil, p.ExternalSessionID, sess.Amount(), sess.Currency, pm, cust, sub); err != nil {
		return false, err
	}
	if len(sess.Metadata) > 0 {
		if err := u.payments.MergeMetadata(ctx, nil, p.ExternalSessionID, sess.Metadata); err != nil {
			return false, err
		}
	}
	if sess.PaymentStatus != "" && p.Status.CanTransition(sess.PaymentStatus) {
		if _, err := u.payments.AdvanceStatus(ctx, nil, p.ExternalSessionID, sess.PaymentStatus); err != nil {
			return false, err
		}
	}
	if p.UserID == nil {
		if uid := sess.Metadata["userId"]; uid != "" {
			if err := u.payments.LinkUser(ctx, nil, p.ExternalSessionID, uid); err != nil {
				return false, err
			}
		}
	}
	u.log.Info().Str("session_id", p.ExternalSessionID).Msg("degraded transaction healed from gateway")
	return true, nil
}

// creditPurchase grants tokens for a paid token-pack transaction. The ledger's
// payment-keyed dedup makes this safe to call on every observation of the
// same session, including after a manual-verification grant already settled
// the payment. Orphaned transactions (no user) are skipped; manual verify
// links and credits them later.
func (u *reconcileUC) creditPurchase(ctx context.Context, p *model.PaymentTransaction) error {
	if p.UserID == nil || p.Metadata["type"] != string(model.PurchaseKindTokenPack) {
		return nil
	}
	tokens, err := strconv.ParseInt(p.Metadata["tokenAmount"], 10, 64)
	if err != nil || tokens <= 0 {
		return nil
	}
	_, err = u.ledger.Credit(ctx, *p.UserID, tokens, model.TokenTxPurchase, "token pack purchase", &p.ID)
	if err != nil {
		u.log.Error().Err(err).Str("payment_id", p.ID).Msg("token credit for paid transaction failed")
		return err
	}
	return nil
}

// applyGatewaySession copies the gateway's view onto a new transaction.
func applyGatewaySession(p *model.PaymentTransaction, sess *model.GatewaySession) {
	p.Amount = sess.Amount()
	p.Currency = sess.Currency
	if sess.PaymentStatus != "" {
		p.Status = sess.PaymentStatus
	}
	if sess.PaymentMethod != "" {
		pm := sess.PaymentMethod
		p.PaymentMethod = &pm
	}
	if sess.CustomerID != "" {
		c := sess.CustomerID
		p.GatewayCustomerID = &c
	}
	if sess.SubscriptionID != "" {
		s := sess.SubscriptionID
		p.SubscriptionID = &s
	}
	for k, v := range sess.Metadata {
		if _, taken := p.Metadata[k]; !taken {
			p.Metadata[k] = v
		}
	}
	if uid := p.Metadata["userId"]; uid != "" {
		p.UserID = &uid
	}
	if planID := p.Metadata["planId"]; planID != "" {
		p.PlanID = &planID
	}
	if planName := p.Metadata["planName"]; planName != "" {
		p.PlanName = &planName
	}
	if d, err := strconv.Atoi(p.Metadata["planDuration"]); err == nil && d > 0 {
		p.PlanDuration = &d
	}
}
