package usecase

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/rs/zerolog"

	"character-chat-billing/internal/domain"
	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/domain/ports/adapter"
	"character-chat-billing/internal/domain/ports/repository"
	"character-chat-billing/internal/infra/retry"
)

// Compile-time check
var _ VerifyUseCase = (*verifyUC)(nil)

// VerifyUseCase hosts the two operator-triggered event channels: read-only
// backfill of a known session and manual verification with a token grant.
type VerifyUseCase interface {
	// SyncPull forwards the gateway's current state of a session to the
	// reconciler. Gateway exhaustion is absorbed into a degraded record and
	// reported as a warning, never a hard failure.
	SyncPull(ctx context.Context, sessionID string) (tx *model.PaymentTransaction, warning string, err error)

	// ManualVerify requires a paid session, resolves the target user by the
	// gateway-reported email, and credits tokens. Re-running it for the same
	// session never grants twice.
	ManualVerify(ctx context.Context, sessionID string) (tokensGranted int64, err error)
}

type verifyUC struct {
	payments      repository.PaymentRepository
	users         repository.UserRepository
	ledgerLog     repository.LedgerRepository
	gateway       adapter.CheckoutGateway
	reconciler    ReconcileUseCase
	ledger        LedgerUseCase
	policy        retry.Policy
	tokensPerUnit float64 // monetary-to-token fallback when metadata lacks tokenAmount
	log           *zerolog.Logger
}

func NewVerifyUseCase(payments repository.PaymentRepository, users repository.UserRepository, ledgerLog repository.LedgerRepository, gateway adapter.CheckoutGateway, reconciler ReconcileUseCase, ledger LedgerUseCase, policy retry.Policy, tokensPerUnit float64, logger *zerolog.Logger) *verifyUC {
	if tokensPerUnit <= 0 {
		tokensPerUnit = 10
	}
	l := logger.With().Str("component", "VerifyUC").Logger()
	return &verifyUC{
		payments:      payments,
		users:         users,
		ledgerLog:     ledgerLog,
		gateway:       gateway,
		reconciler:    reconciler,
		ledger:        ledger,
		policy:        policy,
		tokensPerUnit: tokensPerUnit,
		log:           &l,
	}
}

func (u *verifyUC) SyncPull(ctx context.Context, sessionID string) (*model.PaymentTransaction, string, error) {
	p, err := u.reconciler.Reconcile(ctx, sessionID, "", nil)
	if err != nil {
		return nil, "", err
	}
	if p.Incomplete {
		return p, "gateway unreachable; transaction recorded in degraded state", nil
	}
	return p, "", nil
}

func (u *verifyUC) ManualVerify(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, domain.ErrInvalidArgument
	}

	// Manual verification needs the gateway's own word; unlike reconciliation
	// there is no degraded fallback here.
	var sess *model.GatewaySession
	err := u.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		sess, err = u.gateway.GetSession(ctx, sessionID)
		return err
	})
	if err != nil {
		return 0, domain.ErrGatewayUnavailable
	}
	if sess.PaymentStatus != model.PaymentStatusPaid {
		return 0, domain.ErrSessionNotPaid
	}

	p, err := u.reconciler.Reconcile(ctx, sessionID, model.PaymentStatusPaid, nil)
	if err != nil {
		return 0, err
	}

	userID := ""
	if p.UserID != nil {
		userID = *p.UserID
	} else {
		if sess.CustomerEmail == "" {
			return 0, domain.ErrUserNotFound
		}
		user, err := u.users.FindByEmail(ctx, nil, sess.CustomerEmail)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return 0, domain.ErrUserNotFound
			}
			return 0, err
		}
		userID = user.ID
		if err := u.payments.LinkUser(ctx, nil, sessionID, userID); err != nil {
			return 0, err
		}
		u.log.Info().Str("session_id", sessionID).Str("user_id", userID).Msg("orphaned transaction linked by email")
	}

	// The automatic purchase credit and a manual grant share the payment id,
	// so either one blocks the other from crediting the same session twice.
	if prior, err := u.findPriorGrant(ctx, p.ID); err != nil {
		return 0, err
	} else if prior != nil {
		u.log.Info().Str("session_id", sessionID).Str("token_tx", prior.ID).Msg("manual verify replay; grant already applied")
		return prior.Amount, nil
	}

	tokens := u.resolveTokenAmount(sess)
	if tokens <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	t, err := u.ledger.Credit(ctx, userID, tokens, model.TokenTxManualVerification, "manual payment verification", &p.ID)
	if err != nil {
		return 0, err
	}
	u.log.Info().Str("session_id", sessionID).Str("user_id", userID).Int64("tokens", t.Amount).Msg("manual verification granted tokens")
	return t.Amount, nil
}

// findPriorGrant looks for any credit already keyed to this payment,
// whatever channel issued it.
func (u *verifyUC) findPriorGrant(ctx context.Context, paymentID string) (*model.TokenTransaction, error) {
	for _, typ := range []model.TokenTransactionType{model.TokenTxManualVerification, model.TokenTxPurchase} {
		prior, err := u.ledgerLog.FindByPaymentRef(ctx, nil, typ, paymentID)
		if err == nil {
			return prior, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// resolveTokenAmount prefers the session metadata; otherwise falls back to
// the monetary conversion rule.
func (u *verifyUC) resolveTokenAmount(sess *model.GatewaySession) int64 {
	if raw := sess.Metadata["tokenAmount"]; raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return int64(math.Round(sess.Amount() * u.tokensPerUnit))
}
