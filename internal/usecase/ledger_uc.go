package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"character-chat-billing/internal/domain"
	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/domain/ports/repository"
	"character-chat-billing/internal/infra/metrics"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase owns the append-only token log and the derived balances.
// Every mutation runs inside one store transaction so that
// balance(user) == sum of the user's log amounts holds after each call.
type LedgerUseCase interface {
	// Credit appends a positive entry. When relatedPaymentID is set and the
	// payment was already credited, the prior entry is returned unchanged
	// (idempotent replay). Purchase and manual-verification credits count as
	// the same grant: a payment settled through one channel is settled for
	// both.
	Credit(ctx context.Context, userID string, amount int64, typ model.TokenTransactionType, description string, relatedPaymentID *string) (*model.TokenTransaction, error)

	// Debit appends a negative entry; all-or-nothing against the balance.
	Debit(ctx context.Context, userID string, amount int64, typ model.TokenTransactionType, description string) (*model.TokenTransaction, error)

	// GetBalance returns 0 for users with no balance row.
	GetBalance(ctx context.Context, userID string) (int64, error)
}

type ledgerUC struct {
	ledger repository.LedgerRepository
	tm     repository.TransactionManager
	log    *zerolog.Logger
}

func NewLedgerUseCase(ledger repository.LedgerRepository, tm repository.TransactionManager, logger *zerolog.Logger) *ledgerUC {
	l := logger.With().Str("component", "LedgerUC").Logger()
	return &ledgerUC{ledger: ledger, tm: tm, log: &l}
}

// grantClass lists the credit types that represent the one grant a payment is
// entitled to. A webhook purchase credit and a manual-verification grant for
// the same payment id block each other, whichever lands first.
func grantClass(typ model.TokenTransactionType) []model.TokenTransactionType {
	switch typ {
	case model.TokenTxPurchase, model.TokenTxManualVerification:
		return []model.TokenTransactionType{model.TokenTxPurchase, model.TokenTxManualVerification}
	default:
		return []model.TokenTransactionType{typ}
	}
}

// findPriorCredit returns an existing entry for the payment across every type
// in typ's grant class, or nil.
func (u *ledgerUC) findPriorCredit(ctx context.Context, tx repository.Tx, typ model.TokenTransactionType, relatedPaymentID string) (*model.TokenTransaction, error) {
	for _, t := range grantClass(typ) {
		prior, err := u.ledger.FindByPaymentRef(ctx, tx, t, relatedPaymentID)
		if err == nil {
			return prior, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (u *ledgerUC) Credit(ctx context.Context, userID string, amount int64, typ model.TokenTransactionType, description string, relatedPaymentID *string) (*model.TokenTransaction, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var (
		result   *model.TokenTransaction
		replayed bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// Lock the balance row first: concurrent credits for the same payment
		// always target the same user, so the row lock serializes them and
		// the replay check below observes any winner's committed entry.
		bal, err := u.ledger.GetBalanceForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		if relatedPaymentID != nil && *relatedPaymentID != "" {
			prior, err := u.findPriorCredit(ctx, tx, typ, *relatedPaymentID)
			if err != nil {
				return err
			}
			if prior != nil {
				u.log.Debug().Str("user_id", userID).Str("payment_ref", *relatedPaymentID).Msg("credit replay suppressed")
				metrics.IncLedgerReplay()
				result = prior
				replayed = true
				return nil
			}
		}

		ok, err := u.ledger.SetBalanceIf(ctx, tx, userID, bal.Balance, bal.Balance+amount)
		if err != nil {
			return err
		}
		if !ok {
			// The row is locked, so a lost update here means a logic bug.
			return domain.ErrOperationFailed
		}

		t := &model.TokenTransaction{
			ID:               ulid.Make().String(),
			UserID:           userID,
			Amount:           amount,
			Type:             typ,
			Description:      description,
			RelatedPaymentID: relatedPaymentID,
			CreatedAt:        time.Now(),
		}
		if err := u.ledger.Append(ctx, tx, t); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) && relatedPaymentID != nil {
			// Another process won the insert race; its entry is the credit.
			metrics.IncLedgerReplay()
			prior, ferr := u.findPriorCredit(ctx, nil, typ, *relatedPaymentID)
			if ferr != nil {
				return nil, ferr
			}
			if prior != nil {
				return prior, nil
			}
		}
		return nil, err
	}

	if !replayed {
		metrics.ObserveLedgerEntry(string(result.Type), result.Amount)
		u.log.Info().Str("user_id", userID).Int64("amount", result.Amount).Str("type", string(result.Type)).Msg("ledger credit")
	}
	return result, nil
}

func (u *ledgerUC) Debit(ctx context.Context, userID string, amount int64, typ model.TokenTransactionType, description string) (*model.TokenTransaction, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var result *model.TokenTransaction
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		bal, err := u.ledger.GetBalanceForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if bal.Balance < amount {
			return domain.ErrInsufficientBalance
		}
		ok, err := u.ledger.SetBalanceIf(ctx, tx, userID, bal.Balance, bal.Balance-amount)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOperationFailed
		}

		t := &model.TokenTransaction{
			ID:          ulid.Make().String(),
			UserID:      userID,
			Amount:      -amount,
			Type:        typ,
			Description: description,
			CreatedAt:   time.Now(),
		}
		if err := u.ledger.Append(ctx, tx, t); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveLedgerEntry(string(result.Type), result.Amount)
	u.log.Info().Str("user_id", userID).Int64("amount", result.Amount).Str("type", string(result.Type)).Msg("ledger debit")
	return result, nil
}

func (u *ledgerUC) GetBalance(ctx context.Context, userID string) (int64, error) {
	bal, err := u.ledger.GetBalance(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return bal.Balance, nil
}
