package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/domain/ports/repository"
	"character-chat-billing/internal/infra/metrics"
)

// Compile-time check
var _ GrantUseCase = (*grantUC)(nil)

// GrantUseCase runs the periodic bulk credit for premium users.
type GrantUseCase interface {
	// RunMonthlyGrant credits every premium user for the calendar month of
	// period. Each user's credit carries the period-scoped key
	// "grant:{yyyy-mm}:{userId}", so re-running within the same month grants
	// nothing new and reports granted 0 for the replays. One user's failure
	// never aborts the batch.
	RunMonthlyGrant(ctx context.Context, period time.Time) (granted int, err error)
}

type grantUC struct {
	users  repository.UserRepository
	ledger LedgerUseCase
	amount int64
	log    *zerolog.Logger
}

func NewGrantUseCase(users repository.UserRepository, ledger LedgerUseCase, amount int64, logger *zerolog.Logger) *grantUC {
	if amount <= 0 {
		amount = 100
	}
	l := logger.With().Str("component", "GrantUC").Logger()
	return &grantUC{users: users, ledger: ledger, amount: amount, log: &l}
}

const grantPageSize = 200

func (u *grantUC) RunMonthlyGrant(ctx context.Context, period time.Time) (int, error) {
	granted := 0
	replayed := 0
	started := time.Now()
	for offset := 0; ; offset += grantPageSize {
		users, err := u.users.ListPremium(ctx, nil, offset, grantPageSize)
		if err != nil {
			if granted > 0 {
				// Partial run: report what was credited so far.
				return granted, err
			}
			return 0, err
		}
		if len(users) == 0 {
			break
		}
		for _, user := range users {
			key := model.GrantPeriodKey(period, user.ID)
			t, err := u.ledger.Credit(ctx, user.ID, u.amount, model.TokenTxMonthlyGrant, "monthly premium grant", &key)
			if err != nil {
				// Fault isolation: log and keep crediting the rest.
				u.log.Error().Err(err).Str("user_id", user.ID).Msg("monthly grant failed for user")
				metrics.IncGrant("failed")
				continue
			}
			// A replayed credit hands back the entry from an earlier run;
			// only entries minted by this run count as granted.
			if t.CreatedAt.Before(started) {
				replayed++
				metrics.IncGrant("replayed")
				continue
			}
			granted++
			metrics.IncGrant("granted")
		}
		if len(users) < grantPageSize {
			break
		}
	}
	u.log.Info().Int("granted", granted).Int("replayed", replayed).Str("period", period.UTC().Format("2006-01")).Msg("monthly grant finished")
	return granted, nil
}
