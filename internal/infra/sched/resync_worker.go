package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"character-chat-billing/internal/domain/ports/repository"
	"character-chat-billing/internal/usecase"
)

// ResyncWorker periodically scans for degraded payment transactions (recorded
// while the gateway was unreachable) and re-pulls them. This covers the case
// where an event arrived but the follow-up fetch exhausted its retry budget.
type ResyncWorker struct {
	verify   usecase.VerifyUseCase
	payments repository.PaymentRepository
	interval time.Duration // how often to scan
	after    time.Duration // how old a degraded row must be to retry
	log      *zerolog.Logger
}

func NewResyncWorker(verify usecase.VerifyUseCase, payments repository.PaymentRepository, interval, after time.Duration, logger *zerolog.Logger) *ResyncWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if after <= 0 {
		after = 10 * time.Minute
	}
	l := logger.With().Str("component", "ResyncWorker").Logger()
	return &ResyncWorker{verify: verify, payments: payments, interval: interval, after: after, log: &l}
}

func (w *ResyncWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting resync worker")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping resync worker")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *ResyncWorker) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.after)
	degraded, err := w.payments.ListIncompleteOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list degraded transactions failed")
		return
	}
	for _, p := range degraded {
		tx, warning, err := w.verify.SyncPull(ctx, p.ExternalSessionID)
		if err != nil {
			w.log.Error().Err(err).Str("session_id", p.ExternalSessionID).Msg("resync failed")
			continue
		}
		if warning != "" {
			// Still unreachable; leave the row for the next sweep.
			continue
		}
		w.log.Info().Str("session_id", p.ExternalSessionID).Str("status", string(tx.Status)).Msg("degraded transaction resynced")
	}
}
