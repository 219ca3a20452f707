package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"character-chat-billing/internal/usecase"
)

// GrantWorker fires the monthly premium grant for the current calendar month.
// The interval only bounds how quickly a new month is noticed: the period key
// on each credit makes repeated runs (here or on other instances) no-ops.
type GrantWorker struct {
	grants   usecase.GrantUseCase
	interval time.Duration
	log      *zerolog.Logger
}

func NewGrantWorker(grants usecase.GrantUseCase, interval time.Duration, logger *zerolog.Logger) *GrantWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	l := logger.With().Str("component", "GrantWorker").Logger()
	return &GrantWorker{grants: grants, interval: interval, log: &l}
}

func (w *GrantWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting grant worker")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping grant worker")
			return ctx.Err()
		case <-t.C:
			runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			granted, err := w.grants.RunMonthlyGrant(runCtx, time.Now())
			cancel()
			if err != nil {
				w.log.Error().Err(err).Int("granted", granted).Msg("monthly grant tick failed")
				continue
			}
			if granted > 0 {
				w.log.Info().Int("granted", granted).Msg("monthly grant tick")
			}
		}
	}
}
