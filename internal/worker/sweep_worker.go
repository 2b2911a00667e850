package worker

import (
	"context"
	"time"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/store"
	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often expired session keys are collected.
const DefaultSweepInterval = time.Minute

// SweepWorker periodically evicts expired keys from an in-memory store so
// abandoned sessions do not accumulate.
type SweepWorker struct {
	sweeper  store.Sweeper
	interval time.Duration
	log      zerolog.Logger
}

func NewSweepWorker(sweeper store.Sweeper, interval time.Duration, log zerolog.Logger) *SweepWorker {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SweepWorker{
		sweeper:  sweeper,
		interval: interval,
		log:      log.With().Str("component", "sweep_worker").Logger(),
	}
}

// Start runs until ctx is cancelled.
func (w *SweepWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("SweepWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("SweepWorker stopped")
			return
		case <-ticker.C:
			if n := w.sweeper.Sweep(ctx); n > 0 {
				w.log.Debug().Int("removed", n).Msg("Expired keys swept")
			}
		}
	}
}
