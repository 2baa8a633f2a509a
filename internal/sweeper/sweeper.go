// Package sweeper runs the background expiry loop over the session ledger.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Ledger is the sweep surface of the session ledger.
type Ledger interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically evicts expired sessions. It runs for the lifetime of
// the process, concurrent with live decision traffic; a failed sweep is logged
// and retried on the next tick, never fatal.
type Sweeper struct {
	ledger   Ledger
	interval time.Duration
	log      zerolog.Logger
	nowF     func() time.Time
}

// New returns a sweeper over ledger firing every interval.
func New(ledger Ledger, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		ledger:   ledger,
		interval: interval,
		log:      log,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is canceled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.ledger.SweepExpired(ctx, s.nowF())
	if err != nil {
		// Transient storage error: memory was still swept, rows retry next tick.
		s.log.Error().Err(err).Int("removed", removed).Msg("sweep finished with storage error")
		return
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("swept expired sessions")
	}
}
