package board

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lanboard/lanboard/internal/metrics"
	"github.com/lanboard/lanboard/internal/store"
)

// Sweeper periodically removes attachment files older than the retention age.
// It runs independently of message traffic; a file swept while a not-yet-
// admitted message still references it simply yields a dead link downstream.
type Sweeper struct {
	store    *store.Store
	maxAge   time.Duration
	interval time.Duration
	metrics  *metrics.Board
}

// NewSweeper creates a sweeper over the attachment store.
func NewSweeper(st *store.Store, maxAge, interval time.Duration, m *metrics.Board) *Sweeper {
	return &Sweeper{store: st, maxAge: maxAge, interval: interval, metrics: m}
}

// Run sweeps once immediately, then on every tick until the context is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	removed := s.store.SweepExpired(s.maxAge)
	if removed > 0 {
		s.metrics.FilesSwept.Add(float64(removed))
		log.Info().Int("removed", removed).Msg("retention sweep removed expired files")
	}
}
