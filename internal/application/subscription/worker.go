package subscription

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"mdcollector/internal/infrastructure/config"
)

// defaultBackoff is the delay a worker observes after a fetch failure
// before resuming. It is layered on top of whatever reconnect logic the
// exchange client performs internally.
const defaultBackoff = 5 * time.Second

// worker is one fetch loop for a (symbol, channel[, timeframe]) tuple. It
// owns its throttle and backoff state; siblings never share any of it, so a
// stalled or failing stream cannot touch the others.
type worker struct {
	name     string
	throttle config.Throttle
	backoff  time.Duration
	fetch    func(ctx context.Context) error
	failures *atomic.Uint64
}

// run loops until ctx is cancelled. Each iteration fetches once, enqueues
// the result (inside fetch), and then sleeps the throttle period. The
// throttle is applied after the fetch returns regardless of how long the
// fetch took; realtime channels skip the sleep entirely and let the
// blocking watch call pace the loop. Data errors never end the loop, only
// cancellation does.
func (w *worker) run(ctx context.Context) {
	logger := log.With().Str("worker", w.name).Logger()
	logger.Debug().Msg("worker started")

	for {
		if ctx.Err() != nil {
			logger.Debug().Msg("worker stopped")
			return
		}

		if err := w.fetch(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Debug().Msg("worker stopped")
				return
			}
			w.failures.Add(1)
			logger.Error().Err(err).Dur("backoff", w.backoff).Msg("fetch failed")
			if !sleep(ctx, w.backoff) {
				return
			}
			continue
		}

		if !w.throttle.Realtime() {
			if !sleep(ctx, w.throttle.Period) {
				return
			}
		}
	}
}

// sleep waits for d or until ctx is cancelled, reporting false on cancel.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
