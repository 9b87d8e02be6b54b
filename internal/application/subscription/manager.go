package subscription

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"mdcollector/internal/application/port"
	"mdcollector/internal/domain"
	"mdcollector/internal/infrastructure/config"
)

// Manager owns every channel worker: one per (symbol, channel) for the five
// non-OHLCV channels, plus one per (symbol, timeframe) for OHLCV. Start and
// Stop are the only operations that create or destroy concurrency.
type Manager struct {
	exchange port.Exchange
	cfg      *config.Config
	queues   *Queues
	backoff  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	active   atomic.Int64
	failures atomic.Uint64
}

func NewManager(exchange port.Exchange, cfg *config.Config, queues *Queues) *Manager {
	return &Manager{
		exchange: exchange,
		cfg:      cfg,
		queues:   queues,
		backoff:  defaultBackoff,
	}
}

// Start launches all workers for the configured symbols. Calling Start on a
// running manager is a logged no-op. The returned error is only non-nil for
// interval tokens that slipped past config validation.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		log.Warn().Msg("subscription manager already running")
		return nil
	}

	iv := m.cfg.Intervals
	throttles := map[domain.ChannelKind]string{
		domain.ChannelTicker:      iv.Ticker,
		domain.ChannelOrderBook:   iv.Orderbook,
		domain.ChannelTrades:      iv.Trades,
		domain.ChannelOHLCV:       iv.Klines,
		domain.ChannelFundingRate: iv.Funding,
		domain.ChannelMarkPrice:   iv.MarkPrice,
	}
	parsed := make(map[domain.ChannelKind]config.Throttle, len(throttles))
	for kind, token := range throttles {
		th, err := config.ParseInterval(token)
		if err != nil {
			return fmt.Errorf("channel %s: %w", kind, err)
		}
		parsed[kind] = th
	}
	timeframes, err := config.ParseTimeframes(m.cfg.OHLCV.Timeframes)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	depth := m.cfg.Orderbook.Depth
	for _, symbol := range m.cfg.Symbols.List {
		symbol := symbol

		m.spawn(runCtx, &worker{
			name:     string(domain.ChannelTicker) + ":" + symbol,
			throttle: parsed[domain.ChannelTicker],
			fetch: func(ctx context.Context) error {
				t, err := m.exchange.WatchTicker(ctx, symbol)
				if err != nil {
					return err
				}
				return put(ctx, m.queues.Ticker, t)
			},
		})

		m.spawn(runCtx, &worker{
			name:     string(domain.ChannelOrderBook) + ":" + symbol,
			throttle: parsed[domain.ChannelOrderBook],
			fetch: func(ctx context.Context) error {
				ob, err := m.exchange.WatchOrderBook(ctx, symbol, depth)
				if err != nil {
					return err
				}
				return put(ctx, m.queues.OrderBook, ob)
			},
		})

		m.spawn(runCtx, &worker{
			name:     string(domain.ChannelTrades) + ":" + symbol,
			throttle: parsed[domain.ChannelTrades],
			fetch: func(ctx context.Context) error {
				trades, err := m.exchange.WatchTrades(ctx, symbol)
				if err != nil {
					return err
				}
				for _, tr := range trades {
					if err := put(ctx, m.queues.Trades, tr); err != nil {
						return err
					}
				}
				return nil
			},
		})

		for _, tf := range timeframes {
			tf := tf
			m.spawn(runCtx, &worker{
				name:     string(domain.ChannelOHLCV) + ":" + symbol + "@" + tf,
				throttle: parsed[domain.ChannelOHLCV],
				fetch: func(ctx context.Context) error {
					candles, err := m.exchange.WatchOHLCV(ctx, symbol, tf)
					if err != nil {
						return err
					}
					for _, c := range candles {
						if err := put(ctx, m.queues.OHLCV, c); err != nil {
							return err
						}
					}
					return nil
				},
			})
		}

		m.spawn(runCtx, &worker{
			name:     string(domain.ChannelFundingRate) + ":" + symbol,
			throttle: parsed[domain.ChannelFundingRate],
			fetch: func(ctx context.Context) error {
				fr, err := m.exchange.FetchFundingRate(ctx, symbol)
				if err != nil {
					return err
				}
				return put(ctx, m.queues.FundingRate, fr)
			},
		})

		m.spawn(runCtx, &worker{
			name:     string(domain.ChannelMarkPrice) + ":" + symbol,
			throttle: parsed[domain.ChannelMarkPrice],
			fetch: func(ctx context.Context) error {
				mp, err := m.exchange.FetchMarkPrice(ctx, symbol)
				if err != nil {
					return err
				}
				return put(ctx, m.queues.MarkPrice, mp)
			},
		})
	}

	m.running = true
	log.Info().
		Int("symbols", len(m.cfg.Symbols.List)).
		Int("timeframes", len(timeframes)).
		Int64("workers", m.active.Load()).
		Msg("subscriptions started")
	return nil
}

func (m *Manager) spawn(ctx context.Context, w *worker) {
	if w.backoff == 0 {
		w.backoff = m.backoff
	}
	w.failures = &m.failures

	m.wg.Add(1)
	m.active.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.active.Add(-1)
		w.run(ctx)
	}()
}

// Stop cancels every worker and blocks until all of them have exited. After
// Stop returns no worker enqueues anything. Stopping an idle manager is a
// logged no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		log.Warn().Msg("subscription manager not running")
		return
	}

	m.cancel()
	m.wg.Wait()
	m.running = false
	log.Info().Msg("subscriptions stopped")
}

// QueueDepths reports the current size of each channel queue.
func (m *Manager) QueueDepths() map[domain.ChannelKind]int {
	return m.queues.Depths()
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ActiveWorkers counts workers that have been launched and not yet exited.
func (m *Manager) ActiveWorkers() int {
	return int(m.active.Load())
}

// FailureCount is the cumulative number of worker fetch failures since the
// manager was created.
func (m *Manager) FailureCount() uint64 {
	return m.failures.Load()
}
