package persist

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"mdcollector/internal/application/port"
	"mdcollector/internal/application/subscription"
	"mdcollector/internal/domain"
	"mdcollector/internal/infrastructure/storage/sqlite"
)

// maxBatch caps how many trades or candles a single bulk insert carries.
const maxBatch = 200

// Persister drains the channel queues into the per-symbol stores, one
// goroutine per queue. Trades and candles are drained greedily into
// batches and bulk-inserted per symbol; the other channels write row by
// row. A store error drops only the records in hand; it is logged and
// counted, never fatal, and the loops keep consuming.
type Persister struct {
	queues *subscription.Queues
	stores *sqlite.Stores
	cache  port.LatestCache // optional, may be nil

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	writeErrors atomic.Uint64
}

func New(queues *subscription.Queues, stores *sqlite.Stores, cache port.LatestCache) *Persister {
	return &Persister{
		queues: queues,
		stores: stores,
		cache:  cache,
	}
}

// Start launches the six consumer loops. Starting a running persister is a
// logged no-op.
func (p *Persister) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		log.Warn().Msg("persister already running")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.loop(runCtx, p.tickerLoop)
	p.loop(runCtx, p.orderBookLoop)
	p.loop(runCtx, p.tradesLoop)
	p.loop(runCtx, p.candlesLoop)
	p.loop(runCtx, p.fundingLoop)
	p.loop(runCtx, p.markPriceLoop)

	log.Info().Msg("persister started")
}

func (p *Persister) loop(ctx context.Context, fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn(ctx)
	}()
}

// Stop cancels the consumer loops and waits for them to finish. Records
// already dequeued are still written before a loop exits.
func (p *Persister) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.running = false
	log.Info().Msg("persister stopped")
}

// WriteErrorCount is the cumulative number of failed store writes.
func (p *Persister) WriteErrorCount() uint64 {
	return p.writeErrors.Load()
}

// write runs fn against the symbol's store with a background context:
// records pulled off a queue are persisted even while shutdown is in
// progress.
func (p *Persister) write(symbol string, fn func(ctx context.Context, s *sqlite.Store) error) {
	store, err := p.stores.ForSymbol(symbol)
	if err == nil {
		err = fn(context.Background(), store)
	}
	if err != nil {
		p.writeErrors.Add(1)
		log.Error().Err(err).Str("symbol", symbol).Msg("store write failed")
	}
}

func (p *Persister) tickerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queues.Ticker:
			p.write(t.Symbol, func(ctx context.Context, s *sqlite.Store) error {
				return s.InsertTicker(ctx, t)
			})
			if p.cache != nil {
				if err := p.cache.SetLatestTicker(context.Background(), t); err != nil {
					log.Warn().Err(err).Str("symbol", t.Symbol).Msg("latest cache update failed")
				}
			}
		}
	}
}

func (p *Persister) orderBookLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ob := <-p.queues.OrderBook:
			p.write(ob.Symbol, func(ctx context.Context, s *sqlite.Store) error {
				return s.InsertOrderBook(ctx, ob)
			})
		}
	}
}

func (p *Persister) tradesLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case first := <-p.queues.Trades:
			batch := append([]domain.Trade{first}, drain(p.queues.Trades, maxBatch-1)...)
			for symbol, trades := range groupBy(batch, func(t domain.Trade) string { return t.Symbol }) {
				trades := trades
				p.write(symbol, func(ctx context.Context, s *sqlite.Store) error {
					_, err := s.InsertTrades(ctx, trades)
					return err
				})
			}
		}
	}
}

func (p *Persister) candlesLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case first := <-p.queues.OHLCV:
			batch := append([]domain.Candle{first}, drain(p.queues.OHLCV, maxBatch-1)...)
			for symbol, candles := range groupBy(batch, func(c domain.Candle) string { return c.Symbol }) {
				candles := candles
				p.write(symbol, func(ctx context.Context, s *sqlite.Store) error {
					_, err := s.InsertCandles(ctx, candles)
					return err
				})
			}
		}
	}
}

func (p *Persister) fundingLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fr := <-p.queues.FundingRate:
			p.write(fr.Symbol, func(ctx context.Context, s *sqlite.Store) error {
				return s.InsertFundingRate(ctx, fr)
			})
		}
	}
}

func (p *Persister) markPriceLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case mp := <-p.queues.MarkPrice:
			p.write(mp.Symbol, func(ctx context.Context, s *sqlite.Store) error {
				return s.InsertMarkPrice(ctx, mp)
			})
		}
	}
}

// drain pulls up to max already-buffered values without blocking.
func drain[T any](q <-chan T, max int) []T {
	var out []T
	for len(out) < max {
		select {
		case v := <-q:
			out = append(out, v)
		default:
			return out
		}
	}
	return out
}

func groupBy[T any](in []T, key func(T) string) map[string][]T {
	out := make(map[string][]T)
	for _, v := range in {
		k := key(v)
		out[k] = append(out[k], v)
	}
	return out
}
