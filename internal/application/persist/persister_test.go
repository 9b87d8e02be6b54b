package persist

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"mdcollector/internal/application/subscription"
	"mdcollector/internal/domain"
	"mdcollector/internal/infrastructure/storage/sqlite"
)

type countingCache struct {
	calls atomic.Int64
}

func (c *countingCache) SetLatestTicker(ctx context.Context, t domain.Ticker) error {
	c.calls.Add(1)
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPersisterWritesAllChannels(t *testing.T) {
	queues := subscription.NewQueues(16, 16)
	stores := sqlite.NewStores(t.TempDir())
	defer stores.Close()
	cache := &countingCache{}

	p := New(queues, stores, cache)
	p.Start(context.Background())
	defer p.Stop()

	now := time.Now().UnixMilli()
	const symbol = "BTC/USDT:USDT"

	queues.Ticker <- domain.Ticker{Symbol: symbol, Timestamp: now, Last: 45000}
	queues.OrderBook <- domain.OrderBook{
		Symbol:    symbol,
		Timestamp: now,
		Bids:      []domain.PriceLevel{{Price: 44999, Size: 1}},
		Asks:      []domain.PriceLevel{{Price: 45001, Size: 1}},
	}
	queues.Trades <- domain.Trade{ID: "a", Symbol: symbol, Timestamp: now, Side: "buy", Price: 45000, Amount: 1}
	queues.Trades <- domain.Trade{ID: "a", Symbol: symbol, Timestamp: now, Side: "buy", Price: 45000, Amount: 1}
	queues.Trades <- domain.Trade{ID: "b", Symbol: symbol, Timestamp: now + 1, Side: "sell", Price: 45002, Amount: 2}
	queues.OHLCV <- domain.Candle{Symbol: symbol, Timeframe: "1m", Timestamp: now, Close: 45000, Volume: 10}
	queues.FundingRate <- domain.FundingRate{Symbol: symbol, Timestamp: now, Rate: 0.0001}
	queues.MarkPrice <- domain.MarkPrice{Symbol: symbol, Timestamp: now, MarkPrice: 45000.5}

	store, err := stores.ForSymbol(symbol)
	if err != nil {
		t.Fatalf("ForSymbol failed: %v", err)
	}
	ctx := context.Background()

	waitFor(t, "ticker row", func() bool {
		rows, _ := store.QueryTickers(ctx, sqlite.Range{})
		return len(rows) == 1
	})
	waitFor(t, "orderbook row", func() bool {
		rows, _ := store.QueryOrderBooks(ctx, sqlite.Range{})
		return len(rows) == 1
	})
	waitFor(t, "deduplicated trades", func() bool {
		rows, _ := store.QueryTrades(ctx, sqlite.Range{})
		return len(rows) == 2
	})
	waitFor(t, "candle row", func() bool {
		rows, _ := store.QueryCandles(ctx, "1m", sqlite.Range{})
		return len(rows) == 1
	})
	waitFor(t, "funding row", func() bool {
		rows, _ := store.QueryFundingRates(ctx, sqlite.Range{})
		return len(rows) == 1
	})
	waitFor(t, "mark price row", func() bool {
		rows, _ := store.QueryMarkPrices(ctx, sqlite.Range{})
		return len(rows) == 1
	})
	waitFor(t, "cache update", func() bool {
		return cache.calls.Load() == 1
	})

	if p.WriteErrorCount() != 0 {
		t.Errorf("unexpected write errors: %d", p.WriteErrorCount())
	}
}

func TestPersisterRoutesSymbolsToOwnStores(t *testing.T) {
	queues := subscription.NewQueues(16, 16)
	stores := sqlite.NewStores(t.TempDir())
	defer stores.Close()

	p := New(queues, stores, nil)
	p.Start(context.Background())
	defer p.Stop()

	now := time.Now().UnixMilli()
	queues.Trades <- domain.Trade{ID: "1", Symbol: "BTC/USDT:USDT", Timestamp: now, Side: "buy", Price: 45000, Amount: 1}
	queues.Trades <- domain.Trade{ID: "1", Symbol: "ETH/USDT:USDT", Timestamp: now, Side: "buy", Price: 2400, Amount: 1}

	btc, err := stores.ForSymbol("BTC/USDT:USDT")
	if err != nil {
		t.Fatal(err)
	}
	eth, err := stores.ForSymbol("ETH/USDT:USDT")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	waitFor(t, "btc trade", func() bool {
		rows, _ := btc.QueryTrades(ctx, sqlite.Range{})
		return len(rows) == 1 && rows[0].Price == 45000
	})
	waitFor(t, "eth trade", func() bool {
		rows, _ := eth.QueryTrades(ctx, sqlite.Range{})
		return len(rows) == 1 && rows[0].Price == 2400
	})
}

func TestPersisterStartIdempotentAndStop(t *testing.T) {
	queues := subscription.NewQueues(4, 4)
	stores := sqlite.NewStores(t.TempDir())
	defer stores.Close()

	p := New(queues, stores, nil)
	ctx := context.Background()
	p.Start(ctx)
	p.Start(ctx) // no-op, must not double the consumers
	p.Stop()
	p.Stop() // idle Stop is a no-op too
}
