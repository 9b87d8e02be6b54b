package port

import (
	"context"

	"mdcollector/internal/domain"
)

// Exchange is the upstream market-data client. Watch methods block until
// the exchange delivers fresh data (or ctx is cancelled) and may reconnect
// internally; Fetch methods are single-shot REST-style calls. All payloads
// arrive normalized with epoch-millisecond timestamps, and every method
// reports failures as errors rather than returning partial data.
type Exchange interface {
	WatchTicker(ctx context.Context, symbol string) (domain.Ticker, error)
	WatchOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error)
	WatchTrades(ctx context.Context, symbol string) ([]domain.Trade, error)
	WatchOHLCV(ctx context.Context, symbol, timeframe string) ([]domain.Candle, error)
	FetchFundingRate(ctx context.Context, symbol string) (domain.FundingRate, error)
	FetchMarkPrice(ctx context.Context, symbol string) (domain.MarkPrice, error)
}
