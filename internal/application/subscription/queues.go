package subscription

import (
	"context"

	"mdcollector/internal/domain"
)

// Queues is the bounded handoff between channel workers and the storage
// consumer: one typed FIFO per channel kind, shared across symbols. A full
// queue blocks only the workers feeding it; that is the backpressure point,
// not an error.
type Queues struct {
	Ticker      chan domain.Ticker
	OrderBook   chan domain.OrderBook
	Trades      chan domain.Trade
	OHLCV       chan domain.Candle
	FundingRate chan domain.FundingRate
	MarkPrice   chan domain.MarkPrice
}

// NewQueues sizes every queue at capacity except funding_rate, which gets
// its own (much smaller) capacity to match its update rate.
func NewQueues(capacity, fundingCapacity int) *Queues {
	return &Queues{
		Ticker:      make(chan domain.Ticker, capacity),
		OrderBook:   make(chan domain.OrderBook, capacity),
		Trades:      make(chan domain.Trade, capacity),
		OHLCV:       make(chan domain.Candle, capacity),
		FundingRate: make(chan domain.FundingRate, fundingCapacity),
		MarkPrice:   make(chan domain.MarkPrice, capacity),
	}
}

// Depths reports the current size of each queue without consuming from it.
func (q *Queues) Depths() map[domain.ChannelKind]int {
	return map[domain.ChannelKind]int{
		domain.ChannelTicker:      len(q.Ticker),
		domain.ChannelOrderBook:   len(q.OrderBook),
		domain.ChannelTrades:      len(q.Trades),
		domain.ChannelOHLCV:       len(q.OHLCV),
		domain.ChannelFundingRate: len(q.FundingRate),
		domain.ChannelMarkPrice:   len(q.MarkPrice),
	}
}

// put is the blocking enqueue used by workers. It only gives up when the
// worker's cancellation token fires.
func put[T any](ctx context.Context, q chan<- T, v T) error {
	select {
	case q <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
