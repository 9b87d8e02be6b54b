package domain

// ChannelKind identifies one of the six market-data streams.
type ChannelKind string

const (
	ChannelTicker      ChannelKind = "ticker"
	ChannelOrderBook   ChannelKind = "orderbook"
	ChannelTrades      ChannelKind = "trades"
	ChannelOHLCV       ChannelKind = "ohlcv"
	ChannelFundingRate ChannelKind = "funding_rate"
	ChannelMarkPrice   ChannelKind = "mark_price"
)

// Kinds lists every channel kind in a stable order.
func Kinds() []ChannelKind {
	return []ChannelKind{
		ChannelTicker,
		ChannelOrderBook,
		ChannelTrades,
		ChannelOHLCV,
		ChannelFundingRate,
		ChannelMarkPrice,
	}
}

// Ticker is a point-in-time price snapshot for a symbol.
// Timestamp is epoch milliseconds; ordering across records is not guaranteed.
type Ticker struct {
	Symbol      string
	Timestamp   int64
	Last        float64
	Bid         float64
	BidVolume   float64
	Ask         float64
	AskVolume   float64
	High        float64
	Low         float64
	Open        float64
	Close       float64
	BaseVolume  float64
	QuoteVolume float64
}

// PriceLevel is one side entry of an order book, best price first.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a depth snapshot for a symbol.
type OrderBook struct {
	Symbol    string
	Timestamp int64
	Bids      []PriceLevel
	Asks      []PriceLevel
	Nonce     int64
}

// Trade is a single public trade print. ID is exchange-assigned and unique
// per symbol; replays of the same ID are deduplicated at the store.
type Trade struct {
	ID        string
	Symbol    string
	Timestamp int64
	Side      string
	Price     float64
	Amount    float64
}

// Candle is one OHLCV bar for a (symbol, timeframe) pair. Timestamp is the
// bar open time in epoch milliseconds.
type Candle struct {
	Symbol    string
	Timeframe string
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// FundingRate is a perpetual funding rate sample.
type FundingRate struct {
	Symbol           string
	Timestamp        int64
	Rate             float64
	FundingTimestamp int64
}

// MarkPrice is a mark/index price sample for a perpetual contract.
type MarkPrice struct {
	Symbol     string
	Timestamp  int64
	MarkPrice  float64
	IndexPrice float64
}
