package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"mdcollector/internal/application/port"
	"mdcollector/internal/domain"
)

const (
	DefaultWsURL   = "wss://stream.bybit.com/v5/public/linear"
	DefaultRestURL = "https://api.bybit.com"
)

var errNotStarted = errors.New("bybit: client not started")

// Client implements port.Exchange against Bybit's v5 linear market. Ticker,
// trade and kline updates arrive over one shared public websocket; order
// book snapshots, funding and mark price come from the v5 REST API.
type Client struct {
	wsURL   string
	restURL string
	httpc   *http.Client

	mu      sync.Mutex
	started bool
	conn    *websocket.Conn          // live session, nil while reconnecting
	topics  map[string]chan wsEvent  // topic -> pending events, one reader each
	last    map[string]domain.Ticker // delta merge state per symbol
}

func New(wsURL, restURL string) *Client {
	if strings.TrimSpace(wsURL) == "" {
		wsURL = DefaultWsURL
	}
	if strings.TrimSpace(restURL) == "" {
		restURL = DefaultRestURL
	}
	return &Client{
		wsURL:   strings.TrimSpace(wsURL),
		restURL: strings.TrimRight(strings.TrimSpace(restURL), "/"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
		topics:  make(map[string]chan wsEvent),
		last:    make(map[string]domain.Ticker),
	}
}

// Start launches the websocket pump. Watch methods fail until Start has run.
// The pump lives until ctx is cancelled; starting twice is a no-op.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	go c.run(ctx)
}

// next registers the topic on first use, subscribing over the live session
// when there is one, and blocks for the next routed event.
func (c *Client) next(ctx context.Context, topic string) (wsEvent, error) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return wsEvent{}, errNotStarted
	}
	ch, ok := c.topics[topic]
	if !ok {
		ch = make(chan wsEvent, 16)
		c.topics[topic] = ch
		if c.conn != nil {
			if err := c.conn.WriteJSON(wsReq{Op: "subscribe", Args: []string{topic}}); err != nil {
				// the read loop will notice the broken conn and resubscribe
				log.Warn().Err(err).Str("topic", topic).Msg("bybit ws subscribe write failed")
			}
		}
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return wsEvent{}, ctx.Err()
	case ev := <-ch:
		return ev, nil
	}
}

func (c *Client) WatchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	ev, err := c.next(ctx, "tickers."+MarketID(symbol))
	if err != nil {
		return domain.Ticker{}, err
	}

	var d tickerData
	if err := json.Unmarshal(ev.Data, &d); err != nil {
		return domain.Ticker{}, err
	}

	c.mu.Lock()
	t := mergeTicker(c.last[symbol], symbol, ev.Ts, d)
	c.last[symbol] = t
	c.mu.Unlock()
	return t, nil
}

func (c *Client) WatchTrades(ctx context.Context, symbol string) ([]domain.Trade, error) {
	for {
		ev, err := c.next(ctx, "publicTrade."+MarketID(symbol))
		if err != nil {
			return nil, err
		}
		trades, err := parseTrades(symbol, ev.Data)
		if err != nil {
			return nil, err
		}
		if len(trades) > 0 {
			return trades, nil
		}
	}
}

func (c *Client) WatchOHLCV(ctx context.Context, symbol, timeframe string) ([]domain.Candle, error) {
	interval, err := klineInterval(timeframe)
	if err != nil {
		return nil, err
	}
	for {
		ev, err := c.next(ctx, "kline."+interval+"."+MarketID(symbol))
		if err != nil {
			return nil, err
		}
		candles, err := parseCandles(symbol, timeframe, ev.Data)
		if err != nil {
			return nil, err
		}
		if len(candles) > 0 {
			return candles, nil
		}
	}
}

// tickerData carries the v5 tickers payload. Delta frames omit unchanged
// fields, so every field stays a string and empty means "keep previous".
type tickerData struct {
	LastPrice    string `json:"lastPrice"`
	Bid1Price    string `json:"bid1Price"`
	Bid1Size     string `json:"bid1Size"`
	Ask1Price    string `json:"ask1Price"`
	Ask1Size     string `json:"ask1Size"`
	HighPrice24h string `json:"highPrice24h"`
	LowPrice24h  string `json:"lowPrice24h"`
	PrevPrice24h string `json:"prevPrice24h"`
	Volume24h    string `json:"volume24h"`
	Turnover24h  string `json:"turnover24h"`
}

func mergeTicker(prev domain.Ticker, symbol string, ts int64, d tickerData) domain.Ticker {
	t := prev
	t.Symbol = symbol
	t.Timestamp = ts
	setFloat(&t.Last, d.LastPrice)
	setFloat(&t.Close, d.LastPrice)
	setFloat(&t.Bid, d.Bid1Price)
	setFloat(&t.BidVolume, d.Bid1Size)
	setFloat(&t.Ask, d.Ask1Price)
	setFloat(&t.AskVolume, d.Ask1Size)
	setFloat(&t.High, d.HighPrice24h)
	setFloat(&t.Low, d.LowPrice24h)
	setFloat(&t.Open, d.PrevPrice24h)
	setFloat(&t.BaseVolume, d.Volume24h)
	setFloat(&t.QuoteVolume, d.Turnover24h)
	return t
}

type tradeData struct {
	TradeTime int64  `json:"T"`
	Side      string `json:"S"`
	Size      string `json:"v"`
	Price     string `json:"p"`
	ID        string `json:"i"`
}

func parseTrades(symbol string, data json.RawMessage) ([]domain.Trade, error) {
	var items []tradeData
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	trades := make([]domain.Trade, 0, len(items))
	for _, d := range items {
		if d.ID == "" {
			continue
		}
		trades = append(trades, domain.Trade{
			ID:        d.ID,
			Symbol:    symbol,
			Timestamp: d.TradeTime,
			Side:      strings.ToLower(d.Side),
			Price:     parseFloat(d.Price),
			Amount:    parseFloat(d.Size),
		})
	}
	return trades, nil
}

type klineData struct {
	Start   int64  `json:"start"`
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Close   string `json:"close"`
	Volume  string `json:"volume"`
	Confirm bool   `json:"confirm"`
}

// parseCandles keeps the in-progress bar too: the store upserts on
// (timestamp, timeframe), so repeated updates converge on the final bar.
func parseCandles(symbol, timeframe string, data json.RawMessage) ([]domain.Candle, error) {
	var items []klineData
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	candles := make([]domain.Candle, 0, len(items))
	for _, d := range items {
		candles = append(candles, domain.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: d.Start,
			Open:      parseFloat(d.Open),
			High:      parseFloat(d.High),
			Low:       parseFloat(d.Low),
			Close:     parseFloat(d.Close),
			Volume:    parseFloat(d.Volume),
		})
	}
	return candles, nil
}

func setFloat(dst *float64, s string) {
	if s == "" {
		return
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*dst = v
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

var _ port.Exchange = (*Client)(nil)
