package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mdcollector/internal/domain"
)

// restEnvelope wraps every v5 REST response. retCode 0 is success; anything
// else carries the error text in retMsg.
type restEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// getJSON performs a public GET and decodes the result payload. It returns
// the server time from the envelope for timestamping.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, result any) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("bybit http %d: %s", resp.StatusCode, resp.Status)
	}
	var env restEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return 0, err
	}
	if env.RetCode != 0 {
		return 0, fmt.Errorf("bybit api %d: %s", env.RetCode, env.RetMsg)
	}
	if env.Time == 0 {
		env.Time = time.Now().UnixMilli()
	}
	return env.Time, json.Unmarshal(env.Result, result)
}

type orderBookResult struct {
	Symbol   string      `json:"s"`
	Bids     [][2]string `json:"b"`
	Asks     [][2]string `json:"a"`
	Ts       int64       `json:"ts"`
	UpdateID int64       `json:"u"`
}

// WatchOrderBook takes a fresh depth snapshot from the REST order book
// endpoint. Snapshots are self-contained, so no delta state is kept.
func (c *Client) WatchOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	if depth <= 0 {
		depth = 25
	}
	q := url.Values{}
	q.Set("category", "linear")
	q.Set("symbol", MarketID(symbol))
	q.Set("limit", strconv.Itoa(depth))

	var res orderBookResult
	if _, err := c.getJSON(ctx, "/v5/market/orderbook", q, &res); err != nil {
		return domain.OrderBook{}, err
	}
	return domain.OrderBook{
		Symbol:    symbol,
		Timestamp: res.Ts,
		Bids:      parseLevels(res.Bids),
		Asks:      parseLevels(res.Asks),
		Nonce:     res.UpdateID,
	}, nil
}

func parseLevels(raw [][2]string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, r := range raw {
		levels = append(levels, domain.PriceLevel{
			Price: parseFloat(r[0]),
			Size:  parseFloat(r[1]),
		})
	}
	return levels
}

type tickersResult struct {
	Category string           `json:"category"`
	List     []restTickerItem `json:"list"`
}

type restTickerItem struct {
	Symbol          string `json:"symbol"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
}

func (c *Client) tickerItem(ctx context.Context, symbol string) (restTickerItem, int64, error) {
	q := url.Values{}
	q.Set("category", "linear")
	q.Set("symbol", MarketID(symbol))

	var res tickersResult
	ts, err := c.getJSON(ctx, "/v5/market/tickers", q, &res)
	if err != nil {
		return restTickerItem{}, 0, err
	}
	if len(res.List) == 0 {
		return restTickerItem{}, 0, fmt.Errorf("bybit: no ticker for %s", symbol)
	}
	return res.List[0], ts, nil
}

func (c *Client) FetchFundingRate(ctx context.Context, symbol string) (domain.FundingRate, error) {
	item, ts, err := c.tickerItem(ctx, symbol)
	if err != nil {
		return domain.FundingRate{}, err
	}
	next, _ := strconv.ParseInt(item.NextFundingTime, 10, 64)
	return domain.FundingRate{
		Symbol:           symbol,
		Timestamp:        ts,
		Rate:             parseFloat(item.FundingRate),
		FundingTimestamp: next,
	}, nil
}

func (c *Client) FetchMarkPrice(ctx context.Context, symbol string) (domain.MarkPrice, error) {
	item, ts, err := c.tickerItem(ctx, symbol)
	if err != nil {
		return domain.MarkPrice{}, err
	}
	return domain.MarkPrice{
		Symbol:     symbol,
		Timestamp:  ts,
		MarkPrice:  parseFloat(item.MarkPrice),
		IndexPrice: parseFloat(item.IndexPrice),
	}, nil
}
