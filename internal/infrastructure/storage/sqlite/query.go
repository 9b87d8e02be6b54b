package sqlite

import (
	"context"
	"strconv"

	"mdcollector/internal/domain"
)

// defaultQueryLimit caps result sets when the caller does not set one.
const defaultQueryLimit = 1000

// Range bounds a query: inclusive [Start, End] window in epoch
// milliseconds (zero means unbounded on that side) and a row cap (zero
// means defaultQueryLimit). Results are always ordered by ascending
// timestamp.
type Range struct {
	Start int64
	End   int64
	Limit int
}

// clause renders the window conditions, ordering and limit. It is meant to
// follow a "WHERE 1=1"-style prefix so extra conditions can precede it.
func (r Range) clause() (string, []any) {
	var cond string
	var args []any
	if r.Start > 0 {
		cond += " AND timestamp >= ?"
		args = append(args, r.Start)
	}
	if r.End > 0 {
		cond += " AND timestamp <= ?"
		args = append(args, r.End)
	}
	limit := r.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	cond += " ORDER BY timestamp ASC LIMIT " + strconv.Itoa(limit)
	return cond, args
}

func (s *Store) QueryTickers(ctx context.Context, r Range) ([]domain.Ticker, error) {
	where, args := r.clause()
	rows, err := s.db.QueryContext(ctx, `
SELECT timestamp, symbol, last, bid, bid_volume, ask, ask_volume,
       high, low, open, close, base_volume, quote_volume
FROM ticker WHERE 1=1`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Ticker
	for rows.Next() {
		var t domain.Ticker
		if err := rows.Scan(&t.Timestamp, &t.Symbol, &t.Last, &t.Bid, &t.BidVolume,
			&t.Ask, &t.AskVolume, &t.High, &t.Low, &t.Open, &t.Close,
			&t.BaseVolume, &t.QuoteVolume); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) QueryOrderBooks(ctx context.Context, r Range) ([]domain.OrderBook, error) {
	where, args := r.clause()
	rows, err := s.db.QueryContext(ctx, `
SELECT timestamp, symbol, bids, asks, nonce
FROM orderbook WHERE 1=1`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderBook
	for rows.Next() {
		var ob domain.OrderBook
		var bids, asks string
		if err := rows.Scan(&ob.Timestamp, &ob.Symbol, &bids, &asks, &ob.Nonce); err != nil {
			return nil, err
		}
		if ob.Bids, err = unmarshalLevels(bids); err != nil {
			return nil, err
		}
		if ob.Asks, err = unmarshalLevels(asks); err != nil {
			return nil, err
		}
		out = append(out, ob)
	}
	return out, rows.Err()
}

func (s *Store) QueryTrades(ctx context.Context, r Range) ([]domain.Trade, error) {
	where, args := r.clause()
	rows, err := s.db.QueryContext(ctx, `
SELECT id, timestamp, symbol, side, price, amount
FROM trades WHERE 1=1`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(&t.ID, &t.Timestamp, &t.Symbol, &t.Side, &t.Price, &t.Amount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// QueryCandles returns bars for a single timeframe; the timeframe is part
// of the table's key and is required here.
func (s *Store) QueryCandles(ctx context.Context, timeframe string, r Range) ([]domain.Candle, error) {
	where, args := r.clause()
	args = append([]any{timeframe}, args...)
	rows, err := s.db.QueryContext(ctx, `
SELECT timestamp, symbol, timeframe, open, high, low, close, volume
FROM ohlcv WHERE timeframe = ?`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Timestamp, &c.Symbol, &c.Timeframe,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) QueryFundingRates(ctx context.Context, r Range) ([]domain.FundingRate, error) {
	where, args := r.clause()
	rows, err := s.db.QueryContext(ctx, `
SELECT timestamp, symbol, funding_rate, funding_timestamp
FROM funding_rate WHERE 1=1`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FundingRate
	for rows.Next() {
		var fr domain.FundingRate
		if err := rows.Scan(&fr.Timestamp, &fr.Symbol, &fr.Rate, &fr.FundingTimestamp); err != nil {
			return nil, err
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

func (s *Store) QueryMarkPrices(ctx context.Context, r Range) ([]domain.MarkPrice, error) {
	where, args := r.clause()
	rows, err := s.db.QueryContext(ctx, `
SELECT timestamp, symbol, mark_price, index_price
FROM mark_price WHERE 1=1`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MarkPrice
	for rows.Next() {
		var mp domain.MarkPrice
		if err := rows.Scan(&mp.Timestamp, &mp.Symbol, &mp.MarkPrice, &mp.IndexPrice); err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	return out, rows.Err()
}
