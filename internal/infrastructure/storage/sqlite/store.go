package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"mdcollector/internal/domain"
)

const schemaVersion = 1

// defaultRetention is the rolling window kept in every table; rows older
// than now-retention are deleted by the sweep that runs with each write.
const defaultRetention = 7 * 24 * time.Hour

// Store is the embedded time-series database for a single symbol. It owns
// its file exclusively and serializes writers through a single connection;
// WAL mode keeps the file readable while a write is in flight. Retention
// deletes rows, never the file.
type Store struct {
	db        *sql.DB
	symbol    string
	path      string
	retention time.Duration
	now       func() time.Time
}

type Option func(*Store)

// WithRetention overrides the 7-day retention window.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithClock overrides the clock used for retention cutoffs (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates or opens the store file for symbol under dir and applies
// pending schema migrations.
func Open(dir, symbol string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	path := filepath.Join(dir, SafeSymbol(symbol)+".db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:        db,
		symbol:    symbol,
		path:      path,
		retention: defaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Str("symbol", symbol).Str("path", path).Msg("symbol store opened")
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at INTEGER NOT NULL
);
`)
	if err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	log.Info().Str("symbol", s.symbol).Int("from", current).Int("to", schemaVersion).
		Msg("applying schema migration")

	_, err = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS ticker (
  timestamp INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  last REAL,
  bid REAL,
  bid_volume REAL,
  ask REAL,
  ask_volume REAL,
  high REAL,
  low REAL,
  open REAL,
  close REAL,
  base_volume REAL,
  quote_volume REAL
);
CREATE INDEX IF NOT EXISTS idx_ticker_timestamp ON ticker(timestamp);

CREATE TABLE IF NOT EXISTS orderbook (
  timestamp INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  bids TEXT NOT NULL,
  asks TEXT NOT NULL,
  nonce INTEGER
);
CREATE INDEX IF NOT EXISTS idx_orderbook_timestamp ON orderbook(timestamp);

CREATE TABLE IF NOT EXISTS trades (
  id TEXT PRIMARY KEY,
  timestamp INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  price REAL NOT NULL,
  amount REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);

CREATE TABLE IF NOT EXISTS ohlcv (
  timestamp INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  timeframe TEXT NOT NULL,
  open REAL NOT NULL,
  high REAL NOT NULL,
  low REAL NOT NULL,
  close REAL NOT NULL,
  volume REAL NOT NULL,
  PRIMARY KEY (timestamp, timeframe)
);
CREATE INDEX IF NOT EXISTS idx_ohlcv_timestamp ON ohlcv(timestamp);

CREATE TABLE IF NOT EXISTS funding_rate (
  timestamp INTEGER NOT NULL PRIMARY KEY,
  symbol TEXT NOT NULL,
  funding_rate REAL NOT NULL,
  funding_timestamp INTEGER
);
CREATE INDEX IF NOT EXISTS idx_funding_timestamp ON funding_rate(timestamp);

CREATE TABLE IF NOT EXISTS mark_price (
  timestamp INTEGER NOT NULL PRIMARY KEY,
  symbol TEXT NOT NULL,
  mark_price REAL NOT NULL,
  index_price REAL
);
CREATE INDEX IF NOT EXISTS idx_mark_price_timestamp ON mark_price(timestamp);
`)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
		schemaVersion, s.now().UnixMilli())
	return err
}

// writeTx runs fn and the retention sweep of the written table in one
// transaction: either both apply or neither does, so a crash can never
// leave an insert without its sweep.
func (s *Store) writeTx(ctx context.Context, table string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := s.sweep(ctx, tx, table); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// sweep deletes rows older than the retention window from table. It is
// idempotent; with no new writes a second run deletes nothing. Sweeping is
// tied to write activity on purpose: an idle symbol keeps stale rows until
// its next write.
func (s *Store) sweep(ctx context.Context, tx *sql.Tx, table string) error {
	cutoff := s.now().Add(-s.retention).UnixMilli()
	res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE timestamp < ?`, cutoff)
	if err != nil {
		return err
	}
	if deleted, err := res.RowsAffected(); err == nil && deleted > 0 {
		log.Debug().Str("symbol", s.symbol).Str("table", table).
			Int64("deleted", deleted).Msg("retention sweep")
	}
	return nil
}

// InsertTicker appends a ticker snapshot.
func (s *Store) InsertTicker(ctx context.Context, t domain.Ticker) error {
	return s.writeTx(ctx, "ticker", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO ticker (
  timestamp, symbol, last, bid, bid_volume, ask, ask_volume,
  high, low, open, close, base_volume, quote_volume
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, t.Timestamp, t.Symbol, t.Last, t.Bid, t.BidVolume, t.Ask, t.AskVolume,
			t.High, t.Low, t.Open, t.Close, t.BaseVolume, t.QuoteVolume)
		return err
	})
}

// InsertOrderBook appends a depth snapshot. Sides are stored as JSON
// [[price, size], ...] lists, best price first.
func (s *Store) InsertOrderBook(ctx context.Context, ob domain.OrderBook) error {
	bids, err := marshalLevels(ob.Bids)
	if err != nil {
		return err
	}
	asks, err := marshalLevels(ob.Asks)
	if err != nil {
		return err
	}
	return s.writeTx(ctx, "orderbook", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO orderbook (timestamp, symbol, bids, asks, nonce)
VALUES (?, ?, ?, ?, ?)
`, ob.Timestamp, ob.Symbol, bids, asks, ob.Nonce)
		return err
	})
}

// InsertTrades bulk-inserts trade prints, skipping ids already present,
// and returns the count of newly inserted rows. An empty slice is a no-op.
func (s *Store) InsertTrades(ctx context.Context, trades []domain.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.writeTx(ctx, "trades", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO trades (id, timestamp, symbol, side, price, amount)
VALUES (?, ?, ?, ?, ?, ?)
`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, tr := range trades {
			res, err := stmt.ExecContext(ctx, tr.ID, tr.Timestamp, tr.Symbol, tr.Side, tr.Price, tr.Amount)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// InsertCandles upserts OHLCV bars keyed by (timestamp, timeframe), newest
// write wins, and returns the count of rows written. An empty slice is a
// no-op.
func (s *Store) InsertCandles(ctx context.Context, candles []domain.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	written := 0
	err := s.writeTx(ctx, "ohlcv", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO ohlcv (timestamp, symbol, timeframe, open, high, low, close, volume)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range candles {
			if _, err := stmt.ExecContext(ctx, c.Timestamp, c.Symbol, c.Timeframe,
				c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// InsertFundingRate upserts a funding rate sample keyed by timestamp.
func (s *Store) InsertFundingRate(ctx context.Context, fr domain.FundingRate) error {
	return s.writeTx(ctx, "funding_rate", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO funding_rate (timestamp, symbol, funding_rate, funding_timestamp)
VALUES (?, ?, ?, ?)
`, fr.Timestamp, fr.Symbol, fr.Rate, fr.FundingTimestamp)
		return err
	})
}

// InsertMarkPrice upserts a mark price sample keyed by timestamp.
func (s *Store) InsertMarkPrice(ctx context.Context, mp domain.MarkPrice) error {
	return s.writeTx(ctx, "mark_price", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO mark_price (timestamp, symbol, mark_price, index_price)
VALUES (?, ?, ?, ?)
`, mp.Timestamp, mp.Symbol, mp.MarkPrice, mp.IndexPrice)
		return err
	})
}

func marshalLevels(levels []domain.PriceLevel) (string, error) {
	pairs := make([][2]float64, len(levels))
	for i, l := range levels {
		pairs[i] = [2]float64{l.Price, l.Size}
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalLevels(raw string) ([]domain.PriceLevel, error) {
	var pairs [][2]float64
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, err
	}
	levels := make([]domain.PriceLevel, len(pairs))
	for i, p := range pairs {
		levels[i] = domain.PriceLevel{Price: p[0], Size: p[1]}
	}
	return levels, nil
}
