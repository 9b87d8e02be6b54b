package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Symbols struct {
		List []string `toml:"list"`
	} `toml:"symbols"`

	// Interval tokens per channel. A channel is enabled when its token is
	// non-empty; "realtime" means no throttling between fetches.
	Intervals struct {
		Ticker    string `toml:"ticker"`
		Orderbook string `toml:"orderbook"`
		Trades    string `toml:"trades"`
		Klines    string `toml:"klines"`
		Funding   string `toml:"funding"`
		MarkPrice string `toml:"mark_price"`
	} `toml:"intervals"`

	OHLCV struct {
		Timeframes string `toml:"timeframes"` // comma-separated, e.g. "1m,5m,1h"
	} `toml:"ohlcv"`

	Orderbook struct {
		Depth int `toml:"depth"`
	} `toml:"orderbook"`

	Storage struct {
		Dir           string `toml:"dir"`
		RetentionDays int    `toml:"retention_days"`
	} `toml:"storage"`

	Queues struct {
		Capacity        int `toml:"capacity"`
		FundingCapacity int `toml:"funding_capacity"`
	} `toml:"queues"`

	Exchange struct {
		WsURL   string `toml:"ws_url"`
		RestURL string `toml:"rest_url"`
	} `toml:"exchange"`

	Cache struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
		Prefix  string `toml:"prefix"`
		TTLSec  int    `toml:"ttl_sec"`
	} `toml:"cache"`

	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Intervals.Ticker == "" {
		cfg.Intervals.Ticker = "realtime"
	}
	if cfg.Intervals.Orderbook == "" {
		cfg.Intervals.Orderbook = "30s"
	}
	if cfg.Intervals.Trades == "" {
		cfg.Intervals.Trades = "realtime"
	}
	if cfg.Intervals.Klines == "" {
		cfg.Intervals.Klines = "1m"
	}
	if cfg.Intervals.Funding == "" {
		cfg.Intervals.Funding = "8h"
	}
	if cfg.Intervals.MarkPrice == "" {
		cfg.Intervals.MarkPrice = "1m"
	}
	if cfg.OHLCV.Timeframes == "" {
		cfg.OHLCV.Timeframes = "1m"
	}
	if cfg.Orderbook.Depth <= 0 {
		cfg.Orderbook.Depth = 50
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data"
	}
	if cfg.Storage.RetentionDays <= 0 {
		cfg.Storage.RetentionDays = 7
	}
	if cfg.Queues.Capacity <= 0 {
		cfg.Queues.Capacity = 1000
	}
	if cfg.Queues.FundingCapacity <= 0 {
		cfg.Queues.FundingCapacity = 100
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "mdc"
	}
	if cfg.Cache.TTLSec <= 0 {
		cfg.Cache.TTLSec = 300
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.List = normalizeSymbols(cfg.Symbols.List)
	if len(cfg.Symbols.List) == 0 {
		return errors.New("symbols.list is empty")
	}

	// Malformed interval tokens are fatal at startup, never retried.
	for name, token := range map[string]string{
		"intervals.ticker":     cfg.Intervals.Ticker,
		"intervals.orderbook":  cfg.Intervals.Orderbook,
		"intervals.trades":     cfg.Intervals.Trades,
		"intervals.klines":     cfg.Intervals.Klines,
		"intervals.funding":    cfg.Intervals.Funding,
		"intervals.mark_price": cfg.Intervals.MarkPrice,
	} {
		if _, err := ParseInterval(token); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if _, err := ParseTimeframes(cfg.OHLCV.Timeframes); err != nil {
		return fmt.Errorf("ohlcv.timeframes: %w", err)
	}

	if cfg.Cache.Enabled && strings.TrimSpace(cfg.Cache.Addr) == "" {
		return errors.New("cache.addr empty but enabled")
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
