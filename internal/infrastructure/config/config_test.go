package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
[symbols]
list = ["btc/usdt:usdt", "ETH/USDT:USDT", "btc/usdt:usdt"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// duplicates collapse, symbols uppercase
	if len(cfg.Symbols.List) != 2 {
		t.Fatalf("expected 2 symbols, got %v", cfg.Symbols.List)
	}
	if cfg.Symbols.List[0] != "BTC/USDT:USDT" {
		t.Errorf("symbol not normalized: %q", cfg.Symbols.List[0])
	}

	if cfg.Intervals.Ticker != "realtime" || cfg.Intervals.Funding != "8h" {
		t.Errorf("interval defaults not applied: %+v", cfg.Intervals)
	}
	if cfg.Orderbook.Depth != 50 {
		t.Errorf("expected depth default 50, got %d", cfg.Orderbook.Depth)
	}
	if cfg.Storage.RetentionDays != 7 {
		t.Errorf("expected retention default 7, got %d", cfg.Storage.RetentionDays)
	}
	if cfg.Queues.Capacity != 1000 || cfg.Queues.FundingCapacity != 100 {
		t.Errorf("queue capacity defaults not applied: %+v", cfg.Queues)
	}
}

func TestLoadRejectsBadInterval(t *testing.T) {
	path := writeConfig(t, `
[symbols]
list = ["BTC/USDT:USDT"]

[intervals]
orderbook = "5x"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed interval token")
	}
}

func TestLoadRejectsEmptySymbols(t *testing.T) {
	path := writeConfig(t, `
[symbols]
list = ["  ", ""]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty symbol list")
	}
}

func TestLoadRejectsCacheWithoutAddr(t *testing.T) {
	path := writeConfig(t, `
[symbols]
list = ["BTC/USDT:USDT"]

[cache]
enabled = true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for enabled cache without addr")
	}
}
