package sqlite

import "testing"

func TestSafeSymbolKeepsSafeRunes(t *testing.T) {
	if got := SafeSymbol("BTCUSDT"); got != "BTCUSDT" {
		t.Errorf("SafeSymbol(BTCUSDT) = %q", got)
	}
}

func TestSafeSymbolEscapesSeparators(t *testing.T) {
	got := SafeSymbol("BTC/USDT:USDT")
	if got != "BTC_2FUSDT_3AUSDT" {
		t.Errorf("SafeSymbol(BTC/USDT:USDT) = %q", got)
	}
}

func TestSafeSymbolInjective(t *testing.T) {
	// symbols that collapse to the same name under naive separator
	// replacement must stay distinct here
	universe := []string{
		"BTC/USDT:USDT",
		"BTC:USDT/USDT",
		"BTC_USDT_USDT",
		"BTC/USDT",
		"BTC:USDT",
		"BTC_USDT",
		"btc/usdt",
		"ETH/USDT:USDT",
		"1000PEPE/USDT:USDT",
	}
	seen := make(map[string]string, len(universe))
	for _, sym := range universe {
		safe := SafeSymbol(sym)
		if prev, ok := seen[safe]; ok {
			t.Errorf("collision: %q and %q both map to %q", prev, sym, safe)
		}
		seen[safe] = sym
	}
}
