package bybit

import (
	"fmt"
	"strings"
)

// MarketID converts a unified symbol ("BTC/USDT:USDT") into Bybit's market
// id ("BTCUSDT").
func MarketID(symbol string) string {
	s := symbol
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "/", "")
	return strings.ToUpper(strings.TrimSpace(s))
}

// klineInterval maps a unified timeframe to Bybit's v5 kline interval.
func klineInterval(timeframe string) (string, error) {
	switch timeframe {
	case "1m":
		return "1", nil
	case "3m":
		return "3", nil
	case "5m":
		return "5", nil
	case "15m":
		return "15", nil
	case "30m":
		return "30", nil
	case "1h":
		return "60", nil
	case "2h":
		return "120", nil
	case "4h":
		return "240", nil
	case "6h":
		return "360", nil
	case "12h":
		return "720", nil
	case "1d":
		return "D", nil
	case "1w":
		return "W", nil
	default:
		return "", fmt.Errorf("bybit: unsupported timeframe %q", timeframe)
	}
}
