package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidInterval  = errors.New("invalid interval token")
	ErrInvalidTimeframe = errors.New("invalid timeframe list")
)

// Throttle is the minimum spacing between successive fetch cycles for a
// channel. The zero value means realtime: the blocking fetch itself paces
// the loop and no extra delay is inserted.
type Throttle struct {
	Period time.Duration
}

func (t Throttle) Realtime() bool { return t.Period == 0 }

// ParseInterval parses a throttle token: "realtime", or "<N><unit>" with
// unit s, m or h and N a positive integer. Anything else fails with
// ErrInvalidInterval.
func ParseInterval(token string) (Throttle, error) {
	token = strings.TrimSpace(token)
	if token == "realtime" {
		return Throttle{}, nil
	}
	if len(token) < 2 {
		return Throttle{}, fmt.Errorf("%w: %q", ErrInvalidInterval, token)
	}

	var unit time.Duration
	switch token[len(token)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	default:
		return Throttle{}, fmt.Errorf("%w: %q: unknown unit", ErrInvalidInterval, token)
	}

	n, err := strconv.Atoi(token[:len(token)-1])
	if err != nil {
		return Throttle{}, fmt.Errorf("%w: %q: non-numeric count", ErrInvalidInterval, token)
	}
	if n <= 0 {
		return Throttle{}, fmt.Errorf("%w: %q: count must be positive", ErrInvalidInterval, token)
	}
	return Throttle{Period: time.Duration(n) * unit}, nil
}

// ParseTimeframes splits a comma-separated timeframe list ("1m,5m,15m,1h"),
// trimming whitespace around entries. Empty entries and empty lists fail
// with ErrInvalidTimeframe.
func ParseTimeframes(token string) ([]string, error) {
	parts := strings.Split(token, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("%w: %q: empty entry", ErrInvalidTimeframe, token)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimeframe, token)
	}
	return out, nil
}
