package sqlite

import (
	"fmt"
	"strings"
)

// SafeSymbol maps a trading symbol to a filesystem-safe identifier. Bytes
// outside [A-Za-z0-9.-] are escaped as "_XX" (uppercase hex). '_' itself is
// escaped too, so the mapping is injective: two distinct symbols can never
// share a database file.
func SafeSymbol(symbol string) string {
	var b strings.Builder
	b.Grow(len(symbol))
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02X", c)
		}
	}
	return b.String()
}
