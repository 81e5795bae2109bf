package pipeline

import (
	"time"

	"github.com/JonMunkholm/tickfeed/internal/core"
)

// SymbolFilter accepts records whose symbol is one of symbols.
func SymbolFilter(symbols []string) core.Filter {
	allowed := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		allowed[sym] = true
	}
	return func(_ time.Time, symbol string, _ map[core.Field]float64) bool {
		return allowed[symbol]
	}
}

// WindowFilter accepts records stamped within [from, to). A zero bound is
// open.
func WindowFilter(from, to time.Time) core.Filter {
	return func(ts time.Time, _ string, _ map[core.Field]float64) bool {
		if !from.IsZero() && ts.Before(from) {
			return false
		}
		if !to.IsZero() && !ts.Before(to) {
			return false
		}
		return true
	}
}
