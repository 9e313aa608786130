package risk

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/paperfund/market"
)

type Violation struct {
	Code string
	Msg  string
}

// Decision is the outcome of a pre-trade gate. A rejection is a value, not an error.
type Decision struct {
	Allowed    bool
	Violations []Violation
}

func allow() Decision { return Decision{Allowed: true} }

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reason joins violation messages.
func (d Decision) Reason() string {
	if d.Allowed {
		return "ok"
	}
	msgs := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		msgs[i] = v.Msg
	}
	return strings.Join(msgs, "; ")
}

// Position is the slice of an open trade the gates look at.
type Position struct {
	Class     market.AssetClass
	Symbol    string
	Direction market.Direction
}

type exposure struct {
	ccy  string
	side string
}

func legs(cfg market.AssetConfig, dir market.Direction) [2]exposure {
	if dir == market.Long {
		return [2]exposure{{cfg.Base(), "long"}, {cfg.Quote(), "short"}}
	}
	return [2]exposure{{cfg.Base(), "short"}, {cfg.Quote(), "long"}}
}

func configFor(w market.Watchlist, class market.AssetClass, symbol string) market.AssetConfig {
	if c, ok := w.Lookup(class, symbol); ok {
		return c
	}
	return market.AssetConfig{Symbol: symbol, Class: class}
}

// CheckCorrelation blocks a trade that would stack exposure to one currency
// side (forex) or one sector group (stocks). Crypto always passes.
func CheckCorrelation(class market.AssetClass, symbol string, dir market.Direction,
	cfg market.AssetConfig, open []Position, r Rules, w market.Watchlist) Decision {

	d := allow()
	if !r.Correlation.Enabled {
		return d
	}

	switch class {
	case market.Forex:
		limit := r.Correlation.ForexMaxSameCurrency
		if limit <= 0 {
			limit = 1
		}
		if cfg.Symbol == "" {
			cfg.Symbol = symbol
		}
		counts := map[exposure]int{}
		for _, p := range open {
			if p.Class != market.Forex {
				continue
			}
			for _, e := range legs(configFor(w, market.Forex, p.Symbol), p.Direction) {
				counts[e]++
			}
		}
		for _, e := range legs(cfg, dir) {
			if n := counts[e]; n >= limit {
				d.add("CORRELATED_CURRENCY", fmt.Sprintf("%s %s (%d > %d)", e.side, e.ccy, n+1, limit))
				return d
			}
		}

	case market.Stocks:
		if cfg.Group == "" {
			return d
		}
		limit := r.Correlation.StockMaxSameGroup
		if limit <= 0 {
			limit = 1
		}
		n := 0
		for _, p := range open {
			if p.Class != market.Stocks {
				continue
			}
			if configFor(w, market.Stocks, p.Symbol).Group == cfg.Group {
				n++
			}
		}
		if n >= limit {
			d.add("CORRELATED_GROUP", fmt.Sprintf("%s (%d > %d)", cfg.Group, n+1, limit))
		}
	}
	return d
}

// CheckLimits applies the global cap, the per-class cap and one position per symbol.
// maxGlobal is passed separately because the equity curve filter can lower it.
func CheckLimits(class market.AssetClass, symbol string, open []Position, maxGlobal int, r Rules) Decision {
	d := allow()
	if len(open) >= maxGlobal {
		d.add("MAX_GLOBAL", fmt.Sprintf("open positions %d >= max %d", len(open), maxGlobal))
	}
	n := 0
	for _, p := range open {
		if p.Class == class {
			n++
		}
		if p.Class == class && strings.EqualFold(p.Symbol, symbol) {
			d.add("ALREADY_OPEN", fmt.Sprintf("%s already open", symbol))
		}
	}
	if limit := r.MaxPositions.For(class); n >= limit {
		d.add("MAX_CLASS", fmt.Sprintf("%s positions %d >= max %d", class, n, limit))
	}
	return d
}

// Drawdown is the fractional decline from peak. Zero when peak is not positive.
func Drawdown(peak, balance float64) float64 {
	if peak <= 0 {
		return 0
	}
	return (peak - balance) / peak
}

// Halted reports whether the drawdown circuit breaker is tripped.
func Halted(peak, balance float64, r Rules) bool {
	return Drawdown(peak, balance) > r.MaxDrawdown
}
