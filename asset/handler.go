// Package asset holds the per-class rules for sizing, P&L and stop buffers.
package asset

import (
	"fmt"
	"math"

	"github.com/rustyeddy/paperfund/market"
)

// StandardLot is the number of units in one forex lot.
const StandardLot = 100_000

// Costs holds a spread or slippage table. Forex and Stocks are absolute price
// amounts; CryptoPct is a fraction of price.
type Costs struct {
	Forex     float64 `json:"forex" yaml:"forex"`
	Stocks    float64 `json:"stocks" yaml:"stocks"`
	CryptoPct float64 `json:"crypto_pct" yaml:"crypto_pct"`
}

// Rates maps a USD-based pair such as "USDJPY" to its latest close.
type Rates map[string]float64

// Handler implements the money math for one asset class.
type Handler interface {
	Class() market.AssetClass

	// PositionSize returns units so that a stop hit loses balance*riskPct.
	// Zero means no trade.
	PositionSize(balance, riskPct, stopDistance, price float64, cfg market.AssetConfig, rates Rates) float64

	// PnL is the realised profit of a round trip after half the spread is charged on each side.
	PnL(dir market.Direction, entry, exit, size float64, cfg market.AssetConfig, spread Costs, rates Rates) float64

	// RiskAmount is the dollar loss if price moves stopDistance against size.
	RiskAmount(entry, stopDistance, size float64, cfg market.AssetConfig, rates Rates) float64

	// StopBuffer is the padding placed beyond a structural level.
	StopBuffer(price float64, cfg market.AssetConfig) float64

	// Slippage is the adverse fill offset at price.
	Slippage(price float64, slip Costs) float64

	// WeekendClose reports whether open positions are flattened on Friday.
	WeekendClose() bool
}

var handlers = map[market.AssetClass]Handler{
	market.Forex:  Forex{},
	market.Stocks: Stocks{},
	market.Crypto: Crypto{},
}

// For returns the handler for class.
func For(class market.AssetClass) (Handler, error) {
	h, ok := handlers[class]
	if !ok {
		return nil, fmt.Errorf("no handler for asset class %q", class)
	}
	return h, nil
}

// MustFor is For for classes that came from a validated watchlist.
func MustFor(class market.AssetClass) Handler {
	h, err := For(class)
	if err != nil {
		panic(err)
	}
	return h
}

// adjust applies a half spread against the trader on entry and exit.
func adjust(dir market.Direction, entry, exit, half float64) (float64, float64) {
	if dir == market.Long {
		return entry + half, exit - half
	}
	return entry - half, exit + half
}

func roundTo(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
