package risk

import (
	"math"

	"github.com/rustyeddy/paperfund/market"
)

// CapLeverage shrinks size so its USD notional stays within balance*maxLeverage.
// Forex and stocks floor to whole units, crypto to 8 decimals. Zero means skip.
func CapLeverage(class market.AssetClass, size, notional, balance, maxLeverage float64) float64 {
	if maxLeverage <= 0 || notional <= 0 {
		return size
	}
	limit := balance * maxLeverage
	if notional <= limit {
		return size
	}
	capped := size * limit / notional
	if class == market.Crypto {
		return math.Floor(capped*1e8) / 1e8
	}
	return math.Floor(capped)
}

// RR is reward over risk for a planned trade.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}
