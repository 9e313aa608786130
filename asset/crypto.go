package asset

import (
	"math"

	"github.com/rustyeddy/paperfund/market"
)

// Crypto sizes fractionally to 8 decimal places and charges costs as a percentage.
type Crypto struct{}

func (Crypto) Class() market.AssetClass { return market.Crypto }

func (Crypto) PositionSize(balance, riskPct, stopDistance, _ float64, _ market.AssetConfig, _ Rates) float64 {
	dist := math.Abs(stopDistance)
	if balance <= 0 || riskPct <= 0 || dist == 0 {
		return 0
	}
	return roundTo(balance*riskPct/dist, 8)
}

func (Crypto) PnL(dir market.Direction, entry, exit, size float64, _ market.AssetConfig, spread Costs, _ Rates) float64 {
	hp := spread.CryptoPct / 2
	if dir == market.Long {
		entry, exit = entry*(1+hp), exit*(1-hp)
	} else {
		entry, exit = entry*(1-hp), exit*(1+hp)
	}
	return (exit - entry) * dir.Sign() * size
}

func (Crypto) RiskAmount(_, stopDistance, size float64, _ market.AssetConfig, _ Rates) float64 {
	return math.Abs(stopDistance) * size
}

func (Crypto) StopBuffer(price float64, _ market.AssetConfig) float64 { return price * 0.01 }

func (Crypto) Slippage(price float64, slip Costs) float64 { return price * slip.CryptoPct }

func (Crypto) WeekendClose() bool { return false }
