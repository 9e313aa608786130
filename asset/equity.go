package asset

import (
	"math"

	"github.com/rustyeddy/paperfund/market"
)

// Stocks sizes in whole shares.
type Stocks struct{}

func (Stocks) Class() market.AssetClass { return market.Stocks }

func (Stocks) PositionSize(balance, riskPct, stopDistance, _ float64, _ market.AssetConfig, _ Rates) float64 {
	dist := math.Abs(stopDistance)
	if balance <= 0 || riskPct <= 0 || dist == 0 {
		return 0
	}
	return math.Round(balance * riskPct / dist)
}

func (Stocks) PnL(dir market.Direction, entry, exit, size float64, _ market.AssetConfig, spread Costs, _ Rates) float64 {
	entry, exit = adjust(dir, entry, exit, spread.Stocks/2)
	return (exit - entry) * dir.Sign() * size
}

func (Stocks) RiskAmount(_, stopDistance, size float64, _ market.AssetConfig, _ Rates) float64 {
	return math.Abs(stopDistance) * size
}

// StopBuffer is 0.5% of price with a 50 cent floor.
func (Stocks) StopBuffer(price float64, _ market.AssetConfig) float64 {
	return math.Max(0.50, price*0.005)
}

func (Stocks) Slippage(_ float64, slip Costs) float64 { return slip.Stocks }

func (Stocks) WeekendClose() bool { return false }
