package asset

import (
	"math"

	"github.com/rustyeddy/paperfund/market"
)

// Forex sizes in units of base currency and prices P&L in pips.
type Forex struct{}

func (Forex) Class() market.AssetClass { return market.Forex }

// PipValue is the USD value of one pip on one standard lot.
//
// USD-quoted pairs are a flat $10. Other pairs convert through the USD<quote>
// cross rate. Without one, the pair's own price stands in for the cross rate,
// which is only exact for USD-based pairs.
func PipValue(cfg market.AssetConfig, price float64, rates Rates) float64 {
	pip := cfg.Pip()
	quote := cfg.Quote()
	if quote == "USD" {
		return 10
	}
	if r, ok := rates["USD"+quote]; ok && r > 0 {
		return pip / r * StandardLot
	}
	if price <= 0 {
		return 10
	}
	return pip / price * StandardLot
}

func (Forex) PositionSize(balance, riskPct, stopDistance, price float64, cfg market.AssetConfig, rates Rates) float64 {
	if balance <= 0 || riskPct <= 0 {
		return 0
	}
	stopPips := math.Abs(stopDistance) / cfg.Pip()
	if stopPips == 0 {
		return 0
	}
	pv := PipValue(cfg, price, rates)
	lots := balance * riskPct / (stopPips * pv)
	return math.Round(lots * StandardLot)
}

func (Forex) PnL(dir market.Direction, entry, exit, size float64, cfg market.AssetConfig, spread Costs, rates Rates) float64 {
	entry, exit = adjust(dir, entry, exit, spread.Forex/2)
	pips := (exit - entry) * dir.Sign() / cfg.Pip()
	return pips * (size / StandardLot) * PipValue(cfg, exit, rates)
}

func (Forex) RiskAmount(entry, stopDistance, size float64, cfg market.AssetConfig, rates Rates) float64 {
	pips := math.Abs(stopDistance) / cfg.Pip()
	return pips * (size / StandardLot) * PipValue(cfg, entry, rates)
}

func (Forex) StopBuffer(_ float64, cfg market.AssetConfig) float64 { return 5 * cfg.Pip() }

func (Forex) Slippage(_ float64, slip Costs) float64 { return slip.Forex }

func (Forex) WeekendClose() bool { return true }

// NotionalUSD is the dollar value of size units of the pair's base currency.
func NotionalUSD(cfg market.AssetConfig, size, price float64, rates Rates) float64 {
	switch {
	case cfg.Base() == "USD":
		return size
	case cfg.Quote() == "USD":
		return size * price
	}
	if r, ok := rates["USD"+cfg.Quote()]; ok && r > 0 {
		return size * price / r
	}
	return size
}
