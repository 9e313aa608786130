package risk

import (
	"fmt"

	"github.com/rustyeddy/paperfund/asset"
	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/signals"
)

// Limits caps open positions per class and overall.
type Limits struct {
	Forex  int `json:"forex" yaml:"forex"`
	Stocks int `json:"stocks" yaml:"stocks"`
	Crypto int `json:"crypto" yaml:"crypto"`
	Global int `json:"global" yaml:"global"`
}

// For returns the cap for class.
func (l Limits) For(class market.AssetClass) int {
	switch class {
	case market.Forex:
		return l.Forex
	case market.Stocks:
		return l.Stocks
	case market.Crypto:
		return l.Crypto
	}
	return 0
}

type Correlation struct {
	Enabled              bool `json:"enabled" yaml:"enabled"`
	ForexMaxSameCurrency int  `json:"forex_max_same_currency" yaml:"forex_max_same_currency"`
	StockMaxSameGroup    int  `json:"stock_max_same_group" yaml:"stock_max_same_group"`
}

// TrailingStop ratchets the stop once price has moved ActivationRR initial risks in favour.
type TrailingStop struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	ActivationRR  float64 `json:"activation_rr" yaml:"activation_rr"`
	ATRMultiplier float64 `json:"atr_multiplier" yaml:"atr_multiplier"`
}

// EquityCurveFilter lowers the global position cap while recent trades net negative.
type EquityCurveFilter struct {
	Enabled             bool `json:"enabled" yaml:"enabled"`
	LookbackTrades      int  `json:"lookback_trades" yaml:"lookback_trades"`
	ReducedMaxPositions int  `json:"reduced_max_positions" yaml:"reduced_max_positions"`
}

// RegimeSizing scales position size by market regime. A multiplier <= 0 blocks entries.
type RegimeSizing struct {
	Enabled     bool               `json:"enabled" yaml:"enabled"`
	Multipliers map[string]float64 `json:"multipliers,omitempty" yaml:"multipliers,omitempty"`
}

// Rules is the read-only policy for one fund or one backtest run.
// Pass it by value; Multipliers must not be mutated after construction.
type Rules struct {
	MaxRisk      float64 `json:"max_risk" yaml:"max_risk"`
	RRRatio      float64 `json:"rr_ratio" yaml:"rr_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown" yaml:"max_drawdown"`
	MaxLeverage  float64 `json:"max_leverage" yaml:"max_leverage"`
	MaxPositions Limits  `json:"max_positions" yaml:"max_positions"`

	Spread   asset.Costs `json:"spread" yaml:"spread"`
	Slippage asset.Costs `json:"slippage" yaml:"slippage"`

	Correlation       Correlation       `json:"correlation" yaml:"correlation"`
	TrailingStop      TrailingStop      `json:"trailing_stop" yaml:"trailing_stop"`
	ATRStops          signals.ATRStops  `json:"atr_stops" yaml:"atr_stops"`
	EquityCurveFilter EquityCurveFilter `json:"equity_curve_filter" yaml:"equity_curve_filter"`
	RegimeSizing      RegimeSizing      `json:"regime_sizing" yaml:"regime_sizing"`

	FractalWindow   int `json:"fractal_window,omitempty" yaml:"fractal_window,omitempty"`
	FractalLookback int `json:"fractal_lookback,omitempty" yaml:"fractal_lookback,omitempty"`
	MaxFractalAge   int `json:"max_fractal_age,omitempty" yaml:"max_fractal_age,omitempty"`
	TrendLookback   int `json:"trend_lookback,omitempty" yaml:"trend_lookback,omitempty"`
}

// DefaultRules is the main fund policy.
func DefaultRules() Rules {
	return Rules{
		MaxRisk:      0.02,
		RRRatio:      1.5,
		MaxDrawdown:  0.50,
		MaxLeverage:  5,
		MaxPositions: Limits{Forex: 2, Stocks: 2, Crypto: 1, Global: 3},
		Spread:       asset.Costs{Forex: 0.00015, Stocks: 0.02, CryptoPct: 0.0015},
		Slippage:     asset.Costs{Forex: 0.00005, Stocks: 0.01, CryptoPct: 0.0005},
		Correlation:  Correlation{Enabled: false, ForexMaxSameCurrency: 1, StockMaxSameGroup: 1},
		EquityCurveFilter: EquityCurveFilter{
			LookbackTrades: 10, ReducedMaxPositions: 3,
		},
		TrendLookback: signals.DefaultTrendLookback,
	}
}

// FractalRules is the fractal fund policy.
func FractalRules() Rules {
	r := DefaultRules()
	r.RRRatio = 2.0
	r.MaxDrawdown = 0.30
	r.MaxPositions = Limits{Forex: 2, Stocks: 3, Crypto: 1, Global: 5}
	r.TrailingStop = TrailingStop{Enabled: true, ActivationRR: 1.0, ATRMultiplier: 2.0}
	r.ATRStops = signals.ATRStops{Enabled: true, Multiplier: 1.5}
	r.FractalWindow = signals.DefaultFractalWindow
	r.FractalLookback = signals.DefaultFractalLookback
	r.MaxFractalAge = signals.DefaultMaxFractalAge
	r.Correlation = Correlation{Enabled: true, ForexMaxSameCurrency: 1, StockMaxSameGroup: 1}
	return r
}

// SignalParams projects the detector settings.
func (r Rules) SignalParams() signals.Params {
	return signals.Params{
		RRRatio:         r.RRRatio,
		FractalWindow:   r.FractalWindow,
		FractalLookback: r.FractalLookback,
		MaxFractalAge:   r.MaxFractalAge,
		TrendLookback:   r.TrendLookback,
		ATRStops:        r.ATRStops,
	}
}

// Validate rejects rules that would make sizing or limits meaningless.
func (r Rules) Validate() error {
	if r.MaxRisk <= 0 || r.MaxRisk > 1 {
		return fmt.Errorf("max_risk must be in (0, 1], got %g", r.MaxRisk)
	}
	if r.RRRatio <= 0 {
		return fmt.Errorf("rr_ratio must be positive, got %g", r.RRRatio)
	}
	if r.MaxDrawdown <= 0 || r.MaxDrawdown > 1 {
		return fmt.Errorf("max_drawdown must be in (0, 1], got %g", r.MaxDrawdown)
	}
	if r.MaxLeverage <= 0 {
		return fmt.Errorf("max_leverage must be positive, got %g", r.MaxLeverage)
	}
	if r.MaxPositions.Global <= 0 {
		return fmt.Errorf("max_positions.global must be positive")
	}
	for _, c := range []asset.Costs{r.Spread, r.Slippage} {
		if c.Forex < 0 || c.Stocks < 0 || c.CryptoPct < 0 {
			return fmt.Errorf("spread and slippage must be non-negative")
		}
	}
	if r.TrailingStop.Enabled && (r.TrailingStop.ATRMultiplier <= 0 || r.TrailingStop.ActivationRR < 0) {
		return fmt.Errorf("trailing_stop needs atr_multiplier > 0 and activation_rr >= 0")
	}
	return nil
}
