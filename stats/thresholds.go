package stats

import "fmt"

// Thresholds are the pass marks a strategy must clear before it is trusted.
type Thresholds struct {
	MinTrades            int     `json:"min_trades" yaml:"min_trades"`
	MinSharpe            float64 `json:"min_sharpe" yaml:"min_sharpe"`
	MinProfitFactor      float64 `json:"min_profit_factor" yaml:"min_profit_factor"`
	MaxDrawdown          float64 `json:"max_drawdown" yaml:"max_drawdown"`
	MinWinRate           float64 `json:"min_win_rate" yaml:"min_win_rate"`
	MinExpectancy        float64 `json:"min_expectancy" yaml:"min_expectancy"`
	MaxRuinPct           float64 `json:"max_ruin_pct" yaml:"max_ruin_pct"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTrades:            200,
		MinSharpe:            1.0,
		MinProfitFactor:      1.3,
		MaxDrawdown:          0.30,
		MinWinRate:           0.35,
		MinExpectancy:        0,
		MaxRuinPct:           0.05,
		MaxConsecutiveLosses: 40,
	}
}

// Check is one line of the verdict.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Verdict grades metrics and an optional resampling result against th.
func Verdict(m Metrics, mc *MCResult, th Thresholds) (checks []Check, passed bool) {
	add := func(name string, ok bool, format string, args ...any) {
		checks = append(checks, Check{Name: name, Passed: ok, Detail: fmt.Sprintf(format, args...)})
	}
	add("trades", m.TotalTrades >= th.MinTrades, "%d >= %d", m.TotalTrades, th.MinTrades)
	add("sharpe", m.Sharpe >= th.MinSharpe, "%.2f >= %.2f", m.Sharpe, th.MinSharpe)
	add("profit_factor", m.ProfitFactor >= th.MinProfitFactor, "%.2f >= %.2f", m.ProfitFactor, th.MinProfitFactor)
	add("max_drawdown", m.MaxDrawdown.Pct <= th.MaxDrawdown, "%.2f%% <= %.2f%%", m.MaxDrawdown.Pct*100, th.MaxDrawdown*100)
	add("win_rate", m.WinRate >= th.MinWinRate, "%.2f%% >= %.2f%%", m.WinRate*100, th.MinWinRate*100)
	add("expectancy", m.ExpectancyR > th.MinExpectancy, "%.3fR > %.3fR", m.ExpectancyR, th.MinExpectancy)
	add("consecutive_losses", m.MaxConsecutiveLosses <= th.MaxConsecutiveLosses,
		"%d <= %d", m.MaxConsecutiveLosses, th.MaxConsecutiveLosses)
	if mc != nil {
		add("ruin", mc.RuinPct <= th.MaxRuinPct, "%.2f%% <= %.2f%%", mc.RuinPct*100, th.MaxRuinPct*100)
	}

	passed = true
	for _, c := range checks {
		passed = passed && c.Passed
	}
	return checks, passed
}
