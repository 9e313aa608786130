// Package stats computes performance and robustness statistics from trades and equity curves.
// Every function is pure and keeps full float precision; rounding belongs to reports.
package stats

import (
	"math"
	"time"

	"github.com/rustyeddy/paperfund/trade"
)

// TradingDays annualises daily ratios.
const TradingDays = 252

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// stdev is the sample standard deviation.
func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// WinRate is the fraction of trades with positive P&L.
func WinRate(ts []trade.Trade) float64 {
	if len(ts) == 0 {
		return 0
	}
	n := 0
	for _, t := range ts {
		if t.Win() {
			n++
		}
	}
	return float64(n) / float64(len(ts))
}

// Expectancy in R: win_rate*avg_win_R - loss_rate*avg_loss_R. Break-even trades count as losses.
func Expectancy(ts []trade.Trade) float64 {
	if len(ts) == 0 {
		return 0
	}
	var wins, losses []float64
	for _, t := range ts {
		if t.Win() {
			wins = append(wins, t.RMultiple())
		} else {
			losses = append(losses, math.Abs(t.RMultiple()))
		}
	}
	n := float64(len(ts))
	return float64(len(wins))/n*mean(wins) - float64(len(losses))/n*mean(losses)
}

// ExpectancyDollars is the mean P&L per trade.
func ExpectancyDollars(ts []trade.Trade) float64 {
	if len(ts) == 0 {
		return 0
	}
	return trade.TotalPnL(ts) / float64(len(ts))
}

// ProfitFactor is gross win over gross loss; +Inf with wins and no losses, 0 with neither.
func ProfitFactor(ts []trade.Trade) float64 {
	var win, loss float64
	for _, t := range ts {
		if t.Win() {
			win += t.PnL
		} else {
			loss += t.PnL
		}
	}
	loss = math.Abs(loss)
	if loss == 0 {
		if win > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return win / loss
}

// AvgR is the mean R-multiple.
func AvgR(ts []trade.Trade) float64 {
	rs := make([]float64, len(ts))
	for i, t := range ts {
		rs[i] = t.RMultiple()
	}
	return mean(rs)
}

// Streaks returns the longest runs of wins and of losses.
func Streaks(ts []trade.Trade) (maxWins, maxLosses int) {
	pnls := make([]float64, len(ts))
	for i, t := range ts {
		pnls[i] = t.PnL
	}
	return streaks(pnls)
}

func streaks(pnls []float64) (maxWins, maxLosses int) {
	var w, l int
	for _, p := range pnls {
		if p > 0 {
			w++
			l = 0
		} else {
			l++
			w = 0
		}
		maxWins = max(maxWins, w)
		maxLosses = max(maxLosses, l)
	}
	return maxWins, maxLosses
}

// DailyReturns are simple returns between consecutive points; 0 where the prior balance is not positive.
func DailyReturns(curve []trade.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Balance
		if prev > 0 {
			out = append(out, (curve[i].Balance-prev)/prev)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

func excess(curve []trade.EquityPoint, riskFree float64) []float64 {
	rs := DailyReturns(curve)
	rf := riskFree / TradingDays
	for i := range rs {
		rs[i] -= rf
	}
	return rs
}

// Sharpe is the annualised mean excess daily return over its sample stdev.
func Sharpe(curve []trade.EquityPoint, riskFree float64) float64 {
	ex := excess(curve, riskFree)
	if len(ex) < 2 {
		return 0
	}
	sd := stdev(ex)
	if sd == 0 {
		return 0
	}
	return mean(ex) / sd * math.Sqrt(TradingDays)
}

// Sortino divides by downside deviation only. A curve with no losing days
// and a positive mean returns +Inf.
func Sortino(curve []trade.EquityPoint, riskFree float64) float64 {
	ex := excess(curve, riskFree)
	if len(ex) < 2 || stdev(ex) == 0 {
		return 0
	}
	var sq []float64
	for _, r := range ex {
		if r < 0 {
			sq = append(sq, r*r)
		}
	}
	m := mean(ex)
	if len(sq) == 0 {
		if m > 0 {
			return math.Inf(1)
		}
		return 0
	}
	dd := math.Sqrt(mean(sq))
	if dd == 0 {
		return 0
	}
	return m / dd * math.Sqrt(TradingDays)
}

// Drawdown is the worst peak-to-trough decline of a curve.
type Drawdown struct {
	Pct    float64
	Dollar float64
	Peak   time.Time
	Trough time.Time
}

// MaxDrawdown makes one forward pass tracking the running peak. A new peak
// is taken on equality so the peak date is the latest high.
func MaxDrawdown(curve []trade.EquityPoint) Drawdown {
	var dd Drawdown
	if len(curve) == 0 {
		return dd
	}
	peak, peakDate := curve[0].Balance, curve[0].Date
	for _, p := range curve {
		if p.Balance >= peak {
			peak, peakDate = p.Balance, p.Date
		}
		pct := 0.0
		if peak > 0 {
			pct = (peak - p.Balance) / peak
		}
		if pct > dd.Pct {
			dd = Drawdown{Pct: pct, Dollar: peak - p.Balance, Peak: peakDate, Trough: p.Date}
		}
	}
	return dd
}

func years(curve []trade.EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	days := math.Floor(curve[len(curve)-1].Date.Sub(curve[0].Date).Hours() / 24)
	return days / 365.25
}

// CAGR over the calendar span of the curve, starting from initial.
func CAGR(curve []trade.EquityPoint, initial float64) float64 {
	y := years(curve)
	final := 0.0
	if len(curve) > 0 {
		final = curve[len(curve)-1].Balance
	}
	if y <= 0 || initial <= 0 || final <= 0 {
		return 0
	}
	return math.Pow(final/initial, 1/y) - 1
}

// Calmar is CAGR over max drawdown; +Inf when growing without drawdown.
func Calmar(curve []trade.EquityPoint, initial float64) float64 {
	if years(curve) <= 0 {
		return 0
	}
	cagr := CAGR(curve, initial)
	dd := MaxDrawdown(curve).Pct
	if dd == 0 {
		if cagr > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return cagr / dd
}

// Metrics is the full bundle for one run.
type Metrics struct {
	TotalTrades          int
	WinRate              float64
	ExpectancyR          float64
	ExpectancyDollars    float64
	ProfitFactor         float64
	Sharpe               float64
	Sortino              float64
	Calmar               float64
	CAGR                 float64
	MaxDrawdown          Drawdown
	AvgR                 float64
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AvgWin               float64
	AvgLoss              float64
	InitialBalance       float64
	FinalBalance         float64
}

// ComputeAll runs every trade and curve statistic with a zero risk-free rate.
func ComputeAll(ts []trade.Trade, curve []trade.EquityPoint, initial float64) Metrics {
	var wins, losses []float64
	for _, t := range ts {
		if t.Win() {
			wins = append(wins, t.PnL)
		} else {
			losses = append(losses, t.PnL)
		}
	}
	w, l := Streaks(ts)
	final := initial
	if len(curve) > 0 {
		final = curve[len(curve)-1].Balance
	}
	return Metrics{
		TotalTrades:          len(ts),
		WinRate:              WinRate(ts),
		ExpectancyR:          Expectancy(ts),
		ExpectancyDollars:    ExpectancyDollars(ts),
		ProfitFactor:         ProfitFactor(ts),
		Sharpe:               Sharpe(curve, 0),
		Sortino:              Sortino(curve, 0),
		Calmar:               Calmar(curve, initial),
		CAGR:                 CAGR(curve, initial),
		MaxDrawdown:          MaxDrawdown(curve),
		AvgR:                 AvgR(ts),
		MaxConsecutiveWins:   w,
		MaxConsecutiveLosses: l,
		AvgWin:               mean(wins),
		AvgLoss:              mean(losses),
		InitialBalance:       initial,
		FinalBalance:         final,
	}
}
