package fund

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rustyeddy/paperfund/asset"
	"github.com/rustyeddy/paperfund/indicators"
	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/risk"
	"github.com/rustyeddy/paperfund/signals"
	"github.com/rustyeddy/paperfund/stats"
	"github.com/rustyeddy/paperfund/trade"
)

// Candidate is a signal waiting for the risk gates.
type Candidate struct {
	Config market.AssetConfig
	Signal signals.Signal
	ATR    float64
	Regime stats.Regime
	// Bar is the date of the newest candle the signal saw.
	Bar time.Time
}

// DayInput is everything Step needs to know about one trading day.
// Bars holds the day's candle for each instrument that traded.
type DayInput struct {
	Date       time.Time
	Bars       map[market.Key]market.Candle
	Candidates []Candidate
	Rates      asset.Rates
}

// Skip records a candidate that was not opened.
type Skip struct {
	Key    market.Key
	Code   string
	Reason string
}

type StepResult struct {
	Date    time.Time
	Closed  []trade.Trade
	Opened  []trade.Trade
	Skipped []Skip
	Halted  bool
	Equity  trade.EquityPoint
}

// Candidates runs gen over each asset's history in watchlist order. Histories
// shorter than minBars are ignored. Regimes are only classified when regime sizing is on.
func Candidates(gen signals.Generator, r risk.Rules, assets []market.AssetConfig,
	history map[market.Key][]market.Candle, minBars int) []Candidate {

	p := r.SignalParams()
	var out []Candidate
	for _, a := range assets {
		cs := history[a.Key()]
		if len(cs) == 0 || len(cs) < minBars {
			continue
		}
		sig, ok := gen.Generate(a, cs, p)
		if !ok {
			continue
		}
		c := Candidate{Config: a, Signal: sig, Regime: stats.Unknown, Bar: market.Day(cs[len(cs)-1].Date)}
		if atr, err := indicators.ATR(cs, signals.ATRPeriod); err == nil {
			c.ATR = atr
		}
		if r.RegimeSizing.Enabled {
			c.Regime = stats.ClassifyRegime(cs, stats.RegimeLookback)
		}
		out = append(out, c)
	}
	return out
}

// CrossRates collects USD-based forex closes (USDJPY, USDCHF, ...) for pip conversion.
func CrossRates(bars map[market.Key]market.Candle) asset.Rates {
	rates := asset.Rates{}
	for k, c := range bars {
		s := strings.ToUpper(k.Symbol)
		if k.Class == market.Forex && len(s) == 6 && strings.HasPrefix(s, "USD") && c.Close > 0 {
			rates[s] = c.Close
		}
	}
	return rates
}

// EffectiveMaxPositions applies the equity curve filter to the global cap.
func EffectiveMaxPositions(st *State, r risk.Rules) int {
	limit := r.MaxPositions.Global
	f := r.EquityCurveFilter
	if !f.Enabled || f.LookbackTrades <= 0 || len(st.Closed) < f.LookbackTrades {
		return limit
	}
	if trade.TotalPnL(st.Closed[len(st.Closed)-f.LookbackTrades:]) < 0 {
		return min(limit, f.ReducedMaxPositions)
	}
	return limit
}

// RegimeMultiplier is the size scale for regime. Unlisted regimes size at 1.
func RegimeMultiplier(r risk.Rules, regime stats.Regime) float64 {
	if !r.RegimeSizing.Enabled {
		return 1
	}
	if m, ok := r.RegimeSizing.Multipliers[string(regime)]; ok {
		return m
	}
	return 1
}

// scaleSize applies a regime multiplier to a base size. The result rounds to
// the nearest unit (1e-8 for crypto) and never drops below one unit, so a
// tradeable position is shrunk rather than skipped.
func scaleSize(class market.AssetClass, size, mult float64) float64 {
	if size <= 0 {
		return size
	}
	unit := 1.0
	if class == market.Crypto {
		unit = 1e-8
	}
	return max(unit, math.Round(size*mult/unit)*unit)
}

func notional(cfg market.AssetConfig, size, price float64, rates asset.Rates) float64 {
	if cfg.Class == market.Forex {
		return asset.NotionalUSD(cfg, size, price, rates)
	}
	return size * price
}

// OpenTrade fills a candidate at its signal price less slippage and appends it
// to the open list. Slippage moves the entry against the trade and widens the
// stop by the same amount; the target is kept. ok is false with a Skip when the
// trade cannot be sized.
func OpenTrade(st *State, r risk.Rules, c Candidate, day time.Time, mult float64,
	rates asset.Rates) (trade.Trade, Skip, bool) {

	cfg := c.Config
	h := asset.MustFor(cfg.Class)
	sig := c.Signal
	sign := sig.Direction.Sign()

	slip := h.Slippage(sig.Entry, r.Slippage)
	entry := sig.Entry + sign*slip
	stop := sig.StopLoss - sign*slip
	dist := (entry - stop) * sign
	if dist <= 0 {
		return trade.Trade{}, Skip{cfg.Key(), "BAD_STOP", "stop on wrong side of entry"}, false
	}

	size := h.PositionSize(st.Balance, r.MaxRisk, dist, entry, cfg, rates)
	if mult != 1 {
		size = scaleSize(cfg.Class, size, mult)
	}
	size = risk.CapLeverage(cfg.Class, size, notional(cfg, size, entry, rates), st.Balance, r.MaxLeverage)
	if size <= 0 {
		return trade.Trade{}, Skip{cfg.Key(), "ZERO_SIZE", "position size rounds to zero"}, false
	}

	entryBar := c.Bar
	if entryBar.IsZero() {
		entryBar = day
	}
	t := trade.Trade{
		ID:            st.nextID(),
		Class:         cfg.Class,
		Symbol:        cfg.Symbol,
		Direction:     sig.Direction,
		Entry:         entry,
		StopLoss:      stop,
		TakeProfit:    sig.TakeProfit,
		Size:          size,
		Opened:        day,
		EntryBar:      entryBar,
		Kind:          sig.Kind,
		Reason:        sig.Reason(),
		OriginalStop:  stop,
		RiskAmount:    h.RiskAmount(entry, dist, size, cfg, rates),
		ATRAtEntry:    c.ATR,
		HighWaterMark: entry,
		LowWaterMark:  entry,
		CurrentPrice:  entry,
	}
	st.Open = append(st.Open, t)
	return t, Skip{}, true
}

// Step advances st by one trading day: stops, trailing stops, the Friday
// close, the drawdown breaker, new entries and a closing mark to market.
// The live fund and the backtest both go through here.
func Step(st *State, r risk.Rules, w market.Watchlist, in DayInput) StepResult {
	day := market.Day(in.Date)
	res := StepResult{Date: day}

	res.Closed = CheckStops(st, r, w, day, in.Bars, in.Rates)
	TrailStops(st, r, in.Bars)
	res.Closed = append(res.Closed, WeekendClose(st, r, w, day, in.Bars, in.Rates)...)
	st.refreshPeak()

	if risk.Halted(st.PeakBalance, st.Balance, r) {
		res.Halted = true
	} else {
		res.Opened, res.Skipped = openCandidates(st, r, w, day, in)
	}

	MarkToMarket(st, r, w, in.Bars, in.Rates)
	res.Equity = trade.EquityPoint{Date: day, Balance: st.Equity()}
	return res
}

func openCandidates(st *State, r risk.Rules, w market.Watchlist, day time.Time, in DayInput) ([]trade.Trade, []Skip) {
	var (
		opened  []trade.Trade
		skipped []Skip
	)
	maxGlobal := EffectiveMaxPositions(st, r)
	for _, c := range in.Candidates {
		k := c.Config.Key()
		open := st.Positions()
		if d := risk.CheckLimits(k.Class, k.Symbol, open, maxGlobal, r); !d.Allowed {
			skipped = append(skipped, Skip{k, d.Violations[0].Code, d.Reason()})
			continue
		}
		if d := risk.CheckCorrelation(k.Class, k.Symbol, c.Signal.Direction, c.Config, open, r, w); !d.Allowed {
			skipped = append(skipped, Skip{k, d.Violations[0].Code, d.Reason()})
			continue
		}
		mult := RegimeMultiplier(r, c.Regime)
		if mult <= 0 {
			skipped = append(skipped, Skip{k, "REGIME_BLOCKED", fmt.Sprintf("regime %s blocks entries", c.Regime)})
			continue
		}
		t, skip, ok := OpenTrade(st, r, c, day, mult, in.Rates)
		if !ok {
			skipped = append(skipped, skip)
			continue
		}
		opened = append(opened, t)
	}
	return opened, skipped
}
