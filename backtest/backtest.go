// Package backtest replays the fund's daily step over historical candles.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/paperfund/fund"
	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/pkg/id"
	"github.com/rustyeddy/paperfund/risk"
	"github.com/rustyeddy/paperfund/signals"
	"github.com/rustyeddy/paperfund/stats"
	"github.com/rustyeddy/paperfund/trade"
)

// IDPrefix tags backtest trades.
const IDPrefix = "BT"

type Config struct {
	Start          time.Time
	End            time.Time
	InitialBalance float64
	Strategy       string
	// Lookback is the history a symbol needs before it may signal. It also
	// sets the trend detector window.
	Lookback int
	// Symbols to trade, in evaluation order. Empty means every series in the data.
	Symbols []market.AssetConfig
	Rules   risk.Rules
}

func DefaultConfig() Config {
	return Config{
		Start:          time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		InitialBalance: fund.DefaultInitialBalance,
		Strategy:       "trend",
		Lookback:       10,
		Rules:          risk.DefaultRules(),
	}
}

type Result struct {
	RunID        string
	Config       Config
	Trades       []trade.Trade
	EquityCurve  []trade.EquityPoint
	FinalBalance float64
	Rejected     int
	HaltedDays   int
}

// Metrics computes the full statistics bundle for the run.
func (r Result) Metrics() stats.Metrics {
	return stats.ComputeAll(r.Trades, r.EquityCurve, r.Config.InitialBalance)
}

func (c Config) inRange(d time.Time) bool {
	if !c.Start.IsZero() && d.Before(market.Day(c.Start)) {
		return false
	}
	if !c.End.IsZero() && d.After(market.Day(c.End)) {
		return false
	}
	return true
}

// symbols returns cfg.Symbols or, when empty, every key in data sorted by class then symbol.
func (c Config) symbols(data market.Series) []market.AssetConfig {
	if len(c.Symbols) > 0 {
		return c.Symbols
	}
	out := make([]market.AssetConfig, 0, len(data))
	for k := range data {
		out = append(out, market.AssetConfig{Symbol: k.Symbol, Class: k.Class})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Class != out[j].Class {
			return out[i].Class < out[j].Class
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func watchlist(list []market.AssetConfig) market.Watchlist {
	var w market.Watchlist
	for _, a := range list {
		switch a.Class {
		case market.Forex:
			w.Forex = append(w.Forex, a)
		case market.Stocks:
			w.Stocks = append(w.Stocks, a)
		case market.Crypto:
			w.Crypto = append(w.Crypto, a)
		}
	}
	return w
}

// tradingDays is the sorted union of candle dates inside the configured range.
func (c Config) tradingDays(data market.Series) []time.Time {
	seen := map[time.Time]struct{}{}
	for _, cs := range data {
		for _, cd := range cs {
			d := market.Day(cd.Date)
			if c.inRange(d) {
				seen[d] = struct{}{}
			}
		}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

func (c Config) validate() (signals.Generator, error) {
	if c.InitialBalance <= 0 {
		return nil, fmt.Errorf("backtest: initial balance must be positive, got %g", c.InitialBalance)
	}
	if err := c.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	return signals.ByName(c.Strategy)
}

// Run replays cfg over data.
func Run(cfg Config, data market.Series) (Result, error) {
	return RunContext(context.Background(), cfg, data)
}

// RunContext is Run with cancellation checked once per trading day.
func RunContext(ctx context.Context, cfg Config, data market.Series) (Result, error) {
	gen, err := cfg.validate()
	if err != nil {
		return Result{}, err
	}
	rules := cfg.Rules
	if cfg.Lookback > 0 {
		rules.TrendLookback = cfg.Lookback
	}

	symbols := cfg.symbols(data)
	w := watchlist(symbols)

	series := make(map[market.Key][]market.Candle, len(symbols))
	index := make(map[market.Key]map[time.Time]int, len(symbols))
	for _, a := range symbols {
		cs, _ := market.FilterValid(data[a.Key()])
		series[a.Key()] = cs
		idx := make(map[time.Time]int, len(cs))
		for i, c := range cs {
			idx[market.Day(c.Date)] = i
		}
		index[a.Key()] = idx
	}

	res := Result{RunID: id.New(), Config: cfg, FinalBalance: cfg.InitialBalance}
	st := fund.NewState(IDPrefix, cfg.InitialBalance)

	days := cfg.tradingDays(data)
	if len(days) == 0 {
		res.Trades = []trade.Trade{}
		return res, nil
	}

	last := map[market.Key]market.Candle{}
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		bars := map[market.Key]market.Candle{}
		history := map[market.Key][]market.Candle{}
		for _, a := range symbols {
			k := a.Key()
			i, ok := index[k][day]
			if !ok {
				continue
			}
			cs := series[k]
			bars[k] = cs[i]
			last[k] = cs[i]
			if i >= cfg.Lookback {
				history[k] = cs[:i+1]
			}
		}

		out := fund.Step(st, rules, w, fund.DayInput{
			Date:       day,
			Bars:       bars,
			Candidates: fund.Candidates(gen, rules, symbols, history, 0),
			Rates:      fund.CrossRates(bars),
		})
		res.EquityCurve = append(res.EquityCurve, out.Equity)
		res.Rejected += len(out.Skipped)
		if out.Halted {
			res.HaltedDays++
		}
	}

	end := days[len(days)-1]
	fund.CloseAll(st, rules, w, end, last, trade.EndOfTest, fund.CrossRates(last))
	res.EquityCurve[len(res.EquityCurve)-1].Balance = st.Balance

	res.Trades = st.Closed
	res.FinalBalance = st.Balance
	return res, nil
}
