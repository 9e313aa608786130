package fund

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/paperfund/journal"
	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/risk"
	"github.com/rustyeddy/paperfund/signals"
	"github.com/rustyeddy/paperfund/trade"
)

// DefaultMaxStaleDays covers a weekend plus a holiday.
const DefaultMaxStaleDays = 4

// Fund evaluates one paper portfolio against the latest candles.
type Fund struct {
	ID        string
	Rules     risk.Rules
	Watchlist market.Watchlist
	Source    market.CandleSource
	Generator signals.Generator

	// MinBars is the history a symbol needs before it can signal.
	MinBars int
	// MaxStaleDays drops instruments whose newest candle is older. Zero disables the check.
	MaxStaleDays int

	Journal journal.Journal
	Logger  *zap.Logger
}

// DayResult is what one evaluation did.
type DayResult struct {
	Opened  []trade.Trade
	Closed  []trade.Trade
	Skipped bool
	Halted  bool
	Rejects []Skip
	Equity  trade.EquityPoint

	// Balance and OpenPositions are the state after the step.
	Balance       float64
	OpenPositions int
}

func (f *Fund) log() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

func (f *Fund) sink() journal.Journal {
	if f.Journal == nil {
		return journal.Nop{}
	}
	return f.Journal
}

// load reads each watchlist instrument up to today.
func (f *Fund) load(ctx context.Context, day time.Time) (map[market.Key][]market.Candle, map[market.Key]market.Candle, error) {
	history := map[market.Key][]market.Candle{}
	bars := map[market.Key]market.Candle{}
	for _, a := range f.Watchlist.All() {
		k := a.Key()
		cs, err := f.Source.Candles(ctx, k)
		if errors.Is(err, os.ErrNotExist) {
			f.log().Warn("no candle data", zap.String("fund", f.ID), zap.Stringer("symbol", k))
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("candles %s: %w", k, err)
		}
		cs, dropped := market.FilterValid(market.UpTo(cs, day))
		if dropped > 0 {
			f.log().Warn("dropped invalid candles", zap.Stringer("symbol", k), zap.Int("count", dropped))
		}
		if len(cs) == 0 {
			continue
		}
		last := cs[len(cs)-1]
		if age := int(day.Sub(market.Day(last.Date)).Hours() / 24); f.MaxStaleDays > 0 && age > f.MaxStaleDays {
			f.log().Warn("stale candle data", zap.Stringer("symbol", k), zap.Int("age_days", age))
			continue
		}
		history[k] = cs
		bars[k] = last
	}
	return history, bars, nil
}

// EvaluateDay runs one daily cycle against st. Running twice for the same day
// is a no-op that returns Skipped. st is mutated in place; persisting it is the
// caller's job, and so is calling RecordDay once it is persisted.
func (f *Fund) EvaluateDay(ctx context.Context, st *State, today time.Time) (DayResult, error) {
	day := market.Day(today)
	ds := day.Format(market.DateLayout)
	if st.LastRunDate == ds {
		f.log().Info("already evaluated", zap.String("fund", f.ID), zap.String("date", ds))
		return DayResult{Skipped: true}, nil
	}
	if f.Generator == nil {
		return DayResult{}, fmt.Errorf("fund %s: no signal generator", f.ID)
	}

	history, bars, err := f.load(ctx, day)
	if err != nil {
		return DayResult{}, fmt.Errorf("fund %s: %w", f.ID, err)
	}

	in := DayInput{
		Date:       day,
		Bars:       bars,
		Candidates: Candidates(f.Generator, f.Rules, f.Watchlist.All(), history, f.MinBars),
		Rates:      CrossRates(bars),
	}
	res := Step(st, f.Rules, f.Watchlist, in)
	st.LastRunDate = ds

	lg := f.log().With(zap.String("fund", f.ID), zap.String("date", ds))
	for _, t := range res.Closed {
		lg.Info("closed", zap.String("id", t.ID), zap.String("symbol", t.Symbol),
			zap.String("reason", string(t.CloseReason)), zap.Float64("pnl", t.PnL))
	}
	for _, t := range res.Opened {
		lg.Info("opened", zap.String("id", t.ID), zap.String("symbol", t.Symbol),
			zap.String("direction", string(t.Direction)), zap.Float64("entry", t.Entry),
			zap.Float64("size", t.Size), zap.String("signal", t.Reason))
	}
	for _, s := range res.Skipped {
		lg.Debug("skipped", zap.Stringer("symbol", s.Key), zap.String("code", s.Code), zap.String("reason", s.Reason))
	}
	if res.Halted {
		lg.Warn("drawdown breaker tripped, no new entries",
			zap.Float64("drawdown", st.Drawdown()), zap.Float64("peak", st.PeakBalance))
	}

	return DayResult{
		Opened:  res.Opened,
		Closed:  res.Closed,
		Halted:  res.Halted,
		Rejects: res.Skipped,
		Equity:  res.Equity,

		Balance:       st.Balance,
		OpenPositions: len(st.Open),
	}, nil
}

// RecordDay journals the trades closed by an evaluation and its equity
// snapshot. Call it after the state from EvaluateDay has been saved so a failed
// save cannot leave journal rows for a day that will be evaluated again.
func (f *Fund) RecordDay(res DayResult) error {
	if res.Skipped {
		return nil
	}
	for _, t := range res.Closed {
		if err := f.sink().RecordTrade(journal.FromTrade(f.ID, t)); err != nil {
			return fmt.Errorf("journal trade %s: %w", t.ID, err)
		}
	}
	err := f.sink().RecordEquity(journal.EquitySnapshot{
		Book: f.ID, Time: res.Equity.Date, Balance: res.Balance, Equity: res.Equity.Balance, Open: res.OpenPositions,
	})
	if err != nil {
		return fmt.Errorf("journal equity: %w", err)
	}
	return nil
}

// Preview evaluates today on a copy of st and returns the copy. st is not
// touched and nothing is journaled.
func (f *Fund) Preview(ctx context.Context, st *State, today time.Time) (DayResult, *State, error) {
	c := st.Clone()
	res, err := f.EvaluateDay(ctx, c, today)
	if err != nil {
		return DayResult{}, nil, err
	}
	return res, c, nil
}
