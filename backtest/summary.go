package backtest

import (
	"context"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/paperfund/journal"
	"github.com/rustyeddy/paperfund/pkg/id"
)

// Summary flattens a run into the journal's backtest_runs row. A zero created
// time is taken from the run id.
func (r Result) Summary(created time.Time) (journal.BacktestRun, error) {
	if created.IsZero() {
		t, err := id.Time(r.RunID)
		if err != nil {
			return journal.BacktestRun{}, err
		}
		created = t
	}
	m := r.Metrics()
	rules, err := yaml.Marshal(r.Config.Rules)
	if err != nil {
		return journal.BacktestRun{}, err
	}

	run := journal.BacktestRun{
		RunID:        r.RunID,
		Created:      created,
		Strategy:     r.Config.Strategy,
		Config:       rules,
		Start:        r.Config.Start,
		End:          r.Config.End,
		Trades:       len(r.Trades),
		StartBalance: r.Config.InitialBalance,
		EndBalance:   r.FinalBalance,
		NetPL:        r.FinalBalance - r.Config.InitialBalance,
		WinRate:      m.WinRate,
		ProfitFactor: m.ProfitFactor,
		MaxDDPct:     m.MaxDrawdown.Pct * 100,
		Sharpe:       m.Sharpe,
	}
	if len(r.EquityCurve) > 0 {
		run.Start = r.EquityCurve[0].Date
		run.End = r.EquityCurve[len(r.EquityCurve)-1].Date
	}
	if r.Config.InitialBalance > 0 {
		run.ReturnPct = run.NetPL / r.Config.InitialBalance * 100
	}
	for _, a := range r.Config.Symbols {
		run.Symbols = append(run.Symbols, a.Symbol)
	}
	for _, t := range r.Trades {
		if t.Win() {
			run.Wins++
		} else {
			run.Losses++
		}
	}
	return run, nil
}

// Record writes the summary and every trade and equity point of r under its run id.
func (r Result) Record(ctx context.Context, j *journal.SQLite, created time.Time) error {
	run, err := r.Summary(created)
	if err != nil {
		return err
	}
	for _, t := range r.Trades {
		if err := j.RecordTrade(journal.FromTrade(r.RunID, t)); err != nil {
			return err
		}
	}
	for _, p := range r.EquityCurve {
		if err := j.RecordEquity(journal.EquitySnapshot{Book: r.RunID, Time: p.Date, Balance: p.Balance, Equity: p.Balance}); err != nil {
			return err
		}
	}
	return j.RecordBacktest(ctx, run)
}
