// Package report renders fund and backtest results as terminal tables.
// Money is rounded here and nowhere else.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/paperfund/backtest"
	"github.com/rustyeddy/paperfund/fund"
	"github.com/rustyeddy/paperfund/journal"
	"github.com/rustyeddy/paperfund/risk"
	"github.com/rustyeddy/paperfund/stats"
	"github.com/rustyeddy/paperfund/trade"
)

const dateLayout = "2006-01-02"

// Money formats a dollar amount to cents, e.g. "-$1234.50".
func Money(x float64) string {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return fmt.Sprint(x)
	}
	d := decimal.NewFromFloat(x).Round(2)
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// Pct formats a fraction as a percentage.
func Pct(x float64) string {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return fmt.Sprint(x)
	}
	return decimal.NewFromFloat(x).Shift(2).StringFixed(2) + "%"
}

// Ratio formats a unitless statistic; infinities print as "inf".
func Ratio(x float64) string {
	switch {
	case math.IsInf(x, 1):
		return "inf"
	case math.IsInf(x, -1):
		return "-inf"
	case math.IsNaN(x):
		return "n/a"
	}
	return decimal.NewFromFloat(x).StringFixed(2)
}

func price(x float64) string {
	return decimal.NewFromFloat(x).Round(5).String()
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func rightAligned(cols ...int) []table.ColumnConfig {
	out := make([]table.ColumnConfig, 0, len(cols))
	for _, c := range cols {
		out = append(out, table.ColumnConfig{Number: c, Align: text.AlignRight})
	}
	return out
}

// Metrics prints the statistics bundle.
func Metrics(w io.Writer, m stats.Metrics) {
	t := newTable(w, "Performance")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Trades", m.TotalTrades},
		{"Win rate", Pct(m.WinRate)},
		{"Expectancy (R)", Ratio(m.ExpectancyR)},
		{"Expectancy ($)", Money(m.ExpectancyDollars)},
		{"Profit factor", Ratio(m.ProfitFactor)},
		{"Avg R", Ratio(m.AvgR)},
		{"Avg win", Money(m.AvgWin)},
		{"Avg loss", Money(m.AvgLoss)},
		{"Max consecutive wins", m.MaxConsecutiveWins},
		{"Max consecutive losses", m.MaxConsecutiveLosses},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Sharpe", Ratio(m.Sharpe)},
		{"Sortino", Ratio(m.Sortino)},
		{"Calmar", Ratio(m.Calmar)},
		{"CAGR", Pct(m.CAGR)},
		{"Max drawdown", fmt.Sprintf("%s (%s)", Pct(m.MaxDrawdown.Pct), Money(m.MaxDrawdown.Dollar))},
	})
	if !m.MaxDrawdown.Trough.IsZero() {
		t.AppendRow(table.Row{"Drawdown window", m.MaxDrawdown.Peak.Format(dateLayout) + " to " + m.MaxDrawdown.Trough.Format(dateLayout)})
	}
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Initial balance", Money(m.InitialBalance)},
		{"Final balance", Money(m.FinalBalance)},
		{"Net P&L", Money(m.FinalBalance - m.InitialBalance)},
	})
	t.SetColumnConfigs(rightAligned(2))
	t.Render()
}

// MonteCarlo prints a resampling result.
func MonteCarlo(w io.Writer, r stats.MCResult) {
	title := fmt.Sprintf("Monte Carlo (%s, %d sims)", r.Method, r.Simulations)
	if r.BlockSize > 0 {
		title = fmt.Sprintf("Monte Carlo (%s, %d sims, block %d)", r.Method, r.Simulations, r.BlockSize)
	}
	t := newTable(w, title)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Profitable", Pct(r.ProfitablePct)},
		{"Mean final", Money(r.MeanFinalBalance)},
		{"Median final", Money(r.MedianFinalBalance)},
		{"P5 final", Money(r.P5FinalBalance)},
		{"P95 final", Money(r.P95FinalBalance)},
		{"Median max DD", Pct(r.MedianMaxDrawdown)},
		{"P95 max DD", Pct(r.P95MaxDrawdown)},
		{"P99 max DD", Pct(r.P99MaxDrawdown)},
		{fmt.Sprintf("Ruin (DD >= %s)", Pct(r.RuinThreshold)), Pct(r.RuinPct)},
		{"Median losing streak", r.MedianConsecLosses},
		{"P95 losing streak", r.P95ConsecLosses},
		{"Worst losing streak", r.WorstConsecLosses},
	})
	t.SetColumnConfigs(rightAligned(2))
	t.Render()
}

// Verdict prints the robustness checklist and the overall outcome.
func Verdict(w io.Writer, checks []stats.Check, passed bool) {
	t := newTable(w, "Robustness")
	t.AppendHeader(table.Row{"Check", "Result", "Detail"})
	for _, c := range checks {
		mark := "FAIL"
		if c.Passed {
			mark = "PASS"
		}
		t.AppendRow(table.Row{c.Name, mark, c.Detail})
	}
	overall := "NOT READY"
	if passed {
		overall = "READY"
	}
	t.AppendFooter(table.Row{"Verdict", overall, ""})
	t.Render()
}

// Trades prints closed or open positions. Open positions show unrealized P&L.
func Trades(w io.Writer, title string, ts []trade.Trade) {
	t := newTable(w, title)
	t.AppendHeader(table.Row{"ID", "Class", "Symbol", "Dir", "Opened", "Entry", "Stop", "Target", "R:R", "Size", "Exit", "P&L", "R", "Reason"})
	var total float64
	for _, tr := range ts {
		exit, pnl, reason, r := "", tr.UnrealizedPnL, string(tr.Kind), ""
		if tr.IsClosed() {
			exit = price(tr.Exit)
			pnl = tr.PnL
			reason = string(tr.CloseReason)
			r = Ratio(tr.RMultiple())
		}
		total += pnl
		// R:R is the plan at entry, before any trailing.
		stop := tr.OriginalStop
		if stop == 0 {
			stop = tr.StopLoss
		}
		t.AppendRow(table.Row{
			tr.ID, tr.Class, tr.Symbol, tr.Direction, tr.Opened.Format(dateLayout),
			price(tr.Entry), price(tr.StopLoss), price(tr.TakeProfit), Ratio(risk.RR(tr.Entry, stop, tr.TakeProfit)),
			decimal.NewFromFloat(tr.Size).String(), exit, Money(pnl), r, reason,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", "", "", "Total", Money(total), "", ""})
	t.SetColumnConfigs(rightAligned(6, 7, 8, 9, 10, 11, 12, 13))
	t.Render()
}

// FundState prints a one-fund summary followed by its open positions.
func FundState(w io.Writer, fundID string, st *fund.State) {
	t := newTable(w, "Fund "+fundID)
	t.AppendHeader(table.Row{"Field", "Value"})
	wins := 0
	for _, c := range st.Closed {
		if c.Win() {
			wins++
		}
	}
	last := st.LastRunDate
	if last == "" {
		last = "never"
	}
	t.AppendRows([]table.Row{
		{"Initial balance", Money(st.InitialBalance)},
		{"Balance", Money(st.Balance)},
		{"Equity", Money(st.Equity())},
		{"Peak", Money(st.PeakBalance)},
		{"Drawdown", Pct(st.Drawdown())},
		{"Open positions", len(st.Open)},
		{"Closed trades", fmt.Sprintf("%d (%d wins)", len(st.Closed), wins)},
		{"Last run", last},
	})
	t.SetColumnConfigs(rightAligned(2))
	t.Render()
	if len(st.Open) > 0 {
		Trades(w, "Open positions", st.Open)
	}
}

// Regimes prints per-regime trade statistics in a stable order.
func Regimes(w io.Writer, rm map[stats.Regime]stats.RegimeStats) {
	keys := make([]string, 0, len(rm))
	for k := range rm {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	t := newTable(w, "By regime")
	t.AppendHeader(table.Row{"Regime", "Trades", "Win rate", "Expectancy", "Profit factor", "Avg R"})
	for _, k := range keys {
		s := rm[stats.Regime(k)]
		t.AppendRow(table.Row{k, s.Count, Pct(s.WinRate), Money(s.Expectancy), Ratio(s.ProfitFactor), Ratio(s.AvgR)})
	}
	t.SetColumnConfigs(rightAligned(2, 3, 4, 5, 6))
	t.Render()
}

// Scan prints the parameter grid with stability scores.
func Scan(w io.Writer, sr backtest.ScanResult) {
	t := newTable(w, "Parameter scan")
	t.AppendHeader(table.Row{"RR", "Risk", "Lookback", "Trades", "Sharpe", "PF", "Max DD", "Final", "Stability"})
	for _, p := range sr.Points {
		t.AppendRow(table.Row{
			Ratio(p.RRRatio), Pct(p.MaxRisk), p.Lookback, p.Metrics.TotalTrades,
			Ratio(p.Metrics.Sharpe), Ratio(p.Metrics.ProfitFactor), Pct(p.Metrics.MaxDrawdown.Pct),
			Money(p.FinalBalance), Pct(p.Stability),
		})
	}
	best := "none"
	if sr.Best != nil {
		best = fmt.Sprintf("rr=%s risk=%s lookback=%d", Ratio(sr.Best.RRRatio), Pct(sr.Best.MaxRisk), sr.Best.Lookback)
	}
	t.AppendFooter(table.Row{"Positive Sharpe", sr.PositiveSharpe, "Stable", len(sr.Stable), "Best", best, "", "", ""})
	t.Render()
}

// WalkForward prints each window and the out-of-sample consistency.
func WalkForward(w io.Writer, wf backtest.WalkForwardResult) {
	t := newTable(w, "Walk-forward")
	t.AppendHeader(table.Row{"#", "Train", "Test", "Best", "Train Sharpe", "Test trades", "Test Sharpe", "Test final"})
	for i, win := range wf.Windows {
		t.AppendRow(table.Row{
			i + 1,
			win.TrainStart.Format(dateLayout) + " to " + win.TrainEnd.Format(dateLayout),
			win.TestStart.Format(dateLayout) + " to " + win.TestEnd.Format(dateLayout),
			fmt.Sprintf("rr=%s lb=%d", Ratio(win.Best.RRRatio), win.Best.Lookback),
			Ratio(win.TrainSharpe), win.TestTrades, Ratio(win.TestMetrics.Sharpe), Money(win.TestFinalBalance),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Profitable", fmt.Sprintf("%d/%d", wf.Profitable, len(wf.Windows)), "Consistency", Pct(wf.Consistency)})
	t.Render()
}

// Day prints what one fund evaluation did.
func Day(w io.Writer, fundID string, r fund.DayResult) {
	switch {
	case r.Skipped:
		fmt.Fprintf(w, "%s: already evaluated today\n", fundID)
		return
	case r.Halted:
		fmt.Fprintf(w, "%s: drawdown breaker active, no new entries\n", fundID)
	}
	for _, tr := range r.Closed {
		fmt.Fprintf(w, "%s: closed %s\n", fundID, tr)
	}
	for _, tr := range r.Opened {
		fmt.Fprintf(w, "%s: opened %s\n", fundID, tr)
	}
	for _, s := range r.Rejects {
		fmt.Fprintf(w, "%s: skipped %s %s: %s\n", fundID, s.Key, s.Code, s.Reason)
	}
	fmt.Fprintf(w, "%s: equity %s\n", fundID, Money(r.Equity.Balance))
}

// Records prints journal rows with a running total.
func Records(w io.Writer, title string, recs []journal.TradeRecord) {
	t := newTable(w, title)
	t.AppendHeader(table.Row{"ID", "Symbol", "Dir", "Opened", "Closed", "Entry", "Exit", "P&L", "R", "Reason"})
	var total float64
	for _, r := range recs {
		total += r.RealizedPL
		t.AppendRow(table.Row{
			r.TradeID, r.Symbol, r.Direction, r.OpenTime.Format(dateLayout), r.CloseTime.Format(dateLayout),
			price(r.EntryPrice), price(r.ExitPrice), Money(r.RealizedPL), Ratio(r.RMultiple), r.Reason,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", Money(total), "", ""})
	t.SetColumnConfigs(rightAligned(6, 7, 8, 9))
	t.Render()
}

// Equity prints an equity history.
func Equity(w io.Writer, title string, snaps []journal.EquitySnapshot) {
	t := newTable(w, title)
	t.AppendHeader(table.Row{"Date", "Balance", "Equity", "Open"})
	for _, s := range snaps {
		t.AppendRow(table.Row{s.Time.Format(dateLayout), Money(s.Balance), Money(s.Equity), s.Open})
	}
	t.SetColumnConfigs(rightAligned(2, 3, 4))
	t.Render()
}
