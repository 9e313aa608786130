package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/paperfund/backtest"
	"github.com/rustyeddy/paperfund/config"
	"github.com/rustyeddy/paperfund/journal"
	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/report"
	"github.com/rustyeddy/paperfund/stats"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay the fund rules over historical candles",
	Long: `Run the daily fund cycle over every date in the candle files and report
performance, Monte Carlo robustness and a pass/fail verdict.

Examples:
  paperfund backtest
  paperfund backtest --strategy fractal --preset fractal --start 2020-01-01
  paperfund backtest --symbols EURUSD,stocks/AAPL --scan --walk-forward
  paperfund backtest --org results/run.org`,
	RunE: runBacktest,
}

var (
	btStart       string
	btEnd         string
	btStrategy    string
	btPreset      string
	btLookback    int
	btSymbols     []string
	btNoMC        bool
	btScan        bool
	btWalkForward bool
	btRecord      bool
	btOrg         string
	btShowTrades  bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	f := backtestCmd.Flags()
	f.StringVar(&btStart, "start", "", "first date YYYY-MM-DD (overrides config)")
	f.StringVar(&btEnd, "end", "", "last date YYYY-MM-DD (overrides config)")
	f.StringVar(&btStrategy, "strategy", "", "signal strategy: trend or fractal")
	f.StringVar(&btPreset, "preset", "", "rules preset: main or fractal")
	f.IntVar(&btLookback, "lookback", 0, "bars of history before a symbol may signal")
	f.StringSliceVar(&btSymbols, "symbols", nil, "symbols to trade, SYMBOL or class/SYMBOL (default: whole watchlist)")
	f.BoolVar(&btNoMC, "no-mc", false, "skip Monte Carlo and block bootstrap")
	f.BoolVar(&btScan, "scan", false, "run the parameter stability scan")
	f.BoolVar(&btWalkForward, "walk-forward", false, "run walk-forward validation")
	f.BoolVar(&btRecord, "record", false, "store the run in the SQLite journal")
	f.StringVar(&btOrg, "org", "", "write an org-mode summary to this path")
	f.BoolVar(&btShowTrades, "trades", false, "print every closed trade")
}

// selectSymbols resolves names against the watchlist. Bare names match any class.
func selectSymbols(w market.Watchlist, names []string) ([]market.AssetConfig, error) {
	if len(names) == 0 {
		return w.All(), nil
	}
	var out []market.AssetConfig
	for _, n := range names {
		if class, sym, ok := strings.Cut(n, "/"); ok {
			c, err := market.ParseAssetClass(class)
			if err != nil {
				return nil, err
			}
			a, found := w.Lookup(c, sym)
			if !found {
				return nil, fmt.Errorf("%s is not in the watchlist", n)
			}
			out = append(out, a)
			continue
		}
		found := false
		for _, a := range w.All() {
			if strings.EqualFold(a.Symbol, n) {
				out = append(out, a)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%s is not in the watchlist", n)
		}
	}
	return out, nil
}

func applyBacktestFlags(b *config.BacktestConfig) {
	if btStart != "" {
		b.Start = btStart
	}
	if btEnd != "" {
		b.End = btEnd
	}
	if btStrategy != "" {
		b.Strategy = btStrategy
	}
	if btPreset != "" {
		b.Preset = btPreset
		b.Rules = nil
	}
	if btLookback > 0 {
		b.Lookback = btLookback
	}
}

func loadData(dir string, list []market.AssetConfig, lg *zap.Logger) (market.Series, []market.AssetConfig, error) {
	data, sets, missing, err := market.LoadSeries(dir, list)
	if err != nil {
		return nil, nil, err
	}
	for _, k := range missing {
		lg.Warn("no candle file", zap.Stringer("symbol", k))
	}
	for _, cs := range sets {
		lg.Info("loaded candles", zap.String("symbol", cs.Symbol), zap.Int("candles", len(cs.Candles)),
			zap.Int("invalid", cs.Invalid), zap.Int("duplicates", cs.Duplicates))
	}
	var loaded []market.AssetConfig
	for _, a := range list {
		if _, ok := data[a.Key()]; ok {
			loaded = append(loaded, a)
		}
	}
	if len(loaded) == 0 {
		return nil, nil, fmt.Errorf("no candle data in %s", dir)
	}
	return data, loaded, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lg, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()

	watch, err := config.LoadWatchlist(cfg.Watchlist)
	if err != nil {
		return err
	}
	list, err := selectSymbols(watch, btSymbols)
	if err != nil {
		return err
	}
	data, list, err := loadData(cfg.DataDir, list, lg)
	if err != nil {
		return err
	}

	bc := cfg.Backtest
	applyBacktestFlags(&bc)
	btCfg, err := bc.BacktestRun(list)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	res, err := backtest.RunContext(ctx, btCfg, data)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	lg.Info("backtest complete", zap.String("run_id", res.RunID), zap.Int("trades", len(res.Trades)),
		zap.Float64("final_balance", res.FinalBalance), zap.Duration("elapsed", time.Since(started)))

	out := cmdOut()
	m := res.Metrics()
	report.Metrics(out, m)
	if btShowTrades {
		report.Trades(out, "Trades", res.Trades)
	}
	report.Regimes(out, stats.RegimeMetrics(stats.SegmentByRegime(res.Trades, data)))

	var worst *stats.MCResult
	if !btNoMC && len(res.Trades) > 0 {
		mcCfg := bc.MonteCarlo.MCConfig(btCfg.InitialBalance)
		mc := stats.MonteCarlo(res.Trades, mcCfg)
		bb := stats.BlockBootstrap(res.Trades, mcCfg)
		report.MonteCarlo(out, mc)
		report.MonteCarlo(out, bb)
		// The verdict uses whichever resampling shows more ruin.
		worst = &mc
		if bb.RuinPct > mc.RuinPct {
			worst = &bb
		}
	}
	checks, passed := stats.Verdict(m, worst, cfg.Thresholds)
	report.Verdict(out, checks, passed)

	if btScan {
		sr, err := backtest.ParameterScan(ctx, btCfg, data, backtest.DefaultScanGrid(), bc.Parallel)
		if err != nil {
			return fmt.Errorf("parameter scan: %w", err)
		}
		report.Scan(out, sr)
	}
	if btWalkForward {
		wf, err := backtest.WalkForward(ctx, btCfg, data, bc.WalkForward.TrainDays, bc.WalkForward.TestDays,
			backtest.DefaultWalkForwardGrid(), bc.Parallel)
		if err != nil {
			return fmt.Errorf("walk-forward: %w", err)
		}
		report.WalkForward(out, wf)
	}

	if btRecord {
		if err := recordRun(ctx, cfg.Journal, res); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Recorded run %s in %s\n", res.RunID, cfg.Journal.DBPath)
	}
	if btOrg != "" {
		run, err := res.Summary(time.Time{})
		if err != nil {
			return err
		}
		if !passed {
			run.Notes = append(run.Notes, "verdict: not ready")
		}
		if err := ensureDir(btOrg); err != nil {
			return err
		}
		if err := run.WriteOrg(btOrg); err != nil {
			return fmt.Errorf("write org: %w", err)
		}
		fmt.Fprintf(out, "✓ Wrote %s\n", btOrg)
	}
	return nil
}

func recordRun(ctx context.Context, jc config.JournalConfig, res backtest.Result) error {
	if jc.Type != "sqlite" {
		return fmt.Errorf("--record needs journal.type sqlite, have %q", jc.Type)
	}
	if err := ensureDir(jc.DBPath); err != nil {
		return err
	}
	db, err := journal.NewSQLite(jc.DBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()
	return res.Record(ctx, db, time.Now().UTC())
}
