package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/paperfund/config"
	"github.com/rustyeddy/paperfund/fund"
	"github.com/rustyeddy/paperfund/journal"
	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/report"
	"github.com/rustyeddy/paperfund/signals"
	"github.com/rustyeddy/paperfund/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate every fund for one trading day",
	Long: `Load the latest candles, close positions that hit their stop or target,
apply the Friday forex close, then open new positions within the risk rules.

Running twice for the same date is a no-op. With --dry-run the day is
evaluated on a copy of the saved state and nothing is saved or journaled.

Examples:
  paperfund run
  paperfund run --dry-run
  paperfund run --fund fractal --date 2025-03-14`,
	RunE: runRun,
}

var (
	runFund   string
	runDate   string
	runDryRun bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runFund, "fund", "", "evaluate only this fund id")
	runCmd.Flags().StringVar(&runDate, "date", "", "evaluation date YYYY-MM-DD (default today, UTC)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "show what would happen without saving state or journaling")
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	for _, p := range []string{jc.DBPath, jc.TradesFile, jc.EquityFile} {
		if err := ensureDir(p); err != nil {
			return nil, err
		}
	}
	return jc.OpenJournal()
}

func evalDate() (time.Time, error) {
	if runDate == "" {
		return market.Day(time.Now().UTC()), nil
	}
	d, err := time.Parse(market.DateLayout, runDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date: %w", err)
	}
	return d, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lg, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()

	today, err := evalDate()
	if err != nil {
		return err
	}
	watch, err := config.LoadWatchlist(cfg.Watchlist)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.State.Type, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer st.Close()

	jnl, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	defer jnl.Close()

	ran := 0
	for _, fc := range cfg.Funds {
		if runFund != "" && fc.ID != runFund {
			continue
		}
		ran++
		if err := runFundDay(ctx, cfg, fc, watch, st, jnl, lg, today); err != nil {
			return err
		}
	}
	if ran == 0 {
		return fmt.Errorf("no fund named %q", runFund)
	}
	return nil
}

func runFundDay(ctx context.Context, cfg *config.Config, fc config.FundConfig, watch market.Watchlist,
	st store.Store, jnl journal.Journal, lg *zap.Logger, today time.Time) error {
	rules, err := fc.RiskRules()
	if err != nil {
		return err
	}
	gen, err := signals.ByName(fc.Strategy)
	if err != nil {
		return err
	}

	f := &fund.Fund{
		ID:           fc.ID,
		Rules:        rules,
		Watchlist:    watch,
		Source:       market.DirSource{Dir: cfg.DataDir},
		Generator:    gen,
		MinBars:      fc.MinBars,
		MaxStaleDays: cfg.MaxStaleDays,
		Journal:      jnl,
		Logger:       lg,
	}

	out := cmdOut()
	if runDryRun {
		saved, err := store.LoadOrInit(ctx, st, fc.ID, fc.IDPrefix, fc.InitialBalance)
		if err != nil {
			return fmt.Errorf("fund %s: %w", fc.ID, err)
		}
		res, preview, err := f.Preview(ctx, saved, today)
		if err != nil {
			return fmt.Errorf("fund %s: %w", fc.ID, err)
		}
		fmt.Fprintf(out, "%s: dry run, nothing saved\n", fc.ID)
		report.Day(out, fc.ID, res)
		if len(preview.Open) > 0 {
			report.Trades(out, fc.ID+" open positions (preview)", preview.Open)
		}
		return nil
	}

	var res fund.DayResult
	state, err := store.Update(ctx, st, fc.ID, fc.IDPrefix, fc.InitialBalance, func(s *fund.State) error {
		var err error
		res, err = f.EvaluateDay(ctx, s, today)
		return err
	})
	if err != nil {
		return fmt.Errorf("fund %s: %w", fc.ID, err)
	}
	if err := f.RecordDay(res); err != nil {
		return fmt.Errorf("fund %s: %w", fc.ID, err)
	}

	report.Day(out, fc.ID, res)
	if len(state.Open) > 0 {
		report.Trades(out, fc.ID+" open positions", state.Open)
	}
	return nil
}
