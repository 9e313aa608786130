package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/paperfund/fund"
	"github.com/rustyeddy/paperfund/report"
	"github.com/rustyeddy/paperfund/store"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset persisted fund state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print balance, drawdown and open positions for each fund",
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Replace a fund's state with a fresh ledger",
	Long: `Discard every open and closed trade of one fund and start again from its
initial balance. The journal is not touched.

Example:
  paperfund state reset --fund fractal --yes`,
	RunE: runStateReset,
}

var (
	stateFund   string
	stateTrades bool
	stateYes    bool
)

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)

	stateShowCmd.Flags().StringVar(&stateFund, "fund", "", "show only this fund id")
	stateShowCmd.Flags().BoolVar(&stateTrades, "trades", false, "also list closed trades")
	stateResetCmd.Flags().StringVar(&stateFund, "fund", "", "fund id to reset (required)")
	stateResetCmd.Flags().BoolVar(&stateYes, "yes", false, "confirm the reset")
	_ = stateResetCmd.MarkFlagRequired("fund")
}

func runStateShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.State.Type, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	out := cmdOut()
	shown := 0
	for _, fc := range cfg.Funds {
		if stateFund != "" && fc.ID != stateFund {
			continue
		}
		shown++
		s, err := st.Load(ctx, fc.ID)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(out, "%s: no saved state\n", fc.ID)
			continue
		}
		if err != nil {
			return err
		}
		s.Migrate(fc.InitialBalance)
		report.FundState(out, fc.ID, s)
		if stateTrades && len(s.Closed) > 0 {
			report.Trades(out, fc.ID+" closed trades", s.Closed)
		}
	}
	if shown == 0 && stateFund != "" {
		return fmt.Errorf("no fund named %q", stateFund)
	}
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	if !stateYes {
		return errors.New("refusing to reset without --yes")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fc, ok := cfg.Fund(stateFund)
	if !ok {
		return fmt.Errorf("no fund named %q", stateFund)
	}
	st, err := store.Open(cfg.State.Type, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer st.Close()

	fresh := fund.NewState(fc.IDPrefix, fc.InitialBalance)
	if err := st.Save(context.Background(), fc.ID, fresh); err != nil {
		return err
	}
	fmt.Fprintf(cmdOut(), "✓ Reset %s to %s\n", fc.ID, report.Money(fresh.Balance))
	return nil
}
