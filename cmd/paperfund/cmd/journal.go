package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/paperfund/journal"
	"github.com/rustyeddy/paperfund/report"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite trade journal",
	Long: `Query closed trades, equity history and recorded backtest runs.

A book is a fund id for live trading or a run id for a recorded backtest.

Subcommands:
  trades - List closed trades of a book
  equity - List the equity history of a book
  run    - Print a recorded backtest run as org-mode

Examples:
  paperfund journal trades main
  paperfund journal equity fractal
  paperfund journal run 01HZX3Q7K2M4N8P0R5T6V9W1YB`,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades <book>",
	Short: "List closed trades of a book",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrades,
}

var journalEquityCmd = &cobra.Command{
	Use:   "equity <book>",
	Short: "List the equity history of a book",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalEquity,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Print a recorded backtest run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradesCmd)
	journalCmd.AddCommand(journalEquityCmd)
	journalCmd.AddCommand(journalRunCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (default: journal.db_path from config)")
}

func openJournalDB() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Journal.DBPath
	}
	if path == "" {
		return nil, fmt.Errorf("no journal database configured")
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTrades(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	report.Records(cmdOut(), args[0]+" trades", recs)
	return nil
}

func runJournalEquity(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	snaps, err := j.ListEquity(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("query equity: %w", err)
	}
	report.Equity(cmdOut(), args[0]+" equity", snaps)
	return nil
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	run, err := j.GetBacktestRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	org, err := run.Org()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmdOut(), org)
	return nil
}
