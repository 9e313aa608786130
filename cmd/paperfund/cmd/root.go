package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rustyeddy/paperfund/config"
	"github.com/rustyeddy/paperfund/internal/logger"
)

const defaultConfigFile = "paperfund.yaml"

// v holds flag values overlaid with PAPERFUND_* environment variables.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "paperfund",
	Short: "Multi-asset paper trading funds and backtests",
	Long: `Paperfund runs simulated portfolios over forex, stocks and crypto daily candles.

It provides tools for:
  - Evaluating each configured fund once per trading day
  - Backtesting the same rules over historical candles
  - Monte Carlo, walk-forward and parameter stability checks
  - Inspecting persisted fund state

Every flag can also be set with a PAPERFUND_ environment variable,
for example PAPERFUND_DATA_DIR=/srv/candles. A .env file in the
working directory is loaded first.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", defaultConfigFile, "config file (YAML or JSON)")
	pf.String("data-dir", "", "candle data directory (overrides config)")
	pf.String("log-level", "", "log level: debug, info, warn, error")

	v.SetEnvPrefix("PAPERFUND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(pf)
}

// loadConfig reads the config file, falling back to defaults when the default
// path does not exist, then applies flag and environment overrides.
func loadConfig() (*config.Config, error) {
	path := v.GetString("config")
	cfg, err := config.LoadFromFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && path == defaultConfigFile:
		cfg = config.Default()
	case err != nil:
		return nil, err
	}

	if dir := v.GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if lvl := v.GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lg, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return lg, nil
}

func cmdOut() io.Writer {
	return rootCmd.OutOrStdout()
}
