package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/paperfund/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage paperfund configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  paperfund config init --output paperfund.yaml
  paperfund config validate --file paperfund.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file and its watchlist",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", defaultConfigFile, "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	_ = configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nCreate a watchlist, then run with:")
	fmt.Printf("  paperfund run --config %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	w, err := config.LoadWatchlist(cfg.Watchlist)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Data: %s (%d instruments)\n", cfg.DataDir, len(w.All()))
	fmt.Printf("  State: %s at %s\n", cfg.State.Type, cfg.State.Path)
	fmt.Printf("  Journal: %s\n", cfg.Journal.Type)
	for _, f := range cfg.Funds {
		fmt.Printf("  Fund %s: %s, $%.2f start, ids %s###\n", f.ID, f.Strategy, f.InitialBalance, f.IDPrefix)
	}
	return nil
}
