// Package config loads the paperfund configuration and watchlist files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/paperfund/backtest"
	"github.com/rustyeddy/paperfund/fund"
	"github.com/rustyeddy/paperfund/internal/logger"
	"github.com/rustyeddy/paperfund/journal"
	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/risk"
	"github.com/rustyeddy/paperfund/stats"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

const dateLayout = "2006-01-02"

// Config represents the complete paperfund configuration
type Config struct {
	DataDir      string           `json:"data_dir" yaml:"data_dir"`
	Watchlist    string           `json:"watchlist" yaml:"watchlist"`
	MaxStaleDays int              `json:"max_stale_days" yaml:"max_stale_days"`
	State        StateConfig      `json:"state" yaml:"state"`
	Journal      JournalConfig    `json:"journal" yaml:"journal"`
	Log          logger.Config    `json:"log" yaml:"log"`
	Funds        []FundConfig     `json:"funds" yaml:"funds"`
	Backtest     BacktestConfig   `json:"backtest" yaml:"backtest"`
	Thresholds   stats.Thresholds `json:"thresholds" yaml:"thresholds"`
}

// StateConfig selects the fund state store.
type StateConfig struct {
	Type string `json:"type" yaml:"type"` // "file" or "badger"
	Path string `json:"path" yaml:"path"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// FundConfig describes one paper portfolio. Rules, when set, replaces the preset.
type FundConfig struct {
	ID             string      `json:"id" yaml:"id"`
	Strategy       string      `json:"strategy" yaml:"strategy"`
	IDPrefix       string      `json:"id_prefix" yaml:"id_prefix"`
	InitialBalance float64     `json:"initial_balance" yaml:"initial_balance"`
	MinBars        int         `json:"min_bars,omitempty" yaml:"min_bars,omitempty"`
	Preset         string      `json:"preset,omitempty" yaml:"preset,omitempty"`
	Rules          *risk.Rules `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// MonteCarloConfig mirrors stats.MCConfig for the config file.
type MonteCarloConfig struct {
	Simulations   int     `json:"simulations" yaml:"simulations"`
	RuinThreshold float64 `json:"ruin_threshold" yaml:"ruin_threshold"`
	Seed          uint64  `json:"seed" yaml:"seed"`
	BlockSize     int     `json:"block_size" yaml:"block_size"`
}

type WalkForwardConfig struct {
	TrainDays int `json:"train_days" yaml:"train_days"`
	TestDays  int `json:"test_days" yaml:"test_days"`
}

// BacktestConfig contains backtest parameters
type BacktestConfig struct {
	Start          string            `json:"start" yaml:"start"` // YYYY-MM-DD
	End            string            `json:"end" yaml:"end"`
	InitialBalance float64           `json:"initial_balance" yaml:"initial_balance"`
	Strategy       string            `json:"strategy" yaml:"strategy"`
	Lookback       int               `json:"lookback" yaml:"lookback"`
	Preset         string            `json:"preset,omitempty" yaml:"preset,omitempty"`
	Rules          *risk.Rules       `json:"rules,omitempty" yaml:"rules,omitempty"`
	Parallel       int               `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	MonteCarlo     MonteCarloConfig  `json:"monte_carlo" yaml:"monte_carlo"`
	WalkForward    WalkForwardConfig `json:"walk_forward" yaml:"walk_forward"`
}

// Preset returns the named rule set. "" and "main" are the default fund rules.
func Preset(name string) (risk.Rules, error) {
	switch strings.ToLower(name) {
	case "", "main", "default":
		return risk.DefaultRules(), nil
	case "fractal":
		return risk.FractalRules(), nil
	}
	return risk.Rules{}, fmt.Errorf("unknown rules preset %q", name)
}

func rulesFor(preset string, override *risk.Rules) (risk.Rules, error) {
	if override != nil {
		return *override, nil
	}
	return Preset(preset)
}

// RiskRules resolves the fund's rules.
func (f FundConfig) RiskRules() (risk.Rules, error) {
	return rulesFor(f.Preset, f.Rules)
}

// Fund returns the first fund with the given id.
func (c *Config) Fund(id string) (FundConfig, bool) {
	for _, f := range c.Funds {
		if f.ID == id {
			return f, true
		}
	}
	return FundConfig{}, false
}

// MCConfig converts the Monte Carlo section for a run that started with initial.
func (m MonteCarloConfig) MCConfig(initial float64) stats.MCConfig {
	return stats.MCConfig{
		Simulations:    m.Simulations,
		InitialBalance: initial,
		RuinThreshold:  m.RuinThreshold,
		Seed:           m.Seed,
		BlockSize:      m.BlockSize,
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

// BacktestRun builds the engine config. symbols may be empty to trade every loaded series.
func (b BacktestConfig) BacktestRun(symbols []market.AssetConfig) (backtest.Config, error) {
	cfg := backtest.DefaultConfig()
	var err error
	if cfg.Rules, err = rulesFor(b.Preset, b.Rules); err != nil {
		return cfg, err
	}
	if b.Start != "" {
		if cfg.Start, err = parseDate(b.Start); err != nil {
			return cfg, fmt.Errorf("backtest.start: %w", err)
		}
	}
	if b.End != "" {
		if cfg.End, err = parseDate(b.End); err != nil {
			return cfg, fmt.Errorf("backtest.end: %w", err)
		}
	}
	if b.InitialBalance > 0 {
		cfg.InitialBalance = b.InitialBalance
	}
	if b.Strategy != "" {
		cfg.Strategy = b.Strategy
	}
	if b.Lookback > 0 {
		cfg.Lookback = b.Lookback
	}
	cfg.Symbols = symbols
	return cfg, nil
}

// LoadFromFile loads configuration from a file (YAML or JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	cfg.Funds = nil

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	if len(cfg.Funds) == 0 {
		cfg.Funds = Default().Funds
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// SaveToFile saves configuration to a file (YAML or JSON based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return invalid("data_dir is required")
	}
	if c.MaxStaleDays < 0 {
		return invalid("max_stale_days must be >= 0")
	}
	switch c.State.Type {
	case "", "file", "json", "badger":
	default:
		return invalid("state.type must be 'file' or 'badger'")
	}
	if c.State.Path == "" {
		return invalid("state.path is required")
	}
	switch c.Journal.Type {
	case "none", "":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return invalid("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return invalid("journal db_path required for SQLite type")
		}
	default:
		return invalid("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	if len(c.Funds) == 0 {
		return invalid("at least one fund is required")
	}
	seen := map[string]bool{}
	for i, f := range c.Funds {
		if f.ID == "" {
			return invalid("funds[%d].id is required", i)
		}
		if seen[f.ID] {
			return invalid("duplicate fund id %q", f.ID)
		}
		seen[f.ID] = true
		if f.InitialBalance < 0 {
			return invalid("fund %s: initial_balance must be >= 0", f.ID)
		}
		if f.Strategy != "trend" && f.Strategy != "fractal" {
			return invalid("fund %s: strategy must be 'trend' or 'fractal'", f.ID)
		}
		rules, err := f.RiskRules()
		if err != nil {
			return invalid("fund %s: %v", f.ID, err)
		}
		if err := rules.Validate(); err != nil {
			return invalid("fund %s: %v", f.ID, err)
		}
	}

	b := c.Backtest
	start, err := parseDate(b.Start)
	if err != nil {
		return invalid("backtest.start must be YYYY-MM-DD")
	}
	end, err := parseDate(b.End)
	if err != nil {
		return invalid("backtest.end must be YYYY-MM-DD")
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return invalid("backtest.end is before backtest.start")
	}
	if b.InitialBalance < 0 || b.Lookback < 0 || b.Parallel < 0 {
		return invalid("backtest initial_balance, lookback and parallel must be >= 0")
	}
	if b.MonteCarlo.Simulations < 0 || b.MonteCarlo.BlockSize < 0 {
		return invalid("backtest.monte_carlo simulations and block_size must be >= 0")
	}
	if b.MonteCarlo.RuinThreshold < 0 || b.MonteCarlo.RuinThreshold > 1 {
		return invalid("backtest.monte_carlo.ruin_threshold must be between 0 and 1")
	}
	return nil
}

// Default returns a configuration with the two standard funds.
func Default() *Config {
	mc := stats.DefaultMCConfig()
	return &Config{
		DataDir:      "data/candles",
		Watchlist:    "watchlist.yaml",
		MaxStaleDays: fund.DefaultMaxStaleDays,
		State:        StateConfig{Type: "file", Path: "data/state"},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "data/journal.db",
		},
		Log: logger.Default(),
		Funds: []FundConfig{
			{ID: "main", Strategy: "trend", IDPrefix: "T", InitialBalance: fund.DefaultInitialBalance, Preset: "main"},
			{ID: "fractal", Strategy: "fractal", IDPrefix: "F", InitialBalance: fund.DefaultInitialBalance, Preset: "fractal"},
		},
		Backtest: BacktestConfig{
			Start:          "2015-01-01",
			End:            "2025-12-31",
			InitialBalance: fund.DefaultInitialBalance,
			Strategy:       "trend",
			Lookback:       10,
			MonteCarlo: MonteCarloConfig{
				Simulations:   mc.Simulations,
				RuinThreshold: mc.RuinThreshold,
				Seed:          mc.Seed,
				BlockSize:     mc.BlockSize,
			},
			WalkForward: WalkForwardConfig{TrainDays: 504, TestDays: 126},
		},
		Thresholds: stats.DefaultThresholds(),
	}
}

// OpenJournal opens the configured journal backend. "none" yields journal.Nop.
func (j JournalConfig) OpenJournal() (journal.Journal, error) {
	switch j.Type {
	case "csv":
		c, err := journal.NewCSV(j.TradesFile, j.EquityFile)
		if err != nil {
			return nil, fmt.Errorf("open csv journal: %w", err)
		}
		return c, nil
	case "sqlite":
		db, err := journal.NewSQLite(j.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		return db, nil
	}
	return journal.Nop{}, nil
}

// LoadWatchlist reads a watchlist file (YAML or JSON).
func LoadWatchlist(path string) (market.Watchlist, error) {
	var w market.Watchlist
	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("read watchlist: %w", err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		if jerr := json.Unmarshal(data, &w); jerr != nil {
			return w, fmt.Errorf("parse watchlist (tried YAML and JSON): %w", err)
		}
	}
	if err := w.Validate(); err != nil {
		return w, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return w, nil
}
