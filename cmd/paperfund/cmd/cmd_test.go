package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/paperfund/config"
	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/store"
)

func TestSelectSymbols(t *testing.T) {
	t.Parallel()

	w := market.Watchlist{
		Forex:  []market.AssetConfig{{Symbol: "EURUSD"}},
		Stocks: []market.AssetConfig{{Symbol: "AAPL", Group: "tech"}},
	}

	all, err := selectSymbols(w, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := selectSymbols(w, []string{"aapl", "forex/EURUSD"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tech", got[0].Group)
	assert.Equal(t, market.Forex, got[1].Class)

	_, err = selectSymbols(w, []string{"TSLA"})
	assert.Error(t, err)
	_, err = selectSymbols(w, []string{"bonds/TLT"})
	assert.Error(t, err)
}

func day(i int) time.Time {
	return time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

// workspace writes a config, a one-stock watchlist and 40 days of rising candles.
func workspace(t *testing.T) (cfgPath string, cfg *config.Config) {
	t.Helper()
	dir := t.TempDir()

	cfg = config.Default()
	cfg.DataDir = filepath.Join(dir, "candles")
	cfg.Watchlist = filepath.Join(dir, "watchlist.yaml")
	cfg.State = config.StateConfig{Type: "file", Path: filepath.Join(dir, "state")}
	cfg.Journal = config.JournalConfig{Type: "sqlite", DBPath: filepath.Join(dir, "db", "journal.db")}
	cfg.Log.Level = "error"
	cfgPath = filepath.Join(dir, "paperfund.yaml")
	require.NoError(t, cfg.SaveToFile(cfgPath))
	require.NoError(t, os.WriteFile(cfg.Watchlist, []byte("stocks:\n  - symbol: AAPL\n"), 0o644))

	candles := make([]market.Candle, 40)
	p := 100.0
	for i := range candles {
		candles[i] = market.Candle{Date: day(i), Open: p, High: p + 2, Low: p - 1, Close: p + 1}
		p++
	}
	k := market.Key{Class: market.Stocks, Symbol: "AAPL"}
	require.NoError(t, market.SaveCandleSet(market.CandlePath(cfg.DataDir, k), "AAPL", candles))
	return cfgPath, cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	runFund, runDate, runDryRun = "", "", false
	stateFund, stateTrades, stateYes = "", false, false
	journalDBPath = ""

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// Commands share package-level flag state, so these run sequentially.
func TestRunAndState(t *testing.T) {
	cfgPath, cfg := workspace(t)
	date := day(39).Format(market.DateLayout)

	fs, err := store.NewFileStore(cfg.State.Path)
	require.NoError(t, err)

	out, err := execute(t, "run", "--config", cfgPath, "--date", date, "--fund", "main", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "main: dry run, nothing saved")
	assert.Contains(t, out, "main: equity")
	assert.NoFileExists(t, fs.Path("main"))

	out, err = execute(t, "run", "--config", cfgPath, "--date", date, "--fund", "main")
	require.NoError(t, err)
	assert.Contains(t, out, "main: equity")
	assert.NotContains(t, out, "dry run")

	assert.FileExists(t, fs.Path("main"))
	assert.NoFileExists(t, fs.Path("fractal"))
	assert.FileExists(t, cfg.Journal.DBPath)

	out, err = execute(t, "run", "--config", cfgPath, "--date", date, "--fund", "main")
	require.NoError(t, err)
	assert.Contains(t, out, "already evaluated today")

	out, err = execute(t, "journal", "equity", "main", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, date)

	out, err = execute(t, "state", "show", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Closed trades")
	assert.Contains(t, out, date)
	assert.Contains(t, out, "fractal: no saved state")

	_, err = execute(t, "state", "reset", "--config", cfgPath, "--fund", "main")
	assert.ErrorContains(t, err, "--yes")

	out, err = execute(t, "state", "reset", "--config", cfgPath, "--fund", "main", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset main to $10000.00")

	_, err = execute(t, "run", "--config", cfgPath, "--date", date, "--fund", "nope")
	assert.ErrorContains(t, err, "no fund named")
}
