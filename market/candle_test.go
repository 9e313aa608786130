package market

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestCandleValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		c    Candle
		ok   bool
	}{
		{"good", Candle{Open: 1, High: 2, Low: 0.5, Close: 1.5}, true},
		{"doji", Candle{Open: 1, High: 1, Low: 1, Close: 1}, true},
		{"zero open", Candle{Open: 0, High: 2, Low: 0.5, Close: 1.5}, false},
		{"negative low", Candle{Open: 1, High: 2, Low: -1, Close: 1.5}, false},
		{"high below close", Candle{Open: 1, High: 1.2, Low: 0.5, Close: 1.5}, false},
		{"low above open", Candle{Open: 1, High: 2, Low: 1.1, Close: 1.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFilterValid(t *testing.T) {
	t.Parallel()

	in := []Candle{
		{Date: day(0), Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Date: day(1), Open: 1, High: 0.9, Low: 0.5, Close: 1.5},
		{Date: day(2), Open: 1, High: 2, Low: 0.5, Close: 1.5},
	}
	out, dropped := FilterValid(in)
	assert.Equal(t, 1, dropped)
	require.Len(t, out, 2)
	assert.Equal(t, day(2), out[1].Date)
	assert.Len(t, in, 3)
}

func TestUpToAndIndexOn(t *testing.T) {
	t.Parallel()

	cs := []Candle{{Date: day(0)}, {Date: day(1)}, {Date: day(3)}}
	assert.Len(t, UpTo(cs, day(2)), 2)
	assert.Len(t, UpTo(cs, day(3)), 3)
	assert.Empty(t, UpTo(cs, day(-1)))

	assert.Equal(t, 2, IndexOn(cs, day(3)))
	assert.Equal(t, -1, IndexOn(cs, day(2)))
}

func TestCandleSetRoundTripAndFiltering(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	k := Key{Class: Forex, Symbol: "EURUSD"}
	path := CandlePath(dir, k)
	assert.Equal(t, filepath.Join(dir, "forex", "EURUSD-daily.json"), path)

	candles := []Candle{
		{Date: day(1), Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15},
		{Date: day(0), Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15},
		{Date: day(1), Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15},
		{Date: day(2), Open: 1.1, High: 1.0, Low: 1.0, Close: 1.15},
	}
	require.NoError(t, SaveCandleSet(path, "EURUSD", candles))

	cs, err := LoadCandleSet(path, Forex)
	require.NoError(t, err)
	assert.Equal(t, 1, cs.Duplicates)
	assert.Equal(t, 1, cs.Invalid)
	require.Len(t, cs.Candles, 2)
	assert.Equal(t, day(0), cs.Candles[0].Date)

	assert.Equal(t, 9, cs.Age(day(10)))
	assert.NoError(t, cs.CheckStale(day(10), 0))
	assert.ErrorIs(t, cs.CheckStale(day(10), 5), ErrStale)
}

func TestLoadSeriesReportsMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	eur := AssetConfig{Symbol: "EURUSD", Class: Forex}
	spy := AssetConfig{Symbol: "SPY", Class: Stocks}
	require.NoError(t, SaveCandleSet(CandlePath(dir, eur.Key()), "EURUSD",
		[]Candle{{Date: day(0), Open: 1, High: 1, Low: 1, Close: 1}}))

	s, sets, missing, err := LoadSeries(dir, []AssetConfig{eur, spy})
	require.NoError(t, err)
	assert.Len(t, s[eur.Key()], 1)
	assert.Len(t, sets, 1)
	assert.Equal(t, []Key{spy.Key()}, missing)
}
