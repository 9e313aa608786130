package fund

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/paperfund/asset"
	"github.com/rustyeddy/paperfund/journal"
	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/risk"
	"github.com/rustyeddy/paperfund/signals"
	"github.com/rustyeddy/paperfund/stats"
	"github.com/rustyeddy/paperfund/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	eurusd = market.AssetConfig{Symbol: "EURUSD", Class: market.Forex}
	gbpusd = market.AssetConfig{Symbol: "GBPUSD", Class: market.Forex}
	aapl   = market.AssetConfig{Symbol: "AAPL", Class: market.Stocks, Group: "tech"}
	msft   = market.AssetConfig{Symbol: "MSFT", Class: market.Stocks, Group: "tech"}
)

func day(s string) time.Time {
	d, err := time.Parse(market.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// frictionless rules keep the arithmetic in tests exact.
func frictionless() risk.Rules {
	r := risk.DefaultRules()
	r.Spread = asset.Costs{}
	r.Slippage = asset.Costs{}
	r.MaxLeverage = 100
	return r
}

func longTrade(c market.AssetConfig, entry, stop, tp, size float64, opened string) trade.Trade {
	return trade.Trade{
		ID: "T001", Class: c.Class, Symbol: c.Symbol, Direction: market.Long,
		Entry: entry, StopLoss: stop, OriginalStop: stop, TakeProfit: tp, Size: size,
		Opened: day(opened), HighWaterMark: entry, LowWaterMark: entry,
	}
}

func TestCheckStopsStopWinsTie(t *testing.T) {
	t.Parallel()

	st := NewState("T", 10_000)
	st.Open = append(st.Open, longTrade(aapl, 100, 98, 104, 100, "2024-03-04"))

	bars := map[market.Key]market.Candle{
		aapl.Key(): {Date: day("2024-03-05"), Open: 100, High: 105, Low: 97, Close: 101},
	}
	closed := CheckStops(st, frictionless(), market.Watchlist{}, day("2024-03-05"), bars, nil)
	require.Len(t, closed, 1)
	assert.Equal(t, trade.StopLoss, closed[0].CloseReason)
	assert.Equal(t, 98.0, closed[0].Exit)
	assert.InDelta(t, -200, closed[0].PnL, 1e-9)
	assert.Empty(t, st.Open)
	assert.InDelta(t, 9_800, st.Balance, 1e-9)
	assert.Equal(t, 10_000.0, st.PeakBalance)
}

func TestCheckStopsShortAndUntouched(t *testing.T) {
	t.Parallel()

	st := NewState("T", 10_000)
	short := longTrade(aapl, 100, 102, 96, 50, "2024-03-04")
	short.Direction = market.Short
	st.Open = append(st.Open, short, longTrade(msft, 300, 290, 320, 10, "2024-03-04"))

	bars := map[market.Key]market.Candle{
		aapl.Key(): {Date: day("2024-03-05"), Open: 99, High: 100, Low: 95, Close: 96.5},
		msft.Key(): {Date: day("2024-03-05"), Open: 300, High: 305, Low: 295, Close: 301},
	}
	closed := CheckStops(st, frictionless(), market.Watchlist{}, day("2024-03-05"), bars, nil)
	require.Len(t, closed, 1)
	assert.Equal(t, trade.TakeProfit, closed[0].CloseReason)
	assert.InDelta(t, 200, closed[0].PnL, 1e-9)
	require.Len(t, st.Open, 1)
	assert.Equal(t, "MSFT", st.Open[0].Symbol)
	assert.Equal(t, 10_200.0, st.PeakBalance)
}

func TestCheckStopsIgnoresEntryBar(t *testing.T) {
	t.Parallel()

	st := NewState("T", 10_000)
	st.Open = append(st.Open, longTrade(aapl, 100, 98, 104, 100, "2024-03-05"))
	bars := map[market.Key]market.Candle{
		aapl.Key(): {Date: day("2024-03-05"), Open: 100, High: 105, Low: 97, Close: 100},
	}
	assert.Empty(t, CheckStops(st, frictionless(), market.Watchlist{}, day("2024-03-05"), bars, nil))
	assert.Len(t, st.Open, 1)
}

func TestTrailStops(t *testing.T) {
	t.Parallel()

	r := frictionless()
	r.TrailingStop = risk.TrailingStop{Enabled: true, ActivationRR: 1, ATRMultiplier: 2}

	st := NewState("F", 10_000)
	tr := longTrade(aapl, 100, 98, 110, 100, "2024-03-04")
	tr.ATRAtEntry = 1
	st.Open = append(st.Open, tr)

	bar := func(d string, high, low float64) map[market.Key]market.Candle {
		return map[market.Key]market.Candle{aapl.Key(): {Date: day(d), Open: low, High: high, Low: low, Close: low}}
	}

	TrailStops(st, r, bar("2024-03-05", 101.5, 100))
	assert.Equal(t, 98.0, st.Open[0].StopLoss, "not activated below 1R")

	TrailStops(st, r, bar("2024-03-06", 103, 101))
	assert.Equal(t, 103.0, st.Open[0].HighWaterMark)
	assert.Equal(t, 101.0, st.Open[0].StopLoss)

	TrailStops(st, r, bar("2024-03-07", 102, 101.5))
	assert.Equal(t, 101.0, st.Open[0].StopLoss, "never loosens")

	r.TrailingStop.Enabled = false
	TrailStops(st, r, bar("2024-03-08", 110, 105))
	assert.Equal(t, 101.0, st.Open[0].StopLoss)
	assert.Equal(t, 110.0, st.Open[0].HighWaterMark)
}

func TestTrailStopsShort(t *testing.T) {
	t.Parallel()

	r := frictionless()
	r.TrailingStop = risk.TrailingStop{Enabled: true, ActivationRR: 1, ATRMultiplier: 1}

	st := NewState("F", 10_000)
	tr := longTrade(aapl, 100, 102, 90, 100, "2024-03-04")
	tr.Direction = market.Short
	tr.ATRAtEntry = 1
	st.Open = append(st.Open, tr)

	TrailStops(st, r, map[market.Key]market.Candle{
		aapl.Key(): {Date: day("2024-03-05"), Open: 99, High: 99, Low: 97, Close: 97.5},
	})
	assert.Equal(t, 97.0, st.Open[0].LowWaterMark)
	assert.Equal(t, 98.0, st.Open[0].StopLoss)
}

func TestWeekendCloseOnlyForexOnFriday(t *testing.T) {
	t.Parallel()

	st := NewState("T", 10_000)
	st.Open = append(st.Open,
		longTrade(eurusd, 1.1, 1.09, 1.12, 10_000, "2024-02-28"),
		longTrade(aapl, 100, 98, 104, 10, "2024-02-28"),
	)
	bars := map[market.Key]market.Candle{
		eurusd.Key(): {Date: day("2024-03-01"), Open: 1.1, High: 1.106, Low: 1.099, Close: 1.105},
	}

	assert.Empty(t, WeekendClose(st, frictionless(), market.Watchlist{}, day("2024-02-29"), bars, nil))

	closed := WeekendClose(st, frictionless(), market.Watchlist{}, day("2024-03-01"), bars, nil)
	require.Len(t, closed, 1)
	assert.Equal(t, trade.WeekendClose, closed[0].CloseReason)
	assert.Equal(t, 1.105, closed[0].Exit)
	assert.InDelta(t, 50, closed[0].PnL, 1e-6)
	require.Len(t, st.Open, 1)
	assert.Equal(t, market.Stocks, st.Open[0].Class)
}

func TestOpenTradeAppliesSlippage(t *testing.T) {
	t.Parallel()

	r := risk.DefaultRules()
	st := NewState("T", 10_000)
	c := Candidate{Config: aapl, ATR: 1.5, Signal: signals.Signal{
		Direction: market.Long, Entry: 100, StopLoss: 98, TakeProfit: 104, StopDistance: 2, Kind: signals.KindTrend,
	}}

	tr, _, ok := OpenTrade(st, r, c, day("2024-03-04"), 1, nil)
	require.True(t, ok)
	assert.Equal(t, "T001", tr.ID)
	assert.Equal(t, 2, st.NextID)
	assert.InDelta(t, 100.01, tr.Entry, 1e-9)
	assert.InDelta(t, 97.99, tr.StopLoss, 1e-9)
	assert.Equal(t, tr.StopLoss, tr.OriginalStop)
	assert.Equal(t, 104.0, tr.TakeProfit)
	assert.Equal(t, 99.0, tr.Size)
	assert.InDelta(t, 199.98, tr.RiskAmount, 1e-6)
	assert.Equal(t, 1.5, tr.ATRAtEntry)
	assert.Len(t, st.Open, 1)

	half, _, ok := OpenTrade(st, r, Candidate{Config: msft, Signal: c.Signal}, day("2024-03-04"), 0.5, nil)
	require.True(t, ok)
	assert.Equal(t, 50.0, half.Size, "99 x 0.5 rounds to 50")
	assert.Equal(t, "T002", half.ID)
}

func TestScaleSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		class market.AssetClass
		size  float64
		mult  float64
		want  float64
	}{
		{"rounds half up", market.Stocks, 99, 0.5, 50},
		{"rounds down", market.Stocks, 10, 0.33, 3},
		{"keeps one unit", market.Stocks, 1, 0.3, 1},
		{"forex keeps one unit", market.Forex, 1, 0.25, 1},
		{"crypto rounds to 8dp", market.Crypto, 0.123456789, 0.5, 0.06172839},
		{"crypto keeps one satoshi", market.Crypto, 1e-8, 0.3, 1e-8},
		{"zero stays zero", market.Stocks, 0, 0.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, scaleSize(tt.class, tt.size, tt.mult), 1e-12)
		})
	}
}

func TestOpenTradeRegimeScaleNeverZero(t *testing.T) {
	t.Parallel()

	st := NewState("T", 10_000)
	c := Candidate{Config: aapl, Signal: signals.Signal{
		Direction: market.Long, Entry: 1000, StopLoss: 850, TakeProfit: 1300, StopDistance: 150, Kind: signals.KindTrend,
	}}

	tr, _, ok := OpenTrade(st, frictionless(), c, day("2024-03-04"), 0.3, nil)
	require.True(t, ok)
	assert.Equal(t, 1.0, tr.Size)
}

func TestOpenTradeLeverageCap(t *testing.T) {
	t.Parallel()

	r := frictionless()
	r.MaxLeverage = 1
	st := NewState("T", 10_000)
	c := Candidate{Config: aapl, Signal: signals.Signal{Direction: market.Long, Entry: 100, StopLoss: 99.9, TakeProfit: 100.2}}

	tr, _, ok := OpenTrade(st, r, c, day("2024-03-04"), 1, nil)
	require.True(t, ok)
	assert.Equal(t, 100.0, tr.Size, "2000 shares capped to 1x notional")

	st.Balance = 50
	_, skip, ok := OpenTrade(st, r, Candidate{Config: msft, Signal: signals.Signal{
		Direction: market.Long, Entry: 300, StopLoss: 299, TakeProfit: 302,
	}}, day("2024-03-04"), 1, nil)
	assert.False(t, ok)
	assert.Equal(t, "ZERO_SIZE", skip.Code)
}

func candidate(c market.AssetConfig, dir market.Direction, entry, stop float64) Candidate {
	dist := (entry - stop) * dir.Sign()
	return Candidate{Config: c, Regime: stats.Unknown, Signal: signals.Signal{
		Direction: dir, Entry: entry, StopLoss: stop, TakeProfit: entry + dir.Sign()*dist*2,
		StopDistance: dist, Kind: signals.KindFractal,
	}}
}

func TestStepCorrelationAndLimits(t *testing.T) {
	t.Parallel()

	r := frictionless()
	r.Correlation.Enabled = true
	w := market.Watchlist{Forex: []market.AssetConfig{eurusd, gbpusd}, Stocks: []market.AssetConfig{aapl, msft}}

	st := NewState("T", 10_000)
	res := Step(st, r, w, DayInput{
		Date: day("2024-03-04"),
		Candidates: []Candidate{
			candidate(eurusd, market.Long, 1.10, 1.095),
			candidate(gbpusd, market.Long, 1.27, 1.265),
			candidate(aapl, market.Long, 100, 98),
			candidate(msft, market.Long, 300, 295),
			candidate(aapl, market.Long, 100, 98),
		},
	})

	require.Len(t, res.Opened, 2)
	assert.Equal(t, "EURUSD", res.Opened[0].Symbol)
	assert.Equal(t, "AAPL", res.Opened[1].Symbol)

	codes := map[string]string{}
	for _, s := range res.Skipped {
		codes[s.Key.Symbol] = s.Code
	}
	assert.Equal(t, "CORRELATED_CURRENCY", codes["GBPUSD"])
	assert.Equal(t, "CORRELATED_GROUP", codes["MSFT"])
	assert.Equal(t, "ALREADY_OPEN", codes["AAPL"])
	assert.Equal(t, 10_000.0, res.Equity.Balance)
}

func TestStepDrawdownBreaker(t *testing.T) {
	t.Parallel()

	st := NewState("T", 10_000)
	st.Balance = 4_000
	res := Step(st, frictionless(), market.Watchlist{}, DayInput{
		Date:       day("2024-03-04"),
		Candidates: []Candidate{candidate(aapl, market.Long, 100, 98)},
	})
	assert.True(t, res.Halted)
	assert.Empty(t, res.Opened)
	assert.Empty(t, st.Open)
}

func TestEquityCurveFilter(t *testing.T) {
	t.Parallel()

	r := frictionless()
	r.EquityCurveFilter = risk.EquityCurveFilter{Enabled: true, LookbackTrades: 3, ReducedMaxPositions: 1}

	st := NewState("T", 10_000)
	st.Closed = []trade.Trade{{PnL: 100}, {PnL: -50}, {PnL: -60}}
	assert.Equal(t, 1, EffectiveMaxPositions(st, r))

	st.Closed = append(st.Closed, trade.Trade{PnL: 200})
	assert.Equal(t, r.MaxPositions.Global, EffectiveMaxPositions(st, r))

	st.Closed = st.Closed[:2]
	assert.Equal(t, r.MaxPositions.Global, EffectiveMaxPositions(st, r), "not enough history")
}

func TestRegimeMultiplier(t *testing.T) {
	t.Parallel()

	r := frictionless()
	assert.Equal(t, 1.0, RegimeMultiplier(r, stats.BearHighVol))

	r.RegimeSizing = risk.RegimeSizing{Enabled: true, Multipliers: map[string]float64{
		string(stats.BearHighVol): 0, string(stats.Ranging): 0.5,
	}}
	assert.Equal(t, 0.0, RegimeMultiplier(r, stats.BearHighVol))
	assert.Equal(t, 0.5, RegimeMultiplier(r, stats.Ranging))
	assert.Equal(t, 1.0, RegimeMultiplier(r, stats.BullLowVol))

	st := NewState("T", 10_000)
	c := candidate(aapl, market.Long, 100, 98)
	c.Regime = stats.BearHighVol
	res := Step(st, r, market.Watchlist{}, DayInput{Date: day("2024-03-04"), Candidates: []Candidate{c}})
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "REGIME_BLOCKED", res.Skipped[0].Code)
}

func TestCrossRates(t *testing.T) {
	t.Parallel()

	rates := CrossRates(map[market.Key]market.Candle{
		{Class: market.Forex, Symbol: "USDJPY"}: {Close: 150},
		{Class: market.Forex, Symbol: "EURUSD"}: {Close: 1.1},
		{Class: market.Stocks, Symbol: "USDX"}:  {Close: 5},
	})
	assert.Equal(t, asset.Rates{"USDJPY": 150}, rates)
}

func TestStateMigrate(t *testing.T) {
	t.Parallel()

	st := &State{Balance: 9_500, Closed: []trade.Trade{{ID: "T001"}, {ID: "T002"}}}
	assert.True(t, st.Migrate(10_000))
	assert.Equal(t, 10_000.0, st.PeakBalance)
	assert.Equal(t, 3, st.NextID)
	assert.Equal(t, DefaultIDPrefix, st.IDPrefix)
	assert.NotNil(t, st.Open)
	assert.False(t, st.Migrate(10_000))

	c := st.Clone()
	c.Closed[0].ID = "X"
	assert.Equal(t, "T001", st.Closed[0].ID)
}

// fixed signals LONG at the last close with a $2 stop and a $4 target.
type fixed struct{}

func (fixed) Name() string { return "fixed" }

func (fixed) Generate(_ market.AssetConfig, cs []market.Candle, _ signals.Params) (signals.Signal, bool) {
	last := cs[len(cs)-1]
	return signals.Signal{
		Direction: market.Long, Entry: last.Close, StopLoss: last.Close - 2, TakeProfit: last.Close + 4,
		StopDistance: 2, Kind: signals.KindTrend, Detail: "fixed",
	}, true
}

func TestEvaluateDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := market.Series{aapl.Key(): {
		{Date: day("2024-03-01"), Open: 100, High: 101, Low: 99, Close: 100},
		{Date: day("2024-03-04"), Open: 100, High: 101, Low: 99, Close: 100},
		{Date: day("2024-03-05"), Open: 100, High: 105, Low: 99.5, Close: 104.5},
	}}

	j, err := journal.NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	f := &Fund{
		ID:        "main",
		Rules:     frictionless(),
		Watchlist: market.Watchlist{Stocks: []market.AssetConfig{aapl}},
		Source:    src,
		Generator: fixed{},
		Journal:   j,
		Logger:    zaptest.NewLogger(t),
	}
	st := NewState("T", 10_000)

	res, err := f.EvaluateDay(ctx, st, day("2024-03-04"))
	require.NoError(t, err)
	require.Len(t, res.Opened, 1)
	assert.Equal(t, 100.0, res.Opened[0].Size)
	assert.Equal(t, "2024-03-04", st.LastRunDate)
	require.NoError(t, f.RecordDay(res))

	again, err := f.EvaluateDay(ctx, st, day("2024-03-04").Add(15*time.Hour))
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, 2, st.NextID)
	require.NoError(t, f.RecordDay(again))

	res, err = f.EvaluateDay(ctx, st, day("2024-03-05"))
	require.NoError(t, err)
	require.NoError(t, f.RecordDay(res))
	require.Len(t, res.Closed, 1)
	assert.Equal(t, trade.TakeProfit, res.Closed[0].CloseReason)
	assert.Equal(t, 400.0, res.Closed[0].PnL)
	require.Len(t, res.Opened, 1)
	assert.Equal(t, "T002", res.Opened[0].ID)
	assert.Equal(t, 104.0, res.Opened[0].Size)

	assert.Equal(t, st.InitialBalance+trade.TotalPnL(st.Closed), st.Balance)
	assert.Equal(t, 10_400.0, st.PeakBalance)

	rows, err := j.ListTrades(ctx, "main")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "T001", rows[0].TradeID)

	eq, err := j.ListEquity(ctx, "main")
	require.NoError(t, err)
	require.Len(t, eq, 2)
	assert.Equal(t, st.Balance, eq[1].Balance)
	assert.Equal(t, 1, eq[1].Open)
}

func TestEvaluateDayLeavesJournalToRecordDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	j, err := journal.NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	f := &Fund{
		ID:        "main",
		Rules:     frictionless(),
		Watchlist: market.Watchlist{Stocks: []market.AssetConfig{aapl}},
		Source: market.Series{aapl.Key(): {
			{Date: day("2024-03-04"), Open: 100, High: 101, Low: 99, Close: 100},
		}},
		Generator: fixed{},
		Journal:   j,
	}
	res, err := f.EvaluateDay(ctx, NewState("T", 10_000), day("2024-03-04"))
	require.NoError(t, err)
	require.Len(t, res.Opened, 1)

	eq, err := j.ListEquity(ctx, "main")
	require.NoError(t, err)
	assert.Empty(t, eq, "nothing is journaled until the state is saved")

	require.NoError(t, f.RecordDay(res))
	require.NoError(t, f.RecordDay(res))
	eq, err = j.ListEquity(ctx, "main")
	require.NoError(t, err)
	assert.Len(t, eq, 1)
}

// When the newest candle lags the run date, the trade opened from it must
// still be checked against the next candle that arrives.
func TestEvaluateDayChecksStopsOnLaggedCandles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := market.Series{aapl.Key(): {
		{Date: day("2024-03-01"), Open: 100, High: 101, Low: 99, Close: 100},
		{Date: day("2024-03-04"), Open: 100, High: 101, Low: 99, Close: 100},
	}}
	f := &Fund{
		ID:        "main",
		Rules:     frictionless(),
		Watchlist: market.Watchlist{Stocks: []market.AssetConfig{aapl}},
		Source:    src,
		Generator: fixed{},
		Logger:    zaptest.NewLogger(t),
	}
	st := NewState("T", 10_000)

	res, err := f.EvaluateDay(ctx, st, day("2024-03-05"))
	require.NoError(t, err)
	require.Len(t, res.Opened, 1)
	assert.True(t, res.Opened[0].EntryBar.Equal(day("2024-03-04")))
	assert.True(t, res.Opened[0].Opened.Equal(day("2024-03-05")))

	src[aapl.Key()] = append(src[aapl.Key()],
		market.Candle{Date: day("2024-03-05"), Open: 99, High: 100, Low: 95, Close: 96})

	res, err = f.EvaluateDay(ctx, st, day("2024-03-06"))
	require.NoError(t, err)
	require.Len(t, res.Closed, 1)
	assert.Equal(t, trade.StopLoss, res.Closed[0].CloseReason)
	assert.Equal(t, 98.0, res.Closed[0].Exit)
	assert.Equal(t, -200.0, res.Closed[0].PnL)
}

func TestPreviewLeavesStateAlone(t *testing.T) {
	t.Parallel()

	f := &Fund{
		ID:        "main",
		Rules:     frictionless(),
		Watchlist: market.Watchlist{Stocks: []market.AssetConfig{aapl}},
		Source: market.Series{aapl.Key(): {
			{Date: day("2024-03-04"), Open: 100, High: 101, Low: 99, Close: 100},
		}},
		Generator: fixed{},
	}
	st := NewState("T", 10_000)

	res, preview, err := f.Preview(context.Background(), st, day("2024-03-04"))
	require.NoError(t, err)
	require.Len(t, res.Opened, 1)
	assert.Len(t, preview.Open, 1)
	assert.Equal(t, "2024-03-04", preview.LastRunDate)

	assert.Empty(t, st.Open)
	assert.Empty(t, st.LastRunDate)
	assert.Equal(t, 1, st.NextID)
}

func TestEvaluateDayNeedsGenerator(t *testing.T) {
	t.Parallel()

	f := &Fund{ID: "x", Source: market.Series{}}
	_, err := f.EvaluateDay(context.Background(), NewState("T", 1000), day("2024-03-04"))
	assert.Error(t, err)
}
