package backtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/paperfund/journal"
	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/risk"
	"github.com/rustyeddy/paperfund/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	eurusd = market.AssetConfig{Symbol: "EURUSD", Class: market.Forex}
	aapl   = market.AssetConfig{Symbol: "AAPL", Class: market.Stocks, Group: "tech"}
)

func date(i int) time.Time {
	return time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func uptrend(start float64, days int, step float64) []market.Candle {
	out := make([]market.Candle, days)
	p := start
	for i := range out {
		out[i] = market.Candle{Date: date(i), Open: p, High: p + 2*step, Low: p - step, Close: p + step}
		p += step
	}
	return out
}

// zigzag alternates up and down legs so both stops and targets get hit.
func zigzag(start float64, days int) []market.Candle {
	out := make([]market.Candle, days)
	p := start
	for i := range out {
		step := 1.0
		if (i/6)%2 == 1 {
			step = -1.0
		}
		out[i] = market.Candle{Date: date(i), Open: p, High: max(p, p+step) + 0.5, Low: min(p, p+step) - 0.5, Close: p + step}
		p += step
	}
	return out
}

// breakout is flat around 100 with one swing high (103, day 22) and one swing
// low (98, day 25), then closes through the swing high on day 30 and keeps rising.
func breakout() []market.Candle {
	out := make([]market.Candle, 0, 40)
	for i := 0; i < 30; i++ {
		c := market.Candle{Date: date(i), Open: 100, High: 100.5, Low: 99.5, Close: 100}
		switch i {
		case 22:
			c.High = 103
		case 25:
			c.Low = 98
		}
		out = append(out, c)
	}
	p := 100.0
	for i := 30; i < 40; i++ {
		next := p + 1.5
		if i == 30 {
			next = 104
		}
		out = append(out, market.Candle{Date: date(i), Open: p, High: next + 0.5, Low: p - 0.2, Close: next})
		p = next
	}
	return out
}

func config(symbols ...market.AssetConfig) Config {
	cfg := DefaultConfig()
	cfg.Start, cfg.End = time.Time{}, time.Time{}
	cfg.Lookback = 5
	cfg.Symbols = symbols
	return cfg
}

func assertClosedBook(t *testing.T, r Result) {
	t.Helper()
	assert.InDelta(t, r.Config.InitialBalance+trade.TotalPnL(r.Trades), r.FinalBalance, 1e-6)
	for _, tr := range r.Trades {
		assert.True(t, tr.IsClosed(), tr.ID)
	}
	if len(r.EquityCurve) > 0 {
		assert.InDelta(t, r.FinalBalance, r.EquityCurve[len(r.EquityCurve)-1].Balance, 1e-9)
	}
}

func TestRunEmptyData(t *testing.T) {
	t.Parallel()

	r, err := Run(DefaultConfig(), market.Series{})
	require.NoError(t, err)
	assert.Empty(t, r.Trades)
	assert.Empty(t, r.EquityCurve)
	assert.Equal(t, 10_000.0, r.FinalBalance)
	assert.NotEmpty(t, r.RunID)
}

func TestRunUptrendGoesLong(t *testing.T) {
	t.Parallel()

	data := market.Series{eurusd.Key(): uptrend(1.10, 30, 0.001)}
	r, err := Run(config(eurusd), data)
	require.NoError(t, err)

	require.NotEmpty(t, r.Trades)
	for _, tr := range r.Trades {
		assert.Equal(t, market.Long, tr.Direction)
		assert.Equal(t, "EURUSD", tr.Symbol)
		assert.Contains(t, tr.ID, IDPrefix)
	}
	assert.Len(t, r.EquityCurve, 30)
	assert.NotEqual(t, r.Config.InitialBalance, r.FinalBalance)
	assert.Greater(t, r.FinalBalance, r.Config.InitialBalance)
	assertClosedBook(t, r)
}

func TestRunClosedBookAndEndOfTest(t *testing.T) {
	t.Parallel()

	data := market.Series{
		aapl.Key():   zigzag(100, 60),
		eurusd.Key(): uptrend(1.10, 60, 0.0005),
	}
	cfg := config(eurusd, aapl)
	r, err := Run(cfg, data)
	require.NoError(t, err)
	require.NotEmpty(t, r.Trades)
	assertClosedBook(t, r)

	reasons := map[trade.CloseReason]int{}
	for _, tr := range r.Trades {
		reasons[tr.CloseReason]++
		assert.False(t, tr.Closed.Before(tr.Opened))
	}
	assert.Positive(t, reasons[trade.WeekendClose], "forex is flattened on Fridays")

	again, err := Run(cfg, data)
	require.NoError(t, err)
	assert.Equal(t, r.Trades, again.Trades)
	assert.Equal(t, r.EquityCurve, again.EquityCurve)
	assert.NotEqual(t, r.RunID, again.RunID)
}

func TestRunDateRange(t *testing.T) {
	t.Parallel()

	data := market.Series{aapl.Key(): zigzag(100, 40)}
	cfg := config(aapl)
	cfg.Start, cfg.End = date(10), date(19)

	r, err := Run(cfg, data)
	require.NoError(t, err)
	require.Len(t, r.EquityCurve, 10)
	assert.Equal(t, date(10), r.EquityCurve[0].Date)
	for _, tr := range r.Trades {
		assert.False(t, tr.Opened.Before(date(10)))
		assert.False(t, tr.Closed.After(date(19)))
	}
	assertClosedBook(t, r)
}

func TestRunSymbolsDefaultToData(t *testing.T) {
	t.Parallel()

	data := market.Series{aapl.Key(): zigzag(100, 30)}
	cfg := config()
	r, err := Run(cfg, data)
	require.NoError(t, err)
	assert.Len(t, r.EquityCurve, 30)
}

func TestRunRejectsBadConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Strategy = "ema"
	_, err := Run(cfg, market.Series{})
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.InitialBalance = 0
	_, err = Run(cfg, market.Series{})
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Rules.MaxRisk = 0
	_, err = Run(cfg, market.Series{})
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunContext(ctx, config(aapl), market.Series{aapl.Key(): zigzag(100, 30)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFractalStrategyRuns(t *testing.T) {
	t.Parallel()

	cfg := config(aapl)
	cfg.Strategy = "fractal"
	cfg.Rules = risk.FractalRules()
	r, err := Run(cfg, market.Series{aapl.Key(): zigzag(100, 90)})
	require.NoError(t, err)
	assertClosedBook(t, r)
	for _, tr := range r.Trades {
		assert.Equal(t, "fractal", string(tr.Kind))
	}
}

func TestFractalStrategyTradesBreakout(t *testing.T) {
	t.Parallel()

	cfg := config(aapl)
	cfg.Strategy = "fractal"
	cfg.Rules = risk.FractalRules()
	r, err := Run(cfg, market.Series{aapl.Key(): breakout()})
	require.NoError(t, err)
	require.NotEmpty(t, r.Trades)
	assertClosedBook(t, r)

	var first *trade.Trade
	for i := range r.Trades {
		if r.Trades[i].Opened.Equal(date(30)) {
			first = &r.Trades[i]
		}
		assert.True(t, r.Trades[i].Opened.After(date(29)), "nothing trades before the break")
	}
	require.NotNil(t, first, "the breakout bar opens a trade")
	assert.Equal(t, market.Long, first.Direction)
	assert.Equal(t, "fractal", string(first.Kind))
	assert.Contains(t, first.Reason, "103")
	assert.Greater(t, first.StopLoss, 98.0, "the ATR stop is tighter than the swing low")
	assert.NotEqual(t, cfg.InitialBalance, r.FinalBalance)
}

func TestScoreStability(t *testing.T) {
	t.Parallel()

	g := Grid{RRRatios: []float64{1, 2, 3}, MaxRisks: []float64{0.02}, Lookbacks: []int{5, 10}}
	ps := g.points()
	require.Len(t, ps, 6)
	points := make([]ScanPoint, len(ps))
	// Sharpe by (rr, lookback): (1,5)+ (1,10)+ (2,5)+ (2,10)- (3,5)- (3,10)+
	for i, s := range []float64{1, 1, 1, -1, -1, 1} {
		points[i] = ScanPoint{Params: ps[i]}
		points[i].Metrics.Sharpe = s
	}
	scoreStability(points, g)

	assert.Equal(t, 1.0, points[0].Stability)
	assert.Equal(t, 0.5, points[1].Stability)
	assert.InDelta(t, 1.0/3, points[2].Stability, 1e-12)
	assert.Zero(t, points[3].Stability)
	assert.Zero(t, points[5].Stability)
}

func TestParameterScan(t *testing.T) {
	t.Parallel()

	data := market.Series{aapl.Key(): zigzag(100, 60)}
	g := Grid{RRRatios: []float64{1.5, 2}, MaxRisks: []float64{0.01, 0.02}, Lookbacks: []int{5}}
	sr, err := ParameterScan(context.Background(), config(aapl), data, g, 2)
	require.NoError(t, err)
	require.Len(t, sr.Points, 4)
	assert.Equal(t, Params{RRRatio: 1.5, MaxRisk: 0.01, Lookback: 5}, sr.Points[0].Params)
	assert.Equal(t, Params{RRRatio: 2, MaxRisk: 0.02, Lookback: 5}, sr.Points[3].Params)
	require.NotNil(t, sr.Best)

	again, err := ParameterScan(context.Background(), config(aapl), data, g, 4)
	require.NoError(t, err)
	assert.Equal(t, sr.Points, again.Points)
}

func TestWalkForward(t *testing.T) {
	t.Parallel()

	data := market.Series{aapl.Key(): zigzag(100, 40)}
	g := Grid{RRRatios: []float64{1.5}, MaxRisks: []float64{0.02}, Lookbacks: []int{5}}

	_, err := WalkForward(context.Background(), config(aapl), data, 30, 20, g, 0)
	assert.ErrorIs(t, err, ErrInsufficientData)

	wf, err := WalkForward(context.Background(), config(aapl), data, 20, 10, g, 0)
	require.NoError(t, err)
	require.Len(t, wf.Windows, 2)
	assert.Equal(t, date(0), wf.Windows[0].TrainStart)
	assert.Equal(t, date(20), wf.Windows[0].TestStart)
	assert.Equal(t, date(10), wf.Windows[1].TrainStart)
	assert.Equal(t, date(39), wf.Windows[1].TestEnd)
	assert.Equal(t, 1.5, wf.Windows[0].Best.RRRatio)
	assert.InDelta(t, float64(wf.Profitable)/2, wf.Consistency, 1e-12)
}

func TestRecordToJournal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r, err := Run(config(eurusd), market.Series{eurusd.Key(): uptrend(1.10, 30, 0.001)})
	require.NoError(t, err)

	j, err := journal.NewSQLite(filepath.Join(t.TempDir(), "bt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	require.NoError(t, r.Record(ctx, j, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))

	run, err := j.GetBacktestRun(ctx, r.RunID)
	require.NoError(t, err)
	assert.Equal(t, len(r.Trades), run.Trades)
	assert.Equal(t, []string{"EURUSD"}, run.Symbols)
	assert.Equal(t, date(0), run.Start.UTC())
	assert.Contains(t, string(run.Config), "max_risk")

	rows, err := j.ListTrades(ctx, r.RunID)
	require.NoError(t, err)
	assert.Len(t, rows, len(r.Trades))
}

func TestSummaryCreatedFromRunID(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	r, err := Run(config(eurusd), market.Series{eurusd.Key(): uptrend(1.10, 30, 0.001)})
	require.NoError(t, err)

	run, err := r.Summary(time.Time{})
	require.NoError(t, err)
	assert.True(t, run.Created.After(before))
	assert.Equal(t, r.RunID, run.RunID)

	r.RunID = "bogus"
	_, err = r.Summary(time.Time{})
	assert.Error(t, err)
}
