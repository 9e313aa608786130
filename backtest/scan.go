package backtest

import (
	"context"
	"errors"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/stats"
)

// ErrInsufficientData is returned when the history is shorter than one walk-forward window.
var ErrInsufficientData = errors.New("insufficient data for walk-forward")

// Grid is the parameter space explored by ParameterScan and WalkForward.
type Grid struct {
	RRRatios  []float64 `yaml:"rr_ratios" json:"rr_ratios"`
	MaxRisks  []float64 `yaml:"max_risks" json:"max_risks"`
	Lookbacks []int     `yaml:"lookbacks" json:"lookbacks"`
}

func DefaultScanGrid() Grid {
	return Grid{
		RRRatios:  []float64{1.0, 1.25, 1.5, 1.75, 2.0, 2.5, 3.0},
		MaxRisks:  []float64{0.01, 0.015, 0.02, 0.025, 0.03},
		Lookbacks: []int{5, 8, 10, 15, 20},
	}
}

func DefaultWalkForwardGrid() Grid {
	return Grid{
		RRRatios:  []float64{1.0, 1.5, 2.0, 2.5},
		MaxRisks:  []float64{0.02},
		Lookbacks: []int{8, 10, 15},
	}
}

// Params is one grid point.
type Params struct {
	RRRatio  float64
	MaxRisk  float64
	Lookback int
}

func (g Grid) points() []Params {
	var out []Params
	for _, rr := range g.RRRatios {
		for _, mr := range g.MaxRisks {
			for _, lb := range g.Lookbacks {
				out = append(out, Params{RRRatio: rr, MaxRisk: mr, Lookback: lb})
			}
		}
	}
	return out
}

func (p Params) apply(cfg Config) Config {
	cfg.Rules.RRRatio = p.RRRatio
	cfg.Rules.MaxRisk = p.MaxRisk
	cfg.Lookback = p.Lookback
	return cfg
}

type ScanPoint struct {
	Params
	Metrics      stats.Metrics
	FinalBalance float64
	// Stability is the share of axis neighbours that also have a positive Sharpe.
	Stability float64
}

type ScanResult struct {
	Points         []ScanPoint
	PositiveSharpe int
	Stable         []ScanPoint
	Best           *ScanPoint
}

func workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// runAll backtests every config concurrently. Results keep the input order.
func runAll(ctx context.Context, cfgs []Config, data market.Series, limit int) ([]Result, error) {
	out := make([]Result, len(cfgs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(limit))
	for i, c := range cfgs {
		g.Go(func() error {
			r, err := RunContext(ctx, c, data)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParameterScan runs cfg at every grid point and scores how stable each
// profitable point's neighbourhood is. Points with stability >= 0.5 are
// stable; Best is the stable point with the highest Sharpe, or the best
// overall when nothing is stable.
func ParameterScan(ctx context.Context, cfg Config, data market.Series, grid Grid, limit int) (ScanResult, error) {
	params := grid.points()
	cfgs := make([]Config, len(params))
	for i, p := range params {
		cfgs[i] = p.apply(cfg)
	}
	results, err := runAll(ctx, cfgs, data, limit)
	if err != nil {
		return ScanResult{}, err
	}

	sr := ScanResult{Points: make([]ScanPoint, len(params))}
	for i, p := range params {
		sp := ScanPoint{Params: p, FinalBalance: results[i].FinalBalance}
		if len(results[i].Trades) > 0 {
			sp.Metrics = results[i].Metrics()
		}
		sr.Points[i] = sp
	}
	scoreStability(sr.Points, grid)

	for i := range sr.Points {
		p := sr.Points[i]
		if p.Metrics.Sharpe > 0 {
			sr.PositiveSharpe++
			if p.Stability >= 0.5 {
				sr.Stable = append(sr.Stable, p)
			}
		}
	}
	pick := sr.Stable
	if len(pick) == 0 {
		pick = sr.Points
	}
	for i := range pick {
		if sr.Best == nil || pick[i].Metrics.Sharpe > sr.Best.Metrics.Sharpe {
			b := pick[i]
			sr.Best = &b
		}
	}
	return sr, nil
}

// scoreStability fills Stability for points with a positive Sharpe. points
// must be in grid order.
func scoreStability(points []ScanPoint, g Grid) {
	nr, nm, nl := len(g.RRRatios), len(g.MaxRisks), len(g.Lookbacks)
	at := func(r, m, l int) int { return (r*nm+m)*nl + l }
	positive := func(r, m, l int) bool { return points[at(r, m, l)].Metrics.Sharpe > 0 }

	for r := 0; r < nr; r++ {
		for m := 0; m < nm; m++ {
			for l := 0; l < nl; l++ {
				if !positive(r, m, l) {
					continue
				}
				n, total := 0, 0
				for _, d := range []int{-1, 1} {
					if r+d >= 0 && r+d < nr {
						total++
						if positive(r+d, m, l) {
							n++
						}
					}
					if m+d >= 0 && m+d < nm {
						total++
						if positive(r, m+d, l) {
							n++
						}
					}
					if l+d >= 0 && l+d < nl {
						total++
						if positive(r, m, l+d) {
							n++
						}
					}
				}
				if total > 0 {
					points[at(r, m, l)].Stability = float64(n) / float64(total)
				}
			}
		}
	}
}

// Window is one train/test split of a walk-forward run.
type Window struct {
	TrainStart, TrainEnd time.Time
	TestStart, TestEnd   time.Time
	Best                 Params
	TrainSharpe          float64
	TestTrades           int
	TestMetrics          stats.Metrics
	TestFinalBalance     float64
}

type WalkForwardResult struct {
	Windows     []Window
	Profitable  int
	Consistency float64
}

// WalkForward picks the best-Sharpe grid point on each training window and
// measures it on the following test window. Windows roll forward by testDays.
func WalkForward(ctx context.Context, cfg Config, data market.Series, trainDays, testDays int, grid Grid, limit int) (WalkForwardResult, error) {
	if trainDays <= 0 {
		trainDays = 504
	}
	if testDays <= 0 {
		testDays = 126
	}
	days := cfg.tradingDays(data)
	if len(days) < trainDays+testDays {
		return WalkForwardResult{}, ErrInsufficientData
	}

	var windows []Window
	for off := 0; off+trainDays+testDays <= len(days); off += testDays {
		windows = append(windows, Window{
			TrainStart: days[off],
			TrainEnd:   days[off+trainDays-1],
			TestStart:  days[off+trainDays],
			TestEnd:    days[off+trainDays+testDays-1],
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(limit))
	for i := range windows {
		g.Go(func() error {
			return walkWindow(gctx, cfg, data, grid, &windows[i])
		})
	}
	if err := g.Wait(); err != nil {
		return WalkForwardResult{}, err
	}

	res := WalkForwardResult{Windows: windows}
	for _, w := range windows {
		if w.TestFinalBalance > cfg.InitialBalance {
			res.Profitable++
		}
	}
	res.Consistency = float64(res.Profitable) / float64(len(windows))
	return res, nil
}

func walkWindow(ctx context.Context, cfg Config, data market.Series, grid Grid, w *Window) error {
	best := Params{RRRatio: cfg.Rules.RRRatio, MaxRisk: cfg.Rules.MaxRisk, Lookback: cfg.Lookback}
	bestSharpe := math.Inf(-1)

	train := cfg
	train.Start, train.End = w.TrainStart, w.TrainEnd
	for _, p := range grid.points() {
		r, err := RunContext(ctx, p.apply(train), data)
		if err != nil {
			return err
		}
		if len(r.Trades) == 0 {
			continue
		}
		if s := r.Metrics().Sharpe; s > bestSharpe {
			bestSharpe = s
			best = p
		}
	}
	if math.IsInf(bestSharpe, -1) {
		bestSharpe = 0
	}

	test := best.apply(cfg)
	test.Start, test.End = w.TestStart, w.TestEnd
	r, err := RunContext(ctx, test, data)
	if err != nil {
		return err
	}

	w.Best = best
	w.TrainSharpe = bestSharpe
	w.TestTrades = len(r.Trades)
	w.TestFinalBalance = r.FinalBalance
	if len(r.Trades) > 0 {
		w.TestMetrics = r.Metrics()
	}
	return nil
}
