package stats

import (
	"math/rand/v2"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/paperfund/trade"
)

const (
	MethodShuffle        = "shuffle"
	MethodBlockBootstrap = "block_bootstrap"
)

// MCConfig controls a resampling run. Results are a pure function of the inputs and Seed.
type MCConfig struct {
	Simulations    int
	InitialBalance float64
	RuinThreshold  float64
	Seed           uint64

	// BlockSize is only used by BlockBootstrap.
	BlockSize int
}

// DefaultMCConfig matches the robustness harness defaults.
func DefaultMCConfig() MCConfig {
	return MCConfig{Simulations: 5000, InitialBalance: 10_000, RuinThreshold: 0.50, Seed: 42, BlockSize: 5}
}

// MCResult summarises the distribution of simulated equity paths.
type MCResult struct {
	Method      string
	Simulations int
	BlockSize   int

	ProfitablePct      float64
	MeanFinalBalance   float64
	MedianFinalBalance float64
	P5FinalBalance     float64
	P95FinalBalance    float64

	MedianMaxDrawdown float64
	P95MaxDrawdown    float64
	P99MaxDrawdown    float64

	RuinPct       float64
	RuinThreshold float64

	MedianConsecLosses int
	P95ConsecLosses    int
	WorstConsecLosses  int
}

type path struct {
	final  float64
	maxDD  float64
	losses int
}

// replay walks pnls from initial, tracking the worst drawdown and loss streak.
func replay(pnls []float64, initial float64) path {
	bal, peak := initial, initial
	p := path{}
	for _, x := range pnls {
		bal += x
		if bal > peak {
			peak = bal
		}
		if peak > 0 {
			if dd := (peak - bal) / peak; dd > p.maxDD {
				p.maxDD = dd
			}
		}
	}
	p.final = bal
	_, p.losses = streaks(pnls)
	return p
}

// MonteCarlo shuffles the order of realised P&L and replays each ordering.
func MonteCarlo(ts []trade.Trade, cfg MCConfig) MCResult {
	return simulate(ts, cfg, MethodShuffle, func(r *rand.Rand, src, dst []float64) {
		copy(dst, src)
		r.Shuffle(len(dst), func(i, j int) { dst[i], dst[j] = dst[j], dst[i] })
	})
}

// BlockBootstrap resamples contiguous blocks with replacement so losing
// streaks survive resampling, then truncates to the original trade count.
func BlockBootstrap(ts []trade.Trade, cfg MCConfig) MCResult {
	b := cfg.BlockSize
	if b <= 0 {
		b = 1
	}
	if b > len(ts) {
		b = len(ts)
	}
	cfg.BlockSize = b
	return simulate(ts, cfg, MethodBlockBootstrap, func(r *rand.Rand, src, dst []float64) {
		n := len(src)
		for filled := 0; filled < n; {
			start := r.IntN(n - b + 1)
			filled += copy(dst[filled:], src[start:start+b])
		}
	})
}

func simulate(ts []trade.Trade, cfg MCConfig, method string, sample func(r *rand.Rand, src, dst []float64)) MCResult {
	res := MCResult{Method: method, RuinThreshold: cfg.RuinThreshold}
	if method == MethodBlockBootstrap {
		res.BlockSize = cfg.BlockSize
	}
	if len(ts) == 0 || cfg.Simulations <= 0 {
		res.MeanFinalBalance = cfg.InitialBalance
		res.MedianFinalBalance = cfg.InitialBalance
		res.P5FinalBalance = cfg.InitialBalance
		res.P95FinalBalance = cfg.InitialBalance
		return res
	}

	pnls := make([]float64, len(ts))
	for i, t := range ts {
		pnls[i] = t.PnL
	}

	// Each simulation owns an RNG derived from (Seed, index) so the result
	// does not depend on how work is split across goroutines.
	paths := make([]path, cfg.Simulations)
	workers := runtime.GOMAXPROCS(0)
	chunk := (cfg.Simulations + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < cfg.Simulations; lo += chunk {
		hi := min(lo+chunk, cfg.Simulations)
		g.Go(func() error {
			buf := make([]float64, len(pnls))
			for i := lo; i < hi; i++ {
				r := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
				sample(r, pnls, buf)
				paths[i] = replay(buf, cfg.InitialBalance)
			}
			return nil
		})
	}
	// Workers only fill their own slice range and cannot fail.
	_ = g.Wait()

	n := len(paths)
	finals := make([]float64, n)
	dds := make([]float64, n)
	losses := make([]int, n)
	ruined, profitable := 0, 0
	for i, p := range paths {
		finals[i], dds[i], losses[i] = p.final, p.maxDD, p.losses
		if p.maxDD >= cfg.RuinThreshold {
			ruined++
		}
		if p.final > cfg.InitialBalance {
			profitable++
		}
	}
	sort.Float64s(finals)
	sort.Float64s(dds)
	sort.Ints(losses)

	res.Simulations = n
	res.ProfitablePct = float64(profitable) / float64(n)
	res.MeanFinalBalance = mean(finals)
	res.MedianFinalBalance = finals[n/2]
	res.P5FinalBalance = finals[pct(n, 0.05)]
	res.P95FinalBalance = finals[pct(n, 0.95)]
	res.MedianMaxDrawdown = dds[n/2]
	res.P95MaxDrawdown = dds[pct(n, 0.95)]
	res.P99MaxDrawdown = dds[pct(n, 0.99)]
	res.RuinPct = float64(ruined) / float64(n)
	res.MedianConsecLosses = losses[n/2]
	res.P95ConsecLosses = losses[pct(n, 0.95)]
	res.WorstConsecLosses = losses[n-1]
	return res
}

// pct is the sorted-index percentile int(n*q), clamped to the last element.
func pct(n int, q float64) int {
	return min(int(float64(n)*q), n-1)
}
