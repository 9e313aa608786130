// Package signals turns candle history into trade candidates.
package signals

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/paperfund/market"
)

// Kind tags which detector produced a signal.
type Kind string

const (
	KindTrend         Kind = "trend"
	KindSMA           Kind = "sma"
	KindPattern       Kind = "pattern"
	KindRangePosition Kind = "range_position"
	KindFractal       Kind = "fractal"
)

// Signal is a proposed entry. It is never persisted on its own.
type Signal struct {
	Direction    market.Direction
	Entry        float64
	StopLoss     float64
	TakeProfit   float64
	StopDistance float64
	Kind         Kind
	Detail       string
}

// Reason renders the signal for logs and journals.
func (s Signal) Reason() string {
	if s.Detail == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ": " + s.Detail
}

// ATRStops tightens detector stops to an ATR multiple of the close.
type ATRStops struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

// Params are the detector knobs taken from the fund rules.
type Params struct {
	RRRatio         float64
	FractalWindow   int
	FractalLookback int
	MaxFractalAge   int
	TrendLookback   int
	ATRStops        ATRStops
}

const (
	DefaultRRRatio         = 2.0
	DefaultFractalWindow   = 2
	DefaultFractalLookback = 3
	DefaultMaxFractalAge   = 20
	DefaultTrendLookback   = 5
	DefaultATRMultiplier   = 1.5
	ATRPeriod              = 14
)

func (p Params) withDefaults() Params {
	if p.RRRatio <= 0 {
		p.RRRatio = DefaultRRRatio
	}
	if p.FractalWindow <= 0 {
		p.FractalWindow = DefaultFractalWindow
	}
	if p.FractalLookback <= 0 {
		p.FractalLookback = DefaultFractalLookback
	}
	if p.MaxFractalAge <= 0 {
		p.MaxFractalAge = DefaultMaxFractalAge
	}
	if p.TrendLookback <= 0 {
		p.TrendLookback = DefaultTrendLookback
	}
	if p.ATRStops.Multiplier <= 0 {
		p.ATRStops.Multiplier = DefaultATRMultiplier
	}
	return p
}

// Generator produces at most one signal for a symbol from its history.
type Generator interface {
	Name() string
	Generate(cfg market.AssetConfig, candles []market.Candle, p Params) (Signal, bool)
}

// Trend is the main-fund detector stack.
type Trend struct{}

func (Trend) Name() string { return "trend" }

func (Trend) Generate(cfg market.AssetConfig, candles []market.Candle, p Params) (Signal, bool) {
	a, ok := Analyze(cfg, candles, p)
	if !ok || a.Signal == nil {
		return Signal{}, false
	}
	return *a.Signal, true
}

// Fractal is the Williams fractal breakout detector.
type Fractal struct{}

func (Fractal) Name() string { return "fractal" }

func (Fractal) Generate(_ market.AssetConfig, candles []market.Candle, p Params) (Signal, bool) {
	return FractalSignal(candles, p)
}

// ByName resolves a generator from configuration.
func ByName(name string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "trend", "main":
		return Trend{}, nil
	case "fractal", "fractals":
		return Fractal{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: trend, fractal)", name)
	}
}

// build fills targets from entry and stop. ok is false when the stop is on the wrong side.
func build(dir market.Direction, entry, stop, rr float64, kind Kind, detail string) (Signal, bool) {
	dist := (entry - stop) * dir.Sign()
	if dist <= 0 {
		return Signal{}, false
	}
	return Signal{
		Direction:    dir,
		Entry:        entry,
		StopLoss:     stop,
		TakeProfit:   entry + dir.Sign()*dist*rr,
		StopDistance: dist,
		Kind:         kind,
		Detail:       detail,
	}, true
}
