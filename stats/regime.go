package stats

import (
	"math"

	"github.com/rustyeddy/paperfund/indicators"
	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/trade"
)

// Regime labels the market state at a point in time.
type Regime string

const (
	BullLowVol  Regime = "bull_low_vol"
	BullHighVol Regime = "bull_high_vol"
	BearLowVol  Regime = "bear_low_vol"
	BearHighVol Regime = "bear_high_vol"
	Ranging     Regime = "ranging"
	Unknown     Regime = "unknown"
)

const (
	RegimeLookback = 60
	regimePeriod   = 20
	rangingMove    = 0.02
	highVolRatio   = 0.015
)

// ClassifyRegime compares the 20-close SMA at the start and end of the last
// lookback candles for trend, and ATR(20)/SMA(20) for volatility.
func ClassifyRegime(candles []market.Candle, lookback int) Regime {
	if lookback <= 0 {
		lookback = RegimeLookback
	}
	if len(candles) < max(lookback, regimePeriod+1) {
		return Unknown
	}

	recent := candles[len(candles)-lookback:]
	n := min(regimePeriod, len(recent))
	start, err1 := indicators.MAAt(recent, n-1, n)
	end, err2 := indicators.MAAt(recent, len(recent)-1, n)
	if err1 != nil || err2 != nil {
		return Unknown
	}
	change := 0.0
	if start > 0 {
		change = (end - start) / start
	}

	atr, err := indicators.ATR(candles, regimePeriod)
	sma, _ := indicators.MA(candles, regimePeriod)
	volRatio := 0.0
	if err == nil && sma > 0 {
		volRatio = atr / sma
	}
	highVol := volRatio > highVolRatio

	switch {
	case math.Abs(change) < rangingMove:
		return Ranging
	case change > 0:
		if highVol {
			return BullHighVol
		}
		return BullLowVol
	default:
		if highVol {
			return BearHighVol
		}
		return BearLowVol
	}
}

// SegmentByRegime buckets trades by the regime on their open date.
// Trades without RegimeLookback candles of history land in Unknown.
func SegmentByRegime(ts []trade.Trade, data market.Series) map[Regime][]trade.Trade {
	out := map[Regime][]trade.Trade{}
	for _, t := range ts {
		cs := data[t.Key()]
		idx := market.IndexOn(cs, t.Opened)
		r := Unknown
		if idx >= RegimeLookback {
			r = ClassifyRegime(cs[:idx+1], RegimeLookback)
		}
		out[r] = append(out[r], t)
	}
	return out
}

// RegimeStats is the per-bucket summary.
type RegimeStats struct {
	Count        int
	WinRate      float64
	Expectancy   float64
	ProfitFactor float64
	AvgR         float64
}

func RegimeMetrics(buckets map[Regime][]trade.Trade) map[Regime]RegimeStats {
	out := make(map[Regime]RegimeStats, len(buckets))
	for r, ts := range buckets {
		out[r] = RegimeStats{
			Count:        len(ts),
			WinRate:      WinRate(ts),
			Expectancy:   ExpectancyDollars(ts),
			ProfitFactor: ProfitFactor(ts),
			AvgR:         AvgR(ts),
		}
	}
	return out
}
