package signals

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/paperfund/asset"
	"github.com/rustyeddy/paperfund/indicators"
	"github.com/rustyeddy/paperfund/market"
)

// TrendState is the swing structure of the recent window.
type TrendState string

const (
	Uptrend   TrendState = "uptrend"
	Downtrend TrendState = "downtrend"
	Ranging   TrendState = "ranging"
)

// Analysis is everything the trend detector saw, signal or not.
type Analysis struct {
	Trend          TrendState
	HH, HL, LH, LL int
	Support        float64
	Resistance     float64
	PosInRange     float64
	Pattern        Pattern
	SMABias        market.Direction // empty when fewer than 20 candles
	Last           market.Candle
	Signal         *Signal
}

// Analyze runs the trend, SMA, pattern and range detectors over the last
// TrendLookback candles and picks the first that has an opinion in that order.
// ok is false when there is no tradable range.
func Analyze(cfg market.AssetConfig, candles []market.Candle, p Params) (Analysis, bool) {
	p = p.withDefaults()
	recent := candles
	if len(recent) > p.TrendLookback {
		recent = recent[len(recent)-p.TrendLookback:]
	}
	if len(recent) < 2 {
		return Analysis{}, false
	}

	a := Analysis{Last: recent[len(recent)-1], Support: recent[0].Low, Resistance: recent[0].High}
	for i, c := range recent {
		if c.Low < a.Support {
			a.Support = c.Low
		}
		if c.High > a.Resistance {
			a.Resistance = c.High
		}
		if i == 0 {
			continue
		}
		prev := recent[i-1]
		if c.High > prev.High {
			a.HH++
		}
		if c.Low > prev.Low {
			a.HL++
		}
		if c.High < prev.High {
			a.LH++
		}
		if c.Low < prev.Low {
			a.LL++
		}
	}

	switch {
	case a.HH >= 3 && a.HL >= 3:
		a.Trend = Uptrend
	case a.LH >= 3 && a.LL >= 3:
		a.Trend = Downtrend
	default:
		a.Trend = Ranging
	}

	rng := a.Resistance - a.Support
	if rng <= 0 {
		return Analysis{}, false
	}
	a.PosInRange = (a.Last.Close - a.Support) / rng
	a.Pattern = DetectPattern(recent[len(recent)-2], a.Last)

	if len(candles) >= 20 {
		fast, err1 := indicators.MA(candles, 5)
		slow, err2 := indicators.MA(candles, 20)
		if err1 == nil && err2 == nil {
			if fast > slow {
				a.SMABias = market.Long
			} else {
				a.SMABias = market.Short
			}
		}
	}

	var (
		dir    market.Direction
		kind   Kind
		detail []string
	)
	switch {
	case a.Trend == Uptrend:
		dir, kind = market.Long, KindTrend
		detail = append(detail, fmt.Sprintf("uptrend (HH %d, HL %d)", a.HH, a.HL))
	case a.Trend == Downtrend:
		dir, kind = market.Short, KindTrend
		detail = append(detail, fmt.Sprintf("downtrend (LH %d, LL %d)", a.LH, a.LL))
	case a.SMABias != "":
		dir, kind = a.SMABias, KindSMA
		detail = append(detail, smaText(a.SMABias))
	case a.Pattern.Bias() != "":
		dir, kind = a.Pattern.Bias(), KindPattern
		detail = append(detail, "ranging + "+string(a.Pattern))
	case a.PosInRange < 0.35:
		dir, kind = market.Long, KindRangePosition
		detail = append(detail, fmt.Sprintf("near support (%.0f%%)", a.PosInRange*100))
	case a.PosInRange > 0.65:
		dir, kind = market.Short, KindRangePosition
		detail = append(detail, fmt.Sprintf("near resistance (%.0f%%)", a.PosInRange*100))
	default:
		return a, true
	}

	if a.Pattern != NoPattern && kind != KindPattern {
		detail = append(detail, string(a.Pattern))
	}
	if a.SMABias != "" && kind != KindSMA {
		detail = append(detail, smaText(a.SMABias))
	}

	entry := a.Last.Close
	buf := asset.MustFor(cfg.Class).StopBuffer(entry, cfg)
	var stop float64
	if dir == market.Long {
		detail = append(detail, fmt.Sprintf("S/R %.5f", a.Support))
		stop = a.Support - buf
		if entry-stop <= 0 {
			stop = entry - rng*0.3
		}
	} else {
		detail = append(detail, fmt.Sprintf("S/R %.5f", a.Resistance))
		stop = a.Resistance + buf
		if stop-entry <= 0 {
			stop = entry + rng*0.3
		}
	}

	if s, ok := build(dir, entry, stop, p.RRRatio, kind, strings.Join(detail, ", ")); ok {
		a.Signal = &s
	}
	return a, true
}

func smaText(d market.Direction) string {
	if d == market.Long {
		return "SMA5>SMA20"
	}
	return "SMA5<SMA20"
}
