package signals

import (
	"fmt"
	"math"

	"github.com/rustyeddy/paperfund/indicators"
	"github.com/rustyeddy/paperfund/market"
)

// FractalType is bearish for swing highs and bullish for swing lows.
type FractalType string

const (
	Bearish FractalType = "bearish"
	Bullish FractalType = "bullish"
)

// FractalPoint is one detected swing.
type FractalPoint struct {
	Index int
	Type  FractalType
	Price float64
	Date  string
}

// DetectFractals finds Williams fractals with the given window.
// A bar is bearish when its high is strictly above the w highs on both sides,
// bullish on the mirror condition for lows. One bar can be both.
func DetectFractals(candles []market.Candle, window int) []FractalPoint {
	n := len(candles)
	if window <= 0 || n < 2*window+1 {
		return nil
	}

	var out []FractalPoint
	for i := window; i < n-window; i++ {
		h, l := candles[i].High, candles[i].Low
		high, low := true, true
		for j := 1; j <= window; j++ {
			if !(h > candles[i-j].High && h > candles[i+j].High) {
				high = false
			}
			if !(l < candles[i-j].Low && l < candles[i+j].Low) {
				low = false
			}
		}
		date := candles[i].Date.Format(market.DateLayout)
		if high {
			out = append(out, FractalPoint{Index: i, Type: Bearish, Price: h, Date: date})
		}
		if low {
			out = append(out, FractalPoint{Index: i, Type: Bullish, Price: l, Date: date})
		}
	}
	return out
}

// FractalSignal fires on a close through the nearest fresh fractal.
//
// LONG when the close breaks above the latest fresh bearish fractal, with the stop
// on the latest fresh bullish fractal or 1.5 ATR below the close. SHORT mirrors it.
// The ATR stop override only ever tightens.
func FractalSignal(candles []market.Candle, p Params) (Signal, bool) {
	p = p.withDefaults()
	w, age := p.FractalWindow, p.MaxFractalAge
	if len(candles) < 2*w+age+1 {
		return Signal{}, false
	}

	last := len(candles) - 1
	var bear, bull []FractalPoint
	for _, f := range DetectFractals(candles, w) {
		if last-f.Index > age {
			continue
		}
		if f.Type == Bearish {
			bear = append(bear, f)
		} else {
			bull = append(bull, f)
		}
	}
	bear = tail(bear, p.FractalLookback)
	bull = tail(bull, p.FractalLookback)

	atr, err := indicators.ATR(candles, ATRPeriod)
	if err != nil {
		atr = 0
	}
	closePx := candles[last].Close

	switch {
	case len(bear) > 0 && closePx > bear[len(bear)-1].Price:
		level := bear[len(bear)-1]
		var stop float64
		switch {
		case len(bull) > 0:
			stop = bull[len(bull)-1].Price
		case atr > 0:
			stop = closePx - DefaultATRMultiplier*atr
		default:
			return Signal{}, false
		}
		if p.ATRStops.Enabled && atr > 0 {
			stop = math.Max(stop, closePx-atr*p.ATRStops.Multiplier)
		}
		return build(market.Long, closePx, stop, p.RRRatio, KindFractal,
			fmt.Sprintf("breakout above %.5f (%s)", level.Price, level.Date))

	case len(bull) > 0 && closePx < bull[len(bull)-1].Price:
		level := bull[len(bull)-1]
		var stop float64
		switch {
		case len(bear) > 0:
			stop = bear[len(bear)-1].Price
		case atr > 0:
			stop = closePx + DefaultATRMultiplier*atr
		default:
			return Signal{}, false
		}
		if p.ATRStops.Enabled && atr > 0 {
			stop = math.Min(stop, closePx+atr*p.ATRStops.Multiplier)
		}
		return build(market.Short, closePx, stop, p.RRRatio, KindFractal,
			fmt.Sprintf("breakdown below %.5f (%s)", level.Price, level.Date))
	}
	return Signal{}, false
}

func tail(fs []FractalPoint, n int) []FractalPoint {
	if n > 0 && len(fs) > n {
		return fs[len(fs)-n:]
	}
	return fs
}
