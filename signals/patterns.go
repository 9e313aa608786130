package signals

import (
	"math"

	"github.com/rustyeddy/paperfund/market"
)

// Pattern is a two-candle reversal shape on the latest bar.
type Pattern string

const (
	NoPattern        Pattern = ""
	BullishPin       Pattern = "bullish pin bar"
	BullishEngulfing Pattern = "bullish engulfing"
	BearishPin       Pattern = "bearish pin bar"
	BearishEngulfing Pattern = "bearish engulfing"
)

// Bias is the direction the pattern points, or "".
func (p Pattern) Bias() market.Direction {
	switch p {
	case BullishPin, BullishEngulfing:
		return market.Long
	case BearishPin, BearishEngulfing:
		return market.Short
	}
	return ""
}

// DetectPattern checks last against prev. Bullish shapes win ties.
func DetectPattern(prev, last market.Candle) Pattern {
	body := last.Body()
	upper := last.High - math.Max(last.Close, last.Open)
	lower := math.Min(last.Close, last.Open) - last.Low
	prevBody := prev.Body()

	switch {
	case body > 0 && lower > body*2 && upper < body:
		return BullishPin
	case prev.Close < prev.Open && last.Close > last.Open && body > prevBody:
		return BullishEngulfing
	case body > 0 && upper > body*2 && lower < body:
		return BearishPin
	case prev.Close > prev.Open && last.Close < last.Open && body > prevBody:
		return BearishEngulfing
	}
	return NoPattern
}
