package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/paperfund/market"
)

// TrueRange is max(h-l, |h-prevClose|, |l-prevClose|).
func TrueRange(c, prev market.Candle) float64 {
	a := c.High - c.Low
	b := math.Abs(c.High - prev.Close)
	d := math.Abs(c.Low - prev.Close)
	return math.Max(a, math.Max(b, d))
}

// ATR is the arithmetic mean of the last period true ranges.
// It needs period+1 candles because each true range looks at the previous close.
func ATR(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("not enough candles: need %d, got %d", period+1, len(candles))
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += TrueRange(candles[i], candles[i-1])
	}
	return sum / float64(period), nil
}
