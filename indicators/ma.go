// Package indicators provides technical analysis indicators over daily candles.
package indicators

import (
	"fmt"

	"github.com/rustyeddy/paperfund/market"
)

// MA calculates the Simple Moving Average of closes for the given period.
func MA(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(candles) < period {
		return 0, fmt.Errorf("not enough candles: need %d, got %d", period, len(candles))
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period), nil
}

// MAAt is the SMA of the period closes ending at index end (inclusive).
func MAAt(candles []market.Candle, end, period int) (float64, error) {
	if end < 0 || end >= len(candles) {
		return 0, fmt.Errorf("index %d out of range", end)
	}
	return MA(candles[:end+1], period)
}
