package market

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the on-disk date format for daily candles.
const DateLayout = "2006-01-02"

// Candle is one daily OHLC bar.
type Candle struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate reports why a candle is unusable, or nil.
// All prices must be positive, High must cover Open/Close and Low must sit under them.
func (c Candle) Validate() error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("%s: non-positive price o=%g h=%g l=%g c=%g",
			c.Date.Format(DateLayout), c.Open, c.High, c.Low, c.Close)
	}
	if c.High < math.Max(c.Open, c.Close) {
		return fmt.Errorf("%s: high %g below body", c.Date.Format(DateLayout), c.High)
	}
	if c.Low > math.Min(c.Open, c.Close) {
		return fmt.Errorf("%s: low %g above body", c.Date.Format(DateLayout), c.Low)
	}
	return nil
}

// Body is |Close - Open|.
func (c Candle) Body() float64 { return math.Abs(c.Close - c.Open) }

// FilterValid drops invalid candles and returns the survivors plus how many were dropped.
// The input slice is not modified.
func FilterValid(cs []Candle) ([]Candle, int) {
	out := make([]Candle, 0, len(cs))
	for _, c := range cs {
		if c.Validate() != nil {
			continue
		}
		out = append(out, c)
	}
	return out, len(cs) - len(out)
}

// Day truncates t to midnight UTC, the key used for daily bars.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IndexOn returns the index of the candle dated day, or -1.
func IndexOn(cs []Candle, day time.Time) int {
	day = Day(day)
	for i := len(cs) - 1; i >= 0; i-- {
		d := Day(cs[i].Date)
		if d.Equal(day) {
			return i
		}
		if d.Before(day) {
			return -1
		}
	}
	return -1
}

// UpTo returns the prefix of cs dated on or before day.
func UpTo(cs []Candle, day time.Time) []Candle {
	day = Day(day)
	n := len(cs)
	for n > 0 && Day(cs[n-1].Date).After(day) {
		n--
	}
	return cs[:n]
}
