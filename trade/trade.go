// Package trade defines the position record shared by the live fund, the backtest and the statistics.
package trade

import (
	"fmt"
	"time"

	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/signals"
)

// CloseReason says why a position was closed.
type CloseReason string

const (
	StopLoss     CloseReason = "stop_loss"
	TakeProfit   CloseReason = "take_profit"
	WeekendClose CloseReason = "weekend_close"
	EndOfTest    CloseReason = "end_of_test"
)

// Trade is one position from open to close. Entry fields are fixed once opened;
// StopLoss only moves through the trailing stop.
type Trade struct {
	ID         string            `json:"id"`
	Class      market.AssetClass `json:"asset_class"`
	Symbol     string            `json:"symbol"`
	Direction  market.Direction  `json:"direction"`
	Entry      float64           `json:"entry"`
	StopLoss   float64           `json:"stop_loss"`
	TakeProfit float64           `json:"take_profit"`
	Size       float64           `json:"size"`
	Opened     time.Time         `json:"opened"`
	Kind       signals.Kind      `json:"kind,omitempty"`
	Reason     string            `json:"reason,omitempty"`

	// EntryBar is the date of the candle the signal came from. Only later
	// candles can hit the stop or target.
	EntryBar time.Time `json:"entry_bar,omitempty"`

	OriginalStop float64 `json:"original_stop_loss"`
	RiskAmount   float64 `json:"risk_amount"`

	ATRAtEntry    float64 `json:"atr_at_entry,omitempty"`
	HighWaterMark float64 `json:"high_water_mark,omitempty"`
	LowWaterMark  float64 `json:"low_water_mark,omitempty"`

	// Marked to market on each evaluation while open.
	CurrentPrice  float64 `json:"current_price,omitempty"`
	UnrealizedPnL float64 `json:"unrealized_pnl,omitempty"`

	Exit        float64     `json:"exit,omitempty"`
	Closed      time.Time   `json:"closed,omitempty"`
	PnL         float64     `json:"pnl"`
	CloseReason CloseReason `json:"close_reason,omitempty"`
}

// IsClosed reports whether the trade reached its terminal state.
func (t Trade) IsClosed() bool { return t.CloseReason != "" }

func (t Trade) Key() market.Key { return market.Key{Class: t.Class, Symbol: t.Symbol} }

// RMultiple is PnL over the dollar risk at entry, or 0 when risk is unknown.
func (t Trade) RMultiple() float64 {
	if t.RiskAmount <= 0 {
		return 0
	}
	return t.PnL / t.RiskAmount
}

// Win is a strictly positive close.
func (t Trade) Win() bool { return t.PnL > 0 }

func (t Trade) String() string {
	if t.IsClosed() {
		return fmt.Sprintf("%s %s %s %s %.5f -> %.5f pnl=%.2f (%s)",
			t.ID, t.Class, t.Symbol, t.Direction, t.Entry, t.Exit, t.PnL, t.CloseReason)
	}
	return fmt.Sprintf("%s %s %s %s %.5f sl=%.5f tp=%.5f",
		t.ID, t.Class, t.Symbol, t.Direction, t.Entry, t.StopLoss, t.TakeProfit)
}

// FormatID renders a sequential id such as T001 or BT12.
func FormatID(prefix string, n int, width int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}

// EquityPoint is one day's account value.
type EquityPoint struct {
	Date    time.Time `json:"date"`
	Balance float64   `json:"balance"`
}

// TotalPnL sums realised P&L.
func TotalPnL(ts []Trade) float64 {
	sum := 0.0
	for _, t := range ts {
		sum += t.PnL
	}
	return sum
}
