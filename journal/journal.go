package journal

import (
	"time"

	"github.com/rustyeddy/paperfund/trade"
)

// TradeRecord is a closed trade as written to a journal. Book is the fund id
// for live trading or the run id for a backtest.
type TradeRecord struct {
	Book       string
	TradeID    string
	Class      string
	Symbol     string
	Direction  string
	Size       float64
	EntryPrice float64
	ExitPrice  float64
	StopLoss   float64
	TakeProfit float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	RMultiple  float64
	Kind       string
	Reason     string
}

// EquitySnapshot is one mark-to-market point of a book.
type EquitySnapshot struct {
	Book    string
	Time    time.Time
	Balance float64
	Equity  float64
	Open    int
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// FromTrade converts a closed trade into its journal row.
func FromTrade(book string, t trade.Trade) TradeRecord {
	return TradeRecord{
		Book:       book,
		TradeID:    t.ID,
		Class:      string(t.Class),
		Symbol:     t.Symbol,
		Direction:  string(t.Direction),
		Size:       t.Size,
		EntryPrice: t.Entry,
		ExitPrice:  t.Exit,
		StopLoss:   t.StopLoss,
		TakeProfit: t.TakeProfit,
		OpenTime:   t.Opened,
		CloseTime:  t.Closed,
		RealizedPL: t.PnL,
		RMultiple:  t.RMultiple(),
		Kind:       string(t.Kind),
		Reason:     string(t.CloseReason),
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
