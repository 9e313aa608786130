package fund

import (
	"time"

	"github.com/rustyeddy/paperfund/asset"
	"github.com/rustyeddy/paperfund/market"
	"github.com/rustyeddy/paperfund/risk"
	"github.com/rustyeddy/paperfund/trade"
)

func configFor(w market.Watchlist, t trade.Trade) market.AssetConfig {
	if c, ok := w.Lookup(t.Class, t.Symbol); ok {
		return c
	}
	return market.AssetConfig{Symbol: t.Symbol, Class: t.Class}
}

// barFor returns the day's bar for t, ignoring the signal candle and anything
// older. States saved before EntryBar existed fall back to the open date.
func barFor(bars map[market.Key]market.Candle, t trade.Trade) (market.Candle, bool) {
	ref := t.EntryBar
	if ref.IsZero() {
		ref = t.Opened
	}
	c, ok := bars[t.Key()]
	if !ok || !market.Day(c.Date).After(market.Day(ref)) {
		return market.Candle{}, false
	}
	return c, true
}

// closeAt books the P&L of st.Open[i] and moves it to the closed list.
func closeAt(st *State, r risk.Rules, w market.Watchlist, i int, exit float64,
	day time.Time, reason trade.CloseReason, rates asset.Rates) trade.Trade {

	t := st.Open[i]
	h := asset.MustFor(t.Class)
	t.Exit = exit
	t.Closed = day
	t.CloseReason = reason
	t.PnL = h.PnL(t.Direction, t.Entry, exit, t.Size, configFor(w, t), r.Spread, rates)
	t.CurrentPrice = exit
	t.UnrealizedPnL = 0

	st.Balance += t.PnL
	st.refreshPeak()
	st.Closed = append(st.Closed, t)
	return t
}

// hit reports a stop or target touched by bar. The stop wins when both were in range.
func hit(t trade.Trade, bar market.Candle) (float64, trade.CloseReason, bool) {
	if t.Direction == market.Long {
		switch {
		case bar.Low <= t.StopLoss:
			return t.StopLoss, trade.StopLoss, true
		case bar.High >= t.TakeProfit:
			return t.TakeProfit, trade.TakeProfit, true
		}
		return 0, "", false
	}
	switch {
	case bar.High >= t.StopLoss:
		return t.StopLoss, trade.StopLoss, true
	case bar.Low <= t.TakeProfit:
		return t.TakeProfit, trade.TakeProfit, true
	}
	return 0, "", false
}

// CheckStops closes every open trade whose stop or target was touched by the day's bar.
// Trades without a bar for the day stay open.
func CheckStops(st *State, r risk.Rules, w market.Watchlist, day time.Time,
	bars map[market.Key]market.Candle, rates asset.Rates) []trade.Trade {

	var closed []trade.Trade
	for i := 0; i < len(st.Open); {
		t := st.Open[i]
		bar, ok := barFor(bars, t)
		if !ok {
			i++
			continue
		}
		exit, reason, ok := hit(t, bar)
		if !ok {
			i++
			continue
		}
		closed = append(closed, closeAt(st, r, w, i, exit, day, reason, rates))
		st.Open = append(st.Open[:i], st.Open[i+1:]...)
	}
	return closed
}

// TrailStops updates water marks and ratchets stops of surviving trades. It runs
// after CheckStops so the same bar that set a new extreme cannot also rescue the trade.
func TrailStops(st *State, r risk.Rules, bars map[market.Key]market.Candle) {
	ts := r.TrailingStop
	for i := range st.Open {
		t := &st.Open[i]
		bar, ok := barFor(bars, *t)
		if !ok {
			continue
		}
		if t.Direction == market.Long {
			t.HighWaterMark = max(t.HighWaterMark, bar.High)
		} else if t.LowWaterMark == 0 || bar.Low < t.LowWaterMark {
			t.LowWaterMark = bar.Low
		}
		if !ts.Enabled || t.ATRAtEntry <= 0 {
			continue
		}

		initial := t.Entry - t.OriginalStop
		if initial < 0 {
			initial = -initial
		}
		activation := ts.ActivationRR * initial

		if t.Direction == market.Long {
			if t.HighWaterMark-t.Entry < activation {
				continue
			}
			if s := t.HighWaterMark - t.ATRAtEntry*ts.ATRMultiplier; s > t.StopLoss {
				t.StopLoss = s
			}
			continue
		}
		if t.Entry-t.LowWaterMark < activation {
			continue
		}
		if s := t.LowWaterMark + t.ATRAtEntry*ts.ATRMultiplier; s < t.StopLoss {
			t.StopLoss = s
		}
	}
}

// WeekendClose force-closes positions whose handler does not hold over a weekend.
// It only acts on Fridays. The exit is the day's close, else the last mark, else entry.
func WeekendClose(st *State, r risk.Rules, w market.Watchlist, day time.Time,
	bars map[market.Key]market.Candle, rates asset.Rates) []trade.Trade {

	if day.Weekday() != time.Friday {
		return nil
	}
	var closed []trade.Trade
	for i := 0; i < len(st.Open); {
		t := st.Open[i]
		if !asset.MustFor(t.Class).WeekendClose() {
			i++
			continue
		}
		exit := t.Entry
		if t.CurrentPrice > 0 {
			exit = t.CurrentPrice
		}
		if bar, ok := bars[t.Key()]; ok {
			exit = bar.Close
		}
		closed = append(closed, closeAt(st, r, w, i, exit, day, trade.WeekendClose, rates))
		st.Open = append(st.Open[:i], st.Open[i+1:]...)
	}
	return closed
}

// CloseAll closes every open trade at its latest price with reason.
func CloseAll(st *State, r risk.Rules, w market.Watchlist, day time.Time,
	bars map[market.Key]market.Candle, reason trade.CloseReason, rates asset.Rates) []trade.Trade {

	var closed []trade.Trade
	for len(st.Open) > 0 {
		t := st.Open[0]
		exit := t.Entry
		if t.CurrentPrice > 0 {
			exit = t.CurrentPrice
		}
		if bar, ok := bars[t.Key()]; ok {
			exit = bar.Close
		}
		closed = append(closed, closeAt(st, r, w, 0, exit, day, reason, rates))
		st.Open = st.Open[1:]
	}
	st.Open = []trade.Trade{}
	return closed
}

// MarkToMarket revalues open trades at the day's close.
func MarkToMarket(st *State, r risk.Rules, w market.Watchlist,
	bars map[market.Key]market.Candle, rates asset.Rates) {

	for i := range st.Open {
		t := &st.Open[i]
		bar, ok := bars[t.Key()]
		if !ok {
			continue
		}
		t.CurrentPrice = bar.Close
		t.UnrealizedPnL = asset.MustFor(t.Class).PnL(t.Direction, t.Entry, bar.Close, t.Size, configFor(w, *t), r.Spread, rates)
	}
}
