package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrStale is returned when the newest candle is older than the allowed age.
var ErrStale = errors.New("stale candle data")

// CandleSet is one instrument's daily candles as loaded from disk.
type CandleSet struct {
	Symbol   string
	Class    AssetClass
	Filepath string
	Candles  []Candle

	// Invalid counts candles dropped by Validate.
	Invalid    int
	Duplicates int
}

type candleFile struct {
	Symbol  string      `json:"symbol"`
	Candles []candleRow `json:"candles"`
}

type candleRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v,omitempty"`
}

// CandlePath is the conventional location of a series: <dir>/<class>/<SYMBOL>-daily.json.
func CandlePath(dir string, k Key) string {
	return filepath.Join(dir, string(k.Class), strings.ToUpper(k.Symbol)+"-daily.json")
}

// LoadCandleSet reads a candle file, sorts by date, drops duplicates and invalid bars.
func LoadCandleSet(path string, class AssetClass) (*CandleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candles: %w", err)
	}
	var f candleFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse candles %s: %w", path, err)
	}

	cs := &CandleSet{Symbol: f.Symbol, Class: class, Filepath: path}
	raw := make([]Candle, 0, len(f.Candles))
	for _, r := range f.Candles {
		d, err := time.Parse(DateLayout, r.Date)
		if err != nil {
			cs.Invalid++
			continue
		}
		raw = append(raw, Candle{Date: d, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
	}
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Date.Before(raw[j].Date) })

	dedup := raw[:0]
	for i, c := range raw {
		if i > 0 && c.Date.Equal(raw[i-1].Date) {
			cs.Duplicates++
			continue
		}
		dedup = append(dedup, c)
	}

	valid, dropped := FilterValid(dedup)
	cs.Invalid += dropped
	cs.Candles = valid
	return cs, nil
}

// SaveCandleSet writes candles in the on-disk JSON shape.
func SaveCandleSet(path, symbol string, candles []Candle) error {
	f := candleFile{Symbol: symbol, Candles: make([]candleRow, len(candles))}
	for i, c := range candles {
		f.Candles[i] = candleRow{
			Date: c.Date.Format(DateLayout), Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
		}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Last returns the newest candle.
func (cs *CandleSet) Last() (Candle, bool) {
	if len(cs.Candles) == 0 {
		return Candle{}, false
	}
	return cs.Candles[len(cs.Candles)-1], true
}

// Age is the number of whole days between the newest candle and now.
func (cs *CandleSet) Age(now time.Time) int {
	last, ok := cs.Last()
	if !ok {
		return -1
	}
	return int(Day(now).Sub(Day(last.Date)).Hours() / 24)
}

// CheckStale returns ErrStale when the data is older than maxDays. maxDays <= 0 disables the check.
func (cs *CandleSet) CheckStale(now time.Time, maxDays int) error {
	if maxDays <= 0 {
		return nil
	}
	age := cs.Age(now)
	if age < 0 || age > maxDays {
		return fmt.Errorf("%s: newest candle %d days old (max %d): %w", cs.Symbol, age, maxDays, ErrStale)
	}
	return nil
}

// LoadSeries loads every asset in list from dir. Missing files are skipped and reported in missing.
func LoadSeries(dir string, list []AssetConfig) (s Series, sets []*CandleSet, missing []Key, err error) {
	s = Series{}
	for _, a := range list {
		path := CandlePath(dir, a.Key())
		cs, err := LoadCandleSet(path, a.Class)
		if errors.Is(err, os.ErrNotExist) {
			missing = append(missing, a.Key())
			continue
		}
		if err != nil {
			return nil, nil, nil, err
		}
		s[a.Key()] = cs.Candles
		sets = append(sets, cs)
	}
	return s, sets, missing, nil
}

// CandleSource yields the daily history for one instrument, oldest first.
type CandleSource interface {
	Candles(ctx context.Context, k Key) ([]Candle, error)
}

// Candles lets an in-memory Series act as a CandleSource.
func (s Series) Candles(_ context.Context, k Key) ([]Candle, error) {
	return s[k], nil
}

// DirSource reads candle files laid out by CandlePath.
type DirSource struct {
	Dir string
}

func (d DirSource) Candles(_ context.Context, k Key) ([]Candle, error) {
	cs, err := LoadCandleSet(CandlePath(d.Dir, k), k.Class)
	if err != nil {
		return nil, err
	}
	return cs.Candles, nil
}
