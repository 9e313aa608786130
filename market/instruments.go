package market

import (
	"fmt"
	"strings"
)

// AssetClass is the closed set of instrument families the fund trades.
type AssetClass string

const (
	Forex  AssetClass = "forex"
	Stocks AssetClass = "stocks"
	Crypto AssetClass = "crypto"
)

// Classes lists every asset class in evaluation order.
var Classes = []AssetClass{Forex, Stocks, Crypto}

func ParseAssetClass(s string) (AssetClass, error) {
	switch AssetClass(strings.ToLower(strings.TrimSpace(s))) {
	case Forex:
		return Forex, nil
	case Stocks, "stock", "equity", "equities":
		return Stocks, nil
	case Crypto:
		return Crypto, nil
	}
	return "", fmt.Errorf("unknown asset class %q", s)
}

// Direction is the side of a position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign is +1 for Long and -1 for Short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Key identifies one tradable series.
type Key struct {
	Class  AssetClass
	Symbol string
}

func (k Key) String() string { return string(k.Class) + "/" + k.Symbol }

// Series holds daily candles per instrument, oldest first.
type Series map[Key][]Candle

// AssetConfig is per-instrument metadata from the watchlist.
type AssetConfig struct {
	Symbol  string     `json:"symbol" yaml:"symbol"`
	Class   AssetClass `json:"class,omitempty" yaml:"class,omitempty"`
	PipSize float64    `json:"pip_size,omitempty" yaml:"pip_size,omitempty"`

	// Group is the sector bucket used by the stock correlation limit.
	Group string `json:"group,omitempty" yaml:"group,omitempty"`

	// From/To override the base and quote currencies of a forex pair.
	From string `json:"from,omitempty" yaml:"from,omitempty"`
	To   string `json:"to,omitempty" yaml:"to,omitempty"`
}

// DefaultPipSize is used when a forex pair has no pip_size.
const DefaultPipSize = 0.0001

func (a AssetConfig) Key() Key { return Key{Class: a.Class, Symbol: a.Symbol} }

// Pip returns the configured pip size or DefaultPipSize.
func (a AssetConfig) Pip() float64 {
	if a.PipSize > 0 {
		return a.PipSize
	}
	return DefaultPipSize
}

// Base is the base currency of a forex pair.
func (a AssetConfig) Base() string {
	if a.From != "" {
		return strings.ToUpper(a.From)
	}
	if len(a.Symbol) >= 3 {
		return strings.ToUpper(a.Symbol[:3])
	}
	return strings.ToUpper(a.Symbol)
}

// Quote is the quote currency of a forex pair.
func (a AssetConfig) Quote() string {
	if a.To != "" {
		return strings.ToUpper(a.To)
	}
	if len(a.Symbol) >= 6 {
		return strings.ToUpper(a.Symbol[3:6])
	}
	return ""
}

// Watchlist is the tradable universe grouped by class.
type Watchlist struct {
	Forex  []AssetConfig `json:"forex,omitempty" yaml:"forex,omitempty"`
	Stocks []AssetConfig `json:"stocks,omitempty" yaml:"stocks,omitempty"`
	Crypto []AssetConfig `json:"crypto,omitempty" yaml:"crypto,omitempty"`
}

// All returns every configured asset with its Class filled in, in class order.
func (w Watchlist) All() []AssetConfig {
	out := make([]AssetConfig, 0, len(w.Forex)+len(w.Stocks)+len(w.Crypto))
	add := func(class AssetClass, list []AssetConfig) {
		for _, a := range list {
			a.Class = class
			out = append(out, a)
		}
	}
	add(Forex, w.Forex)
	add(Stocks, w.Stocks)
	add(Crypto, w.Crypto)
	return out
}

// Lookup finds the config for a symbol within a class.
func (w Watchlist) Lookup(class AssetClass, symbol string) (AssetConfig, bool) {
	for _, a := range w.All() {
		if a.Class == class && strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return AssetConfig{}, false
}

// Validate checks symbols are present and unique per class.
func (w Watchlist) Validate() error {
	seen := map[Key]bool{}
	for _, a := range w.All() {
		if strings.TrimSpace(a.Symbol) == "" {
			return fmt.Errorf("watchlist: empty symbol in %s", a.Class)
		}
		if seen[a.Key()] {
			return fmt.Errorf("watchlist: duplicate %s", a.Key())
		}
		seen[a.Key()] = true
		if a.PipSize < 0 {
			return fmt.Errorf("watchlist: %s pip_size must be >= 0", a.Symbol)
		}
	}
	return nil
}
