// Package fund is the paper-trading ledger: one State per fund, advanced one
// trading day at a time by Step.
package fund

import (
	"github.com/rustyeddy/paperfund/risk"
	"github.com/rustyeddy/paperfund/trade"
)

const (
	DefaultInitialBalance = 10_000.0
	DefaultIDPrefix       = "T"
	idWidth               = 3
)

// State is the persisted document for one fund.
type State struct {
	IDPrefix       string        `json:"id_prefix"`
	InitialBalance float64       `json:"initial_balance"`
	Balance        float64       `json:"balance"`
	PeakBalance    float64       `json:"peak_balance"`
	NextID         int           `json:"next_id"`
	Open           []trade.Trade `json:"open"`
	Closed         []trade.Trade `json:"closed"`
	LastRunDate    string        `json:"last_run_date,omitempty"`
}

func NewState(prefix string, initial float64) *State {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	if initial <= 0 {
		initial = DefaultInitialBalance
	}
	return &State{
		IDPrefix:       prefix,
		InitialBalance: initial,
		Balance:        initial,
		PeakBalance:    initial,
		NextID:         1,
		Open:           []trade.Trade{},
		Closed:         []trade.Trade{},
	}
}

// Migrate fills fields that older state documents lack. It reports whether anything changed.
func (s *State) Migrate(initial float64) bool {
	changed := false
	if s.IDPrefix == "" {
		s.IDPrefix = DefaultIDPrefix
		changed = true
	}
	if s.InitialBalance <= 0 {
		s.InitialBalance = initial
		changed = true
	}
	if s.PeakBalance <= 0 {
		s.PeakBalance = max(s.Balance, s.InitialBalance)
		changed = true
	}
	if s.NextID <= 0 {
		s.NextID = len(s.Open) + len(s.Closed) + 1
		changed = true
	}
	if s.Open == nil {
		s.Open = []trade.Trade{}
	}
	if s.Closed == nil {
		s.Closed = []trade.Trade{}
	}
	return changed
}

// Positions is the view of open trades the risk gates need.
func (s *State) Positions() []risk.Position {
	out := make([]risk.Position, len(s.Open))
	for i, t := range s.Open {
		out[i] = risk.Position{Class: t.Class, Symbol: t.Symbol, Direction: t.Direction}
	}
	return out
}

// Equity is the balance plus the last marked unrealised P&L.
func (s *State) Equity() float64 {
	eq := s.Balance
	for _, t := range s.Open {
		eq += t.UnrealizedPnL
	}
	return eq
}

// Drawdown from the peak balance.
func (s *State) Drawdown() float64 {
	return risk.Drawdown(s.PeakBalance, s.Balance)
}

func (s *State) refreshPeak() {
	if s.Balance > s.PeakBalance {
		s.PeakBalance = s.Balance
	}
}

func (s *State) nextID() string {
	id := trade.FormatID(s.IDPrefix, s.NextID, idWidth)
	s.NextID++
	return id
}

// Clone is a deep copy. Fund.Preview evaluates on one.
func (s *State) Clone() *State {
	c := *s
	c.Open = append([]trade.Trade{}, s.Open...)
	c.Closed = append([]trade.Trade{}, s.Closed...)
	return &c
}
