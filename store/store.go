// Package store persists fund state behind a small port so the engine never
// touches files or databases directly.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/paperfund/fund"
)

// ErrNotFound means no state has been saved for the fund yet.
var ErrNotFound = errors.New("fund state not found")

// Store loads and saves one State document per fund id.
type Store interface {
	Load(ctx context.Context, fundID string) (*fund.State, error)
	Save(ctx context.Context, fundID string, st *fund.State) error
	Close() error
}

// Open picks a backend by name: "file" (default) or "badger".
func Open(kind, path string) (Store, error) {
	switch kind {
	case "", "file", "json":
		return NewFileStore(path)
	case "badger":
		return NewBadgerStore(path)
	}
	return nil, fmt.Errorf("unknown state store %q (supported: file, badger)", kind)
}

// LoadOrInit returns the saved state, or a fresh one when none exists. Older
// documents missing a peak balance or id counter are migrated in place.
func LoadOrInit(ctx context.Context, s Store, fundID, idPrefix string, initial float64) (*fund.State, error) {
	st, err := s.Load(ctx, fundID)
	if errors.Is(err, ErrNotFound) {
		return fund.NewState(idPrefix, initial), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", fundID, err)
	}
	if st.IDPrefix == "" {
		st.IDPrefix = idPrefix
	}
	st.Migrate(initial)
	return st, nil
}

// Update loads a fund, applies fn and saves the result only when fn succeeds.
func Update(ctx context.Context, s Store, fundID, idPrefix string, initial float64, fn func(*fund.State) error) (*fund.State, error) {
	st, err := LoadOrInit(ctx, s, fundID, idPrefix, initial)
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, fundID, st); err != nil {
		return nil, fmt.Errorf("save %s: %w", fundID, err)
	}
	return st, nil
}
