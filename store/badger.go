package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v3"

	"github.com/rustyeddy/paperfund/fund"
)

// BadgerStore keeps every fund in one BadgerDB under fund/<id>.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	// Badger's own logger is noisy; errors still come back from each call.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func key(fundID string) []byte { return []byte("fund/" + fundID) }

func (s *BadgerStore) Save(_ context.Context, fundID string, st *fund.State) error {
	if err := validID(fundID); err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(fundID), data)
	})
}

func (s *BadgerStore) Load(_ context.Context, fundID string) (*fund.State, error) {
	if err := validID(fundID); err != nil {
		return nil, err
	}
	var st fund.State
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(fundID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("state value is empty in database")
			}
			return json.Unmarshal(val, &st)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// List returns the ids of every stored fund.
func (s *BadgerStore) List(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("fund/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[len("fund/"):]))
		}
		return nil
	})
	return ids, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
