package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rustyeddy/paperfund/fund"
)

// FileStore keeps each fund in <dir>/<fundID>-state.json.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Path(fundID string) string {
	return filepath.Join(s.dir, fundID+"-state.json")
}

func validID(fundID string) error {
	if fundID == "" || strings.ContainsAny(fundID, `/\`) || strings.HasPrefix(fundID, ".") {
		return fmt.Errorf("invalid fund id %q", fundID)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, fundID string) (*fund.State, error) {
	if err := validID(fundID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(fundID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var st fund.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path(fundID), err)
	}
	return &st, nil
}

// Save writes to a temp file in the same directory, syncs it and renames it
// over the old document. A failure leaves the previous file untouched.
func (s *FileStore) Save(_ context.Context, fundID string, st *fund.State) error {
	if err := validID(fundID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, fundID+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path(fundID))
}

func (s *FileStore) Close() error { return nil }
