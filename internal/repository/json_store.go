package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"WasteFlow/internal/domain/models"
	"WasteFlow/pkg/util"
)

// JSONStore keeps the exchange state in a single JSON document. Saves go to
// a synced temp file that is renamed over the old one.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the backing file.
func (s *JSONStore) Path() string { return s.path }

// Load returns the stored state, or an empty state when the file does not exist.
func (s *JSONStore) Load(ctx context.Context) (models.ExchangeState, error) {
	if err := ctx.Err(); err != nil {
		return models.ExchangeState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.ExchangeState{}, nil
	}
	if err != nil {
		return models.ExchangeState{}, fmt.Errorf("read %s: %w", s.path, err)
	}

	var state models.ExchangeState
	if err := json.Unmarshal(data, &state); err != nil {
		return models.ExchangeState{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return state, nil
}

func (s *JSONStore) Save(ctx context.Context, state models.ExchangeState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state.Listings == nil {
		state.Listings = []models.Listing{}
	}
	if state.Contracts == nil {
		state.Contracts = []models.Contract{}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return util.WriteFileAtomic(s.path, data, 0o644)
}

func (s *JSONStore) Close() error { return nil }
