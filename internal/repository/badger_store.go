package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"WasteFlow/internal/domain/models"
)

const exchangeStateKey = "exchange:state"

// BadgerStore keeps the exchange state under one key; each Save is a single
// ACID transaction.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a Badger database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemoryBadgerStore opens a non-persistent store, used by tests.
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Load(ctx context.Context) (models.ExchangeState, error) {
	var state models.ExchangeState
	if err := ctx.Err(); err != nil {
		return state, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(exchangeStateKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get state: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if err != nil {
		return models.ExchangeState{}, err
	}
	return state, nil
}

func (s *BadgerStore) Save(ctx context.Context, state models.ExchangeState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(exchangeStateKey), data)
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
