// Package store persists the accumulated utterance list: one ordered list
// of strings under a single key. An empty list and an absent key are the
// same thing, so saving an empty list removes the key instead of storing an
// empty value.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

var listKey = []byte("bloom:utterances")

// Store is the BadgerDB-backed utterance list.
type Store struct {
	db *badger.DB
}

// Options configures the store.
type Options struct {
	// Dir is the directory for the data files. Required unless InMemory.
	Dir string
	// InMemory skips disk persistence; used by tests.
	InMemory bool
}

func Open(opt Options) (*Store, error) {
	if !opt.InMemory && opt.Dir == "" {
		return nil, errors.New("store: Options.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opt.Dir).WithLogger(nil)
	if opt.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the persisted list. An absent key is an empty list.
func (s *Store) Load(_ context.Context) ([]string, error) {
	var texts []string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(listKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &texts)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}
	return texts, nil
}

// Save replaces the list wholesale. Empty or nil removes the key.
func (s *Store) Save(_ context.Context, texts []string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if len(texts) == 0 {
			err := txn.Delete(listKey)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		val, err := json.Marshal(texts)
		if err != nil {
			return err
		}
		return txn.Set(listKey, val)
	})
	if err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	return nil
}
