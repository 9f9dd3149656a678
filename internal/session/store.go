// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/waveframe-studio/waveframe/internal/models"
)

// Key prefixes for BadgerDB storage.
const (
	sessionKeyPrefix = "session:"
	orderKeyPrefix   = "order:"
)

// Store persists sessions and orders in BadgerDB. Session entries carry a
// Badger TTL matching the session's ExpiresAt so expired records vanish
// without a sweeper; orders are durable and never expire.
type Store struct {
	db *badger.DB
}

// NewStore creates a store on an open Badger database.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) a Badger database at path for session
// storage. The caller owns closing the returned DB.
func Open(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logger is noisy; we log outcomes ourselves
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store at %s: %w", path, err)
	}
	return db, nil
}

// Put writes a session record. The entry TTL is derived from the session's
// ExpiresAt; finalized sessions are written without a TTL so their closed
// state survives until cleanup.
func (s *Store) Put(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(sessionKeyPrefix + sess.Token)

		if sess.Finalized || sess.ExpiresAt.IsZero() {
			return txn.Set(key, data)
		}

		ttl := time.Until(sess.ExpiresAt)
		if ttl <= 0 {
			// Already past expiry; write nothing and let Get report NotFound.
			return nil
		}
		return txn.SetEntry(badger.NewEntry(key, data).WithTTL(ttl))
	})
}

// Get retrieves a session by token. Returns ErrNotFound for unknown tokens
// and for records past their TTL.
func (s *Store) Get(ctx context.Context, token string) (*models.Session, error) {
	var sess models.Session

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionKeyPrefix + token))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sess)
		})
	})
	if err != nil {
		return nil, err
	}

	// Badger TTL granularity is coarse; enforce expiry on read as well.
	if !sess.Finalized && sess.IsExpired() {
		return nil, ErrNotFound
	}

	return &sess, nil
}

// Delete removes a session record. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, token string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(sessionKeyPrefix + token))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// PutOrder persists a finalized order. Orders are immutable; writing an
// order that already exists is rejected so permanent refs can never be
// silently replaced.
func (s *Store) PutOrder(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(orderKeyPrefix + order.ID)

		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("order %s already exists", order.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check order: %w", err)
		}

		return txn.Set(key, data)
	})
}

// GetOrder retrieves a finalized order by ID. Returns ErrNotFound if absent.
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(orderKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &order)
		})
	})
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// ActiveTokens returns the tokens of all live (unexpired) sessions. Used by
// the asset janitor to identify orphaned temporary assets.
func (s *Store) ActiveTokens(ctx context.Context) ([]string, error) {
	var tokens []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(sessionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			tokens = append(tokens, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return tokens, nil
}
