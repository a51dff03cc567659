// Package memory provides an in-memory state store backend.
//
// It serves as the test substrate and as a reference implementation of the
// host ledger contract. Scopes are independent maps; queries scan keys in
// lexicographic order. The backend has no native cursor support.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/segledger/segledger/internal/statestore"
)

// Store is an in-memory ledger backend.
type Store struct {
	mu     sync.RWMutex
	scopes map[string]map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{scopes: make(map[string]map[string][]byte)}
}

func (s *Store) scope(scope statestore.Scope) map[string][]byte {
	m, ok := s.scopes[scope.String()]
	if !ok {
		m = make(map[string][]byte)
		s.scopes[scope.String()] = m
	}
	return m
}

// Put stores a record, overwriting any existing value.
func (s *Store) Put(ctx context.Context, scope statestore.Scope, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.scope(scope)[key] = cp
	return nil
}

// Get fetches a record by key.
func (s *Store) Get(ctx context.Context, scope statestore.Scope, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.scopes[scope.String()][key]
	if !ok {
		return nil, statestore.ErrNotFound
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

// Delete removes a record by key.
func (s *Store) Delete(ctx context.Context, scope statestore.Scope, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.scopes[scope.String()]
	if _, ok := m[key]; !ok {
		return statestore.ErrNotFound
	}
	delete(m, key)
	return nil
}

// Query returns every matching record of the table, ordered by key.
func (s *Store) Query(ctx context.Context, scope statestore.Scope, q statestore.Query) ([]statestore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := statestore.TablePrefix(q.Table)

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0)
	for key := range s.scopes[scope.String()] {
		if statestore.MatchesPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	records := make([]statestore.Record, 0, len(keys))
	for _, key := range keys {
		value := s.scopes[scope.String()][key]
		if q.Selector != nil {
			var doc map[string]any
			if err := json.Unmarshal(value, &doc); err != nil {
				return nil, fmt.Errorf("decode record %q: %w", key, err)
			}
			ok, err := q.Selector.Match(doc)
			if err != nil {
				return nil, fmt.Errorf("evaluate selector: %w", err)
			}
			if !ok {
				continue
			}
		}
		cp := make([]byte, len(value))
		copy(cp, value)
		records = append(records, statestore.Record{Key: key, Value: cp})
	}
	return records, nil
}

// Close releases the store. It is a no-op for the in-memory backend.
func (s *Store) Close() error {
	return nil
}
