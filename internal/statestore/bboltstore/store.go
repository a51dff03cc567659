// Package bboltstore provides a bbolt-backed state store backend.
//
// The world state and each named collection map to separate buckets, so a
// collection's records never replicate into another scope's partition.
// Prefix range scans over the NUL-separated composite keys use bbolt
// cursors. The backend has no native bookmark support; paging is emulated
// above it.
package bboltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/segledger/segledger/internal/statestore"
)

const worldBucket = "world"

const collectionPrefix = "collection/"

// Store provides a BoltDB-backed ledger state store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(worldBucket))
		if err != nil {
			return fmt.Errorf("create world bucket: %w", err)
		}
		return nil
	})
}

func bucketName(scope statestore.Scope) []byte {
	if scope.IsWorldState() {
		return []byte(worldBucket)
	}
	return []byte(collectionPrefix + scope.Name())
}

// Put persists a record, overwriting any existing value.
func (s *Store) Put(ctx context.Context, scope statestore.Scope, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName(scope))
		if err != nil {
			return fmt.Errorf("create scope bucket: %w", err)
		}
		return bucket.Put([]byte(key), value)
	})
}

// Get fetches a record by key.
func (s *Store) Get(ctx context.Context, scope statestore.Scope, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName(scope))
		if bucket == nil {
			return statestore.ErrNotFound
		}
		stored := bucket.Get([]byte(key))
		if stored == nil {
			return statestore.ErrNotFound
		}
		value = make([]byte, len(stored))
		copy(value, stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Delete removes a record by key.
func (s *Store) Delete(ctx context.Context, scope statestore.Scope, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName(scope))
		if bucket == nil {
			return statestore.ErrNotFound
		}
		if bucket.Get([]byte(key)) == nil {
			return statestore.ErrNotFound
		}
		return bucket.Delete([]byte(key))
	})
}

// Query returns every matching record of the table, ordered by key.
func (s *Store) Query(ctx context.Context, scope statestore.Scope, q statestore.Query) ([]statestore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	prefix := []byte(statestore.TablePrefix(q.Table))

	var records []statestore.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName(scope))
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		for key, value := cursor.Seek(prefix); key != nil && strings.HasPrefix(string(key), string(prefix)); key, value = cursor.Next() {
			if q.Selector != nil {
				var doc map[string]any
				if err := json.Unmarshal(value, &doc); err != nil {
					return fmt.Errorf("decode record %q: %w", key, err)
				}
				ok, err := q.Selector.Match(doc)
				if err != nil {
					return fmt.Errorf("evaluate selector: %w", err)
				}
				if !ok {
					continue
				}
			}
			cp := make([]byte, len(value))
			copy(cp, value)
			records = append(records, statestore.Record{Key: string(key), Value: cp})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
