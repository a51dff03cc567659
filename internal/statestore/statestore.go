// Package statestore defines the host ledger contract consumed by the engine.
//
// A store exposes uniform key-value primitives over scopes. The world state
// scope is globally replicated; a named collection scope is an
// access-restricted partition. Backends implement the same contract for both,
// so switching a field's scope never changes how its records are addressed.
package statestore

import (
	"context"
	"errors"

	"github.com/segledger/segledger/internal/selector"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Scope identifies a key-value partition: the world state or one named
// private data collection.
type Scope struct {
	collection string
}

// WorldState is the globally-replicated scope.
var WorldState = Scope{}

// Collection returns the scope for a named private data collection.
func Collection(name string) Scope {
	return Scope{collection: name}
}

// IsWorldState reports whether the scope is the world state.
func (s Scope) IsWorldState() bool {
	return s.collection == ""
}

// Name returns the collection name, or "" for the world state.
func (s Scope) Name() string {
	return s.collection
}

// String renders the scope for logs and error metadata.
func (s Scope) String() string {
	if s.collection == "" {
		return "world"
	}
	return s.collection
}

// Record is one stored key-value pair.
type Record struct {
	Key   string
	Value []byte
}

// Query selects records within one table partition of a scope.
type Query struct {
	// Table restricts the scan to keys under the table's composite prefix.
	Table string
	// Selector optionally filters decoded documents. Nil selects all.
	Selector *selector.Selector
}

// Page is one page of query results.
type Page struct {
	Records []Record
	// Bookmark resumes the query after the last record of this page.
	Bookmark string
	// Done reports that no further pages remain. Done is authoritative;
	// callers never need to inspect len(Records) to detect the end.
	Done bool
}

// Store is the host ledger key-value contract.
//
// Get and Delete return ErrNotFound for absent keys. Query returns full
// results ordered lexicographically by key.
type Store interface {
	Put(ctx context.Context, scope Scope, key string, value []byte) error
	Get(ctx context.Context, scope Scope, key string) ([]byte, error)
	Delete(ctx context.Context, scope Scope, key string) error
	Query(ctx context.Context, scope Scope, q Query) ([]Record, error)
	Close() error
}

// PagedQuerier is implemented by backends with native cursor support.
// Backends without it are paged by the emulated strategy instead.
type PagedQuerier interface {
	QueryPage(ctx context.Context, scope Scope, q Query, pageSize int, bookmark string) (Page, error)
}
