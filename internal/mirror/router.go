// Package mirror routes record copies into mirror collections and serves
// reads from them for matching callers.
//
// Mirror collections hold a full duplicate of selected records so that a
// configured audience reads one document instead of stitching fragments.
// The predicate governs read routing only; writes always duplicate into the
// mirror in addition to the record's base routing.
package mirror

import (
	"context"

	apperrors "github.com/segledger/segledger/internal/platform/errors"
	"github.com/segledger/segledger/internal/ledger"
	"github.com/segledger/segledger/internal/schema"
	"github.com/segledger/segledger/internal/segregation"
	"github.com/segledger/segledger/internal/statestore"
)

// Router duplicates records into mirror collections.
type Router struct {
	store statestore.Store
}

// New creates a router over the given state store.
func New(store statestore.Store) *Router {
	return &Router{store: store}
}

// collections returns the distinct mirror collections of the targets.
func collections(targets []segregation.MirrorTarget) []string {
	seen := make(map[string]bool, len(targets))
	var names []string
	for _, target := range targets {
		if seen[target.Collection] {
			continue
		}
		seen[target.Collection] = true
		names = append(names, target.Collection)
	}
	return names
}

// Write stores a full-model copy in every mirror collection. A mirror write
// failure propagates unchanged and aborts the surrounding operation.
func (r *Router) Write(ctx context.Context, acc *ledger.Accumulator, targets []segregation.MirrorTarget, table string, attrs []string, full schema.Instance) error {
	for _, name := range collections(targets) {
		adapter := ledger.New(r.store, statestore.Collection(name), acc)
		if err := adapter.Put(ctx, table, attrs, full); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the mirror copies best-effort: a copy that is already
// absent counts as success, any other failure propagates.
func (r *Router) Delete(ctx context.Context, acc *ledger.Accumulator, targets []segregation.MirrorTarget, table string, attrs []string) error {
	for _, name := range collections(targets) {
		adapter := ledger.New(r.store, statestore.Collection(name), acc)
		err := adapter.Delete(ctx, table, attrs)
		if err != nil && !apperrors.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// Route returns the mirror collection that should serve the caller's reads,
// if any predicate matches the caller's org.
func Route(targets []segregation.MirrorTarget, callerOrg string) (string, bool) {
	for _, target := range targets {
		if target.Predicate != nil && target.Predicate(callerOrg) {
			return target.Collection, true
		}
	}
	return "", false
}
