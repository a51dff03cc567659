// Package sequence manages the named auto-increment counters backing
// generated primary keys.
//
// The primary copy of every counter lives in the world state. After a write
// touches private collections, the counter's new value is replicated into
// each of them so that any authorized peer reads the same value from its own
// partition.
package sequence

import (
	"context"
	"fmt"

	apperrors "github.com/segledger/segledger/internal/platform/errors"
	"github.com/segledger/segledger/internal/ledger"
	"github.com/segledger/segledger/internal/schema"
	"github.com/segledger/segledger/internal/statestore"
)

// Table is the reserved table marker for sequence counter records.
const Table = "$sequence"

// ID returns the counter id for a table's generated primary keys.
func ID(table string) string {
	return table + "_pk"
}

// Replicator advances and replicates named counters.
type Replicator struct {
	store statestore.Store
}

// New creates a replicator over the given state store.
func New(store statestore.Store) *Replicator {
	return &Replicator{store: store}
}

func counterDoc(sequenceID string, value int64) schema.Instance {
	return schema.Instance{
		schema.TableAttr: Table,
		"id":             sequenceID,
		"value":          value,
	}
}

func counterValue(doc schema.Instance) (int64, error) {
	switch v := doc["value"].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, apperrors.New(apperrors.CodeInternal,
			fmt.Sprintf("sequence counter holds non-numeric value %T", v))
	}
}

// Read returns the counter's current value in the given scope, or 0 when the
// counter does not exist yet.
func (r *Replicator) Read(ctx context.Context, scope statestore.Scope, sequenceID string) (int64, error) {
	adapter := ledger.New(r.store, scope, ledger.NewAccumulator())
	doc, err := adapter.Read(ctx, Table, []string{sequenceID})
	if apperrors.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return counterValue(doc)
}

// NextValue atomically advances the counter in the world state and returns
// its new value. Concurrency control beyond the single increment is
// delegated to the host ledger's per-key locking.
func (r *Replicator) NextValue(ctx context.Context, acc *ledger.Accumulator, sequenceID string) (int64, error) {
	current, err := r.Read(ctx, statestore.WorldState, sequenceID)
	if err != nil {
		return 0, err
	}
	next := current + 1
	adapter := ledger.New(r.store, statestore.WorldState, acc)
	if err := adapter.Put(ctx, Table, []string{sequenceID}, counterDoc(sequenceID, next)); err != nil {
		return 0, err
	}
	return next, nil
}

// Replicate writes the counter value into every listed collection. After it
// returns, reading the counter from any listed collection yields exactly
// the given value.
func (r *Replicator) Replicate(ctx context.Context, acc *ledger.Accumulator, sequenceID string, value int64, collections []string) error {
	for _, name := range collections {
		adapter := ledger.New(r.store, statestore.Collection(name), acc)
		if err := adapter.Put(ctx, Table, []string{sequenceID}, counterDoc(sequenceID, value)); err != nil {
			return err
		}
	}
	return nil
}
