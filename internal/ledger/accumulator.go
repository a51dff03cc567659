package ledger

import "github.com/segledger/segledger/internal/statestore"

// WriteOp classifies an accumulated write.
type WriteOp string

const (
	// WriteOpPut records a create or update.
	WriteOpPut WriteOp = "PUT"
	// WriteOpDelete records a deletion.
	WriteOpDelete WriteOp = "DELETE"
)

// Write is one successful ledger mutation within the current invocation.
type Write struct {
	Scope statestore.Scope
	Table string
	Key   string
	Op    WriteOp
}

// Accumulator collects every successful write of one invocation.
//
// It is created fresh per invocation, owned exclusively by it, and discarded
// at the end; it must never be shared across invocations. The sequence
// replicator and the audit recorder consume it to learn which collections a
// write touched.
type Accumulator struct {
	writes []Write
}

// NewAccumulator creates an empty per-invocation accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append records one successful write.
func (a *Accumulator) Append(w Write) {
	a.writes = append(a.writes, w)
}

// Writes returns the accumulated writes in order.
func (a *Accumulator) Writes() []Write {
	return a.writes
}

// Collections returns the distinct named collections touched so far, in
// first-touch order. The world state is never included.
func (a *Accumulator) Collections() []string {
	seen := make(map[string]bool)
	var names []string
	for _, w := range a.writes {
		if w.Scope.IsWorldState() {
			continue
		}
		name := w.Scope.Name()
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
