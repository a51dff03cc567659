// Package ledger provides the uniform create/read/delete/query contract over
// one scope of the host state store.
//
// An adapter is bound to either the world state or one named collection;
// composite keys are built identically regardless of scope, so moving a
// field between scopes never changes how its fragments are addressed. Every
// successful write is appended to the invocation's accumulator.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/segledger/segledger/internal/platform/errors"
	"github.com/segledger/segledger/internal/schema"
	"github.com/segledger/segledger/internal/selector"
	"github.com/segledger/segledger/internal/statestore"
)

// Adapter routes record operations to one scope of the state store.
type Adapter struct {
	store statestore.Store
	scope statestore.Scope
	acc   *Accumulator
}

// New binds an adapter to a scope and the invocation's write accumulator.
func New(store statestore.Store, scope statestore.Scope, acc *Accumulator) *Adapter {
	return &Adapter{store: store, scope: scope, acc: acc}
}

// Scope returns the scope this adapter is bound to.
func (a *Adapter) Scope() statestore.Scope {
	return a.scope
}

func (a *Adapter) meta(table string, attrs []string) map[string]string {
	return map[string]string{
		"table": table,
		"key":   strings.Join(attrs, "/"),
		"scope": a.scope.String(),
	}
}

func (a *Adapter) key(table string, attrs []string) (string, error) {
	key, err := statestore.CompositeKey(table, attrs...)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeValidation, "build composite key", err)
	}
	return key, nil
}

func marshalDoc(doc schema.Instance) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "serialize record", err)
	}
	return raw, nil
}

func unmarshalDoc(raw []byte) (schema.Instance, error) {
	var doc schema.Instance
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "deserialize record", err)
	}
	return doc, nil
}

// Create stores a new record and fails with CONFLICT if the key exists.
func (a *Adapter) Create(ctx context.Context, table string, attrs []string, doc schema.Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := a.key(table, attrs)
	if err != nil {
		return err
	}

	_, err = a.store.Get(ctx, a.scope, key)
	switch {
	case err == nil:
		return apperrors.WithMetadata(apperrors.CodeConflict,
			fmt.Sprintf("record already exists in table %q", table), a.meta(table, attrs))
	case errors.Is(err, statestore.ErrNotFound):
		// Free to create.
	default:
		return apperrors.Wrap(apperrors.CodeInternal, "check existing record", err)
	}

	raw, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	if err := a.store.Put(ctx, a.scope, key, raw); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "put record", err)
	}
	a.acc.Append(Write{Scope: a.scope, Table: table, Key: key, Op: WriteOpPut})
	return nil
}

// Put stores a record, overwriting any existing value.
func (a *Adapter) Put(ctx context.Context, table string, attrs []string, doc schema.Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := a.key(table, attrs)
	if err != nil {
		return err
	}
	raw, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	if err := a.store.Put(ctx, a.scope, key, raw); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "put record", err)
	}
	a.acc.Append(Write{Scope: a.scope, Table: table, Key: key, Op: WriteOpPut})
	return nil
}

// Read fetches a record and fails with NOT_FOUND if the key is absent.
func (a *Adapter) Read(ctx context.Context, table string, attrs []string) (schema.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := a.key(table, attrs)
	if err != nil {
		return nil, err
	}

	raw, err := a.store.Get(ctx, a.scope, key)
	if errors.Is(err, statestore.ErrNotFound) {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("record not found in table %q", table), a.meta(table, attrs))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "get record", err)
	}
	return unmarshalDoc(raw)
}

// Delete removes a record and fails with NOT_FOUND if the key is absent.
func (a *Adapter) Delete(ctx context.Context, table string, attrs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := a.key(table, attrs)
	if err != nil {
		return err
	}

	err = a.store.Delete(ctx, a.scope, key)
	if errors.Is(err, statestore.ErrNotFound) {
		return apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("record not found in table %q", table), a.meta(table, attrs))
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "delete record", err)
	}
	a.acc.Append(Write{Scope: a.scope, Table: table, Key: key, Op: WriteOpDelete})
	return nil
}

// RawQuery returns every record of the table matching the selector, decoded
// and ordered by key. Paged traversal goes through a pagination strategy
// instead.
func (a *Adapter) RawQuery(ctx context.Context, table string, sel *selector.Selector) ([]schema.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := a.store.Query(ctx, a.scope, statestore.Query{Table: table, Selector: sel})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "query records", err)
	}
	docs := make([]schema.Instance, 0, len(records))
	for _, rec := range records {
		doc, err := unmarshalDoc(rec.Value)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
