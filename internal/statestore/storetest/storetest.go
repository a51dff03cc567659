// Package storetest exercises the statestore contract against any backend.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/segledger/segledger/internal/selector"
	"github.com/segledger/segledger/internal/statestore"
)

// Factory opens a fresh, empty store for one test.
type Factory func(t *testing.T) statestore.Store

func mustKey(t *testing.T, table string, attrs ...string) string {
	t.Helper()
	key, err := statestore.CompositeKey(table, attrs...)
	if err != nil {
		t.Fatalf("composite key: %v", err)
	}
	return key
}

func doc(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal doc: %v", err)
	}
	return raw
}

// Run exercises the full statestore contract against the backend.
func Run(t *testing.T, open Factory) {
	t.Run("PutGetRoundTrip", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		key := mustKey(t, "asset", "a-1")

		if err := store.Put(ctx, statestore.WorldState, key, doc(t, map[string]any{"name": "x"})); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := store.Get(ctx, statestore.WorldState, key)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(got, &decoded); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded["name"] != "x" {
			t.Fatalf("name = %v, want x", decoded["name"])
		}
	})

	t.Run("GetAbsentReturnsNotFound", func(t *testing.T) {
		store := open(t)
		_, err := store.Get(context.Background(), statestore.WorldState, mustKey(t, "asset", "missing"))
		if !errors.Is(err, statestore.ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteRemovesRecord", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		key := mustKey(t, "asset", "a-1")

		if err := store.Put(ctx, statestore.WorldState, key, doc(t, map[string]any{"name": "x"})); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := store.Delete(ctx, statestore.WorldState, key); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := store.Get(ctx, statestore.WorldState, key); !errors.Is(err, statestore.ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
		if err := store.Delete(ctx, statestore.WorldState, key); !errors.Is(err, statestore.ErrNotFound) {
			t.Fatalf("second delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ScopesAreIsolated", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		key := mustKey(t, "asset", "a-1")

		if err := store.Put(ctx, statestore.Collection("colA"), key, doc(t, map[string]any{"secret": "y"})); err != nil {
			t.Fatalf("put collection: %v", err)
		}
		if _, err := store.Get(ctx, statestore.WorldState, key); !errors.Is(err, statestore.ErrNotFound) {
			t.Fatalf("world get error = %v, want ErrNotFound", err)
		}
		if _, err := store.Get(ctx, statestore.Collection("colB"), key); !errors.Is(err, statestore.ErrNotFound) {
			t.Fatalf("colB get error = %v, want ErrNotFound", err)
		}
		if _, err := store.Get(ctx, statestore.Collection("colA"), key); err != nil {
			t.Fatalf("colA get: %v", err)
		}
	})

	t.Run("QueryScansTableInKeyOrder", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		for _, pk := range []string{"c", "a", "b"} {
			key := mustKey(t, "asset", pk)
			if err := store.Put(ctx, statestore.WorldState, key, doc(t, map[string]any{"pk": pk})); err != nil {
				t.Fatalf("put %s: %v", pk, err)
			}
		}
		// Another table under the same scope must not leak into the scan.
		if err := store.Put(ctx, statestore.WorldState, mustKey(t, "assets", "zz"), doc(t, map[string]any{"pk": "zz"})); err != nil {
			t.Fatalf("put other table: %v", err)
		}

		records, err := store.Query(ctx, statestore.WorldState, statestore.Query{Table: "asset"})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("records = %d, want 3", len(records))
		}
		for i := 1; i < len(records); i++ {
			if !(records[i-1].Key < records[i].Key) {
				t.Fatalf("records not in key order: %q before %q", records[i-1].Key, records[i].Key)
			}
		}
	})

	t.Run("QueryAppliesSelector", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			pk := fmt.Sprintf("a-%d", i)
			key := mustKey(t, "asset", pk)
			if err := store.Put(ctx, statestore.WorldState, key, doc(t, map[string]any{"pk": pk, "quantity": i})); err != nil {
				t.Fatalf("put %s: %v", pk, err)
			}
		}

		sel, err := selector.Parse("quantity >= 3", []selector.Field{{Name: "quantity", Type: selector.TypeInt}})
		if err != nil {
			t.Fatalf("parse selector: %v", err)
		}
		records, err := store.Query(ctx, statestore.WorldState, statestore.Query{Table: "asset", Selector: sel})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("records = %d, want 2", len(records))
		}
	})
}

// RunPaged exercises the native paging contract for backends that support it.
func RunPaged(t *testing.T, open func(t *testing.T) statestore.PagedQuerier) {
	t.Run("PageWalkYieldsAllRecordsOnce", func(t *testing.T) {
		pq := open(t)
		store, ok := pq.(statestore.Store)
		if !ok {
			t.Fatal("paged querier must also implement Store")
		}
		ctx := context.Background()

		const n = 10
		for i := 0; i < n; i++ {
			pk := fmt.Sprintf("a-%02d", i)
			key := mustKey(t, "asset", pk)
			if err := store.Put(ctx, statestore.WorldState, key, doc(t, map[string]any{"pk": pk})); err != nil {
				t.Fatalf("put %s: %v", pk, err)
			}
		}

		var seen []string
		bookmark := ""
		for {
			page, err := pq.QueryPage(ctx, statestore.WorldState, statestore.Query{Table: "asset"}, 3, bookmark)
			if err != nil {
				t.Fatalf("query page: %v", err)
			}
			for _, rec := range page.Records {
				seen = append(seen, rec.Key)
			}
			if page.Done {
				break
			}
			bookmark = page.Bookmark
		}

		if len(seen) != n {
			t.Fatalf("saw %d records, want %d", len(seen), n)
		}
		unique := make(map[string]bool, len(seen))
		for _, key := range seen {
			if unique[key] {
				t.Fatalf("duplicate key %q across pages", key)
			}
			unique[key] = true
		}
	})
}
