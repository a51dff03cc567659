package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	apperrors "github.com/segledger/segledger/internal/platform/errors"
	"github.com/segledger/segledger/internal/schema"
	"github.com/segledger/segledger/internal/statestore"
	"github.com/segledger/segledger/internal/statestore/memory"
	"github.com/segledger/segledger/internal/statestore/sqlitestore"
)

func seedRecords(t *testing.T, store statestore.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("a-%02d", i)
		doc, err := json.Marshal(schema.Instance{"id": id, "rank": float64(i)})
		if err != nil {
			t.Fatalf("marshal doc: %v", err)
		}
		key, err := statestore.CompositeKey("asset", id)
		if err != nil {
			t.Fatalf("CompositeKey() error = %v", err)
		}
		if err := store.Put(ctx, statestore.WorldState, key, doc); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
}

// walk pages through the full result set and returns every doc id seen.
func walk(t *testing.T, strategy Strategy, pageSize int) []string {
	t.Helper()
	q := statestore.Query{Table: "asset"}
	var ids []string
	token := ""
	for page := 0; ; page++ {
		if page > 100 {
			t.Fatal("paging did not terminate")
		}
		result, err := strategy.Page(context.Background(), statestore.WorldState, q, pageSize, token)
		if err != nil {
			t.Fatalf("Page() error = %v", err)
		}
		for _, doc := range result.Docs {
			ids = append(ids, doc["id"].(string))
		}
		if result.Done {
			if result.Bookmark != "" {
				t.Fatalf("final page carries bookmark %q, want empty", result.Bookmark)
			}
			return ids
		}
		if result.Bookmark == "" {
			t.Fatal("non-final page returned no bookmark")
		}
		token = result.Bookmark
	}
}

func checkWalk(t *testing.T, ids []string, n int) {
	t.Helper()
	if len(ids) != n {
		t.Fatalf("walk yielded %d docs, want %d", len(ids), n)
	}
	seen := make(map[string]bool, n)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("doc %s appeared twice", id)
		}
		seen[id] = true
	}
}

func TestEmulatedWalkYieldsEveryDocOnce(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedRecords(t, store, 10)

	strategy := NewForStore(store)
	if _, ok := strategy.(*Emulated); !ok {
		t.Fatalf("NewForStore(memory) = %T, want *Emulated", strategy)
	}
	checkWalk(t, walk(t, strategy, 3), 10)
}

func TestNativeWalkYieldsEveryDocOnce(t *testing.T) {
	t.Parallel()

	store, err := sqlitestore.Open(filepath.Join(t.TempDir(), "page.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	seedRecords(t, store, 10)

	strategy := NewForStore(store)
	if _, ok := strategy.(*Native); !ok {
		t.Fatalf("NewForStore(sqlite) = %T, want *Native", strategy)
	}
	checkWalk(t, walk(t, strategy, 3), 10)
}

func TestExactMultipleEndsWithDone(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedRecords(t, store, 6)

	checkWalk(t, walk(t, NewForStore(store), 3), 6)
}

func TestRejectsTokenFromAnotherQuery(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedRecords(t, store, 5)
	strategy := NewForStore(store)
	ctx := context.Background()

	first, err := strategy.Page(ctx, statestore.WorldState, statestore.Query{Table: "asset"}, 2, "")
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	_, err = strategy.Page(ctx, statestore.WorldState, statestore.Query{Table: "order"}, 2, first.Bookmark)
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("Page() with foreign token error = %v, want VALIDATION", err)
	}
}

func TestRejectsMalformedToken(t *testing.T) {
	t.Parallel()

	strategy := NewForStore(memory.New())
	_, err := strategy.Page(context.Background(), statestore.WorldState, statestore.Query{Table: "asset"}, 2, "not a token!")
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("Page() with malformed token error = %v, want VALIDATION", err)
	}
}

func TestRejectsNonPositivePageSize(t *testing.T) {
	t.Parallel()

	strategy := NewForStore(memory.New())
	_, err := strategy.Page(context.Background(), statestore.WorldState, statestore.Query{Table: "asset"}, 0, "")
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("Page() with page size 0 error = %v, want VALIDATION", err)
	}
}
