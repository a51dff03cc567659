package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/segledger/segledger/internal/statestore"
	"github.com/segledger/segledger/internal/statestore/storetest"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestSqliteStoreContract(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) statestore.Store {
		return openTempStore(t)
	})
}

func TestSqliteNativePaging(t *testing.T) {
	t.Parallel()

	storetest.RunPaged(t, func(t *testing.T) statestore.PagedQuerier {
		return openTempStore(t)
	})
}

func TestQueryPageRejectsZeroPageSize(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	_, err := store.QueryPage(context.Background(), statestore.WorldState, statestore.Query{Table: "asset"}, 0, "")
	if err == nil {
		t.Fatal("expected page size error")
	}
}
