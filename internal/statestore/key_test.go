package statestore

import "testing"

func TestCompositeKeyShape(t *testing.T) {
	t.Parallel()

	key, err := CompositeKey("asset", "a-1")
	if err != nil {
		t.Fatalf("composite key: %v", err)
	}
	want := "\x00asset\x00a-1\x00"
	if key != want {
		t.Fatalf("key = %q, want %q", key, want)
	}
}

func TestCompositeKeyRejectsSeparator(t *testing.T) {
	t.Parallel()

	if _, err := CompositeKey("asset", "a\x001"); err == nil {
		t.Fatal("expected error for attribute containing separator")
	}
	if _, err := CompositeKey("as\x00set", "a-1"); err == nil {
		t.Fatal("expected error for table containing separator")
	}
	if _, err := CompositeKey("  "); err == nil {
		t.Fatal("expected error for empty table")
	}
}

func TestSplitCompositeKeyRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := CompositeKey("asset", "a-1", "v2")
	if err != nil {
		t.Fatalf("composite key: %v", err)
	}
	table, attrs, err := SplitCompositeKey(key)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if table != "asset" {
		t.Fatalf("table = %q, want asset", table)
	}
	if len(attrs) != 2 || attrs[0] != "a-1" || attrs[1] != "v2" {
		t.Fatalf("attrs = %q, want [a-1 v2]", attrs)
	}
}

func TestTablePrefixCoversKeys(t *testing.T) {
	t.Parallel()

	key, err := CompositeKey("asset", "a-1")
	if err != nil {
		t.Fatalf("composite key: %v", err)
	}
	prefix := TablePrefix("asset")
	if !MatchesPrefix(key, prefix) {
		t.Fatalf("key %q not under prefix %q", key, prefix)
	}
	// A table sharing the prefix string must not collide.
	other, err := CompositeKey("assets", "a-1")
	if err != nil {
		t.Fatalf("composite key: %v", err)
	}
	if MatchesPrefix(other, prefix) {
		t.Fatalf("key %q of table assets must not match prefix of table asset", other)
	}
}

func TestPrefixEnd(t *testing.T) {
	t.Parallel()

	prefix := TablePrefix("asset")
	end := PrefixEnd(prefix)
	if end == "" {
		t.Fatal("expected non-empty upper bound")
	}
	if !(prefix < end) {
		t.Fatalf("end %q must sort after prefix %q", end, prefix)
	}
	key, _ := CompositeKey("asset", "zzzz")
	if !(key < end) {
		t.Fatalf("key %q must sort before end %q", key, end)
	}
}

func TestScopeIdentity(t *testing.T) {
	t.Parallel()

	if !WorldState.IsWorldState() {
		t.Fatal("world state scope misreported")
	}
	if WorldState.String() != "world" {
		t.Fatalf("world scope string = %q", WorldState.String())
	}
	col := Collection("colA")
	if col.IsWorldState() {
		t.Fatal("collection scope misreported as world state")
	}
	if col.Name() != "colA" || col.String() != "colA" {
		t.Fatalf("collection scope name = %q/%q", col.Name(), col.String())
	}
}
