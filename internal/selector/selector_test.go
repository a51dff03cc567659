package selector

import (
	"strings"
	"testing"
)

var assetFields = []Field{
	{Name: "name", Type: TypeString},
	{Name: "owner", Type: TypeString},
	{Name: "quantity", Type: TypeInt},
	{Name: "active", Type: TypeBool},
}

func TestParseEmptyFilterIsNil(t *testing.T) {
	t.Parallel()

	sel, err := Parse("  ", assetFields)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sel != nil {
		t.Fatal("expected nil selector for empty filter")
	}
	ok, err := sel.Match(map[string]any{"name": "x"})
	if err != nil || !ok {
		t.Fatalf("nil selector match = %v/%v, want true", ok, err)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	t.Parallel()

	if _, err := Parse(`color = "red"`, assetFields); err == nil {
		t.Fatal("expected error for undeclared field")
	}
}

func TestSQLTranslation(t *testing.T) {
	t.Parallel()

	sel, err := Parse(`owner = "OrgA" AND quantity > 3`, assetFields)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cond, err := sel.SQL()
	if err != nil {
		t.Fatalf("sql: %v", err)
	}
	if !strings.Contains(cond.Clause, "json_extract(doc, '$.owner') = ?") {
		t.Fatalf("clause %q missing owner comparison", cond.Clause)
	}
	if !strings.Contains(cond.Clause, "json_extract(doc, '$.quantity') > ?") {
		t.Fatalf("clause %q missing quantity comparison", cond.Clause)
	}
	if len(cond.Params) != 2 {
		t.Fatalf("params = %d, want 2", len(cond.Params))
	}
	if cond.Params[0] != "OrgA" {
		t.Fatalf("param[0] = %v, want OrgA", cond.Params[0])
	}
}

func TestMatchComparisons(t *testing.T) {
	t.Parallel()

	cases := []struct {
		filter string
		doc    map[string]any
		want   bool
	}{
		{`name = "widget"`, map[string]any{"name": "widget"}, true},
		{`name = "widget"`, map[string]any{"name": "gadget"}, false},
		{`name != "widget"`, map[string]any{"name": "gadget"}, true},
		{`quantity > 3`, map[string]any{"quantity": float64(5)}, true},
		{`quantity > 3`, map[string]any{"quantity": int64(2)}, false},
		{`quantity >= 3 AND quantity <= 5`, map[string]any{"quantity": 4}, true},
		{`name = "a" OR name = "b"`, map[string]any{"name": "b"}, true},
		{`active = true`, map[string]any{"active": true}, true},
		{`active = true`, map[string]any{"active": false}, false},
		// Absent fields never match.
		{`name = "widget"`, map[string]any{"quantity": 1}, false},
	}

	for _, tc := range cases {
		sel, err := Parse(tc.filter, assetFields)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.filter, err)
		}
		got, err := sel.Match(tc.doc)
		if err != nil {
			t.Fatalf("match %q: %v", tc.filter, err)
		}
		if got != tc.want {
			t.Fatalf("match %q on %v = %v, want %v", tc.filter, tc.doc, got, tc.want)
		}
	}
}

func TestStringReturnsRawFilter(t *testing.T) {
	t.Parallel()

	raw := `owner = "OrgA"`
	sel, err := Parse(raw, assetFields)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sel.String() != raw {
		t.Fatalf("raw = %q, want %q", sel.String(), raw)
	}

	var nilSel *Selector
	if nilSel.String() != "" {
		t.Fatal("nil selector should stringify to empty")
	}
}
