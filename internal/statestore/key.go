package statestore

import (
	"fmt"
	"strings"
)

// keySep separates composite key components. A leading separator keeps
// composite keys out of the plain-key namespace and supports prefix scans.
const keySep = "\x00"

// CompositeKey builds the key for a record of the given table from its
// attribute values: NUL + table + NUL + attr1 + NUL + attr2 + NUL + ...
func CompositeKey(table string, attrs ...string) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("table is required")
	}
	if strings.Contains(table, keySep) {
		return "", fmt.Errorf("table %q contains a reserved separator", table)
	}
	var b strings.Builder
	b.WriteString(keySep)
	b.WriteString(table)
	b.WriteString(keySep)
	for _, attr := range attrs {
		if strings.Contains(attr, keySep) {
			return "", fmt.Errorf("attribute %q contains a reserved separator", attr)
		}
		b.WriteString(attr)
		b.WriteString(keySep)
	}
	return b.String(), nil
}

// TablePrefix returns the scan prefix covering every key of a table.
func TablePrefix(table string) string {
	return keySep + table + keySep
}

// SplitCompositeKey decomposes a composite key into table and attributes.
func SplitCompositeKey(key string) (table string, attrs []string, err error) {
	if !strings.HasPrefix(key, keySep) {
		return "", nil, fmt.Errorf("not a composite key: %q", key)
	}
	parts := strings.Split(strings.TrimPrefix(key, keySep), keySep)
	if len(parts) < 2 {
		return "", nil, fmt.Errorf("malformed composite key: %q", key)
	}
	// The trailing separator produces one empty final element.
	return parts[0], parts[1 : len(parts)-1], nil
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, for use as the exclusive upper bound of a range scan.
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	// All 0xff: no upper bound.
	return ""
}

// MatchesPrefix reports whether key falls inside the table prefix range.
func MatchesPrefix(key, prefix string) bool {
	return strings.HasPrefix(key, prefix)
}
