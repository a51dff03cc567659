// Package audit records structural change history for audited tables.
//
// Every successful create, update, or delete of an audited record persists
// one entry holding the field-level diffs of the change. Entry ids are
// derived deterministically from the transaction, action, and diffs, so
// every peer endorsing the same transaction computes the same entry and the
// host ledger reaches consensus on the audit write itself.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	apperrors "github.com/segledger/segledger/internal/platform/errors"
	"github.com/segledger/segledger/internal/schema"
	"github.com/segledger/segledger/internal/selector"
)

// Table is the registry name of the audit entry table.
const Table = "audit"

// Diff is one field-level change. Old and New hold the canonical JSON of
// the field's value, or "" when the field was absent on that side.
type Diff struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Entry is one persisted audit record.
type Entry struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	UserOrg     string `json:"user_org"`
	Model       string `json:"model"`
	Record      string `json:"record"`
	Transaction string `json:"transaction"`
	Action      string `json:"action"`
	// Ordinal orders a record's entries; it comes from a per-record counter.
	Ordinal int64  `json:"ordinal"`
	Diffs   []Diff `json:"diffs"`
}

func canonical(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "encode audited value", err)
	}
	return string(raw), nil
}

// Compare computes the field-level diffs between two versions of a record.
// A nil map stands for the record not existing on that side, so creates
// diff against nothing and deletes diff to nothing. Reserved attributes are
// skipped. Diffs come back sorted by field name.
func Compare(before, after schema.Instance) ([]Diff, error) {
	names := make(map[string]bool, len(before)+len(after))
	for name := range before {
		names[name] = true
	}
	for name := range after {
		names[name] = true
	}

	var diffs []Diff
	for name := range names {
		if schema.IsReservedAttr(name) {
			continue
		}
		oldVal, hadOld := before[name]
		newVal, hadNew := after[name]
		if hadOld && hadNew && reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		diff := Diff{Field: name}
		if hadOld {
			enc, err := canonical(oldVal)
			if err != nil {
				return nil, err
			}
			diff.Old = enc
		}
		if hadNew {
			enc, err := canonical(newVal)
			if err != nil {
				return nil, err
			}
			diff.New = enc
		}
		diffs = append(diffs, diff)
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Field < diffs[j].Field })
	return diffs, nil
}

// EntryID derives the deterministic id of an audit entry. The id is a pure
// function of the changed record, action, actor, transaction, and diffs, so
// every peer endorsing the same change computes the same id. The record key
// is part of the input because a bulk mutation can produce identical diffs
// for distinct records within one transaction.
func EntryID(model, record, action, userID, transaction string, diffs []Diff) (string, error) {
	enc, err := json.Marshal(diffs)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "encode audit diffs", err)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%s:%s:%s", model, record, action, userID, transaction, enc)))
	return hex.EncodeToString(sum[:]), nil
}

// Change describes one audited mutation.
type Change struct {
	UserID      string
	UserOrg     string
	Model       string
	Record      string
	Transaction string
	Action      schema.Operation
	Ordinal     int64
	Before      schema.Instance
	After       schema.Instance
}

// NewEntry builds the audit entry for one change. It returns nil when the
// versions do not differ.
func NewEntry(ch Change) (*Entry, error) {
	diffs, err := Compare(ch.Before, ch.After)
	if err != nil {
		return nil, err
	}
	if len(diffs) == 0 {
		return nil, nil
	}
	id, err := EntryID(ch.Model, ch.Record, string(ch.Action), ch.UserID, ch.Transaction, diffs)
	if err != nil {
		return nil, err
	}
	return &Entry{
		ID:          id,
		UserID:      ch.UserID,
		UserOrg:     ch.UserOrg,
		Model:       ch.Model,
		Record:      ch.Record,
		Transaction: ch.Transaction,
		Action:      string(ch.Action),
		Ordinal:     ch.Ordinal,
		Diffs:       diffs,
	}, nil
}

// Instance renders the entry as a registry instance for persistence.
func (e *Entry) Instance() (schema.Instance, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "encode audit entry", err)
	}
	var inst schema.Instance
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "decode audit entry", err)
	}
	return inst, nil
}

// EntryFromInstance decodes a persisted audit record.
func EntryFromInstance(inst schema.Instance) (*Entry, error) {
	raw, err := json.Marshal(inst)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "encode audit record", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "decode audit record", err)
	}
	return &entry, nil
}

// TableSchema returns the registry definition of the audit table. The table
// is all-public, immutable, and never audited itself.
func TableSchema() schema.Table {
	public := func(name string) schema.Field {
		return schema.Field{Name: name, Type: selector.TypeString, Visibility: schema.Public}
	}
	return schema.Table{
		Name: Table,
		Key:  "id",
		Fields: []schema.Field{
			public("id"),
			public("user_id"),
			public("user_org"),
			public("model"),
			public("record"),
			public("transaction"),
			public("action"),
			{Name: "ordinal", Type: selector.TypeInt, Visibility: schema.Public},
			public("diffs"),
		},
		Immutable: true,
	}
}
