// Package schema holds the static, per-table description of how record
// fields are segregated across ledger scopes.
//
// Tables are registered once at startup. Each field carries exactly one
// visibility: public, private to one collection, shared among an org set, or
// mirrored. Collection names for private and shared fields come from a
// resolver, which may be a constant or a function of the record and caller.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/segledger/segledger/internal/platform/errors"
	"github.com/segledger/segledger/internal/selector"
)

// TableAttr is the reserved document attribute carrying the table marker, so
// every stored fragment identifies its logical table independently.
const TableAttr = "_table"

// ownerSuffix marks the sibling attribute recording an owned field's org.
const ownerSuffix = "$org"

// OwnerAttr returns the sibling attribute name recording the org that owns
// the given field.
func OwnerAttr(field string) string {
	return field + ownerSuffix
}

// IsReservedAttr reports whether the attribute name is reserved for engine
// bookkeeping and unavailable to table fields.
func IsReservedAttr(name string) bool {
	return strings.HasPrefix(name, "_") || strings.Contains(name, "$")
}

// IsOwnerAttr reports whether the attribute is owner bookkeeping.
func IsOwnerAttr(name string) bool {
	return strings.HasSuffix(name, ownerSuffix)
}

// Instance is one logical record: named field values plus reserved
// bookkeeping attributes.
type Instance map[string]any

// Clone returns a shallow copy of the instance.
func (in Instance) Clone() Instance {
	if in == nil {
		return nil
	}
	out := make(Instance, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Visibility classifies where a field's value is stored and who can read it.
type Visibility int

const (
	// Public fields replicate in the world state.
	Public Visibility = iota
	// Private fields live in exactly one named collection.
	Private
	// Shared fields live in a collection replicated to an org set.
	Shared
	// Mirror fields replicate publicly and additionally store a full record
	// copy in a mirror collection for audience-specific reads.
	Mirror
)

// String renders the visibility for logs and errors.
func (v Visibility) String() string {
	switch v {
	case Public:
		return "public"
	case Private:
		return "private"
	case Shared:
		return "shared"
	case Mirror:
		return "mirror"
	default:
		return fmt.Sprintf("visibility(%d)", int(v))
	}
}

// ResolveContext carries the inputs a collection resolver may consult.
type ResolveContext struct {
	Instance     Instance
	CallerOrg    string
	Participants []string
}

// Resolver produces the concrete collection name for a private or shared
// field. An empty result is an invalid collection.
type Resolver func(rc ResolveContext) (string, error)

// StaticCollection returns a resolver that always yields the given name.
func StaticCollection(name string) Resolver {
	return func(ResolveContext) (string, error) {
		return name, nil
	}
}

// SharedAmong returns a resolver deriving a collection name from the
// participant org set: prefix followed by the sorted org ids.
func SharedAmong(prefix string) Resolver {
	return func(rc ResolveContext) (string, error) {
		if len(rc.Participants) == 0 {
			return "", fmt.Errorf("no participant orgs for shared collection %q", prefix)
		}
		orgs := make([]string, len(rc.Participants))
		copy(orgs, rc.Participants)
		sort.Strings(orgs)
		return prefix + "_" + strings.Join(orgs, "_"), nil
	}
}

// MirrorSpec attaches a mirror collection and its read predicate to a field.
// The predicate governs read routing only; mirror writes always happen in
// addition to the field's base routing.
type MirrorSpec struct {
	Collection string
	Predicate  func(orgID string) bool
}

// Field describes one record field and its visibility.
type Field struct {
	Name       string
	Type       selector.Type
	Visibility Visibility
	// Collection resolves the collection for Private and Shared fields.
	Collection Resolver
	// Mirror configures Mirror fields.
	Mirror *MirrorSpec
	// Owned records the creating org and restricts later writes to it.
	Owned bool
}

// Operation identifies a repository mutation for hooks and audit entries.
type Operation string

const (
	// OpCreate is a record creation.
	OpCreate Operation = "CREATE"
	// OpUpdate is a record update.
	OpUpdate Operation = "UPDATE"
	// OpDelete is a record deletion.
	OpDelete Operation = "DELETE"
)

// Hook observes a mutation before any write is issued. Returning an error
// aborts the operation. Hooks run in registration order.
type Hook func(rc ResolveContext, op Operation, before, after Instance) error

// Table describes one logical record type.
type Table struct {
	// Name is the table marker used in composite keys and fragments.
	Name string
	// Key names the primary key field, which must be public.
	Key string
	// Fields lists every record field with its visibility.
	Fields []Field
	// Audited enables audit trail entries for mutations of this table.
	Audited bool
	// Immutable rejects update and delete at the schema level.
	Immutable bool
	// Hooks run before each mutation, in order.
	Hooks []Hook
}

// Field looks up a field schema by name.
func (t *Table) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// SelectorFields declares the table's filterable fields.
func (t *Table) SelectorFields() []selector.Field {
	fields := make([]selector.Field, 0, len(t.Fields))
	for _, f := range t.Fields {
		fields = append(fields, selector.Field{Name: f.Name, Type: f.Type})
	}
	return fields
}

// validate checks the table definition at registration time.
func (t *Table) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is required")
	}
	if strings.TrimSpace(t.Key) == "" {
		return fmt.Errorf("table %q: primary key field is required", t.Name)
	}

	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("table %q: field name is required", t.Name)
		}
		if IsReservedAttr(f.Name) {
			return fmt.Errorf("table %q: field %q uses a reserved attribute name", t.Name, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("table %q: duplicate field %q", t.Name, f.Name)
		}
		seen[f.Name] = true

		switch f.Visibility {
		case Public:
			if f.Collection != nil || f.Mirror != nil {
				return fmt.Errorf("table %q: public field %q must not configure a collection", t.Name, f.Name)
			}
		case Private, Shared:
			if f.Collection == nil {
				return fmt.Errorf("table %q: %s field %q requires a collection resolver", t.Name, f.Visibility, f.Name)
			}
			if f.Mirror != nil {
				return fmt.Errorf("table %q: %s field %q must not configure a mirror", t.Name, f.Visibility, f.Name)
			}
		case Mirror:
			if f.Mirror == nil || f.Mirror.Collection == "" {
				return fmt.Errorf("table %q: mirror field %q requires a mirror collection", t.Name, f.Name)
			}
			if f.Collection != nil {
				return fmt.Errorf("table %q: mirror field %q must not configure a resolver", t.Name, f.Name)
			}
		default:
			return fmt.Errorf("table %q: field %q has unknown visibility %d", t.Name, f.Name, f.Visibility)
		}
	}

	keyField, ok := t.Field(t.Key)
	if !ok {
		return fmt.Errorf("table %q: primary key field %q is not declared", t.Name, t.Key)
	}
	if keyField.Visibility != Public {
		return fmt.Errorf("table %q: primary key field %q must be public", t.Name, t.Key)
	}
	return nil
}

// PrimaryKey extracts the instance's primary key value.
func (t *Table) PrimaryKey(inst Instance) (string, bool) {
	raw, ok := inst[t.Key]
	if !ok {
		return "", false
	}
	pk, ok := raw.(string)
	if !ok || pk == "" {
		return "", false
	}
	return pk, true
}

// ValidateInstance checks an instance against the table schema before any
// write is issued.
func (t *Table) ValidateInstance(inst Instance) error {
	if inst == nil {
		return apperrors.New(apperrors.CodeValidation, "instance is required")
	}
	for name := range inst {
		if name == TableAttr {
			continue
		}
		if IsOwnerAttr(name) {
			// Owner attrs are engine bookkeeping; accept them only where the
			// engine itself would write one.
			f, ok := t.Field(strings.TrimSuffix(name, ownerSuffix))
			if !ok || !f.Owned {
				return apperrors.WithMetadata(apperrors.CodeValidation,
					fmt.Sprintf("attribute %q is reserved for owned fields of table %q", name, t.Name),
					map[string]string{"table": t.Name, "field": name})
			}
			continue
		}
		if _, ok := t.Field(name); !ok {
			return apperrors.WithMetadata(apperrors.CodeValidation,
				fmt.Sprintf("field %q is not declared on table %q", name, t.Name),
				map[string]string{"table": t.Name, "field": name})
		}
	}
	if marker, ok := inst[TableAttr]; ok {
		if marker != t.Name {
			return apperrors.WithMetadata(apperrors.CodeValidation,
				fmt.Sprintf("instance table marker %v does not match table %q", marker, t.Name),
				map[string]string{"table": t.Name})
		}
	}
	if raw, ok := inst[t.Key]; ok {
		if _, isString := raw.(string); !isString {
			return apperrors.WithMetadata(apperrors.CodeValidation,
				fmt.Sprintf("primary key field %q must be a string", t.Key),
				map[string]string{"table": t.Name, "field": t.Key})
		}
	}
	return nil
}

// Registry holds the registered table schemas.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Register adds a table schema. Registering the same name twice fails.
func (r *Registry) Register(t Table) error {
	if err := t.validate(); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, "invalid table schema", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[t.Name]; exists {
		return apperrors.WithMetadata(apperrors.CodeConflict,
			fmt.Sprintf("table %q is already registered", t.Name),
			map[string]string{"table": t.Name})
	}
	copied := t
	r.tables[t.Name] = &copied
	return nil
}

// Lookup fetches a registered table schema by name.
func (r *Registry) Lookup(name string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("table %q is not registered", name),
			map[string]string{"table": name})
	}
	return t, nil
}
