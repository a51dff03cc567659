// Package segregation splits one logical record into a public fragment and
// per-collection private fragments, and merges fragments back on read.
package segregation

import (
	"fmt"
	"sort"

	apperrors "github.com/segledger/segledger/internal/platform/errors"
	"github.com/segledger/segledger/internal/schema"
)

// CollectionSpec lists the fields routed into one collection and whether the
// collection is private to an org or shared among an org set.
type CollectionSpec struct {
	Fields []string
	Kind   schema.Visibility
}

// MirrorTarget is one mirror collection a record additionally replicates
// into, with the predicate that routes reads to it.
type MirrorTarget struct {
	Field      string
	Collection string
	Predicate  func(orgID string) bool
}

// Plan is the resolved routing of a table's fields for one operation.
// Resolvers run exactly once per operation; the plan holds their results.
type Plan struct {
	Table       *schema.Table
	Public      []string
	Collections map[string]CollectionSpec
	Mirrors     []MirrorTarget
}

// Payload is the ephemeral result of splitting one instance. It is produced
// before every write and never persisted itself.
type Payload struct {
	// Model carries the public fields only.
	Model schema.Instance
	// Transient maps collection names to their private fragments. It is
	// empty for models with no private or shared fields.
	Transient map[string]schema.Instance
}

// BuildPlan resolves each field's concrete collection for one operation.
func BuildPlan(table *schema.Table, rc schema.ResolveContext) (*Plan, error) {
	plan := &Plan{
		Table:       table,
		Collections: make(map[string]CollectionSpec),
	}

	for _, f := range table.Fields {
		switch f.Visibility {
		case schema.Public:
			plan.Public = append(plan.Public, f.Name)

		case schema.Mirror:
			// Mirror fields route publicly; the mirror copy is extra.
			plan.Public = append(plan.Public, f.Name)
			plan.Mirrors = append(plan.Mirrors, MirrorTarget{
				Field:      f.Name,
				Collection: f.Mirror.Collection,
				Predicate:  f.Mirror.Predicate,
			})

		case schema.Private, schema.Shared:
			name, err := f.Collection(rc)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.CodeInvalidCollection,
					fmt.Sprintf("resolve collection for field %q", f.Name), err)
			}
			if name == "" {
				return nil, apperrors.WithMetadata(apperrors.CodeInvalidCollection,
					fmt.Sprintf("resolver for field %q produced no collection name", f.Name),
					map[string]string{"table": table.Name, "field": f.Name})
			}
			spec := plan.Collections[name]
			spec.Fields = append(spec.Fields, f.Name)
			spec.Kind = f.Visibility
			plan.Collections[name] = spec
		}
	}
	return plan, nil
}

// copyField moves a field value plus its owner bookkeeping attribute.
func copyField(dst, src schema.Instance, field string) {
	if value, ok := src[field]; ok {
		dst[field] = value
	}
	if owner, ok := src[schema.OwnerAttr(field)]; ok {
		dst[schema.OwnerAttr(field)] = owner
	}
}

// Segregate splits an instance into the public fragment and one fragment per
// resolved collection. Every fragment carries the table marker and primary
// key so it identifies its logical record independently.
func (p *Plan) Segregate(inst schema.Instance) (Payload, error) {
	pk, ok := p.Table.PrimaryKey(inst)
	if !ok {
		return Payload{}, apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("instance of table %q has no primary key", p.Table.Name),
			map[string]string{"table": p.Table.Name})
	}

	model := schema.Instance{schema.TableAttr: p.Table.Name, p.Table.Key: pk}
	for _, field := range p.Public {
		copyField(model, inst, field)
	}

	payload := Payload{Model: model, Transient: make(map[string]schema.Instance)}
	for name, spec := range p.Collections {
		frag := schema.Instance{schema.TableAttr: p.Table.Name, p.Table.Key: pk}
		present := false
		for _, field := range spec.Fields {
			if _, ok := inst[field]; ok {
				present = true
			}
			copyField(frag, inst, field)
		}
		if !present {
			// No value routed here; skip the write entirely.
			continue
		}
		payload.Transient[name] = frag
	}
	return payload, nil
}

// Merge overlays collection fragments onto the public fragment, visiting
// collections in lexicographic name order. Fields are partitioned across
// fragments, so no key ever collides; the fixed order makes merges
// deterministic regardless of map iteration.
func Merge(public schema.Instance, fragments map[string]schema.Instance) schema.Instance {
	merged := public.Clone()
	if merged == nil {
		merged = schema.Instance{}
	}

	names := make([]string, 0, len(fragments))
	for name := range fragments {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for field, value := range fragments[name] {
			if field == schema.TableAttr {
				continue
			}
			merged[field] = value
		}
	}
	return merged
}
