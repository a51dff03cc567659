// Package repository exposes the CRUD surface of the routing engine.
//
// Every operation runs inside one logical invocation: the planner splits the
// instance, adapters write each scope, the mirror router duplicates mirrored
// records, the sequence replicator syncs counters into every touched
// collection, and the audit recorder appends a trail entry. The engine
// issues writes sequentially; on hosts without multi-key transactional
// atomicity an aborted invocation may leave earlier writes visible, which
// such deployments must treat as best-effort.
package repository

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/segledger/segledger/internal/audit"
	"github.com/segledger/segledger/internal/id"
	"github.com/segledger/segledger/internal/identity"
	"github.com/segledger/segledger/internal/ledger"
	"github.com/segledger/segledger/internal/mirror"
	"github.com/segledger/segledger/internal/pagination"
	apperrors "github.com/segledger/segledger/internal/platform/errors"
	"github.com/segledger/segledger/internal/schema"
	"github.com/segledger/segledger/internal/segregation"
	"github.com/segledger/segledger/internal/selector"
	"github.com/segledger/segledger/internal/sequence"
	"github.com/segledger/segledger/internal/statestore"
)

// Repository orchestrates segregated reads and writes for registered tables.
type Repository struct {
	store     statestore.Store
	registry  *schema.Registry
	sequences *sequence.Replicator
	mirrors   *mirror.Router
	pager     pagination.Strategy
	tracer    trace.Tracer
}

// New creates a repository over the store and schema registry. The audit
// table is registered if the caller has not registered it already.
func New(store statestore.Store, registry *schema.Registry) (*Repository, error) {
	if err := registry.Register(audit.TableSchema()); err != nil && !apperrors.IsConflict(err) {
		return nil, err
	}
	return &Repository{
		store:     store,
		registry:  registry,
		sequences: sequence.New(store),
		mirrors:   mirror.New(store),
		pager:     pagination.NewForStore(store),
		tracer:    otel.Tracer("segledger/repository"),
	}, nil
}

// CallOption adjusts one repository call.
type CallOption func(*callOptions)

type callOptions struct {
	participants []string
}

// WithParticipants supplies the org set consulted by shared-collection
// resolvers.
func WithParticipants(orgs ...string) CallOption {
	return func(o *callOptions) {
		o.participants = orgs
	}
}

func applyOptions(opts []CallOption) callOptions {
	var options callOptions
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Page is one page of merged records.
type Page struct {
	Items []schema.Instance
	// Bookmark resumes the listing after this page. Empty when Done.
	Bookmark string
	// Done reports that no further pages remain.
	Done bool
}

// Trail is one page of a record's audit history, newest first.
type Trail struct {
	Entries  []*audit.Entry
	Bookmark string
	Done     bool
}

func (r *Repository) resolveCtx(caller identity.Caller, inst schema.Instance, options callOptions) schema.ResolveContext {
	return schema.ResolveContext{
		Instance:     inst,
		CallerOrg:    caller.Org,
		Participants: options.participants,
	}
}

// transactionID returns the invocation's transaction id, minting one when the
// host did not supply it.
func transactionID(ctx context.Context) (string, error) {
	if tx, ok := identity.TransactionFromContext(ctx); ok {
		return tx, nil
	}
	tx, err := id.NewID()
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "mint transaction id", err)
	}
	return tx, nil
}

// clean strips the table marker and owner bookkeeping attrs before an
// instance is handed back to callers.
func clean(inst schema.Instance) schema.Instance {
	out := make(schema.Instance, len(inst))
	for name, value := range inst {
		if name == schema.TableAttr || schema.IsOwnerAttr(name) {
			continue
		}
		out[name] = value
	}
	return out
}

func sortedNames(fragments map[string]schema.Instance) []string {
	names := make([]string, 0, len(fragments))
	for name := range fragments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runHooks(table *schema.Table, rc schema.ResolveContext, op schema.Operation, before, after schema.Instance) error {
	for _, hook := range table.Hooks {
		if err := hook(rc, op, before, after); err != nil {
			return err
		}
	}
	return nil
}

func rejectImmutable(table *schema.Table, op schema.Operation) error {
	if table.Immutable {
		return apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("table %q is immutable and rejects %s", table.Name, op),
			map[string]string{"table": table.Name})
	}
	return nil
}

// Create stores a new logical record. A missing primary key is assigned
// from the table's sequence counter.
func (r *Repository) Create(ctx context.Context, tableName string, inst schema.Instance, opts ...CallOption) (schema.Instance, error) {
	ctx, span := r.tracer.Start(ctx, "repository.create")
	defer span.End()

	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	table, err := r.registry.Lookup(tableName)
	if err != nil {
		return nil, err
	}
	if err := table.ValidateInstance(inst); err != nil {
		return nil, err
	}

	acc := ledger.NewAccumulator()
	tx, err := transactionID(ctx)
	if err != nil {
		return nil, err
	}
	return r.create(ctx, caller, table, inst, applyOptions(opts), acc, tx)
}

func (r *Repository) create(ctx context.Context, caller identity.Caller, table *schema.Table, inst schema.Instance, options callOptions, acc *ledger.Accumulator, tx string) (schema.Instance, error) {
	work := inst.Clone()
	rc := r.resolveCtx(caller, work, options)
	if err := runHooks(table, rc, schema.OpCreate, nil, work); err != nil {
		return nil, err
	}

	// The counter advances on every create, whether or not it supplies the
	// primary key.
	seqValue, err := r.sequences.NextValue(ctx, acc, sequence.ID(table.Name))
	if err != nil {
		return nil, err
	}
	if _, ok := table.PrimaryKey(work); !ok {
		work[table.Key] = strconv.FormatInt(seqValue, 10)
	}
	pk, _ := table.PrimaryKey(work)

	for _, f := range table.Fields {
		if !f.Owned {
			continue
		}
		// The creating org is recorded by the engine; any caller-supplied
		// owner attr is discarded.
		if _, present := work[f.Name]; present {
			work[schema.OwnerAttr(f.Name)] = caller.Org
		} else {
			delete(work, schema.OwnerAttr(f.Name))
		}
	}

	plan, err := segregation.BuildPlan(table, r.resolveCtx(caller, work, options))
	if err != nil {
		return nil, err
	}
	payload, err := plan.Segregate(work)
	if err != nil {
		return nil, err
	}

	world := ledger.New(r.store, statestore.WorldState, acc)
	if err := world.Create(ctx, table.Name, []string{pk}, payload.Model); err != nil {
		return nil, err
	}
	for _, name := range sortedNames(payload.Transient) {
		adapter := ledger.New(r.store, statestore.Collection(name), acc)
		if err := adapter.Create(ctx, table.Name, []string{pk}, payload.Transient[name]); err != nil {
			return nil, err
		}
	}
	if err := r.writeMirrors(ctx, acc, plan, table, pk, work); err != nil {
		return nil, err
	}
	if err := r.replicateTouched(ctx, acc, sequence.ID(table.Name), seqValue); err != nil {
		return nil, err
	}
	if err := r.recordAudit(ctx, caller, table, pk, tx, schema.OpCreate, nil, work, acc); err != nil {
		return nil, err
	}
	return clean(work), nil
}

func (r *Repository) writeMirrors(ctx context.Context, acc *ledger.Accumulator, plan *segregation.Plan, table *schema.Table, pk string, work schema.Instance) error {
	if len(plan.Mirrors) == 0 {
		return nil
	}
	full := work.Clone()
	full[schema.TableAttr] = table.Name
	return r.mirrors.Write(ctx, acc, plan.Mirrors, table.Name, []string{pk}, full)
}

// replicateTouched copies the counter value into every collection the
// invocation has written so far, so all of them agree with the world state.
func (r *Repository) replicateTouched(ctx context.Context, acc *ledger.Accumulator, sequenceID string, value int64) error {
	collections := acc.Collections()
	if len(collections) == 0 {
		return nil
	}
	return r.sequences.Replicate(ctx, acc, sequenceID, value, collections)
}

// Read fetches one logical record. Callers matching a mirror predicate are
// served the mirror copy; everyone else gets the stitched fragment merge,
// with fragments the caller cannot see simply absent.
func (r *Repository) Read(ctx context.Context, tableName, pk string, opts ...CallOption) (schema.Instance, error) {
	ctx, span := r.tracer.Start(ctx, "repository.read")
	defer span.End()

	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	table, err := r.registry.Lookup(tableName)
	if err != nil {
		return nil, err
	}
	options := applyOptions(opts)

	acc := ledger.NewAccumulator()
	world := ledger.New(r.store, statestore.WorldState, acc)
	public, err := world.Read(ctx, table.Name, []string{pk})
	if err != nil {
		return nil, err
	}

	plan, err := segregation.BuildPlan(table, r.resolveCtx(caller, public, options))
	if err != nil {
		return nil, err
	}
	if name, ok := mirror.Route(plan.Mirrors, caller.Org); ok {
		adapter := ledger.New(r.store, statestore.Collection(name), acc)
		full, err := adapter.Read(ctx, table.Name, []string{pk})
		if err == nil {
			return clean(full), nil
		}
		if !apperrors.IsNotFound(err) {
			return nil, err
		}
		// No mirror copy yet; fall back to the stitched merge.
	}

	fragments, err := r.readFragments(ctx, plan, table, pk)
	if err != nil {
		return nil, err
	}
	return clean(segregation.Merge(public, fragments)), nil
}

// readFragments fetches the record's fragment from every planned collection.
// An absent fragment is skipped: either no field value routed there or the
// caller's peer is outside the collection.
func (r *Repository) readFragments(ctx context.Context, plan *segregation.Plan, table *schema.Table, pk string) (map[string]schema.Instance, error) {
	acc := ledger.NewAccumulator()
	fragments := make(map[string]schema.Instance, len(plan.Collections))
	for name := range plan.Collections {
		adapter := ledger.New(r.store, statestore.Collection(name), acc)
		frag, err := adapter.Read(ctx, table.Name, []string{pk})
		if apperrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		fragments[name] = frag
	}
	return fragments, nil
}

// readMerged fetches the authoritative stitched record, never the mirror.
func (r *Repository) readMerged(ctx context.Context, caller identity.Caller, table *schema.Table, pk string, options callOptions) (schema.Instance, error) {
	world := ledger.New(r.store, statestore.WorldState, ledger.NewAccumulator())
	public, err := world.Read(ctx, table.Name, []string{pk})
	if err != nil {
		return nil, err
	}
	plan, err := segregation.BuildPlan(table, r.resolveCtx(caller, public, options))
	if err != nil {
		return nil, err
	}
	fragments, err := r.readFragments(ctx, plan, table, pk)
	if err != nil {
		return nil, err
	}
	return segregation.Merge(public, fragments), nil
}

// Update replaces a logical record with the given instance.
func (r *Repository) Update(ctx context.Context, tableName string, inst schema.Instance, opts ...CallOption) (schema.Instance, error) {
	ctx, span := r.tracer.Start(ctx, "repository.update")
	defer span.End()

	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	table, err := r.registry.Lookup(tableName)
	if err != nil {
		return nil, err
	}
	if err := rejectImmutable(table, schema.OpUpdate); err != nil {
		return nil, err
	}
	if err := table.ValidateInstance(inst); err != nil {
		return nil, err
	}

	acc := ledger.NewAccumulator()
	tx, err := transactionID(ctx)
	if err != nil {
		return nil, err
	}
	return r.update(ctx, caller, table, inst, applyOptions(opts), acc, tx)
}

func (r *Repository) update(ctx context.Context, caller identity.Caller, table *schema.Table, inst schema.Instance, options callOptions, acc *ledger.Accumulator, tx string) (schema.Instance, error) {
	pk, ok := table.PrimaryKey(inst)
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("update of table %q requires a primary key", table.Name),
			map[string]string{"table": table.Name})
	}

	before, err := r.readMerged(ctx, caller, table, pk, options)
	if err != nil {
		return nil, err
	}

	work := inst.Clone()
	if err := enforceOwnership(table, caller, before, work); err != nil {
		return nil, err
	}

	rc := r.resolveCtx(caller, work, options)
	if err := runHooks(table, rc, schema.OpUpdate, before, work); err != nil {
		return nil, err
	}

	plan, err := segregation.BuildPlan(table, rc)
	if err != nil {
		return nil, err
	}
	payload, err := plan.Segregate(work)
	if err != nil {
		return nil, err
	}

	world := ledger.New(r.store, statestore.WorldState, acc)
	if err := world.Put(ctx, table.Name, []string{pk}, payload.Model); err != nil {
		return nil, err
	}
	for _, name := range sortedNames(payload.Transient) {
		adapter := ledger.New(r.store, statestore.Collection(name), acc)
		if err := adapter.Put(ctx, table.Name, []string{pk}, payload.Transient[name]); err != nil {
			return nil, err
		}
	}
	if err := r.writeMirrors(ctx, acc, plan, table, pk, work); err != nil {
		return nil, err
	}

	value, err := r.sequences.Read(ctx, statestore.WorldState, sequence.ID(table.Name))
	if err != nil {
		return nil, err
	}
	if value > 0 {
		if err := r.replicateTouched(ctx, acc, sequence.ID(table.Name), value); err != nil {
			return nil, err
		}
	}
	if err := r.recordAudit(ctx, caller, table, pk, tx, schema.OpUpdate, before, work, acc); err != nil {
		return nil, err
	}
	return clean(work), nil
}

// enforceOwnership rejects changes to an owned field by any org other than
// the one recorded at creation, and carries the recorded owner forward.
func enforceOwnership(table *schema.Table, caller identity.Caller, before, work schema.Instance) error {
	for _, f := range table.Fields {
		if !f.Owned {
			continue
		}
		ownerAttr := schema.OwnerAttr(f.Name)
		owner, hasOwner := before[ownerAttr].(string)

		oldVal, hadOld := before[f.Name]
		newVal, hasNew := work[f.Name]
		changed := hadOld != hasNew || (hasNew && !reflect.DeepEqual(oldVal, newVal))
		if changed && hasOwner && owner != caller.Org {
			return apperrors.WithMetadata(apperrors.CodeUnauthorized,
				fmt.Sprintf("field %q of table %q is owned by another org", f.Name, table.Name),
				map[string]string{"table": table.Name, "field": f.Name, "owner": owner})
		}

		switch {
		case hasOwner:
			work[ownerAttr] = owner
		case hasNew:
			work[ownerAttr] = caller.Org
		}
	}
	return nil
}

// Delete removes a logical record from the world state and every collection
// its plan touches. Collection and mirror copies that are already absent do
// not fail the delete.
func (r *Repository) Delete(ctx context.Context, tableName, pk string, opts ...CallOption) error {
	ctx, span := r.tracer.Start(ctx, "repository.delete")
	defer span.End()

	caller, err := identity.Require(ctx)
	if err != nil {
		return err
	}
	table, err := r.registry.Lookup(tableName)
	if err != nil {
		return err
	}
	if err := rejectImmutable(table, schema.OpDelete); err != nil {
		return err
	}

	acc := ledger.NewAccumulator()
	tx, err := transactionID(ctx)
	if err != nil {
		return err
	}
	return r.delete(ctx, caller, table, pk, applyOptions(opts), acc, tx)
}

func (r *Repository) delete(ctx context.Context, caller identity.Caller, table *schema.Table, pk string, options callOptions, acc *ledger.Accumulator, tx string) error {
	before, err := r.readMerged(ctx, caller, table, pk, options)
	if err != nil {
		return err
	}

	rc := r.resolveCtx(caller, before, options)
	if err := runHooks(table, rc, schema.OpDelete, before, nil); err != nil {
		return err
	}

	plan, err := segregation.BuildPlan(table, rc)
	if err != nil {
		return err
	}

	world := ledger.New(r.store, statestore.WorldState, acc)
	if err := world.Delete(ctx, table.Name, []string{pk}); err != nil {
		return err
	}
	names := make([]string, 0, len(plan.Collections))
	for name := range plan.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		adapter := ledger.New(r.store, statestore.Collection(name), acc)
		err := adapter.Delete(ctx, table.Name, []string{pk})
		if err != nil && !apperrors.IsNotFound(err) {
			return err
		}
	}
	if err := r.mirrors.Delete(ctx, acc, plan.Mirrors, table.Name, []string{pk}); err != nil {
		return err
	}
	return r.recordAudit(ctx, caller, table, pk, tx, schema.OpDelete, before, nil, acc)
}

// CreateAll creates a batch of records within one invocation. The first
// failing item aborts the whole call.
func (r *Repository) CreateAll(ctx context.Context, tableName string, insts []schema.Instance, opts ...CallOption) ([]schema.Instance, error) {
	ctx, span := r.tracer.Start(ctx, "repository.create_all")
	defer span.End()

	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	table, err := r.registry.Lookup(tableName)
	if err != nil {
		return nil, err
	}
	for _, inst := range insts {
		if err := table.ValidateInstance(inst); err != nil {
			return nil, err
		}
	}

	options := applyOptions(opts)
	acc := ledger.NewAccumulator()
	tx, err := transactionID(ctx)
	if err != nil {
		return nil, err
	}
	stored := make([]schema.Instance, 0, len(insts))
	for _, inst := range insts {
		out, err := r.create(ctx, caller, table, inst, options, acc, tx)
		if err != nil {
			return nil, err
		}
		stored = append(stored, out)
	}
	return stored, nil
}

// ReadAll fetches a batch of records by primary key.
func (r *Repository) ReadAll(ctx context.Context, tableName string, pks []string, opts ...CallOption) ([]schema.Instance, error) {
	out := make([]schema.Instance, 0, len(pks))
	for _, pk := range pks {
		inst, err := r.Read(ctx, tableName, pk, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// UpdateAll updates a batch of records within one invocation. The first
// failing item aborts the whole call.
func (r *Repository) UpdateAll(ctx context.Context, tableName string, insts []schema.Instance, opts ...CallOption) ([]schema.Instance, error) {
	ctx, span := r.tracer.Start(ctx, "repository.update_all")
	defer span.End()

	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	table, err := r.registry.Lookup(tableName)
	if err != nil {
		return nil, err
	}
	if err := rejectImmutable(table, schema.OpUpdate); err != nil {
		return nil, err
	}
	for _, inst := range insts {
		if err := table.ValidateInstance(inst); err != nil {
			return nil, err
		}
	}

	options := applyOptions(opts)
	acc := ledger.NewAccumulator()
	tx, err := transactionID(ctx)
	if err != nil {
		return nil, err
	}
	stored := make([]schema.Instance, 0, len(insts))
	for _, inst := range insts {
		out, err := r.update(ctx, caller, table, inst, options, acc, tx)
		if err != nil {
			return nil, err
		}
		stored = append(stored, out)
	}
	return stored, nil
}

// DeleteAll deletes a batch of records within one invocation. The first
// failing item aborts the whole call.
func (r *Repository) DeleteAll(ctx context.Context, tableName string, pks []string, opts ...CallOption) error {
	ctx, span := r.tracer.Start(ctx, "repository.delete_all")
	defer span.End()

	caller, err := identity.Require(ctx)
	if err != nil {
		return err
	}
	table, err := r.registry.Lookup(tableName)
	if err != nil {
		return err
	}
	if err := rejectImmutable(table, schema.OpDelete); err != nil {
		return err
	}

	options := applyOptions(opts)
	acc := ledger.NewAccumulator()
	tx, err := transactionID(ctx)
	if err != nil {
		return err
	}
	for _, pk := range pks {
		if err := r.delete(ctx, caller, table, pk, options, acc, tx); err != nil {
			return err
		}
	}
	return nil
}

// Page lists matching records one page at a time. The filter uses AIP-160
// syntax over the table's declared fields and applies to the public
// fragment; results are stitched merges.
func (r *Repository) Page(ctx context.Context, tableName, filter string, pageSize int, token string, opts ...CallOption) (Page, error) {
	ctx, span := r.tracer.Start(ctx, "repository.page")
	defer span.End()

	caller, err := identity.Require(ctx)
	if err != nil {
		return Page{}, err
	}
	table, err := r.registry.Lookup(tableName)
	if err != nil {
		return Page{}, err
	}
	sel, err := selector.Parse(filter, table.SelectorFields())
	if err != nil {
		return Page{}, apperrors.Wrap(apperrors.CodeValidation, "parse filter", err)
	}

	options := applyOptions(opts)
	result, err := r.pager.Page(ctx, statestore.WorldState, statestore.Query{Table: table.Name, Selector: sel}, pageSize, token)
	if err != nil {
		return Page{}, err
	}

	items := make([]schema.Instance, 0, len(result.Docs))
	for _, doc := range result.Docs {
		pk, ok := table.PrimaryKey(doc)
		if !ok {
			return Page{}, apperrors.WithMetadata(apperrors.CodeInternal,
				fmt.Sprintf("stored fragment of table %q has no primary key", table.Name),
				map[string]string{"table": table.Name})
		}
		plan, err := segregation.BuildPlan(table, r.resolveCtx(caller, doc, options))
		if err != nil {
			return Page{}, err
		}
		fragments, err := r.readFragments(ctx, plan, table, pk)
		if err != nil {
			return Page{}, err
		}
		items = append(items, clean(segregation.Merge(doc, fragments)))
	}
	return Page{Items: items, Bookmark: result.Bookmark, Done: result.Done}, nil
}

// Find returns every matching record by walking pages until the listing is
// done.
func (r *Repository) Find(ctx context.Context, tableName, filter string, opts ...CallOption) ([]schema.Instance, error) {
	const batch = 100

	var out []schema.Instance
	token := ""
	for {
		page, err := r.Page(ctx, tableName, filter, batch, token, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if page.Done {
			return out, nil
		}
		token = page.Bookmark
	}
}

// auditCounterID names the per-record counter ordering a record's trail.
func auditCounterID(model, pk string) string {
	return "audit_" + model + "_" + pk
}

// reverseOrdinal renders an ordinal so ascending key order is newest first.
func reverseOrdinal(ordinal int64) string {
	return fmt.Sprintf("%019d", math.MaxInt64-ordinal)
}

// recordAudit appends the trail entry for one mutation of an audited table.
// A failed audit write aborts the operation.
func (r *Repository) recordAudit(ctx context.Context, caller identity.Caller, table *schema.Table, pk, tx string, op schema.Operation, before, after schema.Instance, acc *ledger.Accumulator) error {
	if !table.Audited {
		return nil
	}
	ordinal, err := r.sequences.NextValue(ctx, acc, auditCounterID(table.Name, pk))
	if err != nil {
		return err
	}
	entry, err := audit.NewEntry(audit.Change{
		UserID:      caller.ID,
		UserOrg:     caller.Org,
		Model:       table.Name,
		Record:      pk,
		Transaction: tx,
		Action:      op,
		Ordinal:     ordinal,
		Before:      before,
		After:       after,
	})
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	inst, err := entry.Instance()
	if err != nil {
		return err
	}
	auditTable, err := r.registry.Lookup(audit.Table)
	if err != nil {
		return err
	}
	plan, err := segregation.BuildPlan(auditTable, r.resolveCtx(caller, inst, callOptions{}))
	if err != nil {
		return err
	}
	payload, err := plan.Segregate(inst)
	if err != nil {
		return err
	}

	// Keyed under (model, record, reverse ordinal) so a record's trail is a
	// contiguous, newest-first key range.
	attrs := []string{entry.Model, entry.Record, reverseOrdinal(ordinal), entry.ID}
	world := ledger.New(r.store, statestore.WorldState, acc)
	return world.Create(ctx, audit.Table, attrs, payload.Model)
}

// AuditTrail pages one record's audit history, newest first.
func (r *Repository) AuditTrail(ctx context.Context, model, pk string, pageSize int, token string) (Trail, error) {
	ctx, span := r.tracer.Start(ctx, "repository.audit_trail")
	defer span.End()

	if _, err := identity.Require(ctx); err != nil {
		return Trail{}, err
	}
	auditTable, err := r.registry.Lookup(audit.Table)
	if err != nil {
		return Trail{}, err
	}
	filter := fmt.Sprintf("model = %q AND record = %q", model, pk)
	sel, err := selector.Parse(filter, auditTable.SelectorFields())
	if err != nil {
		return Trail{}, apperrors.Wrap(apperrors.CodeInternal, "build audit filter", err)
	}

	result, err := r.pager.Page(ctx, statestore.WorldState, statestore.Query{Table: audit.Table, Selector: sel}, pageSize, token)
	if err != nil {
		return Trail{}, err
	}
	entries := make([]*audit.Entry, 0, len(result.Docs))
	for _, doc := range result.Docs {
		entry, err := audit.EntryFromInstance(doc)
		if err != nil {
			return Trail{}, err
		}
		entries = append(entries, entry)
	}
	return Trail{Entries: entries, Bookmark: result.Bookmark, Done: result.Done}, nil
}
