// Package pagination walks query results in fixed-size pages resumable via
// opaque tokens.
//
// Backends with native cursor support are paged by key-set continuation in
// the store itself; the remaining backends are paged by scanning the full
// ordered result and slicing it. Both strategies yield the same pages for
// the same data, and both report the end of the result set through an
// explicit Done flag rather than a short page.
package pagination

import (
	"context"
	"encoding/json"
	"sort"

	apperrors "github.com/segledger/segledger/internal/platform/errors"
	"github.com/segledger/segledger/internal/schema"
	"github.com/segledger/segledger/internal/statestore"
)

// Result is one page of decoded documents.
type Result struct {
	Docs []schema.Instance
	// Bookmark resumes the query after this page. Empty when Done.
	Bookmark string
	// Done reports that no further pages remain.
	Done bool
}

// Strategy pages a query. Implementations are stateless; all continuation
// state travels in the token.
type Strategy interface {
	Page(ctx context.Context, scope statestore.Scope, q statestore.Query, pageSize int, token string) (Result, error)
}

// NewForStore picks the paging strategy the backend supports.
func NewForStore(store statestore.Store) Strategy {
	if pq, ok := store.(statestore.PagedQuerier); ok {
		return &Native{querier: pq}
	}
	return &Emulated{store: store}
}

func decodeDocs(records []statestore.Record) ([]schema.Instance, error) {
	docs := make([]schema.Instance, 0, len(records))
	for _, rec := range records {
		var doc schema.Instance
		if err := json.Unmarshal(rec.Value, &doc); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, "decode stored document", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func validatePageSize(pageSize int) error {
	if pageSize <= 0 {
		return apperrors.New(apperrors.CodeValidation, "page size must be positive")
	}
	return nil
}

// Native delegates continuation to the backend's own cursor.
type Native struct {
	querier statestore.PagedQuerier
}

// Page fetches one page from the backend cursor.
func (n *Native) Page(ctx context.Context, scope statestore.Scope, q statestore.Query, pageSize int, token string) (Result, error) {
	if err := validatePageSize(pageSize); err != nil {
		return Result{}, err
	}
	afterKey, err := decodeBookmark(scope, q, token)
	if err != nil {
		return Result{}, err
	}
	page, err := n.querier.QueryPage(ctx, scope, q, pageSize, afterKey)
	if err != nil {
		return Result{}, err
	}
	docs, err := decodeDocs(page.Records)
	if err != nil {
		return Result{}, err
	}
	result := Result{Docs: docs, Done: page.Done}
	if !page.Done {
		result.Bookmark = encodeBookmark(scope, q, page.Bookmark)
	}
	return result, nil
}

// Emulated pages by scanning the full ordered result and slicing it.
type Emulated struct {
	store statestore.Store
}

// Page scans the query and returns the slice after the token's position.
func (e *Emulated) Page(ctx context.Context, scope statestore.Scope, q statestore.Query, pageSize int, token string) (Result, error) {
	if err := validatePageSize(pageSize); err != nil {
		return Result{}, err
	}
	afterKey, err := decodeBookmark(scope, q, token)
	if err != nil {
		return Result{}, err
	}
	records, err := e.store.Query(ctx, scope, q)
	if err != nil {
		return Result{}, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })

	start := 0
	if afterKey != "" {
		start = sort.Search(len(records), func(i int) bool { return records[i].Key > afterKey })
	}
	end := start + pageSize
	done := end >= len(records)
	if done {
		end = len(records)
	}
	docs, err := decodeDocs(records[start:end])
	if err != nil {
		return Result{}, err
	}
	result := Result{Docs: docs, Done: done}
	if !done {
		result.Bookmark = encodeBookmark(scope, q, records[end-1].Key)
	}
	return result, nil
}
