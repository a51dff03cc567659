// Package sqlitestore provides a SQLite-backed state store backend.
//
// Records of every scope live in one table keyed by (scope, key); documents
// are stored as JSON text so selectors compile to json_extract conditions.
// Keyset pagination over the primary key gives this backend native bookmark
// support.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/segledger/segledger/internal/statestore"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	scope TEXT NOT NULL,
	key   BLOB NOT NULL,
	doc   TEXT NOT NULL,
	PRIMARY KEY (scope, key)
);
`

// Store persists ledger state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite state store and ensures its schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Put persists a record, overwriting any existing value.
func (s *Store) Put(ctx context.Context, scope statestore.Scope, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}

	_, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO records (scope, key, doc) VALUES (?, ?, ?) ON CONFLICT (scope, key) DO UPDATE SET doc = excluded.doc",
		scope.String(), []byte(key), string(value),
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// Get fetches a record by key.
func (s *Store) Get(ctx context.Context, scope statestore.Scope, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var doc string
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT doc FROM records WHERE scope = ? AND key = ?",
		scope.String(), []byte(key),
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, statestore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return []byte(doc), nil
}

// Delete removes a record by key.
func (s *Store) Delete(ctx context.Context, scope statestore.Scope, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	res, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM records WHERE scope = ? AND key = ?",
		scope.String(), []byte(key),
	)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if affected == 0 {
		return statestore.ErrNotFound
	}
	return nil
}

// queryPlan assembles the WHERE clause and parameters for a table query.
type queryPlan struct {
	whereClause string
	params      []any
}

func buildQueryPlan(scope statestore.Scope, q statestore.Query, afterKey string) (queryPlan, error) {
	prefix := statestore.TablePrefix(q.Table)
	clauses := []string{"scope = ?", "key >= ?"}
	params := []any{scope.String(), []byte(prefix)}

	if end := statestore.PrefixEnd(prefix); end != "" {
		clauses = append(clauses, "key < ?")
		params = append(params, []byte(end))
	}
	if afterKey != "" {
		clauses = append(clauses, "key > ?")
		params = append(params, []byte(afterKey))
	}
	if q.Selector != nil {
		cond, err := q.Selector.SQL()
		if err != nil {
			return queryPlan{}, fmt.Errorf("compile selector: %w", err)
		}
		if cond.Clause != "" {
			clauses = append(clauses, cond.Clause)
			params = append(params, cond.Params...)
		}
	}
	return queryPlan{whereClause: strings.Join(clauses, " AND "), params: params}, nil
}

func (s *Store) queryRange(ctx context.Context, plan queryPlan, limit int) ([]statestore.Record, error) {
	query := fmt.Sprintf("SELECT key, doc FROM records WHERE %s ORDER BY key", plan.whereClause)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, plan.params...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []statestore.Record
	for rows.Next() {
		var key []byte
		var doc string
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, statestore.Record{Key: string(key), Value: []byte(doc)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Query returns every matching record of the table, ordered by key.
func (s *Store) Query(ctx context.Context, scope statestore.Scope, q statestore.Query) ([]statestore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	plan, err := buildQueryPlan(scope, q, "")
	if err != nil {
		return nil, err
	}
	return s.queryRange(ctx, plan, 0)
}

// QueryPage returns one page of matching records using keyset pagination.
// The bookmark is the last key of the previous page; an empty bookmark
// starts from the beginning of the table.
func (s *Store) QueryPage(ctx context.Context, scope statestore.Scope, q statestore.Query, pageSize int, bookmark string) (statestore.Page, error) {
	if err := ctx.Err(); err != nil {
		return statestore.Page{}, err
	}
	if s == nil || s.sqlDB == nil {
		return statestore.Page{}, fmt.Errorf("storage is not configured")
	}
	if pageSize <= 0 {
		return statestore.Page{}, fmt.Errorf("page size must be greater than zero")
	}

	plan, err := buildQueryPlan(scope, q, bookmark)
	if err != nil {
		return statestore.Page{}, err
	}

	// Fetch one extra row to learn whether another page remains.
	records, err := s.queryRange(ctx, plan, pageSize+1)
	if err != nil {
		return statestore.Page{}, err
	}

	page := statestore.Page{Done: len(records) <= pageSize}
	if !page.Done {
		records = records[:pageSize]
	}
	page.Records = records
	if len(records) > 0 && !page.Done {
		page.Bookmark = records[len(records)-1].Key
	}
	return page, nil
}
