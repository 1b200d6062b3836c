package postgres

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
)

type call struct {
	sql  string
	args []any
}

// fakeDB records every statement and answers from the configured funcs.
// Transactions and savepoints show up in events.
type fakeDB struct {
	mu     sync.Mutex
	calls  []call
	events []string

	exec func(sql string, args []any) (int64, error)
	row  func(sql string, args []any) ([]any, error)
	rows func(sql string, args []any) ([][]any, error)

	failBegin     error
	failSavepoint error
}

func (db *fakeDB) record(sql string, args []any) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.calls = append(db.calls, call{sql: squash(sql), args: args})
}

func (db *fakeDB) event(e string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.events = append(db.events, e)
}

// find returns the first recorded statement containing fragment.
func (db *fakeDB) find(fragment string) (call, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, c := range db.calls {
		if strings.Contains(c.sql, fragment) {
			return c, true
		}
	}
	return call{}, false
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...any) (Rows, error) {
	db.record(sql, args)
	if db.rows == nil {
		return &fakeRows{}, nil
	}
	data, err := db.rows(squash(sql), args)
	if err != nil {
		return nil, err
	}
	return &fakeRows{data: data}, nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) Row {
	db.record(sql, args)
	if db.row == nil {
		return fakeRow{err: pgx.ErrNoRows}
	}
	values, err := db.row(squash(sql), args)
	return fakeRow{values: values, err: err}
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (CommandTag, error) {
	db.record(sql, args)
	if db.exec == nil {
		return fakeTag(1), nil
	}
	n, err := db.exec(squash(sql), args)
	return fakeTag(n), err
}

func (db *fakeDB) Begin(context.Context) (Tx, error) {
	if db.failBegin != nil {
		return nil, db.failBegin
	}
	db.event("BEGIN")
	return &fakeTx{db: db}, nil
}

func (db *fakeDB) Close() {}

type fakeTx struct {
	db     *fakeDB
	depth  int
	closed bool
}

func (tx *fakeTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return tx.db.Query(ctx, sql, args...)
}

func (tx *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return tx.db.QueryRow(ctx, sql, args...)
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	return tx.db.Exec(ctx, sql, args...)
}

func (tx *fakeTx) Begin(context.Context) (Tx, error) {
	if tx.db.failSavepoint != nil {
		return nil, tx.db.failSavepoint
	}
	tx.db.event("SAVEPOINT")
	return &fakeTx{db: tx.db, depth: tx.depth + 1}, nil
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.closed = true
	if tx.depth > 0 {
		tx.db.event("RELEASE")
	} else {
		tx.db.event("COMMIT")
	}
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if tx.closed {
		return nil
	}
	tx.closed = true
	if tx.depth > 0 {
		tx.db.event("ROLLBACK TO")
	} else {
		tx.db.event("ROLLBACK")
	}
	return nil
}

type fakeTag int64

func (t fakeTag) RowsAffected() int64 { return int64(t) }

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	data [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return assign(dest, r.data[r.pos-1]) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}

// assign copies values into scan targets; nil values leave the target untouched.
func assign(dest, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d targets for %d values", len(dest), len(values))
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func squash(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
