package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

type scanner interface {
	Scan(dest ...any) error
}

// entityStore is the explicit soft-delete wrapper: for soft-deletable tables
// every read filters out stamped rows and Delete only stamps them.
type entityStore[T any] struct {
	db         DB
	table      string
	columns    string
	softDelete bool
	scan       func(scanner) (T, error)
}

func (s *entityStore[T]) where(f interfaces.Filter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ID != "" {
		add("id = $%d", f.ID)
	}
	if f.BranchID != "" {
		add("branch_id = $%d", f.BranchID)
	}
	if !f.UpdatedAfter.IsZero() {
		add("updated_at > $%d", f.UpdatedAfter)
	}
	if s.softDelete {
		conds = append(conds, "deleted_at IS NULL")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *entityStore[T]) FindMany(ctx context.Context, f interfaces.Filter) ([]T, error) {
	where, args := s.where(f)
	query := "SELECT " + s.columns + " FROM " + s.table + where + " ORDER BY updated_at, id"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		row, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", s.table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.table, err)
	}
	return out, nil
}

func (s *entityStore[T]) FindOne(ctx context.Context, f interfaces.Filter) (T, error) {
	where, args := s.where(f)
	query := "SELECT " + s.columns + " FROM " + s.table + where + " ORDER BY updated_at, id LIMIT 1"

	row, err := s.scan(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to find %s: %w", s.table, classify(err))
	}
	return row, nil
}

func (s *entityStore[T]) Delete(ctx context.Context, f interfaces.Filter) (int64, error) {
	where, args := s.where(f)

	query := "DELETE FROM " + s.table + where
	if s.softDelete {
		query = "UPDATE " + s.table + " SET deleted_at = now(), updated_at = now()" + where
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", s.table, classify(err))
	}
	return tag.RowsAffected(), nil
}
