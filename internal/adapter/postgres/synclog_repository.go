package postgres

import (
	"context"
	"fmt"

	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

type syncLogRepository struct {
	db DB
}

func NewSyncLogRepository(db DB) interfaces.SyncLogRepository {
	return &syncLogRepository{db: db}
}

func (r *syncLogRepository) Create(ctx context.Context, entry *domain.SyncLogEntry) error {
	query := `
		INSERT INTO sync_logs (id, branch_id, direction, status, records_pulled, records_pushed,
		                       error_message, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.BranchID, entry.Direction, entry.Status, entry.RecordsPulled, entry.RecordsPushed,
		entry.ErrorMessage, entry.StartedAt, entry.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync log: %w", classify(err))
	}
	return nil
}

func (r *syncLogRepository) ListRecent(ctx context.Context, branchID string, limit int) ([]domain.SyncLogEntry, error) {
	query := `
		SELECT id, branch_id, direction, status, records_pulled, records_pushed,
		       error_message, started_at, finished_at
		FROM sync_logs
		WHERE branch_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, branchID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	entries := []domain.SyncLogEntry{}
	for rows.Next() {
		var e domain.SyncLogEntry
		err := rows.Scan(&e.ID, &e.BranchID, &e.Direction, &e.Status, &e.RecordsPulled, &e.RecordsPushed,
			&e.ErrorMessage, &e.StartedAt, &e.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sync logs: %w", err)
	}
	return entries, nil
}

// CountByOutcome aggregates over every entry of the branch, not only the
// listed page.
func (r *syncLogRepository) CountByOutcome(ctx context.Context, branchID string) ([]domain.SyncOutcomeCount, error) {
	query := `
		SELECT direction, status, COUNT(*)
		FROM sync_logs
		WHERE branch_id = $1
		GROUP BY direction, status
	`
	rows, err := r.db.Query(ctx, query, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sync logs: %w", err)
	}
	defer rows.Close()

	var counts []domain.SyncOutcomeCount
	for rows.Next() {
		var c domain.SyncOutcomeCount
		if err := rows.Scan(&c.Direction, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan sync log count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sync log counts: %w", err)
	}
	return counts, nil
}
