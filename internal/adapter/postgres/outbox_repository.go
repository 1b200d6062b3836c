package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

const taskColumns = "id, branch_id, order_id, status, attempts, last_error, next_attempt_at, created_at, completed_at"

type outboxRepository struct {
	db DB
}

func NewOutboxRepository(db DB) interfaces.OutboxRepository {
	return &outboxRepository{db: db}
}

// ClaimDue leases due tasks to the caller. SKIP LOCKED lets several workers
// poll the same table; a lease that runs out makes the task due again.
func (r *outboxRepository) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]domain.DeductionTask, error) {
	query := `
		UPDATE deduction_outbox
		SET status = $3, attempts = attempts + 1, next_attempt_at = now() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM deduction_outbox
			WHERE status IN ($4, $3) AND next_attempt_at <= now()
			ORDER BY next_attempt_at, created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns

	rows, err := r.db.Query(ctx, query, limit, lease.Seconds(),
		domain.DeductionStatusProcessing, domain.DeductionStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim deduction tasks: %w", err)
	}
	return collectTasks(rows)
}

// MarkFailed only touches the row while the caller's claim is still the
// current one: processing, with the attempt count the claim returned.
func (r *outboxRepository) MarkFailed(ctx context.Context, task domain.DeductionTask, reason string, retryAt *time.Time) error {
	status := domain.DeductionStatusFailed
	if retryAt != nil {
		status = domain.DeductionStatusPending
	}

	query := `
		UPDATE deduction_outbox
		SET status = $2, last_error = $3, next_attempt_at = COALESCE($4, next_attempt_at)
		WHERE id = $1 AND status = $5 AND attempts = $6
	`
	tag, err := r.db.Exec(ctx, query, task.ID, status, reason, retryAt,
		domain.DeductionStatusProcessing, task.Attempts)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s attempt %d: %w", task.ID, task.Attempts, domain.ErrTaskNotClaimed)
	}
	return nil
}

func (r *outboxRepository) ListFailed(ctx context.Context, branchID string, limit int) ([]domain.DeductionTask, error) {
	query := "SELECT " + taskColumns + `
		FROM deduction_outbox
		WHERE branch_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, branchID, domain.DeductionStatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed tasks: %w", err)
	}
	return collectTasks(rows)
}

func (r *outboxRepository) Requeue(ctx context.Context, branchID, taskID string) error {
	query := `
		UPDATE deduction_outbox
		SET status = $3, attempts = 0, last_error = NULL, next_attempt_at = now()
		WHERE id = $1 AND branch_id = $2 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, taskID, branchID, domain.DeductionStatusPending, domain.DeductionStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to requeue task: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status domain.DeductionStatus
	err = r.db.QueryRow(ctx,
		"SELECT status FROM deduction_outbox WHERE id = $1 AND branch_id = $2", taskID, branchID,
	).Scan(&status)
	if err != nil {
		if errors.Is(classify(err), domain.ErrNotFound) {
			return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to look up task: %w", err)
	}
	return fmt.Errorf("%w: task %s is %s, only failed tasks can be retried",
		domain.ErrInvalidArgument, taskID, status)
}

func collectTasks(rows Rows) ([]domain.DeductionTask, error) {
	defer rows.Close()

	tasks := []domain.DeductionTask{}
	for rows.Next() {
		var t domain.DeductionTask
		err := rows.Scan(&t.ID, &t.BranchID, &t.OrderID, &t.Status, &t.Attempts, &t.LastError,
			&t.NextAttemptAt, &t.CreatedAt, &t.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deduction task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read deduction tasks: %w", err)
	}
	return tasks, nil
}
