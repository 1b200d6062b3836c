package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

type changeStore struct {
	db DB
}

func NewChangeStore(db DB) interfaces.ChangeStore {
	return &changeStore{db: db}
}

func (s *changeStore) WithinTx(ctx context.Context, fn func(ctx context.Context, w interfaces.ChangeWriter) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &changeWriter{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type changeWriter struct {
	tx Tx
}

// savepoint runs fn inside a SAVEPOINT so a rejected record does not abort
// the surrounding transaction. Failures of the savepoint itself are systemic.
func (w *changeWriter) savepoint(ctx context.Context, fn func(tx Tx) error) error {
	sp, err := w.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to open savepoint: %v", domain.ErrSyncFailed, err)
	}

	if err := fn(sp); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w: failed to roll back savepoint: %v", domain.ErrSyncFailed, rbErr)
		}
		return classify(err)
	}

	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("%w: failed to release savepoint: %v", domain.ErrSyncFailed, err)
	}
	return nil
}

func (w *changeWriter) UpsertShift(ctx context.Context, branchID string, s domain.Shift) error {
	query := `
		INSERT INTO shifts (id, branch_id, user_id, opening_time, closing_time,
		                    starting_cash, expected_cash, actual_cash, notes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, clock_timestamp())
		ON CONFLICT (id) DO UPDATE SET
			closing_time = EXCLUDED.closing_time,
			expected_cash = EXCLUDED.expected_cash,
			actual_cash = EXCLUDED.actual_cash,
			notes = EXCLUDED.notes,
			updated_at = clock_timestamp()
		WHERE shifts.branch_id = EXCLUDED.branch_id
	`
	return w.savepoint(ctx, func(tx Tx) error {
		tag, err := tx.Exec(ctx, query,
			s.ID, branchID, s.UserID, s.OpeningTime, s.ClosingTime,
			s.StartingCash, s.ExpectedCash, s.ActualCash, s.Notes,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrBranchMismatch
		}
		return nil
	})
}

func (w *changeWriter) FindOrder(ctx context.Context, id string) (*domain.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE id = $1"

	order, err := scanOrder(w.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err)
	}
	return &order, nil
}

func (w *changeWriter) UpsertOrder(ctx context.Context, branchID string, o domain.Order) (bool, error) {
	query := `
		INSERT INTO orders (id, branch_id, receipt_number, user_id, table_id, shift_id,
		                    total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9::timestamptz, clock_timestamp()), clock_timestamp())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total_amount = EXCLUDED.total_amount,
			updated_at = clock_timestamp()
		WHERE orders.branch_id = EXCLUDED.branch_id
		RETURNING (xmax = 0) AS inserted
	`
	outboxQuery := `
		INSERT INTO deduction_outbox (id, branch_id, order_id, status, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (order_id) DO NOTHING
	`

	var created bool
	err := w.savepoint(ctx, func(tx Tx) error {
		err := tx.QueryRow(ctx, query,
			o.ID, branchID, o.ReceiptNumber, o.UserID, o.TableID, o.ShiftID,
			o.TotalAmount, o.Status, nullTime(o.CreatedAt),
		).Scan(&created)
		if err != nil {
			if errors.Is(classify(err), domain.ErrNotFound) {
				return domain.ErrBranchMismatch
			}
			return err
		}
		if !created {
			return nil
		}

		_, err = tx.Exec(ctx, outboxQuery, uuid.NewString(), branchID, o.ID, domain.DeductionStatusPending)
		if err != nil {
			return fmt.Errorf("failed to enqueue deduction: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (w *changeWriter) UpsertOrderItem(ctx context.Context, branchID string, item domain.OrderItem) error {
	query := `
		INSERT INTO order_items (id, order_id, product_id, quantity, price_at_time_of_order, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			notes = EXCLUDED.notes
		WHERE order_items.order_id IN (SELECT id FROM orders WHERE branch_id = $7)
	`
	return w.savepoint(ctx, func(tx Tx) error {
		tag, err := tx.Exec(ctx, query,
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.PriceAtTimeOfOrder, item.Notes, branchID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrBranchMismatch
		}
		return nil
	})
}

// InsertPayment expects the caller to have checked the order's branch.
func (w *changeWriter) InsertPayment(ctx context.Context, _ string, p domain.Payment) (bool, error) {
	query := `
		INSERT INTO payments (id, order_id, shift_id, method, amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, now()))
		ON CONFLICT (id) DO NOTHING
	`
	var inserted bool
	err := w.savepoint(ctx, func(tx Tx) error {
		tag, err := tx.Exec(ctx, query,
			p.ID, p.OrderID, p.ShiftID, p.Method, p.Amount, p.Reference, nullTime(p.CreatedAt),
		)
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected() == 1
		return nil
	})
	return inserted, err
}

func (w *changeWriter) InsertAuditLog(ctx context.Context, branchID string, a domain.AuditLog) (bool, error) {
	query := `
		INSERT INTO audit_logs (id, branch_id, user_id, action, order_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, now()))
		ON CONFLICT (id) DO NOTHING
	`
	var metadata any
	if len(a.Metadata) > 0 {
		metadata = string(a.Metadata)
	}

	var inserted bool
	err := w.savepoint(ctx, func(tx Tx) error {
		tag, err := tx.Exec(ctx, query,
			a.ID, branchID, a.UserID, a.Action, a.OrderID, metadata, nullTime(a.CreatedAt),
		)
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected() == 1
		return nil
	})
	return inserted, err
}

// nullTime lets the column default apply when the terminal sent no timestamp.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
