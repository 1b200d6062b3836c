package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

func TestEntityStore_SoftDeletedTables(t *testing.T) {
	db := &fakeDB{}
	products := NewChangeLog(db).Products
	since := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := products.FindMany(context.Background(), interfaces.Filter{BranchID: "branch-a", UpdatedAfter: since})
	require.NoError(t, err)

	c, ok := db.find("FROM products")
	require.True(t, ok)
	assert.Contains(t, c.sql, "WHERE branch_id = $1 AND updated_at > $2 AND deleted_at IS NULL ORDER BY updated_at, id")
	assert.Equal(t, []any{"branch-a", since}, c.args)

	n, err := products.Delete(context.Background(), interfaces.Filter{ID: "coffee"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	c, ok = db.find("UPDATE products")
	require.True(t, ok, "soft delete stamps instead of deleting")
	assert.Equal(t, "UPDATE products SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL", c.sql)
	_, hard := db.find("DELETE FROM products")
	assert.False(t, hard)
}

func TestEntityStore_HardDeletedTables(t *testing.T) {
	db := &fakeDB{}
	log := NewChangeLog(db)

	_, err := log.Orders.Delete(context.Background(), interfaces.Filter{ID: "order-1", BranchID: "branch-a"})
	require.NoError(t, err)
	c, ok := db.find("DELETE FROM orders")
	require.True(t, ok)
	assert.Equal(t, "DELETE FROM orders WHERE id = $1 AND branch_id = $2", c.sql)

	_, err = log.SeatingTables.FindMany(context.Background(), interfaces.Filter{})
	require.NoError(t, err)
	c, ok = db.find("FROM seating_tables")
	require.True(t, ok)
	assert.NotContains(t, c.sql, "WHERE")
	assert.NotContains(t, c.sql, "deleted_at")
}

func TestEntityStore_FindManyScansRows(t *testing.T) {
	updated := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	db := &fakeDB{
		rows: func(string, []any) ([][]any, error) {
			return [][]any{
				{"cat-1", "branch-a", "Drinks", nil, 1, updated, updated, nil},
				{"cat-2", "branch-a", "Food", nil, 2, updated, updated, nil},
			}, nil
		},
	}

	cats, err := NewChangeLog(db).Categories.FindMany(context.Background(), interfaces.Filter{BranchID: "branch-a"})
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Food", cats[1].Name)
	assert.Nil(t, cats[0].ColorHex)
}

func TestEntityStore_FindOneNotFound(t *testing.T) {
	db := &fakeDB{}

	_, err := NewChangeLog(db).Users.FindOne(context.Background(), interfaces.Filter{ID: "ghost"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestClassify(t *testing.T) {
	other := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"foreign key", &pgconn.PgError{Code: "23503", ConstraintName: "orders_user_id_fkey"}, domain.ErrMissingReference},
		{"unique", &pgconn.PgError{Code: "23505"}, domain.ErrConstraint},
		{"not null", &pgconn.PgError{Code: "23502"}, domain.ErrConstraint},
		{"check", &pgconn.PgError{Code: "23514"}, domain.ErrConstraint},
		{"other", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(classify(tt.err), tt.want))
		})
	}
	assert.NoError(t, classify(nil))
	assert.Contains(t, classify(tests[1].err).Error(), "orders_user_id_fkey")
}

func newOrder() domain.Order {
	return domain.Order{
		ID:            "order-1",
		ReceiptNumber: "R-1",
		UserID:        "user-1",
		TotalAmount:   decimal.RequireFromString("5.00"),
		Status:        domain.OrderStatusOpen,
	}
}

func TestChangeWriter_UpsertOrderEnqueuesDeduction(t *testing.T) {
	db := &fakeDB{
		row: func(sql string, _ []any) ([]any, error) {
			if strings.Contains(sql, "INSERT INTO orders") {
				return []any{true}, nil
			}
			return nil, pgx.ErrNoRows
		},
	}

	var created bool
	err := NewChangeStore(db).WithinTx(context.Background(), func(ctx context.Context, w interfaces.ChangeWriter) error {
		var err error
		created, err = w.UpsertOrder(ctx, "branch-a", newOrder())
		return err
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"BEGIN", "SAVEPOINT", "RELEASE", "COMMIT"}, db.events)

	c, ok := db.find("INSERT INTO deduction_outbox")
	require.True(t, ok)
	assert.Equal(t, "branch-a", c.args[1])
	assert.Equal(t, "order-1", c.args[2])
	assert.Contains(t, c.sql, "ON CONFLICT (order_id) DO NOTHING")
}

func TestChangeWriter_UpdatedOrderDoesNotEnqueue(t *testing.T) {
	db := &fakeDB{
		row: func(string, []any) ([]any, error) { return []any{false}, nil },
	}

	err := NewChangeStore(db).WithinTx(context.Background(), func(ctx context.Context, w interfaces.ChangeWriter) error {
		created, err := w.UpsertOrder(ctx, "branch-a", newOrder())
		assert.False(t, created)
		return err
	})
	require.NoError(t, err)
	_, ok := db.find("deduction_outbox")
	assert.False(t, ok)
}

func TestChangeWriter_RejectedRecordRollsBackToSavepoint(t *testing.T) {
	db := &fakeDB{
		exec: func(sql string, _ []any) (int64, error) {
			if strings.Contains(sql, "INSERT INTO shifts") {
				return 0, &pgconn.PgError{Code: "23503", ConstraintName: "shifts_user_id_fkey"}
			}
			return 1, nil
		},
		row: func(string, []any) ([]any, error) { return nil, pgx.ErrNoRows },
	}

	err := NewChangeStore(db).WithinTx(context.Background(), func(ctx context.Context, w interfaces.ChangeWriter) error {
		err := w.UpsertShift(ctx, "branch-a", domain.Shift{ID: "shift-1", UserID: "ghost", OpeningTime: time.Now()})
		assert.True(t, errors.Is(err, domain.ErrMissingReference))
		assert.False(t, errors.Is(err, domain.ErrSyncFailed))

		_, err = w.UpsertOrder(ctx, "branch-b", newOrder())
		assert.True(t, errors.Is(err, domain.ErrBranchMismatch), "conflict filtered by branch returns no row")

		inserted, err := w.InsertAuditLog(ctx, "branch-a", domain.AuditLog{ID: "audit-1", UserID: "user-1", Action: "LOGIN"})
		assert.True(t, inserted)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"BEGIN",
		"SAVEPOINT", "ROLLBACK TO",
		"SAVEPOINT", "ROLLBACK TO",
		"SAVEPOINT", "RELEASE",
		"COMMIT",
	}, db.events)
}

func TestChangeWriter_ShiftOfAnotherBranch(t *testing.T) {
	db := &fakeDB{
		exec: func(string, []any) (int64, error) { return 0, nil },
	}

	err := NewChangeStore(db).WithinTx(context.Background(), func(ctx context.Context, w interfaces.ChangeWriter) error {
		return w.UpsertShift(ctx, "branch-b", domain.Shift{ID: "shift-1", UserID: "user-1", OpeningTime: time.Now()})
	})
	assert.True(t, errors.Is(err, domain.ErrBranchMismatch))
	assert.Equal(t, "ROLLBACK", db.events[len(db.events)-1])
}

func TestChangeWriter_SavepointFailureIsSystemic(t *testing.T) {
	db := &fakeDB{failSavepoint: errors.New("conn busy")}

	err := NewChangeStore(db).WithinTx(context.Background(), func(ctx context.Context, w interfaces.ChangeWriter) error {
		_, err := w.InsertPayment(ctx, "branch-a", domain.Payment{ID: "pay-1", OrderID: "order-1", Method: "CASH"})
		return err
	})
	assert.True(t, errors.Is(err, domain.ErrSyncFailed))
}

func TestChangeWriter_DuplicatePaymentIsNotInserted(t *testing.T) {
	db := &fakeDB{
		exec: func(string, []any) (int64, error) { return 0, nil },
	}

	err := NewChangeStore(db).WithinTx(context.Background(), func(ctx context.Context, w interfaces.ChangeWriter) error {
		inserted, err := w.InsertPayment(ctx, "branch-a", domain.Payment{ID: "pay-1", OrderID: "order-1", Method: "CASH"})
		assert.False(t, inserted)
		return err
	})
	require.NoError(t, err)
}

func TestOutboxRepository_MarkFailed(t *testing.T) {
	db := &fakeDB{}
	repo := NewOutboxRepository(db)
	retryAt := time.Date(2026, 3, 1, 9, 0, 30, 0, time.UTC)
	first := domain.DeductionTask{ID: "task-1", Attempts: 1}
	second := domain.DeductionTask{ID: "task-2", Attempts: 3}

	require.NoError(t, repo.MarkFailed(context.Background(), first, "order not found", &retryAt))
	require.NoError(t, repo.MarkFailed(context.Background(), second, "order not found", nil))

	require.Len(t, db.calls, 2)
	assert.Equal(t, domain.DeductionStatusPending, db.calls[0].args[1])
	assert.Equal(t, domain.DeductionStatusFailed, db.calls[1].args[1])

	c := db.calls[1]
	assert.Contains(t, c.sql, "WHERE id = $1 AND status = $5 AND attempts = $6")
	assert.Equal(t, domain.DeductionStatusProcessing, c.args[4])
	assert.Equal(t, 3, c.args[5])
}

func TestOutboxRepository_MarkFailedRequiresCurrentClaim(t *testing.T) {
	db := &fakeDB{exec: func(string, []any) (int64, error) { return 0, nil }}

	err := NewOutboxRepository(db).MarkFailed(context.Background(),
		domain.DeductionTask{ID: "task-1", Attempts: 1}, "recipe lookup timed out", nil)
	assert.True(t, errors.Is(err, domain.ErrTaskNotClaimed))
}

func TestOutboxRepository_ClaimDueUsesSkipLocked(t *testing.T) {
	next := time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC)
	db := &fakeDB{
		rows: func(string, []any) ([][]any, error) {
			return [][]any{{
				"task-1", "branch-a", "order-1", domain.DeductionStatusProcessing, 1, nil, next, next, nil,
			}}, nil
		},
	}

	tasks, err := NewOutboxRepository(db).ClaimDue(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 1, tasks[0].Attempts)

	c := db.calls[0]
	assert.Contains(t, c.sql, "FOR UPDATE SKIP LOCKED")
	assert.Contains(t, c.sql, "attempts = attempts + 1")
	assert.Equal(t, 10, c.args[0])
	assert.Equal(t, 60.0, c.args[1])
}

func TestOutboxRepository_Requeue(t *testing.T) {
	notFailed := &fakeDB{
		exec: func(string, []any) (int64, error) { return 0, nil },
		row: func(string, []any) ([]any, error) {
			return []any{domain.DeductionStatusDone}, nil
		},
	}
	err := NewOutboxRepository(notFailed).Requeue(context.Background(), "branch-a", "task-1")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	missing := &fakeDB{
		exec: func(string, []any) (int64, error) { return 0, nil },
	}
	err = NewOutboxRepository(missing).Requeue(context.Background(), "branch-a", "task-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	ok := &fakeDB{}
	require.NoError(t, NewOutboxRepository(ok).Requeue(context.Background(), "branch-a", "task-1"))
	assert.Len(t, ok.calls, 1)
}

func TestInventoryRepository_ApplyDeductionsRequiresClaim(t *testing.T) {
	db := &fakeDB{
		exec: func(sql string, _ []any) (int64, error) {
			if strings.Contains(sql, "UPDATE deduction_outbox") {
				return 0, nil
			}
			return 1, nil
		},
	}

	err := NewInventoryRepository(db).ApplyDeductions(context.Background(), "task-1", []domain.StockDeduction{
		{InventoryItemID: "beans", Amount: decimal.NewFromInt(18)},
	})
	assert.True(t, errors.Is(err, domain.ErrTaskNotClaimed))
	_, touched := db.find("UPDATE inventory_items")
	assert.False(t, touched)
	assert.Equal(t, []string{"BEGIN", "ROLLBACK"}, db.events)
}

func TestInventoryRepository_ApplyDeductions(t *testing.T) {
	db := &fakeDB{}

	err := NewInventoryRepository(db).ApplyDeductions(context.Background(), "task-1", []domain.StockDeduction{
		{InventoryItemID: "beans", Amount: decimal.NewFromInt(18)},
		{InventoryItemID: "milk", Amount: decimal.RequireFromString("0.2")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"BEGIN", "COMMIT"}, db.events)

	require.Len(t, db.calls, 3)
	assert.Equal(t, "milk", db.calls[2].args[1])
}

func TestSyncLogRepository_CountByOutcome(t *testing.T) {
	db := &fakeDB{
		rows: func(string, []any) ([][]any, error) {
			return [][]any{
				{domain.SyncDirectionPush, domain.SyncStatusSuccess, 2},
				{domain.SyncDirectionPush, domain.SyncStatusFailed, 1},
			}, nil
		},
	}

	counts, err := NewSyncLogRepository(db).CountByOutcome(context.Background(), "branch-a")
	require.NoError(t, err)
	summary := domain.Summarize(counts)
	assert.Equal(t, 3, summary.Push.Total)
	assert.Equal(t, 66.67, summary.Push.SuccessRate)
	assert.Contains(t, db.calls[0].sql, "GROUP BY direction, status")
}

func TestStoreClock_HoldsBackForOpenWriters(t *testing.T) {
	oldestWriter := time.Date(2026, 3, 1, 8, 59, 58, 0, time.FixedZone("ALMT", 5*3600))
	db := &fakeDB{
		row: func(string, []any) ([]any, error) { return []any{oldestWriter}, nil },
	}

	now, err := NewChangeLog(db).Clock.Now(context.Background())
	require.NoError(t, err)
	assert.Equal(t, oldestWriter.UTC(), now)
	assert.Equal(t, time.UTC, now.Location())

	c, ok := db.find("pg_stat_activity")
	require.True(t, ok)
	assert.Contains(t, c.sql, "LEAST(clock_timestamp(), MIN(xact_start))")
	assert.Contains(t, c.sql, "backend_xid IS NOT NULL")
}

func TestStoreClock_Error(t *testing.T) {
	db := &fakeDB{
		row: func(string, []any) ([]any, error) { return nil, errors.New("connection reset") },
	}

	_, err := NewChangeLog(db).Clock.Now(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
