package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/qristal-sync/internal/domain"
)

// Filter narrows an EntityStore query. Zero fields add no predicate.
type Filter struct {
	ID           string
	BranchID     string
	UpdatedAfter time.Time
}

// EntityStore reads and deletes one entity type. For soft-deletable entities
// Delete stamps deleted_at and the finders skip stamped rows.
type EntityStore[T any] interface {
	FindMany(ctx context.Context, f Filter) ([]T, error)
	FindOne(ctx context.Context, f Filter) (T, error)
	Delete(ctx context.Context, f Filter) (int64, error)
}

// StoreClock reads time on the store that stamps updated_at, so pull
// watermarks and row stamps come from the same clock.
type StoreClock interface {
	Now(ctx context.Context) (time.Time, error)
}

// ChangeLog is the set of branch-scoped entities a terminal pulls.
type ChangeLog struct {
	Clock StoreClock

	Categories    EntityStore[domain.Category]
	Products      EntityStore[domain.Product]
	Users         EntityStore[domain.User]
	SeatingTables EntityStore[domain.SeatingTable]
	Orders        EntityStore[domain.Order]
	Shifts        EntityStore[domain.Shift]
}

// ChangeStore opens the atomic unit a pushed batch is applied in.
type ChangeStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, w ChangeWriter) error) error
}

// ChangeWriter applies single records inside a ChangeStore transaction. Each
// call is isolated: a failing record leaves the transaction usable.
type ChangeWriter interface {
	UpsertShift(ctx context.Context, branchID string, s domain.Shift) error
	// FindOrder looks the order up in any branch; callers check ownership.
	FindOrder(ctx context.Context, id string) (*domain.Order, error)
	// UpsertOrder reports created=true only when this call inserted the row, in
	// which case a deduction task was enqueued alongside it.
	UpsertOrder(ctx context.Context, branchID string, o domain.Order) (created bool, err error)
	UpsertOrderItem(ctx context.Context, branchID string, item domain.OrderItem) error
	InsertPayment(ctx context.Context, branchID string, p domain.Payment) (inserted bool, err error)
	InsertAuditLog(ctx context.Context, branchID string, a domain.AuditLog) (inserted bool, err error)
}

type SyncLogRepository interface {
	Create(ctx context.Context, entry *domain.SyncLogEntry) error
	ListRecent(ctx context.Context, branchID string, limit int) ([]domain.SyncLogEntry, error)
	CountByOutcome(ctx context.Context, branchID string) ([]domain.SyncOutcomeCount, error)
}

type InventoryRepository interface {
	FindOrderWithItems(ctx context.Context, orderID string) (*domain.Order, []domain.OrderItem, error)
	RecipeFor(ctx context.Context, productID string) ([]domain.RecipeIngredient, error)
	// ApplyDeductions decrements stock and completes the claimed task in one transaction.
	ApplyDeductions(ctx context.Context, taskID string, deductions []domain.StockDeduction) error
	// Snapshot lists the branch inventory, lowest stock first.
	Snapshot(ctx context.Context, branchID string) ([]domain.InventoryItem, error)
}

type OutboxRepository interface {
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]domain.DeductionTask, error)
	// MarkFailed puts a claimed task back to pending until retryAt, or fails it
	// for good when retryAt is nil. It returns domain.ErrTaskNotClaimed when the
	// claim identified by attempts has since been taken over or completed.
	MarkFailed(ctx context.Context, task domain.DeductionTask, reason string, retryAt *time.Time) error
	ListFailed(ctx context.Context, branchID string, limit int) ([]domain.DeductionTask, error)
	Requeue(ctx context.Context, branchID, taskID string) error
}
