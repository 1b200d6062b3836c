package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is a raw ingredient stocked by a branch. CurrentStock may go
// negative: that is how overselling against recorded inventory shows up.
type InventoryItem struct {
	ID            string          `json:"id"`
	BranchID      string          `json:"branchId"`
	Name          string          `json:"name"`
	UnitOfMeasure string          `json:"unitOfMeasure"`
	CurrentStock  decimal.Decimal `json:"currentStock"`
	MinimumStock  decimal.Decimal `json:"minimumStock"`
	CostPerUnit   decimal.Decimal `json:"costPerUnit"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// IsLow reports whether the item is at or below its minimum stock.
func (i *InventoryItem) IsLow() bool {
	return i.CurrentStock.LessThanOrEqual(i.MinimumStock)
}

// RecipeIngredient is the amount of one inventory item consumed per unit of a product.
type RecipeIngredient struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"productId"`
	InventoryItemID string          `json:"inventoryItemId"`
	Amount          decimal.Decimal `json:"amount"`
}

type StockDeduction struct {
	InventoryItemID string
	Amount          decimal.Decimal
}

// DeductionTask is the outbox record written in the same transaction that
// first stores an order. It survives crashes between commit and deduction.
type DeductionTask struct {
	ID            string          `json:"id"`
	BranchID      string          `json:"branchId"`
	OrderID       string          `json:"orderId"`
	Status        DeductionStatus `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     *string         `json:"lastError,omitempty"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	CreatedAt     time.Time       `json:"createdAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

// NewDeductionTask creates a pending task due immediately.
func NewDeductionTask(id, branchID, orderID string, now time.Time) DeductionTask {
	return DeductionTask{
		ID:            id,
		BranchID:      branchID,
		OrderID:       orderID,
		Status:        DeductionStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}

// Exhausted reports whether the task has used up its attempts.
func (t *DeductionTask) Exhausted(maxAttempts int) bool {
	return t.Attempts >= maxAttempts
}

// RetryAt is the next due time after a failed attempt, backing off linearly.
func (t *DeductionTask) RetryAt(now time.Time, backoff time.Duration) time.Time {
	attempts := t.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return now.Add(time.Duration(attempts) * backoff)
}

// IsDue reports whether a pending task can be claimed, or a processing task's
// lease has run out.
func (t *DeductionTask) IsDue(now time.Time) bool {
	switch t.Status {
	case DeductionStatusPending, DeductionStatusProcessing:
		return !t.NextAttemptAt.After(now)
	}
	return false
}
