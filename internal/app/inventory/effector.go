package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

// Effector turns a stored order into stock deductions through product recipes.
type Effector struct {
	repo   interfaces.InventoryRepository
	logger logger.Logger
}

func NewEffector(repo interfaces.InventoryRepository, logger logger.Logger) *Effector {
	return &Effector{repo: repo, logger: logger}
}

// DeductStockForOrder decrements stock for every recipe ingredient of the
// task's order and completes the task in the same transaction. Stock is never
// clamped, so overselling shows up as negative stock.
func (e *Effector) DeductStockForOrder(ctx context.Context, task domain.DeductionTask) error {
	_, items, err := e.repo.FindOrderWithItems(ctx, task.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}

	deductions, err := e.plan(ctx, items)
	if err != nil {
		return err
	}

	if err := e.repo.ApplyDeductions(ctx, task.ID, deductions); err != nil {
		return fmt.Errorf("failed to apply deductions: %w", err)
	}

	e.logger.Debug("stock_deducted", "Stock deducted for order", "", map[string]interface{}{
		"order_id":    task.OrderID,
		"branch_id":   task.BranchID,
		"ingredients": len(deductions),
	})
	return nil
}

// plan sums quantity × amount per inventory item. Products without a recipe
// are retail goods and deduct nothing.
func (e *Effector) plan(ctx context.Context, items []domain.OrderItem) ([]domain.StockDeduction, error) {
	var deductions []domain.StockDeduction
	index := map[string]int{}

	for _, item := range items {
		recipe, err := e.repo.RecipeFor(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to load recipe for product %s: %w", item.ProductID, err)
		}

		qty := decimal.NewFromInt(int64(item.Quantity))
		for _, ing := range recipe {
			amount := qty.Mul(ing.Amount)
			if i, ok := index[ing.InventoryItemID]; ok {
				deductions[i].Amount = deductions[i].Amount.Add(amount)
				continue
			}
			index[ing.InventoryItemID] = len(deductions)
			deductions = append(deductions, domain.StockDeduction{InventoryItemID: ing.InventoryItemID, Amount: amount})
		}
	}
	return deductions, nil
}

// Snapshot is the branch inventory, lowest stock first.
func (e *Effector) Snapshot(ctx context.Context, branchID string) ([]domain.InventoryItem, error) {
	items, err := e.repo.Snapshot(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	if items == nil {
		items = []domain.InventoryItem{}
	}
	return items, nil
}
