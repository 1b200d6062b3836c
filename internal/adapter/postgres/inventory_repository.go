package postgres

import (
	"context"
	"fmt"

	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

type inventoryRepository struct {
	db DB
}

func NewInventoryRepository(db DB) interfaces.InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) FindOrderWithItems(ctx context.Context, orderID string) (*domain.Order, []domain.OrderItem, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID))
	if err != nil {
		return nil, nil, fmt.Errorf("order %s: %w", orderID, classify(err))
	}

	query := `
		SELECT id, order_id, product_id, quantity, price_at_time_of_order, notes
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.PriceAtTimeOfOrder, &item.Notes)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read order items: %w", err)
	}
	return &order, items, nil
}

func (r *inventoryRepository) RecipeFor(ctx context.Context, productID string) ([]domain.RecipeIngredient, error) {
	query := `
		SELECT id, product_id, inventory_item_id, amount
		FROM recipe_ingredients
		WHERE product_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipe: %w", err)
	}
	defer rows.Close()

	var ingredients []domain.RecipeIngredient
	for rows.Next() {
		var ing domain.RecipeIngredient
		if err := rows.Scan(&ing.ID, &ing.ProductID, &ing.InventoryItemID, &ing.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan recipe ingredient: %w", err)
		}
		ingredients = append(ingredients, ing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}
	return ingredients, nil
}

// ApplyDeductions completes the task first so its row lock serializes
// concurrent workers that both believe they hold the claim.
func (r *inventoryRepository) ApplyDeductions(ctx context.Context, taskID string, deductions []domain.StockDeduction) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE deduction_outbox
		SET status = $2, completed_at = now(), last_error = NULL
		WHERE id = $1 AND status = $3
	`, taskID, domain.DeductionStatusDone, domain.DeductionStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotClaimed
	}

	for _, d := range deductions {
		tag, err := tx.Exec(ctx, `
			UPDATE inventory_items
			SET current_stock = current_stock - $1, updated_at = now()
			WHERE id = $2
		`, d.Amount, d.InventoryItemID)
		if err != nil {
			return fmt.Errorf("failed to deduct %s: %w", d.InventoryItemID, classify(err))
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("inventory item %s: %w", d.InventoryItemID, domain.ErrMissingReference)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *inventoryRepository) Snapshot(ctx context.Context, branchID string) ([]domain.InventoryItem, error) {
	query := `
		SELECT id, branch_id, name, unit_of_measure, current_stock, minimum_stock, cost_per_unit, updated_at
		FROM inventory_items
		WHERE branch_id = $1
		ORDER BY current_stock ASC, name
	`
	rows, err := r.db.Query(ctx, query, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	items := []domain.InventoryItem{}
	for rows.Next() {
		var i domain.InventoryItem
		err := rows.Scan(&i.ID, &i.BranchID, &i.Name, &i.UnitOfMeasure, &i.CurrentStock,
			&i.MinimumStock, &i.CostPerUnit, &i.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return items, nil
}
