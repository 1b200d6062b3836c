package postgres

import (
	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

const (
	categoryColumns     = "id, branch_id, name, color_hex, sort_order, created_at, updated_at, deleted_at"
	productColumns      = "id, branch_id, category_id, name, price, is_available, production_area, created_at, updated_at, deleted_at"
	userColumns         = "id, branch_id, full_name, role, is_active, created_at, updated_at, deleted_at"
	seatingTableColumns = "id, branch_id, name, status, floor, x, y, created_at, updated_at"
	orderColumns        = "id, receipt_number, user_id, table_id, shift_id, total_amount, status, branch_id, created_at, updated_at"
	shiftColumns        = "id, user_id, opening_time, closing_time, starting_cash, expected_cash, actual_cash, notes, branch_id, updated_at"
)

// NewChangeLog wires one entity store per pulled table. Catalog and staff
// tables are soft-deleted; the rest are hard-deleted.
func NewChangeLog(db DB) interfaces.ChangeLog {
	return interfaces.ChangeLog{
		Clock: &storeClock{db: db},
		Categories: &entityStore[domain.Category]{
			db: db, table: "categories", columns: categoryColumns, softDelete: true, scan: scanCategory,
		},
		Products: &entityStore[domain.Product]{
			db: db, table: "products", columns: productColumns, softDelete: true, scan: scanProduct,
		},
		Users: &entityStore[domain.User]{
			db: db, table: "users", columns: userColumns, softDelete: true, scan: scanUser,
		},
		SeatingTables: &entityStore[domain.SeatingTable]{
			db: db, table: "seating_tables", columns: seatingTableColumns, scan: scanSeatingTable,
		},
		Orders: &entityStore[domain.Order]{
			db: db, table: "orders", columns: orderColumns, scan: scanOrder,
		},
		Shifts: &entityStore[domain.Shift]{
			db: db, table: "shifts", columns: shiftColumns, scan: scanShift,
		},
	}
}

func scanCategory(row scanner) (domain.Category, error) {
	var c domain.Category
	err := row.Scan(&c.ID, &c.BranchID, &c.Name, &c.ColorHex, &c.SortOrder, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	return c, err
}

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.BranchID, &p.CategoryID, &p.Name, &p.Price, &p.IsAvailable,
		&p.ProductionArea, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	return p, err
}

func scanUser(row scanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.BranchID, &u.FullName, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	return u, err
}

func scanSeatingTable(row scanner) (domain.SeatingTable, error) {
	var t domain.SeatingTable
	err := row.Scan(&t.ID, &t.BranchID, &t.Name, &t.Status, &t.Floor, &t.X, &t.Y, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func scanOrder(row scanner) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.ReceiptNumber, &o.UserID, &o.TableID, &o.ShiftID, &o.TotalAmount,
		&o.Status, &o.BranchID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanShift(row scanner) (domain.Shift, error) {
	var s domain.Shift
	err := row.Scan(&s.ID, &s.UserID, &s.OpeningTime, &s.ClosingTime, &s.StartingCash,
		&s.ExpectedCash, &s.ActualCash, &s.Notes, &s.BranchID, &s.UpdatedAt)
	return s, err
}
