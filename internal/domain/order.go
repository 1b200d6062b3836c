package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a receipt recorded by a terminal, identified by its client-generated id.
type Order struct {
	ID            string          `json:"id"`
	ReceiptNumber string          `json:"receiptNumber"`
	UserID        string          `json:"userId"`
	TableID       *string         `json:"tableId"`
	ShiftID       *string         `json:"shiftId"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Status        OrderStatus     `json:"status"`
	BranchID      string          `json:"branchId"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// OrderItem is one line of an order. Quantity and notes may be amended on resync.
type OrderItem struct {
	ID                 string          `json:"id"`
	OrderID            string          `json:"orderId"`
	ProductID          string          `json:"productId"`
	Quantity           int             `json:"quantity"`
	PriceAtTimeOfOrder decimal.Decimal `json:"priceAtTimeOfOrder"`
	Notes              *string         `json:"notes"`
}

// Payment is immutable once stored; a re-push of the same id is a no-op.
type Payment struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"orderId"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reference *string         `json:"reference"`
	ShiftID   *string         `json:"shiftId"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Shift is a cash-register session. Closing fields fill in on later pushes.
type Shift struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	OpeningTime  time.Time        `json:"openingTime"`
	ClosingTime  *time.Time       `json:"closingTime"`
	StartingCash decimal.Decimal  `json:"startingCash"`
	ExpectedCash *decimal.Decimal `json:"expectedCash"`
	ActualCash   *decimal.Decimal `json:"actualCash"`
	Notes        *string          `json:"notes"`
	BranchID     string           `json:"branchId"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

type AuditLog struct {
	ID        string          `json:"id"`
	BranchID  string          `json:"branchId"`
	UserID    string          `json:"userId"`
	Action    string          `json:"action"`
	OrderID   *string         `json:"orderId"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (s *Shift) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.UserID == "" {
		return errors.New("userId is required")
	}
	if s.OpeningTime.IsZero() {
		return errors.New("openingTime is required")
	}
	if s.ClosingTime != nil && s.ClosingTime.Before(s.OpeningTime) {
		return errors.New("closingTime is before openingTime")
	}
	return nil
}

func (o *Order) Validate() error {
	if o.ID == "" {
		return errors.New("id is required")
	}
	if o.ReceiptNumber == "" {
		return errors.New("receiptNumber is required")
	}
	if o.UserID == "" {
		return errors.New("userId is required")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("unknown status %q", o.Status)
	}
	if o.TotalAmount.IsNegative() {
		return errors.New("totalAmount must not be negative")
	}
	return nil
}

func (i *OrderItem) Validate() error {
	if i.ID == "" {
		return errors.New("id is required")
	}
	if i.OrderID == "" || i.ProductID == "" {
		return errors.New("orderId and productId are required")
	}
	if i.Quantity < 1 {
		return errors.New("quantity must be at least 1")
	}
	return nil
}

func (p *Payment) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.OrderID == "" {
		return errors.New("orderId is required")
	}
	if p.Method == "" {
		return errors.New("method is required")
	}
	return nil
}

func (a *AuditLog) Validate() error {
	if a.ID == "" {
		return errors.New("id is required")
	}
	if a.Action == "" {
		return errors.New("action is required")
	}
	return nil
}
