package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Catalog entities are maintained elsewhere; sync only ships them to terminals.

type Category struct {
	ID        string     `json:"id"`
	BranchID  string     `json:"branchId"`
	Name      string     `json:"name"`
	ColorHex  *string    `json:"colorHex"`
	SortOrder int        `json:"sortOrder"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type Product struct {
	ID             string          `json:"id"`
	BranchID       string          `json:"branchId"`
	CategoryID     string          `json:"categoryId"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	IsAvailable    bool            `json:"isAvailable"`
	ProductionArea string          `json:"productionArea"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	DeletedAt      *time.Time      `json:"deletedAt,omitempty"`
}

// User never carries the PIN hash; it is not selected from the store.
type User struct {
	ID        string     `json:"id"`
	BranchID  string     `json:"branchId"`
	FullName  string     `json:"fullName"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type SeatingTable struct {
	ID        string    `json:"id"`
	BranchID  string    `json:"branchId"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Floor     string    `json:"floor"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
