package interfaces

import (
	"context"

	"github.com/YelzhanWeb/qristal-sync/internal/domain"
)

type SyncService interface {
	PullChanges(ctx context.Context, lastSyncTimestamp, branchID string) (*PullResponse, error)
	PushChanges(ctx context.Context, batch domain.ChangeBatch, branchID string) (*domain.PushResult, error)
	SyncLogsOverview(ctx context.Context, branchID, limit string) (*SyncOverview, error)
}

type DeductionService interface {
	FailedDeductions(ctx context.Context, branchID, limit string) ([]domain.DeductionTask, error)
	RetryDeduction(ctx context.Context, branchID, taskID string) error
}

type PullResponse struct {
	Timestamp string    `json:"timestamp"`
	Changes   ChangeSet `json:"changes"`
}

type ChangeSet struct {
	Categories    []domain.Category     `json:"categories"`
	Products      []domain.Product      `json:"products"`
	Users         []domain.User         `json:"users"`
	SeatingTables []domain.SeatingTable `json:"seatingTables"`
	Orders        []domain.Order        `json:"orders"`
	Shifts        []domain.Shift        `json:"shifts"`
}

// Count is the number of rows across every entity type.
func (c *ChangeSet) Count() int {
	return len(c.Categories) + len(c.Products) + len(c.Users) +
		len(c.SeatingTables) + len(c.Orders) + len(c.Shifts)
}

type SyncOverview struct {
	BranchID string                `json:"branchId"`
	Limit    int                   `json:"limit"`
	Summary  domain.SyncSummary    `json:"summary"`
	Logs     []domain.SyncLogEntry `json:"logs"`
}
