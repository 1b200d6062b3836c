package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

// Ledger is the append-only audit trail of sync attempts.
type Ledger struct {
	repo   interfaces.SyncLogRepository
	logger logger.Logger
}

func NewLedger(repo interfaces.SyncLogRepository, logger logger.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger}
}

// Record persists entry. A failure here is logged and never returned: the
// sync call being recorded has already produced its outcome.
func (l *Ledger) Record(ctx context.Context, entry domain.SyncLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if err := l.repo.Create(ctx, &entry); err != nil {
		l.logger.Error("ledger_write_failed", "Failed to write sync log entry", logger.RequestID(ctx),
			map[string]interface{}{
				"branch_id": entry.BranchID,
				"direction": entry.Direction,
				"status":    entry.Status,
			}, err)
	}
}

// Overview returns the newest entries of a branch together with an all-time
// summary per direction.
func (l *Ledger) Overview(ctx context.Context, branchID, rawLimit string) (*interfaces.SyncOverview, error) {
	limit := domain.ParseLimit(rawLimit)

	logs, err := l.repo.ListRecent(ctx, branchID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	if logs == nil {
		logs = []domain.SyncLogEntry{}
	}

	counts, err := l.repo.CountByOutcome(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize sync logs: %w", err)
	}

	return &interfaces.SyncOverview{
		BranchID: branchID,
		Limit:    limit,
		Summary:  domain.Summarize(counts),
		Logs:     logs,
	}, nil
}
