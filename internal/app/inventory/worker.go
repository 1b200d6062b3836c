package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
	"github.com/YelzhanWeb/qristal-sync/internal/config"
	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

// Worker drains the deduction outbox. Several workers may run against the
// same store; claims never hand one task to two of them.
type Worker struct {
	outbox    interfaces.OutboxRepository
	effector  *Effector
	publisher interfaces.EventPublisher
	logger    logger.Logger
	cfg       config.OutboxConfig

	now  func() time.Time
	wake chan struct{}
}

func NewWorker(
	outbox interfaces.OutboxRepository,
	effector *Effector,
	publisher interfaces.EventPublisher,
	logger logger.Logger,
	cfg config.OutboxConfig,
) *Worker {
	return &Worker{
		outbox:    outbox,
		effector:  effector,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
	}
}

// Run polls until ctx is done. Wake triggers an immediate pass.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.logger.Info("worker_started", "Deduction worker started", "", map[string]interface{}{
		"poll_interval": w.cfg.PollInterval.String(),
		"batch_size":    w.cfg.BatchSize,
		"max_attempts":  w.cfg.MaxAttempts,
	})

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("outbox_claim_failed", "Failed to claim deduction tasks", "", nil, err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker_stopped", "Deduction worker stopped", "", nil)
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// Wake asks Run for another pass. Calls coalesce while one is pending.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// RequestDeductions lets the worker stand in for the wake-up transport when
// it runs in the same process as the sync service.
func (w *Worker) RequestDeductions(_ context.Context, _ string, _ []string) error {
	w.Wake()
	return nil
}

// RunOnce claims one batch of due tasks and processes it. It returns the
// number of completed deductions.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	tasks, err := w.outbox.ClaimDue(ctx, w.cfg.BatchSize, w.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("failed to claim tasks: %w", err)
	}

	var branches []string
	seen := map[string]bool{}
	done := 0

	for _, task := range tasks {
		if err := w.process(ctx, task); err != nil {
			w.fail(ctx, task, err)
			continue
		}
		done++
		if !seen[task.BranchID] {
			seen[task.BranchID] = true
			branches = append(branches, task.BranchID)
		}
	}

	for _, branchID := range branches {
		w.broadcastInventory(ctx, branchID)
	}
	return done, nil
}

func (w *Worker) process(ctx context.Context, task domain.DeductionTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deduction panicked: %v", r)
		}
	}()
	return w.effector.DeductStockForOrder(ctx, task)
}

func (w *Worker) fail(ctx context.Context, task domain.DeductionTask, cause error) {
	details := map[string]interface{}{
		"task_id":   task.ID,
		"order_id":  task.OrderID,
		"branch_id": task.BranchID,
		"attempts":  task.Attempts,
	}

	// another worker took over after our lease ran out
	if errors.Is(cause, domain.ErrTaskNotClaimed) {
		w.logger.Warn("deduction_claim_lost", "Deduction task no longer claimed", "", details)
		return
	}

	var retryAt *time.Time
	if !task.Exhausted(w.cfg.MaxAttempts) {
		at := task.RetryAt(w.now(), w.cfg.RetryBackoff)
		retryAt = &at
	}

	if err := w.outbox.MarkFailed(ctx, task, cause.Error(), retryAt); err != nil {
		if errors.Is(err, domain.ErrTaskNotClaimed) {
			w.logger.Warn("deduction_claim_lost", "Deduction task no longer claimed", "", details)
			return
		}
		w.logger.Error("outbox_update_failed", "Failed to record deduction failure", "", details, err)
	}

	if retryAt == nil {
		w.logger.Error("deduction_failed_permanently", "Stock deduction failed", "", details, cause)
		return
	}
	details["retry_at"] = retryAt.UTC().Format(time.RFC3339)
	w.logger.Error("deduction_failed", "Stock deduction failed, will retry", "", details, cause)
}

func (w *Worker) broadcastInventory(ctx context.Context, branchID string) {
	items, err := w.effector.Snapshot(ctx, branchID)
	if err != nil {
		w.logger.Error("inventory_broadcast_failed", "Failed to load inventory snapshot", "",
			map[string]interface{}{"branch_id": branchID}, err)
		return
	}

	msg := interfaces.InventoryUpdateMessage{Items: items}
	if err := w.publisher.PublishInventoryUpdate(ctx, branchID, msg); err != nil {
		w.logger.Error("inventory_broadcast_failed", "Failed to broadcast inventory update", "",
			map[string]interface{}{"branch_id": branchID}, err)
	}
}

// FailedDeductions lists tasks that used up their attempts.
func (w *Worker) FailedDeductions(ctx context.Context, branchID, rawLimit string) ([]domain.DeductionTask, error) {
	tasks, err := w.outbox.ListFailed(ctx, branchID, domain.ParseLimit(rawLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to list failed deductions: %w", err)
	}
	if tasks == nil {
		tasks = []domain.DeductionTask{}
	}
	return tasks, nil
}

// RetryDeduction puts a failed task back in the queue with fresh attempts.
func (w *Worker) RetryDeduction(ctx context.Context, branchID, taskID string) error {
	if err := w.outbox.Requeue(ctx, branchID, taskID); err != nil {
		return err
	}
	w.logger.Info("deduction_requeued", "Failed deduction requeued", logger.RequestID(ctx),
		map[string]interface{}{"task_id": taskID, "branch_id": branchID})
	w.Wake()
	return nil
}
