package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
	"github.com/YelzhanWeb/qristal-sync/internal/config"
	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

const newOrderMessage = "New orders arrived!"

// Reconciler merges terminal batches into the branch store and serves deltas back.
type Reconciler struct {
	changes   interfaces.ChangeLog
	store     interfaces.ChangeStore
	ledger    *Ledger
	publisher interfaces.EventPublisher
	requester interfaces.DeductionRequester
	logger    logger.Logger

	overlap           time.Duration
	postCommitTimeout time.Duration
	now               func() time.Time
}

func NewReconciler(
	changes interfaces.ChangeLog,
	store interfaces.ChangeStore,
	ledger *Ledger,
	publisher interfaces.EventPublisher,
	requester interfaces.DeductionRequester,
	logger logger.Logger,
	cfg config.SyncConfig,
) *Reconciler {
	timeout := cfg.PostCommitTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reconciler{
		changes:           changes,
		store:             store,
		ledger:            ledger,
		publisher:         publisher,
		requester:         requester,
		logger:            logger,
		overlap:           cfg.WatermarkOverlap,
		postCommitTimeout: timeout,
		now:               time.Now,
	}
}

// PullChanges returns every branch row updated strictly after lastSyncTimestamp.
func (r *Reconciler) PullChanges(ctx context.Context, lastSyncTimestamp, branchID string) (*interfaces.PullResponse, error) {
	started := r.now()
	entry := domain.SyncLogEntry{
		BranchID:  branchID,
		Direction: domain.SyncDirectionPull,
		Status:    domain.SyncStatusSuccess,
		StartedAt: started,
	}

	since, err := domain.ParseWatermark(lastSyncTimestamp)
	if err != nil {
		r.finish(ctx, entry, err.Error())
		return nil, err
	}

	// The watermark comes from the store clock and is read before the
	// queries, so every row stamped below it is already visible to them.
	storeNow, err := r.changes.Clock.Now(ctx)
	if err != nil {
		err = fmt.Errorf("failed to read store clock: %w", err)
		r.logger.Error("pull_failed", "Failed to read store clock", logger.RequestID(ctx),
			map[string]interface{}{"branch_id": branchID}, err)
		r.finish(ctx, entry, err.Error())
		return nil, err
	}
	watermark := storeNow.Add(-r.overlap)

	var changes interfaces.ChangeSet
	filter := interfaces.Filter{BranchID: branchID, UpdatedAfter: since}

	g, gctx := errgroup.WithContext(ctx)
	collect(gctx, g, "categories", r.changes.Categories, filter, &changes.Categories)
	collect(gctx, g, "products", r.changes.Products, filter, &changes.Products)
	collect(gctx, g, "users", r.changes.Users, filter, &changes.Users)
	collect(gctx, g, "seating tables", r.changes.SeatingTables, filter, &changes.SeatingTables)
	collect(gctx, g, "orders", r.changes.Orders, filter, &changes.Orders)
	collect(gctx, g, "shifts", r.changes.Shifts, filter, &changes.Shifts)

	if err := g.Wait(); err != nil {
		r.logger.Error("pull_failed", "Failed to read branch changes", logger.RequestID(ctx),
			map[string]interface{}{"branch_id": branchID}, err)
		r.finish(ctx, entry, err.Error())
		return nil, err
	}

	entry.RecordsPulled = changes.Count()
	r.finish(ctx, entry, "")

	r.logger.Debug("pull_completed", "Branch changes pulled", logger.RequestID(ctx),
		map[string]interface{}{"branch_id": branchID, "records": entry.RecordsPulled})

	return &interfaces.PullResponse{
		Timestamp: domain.FormatWatermark(watermark),
		Changes:   changes,
	}, nil
}

func collect[T any](ctx context.Context, g *errgroup.Group, name string, store interfaces.EntityStore[T], f interfaces.Filter, dst *[]T) {
	g.Go(func() error {
		rows, err := store.FindMany(ctx, f)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		if rows == nil {
			rows = []T{}
		}
		*dst = rows
		return nil
	})
}

// PushChanges applies batch in one transaction. Bad records are reported in
// the result; only a failure of the transaction itself is returned as error.
func (r *Reconciler) PushChanges(ctx context.Context, batch domain.ChangeBatch, branchID string) (*domain.PushResult, error) {
	started := r.now()
	entry := domain.SyncLogEntry{
		BranchID:  branchID,
		Direction: domain.SyncDirectionPush,
		Status:    domain.SyncStatusSuccess,
		StartedAt: started,
	}

	var applier *batchApplier
	err := r.store.WithinTx(ctx, func(ctx context.Context, w interfaces.ChangeWriter) error {
		applier = newBatchApplier(w, branchID, batch, r.logger)
		return applier.apply(ctx)
	})
	if err != nil {
		r.logger.Error("push_failed", "Push transaction failed", logger.RequestID(ctx),
			map[string]interface{}{"branch_id": branchID, "records": batch.Size()}, err)
		r.finish(ctx, entry, err.Error())
		if errors.Is(err, domain.ErrSyncFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSyncFailed, err)
	}

	result := applier.result
	result.Success = len(result.Errors) == 0
	entry.RecordsPushed = result.RecordsPushed()

	message := ""
	if !result.Success {
		encoded, _ := json.Marshal(result.Errors)
		message = string(encoded)
	}
	r.finish(ctx, entry, message)

	r.logger.Info("push_completed", "Batch applied", logger.RequestID(ctx), map[string]interface{}{
		"branch_id":  branchID,
		"orders":     result.ProcessedOrders,
		"shifts":     result.ProcessedShifts,
		"audit_logs": result.ProcessedAuditLogs,
		"new_orders": len(applier.created),
		"errors":     len(result.Errors),
	})

	if len(applier.created) > 0 {
		go r.afterCommit(context.WithoutCancel(ctx), branchID, applier.created)
	}

	return result, nil
}

// SyncLogsOverview is the operator view of the branch ledger.
func (r *Reconciler) SyncLogsOverview(ctx context.Context, branchID, limit string) (*interfaces.SyncOverview, error) {
	return r.ledger.Overview(ctx, branchID, limit)
}

// finish stamps and records entry; a non-empty message marks it failed.
func (r *Reconciler) finish(ctx context.Context, entry domain.SyncLogEntry, message string) {
	if message != "" {
		entry.Fail(message)
	}
	entry.FinishedAt = r.now()
	r.ledger.Record(ctx, entry)
}

// afterCommit runs detached from the request. Deductions themselves are
// already durable in the outbox; this only announces and nudges.
func (r *Reconciler) afterCommit(ctx context.Context, branchID string, orderIDs []string) {
	ctx, cancel := context.WithTimeout(ctx, r.postCommitTimeout)
	defer cancel()

	requestID := logger.RequestID(ctx)

	msg := interfaces.NewOrderMessage{Message: newOrderMessage, OrderIDs: orderIDs}
	if err := r.publisher.PublishNewOrder(ctx, branchID, msg); err != nil {
		r.logger.Error("new_order_broadcast_failed", "Failed to broadcast new orders", requestID,
			map[string]interface{}{"branch_id": branchID, "orders": len(orderIDs)}, err)
	}

	if err := r.requester.RequestDeductions(ctx, branchID, orderIDs); err != nil {
		r.logger.Error("deduction_request_failed", "Failed to request stock deductions", requestID,
			map[string]interface{}{"branch_id": branchID, "orders": len(orderIDs)}, err)
	}
}
