package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

// batchApplier walks one pushed batch inside an open transaction.
type batchApplier struct {
	w        interfaces.ChangeWriter
	branchID string
	batch    domain.ChangeBatch
	logger   logger.Logger

	// shift ids of the orders carried in this batch, for payment resolution
	batchShifts map[string]*string

	result  *domain.PushResult
	created []string
}

func newBatchApplier(w interfaces.ChangeWriter, branchID string, batch domain.ChangeBatch, log logger.Logger) *batchApplier {
	shifts := make(map[string]*string, len(batch.Orders))
	for _, o := range batch.Orders {
		shifts[o.ID] = o.ShiftID
	}
	return &batchApplier{
		w:           w,
		branchID:    branchID,
		batch:       batch,
		logger:      log,
		batchShifts: shifts,
		result:      &domain.PushResult{},
	}
}

// apply runs the steps in dependency order. The returned error is systemic.
func (a *batchApplier) apply(ctx context.Context) error {
	steps := []func(context.Context) error{
		a.applyShifts,
		a.applyOrders,
		a.applyOrderItems,
		a.applyPayments,
		a.applyAuditLogs,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *batchApplier) applyShifts(ctx context.Context) error {
	for _, s := range a.batch.Shifts {
		err := s.Validate()
		if err == nil {
			err = a.w.UpsertShift(ctx, a.branchID, s)
		}
		if err != nil {
			if err := a.reject(ctx, s.ID, "Shift error: ", err); err != nil {
				return err
			}
			continue
		}
		a.result.ProcessedShifts++
	}
	return nil
}

func (a *batchApplier) applyOrders(ctx context.Context) error {
	for _, o := range a.batch.Orders {
		created, err := a.upsertOrder(ctx, o)
		if err != nil {
			if err := a.reject(ctx, o.ID, "Order error: ", err); err != nil {
				return err
			}
			continue
		}
		a.result.ProcessedOrders++
		if created {
			a.created = append(a.created, o.ID)
		}
	}
	return nil
}

func (a *batchApplier) upsertOrder(ctx context.Context, o domain.Order) (bool, error) {
	if err := o.Validate(); err != nil {
		return false, err
	}
	if _, err := a.ownedOrder(ctx, o.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}
	o.BranchID = a.branchID
	return a.w.UpsertOrder(ctx, a.branchID, o)
}

func (a *batchApplier) applyOrderItems(ctx context.Context) error {
	for _, item := range a.batch.OrderItems {
		err := item.Validate()
		if err == nil {
			_, err = a.ownedOrder(ctx, item.OrderID)
		}
		if err == nil {
			err = a.w.UpsertOrderItem(ctx, a.branchID, item)
		}
		if err != nil {
			if err := a.reject(ctx, item.ID, "Item error: ", err); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *batchApplier) applyPayments(ctx context.Context) error {
	for _, p := range a.batch.Payments {
		if err := a.insertPayment(ctx, p); err != nil {
			if err := a.reject(ctx, p.ID, "Payment error: ", err); err != nil {
				return err
			}
		}
	}
	return nil
}

// insertPayment resolves the shift from the payment itself, then from its
// order in this batch, then from the stored order.
func (a *batchApplier) insertPayment(ctx context.Context, p domain.Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}

	stored, lookupErr := a.ownedOrder(ctx, p.OrderID)
	if lookupErr != nil && !errors.Is(lookupErr, domain.ErrNotFound) {
		return lookupErr
	}

	shiftID := firstShift(p.ShiftID, a.batchShifts[p.OrderID])
	if shiftID == nil && stored != nil {
		shiftID = firstShift(stored.ShiftID)
	}
	if shiftID == nil {
		return domain.ErrShiftUnresolved
	}
	if stored == nil {
		return lookupErr
	}

	p.ShiftID = shiftID
	inserted, err := a.w.InsertPayment(ctx, a.branchID, p)
	if err != nil {
		return err
	}
	if !inserted {
		a.logger.Debug("payment_duplicate", "Payment already applied", logger.RequestID(ctx),
			map[string]interface{}{"payment_id": p.ID})
	}
	return nil
}

func (a *batchApplier) applyAuditLogs(ctx context.Context) error {
	for _, entry := range a.batch.AuditLogs {
		err := entry.Validate()
		if err == nil && entry.OrderID != nil {
			_, err = a.ownedOrder(ctx, *entry.OrderID)
		}
		if err == nil {
			entry.BranchID = a.branchID
			_, err = a.w.InsertAuditLog(ctx, a.branchID, entry)
		}
		if err != nil {
			if err := a.reject(ctx, entry.ID, "Audit log error: ", err); err != nil {
				return err
			}
			continue
		}
		a.result.ProcessedAuditLogs++
	}
	return nil
}

// ownedOrder loads an order and checks it belongs to the pushing branch.
func (a *batchApplier) ownedOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := a.w.FindOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", id, err)
	}
	if o.BranchID != a.branchID {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrBranchMismatch)
	}
	return o, nil
}

// reject records a per-record error. Systemic errors are handed back so the
// whole push aborts.
func (a *batchApplier) reject(ctx context.Context, id, prefix string, err error) error {
	if errors.Is(err, domain.ErrSyncFailed) || ctx.Err() != nil {
		return err
	}

	a.result.Errors = append(a.result.Errors, domain.RecordError{ID: id, Error: prefix + err.Error()})
	a.logger.Warn("push_record_rejected", "Record rejected", logger.RequestID(ctx),
		map[string]interface{}{"branch_id": a.branchID, "record_id": id, "error": err.Error()})
	return nil
}

func firstShift(ids ...*string) *string {
	for _, id := range ids {
		if id != nil && *id != "" {
			return id
		}
	}
	return nil
}
