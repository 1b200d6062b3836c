package testutil

import (
	"context"
	"sync"

	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

type NewOrderEvent struct {
	BranchID string
	Message  interfaces.NewOrderMessage
}

type InventoryEvent struct {
	BranchID string
	Message  interfaces.InventoryUpdateMessage
}

// RecordingPublisher captures live events instead of broadcasting them.
type RecordingPublisher struct {
	mu        sync.Mutex
	newOrders []NewOrderEvent
	inventory []InventoryEvent

	// Err, when set, is returned from every publish after recording.
	Err error
}

func (p *RecordingPublisher) PublishNewOrder(_ context.Context, branchID string, msg interfaces.NewOrderMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.newOrders = append(p.newOrders, NewOrderEvent{BranchID: branchID, Message: msg})
	return p.Err
}

func (p *RecordingPublisher) PublishInventoryUpdate(_ context.Context, branchID string, msg interfaces.InventoryUpdateMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inventory = append(p.inventory, InventoryEvent{BranchID: branchID, Message: msg})
	return p.Err
}

func (p *RecordingPublisher) NewOrders() []NewOrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]NewOrderEvent(nil), p.newOrders...)
}

func (p *RecordingPublisher) InventoryUpdates() []InventoryEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]InventoryEvent(nil), p.inventory...)
}

type DeductionRequest struct {
	BranchID string
	OrderIDs []string
}

// RecordingRequester captures deduction requests and optionally forwards them.
type RecordingRequester struct {
	mu       sync.Mutex
	requests []DeductionRequest

	Next interfaces.DeductionRequester
	Err  error
}

func (r *RecordingRequester) RequestDeductions(ctx context.Context, branchID string, orderIDs []string) error {
	r.mu.Lock()
	r.requests = append(r.requests, DeductionRequest{BranchID: branchID, OrderIDs: append([]string(nil), orderIDs...)})
	next, err := r.Next, r.Err
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if next != nil {
		return next.RequestDeductions(ctx, branchID, orderIDs)
	}
	return nil
}

func (r *RecordingRequester) Requests() []DeductionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DeductionRequest(nil), r.requests...)
}
