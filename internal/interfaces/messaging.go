package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/YelzhanWeb/qristal-sync/internal/domain"
)

const (
	EventNewOrder        = "newOrder"
	EventInventoryUpdate = "inventoryUpdate"
)

// DashboardEvent is broadcast to every live dashboard subscriber.
type DashboardEvent struct {
	Event     string          `json:"event"`
	BranchID  string          `json:"branchId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type NewOrderMessage struct {
	Message  string   `json:"message"`
	OrderIDs []string `json:"orderIds"`
}

type InventoryUpdateMessage struct {
	Items []domain.InventoryItem `json:"items"`
}

// DeductionRequestMessage wakes inventory workers; the outbox row is authoritative.
type DeductionRequestMessage struct {
	BranchID  string    `json:"branchId"`
	OrderIDs  []string  `json:"orderIds"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher is the live notifier: fire-and-forget, no acknowledgement.
type EventPublisher interface {
	PublishNewOrder(ctx context.Context, branchID string, msg NewOrderMessage) error
	PublishInventoryUpdate(ctx context.Context, branchID string, msg InventoryUpdateMessage) error
}

// DeductionRequester asks inventory workers to look at freshly enqueued tasks.
type DeductionRequester interface {
	RequestDeductions(ctx context.Context, branchID string, orderIDs []string) error
}

type MessageConsumer interface {
	ConsumeDeductionRequests(ctx context.Context, handler DeductionRequestHandler) error
	ConsumeDashboardEvents(ctx context.Context, handler DashboardEventHandler) error
}

type (
	DeductionRequestHandler func(ctx context.Context, body []byte) error
	DashboardEventHandler   func(ctx context.Context, body []byte) error
)
