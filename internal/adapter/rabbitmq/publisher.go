package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

// Publisher sends live dashboard events and deduction wake-ups. Neither is
// durable; the outbox table is what guarantees deductions happen.
type Publisher struct {
	conn Connection
	now  func() time.Time
}

var (
	_ interfaces.EventPublisher     = (*Publisher)(nil)
	_ interfaces.DeductionRequester = (*Publisher)(nil)
)

func NewPublisher(conn Connection) *Publisher {
	return &Publisher{conn: conn, now: time.Now}
}

func (p *Publisher) PublishNewOrder(ctx context.Context, branchID string, msg interfaces.NewOrderMessage) error {
	return p.publishEvent(ctx, interfaces.EventNewOrder, branchID, msg)
}

func (p *Publisher) PublishInventoryUpdate(ctx context.Context, branchID string, msg interfaces.InventoryUpdateMessage) error {
	return p.publishEvent(ctx, interfaces.EventInventoryUpdate, branchID, msg)
}

func (p *Publisher) publishEvent(ctx context.Context, event, branchID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	body, err := json.Marshal(interfaces.DashboardEvent{
		Event:     event,
		BranchID:  branchID,
		Timestamp: p.now().UTC(),
		Payload:   raw,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := declareDashboardExchange(ch); err != nil {
		return err
	}

	err = ch.Publish(ctx, DashboardExchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   p.now(),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}
	return nil
}

func (p *Publisher) RequestDeductions(ctx context.Context, branchID string, orderIDs []string) error {
	body, err := json.Marshal(interfaces.DeductionRequestMessage{
		BranchID:  branchID,
		OrderIDs:  orderIDs,
		Timestamp: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := declareSyncExchange(ch); err != nil {
		return err
	}

	err = ch.Publish(ctx, SyncExchange, deductionRoutingKey(branchID), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    p.now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish deduction request: %w", err)
	}
	return nil
}
