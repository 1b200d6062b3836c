package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DashboardExchange = "dashboard_events"

	SyncExchange         = "sync_topic"
	DeductionQueue       = "inventory_deductions"
	DeductionDLQExchange = "sync_dlq"
	DeductionDLQ         = "inventory_deductions_dlq"
)

func deductionRoutingKey(branchID string) string {
	return "inventory.deduct." + branchID
}

func declareDashboardExchange(ch Channel) error {
	if err := ch.ExchangeDeclare(DashboardExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dashboard exchange: %w", err)
	}
	return nil
}

func declareSyncExchange(ch Channel) error {
	if err := ch.ExchangeDeclare(SyncExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare sync exchange: %w", err)
	}
	return nil
}

// setupDeductionQueue declares the wake-up queue and the dead-letter queue
// rejected requests end up in.
func setupDeductionQueue(ch Channel) error {
	if err := declareSyncExchange(ch); err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(DeductionDLQExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(DeductionDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}
	if err := ch.QueueBind(DeductionDLQ, "#", DeductionDLQExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange": DeductionDLQExchange,
	}
	q, err := ch.QueueDeclare(DeductionQueue, true, false, false, false, args)
	if err != nil {
		return fmt.Errorf("failed to declare deduction queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "inventory.deduct.#", SyncExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind deduction queue: %w", err)
	}
	return nil
}
