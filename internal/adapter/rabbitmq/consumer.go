package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

type Consumer struct {
	conn           Connection
	prefetch       int
	logger         logger.Logger
	reconnectDelay time.Duration
}

var _ interfaces.MessageConsumer = (*Consumer)(nil)

func NewConsumer(conn Connection, prefetch int, log logger.Logger) *Consumer {
	return &Consumer{
		conn:           conn,
		prefetch:       prefetch,
		logger:         log,
		reconnectDelay: 5 * time.Second,
	}
}

// ConsumeDeductionRequests blocks until ctx is done. A request the handler
// rejects is dead-lettered, never requeued.
func (c *Consumer) ConsumeDeductionRequests(ctx context.Context, handler interfaces.DeductionRequestHandler) error {
	return c.withReconnect(ctx, "deduction_consumer", func(ctx context.Context) error {
		return c.consumeDeductionRequests(ctx, handler)
	})
}

func (c *Consumer) ConsumeDashboardEvents(ctx context.Context, handler interfaces.DashboardEventHandler) error {
	return c.withReconnect(ctx, "dashboard_consumer", func(ctx context.Context) error {
		return c.consumeDashboardEvents(ctx, handler)
	})
}

func (c *Consumer) withReconnect(ctx context.Context, action string, consume func(context.Context) error) error {
	for {
		err := consume(ctx)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		c.logger.Error(action+"_disconnected",
			fmt.Sprintf("Consumer disconnected, reconnecting in %s", c.reconnectDelay), "", nil, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Consumer) consumeDeductionRequests(ctx context.Context, handler interfaces.DeductionRequestHandler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	closeChan := ch.NotifyClose()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	if err := setupDeductionQueue(ch); err != nil {
		return err
	}

	msgs, err := ch.Consume(DeductionQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return errors.New("channel closed gracefully")

		case msg, ok := <-msgs:
			if !ok {
				return errors.New("messages channel closed")
			}

			if err := handler(ctx, msg.Body); err != nil {
				c.logger.Warn("deduction_request_rejected", "Deduction request dead-lettered", "",
					map[string]interface{}{"routing_key": msg.RoutingKey, "reason": err.Error()})
				msg.Nack(false, false)
			} else {
				msg.Ack(false)
			}
		}
	}
}

func (c *Consumer) consumeDashboardEvents(ctx context.Context, handler interfaces.DashboardEventHandler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	closeChan := ch.NotifyClose()

	if err := declareDashboardExchange(ch); err != nil {
		return err
	}

	// exclusive queue per subscriber, gone when it disconnects
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", DashboardExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return errors.New("channel closed gracefully")

		case msg, ok := <-msgs:
			if !ok {
				return errors.New("messages channel closed")
			}

			// live events are not redelivered
			_ = handler(ctx, msg.Body)
		}
	}
}
