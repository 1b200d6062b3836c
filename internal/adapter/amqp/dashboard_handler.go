package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

type DashboardHandler struct {
	logger logger.Logger
	out    io.Writer
}

func NewDashboardHandler(logger logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		logger: logger,
		out:    os.Stdout,
	}
}

func (h *DashboardHandler) HandleDashboardEvent(ctx context.Context, body []byte) error {
	var event interfaces.DashboardEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse dashboard event", "", nil, err)
		return err
	}

	details := map[string]interface{}{
		"event":     event.Event,
		"branch_id": event.BranchID,
	}
	var summary string

	switch event.Event {
	case interfaces.EventNewOrder:
		var msg interfaces.NewOrderMessage
		if err := json.Unmarshal(event.Payload, &msg); err != nil {
			h.logger.Error("message_parse_failed", "Failed to parse newOrder payload", "", details, err)
			return err
		}
		details["order_ids"] = msg.OrderIDs
		summary = fmt.Sprintf("%s (%d order(s))", msg.Message, len(msg.OrderIDs))

	case interfaces.EventInventoryUpdate:
		var msg interfaces.InventoryUpdateMessage
		if err := json.Unmarshal(event.Payload, &msg); err != nil {
			h.logger.Error("message_parse_failed", "Failed to parse inventoryUpdate payload", "", details, err)
			return err
		}
		low := 0
		for i := range msg.Items {
			if msg.Items[i].IsLow() {
				low++
			}
		}
		details["items"] = len(msg.Items)
		details["low_stock"] = low
		summary = fmt.Sprintf("%d item(s), %d at or below minimum", len(msg.Items), low)

	default:
		summary = "unknown event"
	}

	h.logger.Debug("dashboard_event_received", fmt.Sprintf("Received %s for branch %s", event.Event, event.BranchID),
		"", details)

	fmt.Fprintf(h.out, "[%s] %s %s: %s\n",
		event.Timestamp.Format("15:04:05"), event.BranchID, event.Event, summary)

	return nil
}
