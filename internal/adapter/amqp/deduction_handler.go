package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

type waker interface {
	Wake()
}

// DeductionHandler turns a wake-up message into an immediate outbox poll.
type DeductionHandler struct {
	worker waker
	logger logger.Logger
}

func NewDeductionHandler(worker waker, logger logger.Logger) *DeductionHandler {
	return &DeductionHandler{
		worker: worker,
		logger: logger,
	}
}

func (h *DeductionHandler) HandleDeductionRequest(ctx context.Context, body []byte) error {
	var msg interfaces.DeductionRequestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse deduction request", "", nil, err)
		return err
	}
	if msg.BranchID == "" {
		return errors.New("deduction request without branch")
	}

	h.logger.Debug("deduction_request_received",
		fmt.Sprintf("Wake-up for %d order(s)", len(msg.OrderIDs)), "",
		map[string]interface{}{
			"branch_id": msg.BranchID,
			"order_ids": msg.OrderIDs,
		})

	h.worker.Wake()
	return nil
}
