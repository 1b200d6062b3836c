package http

import (
	"net/http"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

type InventoryHandler struct {
	service interfaces.DeductionService
	logger  logger.Logger
}

func NewInventoryHandler(service interfaces.DeductionService, logger logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: service,
		logger:  logger,
	}
}

func (h *InventoryHandler) FailedDeductions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	branchID := BranchID(ctx)

	tasks, err := h.service.FailedDeductions(ctx, branchID, r.URL.Query().Get("limit"))
	if err != nil {
		h.logger.Error("failed_deductions_query_failed", "Failed to list failed deductions", requestIDFrom(ctx), nil, err)
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"branchId": branchID,
		"tasks":    tasks,
	})
}

func (h *InventoryHandler) RetryDeduction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	branchID := BranchID(ctx)
	taskID := r.PathValue("id")

	if err := h.service.RetryDeduction(ctx, branchID, taskID); err != nil {
		h.logger.Warn("deduction_retry_rejected", "Deduction retry rejected", requestIDFrom(ctx), map[string]interface{}{
			"branch_id": branchID,
			"task_id":   taskID,
			"reason":    err.Error(),
		})
		respondError(w, err.Error(), statusFor(err))
		return
	}

	h.logger.Info("deduction_requeued", "Deduction task requeued", requestIDFrom(ctx), map[string]interface{}{
		"branch_id": branchID,
		"task_id":   taskID,
	})
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     taskID,
		"status": "pending",
	})
}
