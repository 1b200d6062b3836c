package http

import (
	"encoding/json"
	"net/http"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
	"github.com/YelzhanWeb/qristal-sync/internal/domain"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"
)

const maxPushBody = 16 << 20

type SyncHandler struct {
	service interfaces.SyncService
	logger  logger.Logger
}

func NewSyncHandler(service interfaces.SyncService, logger logger.Logger) *SyncHandler {
	return &SyncHandler{
		service: service,
		logger:  logger,
	}
}

func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	branchID := BranchID(ctx)

	resp, err := h.service.PullChanges(ctx, r.URL.Query().Get("lastSyncTimestamp"), branchID)
	if err != nil {
		h.logger.Error("pull_failed", "Pull sync failed", requestIDFrom(ctx), map[string]interface{}{
			"branch_id": branchID,
		}, err)
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Push answers 200 whenever the batch was applied, even if some records were
// rejected; the per-record errors are in the body.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	branchID := BranchID(ctx)

	var batch domain.ChangeBatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBody)).Decode(&batch); err != nil {
		h.logger.Warn("push_body_invalid", "Invalid push body", requestIDFrom(ctx), map[string]interface{}{
			"branch_id": branchID,
			"reason":    err.Error(),
		})
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.PushChanges(ctx, batch, branchID)
	if err != nil {
		h.logger.Error("push_failed", "Push sync failed", requestIDFrom(ctx), map[string]interface{}{
			"branch_id": branchID,
			"records":   batch.Size(),
		}, err)
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *SyncHandler) Logs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	overview, err := h.service.SyncLogsOverview(ctx, BranchID(ctx), r.URL.Query().Get("limit"))
	if err != nil {
		h.logger.Error("sync_logs_failed", "Failed to load sync logs", requestIDFrom(ctx), nil, err)
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, http.StatusOK, overview)
}
