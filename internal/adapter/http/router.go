package http

import (
	"net/http"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
)

// NewRouter mounts the terminal-facing routes. inventory may be nil when the
// process has no outbox access.
func NewRouter(sync *SyncHandler, inventory *InventoryHandler, logger logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	scoped := func(h http.HandlerFunc) http.Handler { return BranchScope(h) }

	mux.Handle("GET /sync/pull", scoped(sync.Pull))
	mux.Handle("POST /sync/push", scoped(sync.Push))
	mux.Handle("GET /sync/logs", scoped(sync.Logs))

	if inventory != nil {
		mux.Handle("GET /inventory/deductions/failed", scoped(inventory.FailedDeductions))
		mux.Handle("POST /inventory/deductions/{id}/retry", scoped(inventory.RetryDeduction))
	}

	return LoggingMiddleware(logger)(RecoveryMiddleware(logger)(mux))
}
