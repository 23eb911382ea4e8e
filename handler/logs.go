package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/gopos/infra/middle"
	"github.com/mstgnz/gopos/infra/opensearch"
	"github.com/mstgnz/gopos/infra/response"
)

// LoggerInterface defines the audit queries served by LogsHandler
type LoggerInterface interface {
	GetOrderLogs(ctx context.Context, merchantKey, gateway, orderID string) ([]opensearch.TransactionLog, error)
	GetRecentErrorLogs(ctx context.Context, merchantKey, gateway string, hours int) ([]opensearch.TransactionLog, error)
}

// LogsHandler handles audit log queries of the calling merchant
type LogsHandler struct {
	logger LoggerInterface
}

// NewLogsHandler creates a new logs handler
func NewLogsHandler(logger LoggerInterface) *LogsHandler {
	return &LogsHandler{logger: logger}
}

// GetOrderLogs returns every gateway call logged for one order.
func (h *LogsHandler) GetOrderLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	gateway := chi.URLParam(r, "gateway")
	orderID := chi.URLParam(r, "orderID")

	logs, err := h.logger.GetOrderLogs(ctx, middle.GetMerchantKey(r.Context()), gateway, orderID)
	if err != nil {
		response.Error(w, http.StatusServiceUnavailable, "Failed to retrieve logs", err)
		return
	}
	response.Success(w, http.StatusOK, "Logs retrieved", map[string]any{
		"gateway":  gateway,
		"order_id": orderID,
		"count":    len(logs),
		"logs":     logs,
	})
}

// GetErrorLogs returns failed calls of the last hours (default 24, max 168).
func (h *LogsHandler) GetErrorLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	hours := 24
	if s := r.URL.Query().Get("hours"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 168 {
			response.Error(w, http.StatusBadRequest, "hours must be between 1 and 168", nil)
			return
		}
		hours = n
	}

	gateway := chi.URLParam(r, "gateway")
	logs, err := h.logger.GetRecentErrorLogs(ctx, middle.GetMerchantKey(r.Context()), gateway, hours)
	if err != nil {
		response.Error(w, http.StatusServiceUnavailable, "Failed to retrieve logs", err)
		return
	}
	response.Success(w, http.StatusOK, "Error logs retrieved", map[string]any{
		"gateway": gateway,
		"hours":   hours,
		"count":   len(logs),
		"logs":    logs,
	})
}
