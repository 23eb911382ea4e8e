package service

import (
	"context"
	"errors"
	"time"

	"github.com/mstgnz/gopos/infra/logger"
	"github.com/mstgnz/gopos/infra/metrics"
	"github.com/mstgnz/gopos/infra/opensearch"
	"github.com/mstgnz/gopos/provider"
)

type auditEntry struct {
	merchantKey string
	gateway     string
	op          provider.Operation
	txType      provider.TransactionType
	model       provider.SecurityModel
	order       provider.Order
	sessionID   string
	request     provider.GatewayRequest
	response    provider.GatewayResponse
	result      *provider.Result
	err         error
	elapsed     time.Duration
}

func errorCode(err error) string {
	var verr *provider.ValidationError
	var terr *provider.TransportError
	switch {
	case errors.Is(err, provider.ErrSecurityRejected):
		return provider.DetailSecurityRejected
	case errors.As(err, &verr):
		return "VALIDATION_ERROR"
	case errors.As(err, &terr):
		return "TRANSPORT_ERROR"
	case errors.Is(err, provider.ErrPrecondition):
		return "PRECONDITION_FAILED"
	case errors.Is(err, provider.ErrUnsupportedTransactionType), errors.Is(err, provider.ErrNotImplemented):
		return "UNSUPPORTED"
	default:
		return "PROVIDER_ERROR"
	}
}

// record counts the result and hands the entry to the audit sink. Sink
// failures are logged and never fail the payment.
func (s *PaymentService) record(ctx context.Context, e auditEntry) {
	metrics.ObserveResult(e.gateway, e.result)
	if s.audit == nil {
		return
	}

	amount, _ := e.order.Amount.Float64()
	entry := opensearch.TransactionLog{
		Timestamp:        s.now().UTC(),
		MerchantKey:      e.merchantKey,
		Gateway:          e.gateway,
		Operation:        string(e.op),
		TxType:           string(e.txType),
		PaymentModel:     string(e.model),
		SessionID:        e.sessionID,
		OrderID:          e.order.ID,
		Amount:           amount,
		Currency:         e.order.Currency,
		ProcessingTimeMs: e.elapsed.Milliseconds(),
	}
	if e.request != nil {
		entry.Request = provider.SanitizeForLog(e.request)
	}
	if e.response != nil {
		entry.Response = provider.SanitizeForLog(e.response)
	}
	if r := e.result; r != nil {
		entry.Status = string(r.Status)
		entry.StatusDetail = r.StatusDetail
		entry.ProcReturnCode = r.ProcReturnCode
		if entry.OrderID == "" {
			entry.OrderID = r.OrderID
		}
		if entry.PaymentModel == "" {
			entry.PaymentModel = string(r.PaymentModel)
		}
		if entry.Response == nil && r.Extra != nil {
			entry.Response = r.Extra
		}
		if r.ErrorCode != "" {
			entry.Error = &opensearch.ErrorInfo{Code: r.ErrorCode, Message: r.ErrorMessage}
		}
	}
	if e.err != nil {
		entry.Error = &opensearch.ErrorInfo{
			Code:    errorCode(e.err),
			Message: opensearch.SanitizeForLog(e.err.Error()),
		}
	}

	if err := s.audit.LogTransaction(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("Failed to log gateway transaction", logger.LogContext{
			MerchantKey: e.merchantKey,
			Provider:    e.gateway,
			Fields: map[string]any{
				"operation": string(e.op),
				"order_id":  entry.OrderID,
				"error":     err.Error(),
			},
		})
	}
}
