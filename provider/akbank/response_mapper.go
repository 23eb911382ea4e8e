package akbank

import (
	"github.com/mstgnz/gopos/provider"
)

// ResponseMapper maps Akbank JSON responses and 3-D callbacks.
type ResponseMapper struct {
	values provider.ValueMapper
	md     provider.MdStatusTable
}

// classify combines the gateway and host verdicts. Both must approve.
func classify(responseCode, hostCode string) (provider.Status, string) {
	if responseCode == gatewayApproved {
		return hostCodes.Classify(hostCode)
	}
	if hostCode != "" {
		if status, detail := hostCodes.Classify(hostCode); status != provider.StatusApproved {
			return status, detail
		}
	}
	if detail, ok := gatewayDetails[responseCode]; ok {
		return provider.StatusDeclined, detail
	}
	return provider.StatusDeclined, provider.DetailGeneralError
}

func errorCode(responseCode, hostCode string) string {
	if responseCode != gatewayApproved || hostCode == "" {
		return responseCode
	}
	return hostCode
}

func errorMessage(data map[string]any) string {
	if msg := provider.Str(data, "hostMessage"); msg != "" && provider.Str(data, "responseCode") == gatewayApproved {
		return msg
	}
	return provider.Str(data, "responseMessage")
}

func (m *ResponseMapper) mapBase(raw provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	res := provider.NewResult(order, txType, "", raw)
	if id := provider.Str(raw, "order", "orderId"); id != "" {
		res.OrderID = id
	}
	res.AuthCode = provider.Str(raw, "transaction", "authCode")
	res.RefRetNum = provider.Str(raw, "transaction", "rrn")
	res.BatchNum = provider.Str(raw, "transaction", "batchNumber")
	res.TransactionID = provider.Str(raw, "transaction", "stan")
	if t, err := m.values.ParseDateTime(provider.Str(raw, "txnDateTime"), ""); err == nil {
		res.TransactionTime = &t
	}

	responseCode := provider.Str(raw, "responseCode")
	res.ProcReturnCode = provider.Str(raw, "hostResponseCode")
	res.Status, res.StatusDetail = classify(responseCode, res.ProcReturnCode)
	if res.Status != provider.StatusApproved {
		res.ErrorCode = errorCode(responseCode, res.ProcReturnCode)
		res.ErrorMessage = errorMessage(raw)
	}
	return res
}

func (m *ResponseMapper) MapPaymentResponse(raw provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	res := m.mapBase(raw, txType, order)
	res.PaymentModel = provider.ModelNonSecure
	return res
}

func (m *ResponseMapper) security(callback provider.GatewayResponse) provider.SecurityFields {
	md := m.ExtractMdStatus(callback)
	return provider.SecurityFields{
		MdStatus:            md,
		MdErrorMessage:      provider.Str(callback, "mdErrorMessage"),
		ECI:                 provider.Str(callback, "secureEcomInd"),
		CAVV:                provider.Str(callback, "secureData"),
		TransactionSecurity: m.md.Label(md),
	}
}

// authenticated reports whether the 3-D step passed. The gateway verdict
// must be positive and mdStatus must not be an explicit rejection.
func (m *ResponseMapper) authenticated(callback provider.GatewayResponse, security provider.SecurityFields) bool {
	return provider.Str(callback, "responseCode") == gatewayApproved && m.md.Authenticated(security.MdStatus)
}

func (m *ResponseMapper) authFailed(callback provider.GatewayResponse, txType provider.TransactionType, model provider.SecurityModel, order provider.Order, security provider.SecurityFields) provider.Result {
	res := provider.NewResult(order, txType, model, callback)
	if id := provider.Str(callback, "orderId"); id != "" {
		res.OrderID = id
	}
	res.Security = security
	res.StatusDetail = provider.Detail3DAuthFailed
	res.ErrorCode = provider.Str(callback, "responseCode")
	if res.ErrorCode == "" || res.ErrorCode == gatewayApproved {
		res.ErrorCode = security.MdStatus
	}
	res.ErrorMessage = provider.Str(callback, "responseMessage")
	if res.ErrorMessage == "" {
		res.ErrorMessage = security.MdErrorMessage
	}
	return res
}

func (m *ResponseMapper) Map3DPaymentData(callback, provision provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	security := m.security(callback)
	if provision == nil || !m.authenticated(callback, security) {
		return m.authFailed(callback, txType, provider.Model3DSecure, order, security)
	}
	res := m.mapBase(provision, txType, order)
	res.PaymentModel = provider.Model3DSecure
	res.Security = security
	return res
}

// mapCallback maps a settled 3d_pay or 3d_pay_hosting callback, whose
// fields are flat.
func (m *ResponseMapper) mapCallback(callback provider.GatewayResponse, txType provider.TransactionType, model provider.SecurityModel, order provider.Order) provider.Result {
	security := m.security(callback)
	if !m.authenticated(callback, security) {
		return m.authFailed(callback, txType, model, order, security)
	}
	res := provider.NewResult(order, txType, model, callback)
	res.Security = security
	if id := provider.Str(callback, "orderId"); id != "" {
		res.OrderID = id
	}
	res.AuthCode = provider.Str(callback, "authCode")
	res.RefRetNum = provider.Str(callback, "rrn")
	res.BatchNum = provider.Str(callback, "batchNumber")
	res.ProcReturnCode = provider.Str(callback, "hostResponseCode")
	if amount, err := m.values.ParseAmount(provider.Str(callback, "amount")); err == nil && !amount.IsZero() {
		res.Amount = amount
	}
	if t, err := m.values.ParseDateTime(provider.Str(callback, "txnDateTime"), ""); err == nil {
		res.TransactionTime = &t
	}
	res.Status, res.StatusDetail = classify(provider.Str(callback, "responseCode"), res.ProcReturnCode)
	if res.Status != provider.StatusApproved {
		res.ErrorCode = errorCode(provider.Str(callback, "responseCode"), res.ProcReturnCode)
		res.ErrorMessage = errorMessage(callback)
	}
	return res
}

func (m *ResponseMapper) Map3DPayResponseData(callback provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	return m.mapCallback(callback, txType, provider.Model3DPay, order)
}

func (m *ResponseMapper) Map3DHostResponseData(callback provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	return m.mapCallback(callback, txType, provider.Model3DPayHosting, order)
}

func (m *ResponseMapper) MapRefundResponse(raw provider.GatewayResponse) provider.Result {
	return m.mapBase(raw, provider.TxTypeRefund, provider.Order{})
}

func (m *ResponseMapper) MapCancelResponse(raw provider.GatewayResponse) provider.Result {
	return m.mapBase(raw, provider.TxTypeCancel, provider.Order{})
}

// MapStatusResponse is total like every mapper, even though Akbank has no
// status inquiry to produce its input.
func (m *ResponseMapper) MapStatusResponse(raw provider.GatewayResponse) provider.Result {
	return m.mapBase(raw, provider.TxTypeStatus, provider.Order{})
}

var txnStatuses = map[string]string{
	"N": provider.OrderStatusPaymentCompleted,
	"V": provider.OrderStatusCanceled,
	"R": provider.OrderStatusFullyRefunded,
	"P": provider.OrderStatusPreAuthCompleted,
}

func (m *ResponseMapper) transactions(raw provider.GatewayResponse) []provider.Result {
	var out []provider.Result
	for _, txn := range provider.List(raw, "txnDetailList") {
		tx := provider.Result{
			OrderID:         provider.Str(txn, "orderId"),
			TransactionType: m.values.TxTypeFromCode(provider.Str(txn, "txnCode")),
			AuthCode:        provider.Str(txn, "authCode"),
			RefRetNum:       provider.Str(txn, "rrn"),
			BatchNum:        provider.Str(txn, "batchNumber"),
			ProcReturnCode:  provider.Str(txn, "hostResponseCode"),
			OrderStatus:     txnStatuses[provider.Str(txn, "txnStatus")],
			Currency:        m.values.CurrencyFromCode(provider.Str(txn, "currencyCode")),
		}
		tx.Status, tx.StatusDetail = classify(provider.Str(txn, "responseCode"), tx.ProcReturnCode)
		if tx.Status != provider.StatusApproved {
			tx.ErrorCode = errorCode(provider.Str(txn, "responseCode"), tx.ProcReturnCode)
			tx.ErrorMessage = errorMessage(txn)
		}
		if amount, err := m.values.ParseAmount(provider.Str(txn, "amount")); err == nil {
			tx.Amount = amount
		}
		if t, err := m.values.ParseDateTime(provider.Str(txn, "txnDateTime"), ""); err == nil {
			tx.TransactionTime = &t
		}
		out = append(out, tx)
	}
	return out
}

func (m *ResponseMapper) MapHistoryResponse(raw provider.GatewayResponse) provider.Result {
	res := m.mapBase(raw, provider.TxTypeHistory, provider.Order{})
	res.Transactions = m.transactions(raw)
	return res
}

func (m *ResponseMapper) MapOrderHistoryResponse(raw provider.GatewayResponse) provider.Result {
	res := m.mapBase(raw, provider.TxTypeOrderHistory, provider.Order{})
	res.Transactions = m.transactions(raw)
	if res.OrderID == "" && len(res.Transactions) > 0 {
		res.OrderID = res.Transactions[0].OrderID
	}
	return res
}

func (m *ResponseMapper) ExtractMdStatus(callback provider.GatewayResponse) string {
	return provider.Str(callback, "mdStatus")
}

func (m *ResponseMapper) Is3DAuthSuccess(mdStatus string) bool {
	return m.md.Authenticated(mdStatus)
}
