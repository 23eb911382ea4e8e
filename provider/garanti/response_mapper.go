package garanti

import (
	"strings"

	"github.com/mstgnz/gopos/provider"
)

const responseApproved = "Approved"

// ResponseMapper maps GVPSResponse documents and gt3dengine callbacks.
type ResponseMapper struct {
	values provider.ValueMapper
	codes  provider.CodeTable
	md     provider.MdStatusTable
}

func (m *ResponseMapper) mapBase(raw provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	res := provider.NewResult(order, txType, "", raw)
	if id := provider.Str(raw, "Order", "OrderID"); id != "" {
		res.OrderID = id
	}
	res.RemoteOrderID = provider.Str(raw, "Order", "GroupID")
	res.AuthCode = provider.Str(raw, "Transaction", "AuthCode")
	res.RefRetNum = provider.Str(raw, "Transaction", "RetrefNum")
	res.BatchNum = provider.Str(raw, "Transaction", "BatchNum")
	res.TransactionID = provider.Str(raw, "Transaction", "SequenceNum")
	if t, err := m.values.ParseDateTime(provider.Str(raw, "Transaction", "ProvDate"), "response"); err == nil {
		res.TransactionTime = &t
	}

	response := provider.Map(raw, "Transaction", "Response")
	res.ProcReturnCode = provider.Str(response, "ReasonCode")
	status, detail := m.codes.Classify(res.ProcReturnCode)
	if status == provider.StatusApproved && provider.Str(response, "Message") != responseApproved {
		status, detail = provider.StatusDeclined, provider.DetailGeneralError
	}
	res.Status, res.StatusDetail = status, detail
	if status != provider.StatusApproved {
		res.ErrorCode = res.ProcReturnCode
		res.ErrorMessage = joinMessages(provider.Str(response, "ErrorMsg"), provider.Str(response, "SysErrMsg"))
	}
	return res
}

func joinMessages(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
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
		MdErrorMessage:      provider.Str(callback, "mderrormessage"),
		ECI:                 provider.Str(callback, "eci"),
		CAVV:                provider.Str(callback, "cavv"),
		TxStatus:            provider.Str(callback, "txnstatus"),
		TransactionSecurity: m.md.Label(md),
	}
}

func (m *ResponseMapper) authFailed(callback provider.GatewayResponse, txType provider.TransactionType, model provider.SecurityModel, order provider.Order, security provider.SecurityFields) provider.Result {
	res := provider.NewResult(order, txType, model, callback)
	if id := provider.Str(callback, "oid"); id != "" {
		res.OrderID = id
	}
	res.Security = security
	res.StatusDetail = provider.Detail3DAuthFailed
	res.ErrorCode = security.MdStatus
	res.ErrorMessage = security.MdErrorMessage
	return res
}

func (m *ResponseMapper) Map3DPaymentData(callback, provision provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	security := m.security(callback)
	if provision == nil || !m.md.Authenticated(security.MdStatus) {
		return m.authFailed(callback, txType, provider.Model3DSecure, order, security)
	}
	res := m.mapBase(provision, txType, order)
	res.PaymentModel = provider.Model3DSecure
	res.Security = security
	return res
}

// mapCallback maps a callback that carries the settlement in its lowercase
// fields.
func (m *ResponseMapper) mapCallback(callback provider.GatewayResponse, txType provider.TransactionType, model provider.SecurityModel, order provider.Order) provider.Result {
	security := m.security(callback)
	if !m.md.Authenticated(security.MdStatus) {
		return m.authFailed(callback, txType, model, order, security)
	}
	res := provider.NewResult(order, txType, model, callback)
	res.Security = security
	if id := provider.Str(callback, "oid"); id != "" {
		res.OrderID = id
	}
	res.AuthCode = provider.Str(callback, "authcode")
	res.RefRetNum = provider.Str(callback, "hostrefnum")
	res.ProcReturnCode = provider.Str(callback, "procreturncode")
	if amount, err := m.values.ParseAmount(provider.Str(callback, "txnamount")); err == nil && !amount.IsZero() {
		res.Amount = amount
	}

	status, detail := m.codes.Classify(res.ProcReturnCode)
	if status == provider.StatusApproved && provider.Str(callback, "response") != responseApproved {
		status, detail = provider.StatusDeclined, provider.DetailGeneralError
	}
	res.Status, res.StatusDetail = status, detail
	if status != provider.StatusApproved {
		res.ErrorCode = res.ProcReturnCode
		res.ErrorMessage = joinMessages(provider.Str(callback, "errmsg"), provider.Str(callback, "mderrormessage"))
	}
	return res
}

func (m *ResponseMapper) Map3DPayResponseData(callback provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	return m.mapCallback(callback, txType, provider.Model3DPay, order)
}

func (m *ResponseMapper) Map3DHostResponseData(callback provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	return m.mapCallback(callback, txType, provider.Model3DHost, order)
}

func (m *ResponseMapper) MapRefundResponse(raw provider.GatewayResponse) provider.Result {
	return m.mapBase(raw, provider.TxTypeRefund, provider.Order{})
}

func (m *ResponseMapper) MapCancelResponse(raw provider.GatewayResponse) provider.Result {
	return m.mapBase(raw, provider.TxTypeCancel, provider.Order{})
}

var orderStatuses = map[string]string{
	"APPROVED":        provider.OrderStatusPaymentCompleted,
	"WAITINGPOSTAUTH": provider.OrderStatusPreAuthCompleted,
	"PREAUTH":         provider.OrderStatusPreAuthCompleted,
	"VOID":            provider.OrderStatusCanceled,
	"REFUNDED":        provider.OrderStatusFullyRefunded,
	"PARTIALREFUNDED": provider.OrderStatusPartiallyRefunded,
	"DECLINED":        provider.OrderStatusError,
}

func (m *ResponseMapper) MapStatusResponse(raw provider.GatewayResponse) provider.Result {
	res := m.mapBase(raw, provider.TxTypeStatus, provider.Order{})
	inq := provider.Map(raw, "Order", "OrderInqResult")
	if inq == nil {
		return res
	}
	if code := provider.Str(inq, "AuthCode"); code != "" {
		res.AuthCode = code
	}
	if ref := provider.Str(inq, "RetrefNum"); ref != "" {
		res.RefRetNum = ref
	}
	if amount, err := m.values.ParseAmount(provider.Str(inq, "AuthAmount")); err == nil && !amount.IsZero() {
		res.Amount = amount
	}
	if amount, err := m.values.ParseAmount(provider.Str(inq, "PreAuthAmount")); err == nil && res.Amount.IsZero() {
		res.Amount = amount
	}
	res.OrderStatus = orderStatuses[strings.ToUpper(provider.Str(inq, "Status"))]
	return res
}

// transactions maps an OrderTxnList. A lone OrderTxn decodes as an object
// and is handled by provider.List.
func (m *ResponseMapper) transactions(list map[string]any, orderID string) []provider.Result {
	var out []provider.Result
	for _, txn := range provider.List(list, "OrderTxn") {
		tx := provider.Result{
			OrderID:         orderID,
			TransactionType: m.values.TxTypeFromCode(provider.Str(txn, "Type")),
			AuthCode:        provider.Str(txn, "AuthCode"),
			RefRetNum:       provider.Str(txn, "RetrefNum"),
			BatchNum:        provider.Str(txn, "BatchNum"),
			ProcReturnCode:  provider.Str(txn, "ReasonCode"),
			OrderStatus:     orderStatuses[strings.ToUpper(provider.Str(txn, "Status"))],
			Currency:        m.values.CurrencyFromCode(provider.Str(txn, "CurrencyCode")),
		}
		if id := provider.Str(txn, "OrderID"); id != "" {
			tx.OrderID = id
		}
		tx.Status, tx.StatusDetail = m.codes.Classify(tx.ProcReturnCode)
		if tx.Status != provider.StatusApproved {
			tx.ErrorMessage = joinMessages(provider.Str(txn, "ErrorMsg"), provider.Str(txn, "SysErrMsg"))
		}
		if amount, err := m.values.ParseAmount(provider.Str(txn, "AuthAmount")); err == nil {
			tx.Amount = amount
		}
		if t, err := m.values.ParseDateTime(provider.Str(txn, "ProvDate"), "response"); err == nil {
			tx.TransactionTime = &t
		}
		out = append(out, tx)
	}
	return out
}

func (m *ResponseMapper) MapHistoryResponse(raw provider.GatewayResponse) provider.Result {
	res := m.mapBase(raw, provider.TxTypeHistory, provider.Order{})
	res.Transactions = m.transactions(provider.Map(raw, "Order", "OrderListInqResult", "OrderTxnList"), "")
	return res
}

func (m *ResponseMapper) MapOrderHistoryResponse(raw provider.GatewayResponse) provider.Result {
	res := m.mapBase(raw, provider.TxTypeOrderHistory, provider.Order{})
	res.Transactions = m.transactions(provider.Map(raw, "Order", "OrderHistInqResult", "OrderTxnList"), res.OrderID)
	return res
}

func (m *ResponseMapper) ExtractMdStatus(callback provider.GatewayResponse) string {
	return provider.Str(callback, "mdstatus")
}

func (m *ResponseMapper) Is3DAuthSuccess(mdStatus string) bool {
	return m.md.Authenticated(mdStatus)
}
