package kuveytpos

import (
	"strings"

	"github.com/mstgnz/gopos/provider"
)

// ResponseMapper maps VPosTransactionResponseContract documents, the ACS
// enrollment page and SOAP results.
type ResponseMapper struct {
	values provider.ValueMapper
}

// Kuveyt has no mdStatus. The callback ResponseCode plays its role and
// only "00" means the card holder was authenticated.
func (m *ResponseMapper) ExtractMdStatus(callback provider.GatewayResponse) string {
	return provider.Str(callback, "ResponseCode")
}

func (m *ResponseMapper) Is3DAuthSuccess(mdStatus string) bool {
	return mdStatus == codeApproved
}

func (m *ResponseMapper) security(callback provider.GatewayResponse) provider.SecurityFields {
	code := m.ExtractMdStatus(callback)
	sec := provider.SecurityFields{MdStatus: code, TransactionSecurity: provider.SecurityAuthRejected}
	if m.Is3DAuthSuccess(code) {
		sec.TransactionSecurity = provider.SecurityFull3D
	} else {
		sec.MdErrorMessage = provider.Str(callback, "ResponseMessage")
	}
	return sec
}

// MapEnrollmentResponse returns the ACS form when the bank answered with
// one. Any other answer means the card cannot be authenticated.
func (m *ResponseMapper) MapEnrollmentResponse(raw provider.GatewayResponse, order provider.Order) (*provider.RedirectForm, provider.Result) {
	res := provider.NewResult(order, provider.TxTypePay, provider.Model3DSecure, raw)
	if form := provider.FormInputs(raw); form != nil {
		res.Status, res.StatusDetail = provider.StatusWaiting, ""
		return form, res
	}
	res.StatusDetail = provider.DetailNotEnrolled
	res.ErrorCode = provider.Str(raw, "ResponseCode")
	res.ErrorMessage = provider.Str(raw, "ResponseMessage")
	return nil, res
}

func (m *ResponseMapper) mapContract(raw provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	res := provider.NewResult(order, txType, "", raw)
	if id := provider.Str(raw, "MerchantOrderId"); id != "" {
		res.OrderID = id
	}
	res.RemoteOrderID = provider.Str(raw, "OrderId")
	res.AuthCode = provider.Str(raw, "ProvisionNumber")
	res.RefRetNum = provider.Str(raw, "RRN")
	res.TransactionID = provider.Str(raw, "Stan")
	res.ProcReturnCode = provider.Str(raw, "ResponseCode")
	if amount, err := m.values.ParseAmount(provider.Str(raw, "VPosMessage", "Amount")); err == nil && !amount.IsZero() {
		res.Amount = amount
	}
	if t, err := m.values.ParseDateTime(provider.Str(raw, "TransactionTime"), "response"); err == nil {
		res.TransactionTime = &t
	}

	res.Status, res.StatusDetail = codeTable.Classify(res.ProcReturnCode)
	if res.Status != provider.StatusApproved {
		res.ErrorCode = res.ProcReturnCode
		res.ErrorMessage = provider.Str(raw, "ResponseMessage")
	}
	return res
}

func (m *ResponseMapper) MapPaymentResponse(raw provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	res := m.mapContract(raw, txType, order)
	res.PaymentModel = provider.ModelNonSecure
	return res
}

func (m *ResponseMapper) Map3DPaymentData(callback, provision provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	security := m.security(callback)
	if provision == nil || !m.Is3DAuthSuccess(security.MdStatus) {
		res := provider.NewResult(order, txType, provider.Model3DSecure, callback)
		if id := provider.Str(callback, "MerchantOrderId"); id != "" {
			res.OrderID = id
		}
		res.Security = security
		res.StatusDetail = provider.Detail3DAuthFailed
		res.ErrorCode = security.MdStatus
		res.ErrorMessage = security.MdErrorMessage
		return res
	}
	res := m.mapContract(provision, txType, order)
	res.PaymentModel = provider.Model3DSecure
	res.Security = security
	return res
}

// Map3DPayResponseData and Map3DHostResponseData are total even though the
// gateway offers neither model: the callback is mapped as a contract.
func (m *ResponseMapper) Map3DPayResponseData(callback provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	res := m.mapContract(callback, txType, order)
	res.PaymentModel = provider.Model3DPay
	res.Security = m.security(callback)
	return res
}

func (m *ResponseMapper) Map3DHostResponseData(callback provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	res := m.mapContract(callback, txType, order)
	res.PaymentModel = provider.Model3DHost
	res.Security = m.security(callback)
	return res
}

// soapResult finds <op>Response/<op>Result for the first op present.
func soapResult(raw provider.GatewayResponse, ops ...string) map[string]any {
	for _, op := range ops {
		if r := provider.Map(raw, op+"Response", op+"Result"); r != nil {
			return r
		}
	}
	return nil
}

// mapSoap maps a SOAP result. Success=false carries its errors under
// Results/Result; otherwise Value holds a transaction contract.
func (m *ResponseMapper) mapSoap(raw provider.GatewayResponse, txType provider.TransactionType, ops ...string) provider.Result {
	res := provider.NewResult(provider.Order{}, txType, "", raw)
	result := soapResult(raw, ops...)
	if result == nil {
		res.ErrorMessage = "unexpected SOAP response"
		return res
	}
	if !strings.EqualFold(provider.Str(result, "Success"), "true") {
		errs := provider.List(result, "Results", "Result")
		if len(errs) > 0 {
			res.ErrorCode = provider.Str(errs[0], "ErrorCode")
			res.ErrorMessage = provider.Str(errs[0], "ErrorMessage")
			_, res.StatusDetail = codeTable.Classify(res.ErrorCode)
		}
		return res
	}

	value := provider.Map(result, "Value")
	if value == nil {
		return res
	}
	contract := m.mapContract(value, txType, provider.Order{})
	contract.Extra = res.Extra
	return contract
}

func (m *ResponseMapper) MapCancelResponse(raw provider.GatewayResponse) provider.Result {
	return m.mapSoap(raw, provider.TxTypeCancel, opSaleReversal)
}

func (m *ResponseMapper) MapRefundResponse(raw provider.GatewayResponse) provider.Result {
	txType := provider.TxTypeRefund
	if soapResult(raw, opPartialDrawback) != nil {
		txType = provider.TxTypeRefundPartial
	}
	return m.mapSoap(raw, txType, opDrawBack, opPartialDrawback)
}

var orderStatuses = map[string]string{
	"1": provider.OrderStatusPaymentCompleted,
	"4": provider.OrderStatusFullyRefunded,
	"5": provider.OrderStatusPartiallyRefunded,
	"6": provider.OrderStatusCanceled,
}

// MapStatusResponse reads the first OrderContract of GetMerchantOrderDetail.
func (m *ResponseMapper) MapStatusResponse(raw provider.GatewayResponse) provider.Result {
	res := provider.NewResult(provider.Order{}, provider.TxTypeStatus, "", raw)
	result := soapResult(raw, opOrderDetail)
	if result == nil {
		res.ErrorMessage = "unexpected SOAP response"
		return res
	}
	if !strings.EqualFold(provider.Str(result, "Success"), "true") {
		if errs := provider.List(result, "Results", "Result"); len(errs) > 0 {
			res.ErrorCode = provider.Str(errs[0], "ErrorCode")
			res.ErrorMessage = provider.Str(errs[0], "ErrorMessage")
		}
		return res
	}
	contracts := provider.List(result, "Value", "OrderContract")
	if len(contracts) == 0 {
		res.StatusDetail = provider.DetailTransactionNotFound
		return res
	}

	c := contracts[0]
	res.OrderID = provider.Str(c, "MerchantOrderId")
	res.RemoteOrderID = provider.Str(c, "OrderId")
	res.AuthCode = provider.Str(c, "ProvNumber")
	res.RefRetNum = provider.Str(c, "RRN")
	res.TransactionID = provider.Str(c, "Stan")
	res.ProcReturnCode = provider.Str(c, "ResponseCode")
	res.Currency = m.values.CurrencyFromCode(padCurrency(provider.Str(c, "FEC")))
	if amount, err := m.values.ParseAmount(provider.Str(c, "FirstAmount")); err == nil {
		res.Amount = amount
	}
	if t, err := m.values.ParseDateTime(provider.Str(c, "OrderDate"), "response"); err == nil {
		res.TransactionTime = &t
	}
	res.OrderStatus = orderStatuses[provider.Str(c, "LastOrderStatus")]
	res.Status, res.StatusDetail = codeTable.Classify(res.ProcReturnCode)
	if res.Status != provider.StatusApproved {
		res.ErrorCode = res.ProcReturnCode
		res.ErrorMessage = provider.Str(c, "ResponseExplain")
	}
	return res
}

// padCurrency restores the leading zero SOAP responses drop ("949").
func padCurrency(code string) string {
	if code != "" && len(code) < 4 {
		return strings.Repeat("0", 4-len(code)) + code
	}
	return code
}

func (m *ResponseMapper) MapHistoryResponse(raw provider.GatewayResponse) provider.Result {
	res := provider.NewResult(provider.Order{}, provider.TxTypeHistory, "", raw)
	res.ErrorMessage = "history is not offered by kuveytpos"
	return res
}

func (m *ResponseMapper) MapOrderHistoryResponse(raw provider.GatewayResponse) provider.Result {
	res := provider.NewResult(provider.Order{}, provider.TxTypeOrderHistory, "", raw)
	res.ErrorMessage = "order history is not offered by kuveytpos"
	return res
}
