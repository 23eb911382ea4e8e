package estpos

import (
	"strconv"
	"strings"
	"time"

	"github.com/mstgnz/gopos/provider"
)

const (
	responseApproved = "Approved"
	trxDateLayout    = "20060102 15:04:05"
	historyLayout    = "2006-01-02 15:04:05.000"
)

// ResponseMapper maps CC5Response documents and 3-D callbacks.
type ResponseMapper struct {
	values provider.ValueMapper
	codes  provider.CodeTable
	md     provider.MdStatusTable
}

var minorUnits = provider.ValueMapper{Gateway: "estpos", Amount: provider.AmountMinorUnits}

func (m *ResponseMapper) mapBase(raw provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	res := provider.NewResult(order, txType, "", raw)
	if id := provider.Str(raw, "OrderId"); id != "" {
		res.OrderID = id
	}
	res.RemoteOrderID = provider.Str(raw, "GroupId")
	res.TransactionID = provider.Str(raw, "TransId")
	res.AuthCode = provider.Str(raw, "AuthCode")
	res.RefRetNum = provider.Str(raw, "HostRefNum")
	res.ProcReturnCode = provider.Str(raw, "ProcReturnCode")
	if t, err := time.ParseInLocation(trxDateLayout, provider.Str(raw, "Extra", "TRXDATE"), time.Local); err == nil {
		res.TransactionTime = &t
	}

	status, detail := m.codes.Classify(res.ProcReturnCode)
	if status == provider.StatusApproved && provider.Str(raw, "Response") != responseApproved {
		status, detail = provider.StatusDeclined, provider.DetailGeneralError
	}
	res.Status, res.StatusDetail = status, detail
	if status != provider.StatusApproved {
		res.ErrorCode = provider.Str(raw, "Extra", "ERRORCODE")
		if res.ErrorCode == "" {
			res.ErrorCode = res.ProcReturnCode
		}
		res.ErrorMessage = provider.Str(raw, "ErrMsg")
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
		MdErrorMessage:      provider.Str(callback, "mdErrorMsg"),
		ECI:                 provider.Str(callback, "eci"),
		CAVV:                provider.Str(callback, "cavv"),
		TxStatus:            provider.Str(callback, "txstatus"),
		TransactionSecurity: m.md.Label(md),
	}
}

func (m *ResponseMapper) Map3DPaymentData(callback, provision provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	security := m.security(callback)
	if provision == nil || !m.md.Authenticated(security.MdStatus) {
		res := provider.NewResult(order, txType, provider.Model3DSecure, callback)
		res.Security = security
		res.StatusDetail = provider.Detail3DAuthFailed
		res.ErrorCode = security.MdStatus
		res.ErrorMessage = security.MdErrorMessage
		return res
	}
	res := m.mapBase(provision, txType, order)
	res.PaymentModel = provider.Model3DSecure
	res.Security = security
	return res
}

// Map3DPayResponseData maps a callback that already carries the
// settlement. Approval needs both the 3-D result and the payment code.
func (m *ResponseMapper) Map3DPayResponseData(callback provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	security := m.security(callback)
	res := m.mapBase(callback, txType, order)
	if id := provider.Str(callback, "oid"); id != "" {
		res.OrderID = id
	}
	if t, err := time.ParseInLocation(trxDateLayout, provider.Str(callback, "EXTRA.TRXDATE"), time.Local); err == nil {
		res.TransactionTime = &t
	}
	res.PaymentModel = provider.Model3DPay
	res.Security = security
	if !m.md.Authenticated(security.MdStatus) {
		res.Status = provider.StatusDeclined
		res.StatusDetail = provider.Detail3DAuthFailed
		res.ErrorCode = security.MdStatus
		res.ErrorMessage = security.MdErrorMessage
	}
	return res
}

// Map3DHostResponseData maps a 3d_host callback. When the bank did not
// settle (no ProcReturnCode) only a fully or half authenticated card
// counts as approved.
func (m *ResponseMapper) Map3DHostResponseData(callback provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	if provider.Str(callback, "ProcReturnCode") != "" {
		res := m.Map3DPayResponseData(callback, txType, order)
		res.PaymentModel = provider.Model3DHost
		return res
	}
	security := m.security(callback)
	res := provider.NewResult(order, txType, provider.Model3DHost, callback)
	res.Security = security
	if id := provider.Str(callback, "oid"); id != "" {
		res.OrderID = id
	}
	if m.md.Verified(security.MdStatus) {
		res.Status, res.StatusDetail = provider.StatusApproved, provider.DetailApproved
	} else {
		res.StatusDetail = provider.Detail3DAuthFailed
		res.ErrorCode = security.MdStatus
		res.ErrorMessage = security.MdErrorMessage
	}
	return res
}

func (m *ResponseMapper) MapRefundResponse(raw provider.GatewayResponse) provider.Result {
	return m.mapBase(raw, provider.TxTypeRefund, provider.Order{})
}

func (m *ResponseMapper) MapCancelResponse(raw provider.GatewayResponse) provider.Result {
	return m.mapBase(raw, provider.TxTypeCancel, provider.Order{})
}

var orderStatuses = map[string]string{
	"C":  provider.OrderStatusPaymentCompleted,
	"S":  provider.OrderStatusPaymentCompleted,
	"PN": provider.OrderStatusPaymentPending,
	"V":  provider.OrderStatusCanceled,
	"D":  provider.OrderStatusError,
}

func (m *ResponseMapper) MapStatusResponse(raw provider.GatewayResponse) provider.Result {
	res := m.mapBase(raw, provider.TxTypeStatus, provider.Order{})
	extra := provider.Map(raw, "Extra")
	if extra == nil {
		return res
	}
	if res.OrderID == "" {
		res.OrderID = provider.Str(extra, "ORD_ID")
	}
	res.AuthCode = provider.Str(extra, "AUTH_CODE")
	res.RefRetNum = provider.Str(extra, "HOST_REF_NUM")
	res.TransactionID = provider.Str(extra, "TRANS_ID")
	if amount, err := minorUnits.ParseAmount(provider.Str(extra, "ORIG_TRANS_AMT")); err == nil {
		res.Amount = amount
	}
	res.OrderStatus = orderStatuses[provider.Str(extra, "TRANS_STAT")]
	if provider.Str(extra, "CHARGE_TYPE_CD") == "C" {
		res.OrderStatus = provider.OrderStatusFullyRefunded
	}
	return res
}

func (m *ResponseMapper) MapHistoryResponse(raw provider.GatewayResponse) provider.Result {
	res := provider.NewResult(provider.Order{}, provider.TxTypeHistory, "", raw)
	res.ErrorMessage = "date range history is not offered by EST gateways"
	return res
}

var chargeTypes = map[string]provider.TransactionType{
	"S":  provider.TxTypePay,
	"C":  provider.TxTypeRefund,
	"PA": provider.TxTypePreAuth,
	"PS": provider.TxTypePostAuth,
	"V":  provider.TxTypeCancel,
}

// MapOrderHistoryResponse reads Extra.TRX1..TRXn. Each entry is a tab
// separated record: charge type, status, amount, captured amount,
// transaction time, capture time, auth code, host ref num, return code,
// transaction id.
func (m *ResponseMapper) MapOrderHistoryResponse(raw provider.GatewayResponse) provider.Result {
	res := m.mapBase(raw, provider.TxTypeOrderHistory, provider.Order{})
	extra := provider.Map(raw, "Extra")
	count, _ := strconv.Atoi(provider.Str(extra, "TRXCOUNT"))
	for i := 1; i <= count; i++ {
		fields := strings.Split(provider.Str(extra, "TRX"+strconv.Itoa(i)), "\t")
		if len(fields) < 10 {
			continue
		}
		tx := provider.Result{
			OrderID:         res.OrderID,
			TransactionType: chargeTypes[fields[0]],
			OrderStatus:     orderStatuses[fields[1]],
			AuthCode:        fields[6],
			RefRetNum:       fields[7],
			ProcReturnCode:  fields[8],
			TransactionID:   fields[9],
		}
		tx.Status, tx.StatusDetail = m.codes.Classify(fields[8])
		if amount, err := minorUnits.ParseAmount(fields[2]); err == nil {
			tx.Amount = amount
		}
		if t, err := time.ParseInLocation(historyLayout, fields[4], time.Local); err == nil {
			tx.TransactionTime = &t
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res
}

func (m *ResponseMapper) ExtractMdStatus(callback provider.GatewayResponse) string {
	return provider.Str(callback, "mdStatus")
}

func (m *ResponseMapper) Is3DAuthSuccess(mdStatus string) bool {
	return m.md.Authenticated(mdStatus)
}
