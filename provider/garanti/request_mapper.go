package garanti

import (
	"strconv"
	"time"

	"github.com/mstgnz/gopos/provider"
)

// Garanti requires an amount on inquiry requests; 1.00 is the documented dummy.
const inquiryAmount = "100"

var recurringFrequency = map[string]string{"DAY": "D", "WEEK": "W", "MONTH": "M", "YEAR": "Y"}

// RequestMapper builds GVPSRequest documents and 3-D form data.
type RequestMapper struct {
	values provider.ValueMapper
	now    func() time.Time
}

func (m *RequestMapper) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

func mode(acc *provider.Account) string {
	if acc.TestMode {
		return "TEST"
	}
	return "PROD"
}

// user returns the provisioning user and password. Cancel and refund run
// under the separate refund user when one is configured.
func user(acc *provider.Account, refund bool) (string, string) {
	if refund && acc.RefundUsername != "" {
		return acc.RefundUsername, acc.RefundPassword
	}
	return acc.Username, acc.Password
}

func (m *RequestMapper) base(acc *provider.Account, refund bool) provider.GatewayRequest {
	username, _ := user(acc, refund)
	return provider.GatewayRequest{
		"Mode":    mode(acc),
		"Version": apiVersion,
		"Terminal": map[string]any{
			"ProvUserID": username,
			"HashData":   "",
			"UserID":     username,
			"ID":         acc.TerminalID,
			"MerchantID": acc.MerchantID,
		},
	}
}

func (m *RequestMapper) transaction(txCode string, order provider.Order, presentCode string) map[string]any {
	return map[string]any{
		"Type":                  txCode,
		"InstallmentCnt":        m.values.MapInstallment(order.Installment),
		"Amount":                m.values.FormatAmount(order.Amount),
		"CurrencyCode":          m.values.MapCurrency(order.Currency),
		"CardholderPresentCode": presentCode,
		"MotoInd":               "N",
	}
}

// sign runs the pre-sign hook and then fills Terminal.HashData from the
// final request values.
func (m *RequestMapper) sign(acc *provider.Account, txType provider.TransactionType, refund bool, req provider.GatewayRequest) (provider.GatewayRequest, error) {
	if err := provider.ApplyPreSign(acc, txType, req); err != nil {
		return nil, err
	}
	_, password := user(acc, refund)
	hashedPwd, err := hashedPassword(password, acc.TerminalID)
	if err != nil {
		return nil, err
	}
	hash, err := requestHash.Sign(hashedPwd,
		provider.Str(req, "Order", "OrderID"),
		acc.TerminalID,
		provider.Str(req, "Card", "Number"),
		provider.Str(req, "Transaction", "Amount"),
		provider.Str(req, "Transaction", "CurrencyCode"),
	)
	if err != nil {
		return nil, err
	}
	if terminal, ok := req["Terminal"].(map[string]any); ok {
		terminal["HashData"] = hash
	}
	return req, nil
}

func emptyCard() map[string]any {
	return map[string]any{"Number": "", "ExpireDate": "", "CVV2": ""}
}

func customer(order provider.Order) map[string]any {
	return map[string]any{"IPAddress": order.IP, "EmailAddress": order.Email}
}

func (m *RequestMapper) CreatePaymentRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType, card *provider.CreditCard) (provider.GatewayRequest, error) {
	if card == nil {
		return nil, &provider.ValidationError{Field: "card", Reason: "required by garanti"}
	}
	code, err := m.values.MapTxType(txType, provider.ModelNonSecure)
	if err != nil {
		return nil, err
	}

	req := m.base(acc, false)
	req["Customer"] = customer(order)
	req["Card"] = map[string]any{
		"Number":     card.Number,
		"ExpireDate": card.ExpMonth() + card.ExpYear2(),
		"CVV2":       card.CVV,
	}
	ord := map[string]any{"OrderID": order.ID, "GroupID": ""}
	if r := order.Recurring; r != nil {
		ord["Recurring"] = map[string]any{
			"TotalPaymentNum":   strconv.Itoa(r.InstallmentCount),
			"FrequencyType":     recurringFrequency[r.FrequencyType],
			"FrequencyInterval": strconv.Itoa(r.Frequency),
			"Type":              "R",
			"StartDate":         "",
		}
	}
	req["Order"] = ord
	req["Transaction"] = m.transaction(code, order, "0")
	return m.sign(acc, txType, false, req)
}

func (m *RequestMapper) CreatePostAuthRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(provider.TxTypePostAuth, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	req := m.base(acc, false)
	req["Customer"] = customer(order)
	req["Card"] = emptyCard()
	req["Order"] = map[string]any{"OrderID": order.ID}
	tx := m.transaction(code, order, "0")
	tx["OriginalRetrefNum"] = order.RefRetNum
	req["Transaction"] = tx
	return m.sign(acc, provider.TxTypePostAuth, false, req)
}

func (m *RequestMapper) Create3DEnrollmentCheckRequestData(_ *provider.Account, _ provider.Order, _ provider.SecurityModel, _ provider.TransactionType, _ *provider.CreditCard) (provider.GatewayRequest, error) {
	return nil, provider.NotImplemented(gatewayName, "3D enrollment check")
}

func (m *RequestMapper) Create3DPaymentRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType, callback provider.GatewayResponse) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(txType, provider.Model3DSecure)
	if err != nil {
		return nil, err
	}
	req := m.base(acc, false)
	req["Customer"] = customer(order)
	req["Card"] = emptyCard()
	req["Order"] = map[string]any{"OrderID": order.ID, "GroupID": ""}
	tx := m.transaction(code, order, "13")
	tx["Secure3D"] = map[string]any{
		"AuthenticationCode": provider.Str(callback, "cavv"),
		"SecurityLevel":      provider.Str(callback, "eci"),
		"TxnID":              provider.Str(callback, "xid"),
		"Md":                 provider.Str(callback, "md"),
	}
	req["Transaction"] = tx
	return m.sign(acc, txType, false, req)
}

// Create3DFormData builds the gt3dengine form. secure3dhash covers terminal,
// order, amount, currency, URLs, type, installment, store key and the
// hashed password, in that order.
func (m *RequestMapper) Create3DFormData(acc *provider.Account, order provider.Order, model provider.SecurityModel, txType provider.TransactionType, gatewayURL string, card *provider.CreditCard) (*provider.RedirectForm, error) {
	code, err := m.values.MapTxType(txType, model)
	if err != nil {
		return nil, err
	}
	level, err := m.values.MapSecureType(model)
	if err != nil {
		return nil, err
	}

	lang := order.Lang
	if lang == "" {
		lang = acc.Lang
	}
	inputs := provider.GatewayRequest{
		"secure3dsecuritylevel": level,
		"mode":                  mode(acc),
		"apiversion":            apiVersion,
		"terminalprovuserid":    acc.Username,
		"terminaluserid":        acc.Username,
		"terminalmerchantid":    acc.MerchantID,
		"terminalid":            acc.TerminalID,
		"txntype":               code,
		"txnamount":             m.values.FormatAmount(order.Amount),
		"txncurrencycode":       m.values.MapCurrency(order.Currency),
		"txninstallmentcount":   m.values.MapInstallment(order.Installment),
		"orderid":               order.ID,
		"successurl":            order.SuccessURL,
		"errorurl":              order.FailURL,
		"customeremailaddress":  order.Email,
		"customeripaddress":     order.IP,
		"lang":                  m.values.MapLang(lang),
		"txntimestamp":          m.clock().UTC().Format(time.RFC3339),
	}
	if err := provider.ApplyPreSign(acc, txType, inputs); err != nil {
		return nil, err
	}

	hashedPwd, err := hashedPassword(acc.Password, acc.TerminalID)
	if err != nil {
		return nil, err
	}
	str := func(k string) string { return provider.Str(inputs, k) }
	hash, err := requestHash.Sign(hashedPwd,
		str("terminalid"), str("orderid"), str("txnamount"), str("txncurrencycode"),
		str("successurl"), str("errorurl"), str("txntype"), str("txninstallmentcount"),
		acc.StoreKey,
	)
	if err != nil {
		return nil, err
	}

	form := &provider.RedirectForm{Gateway: gatewayURL, Method: "POST", Inputs: make(map[string]string, len(inputs)+5)}
	for k := range inputs {
		form.Inputs[k] = str(k)
	}
	form.Inputs["secure3dhash"] = hash
	if card != nil && !model.IsHosted() {
		form.Inputs["cardnumber"] = card.Number
		form.Inputs["cardexpiredatemonth"] = card.ExpMonth()
		form.Inputs["cardexpiredateyear"] = card.ExpYear2()
		form.Inputs["cardcvv2"] = card.CVV
	}
	return form, nil
}

func (m *RequestMapper) inquiry(acc *provider.Account, txType provider.TransactionType, order provider.Order) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(txType, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	req := m.base(acc, false)
	req["Customer"] = customer(order)
	req["Card"] = emptyCard()
	req["Order"] = map[string]any{"OrderID": order.ID, "GroupID": ""}
	tx := m.transaction(code, order, "0")
	tx["Amount"] = inquiryAmount
	req["Transaction"] = tx
	return m.sign(acc, txType, false, req)
}

func (m *RequestMapper) CreateStatusRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	return m.inquiry(acc, provider.TxTypeStatus, order)
}

func (m *RequestMapper) CreateOrderHistoryRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	return m.inquiry(acc, provider.TxTypeOrderHistory, order)
}

func (m *RequestMapper) CreateCancelRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(provider.TxTypeCancel, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	req := m.base(acc, true)
	req["Customer"] = customer(order)
	req["Card"] = emptyCard()
	req["Order"] = map[string]any{"OrderID": order.ID, "GroupID": ""}
	tx := m.transaction(code, order, "0")
	tx["OriginalRetrefNum"] = order.RefRetNum
	req["Transaction"] = tx
	return m.sign(acc, provider.TxTypeCancel, true, req)
}

func (m *RequestMapper) CreateRefundRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(txType, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	req := m.base(acc, true)
	req["Customer"] = customer(order)
	req["Card"] = emptyCard()
	req["Order"] = map[string]any{"OrderID": order.ID, "GroupID": ""}
	req["Transaction"] = m.transaction(code, order, "0")
	return m.sign(acc, txType, true, req)
}

func (m *RequestMapper) CreateHistoryRequestData(acc *provider.Account, query provider.HistoryQuery) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(provider.TxTypeHistory, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	req := m.base(acc, false)
	req["Customer"] = map[string]any{"IPAddress": "", "EmailAddress": ""}
	req["Card"] = emptyCard()
	req["Order"] = map[string]any{
		"OrderID":     "",
		"GroupID":     "",
		"StartDate":   m.values.FormatDateTime(query.StartDate, ""),
		"EndDate":     m.values.FormatDateTime(query.EndDate, ""),
		"ListPageNum": strconv.Itoa(page),
	}
	req["Transaction"] = map[string]any{
		"Type":                  code,
		"Amount":                inquiryAmount,
		"CurrencyCode":          m.values.MapCurrency("TRY"),
		"CardholderPresentCode": "0",
		"MotoInd":               "N",
	}
	return m.sign(acc, provider.TxTypeHistory, false, req)
}

// CreateCustomQueryRequestData merges caller data over the Mode, Version
// and Terminal envelope and signs the result.
func (m *RequestMapper) CreateCustomQueryRequestData(acc *provider.Account, data provider.GatewayRequest) (provider.GatewayRequest, error) {
	req := m.base(acc, false)
	for k, v := range data {
		if k == "Terminal" {
			continue
		}
		req[k] = v
	}
	return m.sign(acc, provider.TxTypeCustomQuery, false, req)
}
