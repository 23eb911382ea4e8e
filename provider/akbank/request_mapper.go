package akbank

import (
	"encoding/json"
	"time"

	"github.com/mstgnz/gopos/provider"
)

const randomLength = 128

// RequestMapper builds Akbank JSON requests and 3-D form data.
type RequestMapper struct {
	values provider.ValueMapper
	now    func() time.Time
	random func(n int) (string, error)
}

func (m *RequestMapper) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

func (m *RequestMapper) nonce() (string, error) {
	if m.random != nil {
		return m.random(randomLength)
	}
	return provider.RandomHex(randomLength)
}

// number writes an already formatted value as a JSON number.
func number(s string) json.Number { return json.Number(s) }

func (m *RequestMapper) base(acc *provider.Account, txCode string) (provider.GatewayRequest, error) {
	rnd, err := m.nonce()
	if err != nil {
		return nil, err
	}
	return provider.GatewayRequest{
		"version":         apiVersion,
		"txnCode":         txCode,
		"requestDateTime": m.values.FormatDateTime(m.clock(), ""),
		"randomNumber":    rnd,
		"terminal": map[string]any{
			"merchantSafeId": acc.MerchantID,
			"terminalSafeId": acc.TerminalID,
		},
	}, nil
}

func (m *RequestMapper) newRequest(acc *provider.Account, txType provider.TransactionType, model provider.SecurityModel) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(txType, model)
	if err != nil {
		return nil, err
	}
	return m.base(acc, code)
}

func (m *RequestMapper) transaction(order provider.Order) map[string]any {
	return map[string]any{
		"amount":       number(m.values.FormatAmount(order.Amount)),
		"currencyCode": number(m.values.MapCurrency(order.Currency)),
		"motoInd":      0,
		"installCount": number(m.values.MapInstallment(order.Installment)),
	}
}

func customer(order provider.Order) map[string]any {
	ip := order.IP
	if ip == "" {
		ip = "127.0.0.1"
	}
	return map[string]any{"emailAddress": order.Email, "ipAddress": ip}
}

// finish runs the pre-sign hook. The signature itself is the auth-hash
// header, computed by the transport over the encoded body.
func finish(acc *provider.Account, txType provider.TransactionType, req provider.GatewayRequest) (provider.GatewayRequest, error) {
	if err := provider.ApplyPreSign(acc, txType, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (m *RequestMapper) CreatePaymentRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType, card *provider.CreditCard) (provider.GatewayRequest, error) {
	if card == nil {
		return nil, &provider.ValidationError{Field: "card", Reason: "required by akbank"}
	}
	req, err := m.newRequest(acc, txType, provider.ModelNonSecure)
	if err != nil {
		return nil, err
	}
	req["card"] = map[string]any{
		"cardNumber": card.Number,
		"cvv2":       card.CVV,
		"expireDate": card.ExpMonth() + card.ExpYear2(),
	}
	req["reward"] = map[string]any{"ccbRewardAmount": 0, "pcbRewardAmount": 0, "xcbRewardAmount": 0}
	req["transaction"] = m.transaction(order)
	req["order"] = map[string]any{"orderId": order.ID}
	req["customer"] = customer(order)
	return finish(acc, txType, req)
}

func (m *RequestMapper) CreatePostAuthRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	req, err := m.newRequest(acc, provider.TxTypePostAuth, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	req["order"] = map[string]any{"orderId": order.ID}
	req["transaction"] = map[string]any{
		"amount":       number(m.values.FormatAmount(order.Amount)),
		"currencyCode": number(m.values.MapCurrency(order.Currency)),
	}
	req["customer"] = customer(order)
	return finish(acc, provider.TxTypePostAuth, req)
}

func (m *RequestMapper) Create3DEnrollmentCheckRequestData(_ *provider.Account, _ provider.Order, _ provider.SecurityModel, _ provider.TransactionType, _ *provider.CreditCard) (provider.GatewayRequest, error) {
	return nil, provider.NotImplemented(gatewayName, "3D enrollment check")
}

// Create3DPaymentRequestData finalizes a 3d model payment with the
// secure* fields of the callback. The txnCode is the non-secure one.
func (m *RequestMapper) Create3DPaymentRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType, callback provider.GatewayResponse) (provider.GatewayRequest, error) {
	req, err := m.newRequest(acc, txType, provider.ModelNonSecure)
	if err != nil {
		return nil, err
	}
	req["order"] = map[string]any{"orderId": order.ID}
	req["reward"] = map[string]any{"ccbRewardAmount": 0, "pcbRewardAmount": 0, "xcbRewardAmount": 0}
	req["transaction"] = m.transaction(order)
	req["secureTransaction"] = map[string]any{
		"secureId":      provider.Str(callback, "secureId"),
		"secureEcomInd": provider.Str(callback, "secureEcomInd"),
		"secureData":    provider.Str(callback, "secureData"),
		"secureMd":      provider.Str(callback, "secureMd"),
	}
	req["customer"] = customer(order)
	return finish(acc, txType, req)
}

// formHashFields is the concatenation order of the 3-D form hash.
var formHashFields = []string{
	"paymentModel", "txnCode", "merchantSafeId", "terminalSafeId", "orderId",
	"lang", "amount", "ccbRewardAmount", "pcbRewardAmount", "xcbRewardAmount",
	"currencyCode", "installCount", "okUrl", "failUrl", "emailAddress",
	"subMerchantId", "creditCard", "expiredDate", "cvv", "randomNumber",
	"requestDateTime", "b2bIdentityNumber",
}

func (m *RequestMapper) Create3DFormData(acc *provider.Account, order provider.Order, model provider.SecurityModel, txType provider.TransactionType, gatewayURL string, card *provider.CreditCard) (*provider.RedirectForm, error) {
	code, err := m.values.MapTxType(txType, model)
	if err != nil {
		return nil, err
	}
	paymentModel, err := m.values.MapSecureType(model)
	if err != nil {
		return nil, err
	}
	rnd, err := m.nonce()
	if err != nil {
		return nil, err
	}

	lang := order.Lang
	if lang == "" {
		lang = acc.Lang
	}
	inputs := provider.GatewayRequest{
		"paymentModel":    paymentModel,
		"txnCode":         code,
		"merchantSafeId":  acc.MerchantID,
		"terminalSafeId":  acc.TerminalID,
		"orderId":         order.ID,
		"lang":            m.values.MapLang(lang),
		"amount":          m.values.FormatAmount(order.Amount),
		"currencyCode":    m.values.MapCurrency(order.Currency),
		"installCount":    m.values.MapInstallment(order.Installment),
		"okUrl":           order.SuccessURL,
		"failUrl":         order.FailURL,
		"emailAddress":    order.Email,
		"randomNumber":    rnd,
		"requestDateTime": m.values.FormatDateTime(m.clock(), ""),
	}
	if card != nil && !model.IsHosted() {
		inputs["creditCard"] = card.Number
		inputs["expiredDate"] = card.ExpMonth() + card.ExpYear2()
		inputs["cvv"] = card.CVV
	}
	if err := provider.ApplyPreSign(acc, txType, inputs); err != nil {
		return nil, err
	}

	var payload string
	for _, k := range formHashFields {
		payload += provider.Str(inputs, k)
	}
	hash, err := authHash.Sign(acc.StoreKey, payload)
	if err != nil {
		return nil, err
	}

	form := &provider.RedirectForm{Gateway: gatewayURL, Method: "POST", Inputs: make(map[string]string, len(inputs)+1)}
	for k := range inputs {
		form.Inputs[k] = provider.Str(inputs, k)
	}
	form.Inputs["hash"] = hash
	return form, nil
}

func (m *RequestMapper) CreateStatusRequestData(_ *provider.Account, _ provider.Order) (provider.GatewayRequest, error) {
	return nil, provider.NotImplemented(gatewayName, "status")
}

func (m *RequestMapper) CreateCancelRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	req, err := m.newRequest(acc, provider.TxTypeCancel, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	req["order"] = map[string]any{"orderId": order.ID}
	return finish(acc, provider.TxTypeCancel, req)
}

func (m *RequestMapper) CreateRefundRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType) (provider.GatewayRequest, error) {
	req, err := m.newRequest(acc, txType, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	req["order"] = map[string]any{"orderId": order.ID}
	req["transaction"] = map[string]any{
		"amount":       number(m.values.FormatAmount(order.Amount)),
		"currencyCode": number(m.values.MapCurrency(order.Currency)),
	}
	return finish(acc, txType, req)
}

func (m *RequestMapper) CreateHistoryRequestData(acc *provider.Account, query provider.HistoryQuery) (provider.GatewayRequest, error) {
	req, err := m.newRequest(acc, provider.TxTypeHistory, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	req["report"] = map[string]any{
		"startDateTime": m.values.FormatDateTime(query.StartDate, ""),
		"endDateTime":   m.values.FormatDateTime(query.EndDate, ""),
	}
	return finish(acc, provider.TxTypeHistory, req)
}

func (m *RequestMapper) CreateOrderHistoryRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	req, err := m.newRequest(acc, provider.TxTypeOrderHistory, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	req["order"] = map[string]any{"orderId": order.ID}
	return finish(acc, provider.TxTypeOrderHistory, req)
}

// CreateCustomQueryRequestData merges caller data over the version,
// nonce and terminal envelope. A txnCode in data is kept.
func (m *RequestMapper) CreateCustomQueryRequestData(acc *provider.Account, data provider.GatewayRequest) (provider.GatewayRequest, error) {
	req, err := m.base(acc, provider.Str(data, "txnCode"))
	if err != nil {
		return nil, err
	}
	for k, v := range data {
		if k == "terminal" {
			continue
		}
		req[k] = v
	}
	return finish(acc, provider.TxTypeCustomQuery, req)
}
