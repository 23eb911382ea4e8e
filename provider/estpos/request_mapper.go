package estpos

import (
	"strconv"

	"github.com/mstgnz/gopos/provider"
)

var recurringFrequency = map[string]string{"DAY": "D", "WEEK": "W", "MONTH": "M", "YEAR": "Y"}

// RequestMapper builds CC5Request documents and 3-D form data.
type RequestMapper struct {
	dialect Dialect
	values  provider.ValueMapper
}

func (m *RequestMapper) credentials(acc *provider.Account) provider.GatewayRequest {
	return provider.GatewayRequest{
		"Name":     acc.Username,
		"Password": acc.Password,
		"ClientId": acc.MerchantID,
	}
}

func (m *RequestMapper) finish(acc *provider.Account, txType provider.TransactionType, req provider.GatewayRequest) (provider.GatewayRequest, error) {
	if err := provider.ApplyPreSign(acc, txType, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (m *RequestMapper) CreatePaymentRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType, card *provider.CreditCard) (provider.GatewayRequest, error) {
	if card == nil {
		return nil, formatErr(m.dialect.Name, "card")
	}
	code, err := m.values.MapTxType(txType, provider.ModelNonSecure)
	if err != nil {
		return nil, err
	}

	req := m.credentials(acc)
	req["Type"] = code
	req["IPAddress"] = order.IP
	req["Email"] = order.Email
	req["OrderId"] = order.ID
	req["UserId"] = ""
	req["Total"] = m.values.FormatAmount(order.Amount)
	req["Currency"] = m.values.MapCurrency(order.Currency)
	req["Taksit"] = m.values.MapInstallment(order.Installment)
	req["Number"] = card.Number
	req["Expires"] = card.ExpMonth() + "/" + card.ExpYear2()
	req["Cvv2Val"] = card.CVV
	req["Mode"] = "P"
	req["BillTo"] = map[string]any{"Name": card.HolderName}

	if r := order.Recurring; r != nil {
		req["PbOrder"] = map[string]any{
			"OrderType":              "0",
			"OrderFrequencyInterval": strconv.Itoa(r.Frequency),
			"OrderFrequencyCycle":    recurringFrequency[r.FrequencyType],
			"TotalNumberPayments":    strconv.Itoa(r.InstallmentCount),
		}
	}
	return m.finish(acc, txType, req)
}

func (m *RequestMapper) CreatePostAuthRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(provider.TxTypePostAuth, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	req := m.credentials(acc)
	req["Type"] = code
	req["OrderId"] = order.ID
	req["Mode"] = "P"
	if order.Amount.IsPositive() {
		req["Total"] = m.values.FormatAmount(order.Amount)
		req["Currency"] = m.values.MapCurrency(order.Currency)
	}
	return m.finish(acc, provider.TxTypePostAuth, req)
}

func (m *RequestMapper) Create3DEnrollmentCheckRequestData(_ *provider.Account, _ provider.Order, _ provider.SecurityModel, _ provider.TransactionType, _ *provider.CreditCard) (provider.GatewayRequest, error) {
	return nil, provider.NotImplemented(m.dialect.Name, "3D enrollment check")
}

// Create3DPaymentRequestData builds the provision call after a 3d callback.
// The card is referenced by the md token. Under MPI fallback the bank
// sends no ECI/CAVV and those fields are left out.
func (m *RequestMapper) Create3DPaymentRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType, callback provider.GatewayResponse) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(txType, provider.Model3DSecure)
	if err != nil {
		return nil, err
	}
	md := provider.Str(callback, "md")
	if md == "" {
		return nil, &provider.ValidationError{Field: "callback.md", Reason: "missing card token"}
	}

	req := m.credentials(acc)
	req["Type"] = code
	req["IPAddress"] = order.IP
	req["Email"] = order.Email
	req["OrderId"] = order.ID
	req["UserId"] = ""
	req["Total"] = m.values.FormatAmount(order.Amount)
	req["Currency"] = m.values.MapCurrency(order.Currency)
	req["Taksit"] = m.values.MapInstallment(order.Installment)
	req["Number"] = md
	req["Mode"] = "P"

	if eci := provider.Str(callback, "eci"); eci != "" {
		req["PayerTxnId"] = provider.Str(callback, "xid")
		req["PayerSecurityLevel"] = eci
		req["PayerAuthenticationCode"] = provider.Str(callback, "cavv")
	}
	return m.finish(acc, txType, req)
}

// Create3DFormData builds the redirect form. The hash is computed last,
// after the pre-sign hook, over the non-card inputs.
func (m *RequestMapper) Create3DFormData(acc *provider.Account, order provider.Order, model provider.SecurityModel, txType provider.TransactionType, gatewayURL string, card *provider.CreditCard) (*provider.RedirectForm, error) {
	code, err := m.values.MapTxType(txType, model)
	if err != nil {
		return nil, err
	}
	storeType, err := m.values.MapSecureType(model)
	if err != nil {
		return nil, err
	}
	rnd, err := provider.RandomString(20)
	if err != nil {
		return nil, err
	}

	lang := order.Lang
	if lang == "" {
		lang = acc.Lang
	}
	inputs := provider.GatewayRequest{
		"clientid":  acc.MerchantID,
		"storetype": storeType,
		"amount":    m.values.FormatAmount(order.Amount),
		"oid":       order.ID,
		"okUrl":     order.SuccessURL,
		"failUrl":   order.FailURL,
		"rnd":       rnd,
		"lang":      m.values.MapLang(lang),
		"currency":  m.values.MapCurrency(order.Currency),
		"taksit":    m.values.MapInstallment(order.Installment),
		"islemtipi": code,
	}
	if m.dialect.HashAlgorithm != "" {
		inputs["hashAlgorithm"] = m.dialect.HashAlgorithm
	}
	if err := provider.ApplyPreSign(acc, txType, inputs); err != nil {
		return nil, err
	}

	signed := make(map[string]string, len(inputs))
	for k := range inputs {
		signed[k] = provider.Str(inputs, k)
	}
	hash, err := m.dialect.sign(m.dialect.formHash, acc.StoreKey, signed)
	if err != nil {
		return nil, err
	}
	signed["hash"] = hash

	if card != nil && !model.IsHosted() {
		signed["pan"] = card.Number
		signed["Ecom_Payment_Card_ExpDate_Month"] = card.ExpMonth()
		signed["Ecom_Payment_Card_ExpDate_Year"] = card.ExpYear2()
		signed["cv2"] = card.CVV
		if brand := m.values.MapCardBrand(card.Brand); brand != "" {
			signed["cardType"] = brand
		}
	}

	return &provider.RedirectForm{Gateway: gatewayURL, Method: "POST", Inputs: signed}, nil
}

func (m *RequestMapper) CreateStatusRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	req := m.credentials(acc)
	req["OrderId"] = order.ID
	req["Extra"] = map[string]any{"ORDERSTATUS": "QUERY"}
	return m.finish(acc, provider.TxTypeStatus, req)
}

func (m *RequestMapper) CreateCancelRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(provider.TxTypeCancel, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	req := m.credentials(acc)
	req["OrderId"] = order.ID
	req["Type"] = code
	if order.TransactionID != "" {
		req["TransId"] = order.TransactionID
	}
	return m.finish(acc, provider.TxTypeCancel, req)
}

func (m *RequestMapper) CreateRefundRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(txType, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	req := m.credentials(acc)
	req["OrderId"] = order.ID
	req["Type"] = code
	req["Total"] = m.values.FormatAmount(order.Amount)
	req["Currency"] = m.values.MapCurrency(order.Currency)
	return m.finish(acc, txType, req)
}

func (m *RequestMapper) CreateHistoryRequestData(_ *provider.Account, _ provider.HistoryQuery) (provider.GatewayRequest, error) {
	return nil, provider.NotImplemented(m.dialect.Name, "date range history")
}

func (m *RequestMapper) CreateOrderHistoryRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	req := m.credentials(acc)
	req["OrderId"] = order.ID
	req["Extra"] = map[string]any{"ORDERHISTORY": "QUERY"}
	return m.finish(acc, provider.TxTypeOrderHistory, req)
}

// CreateCustomQueryRequestData adds the credentials to a caller-built
// request without overriding fields the caller set.
func (m *RequestMapper) CreateCustomQueryRequestData(acc *provider.Account, data provider.GatewayRequest) (provider.GatewayRequest, error) {
	req := m.credentials(acc)
	for k, v := range data {
		req[k] = v
	}
	return m.finish(acc, provider.TxTypeCustomQuery, req)
}
