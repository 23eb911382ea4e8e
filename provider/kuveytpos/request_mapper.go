package kuveytpos

import (
	"time"

	"github.com/mstgnz/gopos/provider"
)

// RequestMapper builds KuveytTurkVPosMessage documents and SOAP requests.
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

// signMessage runs the pre-sign hook and then sets HashData in msg to
// base64(sha1(MerchantId + MerchantOrderId + Amount + extra... + UserName
// + hashedPassword)).
func signMessage(acc *provider.Account, txType provider.TransactionType, hookTarget, msg provider.GatewayRequest, extra ...string) error {
	if err := provider.ApplyPreSign(acc, txType, hookTarget); err != nil {
		return err
	}
	pwd, err := hashedPassword(acc.Password)
	if err != nil {
		return err
	}
	fields := []string{provider.Str(msg, "MerchantId"), provider.Str(msg, "MerchantOrderId"), provider.Str(msg, "Amount")}
	fields = append(fields, extra...)
	fields = append(fields, provider.Str(msg, "UserName"))
	hash, err := kuveytHash.Sign(pwd, fields...)
	if err != nil {
		return err
	}
	msg["HashData"] = hash
	return nil
}

func (m *RequestMapper) message(acc *provider.Account, order provider.Order, txCode string) provider.GatewayRequest {
	amount := m.values.FormatAmount(order.Amount)
	return provider.GatewayRequest{
		"APIVersion":          apiVersion,
		"HashData":            "",
		"MerchantId":          acc.MerchantID,
		"CustomerId":          acc.CustomerID,
		"UserName":            acc.Username,
		"TransactionType":     txCode,
		"InstallmentCount":    m.values.MapInstallment(order.Installment),
		"Amount":              amount,
		"DisplayAmount":       amount,
		"CurrencyCode":        m.values.MapCurrency(order.Currency),
		"MerchantOrderId":     order.ID,
		"TransactionSecurity": "3",
	}
}

// CreatePaymentRequestData is not offered: Kuveyt only settles through 3-D.
func (m *RequestMapper) CreatePaymentRequestData(_ *provider.Account, _ provider.Order, txType provider.TransactionType, _ *provider.CreditCard) (provider.GatewayRequest, error) {
	return nil, provider.UnsupportedTxType(gatewayName, txType, provider.ModelNonSecure)
}

func (m *RequestMapper) CreatePostAuthRequestData(_ *provider.Account, _ provider.Order) (provider.GatewayRequest, error) {
	return nil, provider.UnsupportedTxType(gatewayName, provider.TxTypePostAuth, provider.AnyModel)
}

// Create3DEnrollmentCheckRequestData builds the message posted to the
// enrollment gate. The bank answers with the ACS form.
func (m *RequestMapper) Create3DEnrollmentCheckRequestData(acc *provider.Account, order provider.Order, model provider.SecurityModel, txType provider.TransactionType, card *provider.CreditCard) (provider.GatewayRequest, error) {
	if card == nil {
		return nil, &provider.ValidationError{Field: "card", Reason: "required by kuveytpos"}
	}
	code, err := m.values.MapTxType(txType, model)
	if err != nil {
		return nil, err
	}
	security, err := m.values.MapSecureType(model)
	if err != nil {
		return nil, err
	}

	req := m.message(acc, order, code)
	req["TransactionSecurity"] = security
	req["CardNumber"] = card.Number
	req["CardExpireDateYear"] = card.ExpYear2()
	req["CardExpireDateMonth"] = card.ExpMonth()
	req["CardCVV2"] = card.CVV
	req["CardHolderName"] = card.HolderName
	req["CardType"] = m.values.MapCardBrand(card.Brand)
	req["OkUrl"] = order.SuccessURL
	req["FailUrl"] = order.FailURL
	req["DeviceData"] = map[string]any{"ClientIP": order.IP}
	req["CardHolderData"] = map[string]any{"Email": order.Email}

	if err := signMessage(acc, txType, req, req, provider.Str(req, "OkUrl"), provider.Str(req, "FailUrl")); err != nil {
		return nil, err
	}
	return req, nil
}

// Create3DPaymentRequestData provisions an authenticated order with the MD
// of the callback. The amount is taken from the callback when present.
func (m *RequestMapper) Create3DPaymentRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType, callback provider.GatewayResponse) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(txType, provider.Model3DSecure)
	if err != nil {
		return nil, err
	}
	req := m.message(acc, order, code)
	if amount := provider.Str(callback, "VPosMessage", "Amount"); amount != "" {
		req["Amount"] = amount
		req["DisplayAmount"] = amount
	}
	if id := provider.Str(callback, "MerchantOrderId"); id != "" {
		req["MerchantOrderId"] = id
	}
	req["KuveytTurkVPosAdditionalData"] = map[string]any{
		"AdditionalData": map[string]any{
			"Key":  "MD",
			"Data": provider.Str(callback, "MD"),
		},
	}
	if err := signMessage(acc, txType, req, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Create3DFormData is not used: the ACS form is returned by the enrollment
// call and mapped by MapEnrollmentResponse.
func (m *RequestMapper) Create3DFormData(_ *provider.Account, _ provider.Order, model provider.SecurityModel, txType provider.TransactionType, _ string, _ *provider.CreditCard) (*provider.RedirectForm, error) {
	return nil, provider.NotImplemented(gatewayName, "3D form for "+string(model)+"/"+string(txType))
}

// soapRequest wraps the after-sale body in the operation element of the
// SOAP service. VPosMessage carries the signed message.
func (m *RequestMapper) soapRequest(acc *provider.Account, order provider.Order, txType provider.TransactionType, amount string) (provider.GatewayRequest, error) {
	code, err := m.values.MapTxType(txType, provider.AnyModel)
	if err != nil {
		return nil, err
	}
	msg := m.message(acc, order, code)
	msg["Amount"] = amount
	msg["DisplayAmount"] = amount
	msg["CancelAmount"] = amount
	msg["InstallmentCount"] = m.values.Installment.None
	msg["InstallmentMaturityCommisionFlag"] = "0"
	msg["SubMerchantId"] = "0"
	msg["BatchID"] = "0"
	msg["FECAmount"] = "0"
	msg["SurchargeAmount"] = "0"

	body := provider.GatewayRequest{
		"IsFromExternalNetwork": "true",
		"BusinessKey":           "0",
		"ResourceId":            "0",
		"ActionId":              "0",
		"LanguageId":            "0",
		"CustomerId":            acc.CustomerID,
		"MailOrTelephoneOrder":  "true",
		"Amount":                amount,
		"MerchantId":            acc.MerchantID,
		"OrderId":               order.RemoteOrderID,
		"RRN":                   order.RefRetNum,
		"Stan":                  order.TransactionID,
		"ProvisionNumber":       order.AuthCode,
		"VPosMessage":           map[string]any(msg),
	}
	if err := signMessage(acc, txType, body, msg); err != nil {
		return nil, err
	}
	return provider.GatewayRequest{
		"-xmlns":  soapNamespace,
		"request": map[string]any(body),
	}, nil
}

func (m *RequestMapper) CreateStatusRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	req, err := m.soapRequest(acc, order, provider.TxTypeStatus, "0")
	if err != nil {
		return nil, err
	}
	body := req["request"].(map[string]any)
	now := m.clock()
	body["StartDate"] = m.values.FormatDateTime(now.AddDate(0, 0, -365), "")
	body["EndDate"] = m.values.FormatDateTime(now.AddDate(0, 0, 1), "")
	body["MerchantOrderId"] = order.ID
	return req, nil
}

func (m *RequestMapper) CreateCancelRequestData(acc *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	if order.RemoteOrderID == "" {
		return nil, provider.Precondition("kuveytpos cancel requires the remote order id")
	}
	return m.soapRequest(acc, order, provider.TxTypeCancel, m.values.FormatAmount(order.Amount))
}

func (m *RequestMapper) CreateRefundRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType) (provider.GatewayRequest, error) {
	if order.RemoteOrderID == "" {
		return nil, provider.Precondition("kuveytpos refund requires the remote order id")
	}
	return m.soapRequest(acc, order, txType, m.values.FormatAmount(order.Amount))
}

func (m *RequestMapper) CreateHistoryRequestData(_ *provider.Account, _ provider.HistoryQuery) (provider.GatewayRequest, error) {
	return nil, provider.NotImplemented(gatewayName, "history")
}

func (m *RequestMapper) CreateOrderHistoryRequestData(_ *provider.Account, _ provider.Order) (provider.GatewayRequest, error) {
	return nil, provider.NotImplemented(gatewayName, "order history")
}

// CreateCustomQueryRequestData merges caller data into a signed
// KuveytTurkVPosMessage.
func (m *RequestMapper) CreateCustomQueryRequestData(acc *provider.Account, data provider.GatewayRequest) (provider.GatewayRequest, error) {
	req := provider.GatewayRequest{
		"APIVersion": apiVersion,
		"MerchantId": acc.MerchantID,
		"CustomerId": acc.CustomerID,
		"UserName":   acc.Username,
	}
	for k, v := range data {
		switch k {
		case "MerchantId", "CustomerId", "UserName", "HashData":
			continue
		}
		req[k] = v
	}
	if err := signMessage(acc, provider.TxTypeCustomQuery, req, req); err != nil {
		return nil, err
	}
	return req, nil
}
