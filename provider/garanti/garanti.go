// Package garanti implements the Garanti BBVA virtual POS (GVPS).
package garanti

import (
	"strings"

	"github.com/mstgnz/gopos/provider"
)

const (
	gatewayName = "garanti"

	apiTestURL     = "https://sanalposprovtest.garantibbva.com.tr/VPServlet"
	apiProdURL     = "https://sanalposprov.garanti.com.tr/VPServlet"
	gatewayTestURL = "https://sanalposprovtest.garantibbva.com.tr/servlet/gt3dengine"
	gatewayProdURL = "https://sanalposprov.garanti.com.tr/servlet/gt3dengine"

	apiVersion = "512"
)

var (
	// upper(hex(sha1(password + terminalId padded to 9)))
	passwordHash = provider.HashSpec{Algorithm: provider.SHA1, Encoding: provider.EncodingHex, Upper: true}
	// upper(hex(sha512(fields... + hashedPassword)))
	requestHash = provider.HashSpec{Algorithm: provider.SHA512, Encoding: provider.EncodingHex, Upper: true}
)

// Gateway is the Garanti adapter.
type Gateway struct {
	test      provider.Endpoints
	prod      provider.Endpoints
	requests  *RequestMapper
	responses *ResponseMapper
}

// New creates the Garanti gateway.
func New() *Gateway {
	values := valueMapper()
	return &Gateway{
		test:      provider.Endpoints{API: apiTestURL, Gateway: gatewayTestURL, Host: gatewayTestURL},
		prod:      provider.Endpoints{API: apiProdURL, Gateway: gatewayProdURL, Host: gatewayProdURL},
		requests:  &RequestMapper{values: values},
		responses: &ResponseMapper{values: values, codes: codeTable, md: provider.DefaultMdStatus},
	}
}

func (g *Gateway) Name() string { return gatewayName }

func (g *Gateway) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Models: []provider.SecurityModel{
			provider.ModelNonSecure, provider.Model3DSecure, provider.Model3DPay, provider.Model3DHost,
		},
		TxTypes: []provider.TransactionType{
			provider.TxTypePay, provider.TxTypePreAuth, provider.TxTypePostAuth,
			provider.TxTypeCancel, provider.TxTypeRefund, provider.TxTypeRefundPartial,
			provider.TxTypeStatus, provider.TxTypeHistory, provider.TxTypeOrderHistory,
			provider.TxTypeCustomQuery,
		},
	}
}

func (g *Gateway) Requests() provider.RequestMapper   { return g.requests }
func (g *Gateway) Responses() provider.ResponseMapper { return g.responses }

func (g *Gateway) endpoints(acc *provider.Account) provider.Endpoints {
	if acc.TestMode {
		return g.test.Resolve(acc)
	}
	return g.prod.Resolve(acc)
}

func (g *Gateway) Envelope(acc *provider.Account, op provider.Operation) (provider.Envelope, error) {
	if op == provider.OpEnrollment {
		return provider.Envelope{}, provider.NotImplemented(gatewayName, string(op))
	}
	return provider.Envelope{
		Kind: provider.EnvelopeXML,
		URL:  g.endpoints(acc).API,
		Root: "GVPSRequest",
	}, nil
}

func (g *Gateway) FormURL(acc *provider.Account, model provider.SecurityModel) string {
	if model.IsHosted() {
		return g.endpoints(acc).Host
	}
	return g.endpoints(acc).Gateway
}

// Verify3DHash checks hash = upper(hex(sha512(values of hashparams + storeKey))).
func (g *Gateway) Verify3DHash(acc *provider.Account, callback provider.GatewayResponse) error {
	params := provider.Str(callback, "hashparams")
	if params == "" {
		return provider.SecurityRejected(gatewayName)
	}
	values := provider.HashParamValues(callback, params, ":")
	if strings.Join(values, "") != provider.RawStr(callback, "hashparamsval") {
		return provider.SecurityRejected(gatewayName)
	}
	if !requestHash.Verify(provider.Str(callback, "hash"), acc.StoreKey, values...) {
		return provider.SecurityRejected(gatewayName)
	}
	return nil
}

// hashedPassword derives the password hash Garanti signs requests with.
func hashedPassword(password, terminalID string) (string, error) {
	return passwordHash.Sign("", password, padTerminalID(terminalID))
}

func padTerminalID(terminalID string) string {
	if len(terminalID) >= 9 {
		return terminalID
	}
	return strings.Repeat("0", 9-len(terminalID)) + terminalID
}

func valueMapper() provider.ValueMapper {
	return provider.ValueMapper{
		Gateway: gatewayName,
		Currencies: map[string]string{
			"TRY": "949", "USD": "840", "EUR": "978", "GBP": "826", "JPY": "392", "RUB": "643",
		},
		TxTypes: map[provider.TransactionType]map[provider.SecurityModel]string{
			provider.TxTypePay:           {provider.AnyModel: "sales"},
			provider.TxTypePreAuth:       {provider.AnyModel: "preauth"},
			provider.TxTypePostAuth:      {provider.AnyModel: "postauth"},
			provider.TxTypeCancel:        {provider.AnyModel: "void"},
			provider.TxTypeRefund:        {provider.AnyModel: "refund"},
			provider.TxTypeRefundPartial: {provider.AnyModel: "refund"},
			provider.TxTypeStatus:        {provider.AnyModel: "orderinq"},
			provider.TxTypeOrderHistory:  {provider.AnyModel: "orderhistoryinq"},
			provider.TxTypeHistory:       {provider.AnyModel: "orderlistinq"},
		},
		Langs:       map[string]string{"tr": "tr", "en": "en"},
		DefaultLang: "tr",
		SecureTypes: map[provider.SecurityModel]string{
			provider.Model3DSecure: "3D",
			provider.Model3DPay:    "3D_PAY",
			provider.Model3DHost:   "3D_OOS_FULL",
		},
		Installment: provider.InstallmentPolicy{None: ""},
		Amount:      provider.AmountMinorUnits,
		DateLayouts: map[string]string{
			"":         "02/01/2006 15:04",
			"response": "20060102 15:04:05",
		},
	}
}

var codeTable = provider.CodeTable{
	Approved: []string{"00"},
	Details: map[string]string{
		"01": provider.DetailBankCall,
		"02": provider.DetailBankCall,
		"05": provider.DetailReject,
		"09": provider.DetailTryAgain,
		"12": provider.DetailInvalidTransaction,
		"14": provider.DetailInvalidTransaction,
		"51": provider.DetailInsufficientBalance,
		"54": provider.DetailExpiredCard,
		"57": provider.DetailDoesNotAllowCardHolder,
		"62": provider.DetailRestrictedCard,
		"92": provider.DetailInvalidTransaction,
		"99": provider.DetailGeneralError,
	},
}
