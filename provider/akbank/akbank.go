// Package akbank implements the Akbank JSON virtual POS. Requests are
// signed with an auth-hash header, HMAC-SHA512 over the exact JSON body.
package akbank

import (
	"strings"

	"github.com/mstgnz/gopos/provider"
)

const (
	gatewayName = "akbank"

	apiSandboxURL        = "https://apipre.akbank.com/api/v1/payment/virtualpos/transaction/process"
	apiProductionURL     = "https://api.akbank.com/api/v1/payment/virtualpos/transaction/process"
	gatewaySandboxURL    = "https://virtualpospaymentgatewaypre.akbank.com/securepay"
	gatewayProductionURL = "https://virtualpospaymentgateway.akbank.com/securepay"
	hostSandboxURL       = "https://virtualpospaymentgatewaypre.akbank.com/payhosting"
	hostProductionURL    = "https://virtualpospaymentgateway.akbank.com/payhosting"

	apiVersion = "1.00"
)

// authHash is base64(HMAC-SHA512(secretKey, payload)). The same spec
// signs the JSON body, the 3-D form and the callback.
var authHash = provider.HashSpec{Algorithm: provider.HMACSHA512, Encoding: provider.EncodingBase64}

// Account credential descriptors. Akbank calls them merchantSafeId,
// terminalSafeId and secretKey.
var (
	fieldMerchantSafeID = provider.ConfigField{
		Key:         "merchant_id",
		Required:    true,
		Type:        "string",
		Description: "Akbank Merchant Safe ID (provided by Akbank)",
		Example:     "2025100217305644994AAC1BF57EC29B",
		MinLength:   32,
		MaxLength:   50,
	}
	fieldTerminalSafeID = provider.ConfigField{
		Key:         "terminal_id",
		Required:    true,
		Type:        "string",
		Description: "Akbank Terminal Safe ID (provided by Akbank)",
		Example:     "202510021730564616275A2A52298FCF",
		MinLength:   32,
		MaxLength:   50,
	}
	fieldSecretKey = provider.ConfigField{
		Key:         "store_key",
		Required:    true,
		Type:        "string",
		Description: "Akbank Security Key (provided by Akbank)",
		MinLength:   50,
		MaxLength:   200,
	}
)

// Gateway is the Akbank adapter.
type Gateway struct {
	sandbox    provider.Endpoints
	production provider.Endpoints
	requests   *RequestMapper
	responses  *ResponseMapper
}

// New creates the Akbank gateway.
func New() *Gateway {
	values := valueMapper()
	return &Gateway{
		sandbox:    provider.Endpoints{API: apiSandboxURL, Gateway: gatewaySandboxURL, Host: hostSandboxURL},
		production: provider.Endpoints{API: apiProductionURL, Gateway: gatewayProductionURL, Host: hostProductionURL},
		requests:   &RequestMapper{values: values},
		responses:  &ResponseMapper{values: values, md: provider.DefaultMdStatus},
	}
}

func (g *Gateway) Name() string { return gatewayName }

func (g *Gateway) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Models: []provider.SecurityModel{
			provider.ModelNonSecure, provider.Model3DSecure, provider.Model3DPay, provider.Model3DPayHosting,
		},
		TxTypes: []provider.TransactionType{
			provider.TxTypePay, provider.TxTypePreAuth, provider.TxTypePostAuth,
			provider.TxTypeCancel, provider.TxTypeRefund, provider.TxTypeRefundPartial,
			provider.TxTypeHistory, provider.TxTypeOrderHistory, provider.TxTypeCustomQuery,
		},
	}
}

func (g *Gateway) Requests() provider.RequestMapper   { return g.requests }
func (g *Gateway) Responses() provider.ResponseMapper { return g.responses }

func (g *Gateway) endpoints(acc *provider.Account) provider.Endpoints {
	if acc.TestMode {
		return g.sandbox.Resolve(acc)
	}
	return g.production.Resolve(acc)
}

// Envelope posts JSON with the auth-hash header computed over the encoded
// body. Akbank has no status inquiry and no enrollment check.
func (g *Gateway) Envelope(acc *provider.Account, op provider.Operation) (provider.Envelope, error) {
	switch op {
	case provider.OpStatus, provider.OpEnrollment:
		return provider.Envelope{}, provider.NotImplemented(gatewayName, string(op))
	}
	secret := acc.StoreKey
	return provider.Envelope{
		Kind: provider.EnvelopeJSON,
		URL:  g.endpoints(acc).API,
		SignBody: func(body []byte) (map[string]string, error) {
			hash, err := authHash.Sign(secret, string(body))
			if err != nil {
				return nil, err
			}
			return map[string]string{"auth-hash": hash}, nil
		},
	}, nil
}

func (g *Gateway) FormURL(acc *provider.Account, model provider.SecurityModel) string {
	if model.IsHosted() {
		return g.endpoints(acc).Host
	}
	return g.endpoints(acc).Gateway
}

// Verify3DHash checks hash = HMAC-SHA512 over the values named in
// hashParams, joined without a delimiter.
func (g *Gateway) Verify3DHash(acc *provider.Account, callback provider.GatewayResponse) error {
	params := provider.Str(callback, "hashParams")
	if params == "" {
		return provider.SecurityRejected(gatewayName)
	}
	values := provider.HashParamValues(callback, params, "+")
	if !authHash.Verify(provider.Str(callback, "hash"), acc.StoreKey, strings.Join(values, "")) {
		return provider.SecurityRejected(gatewayName)
	}
	return nil
}

func valueMapper() provider.ValueMapper {
	return provider.ValueMapper{
		Gateway: gatewayName,
		Currencies: map[string]string{
			"TRY": "949", "USD": "840", "EUR": "978", "GBP": "826", "JPY": "392", "RUB": "643",
		},
		TxTypes: map[provider.TransactionType]map[provider.SecurityModel]string{
			provider.TxTypePay: {
				provider.AnyModel:          "1000",
				provider.Model3DSecure:     "3000",
				provider.Model3DPay:        "3000",
				provider.Model3DPayHosting: "3000",
			},
			provider.TxTypePreAuth: {
				provider.AnyModel:          "1004",
				provider.Model3DSecure:     "3004",
				provider.Model3DPay:        "3004",
				provider.Model3DPayHosting: "3004",
			},
			provider.TxTypePostAuth:      {provider.AnyModel: "1005"},
			provider.TxTypeCancel:        {provider.AnyModel: "1003"},
			provider.TxTypeRefund:        {provider.AnyModel: "1002"},
			provider.TxTypeRefundPartial: {provider.AnyModel: "1002"},
			provider.TxTypeOrderHistory:  {provider.AnyModel: "1010"},
			provider.TxTypeHistory:       {provider.AnyModel: "1009"},
		},
		Langs:       map[string]string{"tr": "TR", "en": "EN"},
		DefaultLang: "tr",
		SecureTypes: map[provider.SecurityModel]string{
			provider.Model3DSecure:     "3D",
			provider.Model3DPay:        "3D_PAY",
			provider.Model3DPayHosting: "3D_PAY_HOSTING",
		},
		Installment: provider.InstallmentPolicy{None: "1"},
		Amount:      provider.AmountDotDecimal,
		DateLayouts: map[string]string{
			"": "2006-01-02T15:04:05.000",
		},
	}
}

// Akbank returns two codes. responseCode is the gateway verdict
// (VPS-0000 on success) and hostResponseCode the issuer's.
const (
	gatewayApproved = "VPS-0000"
	hostApproved    = "00"
)

var hostCodes = provider.CodeTable{
	Approved: []string{hostApproved},
	Details: map[string]string{
		"01": provider.DetailBankCall,
		"02": provider.DetailBankCall,
		"05": provider.DetailReject,
		"12": provider.DetailInvalidTransaction,
		"14": provider.DetailInvalidTransaction,
		"51": provider.DetailInsufficientBalance,
		"54": provider.DetailExpiredCard,
		"57": provider.DetailDoesNotAllowCardHolder,
		"62": provider.DetailRestrictedCard,
	},
}

// gatewayDetails classifies VPS-xxxx codes that arrive without a host code.
var gatewayDetails = map[string]string{
	"VPS-1001": provider.DetailInvalidCredentials,
	"VPS-1005": provider.DetailInvalidTransaction,
	"VPS-1073": provider.DetailTransactionNotFound,
	"VPS-2000": provider.DetailTryAgain,
}
