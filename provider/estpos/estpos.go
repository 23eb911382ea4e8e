// Package estpos implements the EST (Asseco) virtual POS used by Akbank,
// Işbank, Ziraat, Halkbank, Finansbank and others. Two signing dialects
// exist: the legacy SHA1 one and "ver3", a sorted, pipe-joined SHA512.
package estpos

import (
	"fmt"

	"github.com/mstgnz/gopos/provider"
)

const (
	apiTestURL     = "https://entegrasyon.asseco-see.com.tr/fim/api"
	gatewayTestURL = "https://entegrasyon.asseco-see.com.tr/fim/est3Dgate"
)

// Dialect is the part of the protocol that differs between EST versions.
// It is composed into the gateway instead of subclassing it.
type Dialect struct {
	Name string
	// HashAlgorithm is sent as the hashAlgorithm form field when set.
	HashAlgorithm string
	formHash      provider.HashSpec
	sign          func(spec provider.HashSpec, storeKey string, inputs map[string]string) (string, error)
	verify        func(spec provider.HashSpec, storeKey string, callback provider.GatewayResponse) bool
}

// V1 is the legacy dialect: SHA1 over a fixed field order, verified via
// HASHPARAMS / HASHPARAMSVAL on callback.
var V1 = Dialect{
	Name:     "estpos",
	formHash: provider.HashSpec{Algorithm: provider.SHA1, Encoding: provider.EncodingBase64},
	sign: func(spec provider.HashSpec, storeKey string, in map[string]string) (string, error) {
		return spec.Sign(storeKey, in["clientid"], in["oid"], in["amount"], in["okUrl"], in["failUrl"], in["islemtipi"], in["taksit"], in["rnd"])
	},
	verify: func(spec provider.HashSpec, storeKey string, cb provider.GatewayResponse) bool {
		params := provider.Str(cb, "HASHPARAMS")
		paramsVal := provider.RawStr(cb, "HASHPARAMSVAL")
		if params == "" {
			return false
		}
		joined := ""
		for _, v := range provider.HashParamValues(cb, params, ":") {
			joined += v
		}
		if joined != paramsVal {
			return false
		}
		return spec.Verify(provider.Str(cb, "HASH"), storeKey, paramsVal)
	},
}

// V3 signs every form field sorted by name, pipe-joined and escaped.
var V3 = Dialect{
	Name:          "estpos_v3",
	HashAlgorithm: "ver3",
	formHash: provider.HashSpec{
		Algorithm: provider.SHA512,
		Encoding:  provider.EncodingBase64,
		Delimiter: "|",
		Escape:    provider.EscapePipe,
	},
	sign: func(spec provider.HashSpec, storeKey string, in map[string]string) (string, error) {
		return spec.Sign(storeKey, provider.SortedValues(in, "hash", "encoding")...)
	},
	verify: func(spec provider.HashSpec, storeKey string, cb provider.GatewayResponse) bool {
		return spec.Verify(provider.Str(cb, "HASH"), storeKey, provider.SortedValues(provider.StringMap(cb), "hash", "encoding", "countdown")...)
	},
}

// Gateway is the EST adapter.
type Gateway struct {
	dialect   Dialect
	endpoints provider.Endpoints
	requests  *RequestMapper
	responses *ResponseMapper
}

// New creates an EST gateway speaking the dialect. Production endpoints
// are bank specific and come from the account overrides.
func New(dialect Dialect) *Gateway {
	return &Gateway{
		dialect: dialect,
		endpoints: provider.Endpoints{
			API:     apiTestURL,
			Gateway: gatewayTestURL,
			Host:    gatewayTestURL,
		},
		requests:  &RequestMapper{dialect: dialect, values: valueMapper(dialect.Name)},
		responses: &ResponseMapper{values: valueMapper(dialect.Name), codes: codeTable, md: provider.DefaultMdStatus},
	}
}

func (g *Gateway) Name() string { return g.dialect.Name }

func (g *Gateway) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Models: []provider.SecurityModel{
			provider.ModelNonSecure, provider.Model3DSecure, provider.Model3DPay,
			provider.Model3DPayHosting, provider.Model3DHost,
		},
		TxTypes: []provider.TransactionType{
			provider.TxTypePay, provider.TxTypePreAuth, provider.TxTypePostAuth,
			provider.TxTypeCancel, provider.TxTypeRefund, provider.TxTypeRefundPartial,
			provider.TxTypeStatus, provider.TxTypeOrderHistory, provider.TxTypeCustomQuery,
		},
	}
}

func (g *Gateway) Requests() provider.RequestMapper   { return g.requests }
func (g *Gateway) Responses() provider.ResponseMapper { return g.responses }

func (g *Gateway) Envelope(acc *provider.Account, op provider.Operation) (provider.Envelope, error) {
	if op == provider.OpEnrollment || op == provider.OpHistory {
		return provider.Envelope{}, provider.NotImplemented(g.Name(), string(op))
	}
	return provider.Envelope{
		Kind: provider.EnvelopeXML,
		URL:  g.endpoints.Resolve(acc).API,
		Root: "CC5Request",
	}, nil
}

func (g *Gateway) FormURL(acc *provider.Account, model provider.SecurityModel) string {
	ep := g.endpoints.Resolve(acc)
	if model.IsHosted() {
		return ep.Host
	}
	return ep.Gateway
}

func (g *Gateway) Verify3DHash(acc *provider.Account, callback provider.GatewayResponse) error {
	if !g.dialect.verify(g.dialect.formHash, acc.StoreKey, callback) {
		return provider.SecurityRejected(g.Name())
	}
	return nil
}

func valueMapper(gateway string) provider.ValueMapper {
	return provider.ValueMapper{
		Gateway: gateway,
		Currencies: map[string]string{
			"TRY": "949", "USD": "840", "EUR": "978", "GBP": "826", "JPY": "392", "RUB": "643",
		},
		TxTypes: map[provider.TransactionType]map[provider.SecurityModel]string{
			provider.TxTypePay:           {provider.AnyModel: "Auth"},
			provider.TxTypePreAuth:       {provider.AnyModel: "PreAuth"},
			provider.TxTypePostAuth:      {provider.AnyModel: "PostAuth"},
			provider.TxTypeCancel:        {provider.AnyModel: "Void"},
			provider.TxTypeRefund:        {provider.AnyModel: "Credit"},
			provider.TxTypeRefundPartial: {provider.AnyModel: "Credit"},
		},
		CardBrands: map[provider.CardBrand]string{
			provider.CardVisa: "1", provider.CardMasterCard: "2",
		},
		Langs:       map[string]string{"tr": "tr", "en": "en"},
		DefaultLang: "tr",
		SecureTypes: map[provider.SecurityModel]string{
			provider.ModelNonSecure:    "regular",
			provider.Model3DSecure:     "3d",
			provider.Model3DPay:        "3d_pay",
			provider.Model3DPayHosting: "3d_pay_hosting",
			provider.Model3DHost:       "3d_host",
		},
		Installment: provider.InstallmentPolicy{None: ""},
		Amount:      provider.AmountDotDecimal,
		DateLayouts: map[string]string{"": "2006-01-02 15:04:05"},
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
		"28": provider.DetailReject,
		"51": provider.DetailInsufficientBalance,
		"54": provider.DetailExpiredCard,
		"57": provider.DetailDoesNotAllowCardHolder,
		"62": provider.DetailRestrictedCard,
		"77": provider.DetailRequestRejected,
		"99": provider.DetailGeneralError,
	},
}

func formatErr(gateway, field string) error {
	return &provider.ValidationError{Field: field, Reason: fmt.Sprintf("required by %s", gateway)}
}
