// Package kuveytpos implements the Kuveyt Türk virtual POS. Card
// enrollment is checked server side: the bank answers the enrollment
// request with the ACS form. Provisioning uses XML, and status, cancel and
// refund go through the SOAP service.
package kuveytpos

import (
	"github.com/mstgnz/gopos/provider"
)

const (
	gatewayName = "kuveytpos"

	enrollmentTestURL = "https://boatest.kuveytturk.com.tr/boa.virtualpos.services/Home/ThreeDModelPayGate"
	provisionTestURL  = "https://boatest.kuveytturk.com.tr/boa.virtualpos.services/Home/ThreeDModelProvisionGate"
	soapTestURL       = "https://boatest.kuveytturk.com.tr/BOA.Integration.WCFService/BOA.Integration.VirtualPos/VirtualPosService.svc/Basic"

	enrollmentProdURL = "https://sanalpos.kuveytturk.com.tr/ServiceGateWay/Home/ThreeDModelPayGate"
	provisionProdURL  = "https://sanalpos.kuveytturk.com.tr/ServiceGateWay/Home/ThreeDModelProvisionGate"
	soapProdURL       = "https://boa.kuveytturk.com.tr/BOA.Integration.WCFService/BOA.Integration.VirtualPos/VirtualPosService.svc/Basic"

	apiVersion    = "TDV2.0.0"
	messageRoot   = "KuveytTurkVPosMessage"
	soapNamespace = "http://boa.net/BOA.Integration.VirtualPos/Service"
	soapActionFmt = soapNamespace + "/IVirtualPosService/"
)

// SOAP operations.
const (
	opOrderDetail     = "GetMerchantOrderDetail"
	opSaleReversal    = "SaleReversal"
	opDrawBack        = "DrawBack"
	opPartialDrawback = "PartialDrawback"
)

// Every Kuveyt hash is base64(sha1()) over ISO-8859-9 text.
var kuveytHash = provider.HashSpec{
	Algorithm: provider.SHA1,
	Encoding:  provider.EncodingBase64,
	Charset:   provider.CharsetISO88599,
}

func hashedPassword(password string) (string, error) {
	return kuveytHash.Sign("", password)
}

// Gateway is the KuveytPos adapter.
type Gateway struct {
	test      provider.Endpoints
	prod      provider.Endpoints
	requests  *RequestMapper
	responses *ResponseMapper
}

// New creates the KuveytPos gateway.
func New() *Gateway {
	values := valueMapper()
	return &Gateway{
		test:      provider.Endpoints{API: provisionTestURL, Gateway: enrollmentTestURL, Query: soapTestURL},
		prod:      provider.Endpoints{API: provisionProdURL, Gateway: enrollmentProdURL, Query: soapProdURL},
		requests:  &RequestMapper{values: values},
		responses: &ResponseMapper{values: values},
	}
}

func (g *Gateway) Name() string { return gatewayName }

func (g *Gateway) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Models: []provider.SecurityModel{provider.Model3DSecure},
		TxTypes: []provider.TransactionType{
			provider.TxTypePay, provider.TxTypeCancel, provider.TxTypeRefund,
			provider.TxTypeRefundPartial, provider.TxTypeStatus, provider.TxTypeCustomQuery,
		},
		EnrollmentCheck: true,
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

func soapEnvelope(url, operation string) provider.Envelope {
	return provider.Envelope{
		Kind:       provider.EnvelopeSOAP,
		URL:        url,
		Root:       operation,
		SOAPAction: soapActionFmt + operation,
	}
}

// Envelope routes enrollment, provisioning and custom queries to the XML
// gates and the after-sale operations to the SOAP service. OpRefund
// resolves to the full DrawBack; see EnvelopeFor.
func (g *Gateway) Envelope(acc *provider.Account, op provider.Operation) (provider.Envelope, error) {
	ep := g.endpoints(acc)
	switch op {
	case provider.OpEnrollment:
		return provider.Envelope{Kind: provider.EnvelopeXML, URL: ep.Gateway, Root: messageRoot}, nil
	case provider.Op3DPayment, provider.OpCustomQuery:
		return provider.Envelope{Kind: provider.EnvelopeXML, URL: ep.API, Root: messageRoot}, nil
	case provider.OpStatus:
		return soapEnvelope(ep.Query, opOrderDetail), nil
	case provider.OpCancel:
		return soapEnvelope(ep.Query, opSaleReversal), nil
	case provider.OpRefund:
		return soapEnvelope(ep.Query, opDrawBack), nil
	}
	return provider.Envelope{}, provider.NotImplemented(gatewayName, string(op))
}

// EnvelopeFor picks PartialDrawback for partial refunds.
func (g *Gateway) EnvelopeFor(acc *provider.Account, op provider.Operation, txType provider.TransactionType) (provider.Envelope, error) {
	if op == provider.OpRefund && txType == provider.TxTypeRefundPartial {
		return soapEnvelope(g.endpoints(acc).Query, opPartialDrawback), nil
	}
	return g.Envelope(acc, op)
}

// FormURL is the enrollment gate. The ACS form itself comes back from the
// enrollment call.
func (g *Gateway) FormURL(acc *provider.Account, _ provider.SecurityModel) string {
	return g.endpoints(acc).Gateway
}

// Verify3DHash checks HashData = base64(sha1(MerchantOrderId + ResponseCode
// + OrderId + hashedPassword)). A failed authentication may arrive without
// HashData; it returns a *provider.UnsignedDeclineError so the flow ends
// as a decline without being treated as verified.
func (g *Gateway) Verify3DHash(acc *provider.Account, callback provider.GatewayResponse) error {
	responseCode := provider.Str(callback, "ResponseCode")
	supplied := provider.Str(callback, "HashData")
	if supplied == "" {
		if responseCode != "" && responseCode != codeApproved {
			return &provider.UnsignedDeclineError{
				Gateway: gatewayName,
				Code:    responseCode,
				Message: provider.Str(callback, "ResponseMessage"),
			}
		}
		return provider.SecurityRejected(gatewayName)
	}
	pwd, err := hashedPassword(acc.Password)
	if err != nil {
		return err
	}
	if !kuveytHash.Verify(supplied, pwd,
		provider.RawStr(callback, "MerchantOrderId"), provider.RawStr(callback, "ResponseCode"), provider.RawStr(callback, "OrderId")) {
		return provider.SecurityRejected(gatewayName)
	}
	return nil
}

func valueMapper() provider.ValueMapper {
	return provider.ValueMapper{
		Gateway: gatewayName,
		Currencies: map[string]string{
			"TRY": "0949", "USD": "0840", "EUR": "0978", "GBP": "0826", "JPY": "0392", "RUB": "0810",
		},
		TxTypes: map[provider.TransactionType]map[provider.SecurityModel]string{
			provider.TxTypePay:           {provider.AnyModel: "Sale"},
			provider.TxTypeCancel:        {provider.AnyModel: "SaleReversal"},
			provider.TxTypeRefund:        {provider.AnyModel: "Drawback"},
			provider.TxTypeRefundPartial: {provider.AnyModel: "PartialDrawback"},
			provider.TxTypeStatus:        {provider.AnyModel: "GetMerchantOrderDetail"},
		},
		CardBrands: map[provider.CardBrand]string{
			provider.CardVisa:       "Visa",
			provider.CardMasterCard: "MasterCard",
			provider.CardTroy:       "Troy",
		},
		SecureTypes: map[provider.SecurityModel]string{
			provider.Model3DSecure: "3",
		},
		Installment: provider.InstallmentPolicy{None: "0"},
		Amount:      provider.AmountMinorUnits,
		DateLayouts: map[string]string{
			"":         "2006-01-02T15:04:05",
			"response": "2006-01-02T15:04:05.999999999",
		},
	}
}

const codeApproved = "00"

var codeTable = provider.CodeTable{
	Approved: []string{codeApproved},
	Details: map[string]string{
		"05":                   provider.DetailReject,
		"51":                   provider.DetailInsufficientBalance,
		"54":                   provider.DetailExpiredCard,
		"57":                   provider.DetailDoesNotAllowCardHolder,
		"62":                   provider.DetailRestrictedCard,
		"MetaDataNotFound":     provider.DetailNotEnrolled,
		"EmptyMDException":     provider.DetailInvalidTransaction,
		"HashDataError":        provider.DetailInvalidCredentials,
		"InvalidMerchant":      provider.DetailInvalidCredentials,
		"OrderNotFound":        provider.DetailTransactionNotFound,
		"TransactionCancelled": provider.DetailAlreadyCancelled,
	},
}
