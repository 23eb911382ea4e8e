package provider

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
)

// Operation selects the endpoint and envelope for one gateway call.
type Operation string

const (
	OpPayment      Operation = "payment"
	OpEnrollment   Operation = "enrollment"
	Op3DPayment    Operation = "3d_payment"
	OpPostAuth     Operation = "post_auth"
	OpStatus       Operation = "status"
	OpCancel       Operation = "cancel"
	OpRefund       Operation = "refund"
	OpHistory      Operation = "history"
	OpOrderHistory Operation = "order_history"
	OpCustomQuery  Operation = "custom_query"
)

// OperationFor maps a non-payment transaction type to its operation.
func OperationFor(txType TransactionType) Operation {
	switch txType {
	case TxTypePostAuth:
		return OpPostAuth
	case TxTypeStatus:
		return OpStatus
	case TxTypeCancel:
		return OpCancel
	case TxTypeRefund, TxTypeRefundPartial:
		return OpRefund
	case TxTypeHistory:
		return OpHistory
	case TxTypeOrderHistory:
		return OpOrderHistory
	case TxTypeCustomQuery:
		return OpCustomQuery
	default:
		return OpPayment
	}
}

// EnvelopeKind is the wire encoding of a request body.
type EnvelopeKind string

const (
	EnvelopeForm EnvelopeKind = "form"
	EnvelopeJSON EnvelopeKind = "json"
	EnvelopeXML  EnvelopeKind = "xml"
	EnvelopeSOAP EnvelopeKind = "soap"
)

// Envelope tells the transport how to encode and where to send a request.
type Envelope struct {
	Kind       EnvelopeKind
	URL        string
	Root       string // XML root element
	FormField  string // when set, the XML body is posted as this form field
	SOAPAction string
	Headers    map[string]string
	// SignBody returns headers computed over the exact encoded body.
	SignBody func(body []byte) (map[string]string, error)
}

// Transport sends an encoded request and returns the decoded response.
type Transport interface {
	Send(ctx context.Context, gateway string, req GatewayRequest, env Envelope) (GatewayResponse, error)
}

// RedirectForm is the auto-submitted form that sends the card holder to
// the bank (or ACS) page.
type RedirectForm struct {
	Gateway string            `json:"gateway"`
	Method  string            `json:"method"`
	Inputs  map[string]string `json:"inputs"`
}

// HTML renders a self-submitting form. Input order is stable.
func (f *RedirectForm) HTML() string {
	keys := make([]string, 0, len(f.Inputs))
	for k := range f.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><title>3D Secure</title></head>\n")
	b.WriteString(`<body onload="document.forms[0].submit()">` + "\n")
	fmt.Fprintf(&b, `<form method="%s" action="%s">`+"\n", html.EscapeString(f.Method), html.EscapeString(f.Gateway))
	for _, k := range keys {
		fmt.Fprintf(&b, `<input type="hidden" name="%s" value="%s">`+"\n", html.EscapeString(k), html.EscapeString(f.Inputs[k]))
	}
	b.WriteString(`<noscript><button type="submit">Continue</button></noscript>` + "\n")
	b.WriteString("</form>\n</body>\n</html>")
	return b.String()
}

// HistoryQuery filters a date-range history request.
type HistoryQuery struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Page      int       `json:"page,omitempty"`
	PageSize  int       `json:"page_size,omitempty"`
}

// Capabilities lists what a gateway supports. Callers branch on these
// instead of on the gateway identity.
type Capabilities struct {
	Models          []SecurityModel
	TxTypes         []TransactionType
	EnrollmentCheck bool // card enrollment is checked server-side before redirect
}

func (c Capabilities) SupportsModel(model SecurityModel) bool {
	for _, m := range c.Models {
		if m == model {
			return true
		}
	}
	return false
}

func (c Capabilities) SupportsTx(txType TransactionType) bool {
	for _, t := range c.TxTypes {
		if t == txType {
			return true
		}
	}
	return false
}

func (c Capabilities) SupportsHistory() bool       { return c.SupportsTx(TxTypeHistory) }
func (c Capabilities) SupportsOrderHistory() bool  { return c.SupportsTx(TxTypeOrderHistory) }
func (c Capabilities) SupportsPartialRefund() bool { return c.SupportsTx(TxTypeRefundPartial) }

// RequestMapper builds gateway requests from canonical input. Every method
// is pure: it never performs I/O and never mutates the account. The
// account's PreSign hook runs right before the signature is computed.
type RequestMapper interface {
	CreatePaymentRequestData(acc *Account, order Order, txType TransactionType, card *CreditCard) (GatewayRequest, error)
	CreatePostAuthRequestData(acc *Account, order Order) (GatewayRequest, error)
	Create3DEnrollmentCheckRequestData(acc *Account, order Order, model SecurityModel, txType TransactionType, card *CreditCard) (GatewayRequest, error)
	Create3DPaymentRequestData(acc *Account, order Order, txType TransactionType, callback GatewayResponse) (GatewayRequest, error)
	Create3DFormData(acc *Account, order Order, model SecurityModel, txType TransactionType, gatewayURL string, card *CreditCard) (*RedirectForm, error)
	CreateStatusRequestData(acc *Account, order Order) (GatewayRequest, error)
	CreateCancelRequestData(acc *Account, order Order) (GatewayRequest, error)
	CreateRefundRequestData(acc *Account, order Order, txType TransactionType) (GatewayRequest, error)
	CreateHistoryRequestData(acc *Account, query HistoryQuery) (GatewayRequest, error)
	CreateOrderHistoryRequestData(acc *Account, order Order) (GatewayRequest, error)
	CreateCustomQueryRequestData(acc *Account, data GatewayRequest) (GatewayRequest, error)
}

// ResponseMapper maps decoded gateway responses to Results. It is total:
// unknown codes map to declined with DetailGeneralError, never a panic.
type ResponseMapper interface {
	MapPaymentResponse(raw GatewayResponse, txType TransactionType, order Order) Result
	Map3DPaymentData(callback, provision GatewayResponse, txType TransactionType, order Order) Result
	Map3DPayResponseData(callback GatewayResponse, txType TransactionType, order Order) Result
	Map3DHostResponseData(callback GatewayResponse, txType TransactionType, order Order) Result
	MapRefundResponse(raw GatewayResponse) Result
	MapCancelResponse(raw GatewayResponse) Result
	MapStatusResponse(raw GatewayResponse) Result
	MapHistoryResponse(raw GatewayResponse) Result
	MapOrderHistoryResponse(raw GatewayResponse) Result
	ExtractMdStatus(callback GatewayResponse) string
	Is3DAuthSuccess(mdStatus string) bool
}

// EnrollmentMapper is implemented by gateways with Capabilities.EnrollmentCheck.
// A nil form means the card is not enrolled and result holds the decline.
type EnrollmentMapper interface {
	MapEnrollmentResponse(raw GatewayResponse, order Order) (*RedirectForm, Result)
}

// Gateway is one bank integration.
type Gateway interface {
	Name() string
	Capabilities() Capabilities
	Requests() RequestMapper
	Responses() ResponseMapper
	// Envelope returns how op is sent for the account.
	Envelope(acc *Account, op Operation) (Envelope, error)
	// FormURL returns the bank page the redirect form posts to.
	FormURL(acc *Account, model SecurityModel) string
	// Verify3DHash checks the callback signature and returns an error
	// wrapping ErrSecurityRejected on mismatch, or an *UnsignedDeclineError
	// for a failed authentication the bank does not sign.
	Verify3DHash(acc *Account, callback GatewayResponse) error
}

// TxEnveloper is implemented by gateways whose envelope also depends on
// the transaction type, not only on the operation.
type TxEnveloper interface {
	EnvelopeFor(acc *Account, op Operation, txType TransactionType) (Envelope, error)
}

// EnvelopeFor returns the envelope for op, consulting TxEnveloper when the
// gateway implements it.
func EnvelopeFor(gw Gateway, acc *Account, op Operation, txType TransactionType) (Envelope, error) {
	if te, ok := gw.(TxEnveloper); ok {
		return te.EnvelopeFor(acc, op, txType)
	}
	return gw.Envelope(acc, op)
}

// Endpoints groups the default URLs of a gateway.
type Endpoints struct {
	API     string
	Gateway string
	Host    string
	Query   string
}

// Resolve applies the account overrides to the defaults.
func (e Endpoints) Resolve(acc *Account) Endpoints {
	out := e
	if acc.APIURL != "" {
		out.API = acc.APIURL
	}
	if acc.GatewayURL != "" {
		out.Gateway = acc.GatewayURL
		out.Host = acc.GatewayURL
	}
	if acc.QueryURL != "" {
		out.Query = acc.QueryURL
	}
	return out
}

// ApplyPreSign runs the account hook, if any.
func ApplyPreSign(acc *Account, txType TransactionType, req GatewayRequest) error {
	if acc.PreSign == nil {
		return nil
	}
	if err := acc.PreSign(txType, req); err != nil {
		return fmt.Errorf("pre-sign hook: %w", err)
	}
	return nil
}
