package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mstgnz/gopos/infra/opensearch"
	"github.com/mstgnz/gopos/provider"
	"github.com/mstgnz/gopos/infra/store"
)

const fakeName = "fakebank"

// fakeGateway is gateway and both mappers at once. Requests echo their
// inputs so tests can see what reached the transport.
type fakeGateway struct {
	caps      provider.Capabilities
	verifyErr error

	mu        sync.Mutex
	lastOrder provider.Order
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{caps: provider.Capabilities{
		Models: []provider.SecurityModel{provider.ModelNonSecure, provider.Model3DSecure, provider.Model3DPay},
		TxTypes: []provider.TransactionType{
			provider.TxTypePay, provider.TxTypePreAuth, provider.TxTypePostAuth,
			provider.TxTypeRefund, provider.TxTypeRefundPartial, provider.TxTypeStatus,
			provider.TxTypeHistory, provider.TxTypeOrderHistory, provider.TxTypeCustomQuery,
		},
	}}
}

func (g *fakeGateway) Name() string                        { return fakeName }
func (g *fakeGateway) Capabilities() provider.Capabilities { return g.caps }
func (g *fakeGateway) Requests() provider.RequestMapper    { return g }
func (g *fakeGateway) Responses() provider.ResponseMapper  { return g }

func (g *fakeGateway) Envelope(_ *provider.Account, op provider.Operation) (provider.Envelope, error) {
	return provider.Envelope{Kind: provider.EnvelopeJSON, URL: "https://bank.test/api", Root: string(op)}, nil
}

func (g *fakeGateway) FormURL(_ *provider.Account, _ provider.SecurityModel) string {
	return "https://bank.test/3d"
}

func (g *fakeGateway) Verify3DHash(_ *provider.Account, _ provider.GatewayResponse) error {
	return g.verifyErr
}

func (g *fakeGateway) remember(order provider.Order) {
	g.mu.Lock()
	g.lastOrder = order
	g.mu.Unlock()
}

func (g *fakeGateway) CreatePaymentRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType, card *provider.CreditCard) (provider.GatewayRequest, error) {
	g.remember(order)
	return provider.GatewayRequest{"oid": order.ID, "type": string(txType), "pan": card.Number, "Password": acc.Password}, nil
}

func (g *fakeGateway) CreatePostAuthRequestData(_ *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	return provider.GatewayRequest{"oid": order.ID, "type": "post"}, nil
}

func (g *fakeGateway) Create3DEnrollmentCheckRequestData(*provider.Account, provider.Order, provider.SecurityModel, provider.TransactionType, *provider.CreditCard) (provider.GatewayRequest, error) {
	return nil, provider.NotImplemented(fakeName, "enrollment")
}

func (g *fakeGateway) Create3DPaymentRequestData(_ *provider.Account, order provider.Order, txType provider.TransactionType, callback provider.GatewayResponse) (provider.GatewayRequest, error) {
	return provider.GatewayRequest{"oid": order.ID, "type": string(txType), "md": provider.Str(callback, "md")}, nil
}

func (g *fakeGateway) Create3DFormData(_ *provider.Account, order provider.Order, _ provider.SecurityModel, _ provider.TransactionType, gatewayURL string, _ *provider.CreditCard) (*provider.RedirectForm, error) {
	g.remember(order)
	return &provider.RedirectForm{
		Gateway: gatewayURL,
		Method:  "POST",
		Inputs:  map[string]string{"oid": order.ID, "okUrl": order.SuccessURL, "failUrl": order.FailURL},
	}, nil
}

func (g *fakeGateway) CreateStatusRequestData(_ *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	return provider.GatewayRequest{"oid": order.ID, "type": "status"}, nil
}

func (g *fakeGateway) CreateCancelRequestData(_ *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	return provider.GatewayRequest{"oid": order.ID, "type": "cancel"}, nil
}

func (g *fakeGateway) CreateRefundRequestData(acc *provider.Account, order provider.Order, txType provider.TransactionType) (provider.GatewayRequest, error) {
	return provider.GatewayRequest{"oid": order.ID, "type": string(txType), "amount": order.Amount.StringFixed(2), "Password": acc.Password}, nil
}

func (g *fakeGateway) CreateHistoryRequestData(_ *provider.Account, q provider.HistoryQuery) (provider.GatewayRequest, error) {
	return provider.GatewayRequest{"type": "history", "from": q.StartDate.Format("2006-01-02")}, nil
}

func (g *fakeGateway) CreateOrderHistoryRequestData(_ *provider.Account, order provider.Order) (provider.GatewayRequest, error) {
	return provider.GatewayRequest{"oid": order.ID, "type": "order_history"}, nil
}

func (g *fakeGateway) CreateCustomQueryRequestData(acc *provider.Account, data provider.GatewayRequest) (provider.GatewayRequest, error) {
	req := provider.GatewayRequest{"merchant": acc.MerchantID}
	for k, v := range data {
		req[k] = v
	}
	return req, nil
}

func mapCode(raw provider.GatewayResponse, res provider.Result) provider.Result {
	res.ProcReturnCode = provider.Str(raw, "code")
	if res.ProcReturnCode == "00" {
		res.Status, res.StatusDetail = provider.StatusApproved, provider.DetailApproved
	} else {
		res.ErrorCode = res.ProcReturnCode
	}
	return res
}

func (g *fakeGateway) MapPaymentResponse(raw provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	return mapCode(raw, provider.NewResult(order, txType, provider.ModelNonSecure, raw))
}

func (g *fakeGateway) Map3DPaymentData(callback, provision provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	if provision == nil {
		res := provider.NewResult(order, txType, provider.Model3DSecure, callback)
		res.StatusDetail = provider.Detail3DAuthFailed
		return res
	}
	return mapCode(provision, provider.NewResult(order, txType, provider.Model3DSecure, provision))
}

func (g *fakeGateway) Map3DPayResponseData(callback provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	return mapCode(callback, provider.NewResult(order, txType, provider.Model3DPay, callback))
}

func (g *fakeGateway) Map3DHostResponseData(callback provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	return mapCode(callback, provider.NewResult(order, txType, provider.Model3DHost, callback))
}

func (g *fakeGateway) MapRefundResponse(raw provider.GatewayResponse) provider.Result {
	return mapCode(raw, provider.NewResult(provider.Order{}, provider.TxTypeRefund, "", raw))
}

func (g *fakeGateway) MapCancelResponse(raw provider.GatewayResponse) provider.Result {
	return mapCode(raw, provider.NewResult(provider.Order{}, provider.TxTypeCancel, "", raw))
}

func (g *fakeGateway) MapStatusResponse(raw provider.GatewayResponse) provider.Result {
	res := mapCode(raw, provider.NewResult(provider.Order{}, provider.TxTypeStatus, "", raw))
	res.OrderStatus = provider.Str(raw, "orderStatus")
	return res
}

func (g *fakeGateway) MapHistoryResponse(raw provider.GatewayResponse) provider.Result {
	return mapCode(raw, provider.NewResult(provider.Order{}, provider.TxTypeHistory, "", raw))
}

func (g *fakeGateway) MapOrderHistoryResponse(raw provider.GatewayResponse) provider.Result {
	return mapCode(raw, provider.NewResult(provider.Order{}, provider.TxTypeOrderHistory, "", raw))
}

func (g *fakeGateway) ExtractMdStatus(callback provider.GatewayResponse) string {
	return provider.Str(callback, "mdStatus")
}

func (g *fakeGateway) Is3DAuthSuccess(mdStatus string) bool {
	return provider.DefaultMdStatus.Authenticated(mdStatus)
}

type sent struct {
	op  string
	req provider.GatewayRequest
}

// fakeTransport answers by operation and records what was sent.
type fakeTransport struct {
	mu        sync.Mutex
	responses map[string]provider.GatewayResponse
	err       error
	delay     time.Duration
	sent      []sent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: map[string]provider.GatewayResponse{}}
}

func (t *fakeTransport) Send(_ context.Context, _ string, req provider.GatewayRequest, env provider.Envelope) (provider.GatewayResponse, error) {
	time.Sleep(t.delay)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sent{op: env.Root, req: req})
	if t.err != nil {
		return nil, t.err
	}
	if r, ok := t.responses[env.Root]; ok {
		return r, nil
	}
	return provider.GatewayResponse{"code": "00"}, nil
}

func (t *fakeTransport) calls() []sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sent(nil), t.sent...)
}

// memoryAccounts is an AccountStore counting loads.
type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]provider.Account
	loads    int
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{accounts: map[string]provider.Account{}}
}

func (m *memoryAccounts) Account(_ context.Context, merchantKey, gateway string) (*provider.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	acc, ok := m.accounts[merchantKey+"/"+gateway]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return &acc, nil
}

func (m *memoryAccounts) SaveAccount(_ context.Context, merchantKey string, acc *provider.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[merchantKey+"/"+acc.Gateway] = *acc
	return nil
}

func (m *memoryAccounts) DeleteAccount(_ context.Context, merchantKey, gateway string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, merchantKey+"/"+gateway)
	return nil
}

func (m *memoryAccounts) loadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []opensearch.TransactionLog
	err     error
}

func (a *fakeAudit) LogTransaction(_ context.Context, entry opensearch.TransactionLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return a.err
}

func (a *fakeAudit) last() opensearch.TransactionLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return opensearch.TransactionLog{}
	}
	return a.entries[len(a.entries)-1]
}

var errBoom = errors.New("boom")
