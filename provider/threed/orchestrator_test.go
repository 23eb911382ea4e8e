package threed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mstgnz/gopos/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway serves as gateway, request mapper and response mapper.
type fakeGateway struct {
	caps       provider.Capabilities
	verifyErr  error
	enrollForm *provider.RedirectForm
}

func newFakeGateway(models ...provider.SecurityModel) *fakeGateway {
	return &fakeGateway{caps: provider.Capabilities{
		Models:  models,
		TxTypes: []provider.TransactionType{provider.TxTypePay, provider.TxTypePreAuth},
	}}
}

func (g *fakeGateway) Name() string                        { return "fake" }
func (g *fakeGateway) Capabilities() provider.Capabilities { return g.caps }
func (g *fakeGateway) Requests() provider.RequestMapper    { return g }
func (g *fakeGateway) Responses() provider.ResponseMapper  { return g }

func (g *fakeGateway) Envelope(_ *provider.Account, op provider.Operation) (provider.Envelope, error) {
	return provider.Envelope{Kind: provider.EnvelopeJSON, URL: "https://bank.test", Root: string(op)}, nil
}

func (g *fakeGateway) FormURL(_ *provider.Account, model provider.SecurityModel) string {
	return "https://bank.test/" + string(model)
}

func (g *fakeGateway) Verify3DHash(_ *provider.Account, _ provider.GatewayResponse) error {
	return g.verifyErr
}

func (g *fakeGateway) CreatePaymentRequestData(_ *provider.Account, order provider.Order, _ provider.TransactionType, _ *provider.CreditCard) (provider.GatewayRequest, error) {
	return provider.GatewayRequest{"oid": order.ID}, nil
}

func (g *fakeGateway) CreatePostAuthRequestData(*provider.Account, provider.Order) (provider.GatewayRequest, error) {
	return nil, provider.NotImplemented("fake", "post auth")
}

func (g *fakeGateway) Create3DEnrollmentCheckRequestData(_ *provider.Account, order provider.Order, _ provider.SecurityModel, _ provider.TransactionType, _ *provider.CreditCard) (provider.GatewayRequest, error) {
	return provider.GatewayRequest{"oid": order.ID}, nil
}

func (g *fakeGateway) Create3DPaymentRequestData(_ *provider.Account, order provider.Order, _ provider.TransactionType, callback provider.GatewayResponse) (provider.GatewayRequest, error) {
	return provider.GatewayRequest{"oid": order.ID, "md": provider.Str(callback, "md")}, nil
}

func (g *fakeGateway) Create3DFormData(_ *provider.Account, order provider.Order, _ provider.SecurityModel, _ provider.TransactionType, gatewayURL string, _ *provider.CreditCard) (*provider.RedirectForm, error) {
	return &provider.RedirectForm{Gateway: gatewayURL, Method: "POST", Inputs: map[string]string{"oid": order.ID}}, nil
}

func (g *fakeGateway) CreateStatusRequestData(*provider.Account, provider.Order) (provider.GatewayRequest, error) {
	return nil, nil
}

func (g *fakeGateway) CreateCancelRequestData(*provider.Account, provider.Order) (provider.GatewayRequest, error) {
	return nil, nil
}

func (g *fakeGateway) CreateRefundRequestData(*provider.Account, provider.Order, provider.TransactionType) (provider.GatewayRequest, error) {
	return nil, nil
}

func (g *fakeGateway) CreateHistoryRequestData(*provider.Account, provider.HistoryQuery) (provider.GatewayRequest, error) {
	return nil, nil
}

func (g *fakeGateway) CreateOrderHistoryRequestData(*provider.Account, provider.Order) (provider.GatewayRequest, error) {
	return nil, nil
}

func (g *fakeGateway) CreateCustomQueryRequestData(*provider.Account, provider.GatewayRequest) (provider.GatewayRequest, error) {
	return nil, nil
}

func approvedIf(raw provider.GatewayResponse, res provider.Result) provider.Result {
	if provider.Str(raw, "code") == "00" {
		res.Status, res.StatusDetail = provider.StatusApproved, provider.DetailApproved
	}
	return res
}

func (g *fakeGateway) MapPaymentResponse(raw provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	return approvedIf(raw, provider.NewResult(order, txType, provider.ModelNonSecure, raw))
}

func (g *fakeGateway) Map3DPaymentData(callback, provision provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	res := provider.NewResult(order, txType, provider.Model3DSecure, callback)
	res.Security.MdStatus = g.ExtractMdStatus(callback)
	if provision == nil {
		res.StatusDetail = provider.Detail3DAuthFailed
		return res
	}
	return approvedIf(provision, res)
}

func (g *fakeGateway) Map3DPayResponseData(callback provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	return approvedIf(callback, provider.NewResult(order, txType, provider.Model3DPay, callback))
}

func (g *fakeGateway) Map3DHostResponseData(callback provider.GatewayResponse, txType provider.TransactionType, order provider.Order) provider.Result {
	res := approvedIf(callback, provider.NewResult(order, txType, provider.Model3DHost, callback))
	res.AuthCode = "host"
	return res
}

func (g *fakeGateway) MapRefundResponse(raw provider.GatewayResponse) provider.Result {
	return provider.Result{}
}
func (g *fakeGateway) MapCancelResponse(raw provider.GatewayResponse) provider.Result {
	return provider.Result{}
}
func (g *fakeGateway) MapStatusResponse(raw provider.GatewayResponse) provider.Result {
	return provider.Result{}
}
func (g *fakeGateway) MapHistoryResponse(raw provider.GatewayResponse) provider.Result {
	return provider.Result{}
}
func (g *fakeGateway) MapOrderHistoryResponse(raw provider.GatewayResponse) provider.Result {
	return provider.Result{}
}

func (g *fakeGateway) ExtractMdStatus(callback provider.GatewayResponse) string {
	return provider.Str(callback, "mdStatus")
}

func (g *fakeGateway) Is3DAuthSuccess(mdStatus string) bool {
	return provider.DefaultMdStatus.Authenticated(mdStatus)
}

func (g *fakeGateway) MapEnrollmentResponse(raw provider.GatewayResponse, order provider.Order) (*provider.RedirectForm, provider.Result) {
	res := provider.NewResult(order, provider.TxTypePay, provider.Model3DSecure, raw)
	if g.enrollForm == nil {
		res.StatusDetail = provider.DetailNotEnrolled
	}
	return g.enrollForm, res
}

type sentRequest struct {
	op  string
	req provider.GatewayRequest
}

type fakeTransport struct {
	response provider.GatewayResponse
	err      error
	sent     []sentRequest
}

func (t *fakeTransport) Send(_ context.Context, _ string, req provider.GatewayRequest, env provider.Envelope) (provider.GatewayResponse, error) {
	t.sent = append(t.sent, sentRequest{op: env.Root, req: req})
	return t.response, t.err
}

func testAccount(models ...provider.SecurityModel) *provider.Account {
	return &provider.Account{Gateway: "fake", MerchantID: "100", Models: models}
}

func testOrder() provider.Order {
	return provider.Order{
		ID:         "ORD-1",
		Amount:     decimal.RequireFromString("10.01"),
		Currency:   "TRY",
		SuccessURL: "https://shop.test/ok",
		FailURL:    "https://shop.test/fail",
	}
}

func testCard(t *testing.T) *provider.CreditCard {
	card, err := provider.NewCreditCard("4355084355084358", 2030, 12, "000", "John Doe", provider.CardVisa)
	require.NoError(t, err)
	return card
}

func begin3D(t *testing.T, gw *fakeGateway, tr *fakeTransport, model provider.SecurityModel) (*Orchestrator, *provider.Account, *Session) {
	t.Helper()
	o := New(gw, tr)
	acc := testAccount(model)
	s, form, err := o.Begin(context.Background(), acc, testOrder(), model, provider.TxTypePay, testCard(t))
	require.NoError(t, err)
	require.NotNil(t, form)
	assert.Equal(t, StateRedirectedToACS, s.State)
	return o, acc, s
}

func TestOrchestrator_NonSecure(t *testing.T) {
	gw := newFakeGateway(provider.ModelNonSecure)
	tr := &fakeTransport{response: provider.GatewayResponse{"code": "00"}}
	o := New(gw, tr)

	s, form, err := o.Begin(context.Background(), testAccount(provider.ModelNonSecure), testOrder(), provider.ModelNonSecure, provider.TxTypePay, testCard(t))
	require.NoError(t, err)
	assert.Nil(t, form)
	assert.Equal(t, StateCompleted, s.State)
	assert.Equal(t, []State{StateInit, StateFinalAuthSent, StateCompleted}, s.History)
	require.NotNil(t, s.Result)
	assert.True(t, s.Result.Approved())
	require.Len(t, tr.sent, 1)
	assert.Equal(t, string(provider.OpPayment), tr.sent[0].op)
}

func TestOrchestrator_3DSecure(t *testing.T) {
	gw := newFakeGateway(provider.Model3DSecure)
	tr := &fakeTransport{response: provider.GatewayResponse{"code": "00"}}
	o, acc, s := begin3D(t, gw, tr, provider.Model3DSecure)
	assert.Empty(t, tr.sent, "3D form needs no gateway call")

	result, err := o.Complete(context.Background(), acc, s, provider.GatewayResponse{"mdStatus": "1", "md": "md-1"})
	require.NoError(t, err)
	assert.True(t, result.Approved())
	assert.Equal(t, provider.Model3DSecure, result.PaymentModel)
	assert.Equal(t, []State{
		StateInit, StateRedirectedToACS, StateCallbackReceived, StateHashVerified, StateFinalAuthSent, StateCompleted,
	}, s.History)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, string(provider.Op3DPayment), tr.sent[0].op)
	assert.Equal(t, "md-1", tr.sent[0].req["md"])
	assert.Nil(t, s.Callback)
}

func TestOrchestrator_SecurityRejected(t *testing.T) {
	gw := newFakeGateway(provider.Model3DSecure)
	gw.verifyErr = provider.SecurityRejected("fake")
	tr := &fakeTransport{response: provider.GatewayResponse{"code": "00"}}
	o, acc, s := begin3D(t, gw, tr, provider.Model3DSecure)

	result, err := o.Complete(context.Background(), acc, s, provider.GatewayResponse{"mdStatus": "1", "code": "00"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrSecurityRejected))
	assert.Equal(t, StateSecurityRejected, s.State)
	assert.True(t, s.State.Terminal())
	require.NotNil(t, result)
	assert.Equal(t, provider.StatusDeclined, result.Status)
	assert.Equal(t, provider.DetailSecurityRejected, result.StatusDetail)
	assert.Empty(t, tr.sent, "a rejected callback never reaches final authorization")

	_, err = o.Finalize(context.Background(), acc, s)
	assert.True(t, errors.Is(err, provider.ErrPrecondition))
	assert.False(t, s.Visited(StateCompleted))
	assert.False(t, s.Visited(StateHashVerified))
}

func TestOrchestrator_SettledModelsRejectForgedCallback(t *testing.T) {
	for _, model := range []provider.SecurityModel{provider.Model3DPay, provider.Model3DPayHosting, provider.Model3DHost} {
		t.Run(string(model), func(t *testing.T) {
			gw := newFakeGateway(model)
			gw.verifyErr = provider.SecurityRejected("fake")
			o, acc, s := begin3D(t, gw, &fakeTransport{}, model)

			result, err := o.Complete(context.Background(), acc, s, provider.GatewayResponse{"code": "00"})
			assert.True(t, errors.Is(err, provider.ErrSecurityRejected))
			assert.False(t, result.Approved(), "an approved-looking forged callback stays declined")
		})
	}
}

func TestOrchestrator_UnsignedDecline(t *testing.T) {
	gw := newFakeGateway(provider.Model3DSecure)
	gw.verifyErr = &provider.UnsignedDeclineError{Gateway: "fake", Code: "MetaDataNotFound", Message: "Kart doğrulanamadı"}
	tr := &fakeTransport{response: provider.GatewayResponse{"code": "00"}}
	o, acc, s := begin3D(t, gw, tr, provider.Model3DSecure)

	result, err := o.Complete(context.Background(), acc, s, provider.GatewayResponse{"mdStatus": "1", "ResponseCode": "MetaDataNotFound"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, provider.StatusDeclined, result.Status)
	assert.Equal(t, provider.Detail3DAuthFailed, result.StatusDetail)
	assert.Equal(t, "MetaDataNotFound", result.ErrorCode)
	assert.Equal(t, "Kart doğrulanamadı", result.ErrorMessage)
	assert.Equal(t, provider.Model3DSecure, result.PaymentModel)
	assert.Equal(t, []State{StateInit, StateRedirectedToACS, StateCallbackReceived, StateCompleted}, s.History)
	assert.False(t, s.Visited(StateHashVerified), "an unsigned callback is never treated as verified")
	assert.Nil(t, s.Callback)
	assert.Empty(t, tr.sent)

	_, err = o.Finalize(context.Background(), acc, s)
	assert.True(t, errors.Is(err, provider.ErrPrecondition))
}

func TestOrchestrator_VerifyFailureOtherThanMismatch(t *testing.T) {
	gw := newFakeGateway(provider.Model3DSecure)
	gw.verifyErr = errors.New("charset")
	o, acc, s := begin3D(t, gw, &fakeTransport{}, provider.Model3DSecure)

	err := o.HandleCallback(context.Background(), acc, s, provider.GatewayResponse{})
	assert.EqualError(t, err, "charset")
	assert.Equal(t, StateCallbackReceived, s.State)
	assert.Nil(t, s.Result)
}

func TestOrchestrator_MdStatus(t *testing.T) {
	tests := []struct {
		name     string
		mdStatus string
		sent     int
		approved bool
	}{
		{"full", "1", 1, true},
		{"half", "3", 1, true},
		{"mpi fallback proceeds", "0", 1, true},
		{"rejected", "5", 0, false},
		{"rejected upper bound", "8", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway(provider.Model3DSecure)
			tr := &fakeTransport{response: provider.GatewayResponse{"code": "00"}}
			o, acc, s := begin3D(t, gw, tr, provider.Model3DSecure)

			result, err := o.Complete(context.Background(), acc, s, provider.GatewayResponse{"mdStatus": tt.mdStatus})
			require.NoError(t, err)
			assert.Len(t, tr.sent, tt.sent)
			assert.Equal(t, tt.approved, result.Approved())
			assert.Equal(t, StateCompleted, s.State)
			if !tt.approved {
				assert.Equal(t, provider.Detail3DAuthFailed, result.StatusDetail)
				assert.False(t, s.Visited(StateFinalAuthSent))
			}
		})
	}
}

func TestOrchestrator_SettledModels(t *testing.T) {
	for _, model := range []provider.SecurityModel{provider.Model3DPay, provider.Model3DPayHosting, provider.Model3DHost} {
		t.Run(string(model), func(t *testing.T) {
			gw := newFakeGateway(model)
			tr := &fakeTransport{}
			o, acc, s := begin3D(t, gw, tr, model)

			result, err := o.Complete(context.Background(), acc, s, provider.GatewayResponse{"code": "00"})
			require.NoError(t, err)
			assert.True(t, result.Approved())
			assert.Equal(t, model, result.PaymentModel)
			assert.True(t, s.Visited(StateAlreadySettled))
			assert.Equal(t, StateCompleted, s.State)
			assert.Empty(t, tr.sent)
			if model == provider.Model3DHost {
				assert.Equal(t, "host", result.AuthCode)
			}
		})
	}
}

func TestOrchestrator_HostedWithoutCard(t *testing.T) {
	gw := newFakeGateway(provider.Model3DHost)
	o := New(gw, &fakeTransport{})
	s, form, err := o.Begin(context.Background(), testAccount(provider.Model3DHost), testOrder(), provider.Model3DHost, provider.TxTypePay, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://bank.test/3d_host", form.Gateway)
	assert.Equal(t, StateRedirectedToACS, s.State)
}

func TestOrchestrator_Enrollment(t *testing.T) {
	t.Run("enrolled", func(t *testing.T) {
		gw := newFakeGateway(provider.Model3DSecure)
		gw.caps.EnrollmentCheck = true
		gw.enrollForm = &provider.RedirectForm{Gateway: "https://acs.test", Method: "POST"}
		tr := &fakeTransport{response: provider.GatewayResponse{}}
		o := New(gw, tr)

		s, form, err := o.Begin(context.Background(), testAccount(provider.Model3DSecure), testOrder(), provider.Model3DSecure, provider.TxTypePay, testCard(t))
		require.NoError(t, err)
		assert.Equal(t, "https://acs.test", form.Gateway)
		assert.Equal(t, []State{StateInit, StateEnrollmentCheckSent, StateRedirectedToACS}, s.History)
		require.Len(t, tr.sent, 1)
		assert.Equal(t, string(provider.OpEnrollment), tr.sent[0].op)
	})

	t.Run("not enrolled", func(t *testing.T) {
		gw := newFakeGateway(provider.Model3DSecure)
		gw.caps.EnrollmentCheck = true
		o := New(gw, &fakeTransport{response: provider.GatewayResponse{}})

		s, form, err := o.Begin(context.Background(), testAccount(provider.Model3DSecure), testOrder(), provider.Model3DSecure, provider.TxTypePay, testCard(t))
		require.NoError(t, err)
		assert.Nil(t, form)
		assert.Equal(t, []State{StateInit, StateEnrollmentCheckSent, StateNotEnrolled, StateCompleted}, s.History)
		require.NotNil(t, s.Result)
		assert.Equal(t, provider.DetailNotEnrolled, s.Result.StatusDetail)
		assert.False(t, s.Result.Approved())
	})
}

func TestOrchestrator_BeginValidation(t *testing.T) {
	gw := newFakeGateway(provider.Model3DSecure, provider.ModelNonSecure)
	o := New(gw, &fakeTransport{})
	ctx := context.Background()
	card := testCard(t)

	_, _, err := o.Begin(ctx, testAccount(provider.Model3DSecure), testOrder(), provider.Model3DSecure, provider.TxTypeRefund, card)
	assert.True(t, errors.Is(err, provider.ErrUnsupportedTransactionType))

	_, _, err = o.Begin(ctx, testAccount(provider.Model3DHost), testOrder(), provider.Model3DHost, provider.TxTypePay, card)
	assert.True(t, errors.Is(err, provider.ErrUnsupportedTransactionType))

	var vErr *provider.ValidationError
	_, _, err = o.Begin(ctx, testAccount(provider.ModelNonSecure), testOrder(), provider.Model3DSecure, provider.TxTypePay, card)
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "account.models", vErr.Field)

	_, _, err = o.Begin(ctx, testAccount(provider.Model3DSecure), testOrder(), provider.Model3DSecure, provider.TxTypePay, nil)
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "card", vErr.Field)

	order := testOrder()
	order.FailURL = ""
	_, _, err = o.Begin(ctx, testAccount(provider.Model3DSecure), order, provider.Model3DSecure, provider.TxTypePay, card)
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "order.fail_url", vErr.Field)

	order = testOrder()
	order.Amount = decimal.Zero
	_, _, err = o.Begin(ctx, testAccount(provider.Model3DSecure), order, provider.Model3DSecure, provider.TxTypePay, card)
	require.True(t, errors.As(err, &vErr))
}

func TestOrchestrator_OutOfOrder(t *testing.T) {
	gw := newFakeGateway(provider.Model3DSecure)
	tr := &fakeTransport{response: provider.GatewayResponse{"code": "00"}}
	o, acc, s := begin3D(t, gw, tr, provider.Model3DSecure)

	_, err := o.Finalize(context.Background(), acc, s)
	assert.True(t, errors.Is(err, provider.ErrPrecondition))

	_, err = o.Complete(context.Background(), acc, s, provider.GatewayResponse{"mdStatus": "1"})
	require.NoError(t, err)

	err = o.HandleCallback(context.Background(), acc, s, provider.GatewayResponse{"mdStatus": "1"})
	assert.True(t, errors.Is(err, provider.ErrPrecondition), "a replayed callback is refused")
	assert.Len(t, tr.sent, 1)
}

func TestOrchestrator_TransportFailure(t *testing.T) {
	gw := newFakeGateway(provider.Model3DSecure)
	tr := &fakeTransport{err: &provider.TransportError{Gateway: "fake", Err: errors.New("timeout")}}
	o, acc, s := begin3D(t, gw, tr, provider.Model3DSecure)

	_, err := o.Complete(context.Background(), acc, s, provider.GatewayResponse{"mdStatus": "1"})
	var tErr *provider.TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, StateFinalAuthSent, s.State)
	assert.Nil(t, s.Result)
}

func TestOrchestrator_Clock(t *testing.T) {
	gw := newFakeGateway(provider.Model3DPay)
	o := New(gw, &fakeTransport{})
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return fixed }

	s, _, err := o.Begin(context.Background(), testAccount(provider.Model3DPay), testOrder(), provider.Model3DPay, provider.TxTypePay, testCard(t))
	require.NoError(t, err)
	assert.Equal(t, fixed, s.CreatedAt)
	assert.Equal(t, fixed, s.UpdatedAt)
	assert.NotEmpty(t, s.ID)
}

func TestOrchestrator_BeginWithID(t *testing.T) {
	o := New(newFakeGateway(provider.Model3DPay), &fakeTransport{})
	acc := testAccount(provider.Model3DPay)

	s, form, err := o.BeginWithID(context.Background(), "sess-fixed", acc, testOrder(), provider.Model3DPay, provider.TxTypePay, testCard(t))
	require.NoError(t, err)
	require.NotNil(t, form)
	assert.Equal(t, "sess-fixed", s.ID)

	_, _, err = o.BeginWithID(context.Background(), "", acc, testOrder(), provider.Model3DPay, provider.TxTypePay, testCard(t))
	var verr *provider.ValidationError
	assert.ErrorAs(t, err, &verr)
}
