package threed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/gopos/infra/logger"
	"github.com/mstgnz/gopos/provider"
)

// Orchestrator runs Begin, HandleCallback and Finalize against one gateway.
// It holds no per-session state; callers persist the Session between steps.
type Orchestrator struct {
	gateway   provider.Gateway
	transport provider.Transport
	now       func() time.Time
}

// New creates an orchestrator for the gateway.
func New(gateway provider.Gateway, transport provider.Transport) *Orchestrator {
	return &Orchestrator{gateway: gateway, transport: transport, now: time.Now}
}

// Begin starts a payment. For the regular model it performs the single
// settlement call and returns a completed session. For 3-D models it
// returns the redirect form; gateways with a server-side enrollment check
// call the bank first and may complete the session as not enrolled.
func (o *Orchestrator) Begin(ctx context.Context, acc *provider.Account, order provider.Order, model provider.SecurityModel, txType provider.TransactionType, card *provider.CreditCard) (*Session, *provider.RedirectForm, error) {
	return o.BeginWithID(ctx, uuid.NewString(), acc, order, model, txType, card)
}

// BeginWithID is Begin with a caller-chosen session id, for callers that
// put the id into the callback URLs before the flow starts.
func (o *Orchestrator) BeginWithID(ctx context.Context, id string, acc *provider.Account, order provider.Order, model provider.SecurityModel, txType provider.TransactionType, card *provider.CreditCard) (*Session, *provider.RedirectForm, error) {
	if id == "" {
		return nil, nil, &provider.ValidationError{Field: "session.id", Reason: "required"}
	}
	if !txType.IsPayment() {
		return nil, nil, provider.UnsupportedTxType(o.gateway.Name(), txType, model)
	}
	if !o.gateway.Capabilities().SupportsModel(model) {
		return nil, nil, provider.UnsupportedTxType(o.gateway.Name(), txType, model)
	}
	if !acc.Supports(model) {
		return nil, nil, &provider.ValidationError{Field: "account.models", Reason: fmt.Sprintf("%s is not enabled", model)}
	}
	if err := provider.ValidateOrder(order, txType); err != nil {
		return nil, nil, err
	}
	if !model.IsHosted() && card == nil {
		return nil, nil, &provider.ValidationError{Field: "card", Reason: "required for " + string(model)}
	}

	now := o.now()
	s := &Session{
		ID:        id,
		Gateway:   o.gateway.Name(),
		Model:     model,
		TxType:    txType,
		Order:     order,
		State:     StateInit,
		History:   []State{StateInit},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if model == provider.ModelNonSecure {
		result, err := o.payNonSecure(ctx, acc, s, card)
		if err != nil {
			return s, nil, err
		}
		s.Result = result
		return s, nil, nil
	}

	if err := provider.ValidateRedirectURLs(order); err != nil {
		return nil, nil, err
	}

	if o.gateway.Capabilities().EnrollmentCheck && model == provider.Model3DSecure {
		form, err := o.checkEnrollment(ctx, acc, s, card)
		return s, form, err
	}

	form, err := o.gateway.Requests().Create3DFormData(acc, order, model, txType, o.gateway.FormURL(acc, model), card)
	if err != nil {
		return nil, nil, err
	}
	if err := s.transition(StateRedirectedToACS, o.now()); err != nil {
		return nil, nil, err
	}
	return s, form, nil
}

func (o *Orchestrator) payNonSecure(ctx context.Context, acc *provider.Account, s *Session, card *provider.CreditCard) (*provider.Result, error) {
	req, err := o.gateway.Requests().CreatePaymentRequestData(acc, s.Order, s.TxType, card)
	if err != nil {
		return nil, err
	}
	env, err := o.gateway.Envelope(acc, provider.OpPayment)
	if err != nil {
		return nil, err
	}
	if err := s.transition(StateFinalAuthSent, o.now()); err != nil {
		return nil, err
	}
	raw, err := o.transport.Send(ctx, o.gateway.Name(), req, env)
	if err != nil {
		return nil, err
	}
	result := o.gateway.Responses().MapPaymentResponse(raw, s.TxType, s.Order)
	result.PaymentModel = s.Model
	if err := s.transition(StateCompleted, o.now()); err != nil {
		return nil, err
	}
	return &result, nil
}

func (o *Orchestrator) checkEnrollment(ctx context.Context, acc *provider.Account, s *Session, card *provider.CreditCard) (*provider.RedirectForm, error) {
	mapper, ok := o.gateway.Responses().(provider.EnrollmentMapper)
	if !ok {
		return nil, provider.NotImplemented(o.gateway.Name(), "enrollment response mapping")
	}
	req, err := o.gateway.Requests().Create3DEnrollmentCheckRequestData(acc, s.Order, s.Model, s.TxType, card)
	if err != nil {
		return nil, err
	}
	env, err := o.gateway.Envelope(acc, provider.OpEnrollment)
	if err != nil {
		return nil, err
	}
	if err := s.transition(StateEnrollmentCheckSent, o.now()); err != nil {
		return nil, err
	}
	raw, err := o.transport.Send(ctx, o.gateway.Name(), req, env)
	if err != nil {
		return nil, err
	}

	form, result := mapper.MapEnrollmentResponse(raw, s.Order)
	if form == nil {
		if err := s.transition(StateNotEnrolled, o.now()); err != nil {
			return nil, err
		}
		result.PaymentModel = s.Model
		if err := s.transition(StateCompleted, o.now()); err != nil {
			return nil, err
		}
		s.Result = &result
		return nil, nil
	}
	if err := s.transition(StateRedirectedToACS, o.now()); err != nil {
		return nil, err
	}
	return form, nil
}

// HandleCallback verifies the bank callback. A signature mismatch moves the
// session to SECURITY_REJECTED and returns an error wrapping
// provider.ErrSecurityRejected. An unsigned decline completes the session
// as a 3-D authentication failure without passing HASH_VERIFIED.
func (o *Orchestrator) HandleCallback(ctx context.Context, acc *provider.Account, s *Session, callback provider.GatewayResponse) error {
	if s.State != StateRedirectedToACS {
		return provider.Precondition("callback received in state %s", s.State)
	}
	if err := s.transition(StateCallbackReceived, o.now()); err != nil {
		return err
	}

	if err := o.gateway.Verify3DHash(acc, callback); err != nil {
		var decline *provider.UnsignedDeclineError
		if errors.As(err, &decline) {
			return o.decline(s, decline)
		}
		if !errors.Is(err, provider.ErrSecurityRejected) {
			return err
		}
		if tErr := s.transition(StateSecurityRejected, o.now()); tErr != nil {
			return tErr
		}
		s.Result = &provider.Result{
			OrderID:         s.Order.ID,
			Status:          provider.StatusDeclined,
			StatusDetail:    provider.DetailSecurityRejected,
			ErrorCode:       provider.DetailSecurityRejected,
			ErrorMessage:    err.Error(),
			TransactionType: s.TxType,
			PaymentModel:    s.Model,
			Amount:          s.Order.Amount,
			Currency:        s.Order.Currency,
		}
		logger.WithMerchant(s.MerchantKey).
			SetProvider(s.Gateway).
			AddField("session_id", s.ID).
			AddField("order_id", s.Order.ID).
			Warn("3D callback hash mismatch")
		return err
	}

	s.Callback = callback
	return s.transition(StateHashVerified, o.now())
}

func (o *Orchestrator) decline(s *Session, d *provider.UnsignedDeclineError) error {
	if err := s.transition(StateCompleted, o.now()); err != nil {
		return err
	}
	s.Result = &provider.Result{
		OrderID:         s.Order.ID,
		Status:          provider.StatusDeclined,
		StatusDetail:    provider.Detail3DAuthFailed,
		ErrorCode:       d.Code,
		ErrorMessage:    d.Message,
		TransactionType: s.TxType,
		PaymentModel:    s.Model,
		Amount:          s.Order.Amount,
		Currency:        s.Order.Currency,
	}
	logger.WithMerchant(s.MerchantKey).
		SetProvider(s.Gateway).
		AddField("session_id", s.ID).
		AddField("response_code", d.Code).
		Info("3D authentication declined without signature")
	return nil
}

// Finalize completes a verified session. Under the 3d model it sends the
// final authorization unless the bank rejected authentication; under the
// 3d_pay and hosted models the callback already holds the settlement.
func (o *Orchestrator) Finalize(ctx context.Context, acc *provider.Account, s *Session) (*provider.Result, error) {
	if s.State != StateHashVerified {
		return nil, provider.Precondition("final authorization requires a verified callback, session is %s", s.State)
	}
	responses := o.gateway.Responses()

	var result provider.Result
	switch s.Model {
	case provider.Model3DSecure:
		mdStatus := responses.ExtractMdStatus(s.Callback)
		if !responses.Is3DAuthSuccess(mdStatus) {
			result = responses.Map3DPaymentData(s.Callback, nil, s.TxType, s.Order)
			break
		}
		req, err := o.gateway.Requests().Create3DPaymentRequestData(acc, s.Order, s.TxType, s.Callback)
		if err != nil {
			return nil, err
		}
		env, err := o.gateway.Envelope(acc, provider.Op3DPayment)
		if err != nil {
			return nil, err
		}
		if err := s.transition(StateFinalAuthSent, o.now()); err != nil {
			return nil, err
		}
		raw, err := o.transport.Send(ctx, o.gateway.Name(), req, env)
		if err != nil {
			return nil, err
		}
		result = responses.Map3DPaymentData(s.Callback, raw, s.TxType, s.Order)

	case provider.Model3DPay, provider.Model3DPayHosting:
		if err := s.transition(StateAlreadySettled, o.now()); err != nil {
			return nil, err
		}
		result = responses.Map3DPayResponseData(s.Callback, s.TxType, s.Order)

	case provider.Model3DHost:
		if err := s.transition(StateAlreadySettled, o.now()); err != nil {
			return nil, err
		}
		result = responses.Map3DHostResponseData(s.Callback, s.TxType, s.Order)

	default:
		return nil, provider.Precondition("no 3D flow for model %s", s.Model)
	}

	result.PaymentModel = s.Model
	if err := s.transition(StateCompleted, o.now()); err != nil {
		return nil, err
	}
	s.Result = &result
	s.Callback = nil
	return &result, nil
}

// Complete runs HandleCallback and Finalize.
func (o *Orchestrator) Complete(ctx context.Context, acc *provider.Account, s *Session, callback provider.GatewayResponse) (*provider.Result, error) {
	if err := o.HandleCallback(ctx, acc, s, callback); err != nil {
		return s.Result, err
	}
	if s.State == StateCompleted {
		return s.Result, nil
	}
	return o.Finalize(ctx, acc, s)
}
