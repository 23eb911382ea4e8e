package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/gopos/infra/logger"
	"github.com/mstgnz/gopos/infra/metrics"
	"github.com/mstgnz/gopos/provider"
	"github.com/mstgnz/gopos/provider/threed"
)

// PaymentRequest starts a payment under one security model.
type PaymentRequest struct {
	Order  provider.Order
	Model  provider.SecurityModel
	TxType provider.TransactionType
	Card   *provider.CreditCard
}

// PaymentOutcome holds either a finished result or the form that sends
// the card holder to the bank.
type PaymentOutcome struct {
	Session *threed.Session
	Form    *provider.RedirectForm
	Result  *provider.Result
}

// CallbackURL is where the bank posts the 3-D result of session id.
func (s *PaymentService) CallbackURL(gateway, id string) string {
	return fmt.Sprintf("%s/callback/%s/%s", s.callbackBase, url.PathEscape(gateway), url.PathEscape(id))
}

// Pay starts a payment. Non-secure payments and cards that turn out not
// to be enrolled finish immediately; every other 3-D flow returns the
// redirect form and a stored session awaiting the bank callback.
func (s *PaymentService) Pay(ctx context.Context, merchantKey, gateway string, req PaymentRequest) (*PaymentOutcome, error) {
	gw, acc, err := s.resolve(ctx, merchantKey, gateway)
	if err != nil {
		return nil, err
	}
	if req.TxType == "" {
		req.TxType = provider.TxTypePay
	}

	id := uuid.NewString()
	order := req.Order
	if req.Model != provider.ModelNonSecure && s.callbackBase != "" {
		order.SuccessURL = s.CallbackURL(gw.Name(), id)
		order.FailURL = order.SuccessURL
	}

	start := time.Now()
	sess, form, err := threed.New(gw, s.transport).BeginWithID(ctx, id, acc, order, req.Model, req.TxType, req.Card)
	elapsed := time.Since(start)
	if sess != nil {
		sess.MerchantKey = merchantKey
		if order.SuccessURL != req.Order.SuccessURL {
			sess.ReturnSuccessURL = req.Order.SuccessURL
			sess.ReturnFailURL = req.Order.FailURL
		}
	}

	op := provider.OpPayment
	if req.Model != provider.ModelNonSecure {
		op = provider.OpEnrollment
	}
	entry := auditEntry{
		merchantKey: merchantKey,
		gateway:     gw.Name(),
		op:          op,
		txType:      req.TxType,
		model:       req.Model,
		order:       req.Order,
		elapsed:     elapsed,
	}
	if sess != nil {
		entry.sessionID = sess.ID
		entry.result = sess.Result
	}
	entry.err = err
	s.record(ctx, entry)

	if err != nil {
		logger.Error("Payment failed to start", err, logger.LogContext{
			MerchantKey: merchantKey,
			Provider:    gw.Name(),
			Fields:      map[string]any{"order_id": req.Order.ID, "model": string(req.Model)},
		})
		return nil, err
	}

	if !sess.State.Terminal() {
		if err := s.sessions.Save(ctx, sess); err != nil {
			return nil, fmt.Errorf("store 3D session: %w", err)
		}
	}
	return &PaymentOutcome{Session: sess, Form: form, Result: sess.Result}, nil
}

// Complete3D handles the bank callback of a stored session. The callback
// is claimed in the store first, so of two concurrent or replayed
// callbacks only one is processed; the other fails with
// provider.ErrPrecondition. The session is saved whatever the outcome.
// A callback failing signature verification returns an error wrapping
// provider.ErrSecurityRejected together with the rejected session.
func (s *PaymentService) Complete3D(ctx context.Context, gateway, sessionID string, callback provider.GatewayResponse) (*threed.Session, error) {
	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Gateway != gateway {
		return nil, provider.Precondition("session %s belongs to %s", sessionID, sess.Gateway)
	}
	gw, acc, err := s.resolve(ctx, sess.MerchantKey, sess.Gateway)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Claim(ctx, sessionID); err != nil {
		return nil, err
	}

	visited := len(sess.History)
	start := time.Now()
	result, err := threed.New(gw, s.transport).Complete(ctx, acc, sess, callback)
	elapsed := time.Since(start)

	if len(sess.History) != visited {
		if saveErr := s.sessions.Save(ctx, sess); saveErr != nil {
			logger.Error("Failed to store 3D session", saveErr, logger.LogContext{
				MerchantKey: sess.MerchantKey,
				Provider:    sess.Gateway,
				Fields:      map[string]any{"session_id": sess.ID},
			})
		}
	}

	if errors.Is(err, provider.ErrSecurityRejected) {
		metrics.ObserveSecurityRejected(sess.Gateway)
	}
	if result == nil {
		result = sess.Result
	}
	s.record(ctx, auditEntry{
		merchantKey: sess.MerchantKey,
		gateway:     sess.Gateway,
		op:          provider.Op3DPayment,
		txType:      sess.TxType,
		model:       sess.Model,
		order:       sess.Order,
		sessionID:   sess.ID,
		result:      result,
		err:         err,
		elapsed:     elapsed,
	})
	return sess, err
}

// Session returns a stored 3-D session.
func (s *PaymentService) Session(ctx context.Context, id string) (*threed.Session, error) {
	return s.sessions.Load(ctx, id)
}
