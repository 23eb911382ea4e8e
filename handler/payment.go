package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/gopos/infra/logger"
	"github.com/mstgnz/gopos/infra/middle"
	"github.com/mstgnz/gopos/infra/response"
	"github.com/mstgnz/gopos/provider"
	"github.com/mstgnz/gopos/provider/threed"
	"github.com/mstgnz/gopos/service"
)

// PaymentServiceInterface defines the payment operations the handlers use
type PaymentServiceInterface interface {
	Pay(ctx context.Context, merchantKey, gateway string, req service.PaymentRequest) (*service.PaymentOutcome, error)
	Complete3D(ctx context.Context, gateway, sessionID string, callback provider.GatewayResponse) (*threed.Session, error)
	Session(ctx context.Context, id string) (*threed.Session, error)
	PostAuth(ctx context.Context, merchantKey, gateway string, order provider.Order) (*provider.Result, error)
	Cancel(ctx context.Context, merchantKey, gateway string, order provider.Order) (*provider.Result, error)
	Refund(ctx context.Context, merchantKey, gateway string, order provider.Order) (*provider.Result, error)
	Status(ctx context.Context, merchantKey, gateway string, order provider.Order) (*provider.Result, error)
	History(ctx context.Context, merchantKey, gateway string, query provider.HistoryQuery) (*provider.Result, error)
	OrderHistory(ctx context.Context, merchantKey, gateway string, order provider.Order) (*provider.Result, error)
	CustomQuery(ctx context.Context, merchantKey, gateway string, data provider.GatewayRequest) (provider.GatewayResponse, error)
}

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	paymentService PaymentServiceInterface
	validate       *validator.Validate
	timeout        time.Duration
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService PaymentServiceInterface, validate *validator.Validate, timeout time.Duration) *PaymentHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PaymentHandler{
		paymentService: paymentService,
		validate:       validate,
		timeout:        timeout,
	}
}

// CardRequest is card data as posted by the merchant.
type CardRequest struct {
	Number      string `json:"number" validate:"required,luhn"`
	ExpireYear  int    `json:"expire_year" validate:"required"`
	ExpireMonth int    `json:"expire_month" validate:"required,min=1,max=12"`
	CVV         string `json:"cvv" validate:"omitempty,cvv"`
	HolderName  string `json:"holder_name"`
	Brand       string `json:"brand"`
}

// PaymentRequest is the body of a payment call.
type PaymentRequest struct {
	Order  provider.Order           `json:"order"`
	Model  provider.SecurityModel   `json:"model" validate:"required,oneof=regular 3d 3d_pay 3d_pay_hosting 3d_host"`
	TxType provider.TransactionType `json:"tx_type" validate:"omitempty,oneof=pay pre"`
	Card   *CardRequest             `json:"card"`
}

// PaymentResponse is returned by ProcessPayment. A 3-D flow that needs the
// card holder returns the form; anything finished returns the result.
type PaymentResponse struct {
	SessionID string                 `json:"session_id"`
	State     threed.State           `json:"state"`
	Form      *provider.RedirectForm `json:"form,omitempty"`
	Result    *provider.Result       `json:"result,omitempty"`
}

func (h *PaymentHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return false
	}
	return true
}

// ProcessPayment starts a payment. Clients asking for text/html receive
// the auto-submitting redirect page directly.
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Order.IP == "" {
		req.Order.IP = middle.GetClientIP(r)
	}

	var card *provider.CreditCard
	if req.Card != nil {
		c, err := provider.NewCreditCard(req.Card.Number, req.Card.ExpireYear, req.Card.ExpireMonth,
			req.Card.CVV, req.Card.HolderName, provider.CardBrand(req.Card.Brand))
		if err != nil {
			writeError(w, "Invalid card", err)
			return
		}
		card = c
	}

	merchantKey := middle.GetMerchantKey(r.Context())
	out, err := h.paymentService.Pay(ctx, merchantKey, chi.URLParam(r, "gateway"), service.PaymentRequest{
		Order:  req.Order,
		Model:  req.Model,
		TxType: req.TxType,
		Card:   card,
	})
	if err != nil {
		writeError(w, "Payment failed", err)
		return
	}

	if out.Form != nil && strings.Contains(r.Header.Get("Accept"), "text/html") {
		_ = response.WriteHTML(w, http.StatusOK, out.Form.HTML())
		return
	}
	response.Success(w, http.StatusOK, "Payment processed", PaymentResponse{
		SessionID: out.Session.ID,
		State:     out.Session.State,
		Form:      out.Form,
		Result:    out.Result,
	})
}

// HandleCallback completes a 3-D session from the bank post. When the
// merchant gave return pages the browser is redirected there; otherwise
// the session is returned as JSON.
func (h *PaymentHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	gateway := chi.URLParam(r, "gateway")
	sessionID := chi.URLParam(r, "session")

	if err := r.ParseForm(); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid callback data", err)
		return
	}
	callback := provider.DecodeCallback(r.Form)

	sess, err := h.paymentService.Complete3D(ctx, gateway, sessionID, callback)
	if err != nil && !errors.Is(err, provider.ErrSecurityRejected) {
		logger.Warn("3D callback failed", logger.LogContext{
			Provider: gateway,
			Fields:   map[string]any{"session_id": sessionID, "error": err.Error()},
		})
		writeError(w, "3D payment failed", err)
		return
	}

	if target := sess.ReturnURL(); target != "" {
		http.Redirect(w, r, returnLocation(target, sess), http.StatusSeeOther)
		return
	}
	if err != nil {
		response.Error(w, http.StatusForbidden, "3D payment rejected", err)
		return
	}
	response.Success(w, http.StatusOK, "3D payment completed", sess)
}

// returnLocation appends the session outcome to the merchant page.
func returnLocation(target string, sess *threed.Session) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("session_id", sess.ID)
	q.Set("order_id", sess.Order.ID)
	if sess.Result != nil {
		q.Set("status", string(sess.Result.Status))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// GetSession returns a stored 3-D session of the calling merchant.
func (h *PaymentHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.paymentService.Session(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		writeError(w, "Session not found", err)
		return
	}
	if sess.MerchantKey != middle.GetMerchantKey(r.Context()) {
		response.Error(w, http.StatusNotFound, "Session not found", threed.ErrSessionNotFound)
		return
	}
	response.Success(w, http.StatusOK, "Session retrieved", sess)
}

type orderOperation func(ctx context.Context, merchantKey, gateway string, order provider.Order) (*provider.Result, error)

func (h *PaymentHandler) orderAction(op orderOperation, success string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		var order provider.Order
		if !h.decode(w, r, &order) {
			return
		}
		result, err := op(ctx, middle.GetMerchantKey(r.Context()), chi.URLParam(r, "gateway"), order)
		if err != nil {
			writeError(w, "Gateway operation failed", err)
			return
		}
		response.Success(w, http.StatusOK, success, result)
	}
}

// PostAuth captures a pre-authorization.
func (h *PaymentHandler) PostAuth(w http.ResponseWriter, r *http.Request) {
	h.orderAction(h.paymentService.PostAuth, "Pre-authorization captured")(w, r)
}

// CancelPayment voids a payment.
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	h.orderAction(h.paymentService.Cancel, "Payment cancelled")(w, r)
}

// RefundPayment refunds a payment fully or partially.
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	h.orderAction(h.paymentService.Refund, "Payment refunded")(w, r)
}

// GetPaymentStatus queries the bank for an order.
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	h.orderAction(h.paymentService.Status, "Payment status retrieved")(w, r)
}

// GetOrderHistory lists the transactions of an order.
func (h *PaymentHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	h.orderAction(h.paymentService.OrderHistory, "Order history retrieved")(w, r)
}

// GetHistory lists the transactions of a date range.
func (h *PaymentHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var query provider.HistoryQuery
	if !h.decode(w, r, &query) {
		return
	}
	result, err := h.paymentService.History(ctx, middle.GetMerchantKey(r.Context()), chi.URLParam(r, "gateway"), query)
	if err != nil {
		writeError(w, "History query failed", err)
		return
	}
	response.Success(w, http.StatusOK, "History retrieved", result)
}

// CustomQuery forwards caller-built data to the gateway.
func (h *PaymentHandler) CustomQuery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var data provider.GatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	raw, err := h.paymentService.CustomQuery(ctx, middle.GetMerchantKey(r.Context()), chi.URLParam(r, "gateway"), data)
	if err != nil {
		writeError(w, "Custom query failed", err)
		return
	}
	response.Success(w, http.StatusOK, "Custom query sent", raw)
}
