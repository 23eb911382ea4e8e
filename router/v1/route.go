package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/gopos/handler"
)

// Handlers groups the handlers served under /v1. Logs may be nil when no
// audit backend is wired.
type Handlers struct {
	Payment *handler.PaymentHandler
	Account *handler.AccountHandler
	Logs    *handler.LogsHandler
}

// Routes registers all API routes
func Routes(r chi.Router, h Handlers) {
	r.Route("/payments/{gateway}", func(r chi.Router) {
		r.Post("/", h.Payment.ProcessPayment)
		r.Post("/post-auth", h.Payment.PostAuth)
		r.Post("/cancel", h.Payment.CancelPayment)
		r.Post("/refund", h.Payment.RefundPayment)
		r.Post("/status", h.Payment.GetPaymentStatus)
		r.Post("/order-history", h.Payment.GetOrderHistory)
		r.Post("/history", h.Payment.GetHistory)
		r.Post("/query", h.Payment.CustomQuery)
	})

	r.Get("/sessions/{session}", h.Payment.GetSession)

	r.Route("/accounts/{gateway}", func(r chi.Router) {
		r.Put("/", h.Account.SaveAccount)
		r.Delete("/", h.Account.DeleteAccount)
	})

	r.Get("/gateways", h.Account.ListGateways)
	r.Get("/gateways/{gateway}", h.Account.GetGateway)

	if h.Logs != nil {
		r.Route("/logs/{gateway}", func(r chi.Router) {
			r.Get("/orders/{orderID}", h.Logs.GetOrderLogs)
			r.Get("/errors", h.Logs.GetErrorLogs)
		})
	}
}
