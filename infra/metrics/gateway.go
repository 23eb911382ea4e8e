package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/mstgnz/gopos/provider"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Bank gateway round trip latency in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"gateway", "outcome"},
	)

	GatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Bank gateway calls by transport outcome",
		},
		[]string{"gateway", "outcome"},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "transactions_total",
			Help:      "Mapped transaction results by status",
		},
		[]string{"gateway", "tx_type", "status"},
	)

	SecurityRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "threed",
			Name:      "security_rejected_total",
			Help:      "3D callbacks whose signature did not verify",
		},
		[]string{"gateway"},
	)
)

func init() {
	Registry.MustRegister(GatewayCallDuration, GatewayCallsTotal, TransactionsTotal, SecurityRejectedTotal)
}

// Transport wraps a provider.Transport and records every call.
type Transport struct {
	next provider.Transport
}

// InstrumentTransport returns next with call metrics.
func InstrumentTransport(next provider.Transport) *Transport {
	return &Transport{next: next}
}

func (t *Transport) Send(ctx context.Context, gateway string, req provider.GatewayRequest, env provider.Envelope) (provider.GatewayResponse, error) {
	start := time.Now()
	resp, err := t.next.Send(ctx, gateway, req, env)
	outcome := callOutcome(err)
	GatewayCallDuration.WithLabelValues(gateway, outcome).Observe(time.Since(start).Seconds())
	GatewayCallsTotal.WithLabelValues(gateway, outcome).Inc()
	return resp, err
}

func callOutcome(err error) string {
	var te *provider.TransportError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.As(err, &te) && te.StatusCode != 0:
		return "http_error"
	default:
		return "error"
	}
}

// ObserveResult counts a mapped result.
func ObserveResult(gateway string, result *provider.Result) {
	if result == nil {
		return
	}
	TransactionsTotal.WithLabelValues(gateway, string(result.TransactionType), string(result.Status)).Inc()
}

// ObserveSecurityRejected counts a callback that failed verification.
func ObserveSecurityRejected(gateway string) {
	SecurityRejectedTotal.WithLabelValues(gateway).Inc()
}
