package service

import (
	"context"
	"time"

	"github.com/mstgnz/gopos/infra/logger"
	"github.com/mstgnz/gopos/provider"
)

type buildFunc func(rm provider.RequestMapper, acc *provider.Account) (provider.GatewayRequest, error)

type mapFunc func(rm provider.ResponseMapper, raw provider.GatewayResponse) provider.Result

// execute runs one request/response operation against the merchant's
// gateway account.
func (s *PaymentService) execute(ctx context.Context, merchantKey, gateway string, txType provider.TransactionType, order provider.Order, build buildFunc, mapResp mapFunc) (*provider.Result, provider.GatewayResponse, error) {
	gw, acc, err := s.resolve(ctx, merchantKey, gateway)
	if err != nil {
		return nil, nil, err
	}
	if !gw.Capabilities().SupportsTx(txType) {
		return nil, nil, provider.UnsupportedTxType(gw.Name(), txType, "")
	}

	req, err := build(gw.Requests(), acc)
	if err != nil {
		return nil, nil, err
	}
	op := provider.OperationFor(txType)
	env, err := provider.EnvelopeFor(gw, acc, op, txType)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	raw, err := s.transport.Send(ctx, gw.Name(), req, env)
	entry := auditEntry{
		merchantKey: merchantKey,
		gateway:     gw.Name(),
		op:          op,
		txType:      txType,
		order:       order,
		request:     req,
		response:    raw,
		elapsed:     time.Since(start),
		err:         err,
	}
	if err != nil {
		s.record(ctx, entry)
		logger.Error("Gateway call failed", err, logger.LogContext{
			MerchantKey: merchantKey,
			Provider:    gw.Name(),
			Fields:      map[string]any{"operation": string(op), "order_id": order.ID},
		})
		return nil, nil, err
	}

	if mapResp == nil {
		s.record(ctx, entry)
		return nil, raw, nil
	}
	result := mapResp(gw.Responses(), raw)
	entry.result = &result
	s.record(ctx, entry)
	return &result, raw, nil
}

// PostAuth captures a pre-authorization.
func (s *PaymentService) PostAuth(ctx context.Context, merchantKey, gateway string, order provider.Order) (*provider.Result, error) {
	if err := provider.ValidateOrder(order, provider.TxTypePostAuth); err != nil {
		return nil, err
	}
	result, _, err := s.execute(ctx, merchantKey, gateway, provider.TxTypePostAuth, order,
		func(rm provider.RequestMapper, acc *provider.Account) (provider.GatewayRequest, error) {
			return rm.CreatePostAuthRequestData(acc, order)
		},
		func(rm provider.ResponseMapper, raw provider.GatewayResponse) provider.Result {
			return rm.MapPaymentResponse(raw, provider.TxTypePostAuth, order)
		})
	return result, err
}

// Cancel voids a payment of the same day.
func (s *PaymentService) Cancel(ctx context.Context, merchantKey, gateway string, order provider.Order) (*provider.Result, error) {
	if err := provider.ValidateOrder(order, provider.TxTypeCancel); err != nil {
		return nil, err
	}
	result, _, err := s.execute(ctx, merchantKey, gateway, provider.TxTypeCancel, order,
		func(rm provider.RequestMapper, acc *provider.Account) (provider.GatewayRequest, error) {
			return rm.CreateCancelRequestData(acc, order)
		},
		func(rm provider.ResponseMapper, raw provider.GatewayResponse) provider.Result {
			return rm.MapCancelResponse(raw)
		})
	return result, err
}

// RefundType is a partial refund when an original amount larger than the
// refunded amount is given, a full refund otherwise.
func RefundType(order provider.Order) provider.TransactionType {
	if order.OrderAmount.IsPositive() && order.Amount.LessThan(order.OrderAmount) {
		return provider.TxTypeRefundPartial
	}
	return provider.TxTypeRefund
}

// Refund returns money of a settled payment.
func (s *PaymentService) Refund(ctx context.Context, merchantKey, gateway string, order provider.Order) (*provider.Result, error) {
	txType := RefundType(order)
	if err := provider.ValidateOrder(order, txType); err != nil {
		return nil, err
	}
	result, _, err := s.execute(ctx, merchantKey, gateway, txType, order,
		func(rm provider.RequestMapper, acc *provider.Account) (provider.GatewayRequest, error) {
			return rm.CreateRefundRequestData(acc, order, txType)
		},
		func(rm provider.ResponseMapper, raw provider.GatewayResponse) provider.Result {
			return rm.MapRefundResponse(raw)
		})
	return result, err
}

// Status queries the bank for the state of an order.
func (s *PaymentService) Status(ctx context.Context, merchantKey, gateway string, order provider.Order) (*provider.Result, error) {
	if err := provider.ValidateOrder(order, provider.TxTypeStatus); err != nil {
		return nil, err
	}
	result, _, err := s.execute(ctx, merchantKey, gateway, provider.TxTypeStatus, order,
		func(rm provider.RequestMapper, acc *provider.Account) (provider.GatewayRequest, error) {
			return rm.CreateStatusRequestData(acc, order)
		},
		func(rm provider.ResponseMapper, raw provider.GatewayResponse) provider.Result {
			return rm.MapStatusResponse(raw)
		})
	return result, err
}

// History lists the transactions of a date range.
func (s *PaymentService) History(ctx context.Context, merchantKey, gateway string, query provider.HistoryQuery) (*provider.Result, error) {
	if query.EndDate.Before(query.StartDate) {
		return nil, &provider.ValidationError{Field: "end_date", Reason: "must not be before start_date"}
	}
	result, _, err := s.execute(ctx, merchantKey, gateway, provider.TxTypeHistory, provider.Order{},
		func(rm provider.RequestMapper, acc *provider.Account) (provider.GatewayRequest, error) {
			return rm.CreateHistoryRequestData(acc, query)
		},
		func(rm provider.ResponseMapper, raw provider.GatewayResponse) provider.Result {
			return rm.MapHistoryResponse(raw)
		})
	return result, err
}

// OrderHistory lists every transaction of one order.
func (s *PaymentService) OrderHistory(ctx context.Context, merchantKey, gateway string, order provider.Order) (*provider.Result, error) {
	if err := provider.ValidateOrder(order, provider.TxTypeOrderHistory); err != nil {
		return nil, err
	}
	result, _, err := s.execute(ctx, merchantKey, gateway, provider.TxTypeOrderHistory, order,
		func(rm provider.RequestMapper, acc *provider.Account) (provider.GatewayRequest, error) {
			return rm.CreateOrderHistoryRequestData(acc, order)
		},
		func(rm provider.ResponseMapper, raw provider.GatewayResponse) provider.Result {
			return rm.MapOrderHistoryResponse(raw)
		})
	return result, err
}

// CustomQuery sends caller-built data with the account credentials and
// signature added. The decoded response is returned unmapped.
func (s *PaymentService) CustomQuery(ctx context.Context, merchantKey, gateway string, data provider.GatewayRequest) (provider.GatewayResponse, error) {
	_, raw, err := s.execute(ctx, merchantKey, gateway, provider.TxTypeCustomQuery, provider.Order{},
		func(rm provider.RequestMapper, acc *provider.Account) (provider.GatewayRequest, error) {
			return rm.CreateCustomQueryRequestData(acc, data)
		}, nil)
	if err != nil {
		return nil, err
	}
	return provider.ScrubResponse(raw), nil
}
