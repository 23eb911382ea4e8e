// Package provider holds the canonical payment model and the plumbing every
// bank gateway shares.
//
// # Core Concepts
//
//   - Account: a merchant's credentials and endpoints for one gateway
//   - Order, CreditCard: the canonical request model
//   - Result: the canonical response model, with Status, ErrorCode and the
//     untouched bank answer in Raw
//   - Gateway: a bank dialect, made of a RequestMapper, a ResponseMapper
//     and the envelope the request travels in
//   - ValueMapper: currency, transaction type, installment and language
//     codes of one bank
//   - Transport: sends a GatewayRequest and decodes the answer into a
//     GatewayResponse
//
// # Registering a Gateway
//
// Gateways register themselves from init:
//
//	func init() {
//	    provider.Register("estpos", func() provider.Gateway { return New(V1) },
//	        provider.FieldMerchantID, provider.FieldUsername, provider.FieldPassword, provider.FieldStoreKey)
//	}
//
// and are imported for their side effect:
//
//	import _ "github.com/mstgnz/gopos/provider/estpos"
//
// # Building Requests
//
//	gw, err := provider.Get("garanti")
//	req, err := gw.Requests().CreatePaymentRequestData(acc, order, provider.TxTypePay, card)
//	env, err := provider.EnvelopeFor(gw, acc, provider.OpPayment, provider.TxTypePay)
//	raw, err := transport.Send(ctx, gw.Name(), req, env)
//	result, err := gw.Responses().MapPaymentResponse(raw, provider.TxTypePay, order)
//
// The 3-D Secure state machine lives in the threed subpackage.
package provider
