package kuveytpos

import (
	"crypto/sha1"
	"encoding/base64"
	"testing"
	"time"

	"github.com/mstgnz/gopos/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func testAccount() *provider.Account {
	return &provider.Account{
		Gateway:    "kuveytpos",
		MerchantID: "496",
		CustomerID: "400235",
		Username:   "apitest",
		Password:   "api123",
		Models:     []provider.SecurityModel{provider.Model3DSecure},
		TestMode:   true,
	}
}

func testOrder() provider.Order {
	return provider.Order{
		ID:         "ORDER-4001",
		Amount:     decimal.RequireFromString("10.01"),
		Currency:   "TRY",
		IP:         "127.0.0.1",
		Email:      "buyer@example.com",
		SuccessURL: "https://shop.example.com/success",
		FailURL:    "https://shop.example.com/fail",
	}
}

func testCard(t *testing.T) *provider.CreditCard {
	card, err := provider.NewCreditCard("4155650100416111", 2030, 1, "123", "John Doe", provider.CardVisa)
	require.NoError(t, err)
	return card
}

func sha1Base64(s string) string {
	encoded, err := charmap.ISO8859_9.NewEncoder().String(s)
	if err != nil {
		panic(err)
	}
	sum := sha1.Sum([]byte(encoded))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func TestHashedPassword_ISO88599(t *testing.T) {
	got, err := hashedPassword("şifre")
	require.NoError(t, err)
	assert.Equal(t, sha1Base64("şifre"), got)

	utf8Sum := sha1.Sum([]byte("şifre"))
	assert.NotEqual(t, base64.StdEncoding.EncodeToString(utf8Sum[:]), got)
}

func TestCapabilities(t *testing.T) {
	caps := New().Capabilities()
	assert.True(t, caps.EnrollmentCheck)
	assert.True(t, caps.SupportsModel(provider.Model3DSecure))
	assert.False(t, caps.SupportsModel(provider.ModelNonSecure))
	assert.False(t, caps.SupportsHistory())
}

func TestCreate3DEnrollmentCheckRequestData(t *testing.T) {
	acc := testAccount()
	req, err := New().Requests().Create3DEnrollmentCheckRequestData(acc, testOrder(), provider.Model3DSecure, provider.TxTypePay, testCard(t))
	require.NoError(t, err)

	assert.Equal(t, apiVersion, req["APIVersion"])
	assert.Equal(t, "1001", req["Amount"])
	assert.Equal(t, "0949", req["CurrencyCode"])
	assert.Equal(t, "0", req["InstallmentCount"])
	assert.Equal(t, "Sale", req["TransactionType"])
	assert.Equal(t, "3", req["TransactionSecurity"])
	assert.Equal(t, "Visa", req["CardType"])
	assert.Equal(t, "30", req["CardExpireDateYear"])
	assert.Equal(t, "01", req["CardExpireDateMonth"])

	want := sha1Base64("496" + "ORDER-4001" + "1001" + "https://shop.example.com/success" +
		"https://shop.example.com/fail" + "apitest" + sha1Base64("api123"))
	assert.Equal(t, want, req["HashData"])
}

func TestCreate3DPaymentRequestData(t *testing.T) {
	callback := provider.GatewayResponse{
		"ResponseCode":    "00",
		"MerchantOrderId": "ORDER-4001",
		"MD":              "67YtBfBRTZ0XBKnAHi8c/A==",
		"VPosMessage":     map[string]any{"Amount": "1001"},
	}
	req, err := New().Requests().Create3DPaymentRequestData(testAccount(), testOrder(), provider.TxTypePay, callback)
	require.NoError(t, err)

	extra := req["KuveytTurkVPosAdditionalData"].(map[string]any)["AdditionalData"].(map[string]any)
	assert.Equal(t, "MD", extra["Key"])
	assert.Equal(t, "67YtBfBRTZ0XBKnAHi8c/A==", extra["Data"])
	assert.Equal(t, sha1Base64("496"+"ORDER-4001"+"1001"+"apitest"+sha1Base64("api123")), req["HashData"])
}

func TestCreatePaymentRequestData_Unsupported(t *testing.T) {
	_, err := New().Requests().CreatePaymentRequestData(testAccount(), testOrder(), provider.TxTypePay, testCard(t))
	assert.ErrorIs(t, err, provider.ErrUnsupportedTransactionType)
}

func TestCreateRefundRequestData(t *testing.T) {
	order := testOrder()
	order.RemoteOrderID = "114293600"
	order.RefRetNum = "318923298433"
	order.AuthCode = "241839"
	order.TransactionID = "298433"

	req, err := New().Requests().CreateRefundRequestData(testAccount(), order, provider.TxTypeRefundPartial)
	require.NoError(t, err)
	assert.Equal(t, soapNamespace, req["-xmlns"])

	body := req["request"].(map[string]any)
	assert.Equal(t, "114293600", body["OrderId"])
	assert.Equal(t, "241839", body["ProvisionNumber"])
	msg := body["VPosMessage"].(map[string]any)
	assert.Equal(t, "PartialDrawback", msg["TransactionType"])
	assert.Equal(t, "1001", msg["CancelAmount"])
	assert.NotEmpty(t, msg["HashData"])

	env, err := provider.EnvelopeFor(New(), testAccount(), provider.OpRefund, provider.TxTypeRefundPartial)
	require.NoError(t, err)
	encoded, headers, err := provider.EncodeRequest(req, env)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "<PartialDrawback")
	assert.Contains(t, string(encoded), `xmlns="`+soapNamespace+`"`)
	assert.Equal(t, soapActionFmt+opPartialDrawback, headers["SOAPAction"])
}

func TestCreateCancelRequestData_RequiresRemoteOrderID(t *testing.T) {
	_, err := New().Requests().CreateCancelRequestData(testAccount(), testOrder())
	assert.ErrorIs(t, err, provider.ErrPrecondition)
}

func TestCreateStatusRequestData(t *testing.T) {
	m := New().requests
	m.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local) }
	req, err := m.CreateStatusRequestData(testAccount(), testOrder())
	require.NoError(t, err)
	body := req["request"].(map[string]any)
	assert.Equal(t, "ORDER-4001", body["MerchantOrderId"])
	assert.Equal(t, "2024-05-02T10:00:00", body["EndDate"])
	assert.Equal(t, "GetMerchantOrderDetail", body["VPosMessage"].(map[string]any)["TransactionType"])
}

func TestEnvelope(t *testing.T) {
	g := New()
	acc := testAccount()

	env, err := g.Envelope(acc, provider.OpEnrollment)
	require.NoError(t, err)
	assert.Equal(t, enrollmentTestURL, env.URL)
	assert.Equal(t, messageRoot, env.Root)

	env, err = g.Envelope(acc, provider.Op3DPayment)
	require.NoError(t, err)
	assert.Equal(t, provisionTestURL, env.URL)

	env, err = provider.EnvelopeFor(g, acc, provider.OpRefund, provider.TxTypeRefund)
	require.NoError(t, err)
	assert.Equal(t, provider.EnvelopeSOAP, env.Kind)
	assert.Equal(t, opDrawBack, env.Root)

	env, err = provider.EnvelopeFor(g, acc, provider.OpRefund, provider.TxTypeRefundPartial)
	require.NoError(t, err)
	assert.Equal(t, opPartialDrawback, env.Root)

	_, err = g.Envelope(acc, provider.OpHistory)
	assert.ErrorIs(t, err, provider.ErrNotImplemented)
}

func TestVerify3DHash(t *testing.T) {
	acc := testAccount()
	callback := provider.GatewayResponse{
		"ResponseCode":    "00",
		"MerchantOrderId": "ORDER-4001",
		"OrderId":         "114293600",
	}
	callback["HashData"] = sha1Base64("ORDER-4001" + "00" + "114293600" + sha1Base64("api123"))
	assert.NoError(t, New().Verify3DHash(acc, callback))

	callback["OrderId"] = "999"
	assert.ErrorIs(t, New().Verify3DHash(acc, callback), provider.ErrSecurityRejected)

	delete(callback, "HashData")
	assert.ErrorIs(t, New().Verify3DHash(acc, callback), provider.ErrSecurityRejected)

	failed := provider.GatewayResponse{"ResponseCode": "MetaDataNotFound", "ResponseMessage": "Ödeme detayı bulunamadı."}
	err := New().Verify3DHash(acc, failed)
	require.ErrorIs(t, err, provider.ErrUnsignedDecline)
	assert.NotErrorIs(t, err, provider.ErrSecurityRejected)
	var decline *provider.UnsignedDeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "MetaDataNotFound", decline.Code)
	assert.Equal(t, "Ödeme detayı bulunamadı.", decline.Message)

	unsignedApproval := provider.GatewayResponse{"ResponseCode": "00", "MerchantOrderId": "ORDER-4001"}
	assert.ErrorIs(t, New().Verify3DHash(acc, unsignedApproval), provider.ErrSecurityRejected)
}

func TestMapEnrollmentResponse(t *testing.T) {
	r := New().responses
	page := []byte(`<html><body onload="OnLoadEvent();">
<form name="downloadForm" action="https://acs.example.com/mdpaympi/MerchantServer" method="POST">
<input type="hidden" name="PaReq" value="eJxdUsFu">
<input type="hidden" name="TermUrl" value="https://boatest.kuveytturk.com.tr/boa.virtualpos.services/Home/ThreeDModelGate">
<input type="hidden" name="MD" value="67YtBfBRTZ0XBKnAHi8c/A==">
</form></body></html>`)
	raw, err := provider.DecodeResponse(page)
	require.NoError(t, err)

	form, _ := r.MapEnrollmentResponse(raw, testOrder())
	require.NotNil(t, form)
	assert.Equal(t, "https://acs.example.com/mdpaympi/MerchantServer", form.Gateway)
	assert.Equal(t, "67YtBfBRTZ0XBKnAHi8c/A==", form.Inputs["MD"])

	failed := provider.GatewayResponse{"ResponseCode": "MetaDataNotFound", "ResponseMessage": "Ödeme detayı bulunamadı."}
	form, res := r.MapEnrollmentResponse(failed, testOrder())
	assert.Nil(t, form)
	assert.Equal(t, provider.StatusDeclined, res.Status)
	assert.Equal(t, provider.DetailNotEnrolled, res.StatusDetail)
	assert.Equal(t, "MetaDataNotFound", res.ErrorCode)
}

func TestMap3DPaymentData(t *testing.T) {
	r := New().Responses()
	callback := provider.GatewayResponse{"ResponseCode": "00", "MerchantOrderId": "ORDER-4001"}
	provision := provider.GatewayResponse{
		"ResponseCode":    "00",
		"ResponseMessage": "OTORİZASYON VERİLDİ",
		"MerchantOrderId": "ORDER-4001",
		"OrderId":         "114293600",
		"ProvisionNumber": "241839",
		"RRN":             "318923298433",
		"Stan":            "298433",
		"TransactionTime": "2024-05-01T10:00:00.123",
		"VPosMessage":     map[string]any{"Amount": "1001"},
	}

	assert.True(t, r.Is3DAuthSuccess(r.ExtractMdStatus(callback)))
	res := r.Map3DPaymentData(callback, provision, provider.TxTypePay, testOrder())
	assert.True(t, res.Approved())
	assert.Equal(t, "114293600", res.RemoteOrderID)
	assert.Equal(t, "241839", res.AuthCode)
	assert.Equal(t, provider.SecurityFull3D, res.Security.TransactionSecurity)
	require.NotNil(t, res.TransactionTime)

	provision["ResponseCode"] = "51"
	provision["ResponseMessage"] = "Yetersiz bakiye"
	res = r.Map3DPaymentData(callback, provision, provider.TxTypePay, testOrder())
	assert.Equal(t, provider.DetailInsufficientBalance, res.StatusDetail)
	assert.Equal(t, "Yetersiz bakiye", res.ErrorMessage)

	failed := provider.GatewayResponse{"ResponseCode": "MetaDataNotFound", "ResponseMessage": "Kart doğrulanamadı"}
	assert.False(t, r.Is3DAuthSuccess(r.ExtractMdStatus(failed)))
	res = r.Map3DPaymentData(failed, nil, provider.TxTypePay, testOrder())
	assert.Equal(t, provider.Detail3DAuthFailed, res.StatusDetail)
	assert.Equal(t, provider.SecurityAuthRejected, res.Security.TransactionSecurity)
}

const statusSOAP = `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
<s:Body>
<GetMerchantOrderDetailResponse xmlns="http://boa.net/BOA.Integration.VirtualPos/Service">
<GetMerchantOrderDetailResult xmlns:a="http://schemas.datacontract.org/2004/07/BOA.Common.Types" xmlns:i="http://www.w3.org/2001/XMLSchema-instance">
<a:Results/>
<a:Success>true</a:Success>
<a:Value>
<a:OrderContract>
<a:FEC>0949</a:FEC>
<a:FirstAmount>1001</a:FirstAmount>
<a:LastOrderStatus>6</a:LastOrderStatus>
<a:MerchantOrderId>ORDER-4001</a:MerchantOrderId>
<a:OrderDate>2024-05-01T10:00:00.09</a:OrderDate>
<a:OrderId>114293600</a:OrderId>
<a:ProvNumber>241839</a:ProvNumber>
<a:RRN>318923298433</a:RRN>
<a:ResponseCode>00</a:ResponseCode>
<a:Stan>298433</a:Stan>
</a:OrderContract>
</a:Value>
</GetMerchantOrderDetailResult>
</GetMerchantOrderDetailResponse>
</s:Body>
</s:Envelope>`

func TestMapStatusResponse(t *testing.T) {
	raw, err := provider.DecodeResponse([]byte(statusSOAP))
	require.NoError(t, err)

	res := New().Responses().MapStatusResponse(raw)
	assert.True(t, res.Approved())
	assert.Equal(t, "ORDER-4001", res.OrderID)
	assert.Equal(t, "114293600", res.RemoteOrderID)
	assert.Equal(t, provider.OrderStatusCanceled, res.OrderStatus)
	assert.Equal(t, "TRY", res.Currency)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("10.01")))
}

func TestMapCancelResponse_Failure(t *testing.T) {
	raw := provider.GatewayResponse{
		"SaleReversalResponse": map[string]any{
			"SaleReversalResult": map[string]any{
				"Success": "false",
				"Results": map[string]any{
					"Result": map[string]any{"ErrorCode": "OrderNotFound", "ErrorMessage": "Sipariş bulunamadı"},
				},
			},
		},
	}
	res := New().Responses().MapCancelResponse(raw)
	assert.False(t, res.Approved())
	assert.Equal(t, "OrderNotFound", res.ErrorCode)
	assert.Equal(t, provider.DetailTransactionNotFound, res.StatusDetail)
}

func TestMapRefundResponse_Partial(t *testing.T) {
	raw := provider.GatewayResponse{
		"PartialDrawbackResponse": map[string]any{
			"PartialDrawbackResult": map[string]any{
				"Success": "true",
				"Value": map[string]any{
					"ResponseCode":    "00",
					"MerchantOrderId": "ORDER-4001",
					"OrderId":         "114293600",
				},
			},
		},
	}
	res := New().Responses().MapRefundResponse(raw)
	assert.True(t, res.Approved())
	assert.Equal(t, provider.TxTypeRefundPartial, res.TransactionType)
	assert.Equal(t, "114293600", res.RemoteOrderID)
}
