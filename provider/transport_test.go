package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest_JSON(t *testing.T) {
	body, headers, err := EncodeRequest(GatewayRequest{"a": "1", "n": json.Number("2")}, Envelope{Kind: EnvelopeJSON, Headers: map[string]string{"X-Key": "k"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"1","n":2}`, string(body))
	assert.Equal(t, "application/json", headers["Content-Type"])
	assert.Equal(t, "k", headers["X-Key"])
}

func TestEncodeRequest_Form(t *testing.T) {
	body, headers, err := EncodeRequest(GatewayRequest{"oid": "ORD 1", "amount": "10.00"}, Envelope{Kind: EnvelopeForm})
	require.NoError(t, err)
	values, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	assert.Equal(t, "ORD 1", values.Get("oid"))
	assert.Equal(t, "10.00", values.Get("amount"))
	assert.Equal(t, "application/x-www-form-urlencoded", headers["Content-Type"])
}

func TestEncodeRequest_XML(t *testing.T) {
	req := GatewayRequest{
		"Name":    "Ali & Veli",
		"OrderId": "ORD-1",
		"BillTo":  map[string]any{"Name": "X"},
	}
	body, headers, err := EncodeRequest(req, Envelope{Kind: EnvelopeXML, Root: "CC5Request"})
	require.NoError(t, err)
	assert.Equal(t, "application/xml; charset=utf-8", headers["Content-Type"])
	doc := string(body)
	assert.True(t, strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?><CC5Request>`))
	assert.Contains(t, doc, `<BillTo><Name>X</Name></BillTo>`)
	assert.Contains(t, doc, `<Name>Ali &amp; Veli</Name>`)
	assert.Less(t, strings.Index(doc, "<BillTo>"), strings.Index(doc, "<OrderId>"), "elements are sorted")

	body, headers, err = EncodeRequest(req, Envelope{Kind: EnvelopeXML, Root: "CC5Request", FormField: "DATA"})
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", headers["Content-Type"])
	values, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(values.Get("DATA"), `<?xml`))
}

func TestEncodeRequest_SOAP(t *testing.T) {
	req := GatewayRequest{"-xmlns": "http://example.com/svc", "request": map[string]any{"Amount": "100"}}
	body, headers, err := EncodeRequest(req, Envelope{Kind: EnvelopeSOAP, Root: "DrawBack", SOAPAction: "http://example.com/svc/DrawBack"})
	require.NoError(t, err)

	s := string(body)
	assert.Contains(t, s, `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>`)
	assert.Contains(t, s, `<DrawBack xmlns="http://example.com/svc"><request><Amount>100</Amount></request></DrawBack>`)
	assert.True(t, strings.HasSuffix(s, `</soap:Body></soap:Envelope>`))
	assert.Equal(t, "http://example.com/svc/DrawBack", headers["SOAPAction"])
	assert.Equal(t, "text/xml; charset=utf-8", headers["Content-Type"])
}

func TestEncodeRequest_UnknownKind(t *testing.T) {
	_, _, err := EncodeRequest(GatewayRequest{}, Envelope{Kind: "yaml"})
	assert.Error(t, err)
}

func TestDecodeResponse(t *testing.T) {
	t.Run("json keeps numbers", func(t *testing.T) {
		got, err := DecodeResponse([]byte("\xef\xbb\xbf {\"code\":\"00\",\"amount\":10.50}"))
		require.NoError(t, err)
		assert.Equal(t, "00", Str(got, "code"))
		assert.Equal(t, "10.50", Str(got, "amount"))
	})

	t.Run("xml root removed", func(t *testing.T) {
		got, err := DecodeResponse([]byte(`<?xml version="1.0" encoding="ISO-8859-9"?><CC5Response><OrderId>ORD-1</OrderId><Extra><HOSTMSG>ok</HOSTMSG></Extra></CC5Response>`))
		require.NoError(t, err)
		assert.Equal(t, "ORD-1", Str(got, "OrderId"))
		assert.Equal(t, "ok", Str(got, "Extra", "HOSTMSG"))
	})

	t.Run("soap envelope removed", func(t *testing.T) {
		body := `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>` +
			`<SaleReversalResponse xmlns="http://example.com"><SaleReversalResult xmlns:a="http://example.com/a">` +
			`<a:Success>true</a:Success></SaleReversalResult></SaleReversalResponse></s:Body></s:Envelope>`
		got, err := DecodeResponse([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, "true", Str(got, "SaleReversalResponse", "SaleReversalResult", "Success"))
	})

	t.Run("html form", func(t *testing.T) {
		body := `<html><body><form action="https://acs.example.com/auth" method="post">` +
			`<input type="hidden" name="PaReq" value="abc"><input type="hidden" name="TermUrl" value="https://shop/cb"></form></body></html>`
		got, err := DecodeResponse([]byte(body))
		require.NoError(t, err)

		form := FormInputs(got)
		require.NotNil(t, form)
		assert.Equal(t, "https://acs.example.com/auth", form.Gateway)
		assert.Equal(t, "POST", form.Method)
		assert.Equal(t, map[string]string{"PaReq": "abc", "TermUrl": "https://shop/cb"}, form.Inputs)
	})

	t.Run("query string", func(t *testing.T) {
		got, err := DecodeResponse([]byte("Response=Approved&ProcReturnCode=00"))
		require.NoError(t, err)
		assert.Equal(t, "Approved", Str(got, "Response"))
		assert.Equal(t, "00", Str(got, "ProcReturnCode"))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DecodeResponse([]byte("  "))
		assert.Error(t, err)
	})

	t.Run("broken json", func(t *testing.T) {
		_, err := DecodeResponse([]byte("{nope"))
		assert.Error(t, err)
	})
}

func TestDecodeCallback(t *testing.T) {
	doc := `<VPosTransactionResponseContract><ResponseCode>00</ResponseCode><MD>md-1</MD></VPosTransactionResponseContract>`

	got := DecodeCallback(url.Values{"AuthenticationResponse": {url.QueryEscape(doc)}, "extra": {"x"}})
	assert.Equal(t, "00", Str(got, "ResponseCode"))
	assert.Equal(t, "md-1", Str(got, "MD"))
	assert.Equal(t, "x", Str(got, "extra"))
	assert.NotContains(t, got, "AuthenticationResponse")

	got = DecodeCallback(url.Values{"mdStatus": {"1"}, "empty": {}})
	assert.Equal(t, GatewayResponse{"mdStatus": "1"}, got)
}

func TestFormInputs_Missing(t *testing.T) {
	assert.Nil(t, FormInputs(GatewayResponse{"gateway": "https://x"}))
	assert.Nil(t, FormInputs(GatewayResponse{"inputs": map[string]any{}}))
}

func TestRedirectForm_HTML(t *testing.T) {
	form := &RedirectForm{Gateway: "https://bank/est3Dgate", Method: "POST", Inputs: map[string]string{"oid": "1", "b": `"q"`}}
	html := form.HTML()
	assert.Contains(t, html, `<form method="POST" action="https://bank/est3Dgate">`)
	assert.Less(t, strings.Index(html, `name="b"`), strings.Index(html, `name="oid"`))
	assert.Contains(t, html, `value="&#34;q&#34;"`)
}

func TestHTTPTransport_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "sig:"+string(body), r.Header.Get("auth-hash"))
		assert.Equal(t, "GoPOS/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"responseCode":"VPS-0000"}`))
	}))
	defer server.Close()

	transport := NewHTTPTransport(NewGatewayHTTPClient(CreateHTTPClientConfig(false, 0)))
	env := Envelope{
		Kind: EnvelopeJSON,
		URL:  server.URL,
		SignBody: func(body []byte) (map[string]string, error) {
			return map[string]string{"auth-hash": "sig:" + string(body)}, nil
		},
	}
	got, err := transport.Send(context.Background(), "test", GatewayRequest{"txnCode": "1000"}, env)
	require.NoError(t, err)
	assert.Equal(t, "VPS-0000", Str(got, "responseCode"))
}

func TestHTTPTransport_SendHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	transport := NewHTTPTransport(NewGatewayHTTPClient(CreateHTTPClientConfig(false, 0)))
	_, err := transport.Send(context.Background(), "test", GatewayRequest{}, Envelope{Kind: EnvelopeForm, URL: server.URL})

	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, http.StatusBadGateway, tErr.StatusCode)
	assert.Equal(t, "test", tErr.Gateway)
}

func TestHTTPTransport_SendUndecodable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	transport := NewHTTPTransport(NewGatewayHTTPClient(CreateHTTPClientConfig(false, 0)))
	_, err := transport.Send(context.Background(), "test", GatewayRequest{}, Envelope{Kind: EnvelopeForm, URL: server.URL})

	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, http.StatusOK, tErr.StatusCode)
}
