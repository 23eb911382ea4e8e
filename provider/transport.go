package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/clbanning/mxj/v2"
	"github.com/mstgnz/gopos/infra/logger"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

func init() {
	mxj.XMLEscapeChars(true)
	mxj.XmlCharsetReader = charset.NewReaderLabel
}

const soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

// HTTPTransport encodes gateway requests, posts them and decodes the
// answer into a GatewayResponse.
type HTTPTransport struct {
	client *GatewayHTTPClient
}

// NewHTTPTransport creates a transport over the given client
func NewHTTPTransport(client *GatewayHTTPClient) *HTTPTransport {
	return &HTTPTransport{client: client}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, gateway string, req GatewayRequest, env Envelope) (GatewayResponse, error) {
	body, headers, err := EncodeRequest(req, env)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", gateway, err)
	}
	if env.SignBody != nil {
		signed, err := env.SignBody(body)
		if err != nil {
			return nil, fmt.Errorf("%s: sign body: %w", gateway, err)
		}
		for k, v := range signed {
			headers[k] = v
		}
	}

	start := time.Now()
	logger.Debug("Sending gateway request", logger.LogContext{
		Provider: gateway,
		Fields: map[string]any{
			"url":      env.URL,
			"envelope": string(env.Kind),
			"request":  SanitizeForLog(req),
		},
	})

	resp, err := t.client.Do(ctx, &HTTPRequest{URL: env.URL, Headers: headers, Body: body})
	if err != nil {
		tErr := &TransportError{Gateway: gateway, URL: env.URL, Err: err}
		if resp != nil {
			tErr.StatusCode = resp.StatusCode
		}
		logger.Warn("Gateway request failed", logger.LogContext{
			Provider: gateway,
			Fields: map[string]any{
				"url":           env.URL,
				"error":         err.Error(),
				"processing_ms": time.Since(start).Milliseconds(),
			},
		})
		return nil, tErr
	}

	decoded, err := DecodeResponse(resp.Body)
	if err != nil {
		return nil, &TransportError{Gateway: gateway, URL: env.URL, StatusCode: resp.StatusCode, Err: err}
	}

	logger.Debug("Gateway response received", logger.LogContext{
		Provider: gateway,
		Fields: map[string]any{
			"url":           env.URL,
			"status_code":   resp.StatusCode,
			"processing_ms": time.Since(start).Milliseconds(),
		},
	})
	return decoded, nil
}

// EncodeRequest renders req in the envelope encoding and returns the body
// and the headers to send.
func EncodeRequest(req GatewayRequest, env Envelope) ([]byte, map[string]string, error) {
	headers := make(map[string]string, len(env.Headers)+2)
	for k, v := range env.Headers {
		headers[k] = v
	}

	switch env.Kind {
	case EnvelopeJSON:
		body, err := json.Marshal(map[string]any(req))
		if err != nil {
			return nil, nil, err
		}
		headers["Content-Type"] = "application/json"
		headers["Accept"] = "application/json"
		return body, headers, nil

	case EnvelopeForm:
		values := url.Values{}
		for k := range req {
			values.Set(k, Str(req, k))
		}
		headers["Content-Type"] = "application/x-www-form-urlencoded"
		return []byte(values.Encode()), headers, nil

	case EnvelopeXML:
		doc, err := mxj.Map(map[string]any(req)).Xml(rootTags(env.Root)...)
		if err != nil {
			return nil, nil, err
		}
		body := append([]byte(`<?xml version="1.0" encoding="UTF-8"?>`), doc...)
		if env.FormField != "" {
			headers["Content-Type"] = "application/x-www-form-urlencoded"
			return []byte(url.Values{env.FormField: {string(body)}}.Encode()), headers, nil
		}
		headers["Content-Type"] = "application/xml; charset=utf-8"
		return body, headers, nil

	case EnvelopeSOAP:
		inner, err := mxj.Map(map[string]any(req)).Xml(rootTags(env.Root)...)
		if err != nil {
			return nil, nil, err
		}
		var b bytes.Buffer
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
		b.WriteString(`<soap:Envelope xmlns:soap="` + soapEnvelopeNS + `"><soap:Body>`)
		b.Write(inner)
		b.WriteString(`</soap:Body></soap:Envelope>`)
		headers["Content-Type"] = "text/xml; charset=utf-8"
		if env.SOAPAction != "" {
			headers["SOAPAction"] = env.SOAPAction
		}
		return b.Bytes(), headers, nil
	}
	return nil, nil, fmt.Errorf("unknown envelope kind %q", env.Kind)
}

func rootTags(root string) []string {
	if root == "" {
		return nil
	}
	return []string{root}
}

// DecodeResponse sniffs the body and decodes JSON, XML, SOAP, an HTML
// redirect form or a form-encoded string. XML root elements and SOAP
// Envelope/Body wrappers are removed.
func DecodeResponse(body []byte) (GatewayResponse, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return nil, errors.New("empty response body")
	}

	switch trimmed[0] {
	case '{':
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var out map[string]any
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return GatewayResponse(out), nil
	case '<':
		lower := bytes.ToLower(trimmed)
		if bytes.Contains(lower, []byte("<form")) && !bytes.HasPrefix(lower, []byte("<?xml")) {
			return decodeHTMLForm(trimmed)
		}
		return decodeXML(trimmed)
	}

	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("decode form: %w", err)
	}
	out := make(GatewayResponse, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out, nil
}

func decodeXML(body []byte) (GatewayResponse, error) {
	m, err := mxj.NewMapXml(body)
	if err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}

	var cur map[string]any = m
	if env := childByLocalName(cur, "Envelope"); env != nil {
		if b := childByLocalName(env, "Body"); b != nil {
			return GatewayResponse(b), nil
		}
	}
	if len(cur) == 1 {
		for _, v := range cur {
			if inner, ok := v.(map[string]any); ok {
				return GatewayResponse(inner), nil
			}
			return GatewayResponse{}, nil
		}
	}
	return GatewayResponse(cur), nil
}

func childByLocalName(m map[string]any, local string) map[string]any {
	for k, v := range m {
		name := k
		if i := strings.LastIndex(k, ":"); i >= 0 {
			name = k[i+1:]
		}
		if strings.EqualFold(name, local) {
			if child, ok := v.(map[string]any); ok {
				return child
			}
		}
	}
	return nil
}

// decodeHTMLForm extracts the first form of an ACS page as
// {"gateway": action, "method": method, "inputs": {name: value}}.
func decodeHTMLForm(body []byte) (GatewayResponse, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode html: %w", err)
	}

	var form *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if form != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "form" {
			form = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if form == nil {
		return nil, errors.New("decode html: no form found")
	}

	inputs := map[string]any{}
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" {
			if name := attr(n, "name"); name != "" {
				inputs[name] = attr(n, "value")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(form)

	method := strings.ToUpper(attr(form, "method"))
	if method == "" {
		method = "POST"
	}
	return GatewayResponse{
		"gateway": attr(form, "action"),
		"method":  method,
		"inputs":  inputs,
	}, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// DecodeCallback turns a bank callback POST into a GatewayResponse. A
// field carrying an XML document (raw or URL-encoded) is decoded and its
// content merged into the result.
func DecodeCallback(values url.Values) GatewayResponse {
	out := make(GatewayResponse, len(values))
	for k, v := range values {
		if len(v) == 0 {
			continue
		}
		val := v[0]
		if strings.HasPrefix(val, "%3C") || strings.HasPrefix(val, "%3c") {
			if unescaped, err := url.QueryUnescape(val); err == nil {
				val = unescaped
			}
		}
		if strings.HasPrefix(strings.TrimSpace(val), "<") {
			if doc, err := decodeXML([]byte(val)); err == nil {
				for dk, dv := range doc {
					out[dk] = dv
				}
				continue
			}
		}
		out[k] = val
	}
	return out
}

// FormInputs converts a decoded redirect form back to RedirectForm.
func FormInputs(raw GatewayResponse) *RedirectForm {
	action := Str(raw, "gateway")
	inputs := Map(raw, "inputs")
	if action == "" || inputs == nil {
		return nil
	}
	form := &RedirectForm{Gateway: action, Method: Str(raw, "method"), Inputs: map[string]string{}}
	for k := range inputs {
		form.Inputs[k] = Str(inputs, k)
	}
	return form
}
