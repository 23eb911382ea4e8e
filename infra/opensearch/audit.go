package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const systemIndexName = indexPrefix + "-system-logs"

// ErrLoggingDisabled is returned by searches when OpenSearch logging is off.
var ErrLoggingDisabled = errors.New("opensearch logging is disabled")

// TransactionLog is the audit record of one gateway call. Request and
// Response are stored already scrubbed of card data and secrets.
type TransactionLog struct {
	Timestamp        time.Time      `json:"timestamp"`
	RequestID        string         `json:"request_id"`
	MerchantKey      string         `json:"merchant_key,omitempty"`
	Gateway          string         `json:"gateway"`
	Operation        string         `json:"operation"`
	TxType           string         `json:"tx_type,omitempty"`
	PaymentModel     string         `json:"payment_model,omitempty"`
	SessionID        string         `json:"session_id,omitempty"`
	OrderID          string         `json:"order_id,omitempty"`
	Amount           float64        `json:"amount,omitempty"`
	Currency         string         `json:"currency,omitempty"`
	Status           string         `json:"status,omitempty"`
	StatusDetail     string         `json:"status_detail,omitempty"`
	ProcReturnCode   string         `json:"proc_return_code,omitempty"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Request          map[string]any `json:"request,omitempty"`
	Response         map[string]any `json:"response,omitempty"`
	Error            *ErrorInfo     `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// AuditLogger indexes transaction and system logs.
type AuditLogger struct {
	client *Client
}

// NewAuditLogger creates a new OpenSearch audit logger
func NewAuditLogger(client *Client) *AuditLogger {
	return &AuditLogger{client: client}
}

func (l *AuditLogger) index(ctx context.Context, indexName string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}
	cl := l.client.GetClient()
	res, err := cl.Index(
		indexName,
		bytes.NewReader(body),
		cl.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index log: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}
	return nil
}

// LogTransaction indexes entry into the gateway's transaction index.
func (l *AuditLogger) LogTransaction(ctx context.Context, entry TransactionLog) error {
	if !l.client.IsEnabled() {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = uuid.NewString()
	}
	return l.index(ctx, l.client.GetLogIndexName(entry.Gateway), entry)
}

// LogSystemEvent indexes a system log entry.
func (l *AuditLogger) LogSystemEvent(ctx context.Context, entry any) error {
	if !l.client.IsEnabled() {
		return nil
	}
	return l.index(ctx, systemIndexName, entry)
}

// SearchLogs runs query against the gateway's transaction index, limited
// to the merchant's entries, newest first.
func (l *AuditLogger) SearchLogs(ctx context.Context, merchantKey, gateway string, query map[string]any) ([]TransactionLog, error) {
	if !l.client.IsEnabled() {
		return nil, ErrLoggingDisabled
	}

	filters := []map[string]any{}
	if merchantKey != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"merchant_key": merchantKey}})
	}
	if query != nil {
		filters = append(filters, query)
	}
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"bool": map[string]any{"filter": filters}},
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": 100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	cl := l.client.GetClient()
	res, err := cl.Search(
		cl.Search.WithContext(ctx),
		cl.Search.WithIndex(l.client.GetLogIndexName(gateway)),
		cl.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var sr struct {
		Hits struct {
			Hits []struct {
				Source TransactionLog `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	logs := make([]TransactionLog, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		logs[i] = hit.Source
	}
	return logs, nil
}

// GetOrderLogs returns every logged call for one order.
func (l *AuditLogger) GetOrderLogs(ctx context.Context, merchantKey, gateway, orderID string) ([]TransactionLog, error) {
	return l.SearchLogs(ctx, merchantKey, gateway, map[string]any{
		"term": map[string]any{"order_id": orderID},
	})
}

// GetRecentErrorLogs returns failed calls of the last hours.
func (l *AuditLogger) GetRecentErrorLogs(ctx context.Context, merchantKey, gateway string, hours int) ([]TransactionLog, error) {
	return l.SearchLogs(ctx, merchantKey, gateway, map[string]any{
		"bool": map[string]any{
			"must": []map[string]any{
				{"range": map[string]any{"timestamp": map[string]any{"gte": fmt.Sprintf("now-%dh", hours)}}},
				{"exists": map[string]any{"field": "error.code"}},
			},
		},
	})
}

var sensitivePatterns = func() []*regexp.Regexp {
	fields := []string{
		"cardNumber", "card_number", "CardNumber", "Number", "Pan", "pan",
		"cvv", "cvc", "Cvv2Val", "CardCVV2", "CardCvv2",
		"password", "Password", "storeKey", "store_key", "HashData", "hash",
		"apiKey", "api_key", "secretKey", "secret_key", "token", "authorization",
	}
	var out []*regexp.Regexp
	for _, f := range fields {
		q := regexp.QuoteMeta(f)
		out = append(out,
			regexp.MustCompile(`("`+q+`"\s*:\s*)"[^"]*"`),
			regexp.MustCompile(`(<`+q+`>)[^<]*(</`+q+`>)`),
			regexp.MustCompile(`(\b`+q+`=)[^&\s]*`),
		)
	}
	return out
}()

// SanitizeForLog redacts card data and credentials in JSON, XML and
// query-string text.
func SanitizeForLog(data string) string {
	for i, re := range sensitivePatterns {
		switch i % 3 {
		case 0:
			data = re.ReplaceAllString(data, `${1}"***REDACTED***"`)
		case 1:
			data = re.ReplaceAllString(data, `${1}***REDACTED***${2}`)
		default:
			data = re.ReplaceAllString(data, `${1}***REDACTED***`)
		}
	}
	return data
}
