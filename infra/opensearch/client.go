package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/gopos/infra/config"
	"github.com/opensearch-project/opensearch-go/v2"
)

const indexPrefix = "gopos"

// Client wraps the OpenSearch client
type Client struct {
	client  *opensearch.Client
	enabled bool
}

// NewClient creates a client and makes sure a transaction index exists
// for every gateway name given.
func NewClient(ctx context.Context, cfg *config.AppConfig, gateways ...string) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.OpenSearchURL},
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !cfg.IsProduction(),
			},
		},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.OpenSearchUser != "" && cfg.OpenSearchPass != "" {
		opensearchConfig.Username = cfg.OpenSearchUser
		opensearchConfig.Password = cfg.OpenSearchPass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, fmt.Errorf("opensearch client: %w", err)
	}

	osClient := &Client{client: client, enabled: cfg.EnableLogging}
	if osClient.enabled {
		osClient.setupIndices(ctx, gateways)
	}
	return osClient, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// IsEnabled returns whether OpenSearch logging is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// setupIndices creates the shared transaction index of each gateway.
// Failures are logged; indexing later creates missing indices with
// dynamic mappings.
func (c *Client) setupIndices(ctx context.Context, gateways []string) {
	indices := make([]string, 0, len(gateways)+1)
	for _, gw := range gateways {
		indices = append(indices, c.GetLogIndexName(gw))
	}
	indices = append(indices, systemIndexName)

	for _, name := range indices {
		if err := c.ensureIndex(ctx, name); err != nil {
			log.Printf("Warning: failed to set up OpenSearch index %s: %v", name, err)
		}
	}
}

func (c *Client) ensureIndex(ctx context.Context, indexName string) error {
	res, err := c.client.Indices.Exists([]string{indexName}, c.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("indices.exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(indexMapping(indexName))
	if err != nil {
		return err
	}
	cr, err := c.client.Indices.Create(
		indexName,
		c.client.Indices.Create.WithBody(bytes.NewReader(body)),
		c.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("indices.create: %w", err)
	}
	defer cr.Body.Close()
	if cr.IsError() {
		return fmt.Errorf("index creation error: %s", cr.String())
	}
	return nil
}

func indexMapping(indexName string) map[string]any {
	keyword := map[string]any{"type": "keyword"}
	properties := map[string]any{
		"timestamp":    map[string]any{"type": "date", "format": "strict_date_optional_time||epoch_millis"},
		"request_id":   keyword,
		"merchant_key": keyword,
		"gateway":      keyword,
		"message":      map[string]any{"type": "text"},
	}
	if indexName != systemIndexName {
		for _, f := range []string{"operation", "tx_type", "payment_model", "session_id", "order_id", "currency", "status", "status_detail", "proc_return_code"} {
			properties[f] = keyword
		}
		properties["amount"] = map[string]any{"type": "scaled_float", "scaling_factor": 100}
		properties["processing_time_ms"] = map[string]any{"type": "integer"}
		properties["request"] = map[string]any{"type": "object", "enabled": false}
		properties["response"] = map[string]any{"type": "object", "enabled": false}
		properties["error"] = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code":    keyword,
				"message": map[string]any{"type": "text"},
			},
		}
	}
	return map[string]any{
		"mappings": map[string]any{"properties": properties},
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
	}
}

// GetLogIndexName returns the transaction index of a gateway. Merchants
// share it and are told apart by merchant_key.
func (c *Client) GetLogIndexName(gateway string) string {
	return strings.ToLower(indexPrefix + "-" + gateway + "-transactions")
}
