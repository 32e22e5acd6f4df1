package opensearch

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/cloverbridge/infra/config"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Client wraps the OpenSearch client
type Client struct {
	client *opensearch.Client
	config *config.AppConfig
}

// NewClient creates a new OpenSearch client
func NewClient(cfg *config.AppConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.OpenSearchURL},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // For development/testing
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
		return nil, err
	}

	osClient := &Client{
		client: client,
		config: cfg,
	}

	if err := osClient.setupIndices(); err != nil {
		log.Printf("Warning: Failed to setup OpenSearch indices: %v", err)
	}

	return osClient, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// IsEnabled reports whether OpenSearch logging is active
func (c *Client) IsEnabled() bool {
	return c != nil && c.client != nil && c.config.EnableLogging
}

// GetEventIndexName returns the index used for reconciliation event logs
func (c *Client) GetEventIndexName() string {
	return "cloverbridge-events"
}

// GetSystemIndexName returns the index used for system logs
func (c *Client) GetSystemIndexName() string {
	return "cloverbridge-system-logs"
}

// setupIndices creates the indices used by the bridge
func (c *Client) setupIndices() error {
	indices := map[string]string{
		c.GetEventIndexName():  eventIndexMapping,
		c.GetSystemIndexName(): systemIndexMapping,
	}

	for indexName, mapping := range indices {
		exists, err := c.indexExists(indexName)
		if err != nil {
			log.Printf("Error checking index %s: %v", indexName, err)
			continue
		}

		if !exists {
			if err := c.createIndex(indexName, mapping); err != nil {
				log.Printf("Error creating index %s: %v", indexName, err)
				continue
			}
			log.Printf("Created OpenSearch index: %s", indexName)
		}
	}

	return nil
}

// indexExists checks if an index exists
func (c *Client) indexExists(indexName string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(nil, c.client)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == 200, nil
}

// createIndex creates a new index with the given mapping
func (c *Client) createIndex(indexName, mapping string) error {
	req := opensearchapi.IndicesCreateRequest{
		Index: indexName,
		Body:  strings.NewReader(mapping),
	}

	res, err := req.Do(nil, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to create index %s: %s", indexName, res.String())
	}

	return nil
}

const eventIndexMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {
				"type": "date",
				"format": "strict_date_optional_time||epoch_millis"
			},
			"tenant_id": { "type": "keyword" },
			"merchant_id": { "type": "keyword" },
			"charge_id": { "type": "keyword" },
			"invoice_id": { "type": "keyword" },
			"request_id": { "type": "keyword" },
			"amount_minor": { "type": "long" },
			"matched_by": { "type": "keyword" },
			"outcome": { "type": "keyword" },
			"error": { "type": "text" }
		}
	}
}`

const systemIndexMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {
				"type": "date",
				"format": "strict_date_optional_time||epoch_millis"
			},
			"level": { "type": "keyword" },
			"message": { "type": "text" },
			"component": { "type": "keyword" },
			"tenant_id": { "type": "keyword" },
			"request_id": { "type": "keyword" },
			"error": { "type": "text" }
		}
	}
}`
