package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Reconciliation outcomes recorded per processed payment notification.
const (
	OutcomeMatched      = "matched"
	OutcomeUnmatched    = "unmatched"
	OutcomeRecorded     = "recorded"
	OutcomeRecordFailed = "record_failed"
	OutcomeFetchFailed  = "fetch_failed"
)

// EventLog represents a structured reconciliation event entry
type EventLog struct {
	Timestamp   time.Time `json:"timestamp"`
	TenantID    string    `json:"tenant_id,omitempty"`
	MerchantID  string    `json:"merchant_id,omitempty"`
	ChargeID    string    `json:"charge_id,omitempty"`
	InvoiceID   string    `json:"invoice_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	AmountMinor int64     `json:"amount_minor,omitempty"`
	MatchedBy   string    `json:"matched_by,omitempty"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
}

// Logger handles OpenSearch logging operations
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// LogEvent logs a reconciliation event to OpenSearch
func (l *Logger) LogEvent(ctx context.Context, event EventLog) error {
	if !l.client.IsEnabled() {
		return nil // Logging disabled
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RequestID == "" {
		event.RequestID = uuid.New().String()
	}

	return l.index(ctx, l.client.GetEventIndexName(), event)
}

// LogSystemEntry logs a system log entry to OpenSearch
func (l *Logger) LogSystemEntry(ctx context.Context, entry any) error {
	if !l.client.IsEnabled() {
		return nil
	}

	return l.index(ctx, l.client.GetSystemIndexName(), entry)
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(docJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}

	return nil
}

// SearchEvents searches reconciliation events based on criteria
func (l *Logger) SearchEvents(ctx context.Context, query map[string]any) ([]EventLog, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	searchQuery := map[string]any{
		"query": query,
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": 100, // Limit results
	}

	queryJSON, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{l.client.GetEventIndexName()},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source EventLog `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	events := make([]EventLog, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		events[i] = hit.Source
	}

	return events, nil
}

// GetChargeEvents retrieves events for a specific processor charge id
func (l *Logger) GetChargeEvents(ctx context.Context, chargeID string) ([]EventLog, error) {
	query := map[string]any{
		"match": map[string]any{
			"charge_id": chargeID,
		},
	}

	return l.SearchEvents(ctx, query)
}
