package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mstgnz/cloverbridge/infra/kv"
	"github.com/mstgnz/cloverbridge/infra/logger"
	"github.com/mstgnz/cloverbridge/provider"
)

// FailedUpdate records a payment that was matched and processed but whose
// CRM invoice update failed. It is persisted for out-of-band retry; nothing
// retries it in-process.
type FailedUpdate struct {
	ChargeID    string    `json:"chargeId"`
	TenantID    string    `json:"tenantId"`
	InvoiceID   string    `json:"invoiceId"`
	AmountMinor int64     `json:"amountMinor"`
	Reason      string    `json:"reason"`
	RetryCount  int       `json:"retryCount"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// notificationRecord mirrors the ops-dashboard notification entry.
type notificationRecord struct {
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	TenantID    string    `json:"locationId"`
	InvoiceID   string    `json:"invoiceId"`
	PaymentID   string    `json:"paymentId"`
	AmountMinor int64     `json:"amount"`
	Error       string    `json:"error"`
	Timestamp   time.Time `json:"timestamp"`
	Resolved    bool      `json:"resolved"`
}

// FailedUpdates persists failed CRM updates and raises notifications.
type FailedUpdates struct {
	store      kv.Store
	webhookURL string
	http       *provider.HTTPClient
	now        func() time.Time
}

// NewFailedUpdates creates the failed-update store. webhookURL may be empty;
// notifications are then persisted only.
func NewFailedUpdates(store kv.Store, webhookURL string) *FailedUpdates {
	return &FailedUpdates{
		store:      store,
		webhookURL: webhookURL,
		http:       provider.NewHTTPClient(&provider.HTTPClientConfig{Timeout: 10 * time.Second}),
		now:        time.Now,
	}
}

// Record persists the failed update under failed_invoice_update_{chargeId}.
func (f *FailedUpdates) Record(ctx context.Context, update FailedUpdate) error {
	if update.ChargeID == "" {
		return fmt.Errorf("failed update requires a charge id")
	}
	if update.RecordedAt.IsZero() {
		update.RecordedAt = f.now()
	}

	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal failed update: %w", err)
	}

	if err := f.store.Set(ctx, keyFailedUpdate+update.ChargeID, data, failedUpdateTTL); err != nil {
		return fmt.Errorf("failed to store failed update: %w", err)
	}

	return nil
}

// Get returns the failed-update record for a charge id, or kv.ErrNotFound.
func (f *FailedUpdates) Get(ctx context.Context, chargeID string) (*FailedUpdate, error) {
	data, err := f.store.Get(ctx, keyFailedUpdate+chargeID)
	if err != nil {
		return nil, err
	}

	var update FailedUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("corrupt failed update record: %w", err)
	}

	return &update, nil
}

// Notify persists an ops notification for the failed update and, when a
// webhook URL is configured, POSTs it there. Best-effort: delivery problems
// are logged, never returned, so the webhook ingestor can still ack the
// payment.
func (f *FailedUpdates) Notify(ctx context.Context, update FailedUpdate) {
	record := notificationRecord{
		Type:        "PAYMENT_SUCCESS_INVOICE_FAILED",
		Status:      "pending",
		TenantID:    update.TenantID,
		InvoiceID:   update.InvoiceID,
		PaymentID:   update.ChargeID,
		AmountMinor: update.AmountMinor,
		Error:       update.Reason,
		Timestamp:   f.now(),
	}

	data, err := json.Marshal(record)
	if err == nil {
		if err := f.store.Set(ctx, keyNotification+update.ChargeID, data, notificationTTL); err != nil {
			logger.Error("failed to persist invoice-update notification", err, logger.LogContext{
				TenantID: update.TenantID,
				Fields:   map[string]any{"charge_id": update.ChargeID},
			})
		}
	}

	if f.webhookURL == "" {
		return
	}

	_, err = f.http.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: f.webhookURL,
		Body: map[string]any{
			"event": "payment.invoice.update.failed",
			"data": map[string]any{
				"message":   "Payment processed successfully but invoice update failed",
				"invoiceId": update.InvoiceID,
				"paymentId": update.ChargeID,
				"amount":    update.AmountMinor,
				"error":     update.Reason,
				"timestamp": f.now().Format(time.RFC3339),
			},
		},
	})
	if err != nil {
		logger.Warn("notification webhook delivery failed", logger.LogContext{
			TenantID: update.TenantID,
			Fields:   map[string]any{"charge_id": update.ChargeID, "error": err.Error()},
		})
	}
}
