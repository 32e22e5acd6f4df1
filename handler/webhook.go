package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mstgnz/cloverbridge/infra/logger"
	"github.com/mstgnz/cloverbridge/infra/opensearch"
	"github.com/mstgnz/cloverbridge/infra/response"
	"github.com/mstgnz/cloverbridge/provider/clover"
	"github.com/mstgnz/cloverbridge/provider/ghl"
	"github.com/mstgnz/cloverbridge/reconcile"
)

// Webhook event types that carry a payment.
const (
	eventPaymentCreated = "PAYMENT_CREATED"
	eventCreate         = "CREATE"
)

// PaymentFetcher retrieves full payment detail from the processor.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, merchantID, paymentID string) (*clover.Payment, error)
}

// MerchantResolver maps a processor merchant id to a tenant.
type MerchantResolver interface {
	ResolveMerchant(ctx context.Context, merchantID string) (string, error)
}

// PaymentMatcher resolves a payment notification to a tracked invoice.
type PaymentMatcher interface {
	Match(ctx context.Context, payment reconcile.PaymentNotification) (*reconcile.MatchResult, error)
}

// PaymentRecorder records a matched payment against a CRM invoice.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, tenantID, invoiceID string, req ghl.RecordPaymentRequest) (*ghl.RecordPaymentResult, error)
}

// FailedUpdateSink persists and notifies failed CRM updates.
type FailedUpdateSink interface {
	Record(ctx context.Context, update reconcile.FailedUpdate) error
	Notify(ctx context.Context, update reconcile.FailedUpdate)
}

// WebhookHandler receives asynchronous payment notifications from the
// processor and drives the matcher and the CRM update.
type WebhookHandler struct {
	fetcher   PaymentFetcher
	merchants MerchantResolver
	matcher   PaymentMatcher
	recorder  PaymentRecorder
	failed    FailedUpdateSink
	events    *opensearch.Logger
}

// NewWebhookHandler creates a webhook handler. events may be nil.
func NewWebhookHandler(fetcher PaymentFetcher, merchants MerchantResolver, matcher PaymentMatcher, recorder PaymentRecorder, failed FailedUpdateSink, events *opensearch.Logger) *WebhookHandler {
	return &WebhookHandler{
		fetcher:   fetcher,
		merchants: merchants,
		matcher:   matcher,
		recorder:  recorder,
		failed:    failed,
		events:    events,
	}
}

type webhookEnvelope struct {
	Type       string `json:"type"`
	MerchantID string `json:"merchantId"`
	ObjectID   string `json:"objectId"`
}

type webhookAck struct {
	Received  bool   `json:"received"`
	Matched   bool   `json:"matched,omitempty"`
	InvoiceID string `json:"invoiceId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleWebhook processes a processor notification. The sender redelivers
// on non-200, so almost every outcome is acknowledged with 200; the two
// exceptions are a transient payment-detail fetch failure (502, nothing can
// be matched without the detail) and a backing-store failure during
// matching (500).
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var envelope webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		logger.Warn("unparseable webhook payload", logger.LogContext{
			Fields: map[string]any{"error": err.Error()},
		})
		_ = response.WriteRaw(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	if envelope.Type != eventPaymentCreated && envelope.Type != eventCreate {
		_ = response.WriteRaw(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	ctx := r.Context()

	payment, err := h.fetcher.GetPayment(ctx, envelope.MerchantID, envelope.ObjectID)
	if err != nil {
		if cerr, ok := clover.AsError(err); ok && cerr.IsTransient() {
			logger.Warn("transient payment fetch failure, requesting redelivery", logger.LogContext{
				Fields: map[string]any{"merchant_id": envelope.MerchantID, "payment_id": envelope.ObjectID, "error": cerr.Message},
			})
			h.logEvent(envelope.MerchantID, envelope.ObjectID, opensearch.EventLog{
				Outcome: opensearch.OutcomeFetchFailed,
				Error:   cerr.Message,
			})
			_ = response.WriteRaw(w, http.StatusBadGateway, webhookAck{Error: "payment detail unavailable"})
			return
		}

		logger.Error("could not retrieve payment detail", err, logger.LogContext{
			Fields: map[string]any{"merchant_id": envelope.MerchantID, "payment_id": envelope.ObjectID},
		})
		h.logEvent(envelope.MerchantID, envelope.ObjectID, opensearch.EventLog{
			Outcome: opensearch.OutcomeFetchFailed,
			Error:   err.Error(),
		})
		_ = response.WriteRaw(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	tenantID, err := h.merchants.ResolveMerchant(ctx, envelope.MerchantID)
	if err != nil {
		logger.Error("merchant resolution failed", err, logger.LogContext{
			Fields: map[string]any{"merchant_id": envelope.MerchantID},
		})
		_ = response.WriteRaw(w, http.StatusInternalServerError, webhookAck{Error: "store unavailable"})
		return
	}

	notification := reconcile.PaymentNotification{
		ChargeID:    payment.ID,
		MerchantID:  envelope.MerchantID,
		TenantID:    tenantID,
		AmountMinor: payment.Amount,
		Note:        payment.Note,
		CreatedAt:   time.UnixMilli(payment.CreatedTime),
		CardBrand:   payment.CardTransaction.CardType,
		CardLast4:   payment.CardTransaction.Last4,
	}

	result, err := h.matcher.Match(ctx, notification)
	if err != nil {
		logger.Error("matching failed on backing store", err, logger.LogContext{
			TenantID: tenantID,
			Fields:   map[string]any{"charge_id": payment.ID},
		})
		_ = response.WriteRaw(w, http.StatusInternalServerError, webhookAck{Error: "store unavailable"})
		return
	}

	if result == nil {
		h.logEvent(envelope.MerchantID, payment.ID, opensearch.EventLog{
			TenantID:    tenantID,
			AmountMinor: payment.Amount,
			Outcome:     opensearch.OutcomeUnmatched,
		})
		_ = response.WriteRaw(w, http.StatusOK, webhookAck{Received: true, Matched: false})
		return
	}

	h.logEvent(envelope.MerchantID, payment.ID, opensearch.EventLog{
		TenantID:    result.TenantID,
		InvoiceID:   result.InvoiceID,
		AmountMinor: payment.Amount,
		MatchedBy:   result.MatchedBy,
		Outcome:     opensearch.OutcomeMatched,
	})

	h.recordInCRM(ctx, result, payment)

	_ = response.WriteRaw(w, http.StatusOK, webhookAck{
		Received:  true,
		Matched:   true,
		InvoiceID: result.InvoiceID,
	})
}

// recordInCRM updates the CRM invoice. The charge already happened; a CRM
// failure is persisted for out-of-band retry, never surfaced to the sender.
func (h *WebhookHandler) recordInCRM(ctx context.Context, result *reconcile.MatchResult, payment *clover.Payment) {
	_, err := h.recorder.RecordPayment(ctx, result.TenantID, result.InvoiceID, ghl.RecordPaymentRequest{
		AmountMinor:   payment.Amount,
		TransactionID: payment.ID,
	})
	if err == nil {
		h.logEvent(result.Payment.MerchantID, payment.ID, opensearch.EventLog{
			TenantID:    result.TenantID,
			InvoiceID:   result.InvoiceID,
			AmountMinor: payment.Amount,
			Outcome:     opensearch.OutcomeRecorded,
		})
		return
	}

	logger.Error("CRM invoice update failed after successful payment", err, logger.LogContext{
		TenantID: result.TenantID,
		Fields:   map[string]any{"charge_id": payment.ID, "invoice_id": result.InvoiceID},
	})

	update := reconcile.FailedUpdate{
		ChargeID:    payment.ID,
		TenantID:    result.TenantID,
		InvoiceID:   result.InvoiceID,
		AmountMinor: payment.Amount,
		Reason:      err.Error(),
	}

	if recErr := h.failed.Record(ctx, update); recErr != nil {
		logger.Error("could not persist failed update record", recErr, logger.LogContext{
			TenantID: result.TenantID,
			Fields:   map[string]any{"charge_id": payment.ID},
		})
	}
	h.failed.Notify(ctx, update)

	h.logEvent(result.Payment.MerchantID, payment.ID, opensearch.EventLog{
		TenantID:    result.TenantID,
		InvoiceID:   result.InvoiceID,
		AmountMinor: payment.Amount,
		Outcome:     opensearch.OutcomeRecordFailed,
		Error:       err.Error(),
	})
}

func (h *WebhookHandler) logEvent(merchantID, chargeID string, event opensearch.EventLog) {
	if h.events == nil {
		return
	}

	event.MerchantID = merchantID
	event.ChargeID = chargeID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.events.LogEvent(ctx, event); err != nil {
		logger.Warn("event log shipping failed", logger.LogContext{
			Fields: map[string]any{"charge_id": chargeID, "error": err.Error()},
		})
	}
}
