package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mstgnz/cloverbridge/infra/logger"
	"github.com/mstgnz/cloverbridge/infra/response"
	"github.com/mstgnz/cloverbridge/provider/clover"
	"github.com/mstgnz/cloverbridge/reconcile"
)

// Charger creates charges against the processor.
type Charger interface {
	CreateCharge(ctx context.Context, req clover.ChargeRequest) (*clover.Charge, error)
}

// TransactionSaver persists charge records for later verify/refund lookup.
type TransactionSaver interface {
	Save(ctx context.Context, record reconcile.TransactionRecord) error
}

// PaymentHandler processes direct card charges initiated by the hosted
// payment form.
type PaymentHandler struct {
	keys     APIKeyVerifier
	charger  Charger
	txns     TransactionSaver
	validate *validator.Validate
}

// NewPaymentHandler creates the payment processing handler.
func NewPaymentHandler(keys APIKeyVerifier, charger Charger, txns TransactionSaver, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{keys: keys, charger: charger, txns: txns, validate: validate}
}

// ProcessPaymentRequest charges a tokenized card. Amount is in decimal
// major units; TransactionID is the CRM-side transaction the charge
// belongs to.
type ProcessPaymentRequest struct {
	APIKey        string  `json:"apiKey" validate:"required"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Source        string  `json:"source" validate:"required"`
	Currency      string  `json:"currency,omitempty"`
	Description   string  `json:"description,omitempty"`
	TransactionID string  `json:"transactionId,omitempty"`
	InvoiceID     string  `json:"invoiceId,omitempty"`
}

// ProcessPayment handles POST /payments/process. Business-logic outcomes
// use the same body-level protocol as the gateway: HTTP 200 with
// success/failed flags.
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req ProcessPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = response.WriteRaw(w, http.StatusBadRequest, map[string]any{
			"failed": true,
			"error":  "Invalid request body",
		})
		return
	}

	if err := h.validate.Struct(req); err != nil {
		_ = response.WriteRaw(w, http.StatusBadRequest, map[string]any{
			"failed": true,
			"error":  err.Error(),
		})
		return
	}

	ctx := r.Context()

	tenantID, err := h.keys.VerifyAPIKey(ctx, req.APIKey)
	if err != nil {
		_ = response.WriteRaw(w, http.StatusUnauthorized, map[string]any{
			"error": "Unauthorized - invalid apiKey",
		})
		return
	}

	charge, err := h.charger.CreateCharge(ctx, clover.ChargeRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Source:      req.Source,
		Description: req.Description,
		Metadata: map[string]string{
			"locationId": tenantID,
			"invoiceId":  req.InvoiceID,
		},
	})
	if err != nil {
		message := "Charge failed"
		if cerr, ok := clover.AsError(err); ok {
			message = cerr.Message
		}

		logger.Error("charge rejected by processor", err, logger.LogContext{
			TenantID: tenantID,
			Fields:   map[string]any{"amount": req.Amount},
		})
		_ = response.WriteRaw(w, http.StatusOK, map[string]any{
			"failed":  true,
			"message": message,
		})
		return
	}

	record := reconcile.TransactionRecord{
		ChargeID:         charge.ID,
		CRMTransactionID: req.TransactionID,
		TenantID:         tenantID,
		AmountMinor:      charge.Amount,
		Currency:         charge.Currency,
		Status:           charge.Status,
	}
	if err := h.txns.Save(ctx, record); err != nil {
		// Money moved; the record is for verify/refund lookups. Log and
		// still report the charge.
		logger.Error("failed to persist transaction record", err, logger.LogContext{
			TenantID: tenantID,
			Fields:   map[string]any{"charge_id": charge.ID},
		})
	}

	logger.Info("charge created", logger.LogContext{
		TenantID: tenantID,
		Fields:   map[string]any{"charge_id": charge.ID, "amount_minor": charge.Amount},
	})

	_ = response.WriteRaw(w, http.StatusOK, map[string]any{
		"success":  true,
		"chargeId": charge.ID,
		"chargeSnapshot": map[string]any{
			"id":       charge.ID,
			"amount":   charge.Amount,
			"currency": charge.Currency,
			"status":   charge.Status,
		},
	})
}
