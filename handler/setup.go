package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mstgnz/cloverbridge/infra/logger"
	"github.com/mstgnz/cloverbridge/infra/response"
)

// KeyIssuer issues tenant API keys and merchant mappings.
type KeyIssuer interface {
	IssueAPIKey(ctx context.Context, tenantID string) (string, error)
	SaveMerchantMapping(ctx context.Context, merchantID, tenantID string) error
}

// SetupHandler provisions a tenant: issues the gateway API key and wires
// the processor merchant id to the tenant for webhook resolution.
type SetupHandler struct {
	keys     KeyIssuer
	validate *validator.Validate
}

// NewSetupHandler creates the setup handler.
func NewSetupHandler(keys KeyIssuer, validate *validator.Validate) *SetupHandler {
	return &SetupHandler{keys: keys, validate: validate}
}

// SetupRequest provisions or re-provisions a tenant. Re-running setup
// rotates the API key.
type SetupRequest struct {
	LocationID string `json:"locationId" validate:"required"`
	MerchantID string `json:"merchantId,omitempty"`
}

// Setup handles POST /setup.
func (h *SetupHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	ctx := r.Context()

	apiKey, err := h.keys.IssueAPIKey(ctx, req.LocationID)
	if err != nil {
		logger.Error("failed to issue api key", err, logger.LogContext{TenantID: req.LocationID})
		response.Error(w, http.StatusInternalServerError, "Failed to issue API key", err)
		return
	}

	if req.MerchantID != "" {
		if err := h.keys.SaveMerchantMapping(ctx, req.MerchantID, req.LocationID); err != nil {
			logger.Error("failed to store merchant mapping", err, logger.LogContext{
				TenantID: req.LocationID,
				Fields:   map[string]any{"merchant_id": req.MerchantID},
			})
			response.Error(w, http.StatusInternalServerError, "Failed to store merchant mapping", err)
			return
		}
	}

	logger.Info("tenant provisioned", logger.LogContext{
		TenantID: req.LocationID,
		Fields:   map[string]any{"merchant_id": req.MerchantID},
	})

	response.Success(w, http.StatusOK, "Setup complete", map[string]any{
		"locationId": req.LocationID,
		"apiKey":     apiKey,
	})
}
