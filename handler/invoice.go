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

// InvoiceTracker registers invoices awaiting payment.
type InvoiceTracker interface {
	Track(ctx context.Context, inv reconcile.TrackedInvoice) error
}

// InvoiceHandler exposes invoice registration to the form-rendering side.
type InvoiceHandler struct {
	tracker  InvoiceTracker
	validate *validator.Validate
}

// NewInvoiceHandler creates the invoice registration handler.
func NewInvoiceHandler(tracker InvoiceTracker, validate *validator.Validate) *InvoiceHandler {
	return &InvoiceHandler{tracker: tracker, validate: validate}
}

// TrackInvoiceRequest registers an invoice as awaiting payment. Amount is
// in decimal major units; conversion to minor units happens here.
type TrackInvoiceRequest struct {
	LocationID    string  `json:"locationId" validate:"required"`
	InvoiceID     string  `json:"invoiceId" validate:"required"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	InvoiceNumber string  `json:"invoiceNumber,omitempty"`
	CustomerName  string  `json:"customerName,omitempty"`
	CustomerEmail string  `json:"customerEmail,omitempty" validate:"omitempty,email"`
}

// TrackInvoice handles POST /invoices/track.
func (h *InvoiceHandler) TrackInvoice(w http.ResponseWriter, r *http.Request) {
	var req TrackInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	inv := reconcile.TrackedInvoice{
		TenantID:      req.LocationID,
		InvoiceID:     req.InvoiceID,
		AmountMinor:   clover.MinorUnits(req.Amount),
		Reference:     req.InvoiceNumber,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
	}

	if err := h.tracker.Track(r.Context(), inv); err != nil {
		logger.Error("failed to track invoice", err, logger.LogContext{
			TenantID: req.LocationID,
			Fields:   map[string]any{"invoice_id": req.InvoiceID},
		})
		response.Error(w, http.StatusInternalServerError, "Failed to track invoice", err)
		return
	}

	response.Success(w, http.StatusOK, "Invoice tracked", map[string]any{
		"invoiceId":   req.InvoiceID,
		"amountMinor": inv.AmountMinor,
	})
}
