package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mstgnz/cloverbridge/infra/kv"
	"github.com/mstgnz/cloverbridge/infra/opensearch"
	"github.com/mstgnz/cloverbridge/infra/response"
	"github.com/mstgnz/cloverbridge/reconcile"
)

// EventSearcher defines the reconciliation event queries the ops surface
// reads from the event index.
type EventSearcher interface {
	SearchEvents(ctx context.Context, query map[string]any) ([]opensearch.EventLog, error)
	GetChargeEvents(ctx context.Context, chargeID string) ([]opensearch.EventLog, error)
}

// UnmatchedResolver looks up payments no tracked invoice claimed.
type UnmatchedResolver interface {
	GetUnmatchedPayment(ctx context.Context, chargeID string) (*reconcile.UnmatchedPayment, error)
}

// EventsHandler serves the ops surface for manual reconciliation: recent
// event history, per-charge history, and the unmatched payment backlog.
type EventsHandler struct {
	events    EventSearcher
	unmatched UnmatchedResolver
}

// NewEventsHandler creates an events handler. events may be nil when event
// logging is disabled; the event endpoints then report the service
// unavailable, the unmatched lookup still works.
func NewEventsHandler(events EventSearcher, unmatched UnmatchedResolver) *EventsHandler {
	return &EventsHandler{events: events, unmatched: unmatched}
}

// ListEvents lists recent reconciliation events filtered by outcome, tenant
// and time range.
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		response.Error(w, http.StatusServiceUnavailable, "Event logging not available", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	hours := 24
	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		if parsed, err := strconv.Atoi(hoursStr); err == nil && parsed > 0 && parsed <= 168 { // Max 7 days
			hours = parsed
		}
	}

	must := []map[string]any{
		{"range": map[string]any{
			"timestamp": map[string]any{"gte": fmt.Sprintf("now-%dh", hours)},
		}},
	}

	if outcome := r.URL.Query().Get("outcome"); outcome != "" {
		must = append(must, map[string]any{"match": map[string]any{"outcome": outcome}})
	}
	if tenantID := r.URL.Query().Get("tenantId"); tenantID != "" {
		must = append(must, map[string]any{"match": map[string]any{"tenant_id": tenantID}})
	}

	events, err := h.events.SearchEvents(ctx, map[string]any{
		"bool": map[string]any{"must": must},
	})
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to search events", err)
		return
	}

	responseData := map[string]any{
		"count":  len(events),
		"hours":  hours,
		"events": events,
	}

	response.Success(w, http.StatusOK, "Events retrieved successfully", responseData)
}

// GetChargeEvents retrieves the event history for one processor charge.
func (h *EventsHandler) GetChargeEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		response.Error(w, http.StatusServiceUnavailable, "Event logging not available", nil)
		return
	}

	chargeID := chi.URLParam(r, "chargeID")
	if chargeID == "" {
		response.Error(w, http.StatusBadRequest, "chargeID parameter is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	events, err := h.events.GetChargeEvents(ctx, chargeID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to retrieve events", err)
		return
	}

	responseData := map[string]any{
		"chargeId": chargeID,
		"count":    len(events),
		"events":   events,
	}

	response.Success(w, http.StatusOK, "Events retrieved successfully", responseData)
}

// GetUnmatched returns the stored record for a payment no tracked invoice
// claimed, so an operator can reconcile it by hand.
func (h *EventsHandler) GetUnmatched(w http.ResponseWriter, r *http.Request) {
	chargeID := chi.URLParam(r, "chargeID")
	if chargeID == "" {
		response.Error(w, http.StatusBadRequest, "chargeID parameter is required", nil)
		return
	}

	record, err := h.unmatched.GetUnmatchedPayment(r.Context(), chargeID)
	if err != nil {
		if err == kv.ErrNotFound {
			response.Error(w, http.StatusNotFound, "No unmatched payment for charge", nil)
			return
		}
		response.Error(w, http.StatusInternalServerError, "Failed to retrieve unmatched payment", err)
		return
	}

	responseData := map[string]any{
		"chargeId": chargeID,
		"payment":  record,
	}

	response.Success(w, http.StatusOK, "Unmatched payment retrieved successfully", responseData)
}
