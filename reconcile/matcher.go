package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mstgnz/cloverbridge/infra/kv"
	"github.com/mstgnz/cloverbridge/infra/logger"
)

// Matched-by values in a MatchResult.
const (
	MatchedByReference = "reference"
	MatchedByAmount    = "amount"
)

// PaymentNotification is the fully-fetched processor payment the webhook
// ingestor hands to the matcher. TenantID is empty when the merchant has no
// stored mapping; reference matching then falls back to the
// tenant-independent index and amount matching is skipped.
type PaymentNotification struct {
	ChargeID    string    `json:"chargeId"`
	MerchantID  string    `json:"merchantId"`
	TenantID    string    `json:"tenantId,omitempty"`
	AmountMinor int64     `json:"amountMinor"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	CardBrand   string    `json:"cardBrand,omitempty"`
	CardLast4   string    `json:"cardLast4,omitempty"`
}

// MatchResult identifies the invoice a payment resolved to.
type MatchResult struct {
	TenantID  string
	InvoiceID string
	MatchedBy string
	Invoice   *TrackedInvoice
	Payment   PaymentNotification
}

// UnmatchedPayment is the persisted record of a notification no tracked
// invoice claimed, kept for ops reconciliation.
type UnmatchedPayment struct {
	Payment    PaymentNotification `json:"payment"`
	MerchantID string              `json:"merchantId"`
	StoredAt   time.Time           `json:"storedAt"`
}

// Matcher resolves payment notifications to tracked invoices.
type Matcher struct {
	tracker *Tracker
	store   kv.Store
	now     func() time.Time
}

// NewMatcher creates a matcher sharing the tracker's backing store.
func NewMatcher(tracker *Tracker, store kv.Store) *Matcher {
	return &Matcher{tracker: tracker, store: store, now: time.Now}
}

// Match resolves a notification to at most one tracked invoice: reference
// extraction first, exact-amount fallback second. A miss is a valid outcome
// and returns (nil, nil) after persisting the notification as unmatched;
// only backing-store failures return an error, signalling the ingestor to
// let the sender redeliver.
func (m *Matcher) Match(ctx context.Context, payment PaymentNotification) (*MatchResult, error) {
	if payment.ChargeID == "" {
		return nil, fmt.Errorf("payment notification requires a charge id")
	}

	ref := ExtractReference(payment.Note)
	if ref != "" {
		inv, err := m.tracker.LookupByReference(ctx, payment.TenantID, ref)
		if err != nil {
			return nil, err
		}
		if inv != nil {
			return m.matched(inv, MatchedByReference, payment), nil
		}
	}

	inv, err := m.tracker.LookupByAmount(ctx, payment.TenantID, payment.AmountMinor)
	if err != nil {
		return nil, err
	}
	if inv != nil {
		return m.matched(inv, MatchedByAmount, payment), nil
	}

	if err := m.storeUnmatched(ctx, payment); err != nil {
		return nil, err
	}

	logger.Info("payment did not match any tracked invoice", logger.LogContext{
		TenantID: payment.TenantID,
		Fields: map[string]any{
			"charge_id":    payment.ChargeID,
			"merchant_id":  payment.MerchantID,
			"amount_minor": payment.AmountMinor,
		},
	})

	return nil, nil
}

func (m *Matcher) matched(inv *TrackedInvoice, matchedBy string, payment PaymentNotification) *MatchResult {
	logger.Info("payment matched tracked invoice", logger.LogContext{
		TenantID: inv.TenantID,
		Fields: map[string]any{
			"charge_id":  payment.ChargeID,
			"invoice_id": inv.InvoiceID,
			"matched_by": matchedBy,
		},
	})

	return &MatchResult{
		TenantID:  inv.TenantID,
		InvoiceID: inv.InvoiceID,
		MatchedBy: matchedBy,
		Invoice:   inv,
		Payment:   payment,
	}
}

func (m *Matcher) storeUnmatched(ctx context.Context, payment PaymentNotification) error {
	record := UnmatchedPayment{
		Payment:    payment,
		MerchantID: payment.MerchantID,
		StoredAt:   m.now(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal unmatched payment: %w", err)
	}

	if err := m.store.Set(ctx, keyUnmatchedPayment+payment.ChargeID, data, unmatchedTTL); err != nil {
		return fmt.Errorf("failed to store unmatched payment: %w", err)
	}

	return nil
}

// GetUnmatchedPayment returns the stored unmatched record for a charge id,
// or kv.ErrNotFound.
func (m *Matcher) GetUnmatchedPayment(ctx context.Context, chargeID string) (*UnmatchedPayment, error) {
	data, err := m.store.Get(ctx, keyUnmatchedPayment+chargeID)
	if err != nil {
		return nil, err
	}

	var record UnmatchedPayment
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("corrupt unmatched payment record: %w", err)
	}

	return &record, nil
}
