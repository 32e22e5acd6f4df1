package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mstgnz/cloverbridge/infra/kv"
	"github.com/mstgnz/cloverbridge/infra/logger"
)

// TrackedInvoice is an invoice registered as awaiting payment. AmountMinor
// is integer minor units; Reference is the normalized invoice number, empty
// when the invoice has none.
type TrackedInvoice struct {
	TenantID      string    `json:"tenantId"`
	InvoiceID     string    `json:"invoiceId"`
	AmountMinor   int64     `json:"amountMinor"`
	Reference     string    `json:"reference,omitempty"`
	CustomerName  string    `json:"customerName,omitempty"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Tracker registers invoices awaiting payment and resolves them for the
// matcher. Each lookup consumes its entry atomically and drops the invoice's
// sibling index entries, so an invoice matches at most one payment no matter
// which index resolved it.
type Tracker struct {
	store kv.Store
	now   func() time.Time
}

// NewTracker creates a tracker over the given store.
func NewTracker(store kv.Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// Track registers an invoice under its amount index and, when a reference
// is present, under both reference indexes. Re-tracking the same amount or
// reference overwrites the earlier entry; last write wins.
func (t *Tracker) Track(ctx context.Context, inv TrackedInvoice) error {
	if inv.TenantID == "" || inv.InvoiceID == "" {
		return fmt.Errorf("tracked invoice requires tenant and invoice ids")
	}

	inv.Reference = NormalizeReference(inv.Reference)
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = t.now()
	}

	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal tracked invoice: %w", err)
	}

	amountKey := fmt.Sprintf("%s%s_%d", keyPendingAmount, inv.TenantID, inv.AmountMinor)
	if err := t.store.Set(ctx, amountKey, data, amountIndexTTL); err != nil {
		return fmt.Errorf("failed to store amount index: %w", err)
	}

	if inv.Reference != "" {
		refKey := keyPendingReference + inv.TenantID + "_" + inv.Reference
		if err := t.store.Set(ctx, refKey, data, referenceIndexTTL); err != nil {
			return fmt.Errorf("failed to store reference index: %w", err)
		}

		locKey := keyInvoiceLocation + inv.Reference
		if err := t.store.Set(ctx, locKey, data, referenceIndexTTL); err != nil {
			return fmt.Errorf("failed to store invoice location index: %w", err)
		}
	}

	logger.Debug("tracked invoice", logger.LogContext{
		TenantID: inv.TenantID,
		Fields: map[string]any{
			"invoice_id":   inv.InvoiceID,
			"amount_minor": inv.AmountMinor,
			"reference":    inv.Reference,
		},
	})

	return nil
}

// LookupByReference resolves and consumes a tracked invoice by normalized
// reference. The tenant-scoped index is tried first; the tenant-independent
// index covers notifications whose merchant mapping is unknown. Returns
// (nil, nil) when nothing is tracked under the reference.
func (t *Tracker) LookupByReference(ctx context.Context, tenantID, ref string) (*TrackedInvoice, error) {
	ref = NormalizeReference(ref)
	if ref == "" {
		return nil, nil
	}

	if tenantID != "" {
		key := keyPendingReference + tenantID + "_" + ref
		inv, err := t.consume(ctx, key)
		if err != nil {
			return nil, err
		}
		if inv != nil {
			t.releaseSiblings(ctx, inv, key)
			return inv, nil
		}
	}

	key := keyInvoiceLocation + ref
	inv, err := t.consume(ctx, key)
	if err != nil || inv == nil {
		return nil, err
	}

	t.releaseSiblings(ctx, inv, key)
	return inv, nil
}

// LookupByAmount resolves and consumes a tracked invoice by exact minor-unit
// amount. Entries older than the freshness window are treated as absent:
// amount collisions get likelier with age, so a stale index must not claim
// a payment. A stale entry is left in place (its reference indexes may still
// resolve a correctly-annotated payment) and ages out by TTL. Returns
// (nil, nil) on miss or stale entry.
func (t *Tracker) LookupByAmount(ctx context.Context, tenantID string, amountMinor int64) (*TrackedInvoice, error) {
	if tenantID == "" {
		return nil, nil
	}

	key := fmt.Sprintf("%s%s_%d", keyPendingAmount, tenantID, amountMinor)

	// Peek before consuming so a stale lookup does not erase the entry.
	data, err := t.store.Get(ctx, key)
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read amount index %s: %w", key, err)
	}

	var peeked TrackedInvoice
	if err := json.Unmarshal(data, &peeked); err != nil {
		return nil, fmt.Errorf("corrupt tracked invoice at %s: %w", key, err)
	}

	if t.now().Sub(peeked.CreatedAt) > amountFreshness {
		logger.Debug("amount index entry outside freshness window", logger.LogContext{
			TenantID: tenantID,
			Fields:   map[string]any{"invoice_id": peeked.InvoiceID, "amount_minor": amountMinor},
		})
		return nil, nil
	}

	// Consume atomically; a concurrent matcher winning the race is a miss.
	inv, err := t.consume(ctx, key)
	if err != nil || inv == nil {
		return nil, err
	}

	t.releaseSiblings(ctx, inv, key)
	return inv, nil
}

// releaseSiblings drops the remaining index entries pointing at a consumed
// invoice, so a redelivered notification cannot match the same invoice again
// through a different index. Deletion is best effort; a leftover from a
// failed delete ages out by TTL.
func (t *Tracker) releaseSiblings(ctx context.Context, inv *TrackedInvoice, consumedKey string) {
	keys := []string{fmt.Sprintf("%s%s_%d", keyPendingAmount, inv.TenantID, inv.AmountMinor)}
	if inv.Reference != "" {
		keys = append(keys,
			keyPendingReference+inv.TenantID+"_"+inv.Reference,
			keyInvoiceLocation+inv.Reference,
		)
	}

	for _, key := range keys {
		if key == consumedKey {
			continue
		}
		if err := t.store.Delete(ctx, key); err != nil {
			logger.Warn("failed to release invoice index entry", logger.LogContext{
				TenantID: inv.TenantID,
				Fields:   map[string]any{"key": key, "invoice_id": inv.InvoiceID},
			})
		}
	}
}

// consume atomically reads and deletes a tracked-invoice entry. A key miss
// is not an error; store failures are.
func (t *Tracker) consume(ctx context.Context, key string) (*TrackedInvoice, error) {
	data, err := t.store.GetDelete(ctx, key)
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to consume tracked invoice %s: %w", key, err)
	}

	var inv TrackedInvoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("corrupt tracked invoice at %s: %w", key, err)
	}

	return &inv, nil
}
