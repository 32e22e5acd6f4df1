package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mstgnz/cloverbridge/infra/kv"
)

// TransactionRecord links a processor charge to the CRM transaction that
// initiated it, so the gateway can resolve refund requests that arrive with
// only the CRM-side id.
type TransactionRecord struct {
	ChargeID         string    `json:"chargeId"`
	CRMTransactionID string    `json:"ghlTransactionId,omitempty"`
	TenantID         string    `json:"tenantId"`
	AmountMinor      int64     `json:"amountMinor"`
	Currency         string    `json:"currency,omitempty"`
	Status           string    `json:"status,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Transactions stores charge records under both the processor charge id and
// the CRM transaction id.
type Transactions struct {
	store kv.Store
	now   func() time.Time
}

// NewTransactions creates a transaction record store.
func NewTransactions(store kv.Store) *Transactions {
	return &Transactions{store: store, now: time.Now}
}

// Save writes the record under transaction_{chargeId} and, when a CRM
// transaction id is present, under ghl_transaction_{crmTxnId}.
func (t *Transactions) Save(ctx context.Context, record TransactionRecord) error {
	if record.ChargeID == "" {
		return fmt.Errorf("transaction record requires a charge id")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = t.now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction record: %w", err)
	}

	if err := t.store.Set(ctx, keyTransaction+record.ChargeID, data, transactionTTL); err != nil {
		return fmt.Errorf("failed to store transaction record: %w", err)
	}

	if record.CRMTransactionID != "" {
		if err := t.store.Set(ctx, keyCRMTransaction+record.CRMTransactionID, data, transactionTTL); err != nil {
			return fmt.Errorf("failed to store transaction mapping: %w", err)
		}
	}

	return nil
}

// Get returns the record stored under a processor charge id.
func (t *Transactions) Get(ctx context.Context, chargeID string) (*TransactionRecord, error) {
	return t.read(ctx, keyTransaction+chargeID)
}

// ResolveCharge maps a CRM transaction id to the processor charge id.
// Returns kv.ErrNotFound when no mapping exists; the gateway turns that
// into its "Transaction not found" failure body.
func (t *Transactions) ResolveCharge(ctx context.Context, crmTransactionID string) (string, error) {
	record, err := t.read(ctx, keyCRMTransaction+crmTransactionID)
	if err != nil {
		return "", err
	}
	return record.ChargeID, nil
}

// HasCharge reports whether a record exists for the charge id. A store
// failure reports false.
func (t *Transactions) HasCharge(ctx context.Context, chargeID string) bool {
	_, err := t.store.Get(ctx, keyTransaction+chargeID)
	return err == nil
}

func (t *Transactions) read(ctx context.Context, key string) (*TransactionRecord, error) {
	data, err := t.store.Get(ctx, key)
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read transaction record: %w", err)
	}

	var record TransactionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("corrupt transaction record: %w", err)
	}

	return &record, nil
}
