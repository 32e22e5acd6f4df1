package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mstgnz/cloverbridge/infra/config"
	"github.com/mstgnz/cloverbridge/infra/kv"
)

// APIKeyRecord is stored under api_key_{key}. No TTL; rotation happens by
// re-running setup, which issues a fresh key.
type APIKeyRecord struct {
	TenantID  string    `json:"tenantId"`
	CreatedAt time.Time `json:"createdAt"`
}

// MerchantMapping links a processor merchant id to the CRM tenant its
// webhook notifications belong to.
type MerchantMapping struct {
	TenantID  string    `json:"locationId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Keys manages API key and merchant-to-tenant mappings.
type Keys struct {
	store kv.Store
	now   func() time.Time
}

// NewKeys creates a key mapping store.
func NewKeys(store kv.Store) *Keys {
	return &Keys{store: store, now: time.Now}
}

// IssueAPIKey generates an opaque key for a tenant and stores the mapping.
// Earlier keys for the tenant stay valid until their entries are removed.
func (k *Keys) IssueAPIKey(ctx context.Context, tenantID string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("api key requires a tenant id")
	}

	key := strings.ReplaceAll(uuid.New().String(), "-", "") + config.RandomString(16)

	record := APIKeyRecord{TenantID: tenantID, CreatedAt: k.now()}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal api key record: %w", err)
	}

	if err := k.store.Set(ctx, keyAPIKey+key, data, 0); err != nil {
		return "", fmt.Errorf("failed to store api key: %w", err)
	}

	return key, nil
}

// VerifyAPIKey resolves an API key to its tenant. Returns kv.ErrNotFound
// for unknown keys.
func (k *Keys) VerifyAPIKey(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", kv.ErrNotFound
	}

	data, err := k.store.Get(ctx, keyAPIKey+key)
	if err != nil {
		return "", err
	}

	var record APIKeyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return "", fmt.Errorf("corrupt api key record: %w", err)
	}

	return record.TenantID, nil
}

// SaveMerchantMapping stores merchant_{merchantId} → tenant.
func (k *Keys) SaveMerchantMapping(ctx context.Context, merchantID, tenantID string) error {
	if merchantID == "" || tenantID == "" {
		return fmt.Errorf("merchant mapping requires merchant and tenant ids")
	}

	data, err := json.Marshal(MerchantMapping{TenantID: tenantID, CreatedAt: k.now()})
	if err != nil {
		return fmt.Errorf("failed to marshal merchant mapping: %w", err)
	}

	return k.store.Set(ctx, keyMerchant+merchantID, data, 0)
}

// ResolveMerchant maps a processor merchant id to its tenant. Returns ""
// with no error when the mapping is absent: an unknown merchant is still
// processed, with matching limited to the tenant-independent index.
func (k *Keys) ResolveMerchant(ctx context.Context, merchantID string) (string, error) {
	data, err := k.store.Get(ctx, keyMerchant+merchantID)
	if err != nil {
		if err == kv.ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve merchant: %w", err)
	}

	var mapping MerchantMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return "", fmt.Errorf("corrupt merchant mapping: %w", err)
	}

	return mapping.TenantID, nil
}
