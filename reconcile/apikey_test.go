package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/cloverbridge/infra/kv"
)

func newTestKeys(t *testing.T) *Keys {
	t.Helper()

	store := kv.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewKeys(store)
}

func TestIssueAndVerifyAPIKey(t *testing.T) {
	keys := newTestKeys(t)
	ctx := context.Background()

	key, err := keys.IssueAPIKey(ctx, "loc1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(key), 32)

	tenantID, err := keys.VerifyAPIKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "loc1", tenantID)
}

func TestVerifyAPIKeyUnknown(t *testing.T) {
	keys := newTestKeys(t)

	_, err := keys.VerifyAPIKey(context.Background(), "bogus")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	_, err = keys.VerifyAPIKey(context.Background(), "")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestIssueAPIKeyUnique(t *testing.T) {
	keys := newTestKeys(t)
	ctx := context.Background()

	k1, err := keys.IssueAPIKey(ctx, "loc1")
	require.NoError(t, err)
	k2, err := keys.IssueAPIKey(ctx, "loc1")
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestMerchantMapping(t *testing.T) {
	keys := newTestKeys(t)
	ctx := context.Background()

	require.NoError(t, keys.SaveMerchantMapping(ctx, "M1", "loc1"))

	tenantID, err := keys.ResolveMerchant(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, "loc1", tenantID)
}

func TestResolveMerchantAbsent(t *testing.T) {
	keys := newTestKeys(t)

	// Unknown merchant is not an error: matching proceeds without a
	// tenant.
	tenantID, err := keys.ResolveMerchant(context.Background(), "M_unknown")
	require.NoError(t, err)
	assert.Equal(t, "", tenantID)
}
