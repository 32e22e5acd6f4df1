package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/cloverbridge/infra/kv"
)

func newTestTransactions(t *testing.T) *Transactions {
	t.Helper()

	store := kv.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewTransactions(store)
}

func TestTransactionSaveAndResolve(t *testing.T) {
	txns := newTestTransactions(t)
	ctx := context.Background()

	err := txns.Save(ctx, TransactionRecord{
		ChargeID:         "CH_1",
		CRMTransactionID: "ghl_txn_1",
		TenantID:         "loc1",
		AmountMinor:      2500,
		Status:           "succeeded",
	})
	require.NoError(t, err)

	record, err := txns.Get(ctx, "CH_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), record.AmountMinor)
	assert.False(t, record.CreatedAt.IsZero())

	chargeID, err := txns.ResolveCharge(ctx, "ghl_txn_1")
	require.NoError(t, err)
	assert.Equal(t, "CH_1", chargeID)

	assert.True(t, txns.HasCharge(ctx, "CH_1"))
	assert.False(t, txns.HasCharge(ctx, "CH_unknown"))
}

func TestResolveChargeUnknown(t *testing.T) {
	txns := newTestTransactions(t)

	_, err := txns.ResolveCharge(context.Background(), "ghl_txn_missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestTransactionSaveWithoutCRMID(t *testing.T) {
	txns := newTestTransactions(t)
	ctx := context.Background()

	err := txns.Save(ctx, TransactionRecord{ChargeID: "CH_2", TenantID: "loc1"})
	require.NoError(t, err)

	assert.True(t, txns.HasCharge(ctx, "CH_2"))
}

func TestTransactionSaveRequiresChargeID(t *testing.T) {
	txns := newTestTransactions(t)

	err := txns.Save(context.Background(), TransactionRecord{TenantID: "loc1"})
	assert.Error(t, err)
}
