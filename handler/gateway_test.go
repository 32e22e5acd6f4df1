package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mstgnz/cloverbridge/infra/kv"
	"github.com/mstgnz/cloverbridge/provider/clover"
)

type mockKeys struct {
	verifyFunc func(ctx context.Context, key string) (string, error)
}

func (m *mockKeys) VerifyAPIKey(ctx context.Context, key string) (string, error) {
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, key)
	}
	if key == "valid-key" {
		return "loc1", nil
	}
	return "", kv.ErrNotFound
}

type mockTxns struct {
	resolveFunc func(ctx context.Context, crmTransactionID string) (string, error)
	hasFunc     func(ctx context.Context, chargeID string) bool
}

func (m *mockTxns) ResolveCharge(ctx context.Context, crmTransactionID string) (string, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, crmTransactionID)
	}
	return "", kv.ErrNotFound
}

func (m *mockTxns) HasCharge(ctx context.Context, chargeID string) bool {
	if m.hasFunc != nil {
		return m.hasFunc(ctx, chargeID)
	}
	return false
}

type mockRefunder struct {
	refundFunc func(ctx context.Context, chargeID string, amount *float64) (*clover.Refund, error)
}

func (m *mockRefunder) RefundCharge(ctx context.Context, chargeID string, amount *float64) (*clover.Refund, error) {
	return m.refundFunc(ctx, chargeID, amount)
}

func postQuery(t *testing.T, h *QueryHandler, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(data))
	w := httptest.NewRecorder()
	h.HandleQuery(w, req)
	return w
}

func TestQueryMissingAPIKey(t *testing.T) {
	h := NewQueryHandler(&mockKeys{}, &mockTxns{}, nil)

	w := postQuery(t, h, map[string]any{"type": "verify", "chargeId": "CH1"})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestQueryInvalidAPIKey(t *testing.T) {
	h := NewQueryHandler(&mockKeys{}, &mockTxns{}, nil)

	w := postQuery(t, h, map[string]any{"type": "verify", "apiKey": "wrong", "chargeId": "CH1"})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestQueryVerifyKnownCharge(t *testing.T) {
	h := NewQueryHandler(&mockKeys{}, &mockTxns{hasFunc: func(ctx context.Context, chargeID string) bool {
		return chargeID == "CH1"
	}}, nil)

	w := postQuery(t, h, map[string]any{"type": "verify", "apiKey": "valid-key", "chargeId": "CH1"})

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decodeAck(t, w)
	if body["success"] != true {
		t.Errorf("expected success body, got %v", body)
	}
}

func TestQueryVerifyUnknownChargeTrustsProcessor(t *testing.T) {
	h := NewQueryHandler(&mockKeys{}, &mockTxns{}, nil)

	w := postQuery(t, h, map[string]any{"type": "verify", "apiKey": "valid-key", "chargeId": "CH_unknown"})

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decodeAck(t, w)
	if body["success"] != true {
		t.Errorf("record absence must still verify, got %v", body)
	}
}

func TestQueryVerifyMissingChargeID(t *testing.T) {
	h := NewQueryHandler(&mockKeys{}, &mockTxns{}, nil)

	w := postQuery(t, h, map[string]any{"type": "verify", "apiKey": "valid-key"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	body := decodeAck(t, w)
	if body["failed"] != true {
		t.Errorf("expected failure body, got %v", body)
	}
}

func TestQueryRefundUnknownTransaction(t *testing.T) {
	h := NewQueryHandler(&mockKeys{}, &mockTxns{}, &mockRefunder{
		refundFunc: func(ctx context.Context, chargeID string, amount *float64) (*clover.Refund, error) {
			t.Fatal("refunder must not be called for unknown transaction")
			return nil, nil
		},
	})

	w := postQuery(t, h, map[string]any{"type": "refund", "apiKey": "valid-key", "transactionId": "ghl_missing"})

	if w.Code != http.StatusOK {
		t.Errorf("business-logic failure must stay 200, got %d", w.Code)
	}
	body := decodeAck(t, w)
	if body["failed"] != true || body["message"] != "Transaction not found" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestQueryRefundSuccess(t *testing.T) {
	var gotAmount *float64
	h := NewQueryHandler(&mockKeys{},
		&mockTxns{resolveFunc: func(ctx context.Context, crmTransactionID string) (string, error) {
			return "CH1", nil
		}},
		&mockRefunder{refundFunc: func(ctx context.Context, chargeID string, amount *float64) (*clover.Refund, error) {
			if chargeID != "CH1" {
				t.Errorf("expected resolved charge id, got %s", chargeID)
			}
			gotAmount = amount
			return &clover.Refund{ID: "RE1", Status: "succeeded"}, nil
		}})

	w := postQuery(t, h, map[string]any{"type": "refund", "apiKey": "valid-key", "transactionId": "ghl_1", "amount": 5.0})

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decodeAck(t, w)
	if body["success"] != true {
		t.Errorf("unexpected body: %v", body)
	}
	if gotAmount == nil || *gotAmount != 5.0 {
		t.Errorf("partial amount not propagated: %v", gotAmount)
	}
}

func TestQueryRefundProcessorFailure(t *testing.T) {
	h := NewQueryHandler(&mockKeys{},
		&mockTxns{resolveFunc: func(ctx context.Context, crmTransactionID string) (string, error) {
			return "CH1", nil
		}},
		&mockRefunder{refundFunc: func(ctx context.Context, chargeID string, amount *float64) (*clover.Refund, error) {
			return nil, &clover.Error{Code: clover.ErrInvalidRequest, Message: "Charge already refunded"}
		}})

	w := postQuery(t, h, map[string]any{"type": "refund", "apiKey": "valid-key", "transactionId": "ghl_1"})

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decodeAck(t, w)
	if body["failed"] != true || body["message"] != "Charge already refunded" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestQueryListPaymentMethodsEmpty(t *testing.T) {
	h := NewQueryHandler(&mockKeys{}, &mockTxns{}, nil)

	w := postQuery(t, h, map[string]any{"type": "list_payment_methods", "apiKey": "valid-key", "contactId": "c1"})

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %q", w.Body.String())
	}
}

func TestQueryChargePaymentUnsupported(t *testing.T) {
	h := NewQueryHandler(&mockKeys{}, &mockTxns{}, nil)

	w := postQuery(t, h, map[string]any{"type": "charge_payment", "apiKey": "valid-key", "paymentMethodId": "pm1"})

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decodeAck(t, w)
	if body["failed"] != true {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestQueryUnknownType(t *testing.T) {
	h := NewQueryHandler(&mockKeys{}, &mockTxns{}, nil)

	w := postQuery(t, h, map[string]any{"type": "subscription_create", "apiKey": "valid-key"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
