package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/mstgnz/cloverbridge/provider/clover"
	"github.com/mstgnz/cloverbridge/reconcile"
)

type mockCharger struct {
	chargeFunc func(ctx context.Context, req clover.ChargeRequest) (*clover.Charge, error)
}

func (m *mockCharger) CreateCharge(ctx context.Context, req clover.ChargeRequest) (*clover.Charge, error) {
	return m.chargeFunc(ctx, req)
}

type mockSaver struct {
	saved []reconcile.TransactionRecord
}

func (m *mockSaver) Save(ctx context.Context, record reconcile.TransactionRecord) error {
	m.saved = append(m.saved, record)
	return nil
}

func postPayment(t *testing.T, h *PaymentHandler, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/payments/process", bytes.NewReader(data))
	w := httptest.NewRecorder()
	h.ProcessPayment(w, req)
	return w
}

func TestProcessPaymentSuccess(t *testing.T) {
	saver := &mockSaver{}
	h := NewPaymentHandler(&mockKeys{},
		&mockCharger{chargeFunc: func(ctx context.Context, req clover.ChargeRequest) (*clover.Charge, error) {
			if req.Amount != 25.00 || req.Source != "clv_token" {
				t.Errorf("unexpected charge request: %+v", req)
			}
			return &clover.Charge{ID: "CH_1", Amount: 2500, Currency: "usd", Status: "succeeded", Paid: true}, nil
		}},
		saver, validator.New())

	w := postPayment(t, h, map[string]any{
		"apiKey":        "valid-key",
		"amount":        25.00,
		"source":        "clv_token",
		"transactionId": "ghl_txn_1",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeAck(t, w)
	if body["success"] != true || body["chargeId"] != "CH_1" {
		t.Errorf("unexpected body: %v", body)
	}

	if len(saver.saved) != 1 {
		t.Fatalf("expected one saved transaction, got %d", len(saver.saved))
	}
	record := saver.saved[0]
	if record.ChargeID != "CH_1" || record.CRMTransactionID != "ghl_txn_1" || record.TenantID != "loc1" {
		t.Errorf("unexpected record: %+v", record)
	}
}

func TestProcessPaymentDeclined(t *testing.T) {
	saver := &mockSaver{}
	h := NewPaymentHandler(&mockKeys{},
		&mockCharger{chargeFunc: func(ctx context.Context, req clover.ChargeRequest) (*clover.Charge, error) {
			return nil, &clover.Error{Code: clover.ErrCardDeclined, Message: "Your card was declined"}
		}},
		saver, validator.New())

	w := postPayment(t, h, map[string]any{
		"apiKey": "valid-key",
		"amount": 25.00,
		"source": "clv_token",
	})

	// Declined card is a business-logic outcome, not a transport error.
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decodeAck(t, w)
	if body["failed"] != true || body["message"] != "Your card was declined" {
		t.Errorf("unexpected body: %v", body)
	}
	if len(saver.saved) != 0 {
		t.Errorf("declined charge must not be recorded")
	}
}

func TestProcessPaymentUnauthorized(t *testing.T) {
	h := NewPaymentHandler(&mockKeys{}, &mockCharger{}, &mockSaver{}, validator.New())

	w := postPayment(t, h, map[string]any{
		"apiKey": "wrong",
		"amount": 25.00,
		"source": "clv_token",
	})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestProcessPaymentValidation(t *testing.T) {
	h := NewPaymentHandler(&mockKeys{}, &mockCharger{}, &mockSaver{}, validator.New())

	w := postPayment(t, h, map[string]any{"apiKey": "valid-key", "amount": 25.00})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing source, got %d", w.Code)
	}
}
