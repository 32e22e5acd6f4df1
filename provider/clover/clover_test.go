package clover

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mstgnz/cloverbridge/provider"
)

func newTestClover(ecommerceURL, restURL string) *Clover {
	headers := map[string]string{
		"Authorization": "Bearer test-token",
		"Accept":        "application/json",
	}
	return &Clover{
		apiToken: "test-token",
		ecommerce: provider.NewHTTPClient(&provider.HTTPClientConfig{
			BaseURL:        ecommerceURL,
			DefaultHeaders: headers,
		}),
		rest: provider.NewHTTPClient(&provider.HTTPClientConfig{
			BaseURL:        restURL,
			DefaultHeaders: headers,
		}),
	}
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New("", false)
	if err == nil {
		t.Fatal("expected error for missing token")
	}
	cerr, ok := AsError(err)
	if !ok || cerr.Code != ErrConfig {
		t.Errorf("expected config_error, got %v", err)
	}
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		amount float64
		want   int64
	}{
		{12.34, 1234},
		{10.00, 1000},
		{0.01, 1},
		{19.99, 1999},
		{99.99, 9999},
		{0, 0},
	}

	for _, c := range cases {
		if got := MinorUnits(c.amount); got != c.want {
			t.Errorf("MinorUnits(%v) = %d, want %d", c.amount, got, c.want)
		}
	}
}

func TestCreateChargeSuccess(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/charges" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer auth")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "CH_123",
			"amount":   2500,
			"currency": "usd",
			"status":   "succeeded",
			"paid":     true,
		})
	}))
	defer server.Close()

	c := newTestClover(server.URL, server.URL)

	charge, err := c.CreateCharge(context.Background(), ChargeRequest{
		Amount: 25.00,
		Source: "clv_token",
	})
	if err != nil {
		t.Fatalf("CreateCharge failed: %v", err)
	}

	if charge.ID != "CH_123" || charge.Amount != 2500 || !charge.Paid {
		t.Errorf("unexpected charge: %+v", charge)
	}

	if gotBody["amount"].(float64) != 2500 {
		t.Errorf("expected minor-unit amount 2500, got %v", gotBody["amount"])
	}
	if gotBody["currency"] != "usd" {
		t.Errorf("expected default currency usd, got %v", gotBody["currency"])
	}
	if gotBody["capture"] != true {
		t.Errorf("expected capture=true")
	}
}

func TestCreateChargeRequiresSource(t *testing.T) {
	c := newTestClover("http://unused", "http://unused")

	_, err := c.CreateCharge(context.Background(), ChargeRequest{Amount: 10})
	cerr, ok := AsError(err)
	if !ok || cerr.Code != ErrInvalidRequest {
		t.Errorf("expected invalid_request, got %v", err)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorCode
	}{
		{http.StatusBadRequest, ErrInvalidRequest},
		{http.StatusUnauthorized, ErrAuthentication},
		{http.StatusPaymentRequired, ErrCardDeclined},
		{http.StatusNotFound, ErrInvalidEndpoint},
		{http.StatusBadGateway, ErrService},
		{http.StatusServiceUnavailable, ErrService},
		{http.StatusInternalServerError, ErrServer},
		{http.StatusTeapot, ErrServer},
	}

	for _, c := range cases {
		status := c.status
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
		}))

		clv := newTestClover(server.URL, server.URL)
		_, err := clv.GetCharge(context.Background(), "CH_1")
		server.Close()

		cerr, ok := AsError(err)
		if !ok {
			t.Fatalf("status %d: expected categorized error, got %v", status, err)
		}
		if cerr.Code != c.want {
			t.Errorf("status %d: got %s, want %s", status, cerr.Code, c.want)
		}
		if cerr.Message != "nope" {
			t.Errorf("status %d: expected message from body, got %q", status, cerr.Message)
		}
	}
}

func TestRESTNotFoundIsInvalidMerchant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"merchant not found"}`))
	}))
	defer server.Close()

	c := newTestClover(server.URL, server.URL)

	_, err := c.GetPayment(context.Background(), "M1", "PAY1")
	cerr, ok := AsError(err)
	if !ok || cerr.Code != ErrInvalidMerchant {
		t.Errorf("expected invalid_merchant, got %v", err)
	}
}

func TestNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	c := newTestClover(server.URL, server.URL)

	_, err := c.GetPayment(context.Background(), "M1", "PAY1")
	cerr, ok := AsError(err)
	if !ok || cerr.Code != ErrNetwork {
		t.Fatalf("expected network_error, got %v", err)
	}
	if !cerr.IsTransient() {
		t.Error("network_error should be transient")
	}
}

func TestGetPaymentParsesNote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/merchants/M1/payments/PAY1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "PAY1",
			"amount": 2500,
			"note": "Paid INV-100 thanks",
			"createdTime": 1720000000000,
			"cardTransaction": {"cardType": "VISA", "last4": "4242"}
		}`))
	}))
	defer server.Close()

	c := newTestClover(server.URL, server.URL)

	payment, err := c.GetPayment(context.Background(), "M1", "PAY1")
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}

	if payment.Note != "Paid INV-100 thanks" {
		t.Errorf("unexpected note: %q", payment.Note)
	}
	if payment.Amount != 2500 || payment.CardTransaction.Last4 != "4242" {
		t.Errorf("unexpected payment: %+v", payment)
	}
}

func TestRefundChargePartialAmount(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/charges/CH_1/refunds" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "RE_1", "amount": 500, "charge": "CH_1", "status": "succeeded",
		})
	}))
	defer server.Close()

	c := newTestClover(server.URL, server.URL)

	amount := 5.00
	refund, err := c.RefundCharge(context.Background(), "CH_1", &amount)
	if err != nil {
		t.Fatalf("RefundCharge failed: %v", err)
	}

	if refund.ID != "RE_1" || refund.Amount != 500 {
		t.Errorf("unexpected refund: %+v", refund)
	}
	if gotBody["amount"].(float64) != 500 {
		t.Errorf("expected partial amount 500, got %v", gotBody["amount"])
	}
}
