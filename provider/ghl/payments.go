package ghl

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/cloverbridge/provider"
)

// RecordPaymentRequest carries a matched payment to be recorded against a
// CRM invoice. AmountMinor is in integer minor units.
type RecordPaymentRequest struct {
	AmountMinor   int64
	TransactionID string
	Currency      string
	PaymentMode   string
}

// RecordPaymentResult is the CRM's acknowledgement of a recorded payment.
type RecordPaymentResult struct {
	OrderID string `json:"_id"`
	Status  string `json:"status"`
}

// Client records payments against CRM invoices. Calls are best-effort:
// failures surface to the caller, which persists them for out-of-band
// retry instead of retrying in-process.
type Client struct {
	tokens *TokenStore
	http   *provider.HTTPClient
}

// NewClient creates a CRM payment client on top of a token store.
func NewClient(tokens *TokenStore) *Client {
	return &Client{
		tokens: tokens,
		http: provider.NewHTTPClient(&provider.HTTPClientConfig{
			BaseURL: apiBaseURL,
			Timeout: 20 * time.Second,
		}),
	}
}

// RecordPayment marks the invoice paid in the CRM by creating a succeeded
// payment order referencing the processor transaction.
func (c *Client) RecordPayment(ctx context.Context, tenantID, invoiceID string, req RecordPaymentRequest) (*RecordPaymentResult, error) {
	if invoiceID == "" {
		return nil, fmt.Errorf("missing invoice id")
	}

	accessToken, err := c.tokens.GetAccessToken(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}
	paymentMode := req.PaymentMode
	if paymentMode == "" {
		paymentMode = "live"
	}

	resp, err := c.http.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: "/v2/payments/orders",
		Headers: map[string]string{
			"Authorization": "Bearer " + accessToken,
			"Version":       apiVersion,
			"Location-Id":   tenantID,
		},
		Body: map[string]any{
			"altId":                 invoiceID,
			"altType":               "invoice",
			"amount":                req.AmountMinor,
			"currency":              strings.ToLower(currency),
			"status":                "succeeded",
			"externalTransactionId": req.TransactionID,
			"transactionType":       "charge",
			"paymentMode":           paymentMode,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record payment for invoice %s: %w", invoiceID, err)
	}

	var result RecordPaymentResult
	if err := c.http.ParseJSONResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("unparseable record-payment response: %w", err)
	}

	return &result, nil
}
