// Package clover implements the client for the Clover processor: the
// ecommerce charge API and the merchant-scoped REST API used to fetch
// payment details for webhook notifications.
package clover

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/mstgnz/cloverbridge/provider"
)

const (
	ecommerceSandboxURL    = "https://scl-sandbox.dev.clover.com"
	ecommerceProductionURL = "https://scl.clover.com"
	restSandboxURL         = "https://sandbox.dev.clover.com"
	restProductionURL      = "https://api.clover.com"

	defaultTimeout  = 15 * time.Second
	defaultCurrency = "usd"
)

// Clover talks to both processor surfaces with a shared bearer token.
type Clover struct {
	apiToken  string
	ecommerce *provider.HTTPClient
	rest      *provider.HTTPClient
}

// New builds a Clover client. production selects the live base URLs.
func New(apiToken string, production bool) (*Clover, error) {
	if apiToken == "" {
		return nil, &Error{Code: ErrConfig, Message: "processor API token is not configured"}
	}

	ecommerceBase := ecommerceSandboxURL
	restBase := restSandboxURL
	if production {
		ecommerceBase = ecommerceProductionURL
		restBase = restProductionURL
	}

	headers := map[string]string{
		"Authorization": "Bearer " + apiToken,
		"Accept":        "application/json",
	}

	return &Clover{
		apiToken: apiToken,
		ecommerce: provider.NewHTTPClient(&provider.HTTPClientConfig{
			BaseURL:        ecommerceBase,
			Timeout:        defaultTimeout,
			DefaultHeaders: headers,
		}),
		rest: provider.NewHTTPClient(&provider.HTTPClientConfig{
			BaseURL:        restBase,
			Timeout:        defaultTimeout,
			DefaultHeaders: headers,
		}),
	}, nil
}

// ChargeRequest describes a charge in decimal major units. Source is the
// tokenized card reference produced by the processor's tokenizer.
type ChargeRequest struct {
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Source      string            `json:"source"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Charge is the processor's charge object, amounts in minor units.
type Charge struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Paid     bool   `json:"paid"`
	Refunded bool   `json:"refunded"`
	Source   struct {
		Brand string `json:"brand"`
		Last4 string `json:"last4"`
	} `json:"source"`
	Created int64 `json:"created"`
}

// Refund is the processor's refund object.
type Refund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Charge string `json:"charge"`
	Status string `json:"status"`
}

// Payment is the REST API payment object attached to a webhook
// notification. CreatedTime is unix milliseconds.
type Payment struct {
	ID              string `json:"id"`
	Amount          int64  `json:"amount"`
	Note            string `json:"note"`
	CreatedTime     int64  `json:"createdTime"`
	Result          string `json:"result"`
	CardTransaction struct {
		CardType string `json:"cardType"`
		Last4    string `json:"last4"`
	} `json:"cardTransaction"`
}

// MinorUnits converts a decimal major-unit amount to integer minor units,
// rounding to the nearest cent so 12.34 becomes 1234 rather than 1233.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreateCharge charges a tokenized card.
func (c *Clover) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if req.Source == "" {
		return nil, &Error{Code: ErrInvalidRequest, Message: "missing card source token"}
	}

	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	body := map[string]any{
		"amount":   MinorUnits(req.Amount),
		"currency": currency,
		"source":   req.Source,
		"capture":  true,
		"ecomind":  "ecom",
	}
	if req.Description != "" {
		body["description"] = req.Description
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	resp, err := c.ecommerce.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: "/v1/charges",
		Body:     body,
	})
	if err != nil {
		return nil, fromHTTPError(err, ErrInvalidEndpoint)
	}

	var charge Charge
	if err := c.ecommerce.ParseJSONResponse(resp, &charge); err != nil {
		return nil, &Error{Code: ErrServer, Message: fmt.Sprintf("unparseable charge response: %v", err)}
	}

	return &charge, nil
}

// RefundCharge refunds a charge. A nil amount refunds the full charge;
// a non-nil amount (decimal major units) refunds partially.
func (c *Clover) RefundCharge(ctx context.Context, chargeID string, amount *float64) (*Refund, error) {
	if chargeID == "" {
		return nil, &Error{Code: ErrInvalidRequest, Message: "missing charge id"}
	}

	body := map[string]any{}
	if amount != nil {
		body["amount"] = MinorUnits(*amount)
	}

	resp, err := c.ecommerce.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: fmt.Sprintf("/v1/charges/%s/refunds", chargeID),
		Body:     body,
	})
	if err != nil {
		return nil, fromHTTPError(err, ErrInvalidEndpoint)
	}

	var refund Refund
	if err := c.ecommerce.ParseJSONResponse(resp, &refund); err != nil {
		return nil, &Error{Code: ErrServer, Message: fmt.Sprintf("unparseable refund response: %v", err)}
	}

	return &refund, nil
}

// GetCharge fetches a charge by id.
func (c *Clover) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	if chargeID == "" {
		return nil, &Error{Code: ErrInvalidRequest, Message: "missing charge id"}
	}

	resp, err := c.ecommerce.SendRaw(ctx, &provider.HTTPRequest{
		Method:   http.MethodGet,
		Endpoint: fmt.Sprintf("/v1/charges/%s", chargeID),
	})
	if err != nil {
		return nil, fromHTTPError(err, ErrInvalidEndpoint)
	}

	var charge Charge
	if err := c.ecommerce.ParseJSONResponse(resp, &charge); err != nil {
		return nil, &Error{Code: ErrServer, Message: fmt.Sprintf("unparseable charge response: %v", err)}
	}

	return &charge, nil
}

// GetPayment fetches the full payment object behind a webhook notification
// from the merchant-scoped REST API. The note carried here is what the
// matcher extracts invoice references from.
func (c *Clover) GetPayment(ctx context.Context, merchantID, paymentID string) (*Payment, error) {
	if merchantID == "" || paymentID == "" {
		return nil, &Error{Code: ErrInvalidRequest, Message: "missing merchant or payment id"}
	}

	resp, err := c.rest.SendRaw(ctx, &provider.HTTPRequest{
		Method:   http.MethodGet,
		Endpoint: fmt.Sprintf("/v3/merchants/%s/payments/%s", merchantID, paymentID),
		QueryParams: map[string]string{
			"expand": "cardTransaction",
		},
	})
	if err != nil {
		return nil, fromHTTPError(err, ErrInvalidMerchant)
	}

	var payment Payment
	if err := c.rest.ParseJSONResponse(resp, &payment); err != nil {
		return nil, &Error{Code: ErrServer, Message: fmt.Sprintf("unparseable payment response: %v", err)}
	}

	return &payment, nil
}
