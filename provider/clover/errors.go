package clover

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mstgnz/cloverbridge/provider"
)

// ErrorCode classifies failures returned by the processor into a closed set
// that callers can branch on without inspecting HTTP details.
type ErrorCode string

const (
	ErrConfig          ErrorCode = "config_error"
	ErrInvalidRequest  ErrorCode = "invalid_request"
	ErrAuthentication  ErrorCode = "authentication_error"
	ErrCardDeclined    ErrorCode = "card_declined"
	ErrInvalidEndpoint ErrorCode = "invalid_endpoint"
	ErrInvalidMerchant ErrorCode = "invalid_merchant"
	ErrService         ErrorCode = "service_error"
	ErrNetwork         ErrorCode = "network_error"
	ErrServer          ErrorCode = "server_error"
)

// Error is the categorized processor error. StatusCode is zero when no
// response arrived at all.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("clover: %s: %s", e.Code, e.Message)
}

// IsTransient reports whether retrying the same call later could succeed.
// Used by the webhook ingestor to decide between acknowledging and asking
// the sender to redeliver.
func (e *Error) IsTransient() bool {
	return e.Code == ErrNetwork || e.Code == ErrService
}

// AsError extracts a categorized *Error from any error chain.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// apiErrorBody is the error envelope the ecommerce API returns.
type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// categorize maps an HTTP response from the processor into the closed
// taxonomy. notFoundCode lets the caller distinguish the ecommerce surface
// (unknown path) from the merchant-scoped REST surface (unknown merchant or
// payment).
func categorize(statusCode int, body []byte, notFoundCode ErrorCode) *Error {
	message := extractMessage(body)
	if message == "" {
		message = http.StatusText(statusCode)
	}

	cerr := &Error{Message: message, StatusCode: statusCode}

	switch {
	case statusCode == http.StatusBadRequest:
		cerr.Code = ErrInvalidRequest
	case statusCode == http.StatusUnauthorized:
		cerr.Code = ErrAuthentication
	case statusCode == http.StatusPaymentRequired:
		cerr.Code = ErrCardDeclined
	case statusCode == http.StatusNotFound:
		cerr.Code = notFoundCode
	case statusCode == http.StatusBadGateway || statusCode == http.StatusServiceUnavailable:
		cerr.Code = ErrService
	default:
		cerr.Code = ErrServer
	}

	return cerr
}

func extractMessage(body []byte) string {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return parsed.Message
}

// wrapTransport converts transport-level failures (timeouts, DNS, refused
// connections) where no HTTP response arrived.
func wrapTransport(err error) *Error {
	return &Error{
		Code:    ErrNetwork,
		Message: err.Error(),
	}
}

// fromHTTPError turns the shared client's status error into a categorized one.
func fromHTTPError(err error, notFoundCode ErrorCode) *Error {
	var statusErr *provider.ErrHTTPStatus
	if errors.As(err, &statusErr) {
		return categorize(statusErr.StatusCode, statusErr.Body, notFoundCode)
	}
	return wrapTransport(err)
}
