// Package ghl implements the outbound CRM collaborators: the per-tenant
// OAuth token store and the payment recording client.
package ghl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mstgnz/cloverbridge/infra/kv"
	"github.com/mstgnz/cloverbridge/provider"
)

const (
	apiBaseURL    = "https://services.leadconnectorhq.com"
	apiVersion    = "2021-07-28"
	tokenEndpoint = "/oauth/token"

	tokenKeyPrefix = "ghl_location_"
)

// TokenRecord is the stored OAuth token pair for a tenant. ExpiresAt is
// unix milliseconds, matching what the installation flow writes.
type TokenRecord struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
	LocationID   string `json:"locationId,omitempty"`
	CompanyID    string `json:"companyId,omitempty"`
}

// TokenStore resolves a usable CRM access token per tenant, transparently
// refreshing an expired one and persisting the rotated pair.
type TokenStore struct {
	store        kv.Store
	client       *provider.HTTPClient
	clientID     string
	clientSecret string
	now          func() time.Time
}

// NewTokenStore creates a token store backed by the given kv store.
func NewTokenStore(store kv.Store, clientID, clientSecret string) *TokenStore {
	return &TokenStore{
		store:        store,
		clientID:     clientID,
		clientSecret: clientSecret,
		client: provider.NewHTTPClient(&provider.HTTPClientConfig{
			BaseURL: apiBaseURL,
			Timeout: 20 * time.Second,
		}),
		now: time.Now,
	}
}

// GetAccessToken returns a valid access token for the tenant. A token past
// its stored expiry is refreshed before being returned.
func (ts *TokenStore) GetAccessToken(ctx context.Context, tenantID string) (string, error) {
	record, err := ts.getRecord(ctx, tenantID)
	if err != nil {
		return "", err
	}

	if ts.now().UnixMilli() >= record.ExpiresAt {
		refreshed, err := ts.refresh(ctx, tenantID, record)
		if err != nil {
			return "", fmt.Errorf("failed to refresh token for tenant %s: %w", tenantID, err)
		}
		return refreshed.AccessToken, nil
	}

	return record.AccessToken, nil
}

// SaveTokens stores the token pair for a tenant, replacing any prior one.
// Used by the installation callback.
func (ts *TokenStore) SaveTokens(ctx context.Context, tenantID string, record TokenRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}
	return ts.store.Set(ctx, tokenKeyPrefix+tenantID, data, 0)
}

func (ts *TokenStore) getRecord(ctx context.Context, tenantID string) (*TokenRecord, error) {
	data, err := ts.store.Get(ctx, tokenKeyPrefix+tenantID)
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, fmt.Errorf("no tokens found for tenant %s: %w", tenantID, err)
		}
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}

	var record TokenRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("corrupt token record for tenant %s: %w", tenantID, err)
	}

	return &record, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (ts *TokenStore) refresh(ctx context.Context, tenantID string, record *TokenRecord) (*TokenRecord, error) {
	resp, err := ts.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: tokenEndpoint,
		Body: map[string]string{
			"client_id":     ts.clientID,
			"client_secret": ts.clientSecret,
			"grant_type":    "refresh_token",
			"refresh_token": record.RefreshToken,
		},
	})
	if err != nil {
		return nil, err
	}

	var tokens tokenResponse
	if err := ts.client.ParseJSONResponse(resp, &tokens); err != nil {
		return nil, fmt.Errorf("unparseable token response: %w", err)
	}

	record.AccessToken = tokens.AccessToken
	record.RefreshToken = tokens.RefreshToken
	record.ExpiresAt = ts.now().Add(time.Duration(tokens.ExpiresIn) * time.Second).UnixMilli()

	if err := ts.SaveTokens(ctx, tenantID, *record); err != nil {
		return nil, err
	}

	return record, nil
}
