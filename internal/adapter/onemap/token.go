// Package onemap implements OneMap authentication and address search.
package onemap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/couchcryptid/hdb-property-etl/internal/adapter/apiclient"
	"github.com/couchcryptid/hdb-property-etl/internal/config"
	"github.com/couchcryptid/hdb-property-etl/internal/domain"
)

const tokenPath = "/api/auth/post/getToken"

// TokenProvider exchanges account credentials for a bearer token.
// Every call is a round-trip; callers hold on to the token they get.
type TokenProvider struct {
	api     *apiclient.Client
	baseURL string
	creds   config.Credentials
	logger  *slog.Logger
}

// NewTokenProvider creates a TokenProvider against baseURL
// (e.g. https://www.onemap.gov.sg).
func NewTokenProvider(api *apiclient.Client, baseURL string, creds config.Credentials, logger *slog.Logger) *TokenProvider {
	return &TokenProvider{api: api, baseURL: baseURL, creds: creds, logger: logger}
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Token fetches a new access token. Missing credentials fail with
// *domain.ConfigurationError before any request is made.
func (p *TokenProvider) Token(ctx context.Context) (domain.Token, error) {
	if err := p.creds.Validate(); err != nil {
		return domain.Token{}, err
	}

	body, err := p.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		URL:    p.baseURL + tokenPath,
		Body:   tokenRequest{Email: p.creds.Email, Password: p.creds.Password},
	})
	if err != nil {
		return domain.Token{}, fmt.Errorf("get onemap token: %w", err)
	}

	access := gjson.GetBytes(body, "access_token").String()
	if access == "" {
		return domain.Token{}, errors.New("get onemap token: response has no access_token")
	}

	// expiry_timestamp arrives as a unix-seconds string; Int parses either form.
	tok := domain.Token{AccessToken: access}
	if exp := gjson.GetBytes(body, "expiry_timestamp").Int(); exp > 0 {
		tok.ExpiresAt = time.Unix(exp, 0).UTC()
	}
	p.logger.Info("onemap token acquired", "expires_at", tok.ExpiresAt)
	return tok, nil
}
