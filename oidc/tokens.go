package oidc

import (
	"context"
	"log/slog"
	"net/url"

	"nativeauth/transport"
)

// TokenResponse matches OAuth token endpoint payloads.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token"`
	Scope        string `json:"scope,omitempty"`
}

// ExchangeParams carries the authorization_code grant parameters.
type ExchangeParams struct {
	Code         string
	CodeVerifier string
	RedirectURI  string
	ClientID     string
}

// RefreshParams carries the refresh_token grant parameters.
type RefreshParams struct {
	RefreshToken string
	ClientID     string
}

// TokenClient talks to the token and revocation endpoints. Requests are
// public-client form posts; failures carry the response status as a
// *transport.HTTPError.
type TokenClient struct {
	transport *transport.Client
	logger    *slog.Logger
}

// NewTokenClient constructs a TokenClient.
func NewTokenClient(tr *transport.Client, logger *slog.Logger) *TokenClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenClient{transport: tr, logger: logger}
}

// Exchange swaps an authorization code for tokens.
func (c *TokenClient) Exchange(ctx context.Context, endpoint string, p ExchangeParams) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", p.Code)
	form.Set("code_verifier", p.CodeVerifier)
	form.Set("redirect_uri", p.RedirectURI)
	form.Set("client_id", p.ClientID)

	c.logger.Debug("exchanging authorization code", "endpoint", endpoint)
	return c.post(ctx, endpoint, form)
}

// Refresh obtains a new token set from a refresh token.
func (c *TokenClient) Refresh(ctx context.Context, endpoint string, p RefreshParams) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", p.RefreshToken)
	form.Set("client_id", p.ClientID)

	c.logger.Debug("refreshing tokens", "endpoint", endpoint)
	return c.post(ctx, endpoint, form)
}

// Revoke invalidates a token at the revocation endpoint. Callers treat
// failures as best-effort.
func (c *TokenClient) Revoke(ctx context.Context, endpoint, token, typeHint, clientID string) error {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", typeHint)
	form.Set("client_id", clientID)

	resp, err := c.transport.PostForm(ctx, endpoint, form)
	if err != nil {
		return err
	}
	defer transport.Drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &transport.HTTPError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *TokenClient) post(ctx context.Context, endpoint string, form url.Values) (*TokenResponse, error) {
	resp, err := c.transport.PostForm(ctx, endpoint, form)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		transport.Drain(resp)
		return nil, &transport.HTTPError{StatusCode: resp.StatusCode}
	}

	tr := new(TokenResponse)
	if err := transport.DecodeJSON(resp, tr); err != nil {
		return nil, err
	}
	return tr, nil
}
