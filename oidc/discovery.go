package oidc

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
)

// Endpoints names the provider URLs the SDK talks to.
type Endpoints struct {
	Authorization string
	Token         string
	Revocation    string
	EndSession    string
}

// DefaultEndpoints returns the provider's fixed endpoint layout used
// when discovery is disabled.
func DefaultEndpoints(issuer string) Endpoints {
	base := strings.TrimSuffix(issuer, "/")
	return Endpoints{
		Authorization: base + "/oauth2/auth",
		Token:         base + "/oauth2/token",
		Revocation:    base + "/oauth2/revoke",
		EndSession:    base + "/oauth2/sessions/logout",
	}
}

// Discover resolves the endpoint set from the issuer's
// /.well-known/openid-configuration document. Fields the provider
// omits fall back to the fixed layout.
func Discover(ctx context.Context, issuer string, hc *http.Client) (Endpoints, error) {
	if hc != nil {
		ctx = gooidc.ClientContext(ctx, hc)
	}

	provider, err := gooidc.NewProvider(ctx, strings.TrimSuffix(issuer, "/"))
	if err != nil {
		return Endpoints{}, fmt.Errorf("discover provider: %w", err)
	}

	var doc struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&doc); err != nil {
		return Endpoints{}, fmt.Errorf("parse discovery document: %w", err)
	}

	eps := DefaultEndpoints(issuer)
	endpoint := provider.Endpoint()
	if endpoint.AuthURL != "" {
		eps.Authorization = endpoint.AuthURL
	}
	if endpoint.TokenURL != "" {
		eps.Token = endpoint.TokenURL
	}
	if doc.RevocationEndpoint != "" {
		eps.Revocation = doc.RevocationEndpoint
	}
	if doc.EndSessionEndpoint != "" {
		eps.EndSession = doc.EndSessionEndpoint
	}
	return eps, nil
}
