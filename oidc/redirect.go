package oidc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"nativeauth/transport"
)

// RedirectHandler resolves an authorization or callback URL by
// following the server's redirect chain until it terminates at the
// application's registered redirect URI, without ever handing a
// custom-scheme URL to the network layer.
type RedirectHandler struct {
	client      *http.Client
	redirectURI string
	logger      *slog.Logger
}

// NewRedirectHandler derives a handler from the shared transport. The
// derived client follows intermediate redirects (consent and session
// pages) but stops before requesting anything that matches redirectURI
// or leaves the http(s) scheme space.
func NewRedirectHandler(tr *transport.Client, redirectURI string, logger *slog.Logger) *RedirectHandler {
	if logger == nil {
		logger = slog.Default()
	}

	base := tr.HTTPClient()
	derived := *base
	derived.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("stopped after 10 redirects")
		}
		if isTerminalTarget(req.URL, redirectURI) {
			return http.ErrUseLastResponse
		}
		return nil
	}

	return &RedirectHandler{client: &derived, redirectURI: redirectURI, logger: logger}
}

// Resolve fetches rawURL and returns the query parameters of the
// terminal URL: either the Location of a redirect pointing at the
// registered redirect URI, or the URL of the final non-redirect
// response.
func (h *RedirectHandler) Resolve(ctx context.Context, rawURL string) (url.Values, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve redirect: %w", err)
	}
	defer transport.Drain(resp)

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		if loc == "" {
			return nil, fmt.Errorf("redirect response without location header")
		}
		target, err := url.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("parse location header: %w", err)
		}
		h.logger.Debug("terminal redirect reached", "path", target.Path)
		return target.Query(), nil
	}

	h.logger.Debug("terminal response reached",
		"status", resp.StatusCode,
		"path", resp.Request.URL.Path,
	)
	return resp.Request.URL.Query(), nil
}

// isTerminalTarget reports whether the next hop belongs to the app
// rather than the authorization server. Custom-scheme URIs cannot be
// fetched, so any non-http(s) target is terminal as well.
func isTerminalTarget(u *url.URL, redirectURI string) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return true
	}
	return strings.HasPrefix(u.String(), redirectURI)
}
