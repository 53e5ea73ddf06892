// Package transport provides the HTTP plumbing shared by the OIDC and
// journey-flow clients: JSON requests, bearer authorization, cookie
// handling, and structured request logging.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const contentTypeJSON = "application/json"

// HTTPError reports a non-success status code from any endpoint.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error with status code %d", e.StatusCode)
}

// Client wraps an *http.Client with the request conventions the SDK
// endpoints expect. The zero value is not usable; construct with New.
type Client struct {
	http           *http.Client
	logger         *slog.Logger
	acceptLanguage string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying *http.Client. The client's
// transport is still wrapped for logging; its redirect policy and
// timeouts are preserved.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAcceptLanguage sets the Accept-Language header sent on journey
// API calls.
func WithAcceptLanguage(lang string) Option {
	return func(c *Client) { c.acceptLanguage = lang }
}

// New constructs a Client. A cookie jar is installed so that the
// authorization server's session cookies survive the redirect chain.
func New(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{logger: logger}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		jar, _ := cookiejar.New(nil)
		c.http = &http.Client{Jar: jar}
	}
	if c.http.Transport == nil {
		c.http.Transport = http.DefaultTransport
	}
	if _, ok := c.http.Transport.(*loggingTransport); !ok {
		c.http.Transport = &loggingTransport{next: c.http.Transport, logger: logger}
	}

	return c
}

// HTTPClient exposes the underlying client so callers can derive
// variants with a different redirect policy.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Get issues a GET request with the supplied Accept header.
func (c *Client) Get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.http.Do(req)
}

// GetNoRedirect issues a GET request without following redirects, so
// the caller can inspect the Location header of a 3xx response.
func (c *Client) GetNoRedirect(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	noFollow := *c.http
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return noFollow.Do(req)
}

// PostJSON issues a POST with a JSON body. bearer, when non-empty, is
// sent as an Authorization header; body may be nil.
func (c *Client) PostJSON(ctx context.Context, rawURL, bearer string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("Content-Type", contentTypeJSON)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if c.acceptLanguage != "" {
		req.Header.Set("Accept-Language", c.acceptLanguage)
	}

	return c.http.Do(req)
}

// PostForm issues an application/x-www-form-urlencoded POST.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.http.Do(req)
}

// DecodeJSON reads and decodes a JSON response body, closing it.
func DecodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Drain discards and closes a response body so the connection can be
// reused.
func Drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// loggingTransport emits structured logs for every request, including
// redirect targets and the server's X-Event-ID correlation header.
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.logger.Debug("http request", "method", req.Method, "path", req.URL.Path)

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.logger.Debug("http request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"error", err,
		)
		return nil, err
	}

	attrs := []any{
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if isRedirect(resp.StatusCode) {
		if loc := resp.Header.Get("Location"); loc != "" {
			attrs = append(attrs, "location", redactQuery(loc))
		}
	}
	if eventID := resp.Header.Get("X-Event-ID"); eventID != "" {
		attrs = append(attrs, "event_id", eventID)
	}
	t.logger.Debug("http response", attrs...)

	return resp, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// redactQuery strips query parameters from logged redirect targets;
// they may carry authorization codes.
func redactQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
