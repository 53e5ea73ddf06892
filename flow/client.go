package flow

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"nativeauth/transport"
)

// ErrSessionExpired reports that the journey API rejected the hosted
// session id; the overall login flow must be canceled.
var ErrSessionExpired = errors.New("hosted flow session expired")

// Client talks to the hosted journey API on behalf of one session id.
type Client struct {
	transport *transport.Client
	issuer    string
	sessionID string
	logger    *slog.Logger
}

// NewClient constructs a journey API client bound to a session id.
func NewClient(tr *transport.Client, issuer, sessionID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: tr,
		issuer:    strings.TrimSuffix(issuer, "/"),
		sessionID: sessionID,
		logger:    logger,
	}
}

// Init fetches the first screen of the journey. The init call carries
// an empty JSON object, never a null body.
func (c *Client) Init(ctx context.Context) (*Screen, error) {
	return c.post(ctx, c.issuer+"/flow/api/v1/init", map[string]any{})
}

// SubmitForm posts form values and returns the next screen. formID may
// contain slashes for nested action namespaces; each path segment is
// escaped individually.
func (c *Client) SubmitForm(ctx context.Context, formID string, body map[string]any) (*Screen, error) {
	if body == nil {
		body = map[string]any{}
	}
	return c.post(ctx, c.issuer+"/flow/api/v1/form/"+escapeFormID(formID), body)
}

// post applies the journey status contract: 200 and 400 both carry a
// Screen body (400 is a validation round, not a failure), 403 means
// the session id is dead, anything else is a hard HTTP failure.
func (c *Client) post(ctx context.Context, rawURL string, body map[string]any) (*Screen, error) {
	resp, err := c.transport.PostJSON(ctx, rawURL, c.sessionID, body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusBadRequest:
		screen := new(Screen)
		if err := transport.DecodeJSON(resp, screen); err != nil {
			return nil, err
		}
		return screen, nil
	case resp.StatusCode == http.StatusForbidden:
		transport.Drain(resp)
		return nil, ErrSessionExpired
	default:
		transport.Drain(resp)
		return nil, &transport.HTTPError{StatusCode: resp.StatusCode}
	}
}

func escapeFormID(formID string) string {
	segments := strings.Split(formID, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
