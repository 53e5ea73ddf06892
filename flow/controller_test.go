package flow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"nativeauth/transport"
)

// scriptedFlow serves a queue of canned journey API responses and
// records submitted bodies.
type scriptedFlow struct {
	mu        sync.Mutex
	responses []scriptedResponse
	bodies    []map[string]any
	paths     []string
}

type scriptedResponse struct {
	status int
	body   string
}

func (s *scriptedFlow) push(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scriptedResponse{status: status, body: body})
}

func (s *scriptedFlow) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		if len(s.responses) == 0 {
			s.mu.Unlock()
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
			return
		}
		next := s.responses[0]
		s.responses = s.responses[1:]
		s.paths = append(s.paths, r.URL.Path)
		if strings.HasPrefix(r.URL.Path, "/flow/api/v1/form/") {
			var body map[string]any
			if err := json.Unmarshal(raw, &body); err == nil {
				s.bodies = append(s.bodies, body)
			}
		}
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(next.status)
		io.WriteString(w, next.body)
	}
}

type fakeDelegate struct {
	mu           sync.Mutex
	continueURIs []string
	cancelErrs   []error
}

func (d *fakeDelegate) ContinueFlow(ctx context.Context, uri string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.continueURIs = append(d.continueURIs, uri)
}

func (d *fakeDelegate) CancelFlow(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelErrs = append(d.cancelErrs, err)
}

func newTestController(t *testing.T, script *scriptedFlow) (*Controller, *fakeDelegate, *[]string) {
	t.Helper()

	srv := httptest.NewServer(script.handler(t))
	t.Cleanup(srv.Close)

	delegate := &fakeDelegate{}
	var fallbackURIs []string
	fallback := func(uri string) { fallbackURIs = append(fallbackURIs, uri) }

	client := NewClient(transport.New(discardLogger()), srv.URL, "sess-1", discardLogger())
	return NewController(delegate, client, fallback, discardLogger()), delegate, &fallbackURIs
}

const loginScreen = `{
	"screen": "login",
	"hostedUrl": "https://idp.example.com/hosted",
	"forms": [{"id": "login", "widgets": [
		{"type": "input", "id": "identifier", "label": "Email", "value": "seeded@example.com"},
		{"type": "password", "id": "password", "label": "Password"},
		{"type": "submit", "id": "submit", "label": "Continue", "render": {"type": "button"}}
	]}]
}`

func TestInitializeAppliesFormsScreen(t *testing.T) {
	script := &scriptedFlow{}
	script.push(http.StatusOK, loginScreen)
	c, _, _ := newTestController(t, script)

	var rendered []*Screen
	c.OnRender(func(s *Screen) { rendered = append(rendered, s) })

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	screen := c.Screen()
	if screen == nil || screen.Screen != "login" {
		t.Fatalf("screen = %+v", screen)
	}
	if len(rendered) != 1 {
		t.Fatalf("render notifications = %d, want 1", len(rendered))
	}
	if c.Processing() {
		t.Fatal("processing should clear after a screen update")
	}

	// The cache is seeded from the widget's declared value.
	cell := c.StateForWidget("login", "identifier", nil)
	if got := cell.Get(); got != "seeded@example.com" {
		t.Fatalf("seeded value = %v", got)
	}
}

func TestFinalizeScreenForwardsToDelegate(t *testing.T) {
	script := &scriptedFlow{}
	script.push(http.StatusOK, loginScreen)
	script.push(http.StatusOK, `{"finalizeUrl": "https://idp.example.com/finalize?x=1"}`)
	c, delegate, _ := newTestController(t, script)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.Submit(context.Background(), "login")

	if len(delegate.continueURIs) != 1 || delegate.continueURIs[0] != "https://idp.example.com/finalize?x=1" {
		t.Fatalf("continue calls = %v", delegate.continueURIs)
	}
	// The finalize response never replaces the rendered screen.
	if got := c.Screen(); got == nil || got.Screen != "login" {
		t.Fatalf("screen after finalize = %+v", got)
	}
}

func TestHostedOnlyScreenTriggersFallback(t *testing.T) {
	script := &scriptedFlow{}
	script.push(http.StatusOK, `{"hostedUrl": "https://idp.example.com/hosted-step"}`)
	c, _, fallbackURIs := newTestController(t, script)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if len(*fallbackURIs) != 1 || (*fallbackURIs)[0] != "https://idp.example.com/hosted-step" {
		t.Fatalf("fallback calls = %v", *fallbackURIs)
	}
	if !c.IsRedirectExpected() {
		t.Fatal("expected redirect-expected after fallback handoff")
	}
}

func TestMessageOnlyResponseRefreshesInPlace(t *testing.T) {
	script := &scriptedFlow{}
	script.push(http.StatusOK, loginScreen)
	script.push(http.StatusBadRequest, `{"messages": {"login": {"identifier": {"type": "error", "text": "Unknown account"}}}}`)
	c, _, _ := newTestController(t, script)

	var renders, refreshes int
	c.OnRender(func(*Screen) { renders++ })
	c.OnRefresh(func(*Screen) { refreshes++ })

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	// Simulate a user edit before the failed submit.
	c.StateForWidget("login", "identifier", nil).Set("edited@example.com")
	c.Submit(context.Background(), "login")

	if renders != 1 {
		t.Fatalf("renders = %d, want 1 (message-only response must not re-render)", renders)
	}
	if refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", refreshes)
	}

	screen := c.Screen()
	if screen == nil || screen.Screen != "login" {
		t.Fatalf("screen was replaced: %+v", screen)
	}
	text, ok := c.Messages().ErrorMessageForWidget("login", "identifier")
	if !ok || text != "Unknown account" {
		t.Fatalf("message = %q, %v", text, ok)
	}
	if got := c.StateForWidget("login", "identifier", nil).Get(); got != "edited@example.com" {
		t.Fatalf("user edit was lost: %v", got)
	}
}

func TestIdenticalMessagesDoNotRefresh(t *testing.T) {
	messageBody := `{"messages": {"login": {"identifier": {"type": "error", "text": "Unknown account"}}}}`
	script := &scriptedFlow{}
	script.push(http.StatusOK, loginScreen)
	script.push(http.StatusBadRequest, messageBody)
	script.push(http.StatusBadRequest, messageBody)
	c, _, _ := newTestController(t, script)

	var refreshes int
	c.OnRefresh(func(*Screen) { refreshes++ })

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.Submit(context.Background(), "login")
	c.Submit(context.Background(), "login")

	if refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1 (an unchanged message set is no delta)", refreshes)
	}
	text, ok := c.Messages().ErrorMessageForWidget("login", "identifier")
	if !ok || text != "Unknown account" {
		t.Fatalf("message = %q, %v", text, ok)
	}
}

func TestFormsResponseRebuildsValueCache(t *testing.T) {
	script := &scriptedFlow{}
	script.push(http.StatusOK, loginScreen)
	script.push(http.StatusOK, `{"forms": [{"id": "mfa", "widgets": [
		{"type": "passcode", "id": "otp", "label": "Code"}
	]}]}`)
	c, _, _ := newTestController(t, script)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	stale := c.StateForWidget("login", "identifier", nil)
	stale.Set("edited@example.com")

	c.Submit(context.Background(), "login")

	// A full replacement discards the old cache: a new cell is created
	// with the default, not the stale edit.
	fresh := c.StateForWidget("login", "identifier", nil)
	if fresh == stale {
		t.Fatal("expected a fresh cell after a full forms replacement")
	}
	if got := fresh.Get(); got != nil {
		t.Fatalf("fresh cell value = %v, want nil", got)
	}
}

func TestSubmitUnfoldsDottedKeys(t *testing.T) {
	script := &scriptedFlow{}
	script.push(http.StatusOK, loginScreen)
	script.push(http.StatusOK, loginScreen)
	c, _, _ := newTestController(t, script)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	c.StateForWidget("registration", "attributes.email", nil).Set("user@example.com")
	c.StateForWidget("registration", "attributes.name.given", nil).Set("Ada")
	c.StateForWidget("registration", "consent", nil).Set(true)
	c.StateForWidget("registration", "skipped", nil) // stays nil, must be omitted

	c.Submit(context.Background(), "registration")

	script.mu.Lock()
	defer script.mu.Unlock()
	if len(script.bodies) != 1 {
		t.Fatalf("submitted bodies = %d", len(script.bodies))
	}
	body := script.bodies[0]

	attrs, ok := body["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes not nested: %v", body)
	}
	if attrs["email"] != "user@example.com" {
		t.Errorf("attributes.email = %v", attrs["email"])
	}
	name, ok := attrs["name"].(map[string]any)
	if !ok || name["given"] != "Ada" {
		t.Errorf("attributes.name = %v", attrs["name"])
	}
	if body["consent"] != true {
		t.Errorf("consent = %v", body["consent"])
	}
	if _, present := body["skipped"]; present {
		t.Error("nil-valued widget leaked into the body")
	}
}

func TestSessionExpiryCancelsFlow(t *testing.T) {
	script := &scriptedFlow{}
	script.push(http.StatusOK, loginScreen)
	script.push(http.StatusForbidden, ``)
	c, delegate, _ := newTestController(t, script)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.Submit(context.Background(), "login")

	if len(delegate.cancelErrs) != 1 || !errors.Is(delegate.cancelErrs[0], ErrSessionExpired) {
		t.Fatalf("cancel calls = %v", delegate.cancelErrs)
	}
}

func TestSubmitFailureFallsBackToHostedPage(t *testing.T) {
	script := &scriptedFlow{}
	script.push(http.StatusOK, loginScreen)
	script.push(http.StatusBadGateway, ``)
	c, delegate, fallbackURIs := newTestController(t, script)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.Submit(context.Background(), "login")

	if len(*fallbackURIs) != 1 || (*fallbackURIs)[0] != "https://idp.example.com/hosted" {
		t.Fatalf("fallback calls = %v", *fallbackURIs)
	}
	if len(delegate.cancelErrs) != 0 {
		t.Fatalf("unexpected cancel: %v", delegate.cancelErrs)
	}
}

func TestStateForWidgetReturnsStableCells(t *testing.T) {
	script := &scriptedFlow{}
	c, _, _ := newTestController(t, script)

	a := c.StateForWidget("login", "identifier", "default")
	b := c.StateForWidget("login", "identifier", "other-default")
	if a != b {
		t.Fatal("expected the same cell for repeated lookups")
	}
	if got := b.Get(); got != "default" {
		t.Fatalf("second lookup overwrote the cell: %v", got)
	}

	var observed []any
	a.Watch(func(v any) { observed = append(observed, v) })
	a.Set("typed")
	if len(observed) != 1 || observed[0] != "typed" {
		t.Fatalf("watcher observations = %v", observed)
	}
}

func TestTriggerFallbackPanicsWithoutHostedURL(t *testing.T) {
	script := &scriptedFlow{}
	c, _, _ := newTestController(t, script)

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic when no hosted url exists")
		}
	}()
	c.TriggerFallback()
}
