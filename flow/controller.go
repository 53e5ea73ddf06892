package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FallbackHandler presents a hosted URL to the user, typically in an
// embedded or system browser. It is invoked exactly once per fallback
// trigger.
type FallbackHandler func(uri string)

// Delegate is the controller's channel back to the owning
// orchestrator: finalize URLs are forwarded to ContinueFlow, and an
// expired hosted session cancels the whole attempt.
type Delegate interface {
	ContinueFlow(ctx context.Context, uri string)
	CancelFlow(err error)
}

// Controller drives one hosted-login attempt: it holds the current
// screen, the per-widget value cache, and the fallback trigger. A new
// Controller is created per attempt and never reused.
type Controller struct {
	delegate Delegate
	client   *Client
	fallback FallbackHandler
	logger   *slog.Logger

	mu               sync.Mutex
	screen           *Screen
	messages         *Messages
	processing       bool
	forms            map[string]map[string]*Value
	redirectExpected bool

	renderWatchers  []func(*Screen)
	refreshWatchers []func(*Screen)
}

// NewController constructs a controller for one attempt. The attempt
// id only serves log correlation.
func NewController(delegate Delegate, client *Client, fallback FallbackHandler, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		delegate: delegate,
		client:   client,
		fallback: fallback,
		logger:   logger.With("attempt_id", uuid.NewString()),
		forms:    make(map[string]map[string]*Value),
	}
}

// Initialize fetches and applies the first screen.
func (c *Controller) Initialize(ctx context.Context) error {
	screen, err := c.client.Init(ctx)
	if err != nil {
		return err
	}
	c.updateScreen(ctx, screen)
	return nil
}

// Submit gathers the cached values of one form and posts them.
func (c *Controller) Submit(ctx context.Context, formID string) {
	c.mu.Lock()
	values := c.forms[formID]
	body := unfoldValues(values)
	c.mu.Unlock()

	c.SubmitBody(ctx, formID, body)
}

// SubmitBody posts an explicit body, used for body-less actions such
// as reset or resend. An expired hosted session cancels the overall
// flow; any other failure falls back to the hosted page so the user
// always has recourse.
func (c *Controller) SubmitBody(ctx context.Context, formID string, body map[string]any) {
	c.mu.Lock()
	c.processing = true
	c.mu.Unlock()

	screen, err := c.client.SubmitForm(ctx, formID, body)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			c.logger.Warn("hosted session expired during submit", "form_id", formID)
			c.delegate.CancelFlow(err)
			return
		}
		c.logger.Debug("failed to load screen", "form_id", formID, "error", err)
		c.TriggerFallback()
		return
	}

	c.updateScreen(ctx, screen)
}

// StateForWidget returns the value cell for one widget, creating it
// with the supplied default on first use. Repeated calls with the same
// keys return the same cell.
func (c *Controller) StateForWidget(formID, widgetID string, defaultValue any) *Value {
	c.mu.Lock()
	defer c.mu.Unlock()

	widgets, ok := c.forms[formID]
	if !ok {
		widgets = make(map[string]*Value)
		c.forms[formID] = widgets
	}
	cell, ok := widgets[widgetID]
	if !ok {
		cell = NewValue(defaultValue)
		widgets[widgetID] = cell
	}
	return cell
}

// Screen returns the controller's current screen, nil before the first
// forms screen arrives.
func (c *Controller) Screen() *Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// Messages returns the current message set.
func (c *Controller) Messages() *Messages {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages
}

// Processing reports whether a submission is in flight.
func (c *Controller) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processing
}

// IsRedirectExpected reports whether the attempt was handed off to the
// hosted page and awaits an external callback.
func (c *Controller) IsRedirectExpected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redirectExpected
}

// OnRender registers a callback for full screen replacements.
func (c *Controller) OnRender(fn func(*Screen)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renderWatchers = append(c.renderWatchers, fn)
}

// OnRefresh registers a callback for message-only refreshes, where the
// screen shape is unchanged but its messages were replaced.
func (c *Controller) OnRefresh(fn func(*Screen)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshWatchers = append(c.refreshWatchers, fn)
}

// updateScreen applies a server response in strict priority order:
// finalize, hosted-page handoff, full forms replacement, message-only
// refresh.
func (c *Controller) updateScreen(ctx context.Context, screen *Screen) {
	c.mu.Lock()
	c.processing = false

	if screen.FinalizeURL != nil {
		c.mu.Unlock()
		c.delegate.ContinueFlow(ctx, *screen.FinalizeURL)
		return
	}

	if screen.HostedURL != nil && screen.Forms == nil && screen.Messages == nil {
		hostedURL := *screen.HostedURL
		c.mu.Unlock()
		c.triggerFallback(hostedURL)
		return
	}

	if screen.Forms != nil {
		c.screen = screen
		c.messages = screen.Messages
		c.rebuildFormValues(screen.Forms)
		watchers := append(make([]func(*Screen), 0, len(c.renderWatchers)), c.renderWatchers...)
		c.mu.Unlock()
		for _, fn := range watchers {
			fn(screen)
		}
		return
	}

	// Message-only refresh: keep the screen and the user's in-place
	// edits, swap the messages. An identical message set is no delta,
	// so watchers stay quiet.
	unchanged := c.messages.Equal(screen.Messages)
	if c.screen != nil {
		c.screen.Messages = screen.Messages
	}
	c.messages = screen.Messages
	current := c.screen
	watchers := append(make([]func(*Screen), 0, len(c.refreshWatchers)), c.refreshWatchers...)
	c.mu.Unlock()

	if unchanged {
		return
	}
	for _, fn := range watchers {
		fn(current)
	}
}

// rebuildFormValues discards the value cache and reseeds it from the
// widgets' declared values. Callers hold c.mu.
func (c *Controller) rebuildFormValues(forms []Form) {
	next := make(map[string]map[string]*Value)
	for _, form := range forms {
		for _, widget := range form.Widgets {
			value, ok := widget.CurrentValue()
			if !ok {
				continue
			}
			widgets, ok := next[form.ID]
			if !ok {
				widgets = make(map[string]*Value)
				next[form.ID] = widgets
			}
			widgets[widget.WidgetID()] = NewValue(value)
		}
	}
	c.forms = next
}

// TriggerFallback hands off to the current screen's hosted page. It is
// called by rendering code that encounters a widget it cannot
// represent; reaching it without a hosted URL means the server claimed
// no fallback exists, which is a programmer error, so it panics rather
// than degrade silently.
func (c *Controller) TriggerFallback() {
	c.mu.Lock()
	screen := c.screen
	c.mu.Unlock()

	if screen == nil || screen.HostedURL == nil {
		panic("flow: hosted url not available for fallback")
	}
	c.triggerFallback(*screen.HostedURL)
}

func (c *Controller) triggerFallback(uri string) {
	c.mu.Lock()
	c.redirectExpected = true
	c.mu.Unlock()

	c.logger.Info("falling back to hosted page")
	c.fallback(uri)
}

// unfoldValues expands dot-separated widget keys into nested maps,
// omitting entries whose current value is absent.
func unfoldValues(values map[string]*Value) map[string]any {
	body := make(map[string]any)
	for path, cell := range values {
		value := cell.Get()
		if value == nil {
			continue
		}

		keys := strings.Split(path, ".")
		current := body
		for i, key := range keys {
			if i == len(keys)-1 {
				current[key] = value
				continue
			}
			nested, ok := current[key].(map[string]any)
			if !ok {
				nested = make(map[string]any)
				current[key] = nested
			}
			current = nested
		}
	}
	return body
}
