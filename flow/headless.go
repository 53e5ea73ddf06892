package flow

import (
	"context"
	"fmt"
)

// AdapterDelegate receives screen notifications from a headless
// integration: RenderScreen on any screen replacement, RefreshScreen
// when only the messages changed and in-place edits must survive.
type AdapterDelegate interface {
	RenderScreen(screen *Screen)
	RefreshScreen(screen *Screen)
}

// Adapter exposes the controller to integrations that drive the
// journey without the SDK's widget state cells, e.g. fully custom UIs.
type Adapter struct {
	controller *Controller
	delegate   AdapterDelegate
}

// NewAdapter attaches a delegate to an in-progress login. It fails
// when no login is in progress.
func NewAdapter(controller *Controller, delegate AdapterDelegate) (*Adapter, error) {
	if controller == nil {
		return nil, fmt.Errorf("no login in progress")
	}

	a := &Adapter{controller: controller, delegate: delegate}
	controller.OnRender(delegate.RenderScreen)
	controller.OnRefresh(delegate.RefreshScreen)
	return a, nil
}

// Initialize renders the current screen.
func (a *Adapter) Initialize() error {
	screen := a.controller.Screen()
	if screen == nil {
		return fmt.Errorf("screen not set")
	}
	a.delegate.RenderScreen(screen)
	return nil
}

// Screen returns the current screen.
func (a *Adapter) Screen() *Screen {
	return a.controller.Screen()
}

// Messages returns the current message set.
func (a *Adapter) Messages() *Messages {
	return a.controller.Messages()
}

// Submit posts an explicit body for one form.
func (a *Adapter) Submit(ctx context.Context, formID string, body map[string]any) {
	a.controller.SubmitBody(ctx, formID, body)
}
