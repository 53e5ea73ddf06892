// Package flow implements the hosted journey-flow protocol: the
// server-supplied screen model, the journey API client, and the login
// controller that drives one hosted-login attempt.
package flow

// Screen is the server-supplied document describing one step of the
// journey. At most one of finalizeUrl / hostedUrl-without-forms /
// forms is meaningful; the controller consumes them in strict
// priority order.
type Screen struct {
	Screen      string    `json:"screen,omitempty"`
	Branding    *Branding `json:"branding,omitempty"`
	HostedURL   *string   `json:"hostedUrl,omitempty"`
	FinalizeURL *string   `json:"finalizeUrl,omitempty"`
	Forms       []Form    `json:"forms,omitempty"`
	Layout      *Layout   `json:"layout,omitempty"`
	Messages    *Messages `json:"messages,omitempty"`
}

// Branding carries presentational metadata for the current screen.
type Branding struct {
	LogoURL          *string `json:"logoUrl,omitempty"`
	Copyright        *string `json:"copyright,omitempty"`
	SiteTermURL      *string `json:"siteTermUrl,omitempty"`
	PrivacyPolicyURL *string `json:"privacyPolicyUrl,omitempty"`
}

// Layout is a recursive, purely presentational arrangement of widget
// references. Type is one of "widget", "horizontal", or "vertical".
type Layout struct {
	Type     string   `json:"type"`
	FormID   string   `json:"formId,omitempty"`
	WidgetID string   `json:"widgetId,omitempty"`
	Items    []Layout `json:"items,omitempty"`
}
