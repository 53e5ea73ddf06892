package flow

import (
	"encoding/json"
	"fmt"
)

// Widget is one element of a form. Concrete widget kinds are
// discriminated by the JSON "type" field; unrecognized kinds decode to
// UnknownWidget so renderers can fall back to the hosted page instead
// of failing.
type Widget interface {
	WidgetID() string
	WidgetType() string
	// CurrentValue returns the widget's declared value, when it has
	// one, for seeding the form value cache.
	CurrentValue() (any, bool)
}

// Form groups widgets under a submittable form id.
type Form struct {
	ID      string   `json:"id"`
	Widgets []Widget `json:"widgets"`
}

// UnmarshalJSON decodes the widget list through the type discriminator.
func (f *Form) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string            `json:"id"`
		Widgets []json.RawMessage `json:"widgets"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.ID = raw.ID
	f.Widgets = make([]Widget, 0, len(raw.Widgets))
	for _, entry := range raw.Widgets {
		w, err := decodeWidget(entry)
		if err != nil {
			return err
		}
		f.Widgets = append(f.Widgets, w)
	}
	return nil
}

func decodeWidget(data []byte) (Widget, error) {
	var head struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode widget: %w", err)
	}

	var w Widget
	switch head.Type {
	case "submit":
		w = new(SubmitWidget)
	case "close":
		w = new(CloseWidget)
	case "static":
		w = new(StaticWidget)
	case "input":
		w = new(InputWidget)
	case "checkbox":
		w = new(CheckboxWidget)
	case "password":
		w = new(PasswordWidget)
	case "select":
		w = new(SelectWidget)
	case "multiSelect":
		w = new(MultiSelectWidget)
	case "passcode":
		w = new(PasscodeWidget)
	case "phone":
		w = new(PhoneWidget)
	case "date":
		w = new(DateWidget)
	case "webauthn":
		w = new(WebauthnWidget)
	default:
		return &UnknownWidget{Type: head.Type, ID: head.ID}, nil
	}

	if err := json.Unmarshal(data, w); err != nil {
		return nil, fmt.Errorf("decode %s widget: %w", head.Type, err)
	}
	return w, nil
}

// UnknownWidget stands in for any widget kind this SDK version cannot
// render. Consumers encountering one trigger fallback to the hosted
// page.
type UnknownWidget struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (w *UnknownWidget) WidgetID() string          { return w.ID }
func (w *UnknownWidget) WidgetType() string        { return w.Type }
func (w *UnknownWidget) CurrentValue() (any, bool) { return nil, false }

// ButtonRender is the render hint shared by submit-like widgets.
type ButtonRender struct {
	Type      string      `json:"type"`
	TextColor *string     `json:"textColor,omitempty"`
	BgColor   *string     `json:"bgColor,omitempty"`
	Hint      *ButtonHint `json:"hint,omitempty"`
}

// ButtonHint refines button presentation.
type ButtonHint struct {
	Icon    *string `json:"icon,omitempty"`
	Variant *string `json:"variant,omitempty"`
}

// SubmitWidget posts its owning form.
type SubmitWidget struct {
	ID     string       `json:"id"`
	Label  string       `json:"label"`
	Render ButtonRender `json:"render"`
}

func (w *SubmitWidget) WidgetID() string          { return w.ID }
func (w *SubmitWidget) WidgetType() string        { return "submit" }
func (w *SubmitWidget) CurrentValue() (any, bool) { return nil, false }

// CloseWidget dismisses the current screen.
type CloseWidget struct {
	ID     string       `json:"id"`
	Label  string       `json:"label"`
	Render ButtonRender `json:"render"`
}

func (w *CloseWidget) WidgetID() string          { return w.ID }
func (w *CloseWidget) WidgetType() string        { return "close" }
func (w *CloseWidget) CurrentValue() (any, bool) { return nil, false }

// StaticWidget renders fixed text or markup.
type StaticWidget struct {
	ID     string `json:"id"`
	Value  string `json:"value"`
	Render struct {
		Type string `json:"type"`
	} `json:"render"`
}

func (w *StaticWidget) WidgetID() string          { return w.ID }
func (w *StaticWidget) WidgetType() string        { return "static" }
func (w *StaticWidget) CurrentValue() (any, bool) { return nil, false }

// InputWidget is a free-text field.
type InputWidget struct {
	ID           string          `json:"id"`
	Label        string          `json:"label"`
	Value        *string         `json:"value,omitempty"`
	Readonly     bool            `json:"readonly"`
	Autocomplete *string         `json:"autocomplete,omitempty"`
	Inputmode    *string         `json:"inputmode,omitempty"`
	Validator    *InputValidator `json:"validator,omitempty"`
}

// InputValidator constrains free-text input.
type InputValidator struct {
	MinLength *int    `json:"minLength,omitempty"`
	MaxLength *int    `json:"maxLength,omitempty"`
	Regex     *string `json:"regex,omitempty"`
	Required  bool    `json:"required"`
}

func (w *InputWidget) WidgetID() string   { return w.ID }
func (w *InputWidget) WidgetType() string { return "input" }
func (w *InputWidget) CurrentValue() (any, bool) {
	if w.Value == nil {
		return nil, false
	}
	return *w.Value, true
}

// CheckboxWidget is a boolean field.
type CheckboxWidget struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Value     bool   `json:"value"`
	Readonly  bool   `json:"readonly"`
	Validator *struct {
		Required bool `json:"required"`
	} `json:"validator,omitempty"`
	Render struct {
		Type      string `json:"type"`
		LabelType string `json:"labelType"`
	} `json:"render"`
}

func (w *CheckboxWidget) WidgetID() string          { return w.ID }
func (w *CheckboxWidget) WidgetType() string        { return "checkbox" }
func (w *CheckboxWidget) CurrentValue() (any, bool) { return w.Value, true }

// PasswordWidget is a secret entry field; it never carries a value.
type PasswordWidget struct {
	ID               string             `json:"id"`
	Label            string             `json:"label"`
	QualityIndicator bool               `json:"qualityIndicator"`
	Validator        *PasswordValidator `json:"validator,omitempty"`
}

// PasswordValidator describes the server's password policy.
type PasswordValidator struct {
	MinLength                    *int     `json:"minLength,omitempty"`
	MaxNumericCharacterSequences *int     `json:"maxNumericCharacterSequences,omitempty"`
	MaxRepeatedCharacters        *int     `json:"maxRepeatedCharacters,omitempty"`
	MustContain                  []string `json:"mustContain,omitempty"`
}

func (w *PasswordWidget) WidgetID() string          { return w.ID }
func (w *PasswordWidget) WidgetType() string        { return "password" }
func (w *PasswordWidget) CurrentValue() (any, bool) { return nil, false }

// SelectOption is one (possibly grouped) choice of a select widget.
type SelectOption struct {
	Type    string         `json:"type"`
	Label   *string        `json:"label,omitempty"`
	Value   *string        `json:"value,omitempty"`
	Options []SelectOption `json:"options,omitempty"`
}

// SelectWidget is a single-choice field.
type SelectWidget struct {
	ID       string  `json:"id"`
	Label    *string `json:"label,omitempty"`
	Value    *string `json:"value,omitempty"`
	Readonly bool    `json:"readonly"`
	Render   struct {
		Type string `json:"type"`
	} `json:"render"`
	Options   []SelectOption `json:"options"`
	Validator struct {
		Required bool `json:"required"`
	} `json:"validator"`
}

func (w *SelectWidget) WidgetID() string   { return w.ID }
func (w *SelectWidget) WidgetType() string { return "select" }
func (w *SelectWidget) CurrentValue() (any, bool) {
	if w.Value == nil {
		return nil, false
	}
	return *w.Value, true
}

// MultiSelectWidget is a multiple-choice field.
type MultiSelectWidget struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Value     []string       `json:"value"`
	Readonly  bool           `json:"readonly"`
	Options   []SelectOption `json:"options"`
	Validator *struct {
		MinSelectable int `json:"minSelectable"`
		MaxSelectable int `json:"maxSelectable"`
	} `json:"validator,omitempty"`
}

func (w *MultiSelectWidget) WidgetID() string   { return w.ID }
func (w *MultiSelectWidget) WidgetType() string { return "multiSelect" }
func (w *MultiSelectWidget) CurrentValue() (any, bool) {
	if w.Value == nil {
		return nil, false
	}
	return w.Value, true
}

// PasscodeWidget captures a one-time code.
type PasscodeWidget struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Validator *struct {
		Length *int `json:"length,omitempty"`
	} `json:"validator,omitempty"`
}

func (w *PasscodeWidget) WidgetID() string          { return w.ID }
func (w *PasscodeWidget) WidgetType() string        { return "passcode" }
func (w *PasscodeWidget) CurrentValue() (any, bool) { return nil, false }

// PhoneWidget captures a phone number.
type PhoneWidget struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Readonly  bool    `json:"readonly"`
	Value     *string `json:"value,omitempty"`
	Validator *struct {
		Required *bool `json:"required,omitempty"`
	} `json:"validator,omitempty"`
}

func (w *PhoneWidget) WidgetID() string   { return w.ID }
func (w *PhoneWidget) WidgetType() string { return "phone" }
func (w *PhoneWidget) CurrentValue() (any, bool) {
	if w.Value == nil {
		return nil, false
	}
	return *w.Value, true
}

// DateWidget captures a calendar date.
type DateWidget struct {
	ID          string  `json:"id"`
	Label       *string `json:"label,omitempty"`
	Placeholder *string `json:"placeholder,omitempty"`
	Readonly    bool    `json:"readonly"`
	Value       *string `json:"value,omitempty"`
	Render      struct {
		Type string `json:"type"`
	} `json:"render"`
	Validator *struct {
		Required  *bool   `json:"required,omitempty"`
		NotBefore *string `json:"notBefore,omitempty"`
		NotAfter  *string `json:"notAfter,omitempty"`
	} `json:"validator,omitempty"`
}

func (w *DateWidget) WidgetID() string   { return w.ID }
func (w *DateWidget) WidgetType() string { return "date" }
func (w *DateWidget) CurrentValue() (any, bool) {
	if w.Value == nil {
		return nil, false
	}
	return *w.Value, true
}

// WebauthnWidget carries the credential ceremony options. The platform
// credential API is an external collaborator; the SDK only transports
// these options and the resulting credential JSON.
type WebauthnWidget struct {
	ID       string           `json:"id"`
	Label    string           `json:"label"`
	Render   ButtonRender     `json:"render"`
	Metadata WebauthnMetadata `json:"metadata"`
}

// WebauthnMetadata holds either assertion (sign-in) or creation
// (registration) options.
type WebauthnMetadata struct {
	AssertionOptions *WebauthnAssertion `json:"assertionOptions,omitempty"`
	CreationOptions  *WebauthnCreation  `json:"creationOptions,omitempty"`
}

// WebauthnAssertion parameterizes an existing-credential ceremony.
type WebauthnAssertion struct {
	Challenge        string `json:"challenge"`
	Timeout          int64  `json:"timeout"`
	RpID             string `json:"rpId"`
	UserVerification string `json:"userVerification"`
}

// WebauthnCreation parameterizes a new-credential ceremony.
type WebauthnCreation struct {
	RP struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	} `json:"rp"`
	User struct {
		Name        string `json:"name"`
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"user"`
	Challenge        string `json:"challenge"`
	PubKeyCredParams []struct {
		Type string `json:"type"`
		Alg  int64  `json:"alg"`
	} `json:"pubKeyCredParams"`
	ExcludeCredentials []struct {
		Type       string   `json:"type"`
		ID         string   `json:"id"`
		Transports []string `json:"transports"`
	} `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection struct {
		AuthenticatorAttachment string `json:"authenticatorAttachment"`
		ResidentKey             string `json:"residentKey"`
		RequireResidentKey      bool   `json:"requireResidentKey"`
		UserVerification        string `json:"userVerification"`
	} `json:"authenticatorSelection"`
	Attestation string `json:"attestation"`
}

func (w *WebauthnWidget) WidgetID() string          { return w.ID }
func (w *WebauthnWidget) WidgetType() string        { return "webauthn" }
func (w *WebauthnWidget) CurrentValue() (any, bool) { return nil, false }
