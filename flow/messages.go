package flow

import "encoding/json"

// Message is one server-rendered notice.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Messages is either a single global message or a per-form, per-widget
// message map, discriminated on the wire by the presence of a "global"
// key. It is purely presentational.
type Messages struct {
	Global *Message
	Form   map[string]map[string]Message
}

// ErrorMessageForWidget looks up the message text for one widget, if
// any.
func (m *Messages) ErrorMessageForWidget(formID, widgetID string) (string, bool) {
	if m == nil || m.Form == nil {
		return "", false
	}
	msg, ok := m.Form[formID][widgetID]
	if !ok {
		return "", false
	}
	return msg.Text, true
}

func (m *Messages) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if raw, ok := probe["global"]; ok {
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}
		m.Global = &msg
		m.Form = nil
		return nil
	}

	var form map[string]map[string]Message
	if err := json.Unmarshal(data, &form); err != nil {
		return err
	}
	m.Global = nil
	m.Form = form
	return nil
}

func (m Messages) MarshalJSON() ([]byte, error) {
	if m.Global != nil {
		return json.Marshal(map[string]*Message{"global": m.Global})
	}
	return json.Marshal(m.Form)
}

// Equal reports whether two message sets carry the same content. A
// message-only response whose content is unchanged is not a refresh
// worth notifying.
func (m *Messages) Equal(other *Messages) bool {
	switch {
	case m == nil && other == nil:
		return true
	case m == nil || other == nil:
		return false
	}

	if (m.Global == nil) != (other.Global == nil) {
		return false
	}
	if m.Global != nil && *m.Global != *other.Global {
		return false
	}

	if len(m.Form) != len(other.Form) {
		return false
	}
	for formID, widgets := range m.Form {
		otherWidgets, ok := other.Form[formID]
		if !ok || len(widgets) != len(otherWidgets) {
			return false
		}
		for widgetID, msg := range widgets {
			otherMsg, ok := otherWidgets[widgetID]
			if !ok || msg != otherMsg {
				return false
			}
		}
	}
	return true
}
