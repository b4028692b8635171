package form

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Option is one choice of a select control.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Control describes how a field is presented for editing.
type Control struct {
	Name        string   `json:"name"`
	Kind        Kind     `json:"kind"`
	Widget      Widget   `json:"widget"`
	Label       string   `json:"label"`
	Required    bool     `json:"required"`
	Description string   `json:"description,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Value       any      `json:"value"`
	Options     []Option `json:"options,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	MaxLength   *int     `json:"maxLength,omitempty"`
	RangeHint   string   `json:"rangeHint,omitempty"`
}

// Text returns the control value as the string an input widget shows.
// Structured values are shown as compact JSON.
func (c Control) Text() string {
	switch v := c.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any, map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	default:
		return fmt.Sprint(v)
	}
}

// RenderField describes the control for one field given its current value.
func RenderField(name string, spec FieldSpec, current any) Control {
	rule := ruleFor(spec.Kind)

	c := Control{
		Name:        name,
		Kind:        spec.Kind,
		Widget:      rule.widget,
		Label:       spec.Label(name),
		Required:    spec.Required,
		Description: spec.Description,
		Value:       rule.coerce(current),
	}

	switch spec.Kind {
	case KindString, KindTextarea:
		c.Placeholder = spec.Description
		c.MaxLength = spec.MaxLength
	case KindNumber:
		c.Placeholder = spec.Description
		c.Min = spec.Min
		c.Max = spec.Max
		c.RangeHint = rangeHint(spec.Min, spec.Max)
	case KindSelect:
		c.Options = make([]Option, 0, len(spec.Options))
		for _, opt := range spec.Options {
			c.Options = append(c.Options, Option{Value: opt, Label: capitalize(opt)})
		}
	}
	return c
}

// Render describes the controls of every field in schema order.
func Render(schema *Schema, values Values) []Control {
	if schema == nil {
		return nil
	}
	controls := make([]Control, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		controls = append(controls, RenderField(f.Name, f.FieldSpec, values[f.Name]))
	}
	return controls
}

func rangeHint(minV, maxV *float64) string {
	if minV == nil && maxV == nil {
		return ""
	}
	lo, hi := "0", "∞"
	if minV != nil {
		lo = formatNumber(*minV)
	}
	if maxV != nil {
		hi = formatNumber(*maxV)
	}
	return fmt.Sprintf("Range: %s - %s", lo, hi)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// ParseText converts text typed into a control back into a field value.
// Structured fields accept JSON; invalid JSON is kept as text.
func ParseText(spec FieldSpec, text string) any {
	if spec.Structured() {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return ""
		}
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
		return text
	}
	return Coerce(spec.Kind, text)
}
