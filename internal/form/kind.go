// Package form turns an actor input schema into editable controls and
// validates the values entered for them.
//
// Field kinds form a closed set. Each kind carries its widget, its coercion
// and its extra validation rule in kindRules, so supporting a new kind means
// adding one entry there.
package form

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind is the closed set of field kinds.
type Kind int

// Field kinds
const (
	KindString Kind = iota
	KindNumber
	KindBoolean
	KindSelect
	KindTextarea
)

var kindNames = [...]string{
	KindString:   "string",
	KindNumber:   "number",
	KindBoolean:  "boolean",
	KindSelect:   "select",
	KindTextarea: "textarea",
}

// String returns the schema type name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind as its type name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KindOf maps a schema type name onto a kind. Unrecognized names fall back
// to KindString.
func KindOf(typ string) Kind {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "number", "integer":
		return KindNumber
	case "boolean":
		return KindBoolean
	case "select":
		return KindSelect
	case "textarea":
		return KindTextarea
	default:
		return KindString
	}
}

// Widget names the control a kind renders as.
type Widget string

// Widgets
const (
	WidgetText     Widget = "text"
	WidgetNumber   Widget = "number"
	WidgetCheckbox Widget = "checkbox"
	WidgetSelect   Widget = "select"
	WidgetTextarea Widget = "textarea"
)

// kindRule is the behaviour attached to a kind.
type kindRule struct {
	widget Widget
	// coerce normalises a stored or entered value for display and submission.
	coerce func(v any) any
	// check returns an error message for a non-empty value, or "".
	check func(label string, spec FieldSpec, v any) string
}

var kindRules = map[Kind]kindRule{
	KindString:   {widget: WidgetText, coerce: coerceText, check: checkMaxLength},
	KindNumber:   {widget: WidgetNumber, coerce: coerceNumber, check: checkRange},
	KindBoolean:  {widget: WidgetCheckbox, coerce: coerceBool, check: noCheck},
	KindSelect:   {widget: WidgetSelect, coerce: coerceText, check: checkOption},
	KindTextarea: {widget: WidgetTextarea, coerce: coerceText, check: checkMaxLength},
}

func ruleFor(k Kind) kindRule {
	if r, ok := kindRules[k]; ok {
		return r
	}
	return kindRules[KindString]
}

// Coerce normalises v for kind k. Number values are parsed to an integer;
// anything unparseable becomes the empty string.
func Coerce(k Kind, v any) any {
	return ruleFor(k).coerce(v)
}

func coerceText(v any) any {
	if v == nil {
		return ""
	}
	return v
}

func coerceNumber(v any) any {
	switch n := v.(type) {
	case nil:
		return ""
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return ""
		}
		return int(n)
	case json.Number:
		return coerceNumber(string(n))
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return ""
		}
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(f)
		}
		return ""
	default:
		return ""
	}
}

func coerceBool(v any) any {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	default:
		return false
	}
}

func noCheck(string, FieldSpec, any) string { return "" }

func checkMaxLength(label string, spec FieldSpec, v any) string {
	if spec.MaxLength == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	if utf8.RuneCountInString(s) > *spec.MaxLength {
		return fmt.Sprintf("%s must be less than %d characters", label, *spec.MaxLength)
	}
	return ""
}

func checkRange(label string, spec FieldSpec, v any) string {
	n, ok := toFloat(v)
	if !ok {
		return ""
	}
	msg := ""
	if spec.Min != nil && n < *spec.Min {
		msg = fmt.Sprintf("%s must be at least %s", label, formatNumber(*spec.Min))
	}
	if spec.Max != nil && n > *spec.Max {
		msg = fmt.Sprintf("%s must be at most %s", label, formatNumber(*spec.Max))
	}
	return msg
}

func checkOption(label string, spec FieldSpec, v any) string {
	if len(spec.Options) == 0 {
		return ""
	}
	s := fmt.Sprint(v)
	for _, opt := range spec.Options {
		if opt == s {
			return ""
		}
	}
	return fmt.Sprintf("%s must be one of: %s", label, strings.Join(spec.Options, ", "))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// isEmpty reports whether v counts as missing for a required field.
// An unchecked checkbox counts as missing; zero does not.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case bool:
		return !x
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}
