package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FieldSpec describes one input field.
type FieldSpec struct {
	// Type is the schema type as written; Kind is what it maps to.
	Type        string   `json:"type"`
	Kind        Kind     `json:"kind"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	HasDefault  bool     `json:"-"`
	Required    bool     `json:"required,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	MaxLength   *int     `json:"maxLength,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// Label is the title, or name when the field has none.
func (s FieldSpec) Label(name string) string {
	if s.Title != "" {
		return s.Title
	}
	return name
}

// Structured reports whether the field holds JSON arrays or objects that
// are edited as text.
func (s FieldSpec) Structured() bool {
	t := strings.ToLower(s.Type)
	return t == "array" || t == "object"
}

// Field is a named FieldSpec.
type Field struct {
	Name string `json:"name"`
	FieldSpec
}

// Schema is a parsed input schema with fields in document order.
type Schema struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields"`
}

// Field looks a field up by name.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Fields)
}

// Required returns the names of the required fields in order.
func (s *Schema) Required() []string {
	if s == nil {
		return nil
	}
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// rawSchema is the top level of an input schema document.
type rawSchema struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Properties  json.RawMessage `json:"properties"`
	Required    []string        `json:"required"`
}

// rawField accepts both the compact field form and the aliases used by
// Apify input schemas (integer, minimum/maximum, enum, editor).
type rawField struct {
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Default     json.RawMessage `json:"default"`
	Prefill     json.RawMessage `json:"prefill"`
	Required    json.RawMessage `json:"required"`
	Min         *float64        `json:"min"`
	Max         *float64        `json:"max"`
	Minimum     *float64        `json:"minimum"`
	Maximum     *float64        `json:"maximum"`
	MaxLength   *float64        `json:"maxLength"`
	Options     []any           `json:"options"`
	Enum        []any           `json:"enum"`
	Editor      string          `json:"editor"`
}

// ParseSchema parses an input schema document. A null or empty document
// yields an empty schema. Field keys must be unique.
func ParseSchema(raw json.RawMessage) (*Schema, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &Schema{}, nil
	}

	var doc rawSchema
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("parse input schema: %w", err)
	}

	names, values, err := orderedObject(doc.Properties)
	if err != nil {
		return nil, fmt.Errorf("parse input schema properties: %w", err)
	}

	required := make(map[string]bool, len(doc.Required))
	for _, name := range doc.Required {
		required[name] = true
	}

	schema := &Schema{
		Title:       doc.Title,
		Description: doc.Description,
		Fields:      make([]Field, 0, len(names)),
	}
	for i, name := range names {
		spec, err := parseField(values[i])
		if err != nil {
			return nil, fmt.Errorf("parse input schema field %q: %w", name, err)
		}
		if required[name] {
			spec.Required = true
		}
		schema.Fields = append(schema.Fields, Field{Name: name, FieldSpec: spec})
	}
	return schema, nil
}

// orderedObject splits a JSON object into its keys and values in document
// order, rejecting duplicate keys.
func orderedObject(raw json.RawMessage) ([]string, []json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected an object")
	}

	var (
		names  []string
		values []json.RawMessage
		seen   = map[string]bool{}
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected a field name")
		}
		if seen[key] {
			return nil, nil, fmt.Errorf("duplicate field %q", key)
		}
		seen[key] = true

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, err
		}
		names = append(names, key)
		values = append(values, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return names, values, nil
}

func parseField(raw json.RawMessage) (FieldSpec, error) {
	var rf rawField
	if err := json.Unmarshal(raw, &rf); err != nil {
		return FieldSpec{}, err
	}

	spec := FieldSpec{
		Type:        rf.Type,
		Title:       rf.Title,
		Description: rf.Description,
		Min:         firstFloat(rf.Min, rf.Minimum),
		Max:         firstFloat(rf.Max, rf.Maximum),
	}

	var req bool
	if len(rf.Required) > 0 && json.Unmarshal(rf.Required, &req) == nil {
		spec.Required = req
	}

	if rf.MaxLength != nil {
		n := int(*rf.MaxLength)
		spec.MaxLength = &n
	}

	options := rf.Options
	if len(options) == 0 {
		options = rf.Enum
	}
	for _, o := range options {
		spec.Options = append(spec.Options, fmt.Sprint(o))
	}

	spec.Kind = KindOf(rf.Type)
	if spec.Kind == KindString {
		switch {
		case rf.Editor == "select" || (len(spec.Options) > 0 && !spec.Structured()):
			spec.Kind = KindSelect
		case rf.Editor == "textarea":
			spec.Kind = KindTextarea
		}
	}

	// prefill seeds the form when no default is declared
	for _, raw := range []json.RawMessage{rf.Default, rf.Prefill} {
		if len(raw) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return FieldSpec{}, err
		}
		if v != nil {
			spec.Default = v
			spec.HasDefault = true
			break
		}
	}
	return spec, nil
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
