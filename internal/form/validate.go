package form

import "strings"

// Values holds the entered value per field name.
type Values map[string]any

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Defaults returns the initial values for schema: each field's default, or
// the empty string when it declares none.
func Defaults(schema *Schema) Values {
	values := Values{}
	if schema == nil {
		return values
	}
	for _, f := range schema.Fields {
		if f.HasDefault {
			values[f.Name] = f.Default
		} else {
			values[f.Name] = ""
		}
	}
	return values
}

// ValidateInputs checks values against schema and returns a message per
// invalid field. An empty map means the values are valid. A missing
// required field gets only the required message.
func ValidateInputs(schema *Schema, values Values) map[string]string {
	errs := map[string]string{}
	if schema == nil {
		return errs
	}

	for _, f := range schema.Fields {
		label := f.Label(f.Name)
		v := values[f.Name]

		if isEmpty(v) {
			if f.Required {
				errs[f.Name] = label + " is required"
			}
			continue
		}

		if msg := ruleFor(f.Kind).check(label, f.FieldSpec, v); msg != "" {
			errs[f.Name] = msg
		}
	}
	return errs
}

// MissingRequired returns the required fields without a value, in schema
// order.
func MissingRequired(schema *Schema, values Values) []string {
	if schema == nil {
		return nil
	}
	var missing []string
	for _, f := range schema.Fields {
		if f.Required && isEmpty(values[f.Name]) {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// Payload builds the run input from values. Empty strings are dropped for
// number and boolean fields, which the remote service would reject.
func Payload(schema *Schema, values Values) map[string]any {
	out := make(map[string]any, len(values))
	for name, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			if f, known := schema.Field(name); known && (f.Kind == KindNumber || f.Kind == KindBoolean) {
				continue
			}
		}
		out[name] = v
	}
	return out
}
