package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/appify/internal/form"
)

// inputs binds huh fields to the fields of an actor's input schema.
type inputs struct {
	schema *form.Schema
	text   map[string]*string
	bools  map[string]*bool
}

// newInputs builds one huh field per schema field, seeded with values.
// Field errors from a failed submit are shown in the field descriptions.
func newInputs(schema *form.Schema, values form.Values, fieldErrors map[string]string) (*inputs, []huh.Field) {
	in := &inputs{
		schema: schema,
		text:   map[string]*string{},
		bools:  map[string]*bool{},
	}

	controls := form.Render(schema, values)
	fields := make([]huh.Field, 0, len(controls))
	for _, c := range controls {
		title := c.Label
		if c.Required {
			title += " *"
		}
		desc := describeControl(c, fieldErrors[c.Name])

		switch c.Widget {
		case form.WidgetCheckbox:
			b, _ := c.Value.(bool)
			in.bools[c.Name] = &b
			fields = append(fields, huh.NewConfirm().
				Key(c.Name).
				Title(title).
				Description(desc).
				Affirmative("Yes").
				Negative("No").
				Value(&b))

		case form.WidgetSelect:
			s := c.Text()
			in.text[c.Name] = &s
			options := make([]huh.Option[string], 0, len(c.Options)+1)
			if !c.Required {
				options = append(options, huh.NewOption("(none)", ""))
			}
			for _, o := range c.Options {
				options = append(options, huh.NewOption(o.Label, o.Value))
			}
			fields = append(fields, huh.NewSelect[string]().
				Key(c.Name).
				Title(title).
				Description(desc).
				Options(options...).
				Value(&s))

		case form.WidgetTextarea:
			s := c.Text()
			in.text[c.Name] = &s
			field := huh.NewText().
				Key(c.Name).
				Title(title).
				Description(desc).
				Placeholder(c.Placeholder).
				Value(&s)
			if c.MaxLength != nil {
				field = field.CharLimit(*c.MaxLength)
			}
			fields = append(fields, field)

		case form.WidgetNumber:
			s := c.Text()
			in.text[c.Name] = &s
			fields = append(fields, huh.NewInput().
				Key(c.Name).
				Title(title).
				Description(desc).
				Placeholder(c.Placeholder).
				Value(&s).
				Validate(validateNumber))

		default:
			s := c.Text()
			in.text[c.Name] = &s
			field := huh.NewInput().
				Key(c.Name).
				Title(title).
				Description(desc).
				Placeholder(c.Placeholder).
				Value(&s)
			if c.MaxLength != nil {
				field = field.CharLimit(*c.MaxLength)
			}
			fields = append(fields, field)
		}
	}
	return in, fields
}

// values reads the bound fields back into form values.
func (in *inputs) values() form.Values {
	out := form.Values{}
	for name, p := range in.text {
		f, ok := in.schema.Field(name)
		if !ok {
			continue
		}
		out[name] = form.ParseText(f.FieldSpec, *p)
	}
	for name, p := range in.bools {
		out[name] = *p
	}
	return out
}

func describeControl(c form.Control, fieldErr string) string {
	var parts []string
	if c.Description != "" {
		parts = append(parts, c.Description)
	}
	if c.RangeHint != "" {
		parts = append(parts, c.RangeHint)
	}
	if fieldErr != "" {
		parts = append(parts, "✗ "+fieldErr)
	}
	return strings.Join(parts, "\n")
}

func validateNumber(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("enter a number")
	}
	return nil
}
