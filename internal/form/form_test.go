package form

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func mustParse(t *testing.T, raw string) *Schema {
	t.Helper()
	s, err := ParseSchema(json.RawMessage(raw))
	require.NoError(t, err)
	return s
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		typ  string
		want Kind
	}{
		{"string", KindString},
		{"number", KindNumber},
		{"integer", KindNumber},
		{"boolean", KindBoolean},
		{"select", KindSelect},
		{"textarea", KindTextarea},
		{"Textarea", KindTextarea},
		{"array", KindString},
		{"", KindString},
		{"color-picker", KindString},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.typ))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "select", KindSelect.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())

	out, err := json.Marshal(KindNumber)
	require.NoError(t, err)
	assert.Equal(t, `"number"`, string(out))
}

func TestParseSchemaKeepsDocumentOrder(t *testing.T) {
	s := mustParse(t, `{"title":"Input","properties":{
		"zeta":{"type":"string"},
		"alpha":{"type":"number"},
		"mid":{"type":"boolean"}
	}}`)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, "Input", s.Title)
	assert.Equal(t, "zeta", s.Fields[0].Name)
	assert.Equal(t, "alpha", s.Fields[1].Name)
	assert.Equal(t, "mid", s.Fields[2].Name)
}

func TestParseSchemaRejectsDuplicateKeys(t *testing.T) {
	_, err := ParseSchema(json.RawMessage(`{"properties":{"a":{"type":"string"},"a":{"type":"number"}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate field "a"`)
}

func TestParseSchemaNull(t *testing.T) {
	for _, raw := range []string{"", "null", "  null "} {
		s, err := ParseSchema(json.RawMessage(raw))
		require.NoError(t, err)
		assert.Equal(t, 0, s.Len())
	}
}

func TestParseSchemaInvalid(t *testing.T) {
	_, err := ParseSchema(json.RawMessage(`[1,2]`))
	assert.Error(t, err)

	_, err = ParseSchema(json.RawMessage(`{"properties":[]}`))
	assert.Error(t, err)
}

func TestParseSchemaAliases(t *testing.T) {
	s := mustParse(t, `{
		"properties": {
			"count":  {"type":"integer","title":"Count","minimum":1,"maximum":10,"default":3},
			"mode":   {"type":"string","enum":["fast","slow"],"editor":"select"},
			"query":  {"type":"string","editor":"textarea","maxLength":200},
			"urls":   {"type":"array","prefill":[{"url":"https://example.com"}]},
			"flag":   {"type":"boolean","required":true},
			"plain":  {"type":"string","required":["nested"]}
		},
		"required": ["count"]
	}`)

	count, ok := s.Field("count")
	require.True(t, ok)
	assert.Equal(t, KindNumber, count.Kind)
	assert.Equal(t, ptr(1.0), count.Min)
	assert.Equal(t, ptr(10.0), count.Max)
	assert.True(t, count.Required)
	assert.Equal(t, 3.0, count.Default)

	mode, _ := s.Field("mode")
	assert.Equal(t, KindSelect, mode.Kind)
	assert.Equal(t, []string{"fast", "slow"}, mode.Options)

	query, _ := s.Field("query")
	assert.Equal(t, KindTextarea, query.Kind)
	assert.Equal(t, ptr(200), query.MaxLength)

	urls, _ := s.Field("urls")
	assert.Equal(t, KindString, urls.Kind)
	assert.True(t, urls.Structured())
	assert.True(t, urls.HasDefault)

	flag, _ := s.Field("flag")
	assert.True(t, flag.Required)

	plain, _ := s.Field("plain")
	assert.False(t, plain.Required)

	assert.Equal(t, []string{"count", "flag"}, s.Required())
}

func TestRenderField(t *testing.T) {
	tests := []struct {
		name   string
		spec   FieldSpec
		value  any
		widget Widget
		want   any
	}{
		{"string", FieldSpec{Kind: KindString}, "hello", WidgetText, "hello"},
		{"string nil", FieldSpec{Kind: KindString}, nil, WidgetText, ""},
		{"number from text", FieldSpec{Kind: KindNumber}, "42", WidgetNumber, 42},
		{"number truncates", FieldSpec{Kind: KindNumber}, "3.9", WidgetNumber, 3},
		{"number invalid", FieldSpec{Kind: KindNumber}, "abc", WidgetNumber, ""},
		{"number from json", FieldSpec{Kind: KindNumber}, 7.0, WidgetNumber, 7},
		{"boolean", FieldSpec{Kind: KindBoolean}, true, WidgetCheckbox, true},
		{"boolean empty", FieldSpec{Kind: KindBoolean}, "", WidgetCheckbox, false},
		{"select", FieldSpec{Kind: KindSelect, Options: []string{"a"}}, "a", WidgetSelect, "a"},
		{"textarea", FieldSpec{Kind: KindTextarea}, "x\ny", WidgetTextarea, "x\ny"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := RenderField("f", tt.spec, tt.value)
			assert.Equal(t, tt.widget, c.Widget)
			assert.Equal(t, tt.want, c.Value)
		})
	}
}

func TestRenderFieldDetails(t *testing.T) {
	number := RenderField("n", FieldSpec{Kind: KindNumber, Title: "Pages", Description: "How many", Min: ptr(1.0), Required: true}, 2)
	assert.Equal(t, "Pages", number.Label)
	assert.Equal(t, "How many", number.Placeholder)
	assert.True(t, number.Required)
	assert.Equal(t, "Range: 1 - ∞", number.RangeHint)

	onlyMax := RenderField("n", FieldSpec{Kind: KindNumber, Max: ptr(2.5)}, "")
	assert.Equal(t, "Range: 0 - 2.5", onlyMax.RangeHint)
	assert.Equal(t, "n", onlyMax.Label)

	sel := RenderField("mode", FieldSpec{Kind: KindSelect, Options: []string{"fast", "élan", ""}}, "fast")
	assert.Equal(t, []Option{{"fast", "Fast"}, {"élan", "Élan"}, {"", ""}}, sel.Options)
	assert.Empty(t, sel.Placeholder)

	text := RenderField("q", FieldSpec{Kind: KindString, MaxLength: ptr(5)}, "x")
	assert.Equal(t, ptr(5), text.MaxLength)
	assert.Empty(t, text.RangeHint)
}

func TestControlText(t *testing.T) {
	assert.Equal(t, "", Control{}.Text())
	assert.Equal(t, "12", Control{Value: 12}.Text())
	assert.Equal(t, `[{"url":"x"}]`, Control{Value: []any{map[string]any{"url": "x"}}}.Text())
}

func TestParseText(t *testing.T) {
	assert.Equal(t, 5, ParseText(FieldSpec{Kind: KindNumber}, "5"))
	assert.Equal(t, "hi", ParseText(FieldSpec{Kind: KindString}, "hi"))
	assert.Equal(t, []any{"a"}, ParseText(FieldSpec{Type: "array", Kind: KindString}, `["a"]`))
	assert.Equal(t, "[oops", ParseText(FieldSpec{Type: "array", Kind: KindString}, "[oops"))
}

func TestValidateInputs(t *testing.T) {
	s := mustParse(t, `{"properties":{
		"loc":{"type":"string","required":true},
		"n":{"type":"number","min":1,"max":5}
	}}`)

	errs := ValidateInputs(s, Values{"loc": "", "n": 10})
	assert.Equal(t, map[string]string{
		"loc": "loc is required",
		"n":   "n must be at most 5",
	}, errs)

	assert.Empty(t, ValidateInputs(s, Values{"loc": "x", "n": 3}))
}

func TestValidateInputsRules(t *testing.T) {
	s := mustParse(t, `{"properties":{
		"title":{"type":"string","title":"Title","maxLength":3},
		"body":{"type":"textarea","title":"Body","maxLength":2},
		"pages":{"type":"number","title":"Pages","min":2},
		"mode":{"type":"select","title":"Mode","options":["fast","slow"]},
		"agree":{"type":"boolean","title":"Agree","required":true},
		"opt":{"type":"number","title":"Optional","min":1}
	}}`)

	errs := ValidateInputs(s, Values{
		"title": "abcd",
		"body":  "xyz",
		"pages": "1",
		"mode":  "medium",
		"agree": false,
		"opt":   "",
	})

	assert.Equal(t, map[string]string{
		"title": "Title must be less than 3 characters",
		"body":  "Body must be less than 2 characters",
		"pages": "Pages must be at least 2",
		"mode":  "Mode must be one of: fast, slow",
		"agree": "Agree is required",
	}, errs)
}

func TestValidateInputsRequiredStopsOtherChecks(t *testing.T) {
	s := mustParse(t, `{"properties":{"n":{"type":"number","title":"N","required":true,"min":5}}}`)

	errs := ValidateInputs(s, Values{"n": "   "})
	assert.Equal(t, "N is required", errs["n"])

	errs = ValidateInputs(s, Values{"n": 0})
	assert.Equal(t, "N must be at least 5", errs["n"])
}

func TestValidateInputsNilSchema(t *testing.T) {
	assert.Empty(t, ValidateInputs(nil, Values{"a": 1}))
}

func TestDefaults(t *testing.T) {
	s := mustParse(t, `{"properties":{
		"a":{"type":"string","default":"x"},
		"b":{"type":"number"},
		"c":{"type":"boolean","default":true},
		"d":{"type":"string","default":null}
	}}`)

	assert.Equal(t, Values{"a": "x", "b": "", "c": true, "d": ""}, Defaults(s))
	assert.Equal(t, Values{}, Defaults(nil))
}

func TestMissingRequired(t *testing.T) {
	s := mustParse(t, `{"properties":{
		"a":{"type":"string","required":true},
		"b":{"type":"string","required":true},
		"c":{"type":"string"}
	}}`)

	assert.Equal(t, []string{"a", "b"}, MissingRequired(s, Values{"a": " ", "c": ""}))
	assert.Empty(t, MissingRequired(s, Values{"a": "1", "b": "2"}))
}

func TestPayload(t *testing.T) {
	s := mustParse(t, `{"properties":{
		"q":{"type":"string"},
		"n":{"type":"number"},
		"f":{"type":"boolean"}
	}}`)

	got := Payload(s, Values{"q": "", "n": "", "f": true, "x": nil})
	assert.Equal(t, map[string]any{"q": "", "f": true}, got)
}

func TestRender(t *testing.T) {
	s := mustParse(t, `{"properties":{"b":{"type":"boolean"},"a":{"type":"string"}}}`)

	controls := Render(s, Defaults(s))
	require.Len(t, controls, 2)
	assert.Equal(t, "b", controls[0].Name)
	assert.Equal(t, false, controls[0].Value)
	assert.Equal(t, "a", controls[1].Name)
	assert.Nil(t, Render(nil, nil))
}
