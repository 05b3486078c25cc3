package tools

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/MrWong99/julesmcp/internal/render"
)

// Pagination bounds shared by every list tool.
const (
	DefaultPageSize = 20
	MinPageSize     = 1
	MaxPageSize     = 100
)

// Object builds an object schema from its properties. required lists the
// property names that must be present.
func Object(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// String is a plain string property.
func String(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

// NonEmptyString is a string property that rejects "".
func NonEmptyString(description string) *jsonschema.Schema {
	one := 1
	return &jsonschema.Schema{Type: "string", Description: description, MinLength: &one}
}

// StringDefault is a string property with a default value.
func StringDefault(description, def string) *jsonschema.Schema {
	s := String(description)
	s.Default = mustJSON(def)
	return s
}

// Enum is a string property restricted to values, defaulting to def.
func Enum(description, def string, values ...any) *jsonschema.Schema {
	s := StringDefault(description, def)
	s.Enum = values
	return s
}

// BoolDefault is a boolean property with a default value.
func BoolDefault(description string, def bool) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: description, Default: mustJSON(def)}
}

// PageSize is the integer page-size property, bounded to
// [MinPageSize, MaxPageSize] with [DefaultPageSize] as default.
func PageSize() *jsonschema.Schema {
	lo, hi := float64(MinPageSize), float64(MaxPageSize)
	return &jsonschema.Schema{
		Type:        "integer",
		Description: "Maximum results to return",
		Minimum:     &lo,
		Maximum:     &hi,
		Default:     mustJSON(DefaultPageSize),
	}
}

// PageToken is the optional continuation token property.
func PageToken() *jsonschema.Schema {
	return String("Page token for retrieving the next page")
}

// ResponseFormat is the markdown/json selector shared by every tool.
func ResponseFormat() *jsonschema.Schema {
	return Enum("Output format: 'markdown' or 'json'",
		string(render.FormatMarkdown), render.Formats()...)
}

// Paginated is the input of list tools.
type Paginated struct {
	PageSize       int           `json:"pageSize"`
	PageToken      string        `json:"pageToken,omitempty"`
	ResponseFormat render.Format `json:"response_format"`
}

// PaginatedSchema is the input schema for [Paginated].
func PaginatedSchema() *jsonschema.Schema {
	return Object(map[string]*jsonschema.Schema{
		"pageSize":        PageSize(),
		"pageToken":       PageToken(),
		"response_format": ResponseFormat(),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
