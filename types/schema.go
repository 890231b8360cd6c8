package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaType represents JSON Schema types.
type SchemaType string

const (
	SchemaTypeString  SchemaType = "string"
	SchemaTypeNumber  SchemaType = "number"
	SchemaTypeInteger SchemaType = "integer"
	SchemaTypeBoolean SchemaType = "boolean"
	SchemaTypeObject  SchemaType = "object"
	SchemaTypeArray   SchemaType = "array"
)

// JSONSchema represents a JSON Schema definition. Tasks use it as an input
// contract for loosely-typed (map) payloads.
type JSONSchema struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	Type SchemaType `json:"type,omitempty"`

	// Object properties
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`

	// Array items
	Items *JSONSchema `json:"items,omitempty"`

	// Enum
	Enum []any `json:"enum,omitempty"`

	// String constraints
	MinLength *int `json:"minLength,omitempty"`
	MaxLength *int `json:"maxLength,omitempty"`

	// Numeric constraints
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	// Default value, filled in for missing optional properties.
	Default any `json:"default,omitempty"`
}

// NewObjectSchema creates a new object schema.
func NewObjectSchema() *JSONSchema {
	return &JSONSchema{
		Type:       SchemaTypeObject,
		Properties: make(map[string]*JSONSchema),
	}
}

// NewArraySchema creates a new array schema.
func NewArraySchema(items *JSONSchema) *JSONSchema {
	return &JSONSchema{
		Type:  SchemaTypeArray,
		Items: items,
	}
}

// NewStringSchema creates a new string schema.
func NewStringSchema() *JSONSchema {
	return &JSONSchema{Type: SchemaTypeString}
}

// NewNumberSchema creates a new number schema.
func NewNumberSchema() *JSONSchema {
	return &JSONSchema{Type: SchemaTypeNumber}
}

// NewIntegerSchema creates a new integer schema.
func NewIntegerSchema() *JSONSchema {
	return &JSONSchema{Type: SchemaTypeInteger}
}

// NewBooleanSchema creates a new boolean schema.
func NewBooleanSchema() *JSONSchema {
	return &JSONSchema{Type: SchemaTypeBoolean}
}

// AddProperty adds a property to an object schema.
func (s *JSONSchema) AddProperty(name string, prop *JSONSchema) *JSONSchema {
	if s.Properties == nil {
		s.Properties = make(map[string]*JSONSchema)
	}
	s.Properties[name] = prop
	return s
}

// AddRequired adds required field names.
func (s *JSONSchema) AddRequired(names ...string) *JSONSchema {
	s.Required = append(s.Required, names...)
	return s
}

// WithDescription sets the description.
func (s *JSONSchema) WithDescription(desc string) *JSONSchema {
	s.Description = desc
	return s
}

// WithDefault sets the default value.
func (s *JSONSchema) WithDefault(v any) *JSONSchema {
	s.Default = v
	return s
}

// ToJSON serializes the schema to JSON.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// FromJSON deserializes a schema from JSON.
func FromJSON(data []byte) (*JSONSchema, error) {
	var schema JSONSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON schema: %w", err)
	}
	return &schema, nil
}

// Validate checks a loosely-typed mapping against an object schema and
// returns a coerced copy: JSON-decoded numbers are normalized (integral
// float64 becomes int for integer properties), defaults are filled in for
// missing optional properties, and the input map is left untouched.
// On mismatch it returns a non-retryable VALIDATION error listing every
// violation.
func (s *JSONSchema) Validate(value map[string]any) (map[string]any, error) {
	var violations []string
	out := make(map[string]any, len(value))

	for _, name := range s.Required {
		if _, ok := value[name]; !ok {
			violations = append(violations, fmt.Sprintf("%s: required property missing", name))
		}
	}

	for name, v := range value {
		prop, ok := s.Properties[name]
		if !ok {
			if s.AdditionalProperties != nil && !*s.AdditionalProperties {
				violations = append(violations, fmt.Sprintf("%s: unknown property", name))
				continue
			}
			out[name] = v
			continue
		}
		coerced, errs := coerceValue(name, prop, v)
		if len(errs) > 0 {
			violations = append(violations, errs...)
			continue
		}
		out[name] = coerced
	}

	for name, prop := range s.Properties {
		if _, ok := out[name]; !ok && prop.Default != nil {
			out[name] = prop.Default
		}
	}

	if len(violations) > 0 {
		return nil, NewValidationError("input contract violated: %s", strings.Join(violations, "; "))
	}
	return out, nil
}

func coerceValue(path string, s *JSONSchema, v any) (any, []string) {
	if len(s.Enum) > 0 {
		for _, allowed := range s.Enum {
			if v == allowed {
				return v, nil
			}
		}
		return nil, []string{fmt.Sprintf("%s: value not in enum", path)}
	}

	switch s.Type {
	case SchemaTypeString:
		str, ok := v.(string)
		if !ok {
			return nil, []string{fmt.Sprintf("%s: expected string, got %T", path, v)}
		}
		if s.MinLength != nil && len(str) < *s.MinLength {
			return nil, []string{fmt.Sprintf("%s: shorter than minLength %d", path, *s.MinLength)}
		}
		if s.MaxLength != nil && len(str) > *s.MaxLength {
			return nil, []string{fmt.Sprintf("%s: longer than maxLength %d", path, *s.MaxLength)}
		}
		return str, nil

	case SchemaTypeInteger:
		i, ok := asInteger(v)
		if !ok {
			return nil, []string{fmt.Sprintf("%s: expected integer, got %T", path, v)}
		}
		if errs := checkBounds(path, s, float64(i)); errs != nil {
			return nil, errs
		}
		return i, nil

	case SchemaTypeNumber:
		f, ok := asNumber(v)
		if !ok {
			return nil, []string{fmt.Sprintf("%s: expected number, got %T", path, v)}
		}
		if errs := checkBounds(path, s, f); errs != nil {
			return nil, errs
		}
		return f, nil

	case SchemaTypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, []string{fmt.Sprintf("%s: expected boolean, got %T", path, v)}
		}
		return b, nil

	case SchemaTypeObject:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, []string{fmt.Sprintf("%s: expected object, got %T", path, v)}
		}
		nested, err := s.Validate(m)
		if err != nil {
			return nil, []string{fmt.Sprintf("%s: %v", path, err)}
		}
		return nested, nil

	case SchemaTypeArray:
		items, ok := v.([]any)
		if !ok {
			return nil, []string{fmt.Sprintf("%s: expected array, got %T", path, v)}
		}
		if s.Items == nil {
			return items, nil
		}
		coerced := make([]any, len(items))
		var errs []string
		for i, item := range items {
			c, e := coerceValue(fmt.Sprintf("%s[%d]", path, i), s.Items, item)
			if len(e) > 0 {
				errs = append(errs, e...)
				continue
			}
			coerced[i] = c
		}
		if len(errs) > 0 {
			return nil, errs
		}
		return coerced, nil
	}

	// No type declared: accept as-is.
	return v, nil
}

func asInteger(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

func checkBounds(path string, s *JSONSchema, f float64) []string {
	if s.Minimum != nil && f < *s.Minimum {
		return []string{fmt.Sprintf("%s: below minimum %v", path, *s.Minimum)}
	}
	if s.Maximum != nil && f > *s.Maximum {
		return []string{fmt.Sprintf("%s: above maximum %v", path, *s.Maximum)}
	}
	return nil
}
