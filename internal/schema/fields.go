package schema

import "sort"

// FieldType represents the data type of an import field
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeNumber    FieldType = "number"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeDate      FieldType = "date"
	FieldTypeSelect    FieldType = "select"
	FieldTypeReference FieldType = "reference"
)

// FieldFormat marks identifier-like fields whose raw input carries
// formatting characters (dots, dashes, slashes, spaces) that must be
// stripped before validation and submission.
type FieldFormat string

const (
	FieldFormatNone       FieldFormat = ""
	FieldFormatTaxID      FieldFormat = "taxId"
	FieldFormatPhone      FieldFormat = "phone"
	FieldFormatPostalCode FieldFormat = "postalCode"
)

// FieldDescriptor describes one column of an entity's import schema.
// Descriptors are supplied by a Provider and treated as immutable by
// everything downstream.
type FieldDescriptor struct {
	Key             string      `json:"key"`
	Label           string      `json:"label"`
	Type            FieldType   `json:"type"`
	Format          FieldFormat `json:"format,omitempty"`
	Required        bool        `json:"required"`
	Enabled         bool        `json:"enabled"`
	Order           int         `json:"order"`
	DefaultValue    string      `json:"defaultValue,omitempty"`
	Options         []string    `json:"options,omitempty"`
	ReferenceEntity string      `json:"referenceEntity,omitempty"`
	Min             *float64    `json:"min,omitempty"`
	Max             *float64    `json:"max,omitempty"`
	MinLength       *int        `json:"minLength,omitempty"`
	MaxLength       *int        `json:"maxLength,omitempty"`
	Pattern         string      `json:"pattern,omitempty"`
	PatternMessage  string      `json:"patternMessage,omitempty"`
	Description     string      `json:"description,omitempty"`
	Example         string      `json:"example,omitempty"`
}

// EnabledFields returns the enabled descriptors sorted by Order.
// Order values need not be contiguous; ties keep the input order so the
// result is stable across calls with the same snapshot.
func EnabledFields(fields []FieldDescriptor) []FieldDescriptor {
	enabled := make([]FieldDescriptor, 0, len(fields))
	for _, f := range fields {
		if f.Enabled {
			enabled = append(enabled, f)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Order < enabled[j].Order
	})
	return enabled
}

// FieldByKey looks up a descriptor by key. Returns false when absent.
func FieldByKey(fields []FieldDescriptor, key string) (FieldDescriptor, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}
