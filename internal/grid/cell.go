package grid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"import-service/internal/schema"
)

// ValidationError describes one (row, field) constraint violation.
// Row is 1-based for display; Column is the zero-based index of the field
// within the enabled-field display order.
type ValidationError struct {
	Row     int    `json:"row"`
	Column  int    `json:"column"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult aggregates a full validation pass over the grid.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	TotalRows int               `json:"totalRows"`
	Errors    []ValidationError `json:"errors"`
}

// CoerceOptions control locale-sensitive parsing.
type CoerceOptions struct {
	// DecimalComma treats comma as the decimal separator and dot as a
	// thousands separator. The dashboard's target locale writes 10,50
	// for ten and a half.
	DecimalComma bool
}

var nonDigits = regexp.MustCompile(`\D`)

// DigitsOnly strips every non-digit character from an identifier-like
// value (tax IDs, phone numbers, postal codes).
func DigitsOnly(raw string) string {
	return nonDigits.ReplaceAllString(raw, "")
}

var truthyTokens = map[string]bool{
	"true": true, "yes": true, "y": true, "1": true, "sim": true, "s": true, "ativo": true,
	"false": false, "no": false, "n": false, "0": false, "nao": false, "não": false, "inativo": false,
}

// Coerce normalizes a raw cell string into the typed value the field
// descriptor calls for. It never fails: values that cannot be parsed are
// returned as trimmed strings and left for ValidateValue to reject.
func Coerce(raw string, field schema.FieldDescriptor, opts CoerceOptions) interface{} {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}

	if field.Format != schema.FieldFormatNone {
		return DigitsOnly(value)
	}

	switch field.Type {
	case schema.FieldTypeNumber:
		if n, err := parseNumber(value, opts); err == nil {
			return n
		}
		return value
	case schema.FieldTypeBoolean:
		if b, ok := truthyTokens[strings.ToLower(value)]; ok {
			return b
		}
		return value
	default:
		// text, date, select and reference values stay as normalized strings
		return value
	}
}

// parseNumber parses a decimal honoring the configured separator.
func parseNumber(value string, opts CoerceOptions) (float64, error) {
	s := strings.ReplaceAll(value, " ", "")
	if opts.DecimalComma {
		// 1.234,56 -> 1234.56
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	return strconv.ParseFloat(s, 64)
}

// ValidateValue checks a coerced value against the field's constraints.
// A nil return means the value is acceptable. Errors come back as values,
// never panics, so callers can aggregate across an entire grid. Row and
// Column are left zeroed for the grid to fill in.
func ValidateValue(value interface{}, field schema.FieldDescriptor) *ValidationError {
	empty := isEmptyValue(value)

	if empty {
		if field.Required {
			return &ValidationError{Field: field.Key, Message: fmt.Sprintf("%s is required", field.Label)}
		}
		return nil
	}

	switch field.Type {
	case schema.FieldTypeNumber:
		n, ok := value.(float64)
		if !ok {
			return &ValidationError{Field: field.Key, Message: fmt.Sprintf("%s must be a number", field.Label)}
		}
		if field.Min != nil && n < *field.Min {
			return &ValidationError{Field: field.Key, Message: fmt.Sprintf("%s must be at least %v", field.Label, *field.Min)}
		}
		if field.Max != nil && n > *field.Max {
			return &ValidationError{Field: field.Key, Message: fmt.Sprintf("%s must be at most %v", field.Label, *field.Max)}
		}
		return nil

	case schema.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return &ValidationError{Field: field.Key, Message: fmt.Sprintf("%s must be true or false", field.Label)}
		}
		return nil

	case schema.FieldTypeSelect:
		s, _ := value.(string)
		for _, opt := range field.Options {
			if strings.EqualFold(s, opt) {
				return nil
			}
		}
		return &ValidationError{Field: field.Key, Message: fmt.Sprintf("%s must be one of: %s", field.Label, strings.Join(field.Options, ", "))}
	}

	// string-backed types: text, date, reference, formatted identifiers
	s, ok := value.(string)
	if !ok {
		return nil
	}

	if field.MinLength != nil && len(s) < *field.MinLength {
		return &ValidationError{Field: field.Key, Message: fmt.Sprintf("%s must have at least %d characters", field.Label, *field.MinLength)}
	}
	if field.MaxLength != nil && len(s) > *field.MaxLength {
		return &ValidationError{Field: field.Key, Message: fmt.Sprintf("%s must have at most %d characters", field.Label, *field.MaxLength)}
	}
	if field.Pattern != "" {
		re, err := regexp.Compile(field.Pattern)
		if err == nil && !re.MatchString(s) {
			msg := field.PatternMessage
			if msg == "" {
				msg = fmt.Sprintf("%s has an invalid format", field.Label)
			}
			return &ValidationError{Field: field.Key, Message: msg}
		}
	}

	return nil
}

func isEmptyValue(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
