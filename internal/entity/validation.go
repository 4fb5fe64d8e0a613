package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DataValidationError reports a mapping that cannot populate a record.
type DataValidationError struct {
	Field   string
	Message string
}

// Error satisfies the error interface.
func (e *DataValidationError) Error() string {
	return e.Message
}

// within qualifies the field with the path of the record that holds it, e.g. "items[2]".
func (e *DataValidationError) within(path string) *DataValidationError {
	if e.Field == "" {
		return &DataValidationError{Field: path, Message: e.Message}
	}
	field := path + "." + e.Field
	message := e.Message
	if at := strings.LastIndex(message, e.Field); at >= 0 {
		message = message[:at] + field + message[at+len(e.Field):]
	}
	return &DataValidationError{Field: field, Message: message}
}

func missingField(record, field string) *DataValidationError {
	return &DataValidationError{Field: field, Message: fmt.Sprintf("Invalid %s: missing %s", record, field)}
}

func badData(record, field, reason string) *DataValidationError {
	return &DataValidationError{
		Field:   field,
		Message: fmt.Sprintf("Invalid %s: body of request contained bad or no data: %s %s", record, field, reason),
	}
}

func invalidAttribute(field string) *DataValidationError {
	return &DataValidationError{Field: field, Message: "Invalid attribute: " + field}
}

var validate = newValidator()

// newValidator reports struct fields by their column name so errors match mapping keys.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("bun"), ",")
		if name == "" || strings.Contains(name, ":") {
			return f.Name
		}
		return name
	})
	return v
}

func validateRecord(record string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &DataValidationError{Message: fmt.Sprintf("Invalid %s: %v", record, err)}
	}
	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return badData(record, field, "must not be empty")
	case "max":
		return badData(record, field, fmt.Sprintf("must be at most %s characters", fe.Param()))
	case "gte":
		return badData(record, field, "must be at least "+fe.Param())
	default:
		return badData(record, field, "failed "+fe.Tag()+" check")
	}
}

func rejectUnknown(data map[string]any, allowed map[string]struct{}) error {
	var unknown []string
	for key := range data {
		if _, ok := allowed[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return invalidAttribute(unknown[0])
}

func requiredString(record string, data map[string]any, key string) (string, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return "", missingField(record, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", badData(record, key, fmt.Sprintf("must be a string, got %T", raw))
	}
	return s, nil
}

func requiredInt(record string, data map[string]any, key string) (int64, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return 0, missingField(record, key)
	}
	return intValue(record, key, raw)
}

// optionalInt treats an absent or null key as zero.
func optionalInt(record string, data map[string]any, key string) (int64, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return 0, nil
	}
	return intValue(record, key, raw)
}

func requiredDate(record string, data map[string]any, key string) (Date, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return Date{}, missingField(record, key)
	}
	s, ok := raw.(string)
	if !ok {
		return Date{}, badData(record, key, fmt.Sprintf("must be an ISO-8601 date string, got %T", raw))
	}
	d, err := ParseDate(s)
	if err != nil {
		return Date{}, badData(record, key, fmt.Sprintf("must be an ISO-8601 date, got %q", s))
	}
	return d, nil
}

func requiredFloat(record string, data map[string]any, key string) (float64, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return 0, missingField(record, key)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, badData(record, key, "must be a number")
		}
		return f, nil
	}
	if n, ok := integer(raw); ok {
		return float64(n), nil
	}
	return 0, badData(record, key, fmt.Sprintf("must be a number, got %T", raw))
}

func intValue(record, key string, raw any) (int64, error) {
	if n, ok := integer(raw); ok {
		return n, nil
	}
	switch v := raw.(type) {
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return int64(v), nil
		}
		return 0, badData(record, key, "must be a whole number")
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, badData(record, key, "must be a whole number")
		}
		return n, nil
	}
	return 0, badData(record, key, fmt.Sprintf("must be an integer, got %T", raw))
}

func integer(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	}
	return 0, false
}
