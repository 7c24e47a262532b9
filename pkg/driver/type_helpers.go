package driver

import (
	"fmt"
)

// TypeConversionError represents an error during type conversion from database types.
type TypeConversionError struct {
	Expected string
	Actual   string
	Field    string
}

func (e *TypeConversionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("type conversion error for field %q: expected %s, got %s", e.Field, e.Expected, e.Actual)
	}
	return fmt.Sprintf("type conversion error: expected %s, got %s", e.Expected, e.Actual)
}

// Is lets errors.Is match conversion failures against ErrMalformedResponse.
func (e *TypeConversionError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// MustString converts a value to string or returns an error.
func MustString(v any, field string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &TypeConversionError{Expected: "string", Actual: fmt.Sprintf("%T", v), Field: field}
	}
	return s, nil
}

// rowStrings extracts string columns from a row map.
func rowStrings(row map[string]any, keys ...string) ([]string, error) {
	out := make([]string, len(keys))
	for i, k := range keys {
		s, err := MustString(row[k], k)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
