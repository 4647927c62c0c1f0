package base

import (
	"github.com/custodia-labs/datascanner/internal/core/domain"
)

// String returns the required string field key of obj.
func String(obj map[string]any, key, label string) (string, error) {
	s, ok := obj[key].(string)
	if !ok {
		return "", &domain.DeserialisationError{Type: label, Property: key}
	}
	return s, nil
}

// OptString returns the string field key of obj, or "".
func OptString(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// Object returns the required object field key of obj.
func Object(obj map[string]any, key, label string) (map[string]any, error) {
	o, ok := obj[key].(map[string]any)
	if !ok {
		return nil, &domain.DeserialisationError{Type: label, Property: key}
	}
	return o, nil
}

// OptBool returns the boolean field key of obj, or false.
func OptBool(obj map[string]any, key string) bool {
	b, _ := obj[key].(bool)
	return b
}

// OptInt returns the numeric field key of obj as an int, or def.
func OptInt(obj map[string]any, key string, def int) int {
	switch v := obj[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

// OptStrings returns the string list field key of obj.
func OptStrings(obj map[string]any, key string) []string {
	switch v := obj[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SetIf sets obj[key] to v unless v is the zero string.
func SetIf(obj map[string]any, key, v string) {
	if v != "" {
		obj[key] = v
	}
}
