// Package extractor provides tolerant value extraction from semi-structured
// payload documents. A missing field is never an error; it returns nil so the
// caller can carry the absence forward.
package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Extractor handles extracting values from nested data structures
type Extractor struct{}

// New creates a new Extractor
func New() *Extractor {
	return &Extractor{}
}

// Extract extracts a value from data using a JSONPath-like expression
// Supported syntax:
// - Simple path: "storeId", "totals.totalAmount"
// - Array access: "items[0]", "items[2].brandName"
func (e *Extractor) Extract(data any, path string) (any, error) {
	if path == "" {
		return data, nil
	}

	parts := parsePath(path)
	current := data

	for _, part := range parts {
		var err error
		current, err = e.extractPart(current, part)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, nil
		}
	}

	return current, nil
}

// ExtractString extracts a value and converts it to a string. Empty strings
// are treated as absent.
func (e *Extractor) ExtractString(data any, path string) *string {
	value, err := e.Extract(data, path)
	if err != nil || value == nil {
		return nil
	}

	s := strings.TrimSpace(toString(value))
	if s == "" {
		return nil
	}
	return &s
}

// ExtractFirstString returns the first non-nil string among the given paths.
// Used for fields that appear under multiple historical names.
func (e *Extractor) ExtractFirstString(data any, paths ...string) *string {
	for _, path := range paths {
		if s := e.ExtractString(data, path); s != nil {
			return s
		}
	}
	return nil
}

// ExtractFloat extracts a numeric value. Numeric strings are parsed so that
// payloads serializing amounts as text still resolve.
func (e *Extractor) ExtractFloat(data any, path string) *float64 {
	value, err := e.Extract(data, path)
	if err != nil || value == nil {
		return nil
	}

	switch v := value.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return &f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return &f
		}
	}
	return nil
}

// ExtractInt extracts an integer value, truncating floats.
func (e *Extractor) ExtractInt(data any, path string) *int {
	f := e.ExtractFloat(data, path)
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}

// ExtractBool extracts a boolean value. Accepts "true"/"false" strings.
func (e *Extractor) ExtractBool(data any, path string) *bool {
	value, err := e.Extract(data, path)
	if err != nil || value == nil {
		return nil
	}

	switch v := value.(type) {
	case bool:
		return &v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return &b
		}
	}
	return nil
}

// ExtractTime extracts a timestamp. RFC3339 is tried first, then the common
// bare formats seen in device payloads.
func (e *Extractor) ExtractTime(data any, path string) *time.Time {
	s := e.ExtractString(data, path)
	if s == nil {
		return nil
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, *s); err == nil {
			t = t.UTC()
			return &t
		}
	}

	// Unix seconds as a number or numeric string
	if f := e.ExtractFloat(data, path); f != nil && *f > 1e9 {
		t := time.Unix(int64(*f), 0).UTC()
		return &t
	}
	return nil
}

// ExtractArray extracts an array value.
func (e *Extractor) ExtractArray(data any, path string) []any {
	value, err := e.Extract(data, path)
	if err != nil || value == nil {
		return nil
	}
	arr, ok := toArray(value)
	if !ok {
		return nil
	}
	return arr
}

// pathPart represents a parsed path segment
type pathPart struct {
	key        string
	isArray    bool
	arrayIndex int
}

// parsePath parses a JSONPath-like expression into parts
func parsePath(path string) []pathPart {
	var parts []pathPart

	segments := splitPath(path)
	for _, seg := range segments {
		part := pathPart{key: seg}

		if idx := strings.Index(seg, "["); idx != -1 {
			part.key = seg[:idx]
			indexPart := seg[idx+1 : len(seg)-1]

			if i, err := strconv.Atoi(indexPart); err == nil {
				part.isArray = true
				part.arrayIndex = i
			}
		}

		parts = append(parts, part)
	}

	return parts
}

// splitPath splits a dot-notation path, respecting array brackets
func splitPath(path string) []string {
	var parts []string
	var current strings.Builder

	inBracket := false
	for _, c := range path {
		switch c {
		case '[':
			inBracket = true
			current.WriteRune(c)
		case ']':
			inBracket = false
			current.WriteRune(c)
		case '.':
			if !inBracket {
				if current.Len() > 0 {
					parts = append(parts, current.String())
					current.Reset()
				}
			} else {
				current.WriteRune(c)
			}
		default:
			current.WriteRune(c)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}

// extractPart extracts a value for a single path part
func (e *Extractor) extractPart(data any, part pathPart) (any, error) {
	var value any = data

	if part.key != "" {
		switch v := data.(type) {
		case map[string]any:
			val, ok := v[part.key]
			if !ok {
				return nil, nil
			}
			value = val
		case map[string]string:
			val, ok := v[part.key]
			if !ok {
				return nil, nil
			}
			value = val
		default:
			return nil, fmt.Errorf("cannot extract key %q from type %T", part.key, data)
		}
	}

	if part.isArray {
		arr, ok := toArray(value)
		if !ok {
			return nil, fmt.Errorf("expected array for index access, got %T", value)
		}
		if part.arrayIndex < 0 || part.arrayIndex >= len(arr) {
			return nil, nil
		}
		return arr[part.arrayIndex], nil
	}

	return value, nil
}

// toArray converts a value to an array
func toArray(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []map[string]any:
		result := make([]any, len(arr))
		for i, m := range arr {
			result[i] = m
		}
		return result, true
	default:
		return nil, false
	}
}

// toString converts any value to a string
func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// FromJSON parses JSON data and returns it as a map
func FromJSON(data json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
