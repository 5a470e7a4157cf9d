package provider

import "fmt"

// Attribute maps arrive as JSON-compatible Go values (strings, float64
// numbers, []any, map[string]any). These helpers do the coercion every
// provider needs, tolerating absent keys.

// String returns the attribute as a string, or "" when absent.
func String(attrs map[string]any, key string) string {
	v, ok := attrs[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Int returns the attribute as an int, or 0 when absent.
func Int(attrs map[string]any, key string) int {
	switch v := attrs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Bool returns the attribute as a bool, or false when absent.
func Bool(attrs map[string]any, key string) bool {
	b, _ := attrs[key].(bool)
	return b
}

// StringSlice returns the attribute as a []string, or nil when absent.
func StringSlice(attrs map[string]any, key string) []string {
	list, ok := attrs[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprintf("%v", e))
		}
	}
	return out
}

// StringMap returns the attribute as a map[string]string, or nil when
// absent. Non-string values are stringified.
func StringMap(attrs map[string]any, key string) map[string]string {
	m, ok := attrs[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
