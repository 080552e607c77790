package tools

import (
	"fmt"
	"math"
	"time"
)

// RequireString extracts a required, non-empty string parameter.
func RequireString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string, got %T", key, v)
	}
	if s == "" {
		return "", fmt.Errorf("parameter %s must not be empty", key)
	}
	return s, nil
}

// OptionalString returns a string parameter, or "" when absent.
func OptionalString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string, got %T", key, v)
	}
	return s, nil
}

// OptionalBool returns a boolean parameter, or false when absent.
func OptionalBool(params map[string]any, key string) (bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %s must be a boolean, got %T", key, v)
	}
	return b, nil
}

// OptionalInt returns an integer parameter, or 0 when absent. JSON numbers
// arrive as float64 and must be whole.
func OptionalInt(params map[string]any, key string) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("parameter %s must be an integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("parameter %s must be a number, got %T", key, v)
	}
}

// OptionalSeconds reads a timeout given in seconds. Zero or absent means
// the default.
func OptionalSeconds(params map[string]any, key string) (time.Duration, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, nil
	}
	var secs float64
	switch n := v.(type) {
	case int:
		secs = float64(n)
	case float64:
		secs = n
	default:
		return 0, fmt.Errorf("parameter %s must be a number of seconds, got %T", key, v)
	}
	if secs < 0 {
		return 0, fmt.Errorf("parameter %s must not be negative", key)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// StringSlice reads an array of strings.
func StringSlice(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch raw := v.(type) {
	case []string:
		return raw, nil
	case []any:
		out := make([]string, 0, len(raw))
		for i, item := range raw {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %s[%d] must be a string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %s must be an array of strings, got %T", key, v)
	}
}

// StringMap reads an object whose values are all strings.
func StringMap(params map[string]any, key string) (map[string]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch raw := v.(type) {
	case map[string]string:
		return raw, nil
	case map[string]any:
		out := make(map[string]string, len(raw))
		for k, item := range raw {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %s.%s must be a string, got %T", key, k, item)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %s must be an object, got %T", key, v)
	}
}
