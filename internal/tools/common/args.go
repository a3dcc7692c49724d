package common

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/teemow/cozictl/internal/cozi"
)

// StringArg returns args[name] when it is a non-empty string.
func StringArg(args map[string]any, name string) (string, bool) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// RequiredString returns args[name] or an error naming the missing parameter.
func RequiredString(args map[string]any, name string) (string, error) {
	v, ok := StringArg(args, name)
	if !ok {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

// BoolArg returns args[name] as a bool, falling back to def. The strings
// accepted by strconv.ParseBool are honoured too.
func BoolArg(args map[string]any, name string, def bool) bool {
	switch v := args[name].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// IntArg returns args[name] as an int. JSON numbers arrive as float64 and
// must be whole.
func IntArg(args map[string]any, name string) (int, bool, error) {
	raw, present := args[name]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, true, fmt.Errorf("%s must be a whole number", name)
		}
		return int(v), true, nil
	case int:
		return v, true, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, true, fmt.Errorf("%s must be a number", name)
		}
		return n, true, nil
	default:
		return 0, true, fmt.Errorf("%s must be a number", name)
	}
}

// DateArg parses args[name] as a calendar day (YYYY-MM-DD). A missing value
// yields def.
func DateArg(args map[string]any, name string, def time.Time) (time.Time, error) {
	s, ok := StringArg(args, name)
	if !ok {
		return def, nil
	}
	d, ok := cozi.ParseDay(s)
	if !ok {
		return time.Time{}, fmt.Errorf("%s must be a date in YYYY-MM-DD format, got %q", name, s)
	}
	return d, nil
}
