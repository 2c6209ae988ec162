package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var leadingNumber = regexp.MustCompile(`-?\d+(\.\d+)?`)

// asString accepts strings and scalars; arrays are joined.
func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case []any:
		parts := asStrings(t)
		return strings.Join(parts, "; "), len(parts) > 0
	}
	return "", false
}

// asStrings coerces a value into a non-nil string slice: arrays keep their
// scalar elements, a lone string becomes a one-element slice.
func asStrings(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			switch item.(type) {
			case string, float64, bool:
				if s, _ := asString(item); s != "" {
					out = append(out, s)
				}
			}
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// asNumber accepts numbers and strings starting with one ("18 psi").
func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case string:
		m := leadingNumber.FindString(t)
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(m, 64)
		return f, err == nil
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
	case float64:
		return t != 0, true
	}
	return false, false
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// enumValue matches v against allowed after canonicalizing case and separators.
func enumValue(v any, allowed []string, fallback string) string {
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	key := canonicalEnum(s)
	for _, a := range allowed {
		if canonicalEnum(a) == key {
			return a
		}
	}
	return fallback
}

func canonicalEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// nonNegative clamps a parsed number at zero.
func nonNegative(v any) float64 {
	f, ok := asNumber(v)
	if !ok || f < 0 {
		return 0
	}
	return f
}

// rawText renders any JSON value back to text, for fields that may come back
// as nested objects instead of strings.
func rawText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
