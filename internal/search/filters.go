package search

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FilterRequest is the flat parameter mapping of one search call. Values may
// be strings, numbers, booleans, string lists or comma separated strings.
// Malformed values read as absent.
type FilterRequest map[string]any

// pagingKeys are carried separately from the filters.
var pagingKeys = map[string]bool{"page": true, "per_page": true}

// String returns the trimmed textual form of key, "" when absent.
func (f FilterRequest) String(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case []string:
		return strings.TrimSpace(strings.Join(v, ","))
	case []any:
		return strings.Join(f.List(key), ",")
	}
	return ""
}

// Has reports whether key carries a non-empty value.
func (f FilterRequest) Has(key string) bool {
	switch v := f[key].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []string:
		return len(v) > 0
	case []any:
		return len(v) > 0
	}
	return true
}

// Float parses key as a finite number.
func (f FilterRequest) Float(key string) (float64, bool) {
	var (
		n   float64
		err error
	)
	switch v := f[key].(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		n, err = v.Float64()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		n, err = strconv.ParseFloat(s, 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// Int parses key as a whole number. Fractions are truncated.
func (f FilterRequest) Int(key string) (int, bool) {
	n, ok := f.Float(key)
	if !ok || n > math.MaxInt32 || n < math.MinInt32 {
		return 0, false
	}
	return int(n), true
}

// Bool reads key as a flag: true, 1, yes, on and nonzero numbers are set.
func (f FilterRequest) Bool(key string) bool {
	switch v := f[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		}
		return false
	}
	n, ok := f.Float(key)
	return ok && n != 0
}

// List splits key into trimmed, non-empty, deduplicated items.
func (f FilterRequest) List(key string) []string {
	var raw []string
	switch v := f[key].(type) {
	case string:
		raw = strings.Split(v, ",")
	case []string:
		for _, s := range v {
			raw = append(raw, strings.Split(s, ",")...)
		}
	case []any:
		for _, el := range v {
			raw = append(raw, strings.Split(FilterRequest{"v": el}.String("v"), ",")...)
		}
	default:
		if s := f.String(key); s != "" {
			raw = []string{s}
		}
	}

	seen := make(map[string]bool, len(raw))
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// normalized drops empty values, paging keys and keys padded with whitespace,
// which the builder never reads. String values are trimmed.
func (f FilterRequest) normalized() map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		if k == "" || k != strings.TrimSpace(k) || pagingKeys[k] || !f.Has(k) {
			continue
		}
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		out[k] = v
	}
	return out
}
