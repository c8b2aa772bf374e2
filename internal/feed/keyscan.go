// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package feed

import (
	"strconv"
	"strings"
)

// propertyIndex is a case-folded view of one feature's property bag. Lookups
// walk the candidate list in priority order, so the first matching candidate
// always wins regardless of the upstream's key casing or the bag's iteration
// order.
type propertyIndex map[string]any

// newPropertyIndex lowercases every key of props. When two keys fold to the
// same name the later one wins; municipal schemas do not mix casings of the
// same field in practice.
func newPropertyIndex(props map[string]any) propertyIndex {
	idx := make(propertyIndex, len(props))
	for k, v := range props {
		idx[strings.ToLower(k)] = v
	}
	return idx
}

// findString returns the first candidate whose value is a non-empty string.
func (idx propertyIndex) findString(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if s, ok := idx[c].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// findHTTPURL returns the first candidate whose value is a string starting
// with "http". Non-URL strings (flags, notes, placeholder text) are skipped.
func (idx propertyIndex) findHTTPURL(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if s, ok := idx[c].(string); ok {
			s = strings.TrimSpace(s)
			if strings.HasPrefix(strings.ToLower(s), "http") {
				return s, true
			}
		}
	}
	return "", false
}

// nestedURL handles the Socrata-style convention leaking into feature
// services: a property holding an object with a "url" field, e.g.
// {"imageurl": {"url": "http://..."}}. Only the single given key is tried.
func (idx propertyIndex) nestedURL(key string) (string, bool) {
	obj, ok := idx[key].(map[string]any)
	if !ok {
		return "", false
	}
	for k, v := range obj {
		if !strings.EqualFold(k, "url") {
			continue
		}
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if strings.HasPrefix(strings.ToLower(s), "http") {
				return s, true
			}
		}
	}
	return "", false
}

// findNumber returns the first candidate whose value parses as a number.
// Feature services emit coordinates both as JSON numbers and as strings.
func (idx propertyIndex) findNumber(candidates ...string) (float64, bool) {
	for _, c := range candidates {
		switch v := idx[c].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		case int:
			return float64(v), true
		}
	}
	return 0, false
}

// findStringOrNumber returns the first candidate present as a non-empty
// string or as a number rendered in its shortest form.
func (idx propertyIndex) findStringOrNumber(candidates ...string) (string, bool) {
	for _, c := range candidates {
		switch v := idx[c].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s, true
			}
		case float64:
			return formatFloat(v), true
		case int:
			return strconv.Itoa(v), true
		}
	}
	return "", false
}

// formatFloat renders f in its shortest exact decimal form, so 47.60 becomes
// "47.6" and -122.33 stays "-122.33".
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
