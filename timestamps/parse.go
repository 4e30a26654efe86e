// Package timestamps tracks the most recent signature time known for each document.
package timestamps

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// signatureFields are the payload keys, lower-cased, that may hold a signature time.
var signatureFields = map[string]struct{}{
	"datesigned":     {},
	"lastsignerdate": {},
	"lastsigndate":   {},
	"signedat":       {},
	"signed_at":      {},
	"signeddate":     {},
	"date":           {},
}

// Naive layouts carry no zone and are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Parse reads an ISO-8601 string or a numeric epoch (seconds, or milliseconds
// for values of 1e11 and above) into a time.
// Anything else, including malformed strings, yields false.
func Parse(v any) (time.Time, bool) {
	switch n := v.(type) {
	case string:
		return parseString(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(f)
	case float64:
		return fromEpoch(n)
	case float32:
		return fromEpoch(float64(n))
	case int:
		return fromEpoch(float64(n))
	case int64:
		return fromEpoch(float64(n))
	case time.Time:
		return n, !n.IsZero()
	default:
		return time.Time{}, false
	}
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Epoch values at or above millisThreshold are milliseconds. Anything at or
// past maxEpoch seconds (year 10000) is rejected.
const millisThreshold = 1e11

var maxEpoch = float64(time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC).Unix())

func fromEpoch(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, false
	}
	if f >= millisThreshold {
		f /= 1000
	}
	if f >= maxEpoch {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// IsSignatureField reports whether a payload key names a signature time.
func IsSignatureField(key string) bool {
	_, ok := signatureFields[strings.ToLower(key)]
	return ok
}

// Latest walks a decoded JSON value and returns the greatest signature time found
// under any recognised key, at any depth.
func Latest(v any) (time.Time, bool) {
	var latest time.Time
	found := false
	consider := func(t time.Time, ok bool) {
		if ok && (!found || t.After(latest)) {
			latest = t
			found = true
		}
	}

	switch node := v.(type) {
	case map[string]any:
		for key, val := range node {
			if IsSignatureField(key) {
				consider(Parse(val))
			}
		}
		for _, val := range node {
			switch val.(type) {
			case map[string]any, []any:
				consider(Latest(val))
			}
		}
	case []any:
		for _, item := range node {
			consider(Latest(item))
		}
	}

	return latest, found
}

var idFields = []string{"uuid", "uuidDoc", "documentId"}

// FindDocumentID locates the document identifier in a webhook-style payload.
// Top-level keys win over the same keys nested under "document" or "data".
func FindDocumentID(payload map[string]any) (string, bool) {
	if id, ok := directID(payload); ok {
		return id, true
	}
	for _, key := range []string{"document", "data"} {
		if nested, ok := payload[key].(map[string]any); ok {
			if id, ok := directID(nested); ok {
				return id, true
			}
		}
	}
	return "", false
}

func directID(m map[string]any) (string, bool) {
	for _, key := range idFields {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}
