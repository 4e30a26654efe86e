package d4sign

import (
	"regexp"
	"strings"
	"time"

	"signvault/timestamps"
)

var (
	datePrefix    = regexp.MustCompile(`^\d{8}\s*`)
	currencyValue = regexp.MustCompile(`(?i)R\$\s*[\d\s.,]+`)
	pdfSuffix     = regexp.MustCompile(`(?i)(\.pdf|\s+pdf)$`)
	compactDate   = regexp.MustCompile(`\d{8}`)
)

// CleanName strips the date prefix, currency amounts, and the trailing pdf
// extension from a document name.
func CleanName(name string) string {
	s := datePrefix.ReplaceAllString(name, "")
	s = currencyValue.ReplaceAllString(s, "")
	s = pdfSuffix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// NameDate extracts the date of the first YYYYMMDD run in name.
// found is true whenever a run exists, even if it is not a valid date.
func NameDate(name string) (date time.Time, valid, found bool) {
	run := compactDate.FindString(name)
	if run == "" {
		return time.Time{}, false, false
	}
	t, err := time.Parse("20060102", run)
	if err != nil {
		return time.Time{}, false, true
	}
	return t, true, true
}

// dateOnly keeps the calendar date of t, in t's own zone, as UTC midnight.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// firstPresent returns the first value under keys that is neither null, empty, nor zero.
func firstPresent(rec map[string]any, keys ...string) any {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		case float64:
			if v != 0 {
				return v
			}
		case bool:
			if v {
				return v
			}
		default:
			return v
		}
	}
	return nil
}

func firstString(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := rec[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func parseCandidate(v any) (time.Time, bool) {
	if v == nil {
		return time.Time{}, false
	}
	return timestamps.Parse(v)
}
