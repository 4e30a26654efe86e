package catalog

import (
	"regexp"
	"strings"
	"time"
)

const (
	isoLayout     = "2006-01-02"
	displayLayout = "02/01/2006"

	// DefaultWindow is the trailing window shown on the initial view.
	DefaultWindow = 60 * 24 * time.Hour
)

var (
	isoPair       = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}).*(\d{4}-\d{2}-\d{2})`)
	displayPair   = regexp.MustCompile(`(\d{2}/\d{2}/\d{4}).*(\d{2}/\d{2}/\d{4})`)
	isoSingle     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	displaySingle = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)
)

// Range is an inclusive signed-date window. End is the last second of its day.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls inside the range.
func (r Range) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func dayRange(start, end time.Time) Range {
	return Range{Start: start, End: end.Add(24*time.Hour - time.Second)}
}

// ParseRange reads the combined period field, or when it is empty the discrete
// start and end fields. Input that does not parse yields false and no filter.
func ParseRange(period, start, end string) (Range, bool) {
	period = strings.TrimSpace(period)
	if period != "" {
		return parsePeriod(period)
	}

	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return Range{}, false
	}
	s, err := time.Parse(isoLayout, start)
	if err != nil {
		return Range{}, false
	}
	e, err := time.Parse(isoLayout, end)
	if err != nil {
		return Range{}, false
	}
	return dayRange(s, e), true
}

func parsePeriod(period string) (Range, bool) {
	if m := isoPair.FindStringSubmatch(period); m != nil {
		return parsePair(isoLayout, m[1], m[2])
	}
	if m := displayPair.FindStringSubmatch(period); m != nil {
		return parsePair(displayLayout, m[1], m[2])
	}
	if m := isoSingle.FindString(period); m != "" {
		return parsePair(isoLayout, m, m)
	}
	if m := displaySingle.FindString(period); m != "" {
		return parsePair(displayLayout, m, m)
	}
	return Range{}, false
}

func parsePair(layout, start, end string) (Range, bool) {
	s, err := time.Parse(layout, start)
	if err != nil {
		return Range{}, false
	}
	e, err := time.Parse(layout, end)
	if err != nil {
		return Range{}, false
	}
	return dayRange(s, e), true
}

// DefaultDates returns the start and end form values of the trailing window
// ending on now's calendar day.
func DefaultDates(now time.Time) (start, end string) {
	return now.Add(-DefaultWindow).Format(isoLayout), now.Format(isoLayout)
}
