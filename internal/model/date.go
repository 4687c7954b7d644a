package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Precision describes how much of a calendar date a source actually recorded.
type Precision string

// Precision values.
const (
	PrecisionExactDay Precision = "exact-day"
	PrecisionYearOnly Precision = "year-only"
)

// PartialDate is a calendar date that may carry only a year. Month and Day
// are zero when unknown; a day is never invented for a year-only value.
type PartialDate struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}

// YearOnly returns a year-precision date.
func YearOnly(year int) PartialDate {
	return PartialDate{Year: year}
}

// ExactDay returns a day-precision date.
func ExactDay(year, month, day int) PartialDate {
	return PartialDate{Year: year, Month: month, Day: day}
}

// Precision reports the precision of d.
func (d PartialDate) Precision() Precision {
	if d.Month == 0 || d.Day == 0 {
		return PrecisionYearOnly
	}
	return PrecisionExactDay
}

// IsZero reports whether d carries no year.
func (d PartialDate) IsZero() bool {
	return d.Year == 0
}

// Compare orders dates by year, then month, then day. Missing components
// order before present ones, so 1980 sorts before 1980-01-01.
func (d PartialDate) Compare(o PartialDate) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(d.Month, o.Month)
	default:
		return cmpInt(d.Day, o.Day)
	}
}

// Before reports whether d orders strictly before o.
func (d PartialDate) Before(o PartialDate) bool {
	return d.Compare(o) < 0
}

// Equal requires the same precision as well as the same components.
func (d PartialDate) Equal(o PartialDate) bool {
	return d.Precision() == o.Precision() && d.Compare(o) == 0
}

func (d PartialDate) String() string {
	if d.IsZero() {
		return ""
	}
	if d.Precision() == PrecisionYearOnly {
		return fmt.Sprintf("%04d", d.Year)
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006",
	"2/1/2006",
	"2006/01/02",
}

var bareYear = regexp.MustCompile(`^\d{4}$`)

// ParseDate parses the date formats found in registry extracts. A bare
// four-digit year yields a year-only date.
func ParseDate(s string) (PartialDate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PartialDate{}, eris.New("model: empty date")
	}
	if bareYear.MatchString(s) {
		y, _ := strconv.Atoi(s)
		return validYear(y, s)
	}

	// Knowledge-graph timestamps look like "+1753-06-07T00:00:00Z".
	trimmed := strings.TrimPrefix(s, "+")
	if i := strings.IndexByte(trimmed, 'T'); i == 10 {
		trimmed = trimmed[:i]
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return ExactDay(t.Year(), int(t.Month()), t.Day()), nil
		}
	}
	return PartialDate{}, eris.Errorf("model: unrecognized date %q", s)
}

func validYear(y int, raw string) (PartialDate, error) {
	if y < 1000 || y > 2999 {
		return PartialDate{}, eris.Errorf("model: implausible year %q", raw)
	}
	return YearOnly(y), nil
}

// Years are delimited by non-digits so "1930s" and "1930-1949" both match.
var yearPattern = regexp.MustCompile(`(?:^|\D)([12]\d{3})(?:\D|$)`)

// ExtractYear returns the first plausible four-digit year in s.
func ExtractYear(s string) (int, bool) {
	m := yearPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	y, _ := strconv.Atoi(m[1])
	return y, true
}

// EarliestYear returns the smallest plausible four-digit year in s.
func EarliestYear(s string) (int, bool) {
	best := 0
	for _, m := range years(s) {
		if best == 0 || m < best {
			best = m
		}
	}
	return best, best != 0
}

// years scans s for every delimited year. FindAll cannot be used directly
// because adjacent years share their delimiter ("1930-1949").
func years(s string) []int {
	var out []int
	for {
		loc := yearPattern.FindStringSubmatchIndex(s)
		if loc == nil {
			return out
		}
		y, _ := strconv.Atoi(s[loc[2]:loc[3]])
		out = append(out, y)
		s = s[loc[3]:]
	}
}

var openEnded = regexp.MustCompile(`(?i)\b(before|pre|prior to|earlier than|up to)\b`)

// PeriodStartYear converts an age period such as "1980-1989", "1930s" or
// "1900" to its start year. Open-ended periods ("before 1900") have no start
// year and are rejected.
func PeriodStartYear(period string) (int, bool) {
	period = strings.TrimSpace(period)
	if period == "" || openEnded.MatchString(period) {
		return 0, false
	}
	return ExtractYear(period)
}
