// Package parser extracts calendar values from front-matter scalars and
// from the derived file names that event documents are stored under.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var (
	datePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clock24Pattern   = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)
	clock12Pattern   = regexp.MustCompile(`^(1[0-2]|0?[1-9]):([0-5]\d)\s*([AaPp])\.?[Mm]\.?$`)
	eventNamePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}) (.+)\.md$`)
	illegalName      = regexp.MustCompile(`[\\/:*?"<>|#^\[\]]`)
)

// Date parses a YYYY-MM-DD value into local midnight of that day.
func Date(s string) (time.Time, bool) {
	if !datePattern.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDate renders a day in the YYYY-MM-DD form used by front-matter
// and derived file names.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// Clock parses a time-of-day value as an offset from midnight. Both the
// 24-hour form ("09:30", "14:00") and the 12-hour form ("9:30 AM") are
// accepted.
func Clock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if m := clock24Pattern.FindStringSubmatch(s); m != nil {
		return clockOffset(atoi(m[1]), atoi(m[2])), true
	}
	if m := clock12Pattern.FindStringSubmatch(s); m != nil {
		h := atoi(m[1]) % 12
		if m[3] == "P" || m[3] == "p" {
			h += 12
		}
		return clockOffset(h, atoi(m[2])), true
	}
	return 0, false
}

// FormatClock renders an offset from midnight in the 24-hour form that
// write-back normalizes to.
func FormatClock(d time.Duration) string {
	mins := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

// Stamp parses a point in time from the forms clients send: an RFC 3339
// timestamp, a zoneless timestamp, or a bare date. Bare forms are taken
// in local time.
func Stamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04", dateLayout} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Truthy reports whether a front-matter scalar should be read as true.
// YAML booleans arrive as bool; hand-written variants arrive as strings.
func Truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "on", "1":
			return true
		}
	case int:
		return x != 0
	case float64:
		return x != 0
	}
	return false
}

// SanitizeTitle strips the characters that cannot appear in a document
// file name, so a title always yields a creatable name.
func SanitizeTitle(s string) string {
	return strings.TrimSpace(illegalName.ReplaceAllString(s, ""))
}

// SplitEventName splits a derived event file name of the form
// "YYYY-MM-DD Title.md" into its day and title. ok is false when the
// name does not follow the derived form.
func SplitEventName(name string) (day time.Time, title string, ok bool) {
	m := eventNamePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, "", false
	}
	day, ok = Date(m[1])
	if !ok {
		return time.Time{}, "", false
	}
	return day, m[2], true
}

func clockOffset(h, m int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
