package frontmatter

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/lumenisola/obsidian-full-calendar/parser"
	"github.com/lumenisola/obsidian-full-calendar/types"
)

// Event schema keys recognized in front-matter.
const (
	keyTitle     = "title"
	keyDate      = "date"
	keyStartTime = "startTime"
	keyEndTime   = "endTime"
	keyAllDay    = "allDay"
	keyEndDate   = "endDate"
	keyColor     = "color"
)

// DecodeEvent reads an event from decoded front-matter properties. ok is
// false when the metadata does not describe an event, which is the case
// whenever the date key is absent or unparseable. An event is all-day
// when allDay is set or no valid startTime is present. The decoded End
// of a multi-day all-day event is exclusive, one day past endDate.
func DecodeEvent(meta map[string]any) (types.EventRecord, bool) {
	day, ok := dayValue(meta[keyDate])
	if !ok {
		return types.EventRecord{}, false
	}
	rec := types.EventRecord{
		Title: stringValue(meta[keyTitle]),
		Color: stringValue(meta[keyColor]),
	}
	start, hasStart := parser.Clock(stringValue(meta[keyStartTime]))
	if parser.Truthy(meta[keyAllDay]) || !hasStart {
		rec.AllDay = true
		rec.Start = day
		if last, ok := dayValue(meta[keyEndDate]); ok && !last.Before(day) {
			rec.End = last.AddDate(0, 0, 1)
		}
	} else {
		rec.Start = day.Add(start)
		if end, ok := parser.Clock(stringValue(meta[keyEndTime])); ok {
			rec.End = day.Add(end)
		}
	}
	return rec, true
}

// EncodeRange encodes a date range as event front-matter, for document
// creation. Only the keys the range needs are present. The exclusive end
// of a multi-day all-day range is stored as the inclusive endDate; a
// single-day range stores no endDate at all.
func EncodeRange(start, end time.Time, allDay bool) map[string]any {
	meta := map[string]any{keyDate: parser.FormatDate(start)}
	if allDay {
		meta[keyAllDay] = true
		if !end.IsZero() {
			if last := end.AddDate(0, 0, -1); last.After(dayOf(start)) {
				meta[keyEndDate] = parser.FormatDate(last)
			}
		}
	} else {
		meta[keyStartTime] = parser.FormatClock(clockOf(start))
		if !end.IsZero() {
			meta[keyEndTime] = parser.FormatClock(clockOf(end))
		}
	}
	return meta
}

// EncodeNew encodes the front-matter of a brand-new event document.
func EncodeNew(title string, start, end time.Time, allDay bool) map[string]any {
	meta := EncodeRange(start, end, allDay)
	if title != "" {
		meta[keyTitle] = title
	}
	return meta
}

// EncodeEvent encodes a UI edit as a front-matter patch for Update. Keys
// the new range leaves unused are set to nil so Update deletes them: a
// move to all-day drops startTime and endTime, a move to timed drops
// allDay and endDate.
func EncodeEvent(in types.EventInput) map[string]any {
	meta := EncodeRange(in.Start, in.End, in.AllDay)
	if in.Title != "" {
		meta[keyTitle] = in.Title
	}
	if in.AllDay {
		meta[keyStartTime] = nil
		meta[keyEndTime] = nil
		if _, ok := meta[keyEndDate]; !ok {
			meta[keyEndDate] = nil
		}
	} else {
		meta[keyAllDay] = nil
		meta[keyEndDate] = nil
		if _, ok := meta[keyEndTime]; !ok {
			meta[keyEndTime] = nil
		}
	}
	return meta
}

// Filename derives the canonical file name an event document is stored
// under, "YYYY-MM-DD Title.md" with illegal characters stripped.
func Filename(day time.Time, title string) string {
	title = parser.SanitizeTitle(title)
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("%s %s.md", parser.FormatDate(day), title)
}

// TitleFromPath is the display title an event falls back to when its
// front-matter carries none: the base file name without the extension.
func TitleFromPath(p string) string {
	return strings.TrimSuffix(path.Base(p), ".md")
}

// dayValue reads a calendar day. Quoted YAML dates decode as strings,
// unquoted ones as time.Time; both collapse to local midnight.
func dayValue(v any) (time.Time, bool) {
	switch d := v.(type) {
	case string:
		return parser.Date(d)
	case time.Time:
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.Local), true
	}
	return time.Time{}, false
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	return fmt.Sprint(v)
}

func clockOf(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
