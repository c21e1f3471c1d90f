// Package types defines the calendar data structures shared across the
// sync engine, the vault host, and the serving surfaces.
package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumenisola/obsidian-full-calendar/parser"
)

// EventRecord is the logical event decoded from one document's
// front-matter. End is exclusive for all-day events and zero when the
// event is open ended.
type EventRecord struct {
	Title  string
	Start  time.Time
	End    time.Time
	AllDay bool
	Color  string
}

// Event is a calendar entry as the widget renders it. ID is the
// vault-relative path of the backing document, which makes it both the
// identity and the address of the event.
type Event struct {
	ID        string
	Title     string
	Start     time.Time
	End       time.Time
	AllDay    bool
	Color     string
	TextColor string
	Editable  bool
}

type eventJSON struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Start     string `json:"start"`
	End       string `json:"end,omitempty"`
	AllDay    bool   `json:"allDay"`
	Color     string `json:"color,omitempty"`
	TextColor string `json:"textColor,omitempty"`
	Editable  bool   `json:"editable"`
}

// MarshalJSON renders all-day events with bare dates and timed events
// with RFC 3339 timestamps, matching what calendar widgets expect.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		ID:        e.ID,
		Title:     e.Title,
		AllDay:    e.AllDay,
		Color:     e.Color,
		TextColor: e.TextColor,
		Editable:  e.Editable,
	}
	if e.AllDay {
		out.Start = parser.FormatDate(e.Start)
		if !e.End.IsZero() {
			out.End = parser.FormatDate(e.End)
		}
	} else {
		out.Start = e.Start.Format(time.RFC3339)
		if !e.End.IsZero() {
			out.End = e.End.Format(time.RFC3339)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts both wire forms: bare dates for all-day events
// and RFC 3339 timestamps for timed ones.
func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	start, end, err := parseRange(in.Start, in.End)
	if err != nil {
		return err
	}
	*e = Event{
		ID:        in.ID,
		Title:     in.Title,
		Start:     start,
		End:       end,
		AllDay:    in.AllDay,
		Color:     in.Color,
		TextColor: in.TextColor,
		Editable:  in.Editable,
	}
	return nil
}

// EventInput is an edit request against one event: the new range a drag,
// resize, or dialog submit produced for the identity in ID.
type EventInput struct {
	ID     string
	Title  string
	Start  time.Time
	End    time.Time
	AllDay bool
}

// UnmarshalJSON parses the start and end stamps leniently so both the
// widget's RFC 3339 timestamps and bare dates are accepted.
func (in *EventInput) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Start  string `json:"start"`
		End    string `json:"end"`
		AllDay bool   `json:"allDay"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == "" {
		return fmt.Errorf("event input: missing id")
	}
	start, end, err := parseRange(raw.Start, raw.End)
	if err != nil {
		return err
	}
	*in = EventInput{ID: raw.ID, Title: raw.Title, Start: start, End: end, AllDay: raw.AllDay}
	return nil
}

// SourceInput is what one configured source contributes to the calendar
// view. ID is the source's directory for local sources and its URL for
// remote ones. A source that failed to load carries an Error message and
// no events, so the failure renders inline instead of aborting the view.
type SourceInput struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	URL       string  `json:"url,omitempty"`
	Editable  bool    `json:"editable"`
	Color     string  `json:"color"`
	TextColor string  `json:"textColor"`
	Error     string  `json:"error,omitempty"`
	Events    []Event `json:"events,omitempty"`
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	s, ok := parser.Stamp(start)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start %q", start)
	}
	var e time.Time
	if end != "" {
		e, ok = parser.Stamp(end)
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end %q", end)
		}
	}
	return s, e, nil
}
