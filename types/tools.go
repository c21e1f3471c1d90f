package types

// --- Query tool inputs ---

// ListEventsInput filters the calendar model by day range.
type ListEventsInput struct {
	From  string `json:"from,omitempty" jsonschema:"Only include events on or after this day (YYYY-MM-DD)"`
	To    string `json:"to,omitempty" jsonschema:"Only include events on or before this day (YYYY-MM-DD)"`
	Limit int    `json:"limit,omitempty" jsonschema:"Max results. Default: 100"`
}

// GetEventInput looks up one event by identity.
type GetEventInput struct {
	ID string `json:"id" jsonschema:"Event id, the vault-relative path of the backing document"`
}

// SourcesOverviewInput takes no parameters.
type SourcesOverviewInput struct{}

// --- Edit tool inputs ---

// CreateEventInput describes a new event to persist as a document.
type CreateEventInput struct {
	Title     string `json:"title" jsonschema:"Event title"`
	Date      string `json:"date" jsonschema:"Event day (YYYY-MM-DD)"`
	StartTime string `json:"startTime,omitempty" jsonschema:"Start time of day (HH:MM, 24-hour). Omit for an all-day event"`
	EndTime   string `json:"endTime,omitempty" jsonschema:"End time of day (HH:MM, 24-hour)"`
	EndDate   string `json:"endDate,omitempty" jsonschema:"Inclusive final day for a multi-day all-day event (YYYY-MM-DD)"`
	Source    string `json:"source,omitempty" jsonschema:"Directory of the local source to create the document in. Default: the first local source"`
}

// MoveEventInput reschedules an existing event.
type MoveEventInput struct {
	ID     string `json:"id" jsonschema:"Event id to move"`
	Start  string `json:"start" jsonschema:"New start, as YYYY-MM-DD or an RFC 3339 timestamp"`
	End    string `json:"end,omitempty" jsonschema:"New end. Exclusive for all-day events"`
	AllDay bool   `json:"allDay,omitempty" jsonschema:"Whether the event becomes all-day"`
}

// OpenEventInput opens one event for inspection or editing.
type OpenEventInput struct {
	ID       string `json:"id" jsonschema:"Event id to open"`
	InEditor bool   `json:"inEditor,omitempty" jsonschema:"Open the backing document in the configured editor instead of returning its fields"`
}
