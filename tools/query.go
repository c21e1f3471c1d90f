package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lumenisola/obsidian-full-calendar/engine"
	"github.com/lumenisola/obsidian-full-calendar/parser"
	"github.com/lumenisola/obsidian-full-calendar/types"
)

// defaultListLimit caps list_events output when no limit is requested.
const defaultListLimit = 100

// Query implements the read-only calendar MCP tools.
type Query struct {
	engine *engine.Engine
}

// NewQuery creates a new Query tool handler.
func NewQuery(e *engine.Engine) *Query {
	return &Query{engine: e}
}

// ListEvents returns the events inside an optional day range, soonest
// first. The range filters on the event's start.
func (q *Query) ListEvents(ctx context.Context, req *mcp.CallToolRequest, input types.ListEventsInput) (*mcp.CallToolResult, any, error) {
	var from, to time.Time
	if input.From != "" {
		d, ok := parser.Date(input.From)
		if !ok {
			return errorResult(fmt.Sprintf("invalid from date '%s': use YYYY-MM-DD format", input.From)), nil, nil
		}
		from = d
	}
	if input.To != "" {
		d, ok := parser.Date(input.To)
		if !ok {
			return errorResult(fmt.Sprintf("invalid to date '%s': use YYYY-MM-DD format", input.To)), nil, nil
		}
		// The filter is inclusive of the whole final day.
		to = d.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return errorResult("'to' date must be after 'from' date"), nil, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	events := []types.Event{}
	for _, ev := range q.engine.Model().Events() {
		if !from.IsZero() && ev.Start.Before(from) {
			continue
		}
		if !to.IsZero() && !ev.Start.Before(to) {
			continue
		}
		events = append(events, ev)
		if len(events) == limit {
			break
		}
	}

	res, err := jsonTextResult(map[string]any{
		"count":  len(events),
		"events": events,
	})
	return res, nil, err
}

// GetEvent returns one event by id.
func (q *Query) GetEvent(ctx context.Context, req *mcp.CallToolRequest, input types.GetEventInput) (*mcp.CallToolResult, any, error) {
	if input.ID == "" {
		return errorResult("id is required"), nil, nil
	}
	ev, ok := q.engine.Model().Get(input.ID)
	if !ok {
		return errorResult(fmt.Sprintf("no event with id '%s'", input.ID)), nil, nil
	}
	res, err := jsonTextResult(ev)
	return res, nil, err
}

// SourcesOverview summarizes every configured source: its kind, colors,
// whether it is editable, and either its event count or its failure.
func (q *Query) SourcesOverview(ctx context.Context, req *mcp.CallToolRequest, input types.SourcesOverviewInput) (*mcp.CallToolResult, any, error) {
	sources := q.engine.Sources(ctx)

	var overview []map[string]any
	for _, s := range sources {
		entry := map[string]any{
			"id":       s.ID,
			"kind":     s.Kind,
			"editable": s.Editable,
			"color":    s.Color,
		}
		if s.URL != "" {
			entry["url"] = s.URL
		}
		if s.Error != "" {
			entry["error"] = s.Error
		} else if s.Kind == "local" {
			entry["events"] = len(s.Events)
		}
		overview = append(overview, entry)
	}

	res, err := jsonTextResult(map[string]any{
		"count":   len(overview),
		"sources": overview,
	})
	return res, nil, err
}
