package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lumenisola/obsidian-full-calendar/engine"
	"github.com/lumenisola/obsidian-full-calendar/parser"
	"github.com/lumenisola/obsidian-full-calendar/resolver"
	"github.com/lumenisola/obsidian-full-calendar/types"
)

// Edit implements the calendar MCP tools that write to the vault.
type Edit struct {
	engine *engine.Engine
}

// NewEdit creates a new Edit tool handler.
func NewEdit(e *engine.Engine) *Edit {
	return &Edit{engine: e}
}

// CreateEvent persists a new event document and returns its path.
func (e *Edit) CreateEvent(ctx context.Context, req *mcp.CallToolRequest, input types.CreateEventInput) (*mcp.CallToolResult, any, error) {
	if input.Title == "" {
		return errorResult("title is required"), nil, nil
	}
	day, ok := parser.Date(input.Date)
	if !ok {
		return errorResult(fmt.Sprintf("invalid date '%s': use YYYY-MM-DD format", input.Date)), nil, nil
	}

	start := day
	var end time.Time
	allDay := input.StartTime == ""
	if allDay {
		if input.EndTime != "" {
			return errorResult("endTime requires startTime"), nil, nil
		}
		if input.EndDate != "" {
			last, ok := parser.Date(input.EndDate)
			if !ok {
				return errorResult(fmt.Sprintf("invalid endDate '%s': use YYYY-MM-DD format", input.EndDate)), nil, nil
			}
			if last.Before(day) {
				return errorResult("endDate must not be before date"), nil, nil
			}
			end = last.AddDate(0, 0, 1)
		}
	} else {
		if input.EndDate != "" {
			return errorResult("endDate applies to all-day events; use endTime instead"), nil, nil
		}
		clock, ok := parser.Clock(input.StartTime)
		if !ok {
			return errorResult(fmt.Sprintf("invalid startTime '%s': use HH:MM", input.StartTime)), nil, nil
		}
		start = day.Add(clock)
		if input.EndTime != "" {
			clock, ok := parser.Clock(input.EndTime)
			if !ok {
				return errorResult(fmt.Sprintf("invalid endTime '%s': use HH:MM", input.EndTime)), nil, nil
			}
			end = day.Add(clock)
		}
	}

	p, err := e.engine.CreateEvent(ctx, input.Source, input.Title, start, end, allDay)
	if err != nil {
		return errorResult(fmt.Sprintf("create failed: %v", err)), nil, nil
	}

	res, err := jsonTextResult(map[string]any{
		"created": true,
		"id":      p,
	})
	return res, nil, err
}

// MoveEvent reschedules an event by rewriting its document. The calendar
// model catches up when the change notification arrives.
func (e *Edit) MoveEvent(ctx context.Context, req *mcp.CallToolRequest, input types.MoveEventInput) (*mcp.CallToolResult, any, error) {
	if input.ID == "" {
		return errorResult("id is required"), nil, nil
	}
	start, ok := parser.Stamp(input.Start)
	if !ok {
		return errorResult(fmt.Sprintf("invalid start '%s': use YYYY-MM-DD or RFC 3339", input.Start)), nil, nil
	}
	var end time.Time
	if input.End != "" {
		end, ok = parser.Stamp(input.End)
		if !ok {
			return errorResult(fmt.Sprintf("invalid end '%s': use YYYY-MM-DD or RFC 3339", input.End)), nil, nil
		}
	}

	title := ""
	if ev, ok := e.engine.Model().Get(input.ID); ok {
		title = ev.Title
	}

	err := e.engine.ModifyEvent(ctx, types.EventInput{
		ID:     input.ID,
		Title:  title,
		Start:  start,
		End:    end,
		AllDay: input.AllDay,
	})
	switch {
	case errors.Is(err, resolver.ErrAmbiguous):
		return errorResult(fmt.Sprintf("cannot move '%s': several documents match its name; rename one first", input.ID)), nil, nil
	case errors.Is(err, engine.ErrEditInFlight):
		return errorResult(fmt.Sprintf("an edit for '%s' is already in flight; retry shortly", input.ID)), nil, nil
	case err != nil:
		return errorResult(fmt.Sprintf("move failed: %v", err)), nil, nil
	}

	res, err := jsonTextResult(map[string]any{
		"moved": true,
		"id":    input.ID,
	})
	return res, nil, err
}

// OpenEvent returns an event's current fields, optionally sending its
// backing document to the configured editor first.
func (e *Edit) OpenEvent(ctx context.Context, req *mcp.CallToolRequest, input types.OpenEventInput) (*mcp.CallToolResult, any, error) {
	if input.ID == "" {
		return errorResult("id is required"), nil, nil
	}
	ev, err := e.engine.OpenEvent(ctx, input.ID, input.InEditor)
	if err != nil {
		return errorResult(fmt.Sprintf("open failed: %v", err)), nil, nil
	}
	res, err := jsonTextResult(map[string]any{
		"opened":   input.InEditor,
		"event":    ev,
		"document": ev.ID,
	})
	return res, nil, err
}
