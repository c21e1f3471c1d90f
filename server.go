package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lumenisola/obsidian-full-calendar/engine"
	"github.com/lumenisola/obsidian-full-calendar/tools"
)

// newServer creates and configures the MCP server with all calendar
// tools registered. If readOnly is true, tools that write to the vault
// are not registered.
func newServer(e *engine.Engine, readOnly bool) *mcp.Server {
	srv := mcp.NewServer(
		&mcp.Implementation{
			Name:    "obsidian-full-calendar",
			Version: version,
		},
		nil,
	)

	query := tools.NewQuery(e)

	// --- Query tools ---
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_events",
		Description: "List calendar events, soonest first. Optionally filter by a day range (from/to, YYYY-MM-DD, inclusive) and cap the result count with limit. Each event's id is the vault-relative path of its backing document.",
	}, query.ListEvents)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_event",
		Description: "Get one calendar event by id. Returns its title, start, end, all-day flag, and display colors. The id is the vault-relative path of the backing document.",
	}, query.GetEvent)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "sources_overview",
		Description: "Summarize every configured calendar source: kind (local directory or remote feed), whether it is editable, its display color, and its event count or failure message.",
	}, query.SourcesOverview)

	// --- Edit tools (skipped in read-only mode) ---
	if !readOnly {
		edit := tools.NewEdit(e)

		mcp.AddTool(srv, &mcp.Tool{
			Name:        "create_event",
			Description: "Create a new event as a markdown document in a local source directory. Give a date for an all-day event (optionally endDate for multi-day), or add startTime/endTime for a timed one. The document is named from the date and title.",
		}, edit.CreateEvent)

		mcp.AddTool(srv, &mcp.Tool{
			Name:        "move_event",
			Description: "Reschedule an event by id: set a new start (and optionally end), or switch it between timed and all-day. Rewrites the backing document's front-matter; the body is untouched.",
		}, edit.MoveEvent)

		mcp.AddTool(srv, &mcp.Tool{
			Name:        "open_event",
			Description: "Get an event's full current fields by id, optionally opening its backing document in the configured editor.",
		}, edit.OpenEvent)
	}

	// --- Health tool ---
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "health",
		Description: "Check server status: version, read-only mode, event and source counts. Use to verify the server is alive and see its configuration.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
		data, _ := json.MarshalIndent(map[string]any{
			"status":   "ok",
			"version":  version,
			"readOnly": readOnly,
			"events":   e.Model().Len(),
			"sources":  len(e.Sources(ctx)),
		}, "", "  ")

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil, nil
	})

	// --- Vault management tools ---
	srv.AddTool(&mcp.Tool{
		Name:        "reload",
		Description: "Force a full vault rescan. Re-reads every local source and reconciles the calendar: events whose documents vanished are dropped, everything else is refreshed. Use when external changes need to be picked up immediately.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{},"required":[],"additionalProperties":false}`),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := e.Rebuild(ctx); err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Rescan failed: %v", err)}},
				IsError: true,
			}, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Vault rescanned, %d events", e.Model().Len())}},
		}, nil
	})

	return srv
}
