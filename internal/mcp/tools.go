package mcp

import "github.com/mark3labs/mcp-go/mcp"

var searchToolDef = mcp.NewTool("calls_search",
	mcp.WithDescription("List saved support calls, newest first. "+
		"The optional search term matches phone, customer, technician name or ticket number."),
	mcp.WithString("search", mcp.Description("Filter term; empty returns every call")),
	mcp.WithNumber("limit", mcp.Description("Maximum number of calls to return (0 = all)")),
)

var getToolDef = mcp.NewTool("calls_get",
	mcp.WithDescription("Fetch one call with its raw notes and structured summary."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Call id")),
)

var deleteToolDef = mcp.NewTool("calls_delete",
	mcp.WithDescription("Permanently remove one call from the history. Requires confirm=true."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Call id")),
	mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true to delete")),
)

var statsToolDef = mcp.NewTool("calls_stats",
	mcp.WithDescription("Aggregate figures over all calls: totals, unique customers, "+
		"sentiment breakdown, last 7 days activity, satisfaction and calls per day."),
)

var exportToolDef = mcp.NewTool("sync_export",
	mcp.WithDescription("Encode the whole collection as a sync code that another installation can import."),
)

var importToolDef = mcp.NewTool("sync_import",
	mcp.WithDescription("Merge calls from a sync code. Calls already present locally are kept unchanged."),
	mcp.WithString("code", mcp.Required(), mcp.Description("Sync code produced by sync_export")),
)

var technicianGetToolDef = mcp.NewTool("technician_get",
	mcp.WithDescription("Return the active technician name stamped on new calls."),
)

var technicianSetToolDef = mcp.NewTool("technician_set",
	mcp.WithDescription("Set the active technician name. An empty name falls back to the anonymous label."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Technician name")),
)
