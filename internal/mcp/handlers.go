package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/sav-assist/internal/app"
	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/config"
	"github.com/hpungsan/sav-assist/internal/errors"
	"github.com/hpungsan/sav-assist/internal/history"
	"github.com/hpungsan/sav-assist/internal/logger"
	"github.com/hpungsan/sav-assist/internal/stats"
	"github.com/hpungsan/sav-assist/internal/synccode"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	state   *app.State
	browser *history.Browser
	loc     *time.Location
	log     *logger.Logger
	now     func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(state *app.State, cfg *config.Config, log *logger.Logger) *Handlers {
	if log == nil {
		log = logger.Discard()
	}
	l := log.Component("mcp")
	loc, err := cfg.Location()
	if err != nil {
		l.WithError(err).Warn("invalid timezone, using local time")
		loc = time.Local
	}
	return &Handlers{
		state:   state,
		browser: history.NewBrowser(state),
		loc:     loc,
		log:     l,
		now:     time.Now,
	}
}

// SearchRequest represents the arguments for calls_search.
type SearchRequest struct {
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// GetRequest represents the arguments for calls_get.
type GetRequest struct {
	ID string `json:"id"`
}

// DeleteRequest represents the arguments for calls_delete.
type DeleteRequest struct {
	ID      string `json:"id"`
	Confirm bool   `json:"confirm"`
}

// ImportRequest represents the arguments for sync_import.
type ImportRequest struct {
	Code string `json:"code"`
}

// TechnicianSetRequest represents the arguments for technician_set.
type TechnicianSetRequest struct {
	Name string `json:"name"`
}

// CallItem is the list view of a call: everything but the raw notes.
type CallItem struct {
	ID             string            `json:"id"`
	PhoneNumber    string            `json:"phoneNumber"`
	CustomerName   string            `json:"customerName"`
	TechnicianName string            `json:"technicianName"`
	Timestamp      int64             `json:"timestamp"`
	Subject        string            `json:"subject"`
	Sentiment      calllog.Sentiment `json:"sentiment"`
	TicketNumber   string            `json:"ticketNumber,omitempty"`
}

// SearchOutput is the result of calls_search.
type SearchOutput struct {
	Items []CallItem `json:"items"`
	Total int        `json:"total"`
}

// HandleSearch handles the calls_search tool.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.reload(ctx)
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Limit < 0 {
		return errorResult(errors.NewInvalidRequest("limit must be >= 0")), nil
	}

	logs := h.browser.List(input.Search)
	out := SearchOutput{Items: make([]CallItem, 0, len(logs)), Total: len(logs)}
	for _, l := range logs {
		if input.Limit > 0 && len(out.Items) == input.Limit {
			break
		}
		out.Items = append(out.Items, CallItem{
			ID:             l.ID,
			PhoneNumber:    l.PhoneNumber,
			CustomerName:   l.CustomerName,
			TechnicianName: l.TechnicianName,
			Timestamp:      l.Timestamp,
			Subject:        l.Summary.Subject,
			Sentiment:      l.Summary.Sentiment,
			TicketNumber:   l.TicketNumber,
		})
	}
	return successResult(out)
}

// HandleGet handles the calls_get tool.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.reload(ctx)
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}

	l, err := h.browser.Select(input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(l)
}

// HandleDelete handles the calls_delete tool.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.reload(ctx)
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}

	if err := h.browser.Delete(ctx, input.ID, input.Confirm); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "deleted": true})
}

// HandleStats handles the calls_stats tool.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.reload(ctx)
	return successResult(stats.Compute(h.state.Logs(), h.now(), h.loc))
}

// HandleExport handles the sync_export tool.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.reload(ctx)
	logs := h.state.Logs()
	code, err := synccode.Export(logs)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"code": code, "count": len(logs)})
}

// ImportOutput is the result of sync_import.
type ImportOutput struct {
	Added   int  `json:"added"`
	Ignored bool `json:"ignored,omitempty"`
}

// HandleImport handles the sync_import tool.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.reload(ctx)
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Code) == "" {
		return errorResult(errors.NewInvalidRequest("code is required")), nil
	}

	res, err := synccode.Import(input.Code)
	if err != nil {
		return errorResult(err), nil
	}
	if res.Ignored {
		h.log.Warn("sync code payload is not a list, nothing imported")
		return successResult(ImportOutput{Ignored: true})
	}

	added, err := h.state.Merge(ctx, res.Logs)
	if err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}
	return successResult(ImportOutput{Added: added})
}

// HandleTechnicianGet handles the technician_get tool.
func (h *Handlers) HandleTechnicianGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.reload(ctx)
	return successResult(map[string]any{"name": h.state.Technician()})
}

// HandleTechnicianSet handles the technician_set tool.
func (h *Handlers) HandleTechnicianSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.reload(ctx)
	input, err := decode[TechnicianSetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	name := strings.TrimSpace(input.Name)
	if err := h.state.SetTechnician(ctx, name); err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}
	return successResult(map[string]any{"name": name})
}

// reload picks up calls written by other processes before each tool call.
// A failure is logged by State and the cached calls are used.
func (h *Handlers) reload(ctx context.Context) {
	_ = h.state.Refresh(ctx)
}

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		msg := appErr.Message
		// Keep any wrapping context, e.g. "import: CODE: msg" -> "import: msg".
		if prefix, ok := strings.CutSuffix(err.Error(), appErr.Error()); ok && prefix != "" {
			msg = prefix + msg
		}
		errorObj := map[string]any{
			"code":    appErr.Code,
			"message": msg,
			"status":  appErr.Status,
		}
		// Internal details may carry file paths or SQL errors.
		if appErr.Code != errors.ErrInternal && appErr.Details != nil {
			errorObj["details"] = appErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
