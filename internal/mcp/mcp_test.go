package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/sav-assist/internal/app"
	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/config"
	"github.com/hpungsan/sav-assist/internal/db"
	"github.com/hpungsan/sav-assist/internal/errors"
	"github.com/hpungsan/sav-assist/internal/store"
	"github.com/hpungsan/sav-assist/internal/synccode"
)

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

// testSetup creates a temporary database-backed state and config for testing.
func testSetup(t *testing.T, logs ...calllog.CallLog) (*app.State, *config.Config) {
	t.Helper()
	return testSetupIn(t, t.TempDir(), logs...)
}

// testSetupIn is testSetup over the database in dir.
func testSetupIn(t *testing.T, dir string, logs ...calllog.CallLog) (*app.State, *config.Config) {
	t.Helper()

	database, err := db.Init(dir)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	st := store.New(database, nil)
	if len(logs) > 0 {
		if err := st.SaveCollection(context.Background(), logs); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	state, err := app.Open(context.Background(), st, app.Options{})
	if err != nil {
		t.Fatalf("open state: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	return state, cfg
}

func newTestHandlers(t *testing.T, logs ...calllog.CallLog) (*Handlers, *app.State) {
	t.Helper()
	state, cfg := testSetup(t, logs...)
	h := NewHandlers(state, cfg, nil)
	h.now = func() time.Time { return fixedNow }
	return h, state
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func sampleLogs() []calllog.CallLog {
	day := fixedNow.UnixMilli()
	return []calllog.CallLog{
		{
			ID: "a", PhoneNumber: "0612345678", CustomerName: "Jean Dupont", TechnicianName: "Alice",
			Timestamp: day - 3600_000,
			Summary:   calllog.CallSummary{Subject: "Panne chauffe-eau", Sentiment: calllog.Positive},
		},
		{
			ID: "b", PhoneNumber: "0698765432", CustomerName: "Marie Curie", TechnicianName: "Bob",
			Timestamp: day - 7200_000, TicketCreated: true, TicketNumber: "T-42",
			Summary: calllog.CallSummary{Subject: "Erreur E12", Sentiment: calllog.Negative},
		},
		{
			ID: "c", PhoneNumber: "0611111111", CustomerName: "Paul Martin", TechnicianName: "Alice",
			Timestamp: day,
			Summary:   calllog.CallSummary{Subject: "Mise en service", Sentiment: calllog.Neutral},
		},
	}
}

func TestServerRegistration(t *testing.T) {
	state, cfg := testSetup(t)

	s := NewServer(state, cfg, "test", nil)
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"calls_search",
		"calls_get",
		"calls_delete",
		"calls_stats",
		"sync_export",
		"sync_import",
		"technician_get",
		"technician_set",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	state, cfg := testSetup(t)

	cfg.DisabledTools = []string{"calls_delete", "sync_import", "sync_import"}
	s := NewServer(state, cfg, "test", nil)
	tools := s.ListTools()

	if len(tools) != 6 {
		t.Errorf("registered tool count = %d, want 6", len(tools))
	}
	for _, name := range []string{"calls_delete", "sync_import"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	state, cfg := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	s := NewServer(state, cfg, "test", nil)
	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	unknown := ValidateDisabledTools([]string{"calls_get", "capsule_store", "nope"})
	if len(unknown) != 2 || unknown[0] != "capsule_store" || unknown[1] != "nope" {
		t.Errorf("unknown = %v, want [capsule_store nope]", unknown)
	}
	if got := ValidateDisabledTools(nil); len(got) != 0 {
		t.Errorf("nil input should yield no unknown tools, got %v", got)
	}
}

func TestHandleSearch(t *testing.T) {
	h, _ := newTestHandlers(t, sampleLogs()...)
	ctx := context.Background()

	tests := []struct {
		name    string
		args    map[string]any
		wantIDs []string
		total   int
	}{
		{"all newest first", map[string]any{}, []string{"c", "a", "b"}, 3},
		{"technician case-insensitive", map[string]any{"search": "alice"}, []string{"c", "a"}, 2},
		{"phone prefix", map[string]any{"search": "061"}, []string{"c", "a"}, 2},
		{"ticket", map[string]any{"search": "T-42"}, []string{"b"}, 1},
		{"limit", map[string]any{"limit": 1}, []string{"c"}, 3},
		{"no match", map[string]any{"search": "zzz"}, []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleSearch(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("HandleSearch: %v", err)
			}
			out := parseOutput(t, result)

			items := out["items"].([]any)
			ids := make([]string, 0, len(items))
			for _, it := range items {
				ids = append(ids, it.(map[string]any)["id"].(string))
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
			if int(out["total"].(float64)) != tt.total {
				t.Errorf("total = %v, want %d", out["total"], tt.total)
			}
		})
	}
}

func TestHandlers_ReloadBeforeEachTool(t *testing.T) {
	dir := t.TempDir()
	state, cfg := testSetupIn(t, dir, calllog.CallLog{ID: "old", CustomerName: "Ancien"})
	h := NewHandlers(state, cfg, nil)
	h.now = func() time.Time { return fixedNow }

	other, err := db.Init(dir)
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	defer other.Close()
	cli, err := app.Open(context.Background(), store.New(other, nil), app.Options{})
	if err != nil {
		t.Fatalf("app.Open: %v", err)
	}
	if _, err := cli.Append(context.Background(), calllog.CallLog{ID: "fresh", CustomerName: "Nouveau"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := cli.SetTechnician(context.Background(), "Chloé"); err != nil {
		t.Fatalf("SetTechnician: %v", err)
	}

	result, err := h.HandleGet(context.Background(), makeRequest(map[string]any{"id": "fresh"}))
	if err != nil {
		t.Fatalf("HandleGet: %v", err)
	}
	if result.IsError {
		t.Fatalf("calls_get should find the call saved by the other process")
	}

	result, err = h.HandleTechnicianGet(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleTechnicianGet: %v", err)
	}
	if got := parseOutput(t, result)["name"]; got != "Chloé" {
		t.Errorf("technician = %v, want Chloé", got)
	}

	result, err = h.HandleDelete(context.Background(), makeRequest(map[string]any{"id": "old", "confirm": true}))
	if err != nil || result.IsError {
		t.Fatalf("HandleDelete failed: %v", err)
	}
	reopened, err := app.Open(context.Background(), store.New(other, nil), app.Options{})
	if err != nil {
		t.Fatalf("app.Open: %v", err)
	}
	if _, ok := reopened.Find("fresh"); !ok {
		t.Error("delete through MCP dropped the call saved by the other process")
	}
}

func TestHandleSearch_NegativeLimit(t *testing.T) {
	h, _ := newTestHandlers(t)
	result, _ := h.HandleSearch(context.Background(), makeRequest(map[string]any{"limit": -1}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleGet(t *testing.T) {
	h, _ := newTestHandlers(t, sampleLogs()...)
	ctx := context.Background()

	result, _ := h.HandleGet(ctx, makeRequest(map[string]any{"id": "b"}))
	out := parseOutput(t, result)
	if out["customerName"] != "Marie Curie" {
		t.Errorf("customerName = %v", out["customerName"])
	}
	if out["ticketNumber"] != "T-42" {
		t.Errorf("ticketNumber = %v", out["ticketNumber"])
	}

	result, _ = h.HandleGet(ctx, makeRequest(map[string]any{"id": "missing"}))
	assertErrorCode(t, result, "NOT_FOUND")

	result, _ = h.HandleGet(ctx, makeRequest(map[string]any{}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleDelete_RequiresConfirm(t *testing.T) {
	h, state := newTestHandlers(t, sampleLogs()...)
	ctx := context.Background()

	result, _ := h.HandleDelete(ctx, makeRequest(map[string]any{"id": "a"}))
	assertErrorCode(t, result, "INVALID_REQUEST")
	if len(state.Logs()) != 3 {
		t.Fatalf("unconfirmed delete removed a call")
	}

	result, _ = h.HandleDelete(ctx, makeRequest(map[string]any{"id": "a", "confirm": true}))
	out := parseOutput(t, result)
	if out["deleted"] != true {
		t.Errorf("deleted = %v, want true", out["deleted"])
	}
	if _, ok := state.Find("a"); ok {
		t.Error("call a should be gone")
	}
	if len(state.Logs()) != 2 {
		t.Errorf("len(logs) = %d, want 2", len(state.Logs()))
	}

	result, _ = h.HandleDelete(ctx, makeRequest(map[string]any{"id": "a", "confirm": true}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleStats(t *testing.T) {
	h, _ := newTestHandlers(t, sampleLogs()...)

	result, _ := h.HandleStats(context.Background(), makeRequest(nil))
	out := parseOutput(t, result)

	if out["totalCalls"].(float64) != 3 {
		t.Errorf("totalCalls = %v, want 3", out["totalCalls"])
	}
	if out["uniqueCustomers"].(float64) != 3 {
		t.Errorf("uniqueCustomers = %v, want 3", out["uniqueCustomers"])
	}
	if out["satisfactionPercent"].(float64) != 33 {
		t.Errorf("satisfactionPercent = %v, want 33", out["satisfactionPercent"])
	}
	activity := out["activity"].([]any)
	if len(activity) != 7 {
		t.Fatalf("activity days = %d, want 7", len(activity))
	}
	if last := activity[6].(map[string]any); last["count"].(float64) != 3 {
		t.Errorf("today count = %v, want 3", last["count"])
	}
}

func TestHandleExportImport_RoundTrip(t *testing.T) {
	src, _ := newTestHandlers(t, sampleLogs()...)
	ctx := context.Background()

	result, _ := src.HandleExport(ctx, makeRequest(nil))
	out := parseOutput(t, result)
	code := out["code"].(string)
	if out["count"].(float64) != 3 {
		t.Errorf("count = %v, want 3", out["count"])
	}

	dst, state := newTestHandlers(t, sampleLogs()[0])
	result, _ = dst.HandleImport(ctx, makeRequest(map[string]any{"code": code}))
	out = parseOutput(t, result)
	if out["added"].(float64) != 2 {
		t.Errorf("added = %v, want 2", out["added"])
	}
	if len(state.Logs()) != 3 {
		t.Errorf("len(logs) = %d, want 3", len(state.Logs()))
	}

	// Importing again adds nothing.
	result, _ = dst.HandleImport(ctx, makeRequest(map[string]any{"code": code}))
	out = parseOutput(t, result)
	if out["added"].(float64) != 0 {
		t.Errorf("second import added = %v, want 0", out["added"])
	}
}

func TestHandleExport_Empty(t *testing.T) {
	h, _ := newTestHandlers(t)
	result, _ := h.HandleExport(context.Background(), makeRequest(nil))
	assertErrorCode(t, result, "EMPTY_COLLECTION")
}

func TestHandleImport_Errors(t *testing.T) {
	h, state := newTestHandlers(t, sampleLogs()...)
	ctx := context.Background()

	tests := []struct {
		name string
		code string
		want string
	}{
		{"missing", "", "INVALID_REQUEST"},
		{"not base64", "!!!", "INVALID_SYNC_CODE"},
		{"not json", "bm90IGpzb24=", "CORRUPT_DATA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _ := h.HandleImport(ctx, makeRequest(map[string]any{"code": tt.code}))
			assertErrorCode(t, result, tt.want)
		})
	}
	if len(state.Logs()) != 3 {
		t.Errorf("failed imports changed the collection: %d logs", len(state.Logs()))
	}
}

func TestHandleImport_NonArrayIgnored(t *testing.T) {
	h, state := newTestHandlers(t, sampleLogs()...)

	// base64 of {"id":"x"}
	result, _ := h.HandleImport(context.Background(), makeRequest(map[string]any{"code": "eyJpZCI6IngifQ=="}))
	out := parseOutput(t, result)
	if out["ignored"] != true {
		t.Errorf("ignored = %v, want true", out["ignored"])
	}
	if len(state.Logs()) != 3 {
		t.Errorf("len(logs) = %d, want 3", len(state.Logs()))
	}
}

func TestHandleTechnician(t *testing.T) {
	h, state := newTestHandlers(t)
	ctx := context.Background()

	result, _ := h.HandleTechnicianSet(ctx, makeRequest(map[string]any{"name": "  Alice  "}))
	out := parseOutput(t, result)
	if out["name"] != "Alice" {
		t.Errorf("name = %v, want Alice", out["name"])
	}
	if state.Technician() != "Alice" {
		t.Errorf("state technician = %q", state.Technician())
	}

	result, _ = h.HandleTechnicianGet(ctx, makeRequest(nil))
	out = parseOutput(t, result)
	if out["name"] != "Alice" {
		t.Errorf("get name = %v, want Alice", out["name"])
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	appErr := errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied"))
	appErr.Details = map[string]any{"path": "/tmp/secret.db"}

	errObj := errorObject(t, errorResult(appErr))
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrapped := fmt.Errorf("import: %w", errors.NewInvalidSyncCode(nil))

	errObj := errorObject(t, errorResult(wrapped))
	if errObj["code"] != string(errors.ErrInvalidSyncCode) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrInvalidSyncCode)
	}
	if msg := errObj["message"].(string); msg != "import: code invalide" {
		t.Errorf("message = %q, want %q", msg, "import: code invalide")
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewNotFound("abc")))
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_PlainError(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != string(errors.ErrInternal) {
		t.Errorf("code=%v, want INTERNAL", errObj["code"])
	}
	if errObj["message"] == "boom" {
		t.Error("plain errors should not leak their message")
	}
}

func TestSyncCodeExportedByToolDecodesLocally(t *testing.T) {
	h, _ := newTestHandlers(t, sampleLogs()...)
	result, _ := h.HandleExport(context.Background(), makeRequest(nil))
	out := parseOutput(t, result)

	res, err := synccode.Import(out["code"].(string))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Logs) != 3 {
		t.Errorf("decoded %d logs, want 3", len(res.Logs))
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if !result.IsError {
		t.Fatal("expected IsError=true")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if result == nil || !result.IsError {
		t.Errorf("expected error result with code %q", expectedCode)
		return
	}
	code, _ := errorObject(t, result)["code"].(string)
	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text>"
	}
	return text.Text
}
