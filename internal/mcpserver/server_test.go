package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mtvsearch/internal/backend"
	"github.com/starford/mtvsearch/internal/models"
	"github.com/starford/mtvsearch/internal/query"
	"github.com/starford/mtvsearch/internal/session"
	"github.com/starford/mtvsearch/internal/testutil"
	"github.com/starford/mtvsearch/internal/view"
)

func testServer(t *testing.T) (*Server, *testutil.QueryService) {
	t.Helper()

	svc := testutil.NewQueryService(t, func(req backend.Request) any {
		return map[string]any{
			"result":     []models.ResultRow{testutil.Row("Wartezimmer", "ARD", "2020-01-01", 1800, "Doku")},
			"page":       req.Page,
			"last_page":  4,
			"item_count": 31,
		}
	})
	log, _ := testutil.Logger()
	client := backend.New(svc.URL, svc.Client())

	opts := session.Options{Query: query.DefaultOptions(), Logger: log}
	opts.Query.Retry.BaseDelay = time.Millisecond
	sessions := session.NewService(client, opts, nil)
	t.Cleanup(sessions.Close)

	return New(sessions, client), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we test
	// through the tool handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_catalog":
		result, err = srv.searchCatalog(ctx, req)
	case "database_status":
		result, err = srv.databaseStatus(ctx, req)
	case "refresh_database":
		result, err = srv.refreshDatabase(ctx, req)
	case "get_rule_format":
		result, err = srv.getRuleFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSearchCatalog(t *testing.T) {
	srv, svc := testServer(t)

	r := callTool(t, srv, "search_catalog", map[string]any{
		"title":          "Wart",
		"channel":        "ARD",
		"duration":       "30",
		"duration_mode":  "longer",
		"page":           float64(2),
		"sort_field":     "title",
		"sort_direction": "ascending",
	})
	if r.IsError {
		t.Fatalf("search failed: %s", resultText(r))
	}

	var v view.View
	if err := json.Unmarshal([]byte(resultText(r)), &v); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if v.Page != 2 || v.ItemCount != 31 || v.Bounds.First != 11 {
		t.Errorf("view = page %d items %d bounds %+v", v.Page, v.ItemCount, v.Bounds)
	}

	want := []backend.Request{{
		Limit:         10,
		Rules:         []string{"channel=ARD", "duration-30", "title=Wart"},
		Page:          2,
		SortField:     "title",
		SortDirection: models.Ascending,
	}}
	if diff := cmp.Diff(want, svc.Requests()); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchCatalog_InvalidArguments(t *testing.T) {
	srv, svc := testServer(t)

	for _, args := range []map[string]any{
		{"start": "2020", "start_mode": "sideways"},
		{"title": "x", "duration": "5", "duration_mode": "after"},
		{"title": "x", "sort_direction": "up"},
		{"title": "x", "sort_field": "genre"},
	} {
		if r := callTool(t, srv, "search_catalog", args); !r.IsError {
			t.Errorf("args %v: expected error", args)
		}
	}
	if n := len(svc.Requests()); n != 0 {
		t.Errorf("requests = %d, want none", n)
	}
}

func TestStatusTools(t *testing.T) {
	srv, svc := testServer(t)

	if text := resultText(callTool(t, srv, "database_status", nil)); text != "database ready" {
		t.Errorf("status = %q", text)
	}
	if text := resultText(callTool(t, srv, "refresh_database", nil)); text != "refreshing database" {
		t.Errorf("refresh = %q", text)
	}
	if svc.RefreshCount() != 1 {
		t.Errorf("refresh count = %d", svc.RefreshCount())
	}
}

func TestRuleFormat(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_rule_format", nil))
	if !strings.Contains(text, "duration+<minutes>") {
		t.Errorf("contract missing duration token: %q", text)
	}

	contents, err := srv.readRuleFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != ruleFormatURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}
