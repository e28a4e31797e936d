package proxy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/cardcrafter/grid"
)

var testMCPImpl = &mcp.Implementation{Name: "cardcrafter-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any) *mcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return result
}

func mcpText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return tc.Text
}

func mcpCallOK(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result := mcpCall(t, session, name, args)
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	return mcpText(t, result)
}

// --- cardcrafter_fetch ---

func TestMCP_Fetch(t *testing.T) {
	svc, u := setupTestService(t, nil)
	session := mcpSession(t, svc)

	text := mcpCallOK(t, session, "cardcrafter_fetch", map[string]any{"url": u.URL + "/team.json"})
	var resp struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Data) != 3 {
		t.Fatalf("data: %v", resp.Data)
	}
}

func TestMCP_FetchErrorsAreSanitized(t *testing.T) {
	svc, u := setupTestService(t, nil)
	session := mcpSession(t, svc)

	result := mcpCall(t, session, "cardcrafter_fetch", map[string]any{"url": u.URL + "/missing"})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if msg := mcpText(t, result); msg != MsgNotFound {
		t.Fatalf("message %q", msg)
	}

	result = mcpCall(t, session, "cardcrafter_fetch", map[string]any{"url": "http://10.0.0.1/"})
	if !result.IsError || mcpText(t, result) != MsgUnsafeURL {
		t.Fatalf("unsafe url: %+v", result)
	}
}

// --- cardcrafter_stats / cardcrafter_refresh ---

func TestMCP_StatsAndRefresh(t *testing.T) {
	svc, u := setupTestService(t, nil)
	session := mcpSession(t, svc)
	if _, err := svc.FetchTrusted(context.Background(), u.URL+"/team.json"); err != nil {
		t.Fatal(err)
	}

	var st Stats
	json.Unmarshal([]byte(mcpCallOK(t, session, "cardcrafter_stats", map[string]any{})), &st)
	if st.Entries != 1 || st.Tracked != 1 {
		t.Fatalf("stats: %+v", st)
	}

	var res struct {
		OK     int `json:"ok"`
		Failed int `json:"failed"`
	}
	json.Unmarshal([]byte(mcpCallOK(t, session, "cardcrafter_refresh", map[string]any{})), &res)
	if res.OK != 1 || res.Failed != 0 {
		t.Fatalf("refresh: %+v", res)
	}
	if n := u.count("/team.json"); n != 2 {
		t.Fatalf("upstream hits = %d, want 2", n)
	}
}

// --- cardcrafter_export ---

func TestMCP_ExportCSV(t *testing.T) {
	// WHAT: Export applies search and sort before encoding.
	svc, u := setupTestService(t, nil)
	session := mcpSession(t, svc)

	text := mcpCallOK(t, session, "cardcrafter_export", map[string]any{
		"url":    u.URL + "/team.json",
		"format": "csv",
		"query":  "e",
		"sort":   "za",
	})
	var resp struct {
		Filename string `json:"filename"`
		MIME     string `json:"mime"`
		Items    int    `json:"items"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.HasSuffix(resp.Filename, ".csv") || !strings.HasPrefix(resp.MIME, "text/csv") {
		t.Fatalf("file: %q %q", resp.Filename, resp.MIME)
	}
	lines := strings.Split(strings.TrimSpace(resp.Content), "\n")
	if lines[0] != "title" {
		t.Fatalf("header %q", lines[0])
	}
	// "e" matches Michael Chen and Emily Rodriguez, not Sarah Johnson.
	if resp.Items != 2 || len(lines) != 3 || lines[1] != "Michael Chen" || lines[2] != "Emily Rodriguez" {
		t.Fatalf("items=%d content=%q", resp.Items, resp.Content)
	}
}

func TestMCP_ExportPDF(t *testing.T) {
	svc, u := setupTestService(t, nil)
	session := mcpSession(t, svc)

	text := mcpCallOK(t, session, "cardcrafter_export", map[string]any{
		"url": u.URL + "/team.json", "format": "pdf",
	})
	var resp struct {
		Data string `json:"data_base64"`
	}
	json.Unmarshal([]byte(text), &resp)
	pdf, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		t.Fatal(err)
	}
	pages, err := grid.VerifyPDF(pdf)
	if err != nil || pages != 1 {
		t.Fatalf("pdf: pages=%d err=%v", pages, err)
	}
}

func TestMCP_ExportErrors(t *testing.T) {
	svc, u := setupTestService(t, nil)
	session := mcpSession(t, svc)

	result := mcpCall(t, session, "cardcrafter_export", map[string]any{
		"url": u.URL + "/team.json", "format": "xlsx",
	})
	if !result.IsError {
		t.Fatal("unknown format should fail")
	}

	result = mcpCall(t, session, "cardcrafter_export", map[string]any{
		"url": u.URL + "/team.json", "format": "csv", "query": "zzzz-no-match",
	})
	if !result.IsError {
		t.Fatal("empty result set should fail")
	}

	result = mcpCall(t, session, "cardcrafter_export", map[string]any{
		"url": u.URL + "/boom", "format": "json",
	})
	if !result.IsError || mcpText(t, result) != MsgUnavailable {
		t.Fatalf("upstream failure: %v", result.Content)
	}
}
