package formwatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/formwatch/event"
	"github.com/hazyhaar/formwatch/internal/memdom"
)

var testImpl = &mcp.Implementation{Name: "formwatch-test", Version: "0.1.0"}

// mcpSession registers the tools of w and returns a connected client session.
func mcpSession(t *testing.T, w *Watcher) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	w.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

func TestMCP_StatusNavigateDetections(t *testing.T) {
	w, win, _ := newTestWatcher(t)
	session := mcpSession(t, w)

	text, isErr := callTool(t, session, "formwatch_status", map[string]any{})
	if isErr {
		t.Fatalf("status: %s", text)
	}
	var pages []PageStatus
	if err := json.Unmarshal([]byte(text), &pages); err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || pages[0].ID != "widget" {
		t.Errorf("pages: %+v", pages)
	}

	text, isErr = callTool(t, session, "formwatch_navigate", map[string]any{
		"page_id": "widget",
		"url":     "/posts/next",
	})
	if isErr {
		t.Fatalf("navigate: %s", text)
	}
	loc, _ := win.Location(context.Background())
	if loc != "https://example.com/posts/next" {
		t.Errorf("location: %s", loc)
	}

	win.AppendHTML("body", productHTML+formHTML)
	win.Flush()

	text, isErr = callTool(t, session, "formwatch_detections", map[string]any{"page_id": "widget"})
	if isErr {
		t.Fatalf("detections: %s", text)
	}
	var ds []event.Detection
	if err := json.Unmarshal([]byte(text), &ds); err != nil {
		t.Fatal(err)
	}
	if len(ds) != 1 || ds[0].Product.Title != "Widget Pro" || ds[0].PageURL != "https://example.com/posts/next" {
		t.Errorf("detections: %+v", ds)
	}
}

func TestMCP_Errors(t *testing.T) {
	w := New(nil, nil)
	defer w.Stop()
	w.Attach(context.Background(), PageConfig{ID: "p", URL: "https://example.com/"}, memdom.Blank("https://example.com/"))
	session := mcpSession(t, w)

	if _, isErr := callTool(t, session, "formwatch_navigate", map[string]any{"page_id": "nope", "url": "/"}); !isErr {
		t.Error("navigate unknown page: expected tool error")
	}
	if _, isErr := callTool(t, session, "formwatch_navigate", map[string]any{"page_id": "p"}); !isErr {
		t.Error("navigate without url or direction: expected tool error")
	}
	if _, isErr := callTool(t, session, "formwatch_detections", map[string]any{"page_id": "nope"}); !isErr {
		t.Error("detections unknown page: expected tool error")
	}
}
