package formwatch

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/formwatch/kit"
)

// RegisterMCP registers formwatch tools on an MCP server.
func (w *Watcher) RegisterMCP(srv *mcp.Server) {
	w.registerStatusTool(srv)
	w.registerNavigateTool(srv)
	w.registerDetectionsTool(srv)
}

// toolEndpoint wraps a tool endpoint with call logging and panic recovery.
func (w *Watcher) toolEndpoint(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(w.logger, name), kit.Recover())(e)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- status ---

func (w *Watcher) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formwatch_status",
		Description: "List watched pages with their session, navigation and detection counters.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return w.Status(), nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}

	kit.RegisterMCPTool(srv, tool, w.toolEndpoint(tool.Name, endpoint), decode)
}

// --- navigate ---

func (w *Watcher) registerNavigateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formwatch_navigate",
		Description: "Navigate a watched page client-side (pushState) or traverse its history. The presence watch is re-armed.",
		InputSchema: inputSchema(map[string]any{
			"page_id":   map[string]any{"type": "string", "description": "Watched page id"},
			"url":       map[string]any{"type": "string", "description": "Target URL, absolute or relative to the current location"},
			"direction": map[string]any{"type": "string", "enum": []any{"back", "forward"}, "description": "Traverse history instead of pushing a URL"},
		}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*navigateToolRequest)
		var err error
		switch {
		case r.URL != "":
			err = w.Navigate(ctx, r.PageID, r.URL)
		case r.Direction == "back":
			err = w.Back(ctx, r.PageID)
		case r.Direction == "forward":
			err = w.Forward(ctx, r.PageID)
		default:
			err = errBadNavigate
		}
		if err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok", "page_id": r.PageID}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r navigateToolRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{
			Request:   &r,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithPageID(ctx, r.PageID) },
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, w.toolEndpoint(tool.Name, endpoint), decode)
}

type navigateToolRequest struct {
	PageID    string `json:"page_id"`
	URL       string `json:"url,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// --- detections ---

type detectionsToolRequest struct {
	PageID string `json:"page_id"`
	Limit  int    `json:"limit,omitempty"`
}

func (w *Watcher) registerDetectionsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formwatch_detections",
		Description: "Latest detections of a page (newest first), with the product context converted to Markdown.",
		InputSchema: inputSchema(map[string]any{
			"page_id": map[string]any{"type": "string", "description": "Watched page id"},
			"limit":   map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*detectionsToolRequest)
		return w.Detections(ctx, r.PageID, r.Limit)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r detectionsToolRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, w.toolEndpoint(tool.Name, endpoint), decode)
}
