package proxy

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/cardcrafter/grid"
	"github.com/hazyhaar/cardcrafter/kit"
)

// RegisterMCP registers the proxy tools on an MCP server. The tools skip
// the session token check, so the transport must authenticate its caller:
// stdio is local, and HTTP serving requires an operator bearer token.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	mw := kit.Chain(kit.Logging(s.logger, "mcp"))
	s.registerFetch(srv, mw)
	s.registerStats(srv, mw)
	s.registerRefresh(srv, mw)
	s.registerExport(srv, mw)
}

func (s *Service) registerFetch(srv *mcp.Server, mw kit.Middleware) {
	type req struct {
		URL string `json:"url"`
	}
	tool := &mcp.Tool{
		Name:        "cardcrafter_fetch",
		Description: "Fetch a remote JSON document through the cardcrafter proxy cache",
		InputSchema: kit.InputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "http(s) URL of a JSON document"},
		}, []string{"url"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		payload, err := s.FetchTrusted(ctx, p.URL)
		if err != nil {
			return nil, publicError(err)
		}
		return map[string]json.RawMessage{"data": payload}, nil
	}
	kit.RegisterMCPTool(srv, tool, mw(endpoint), kit.DecodeArgs[req]())
}

func (s *Service) registerStats(srv *mcp.Server, mw kit.Middleware) {
	type req struct{}
	tool := &mcp.Tool{
		Name:        "cardcrafter_stats",
		Description: "Report cached entries and tracked URLs",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Stats(ctx)
	}
	kit.RegisterMCPTool(srv, tool, mw(endpoint), kit.DecodeArgs[req]())
}

func (s *Service) registerRefresh(srv *mcp.Server, mw kit.Middleware) {
	type req struct{}
	tool := &mcp.Tool{
		Name:        "cardcrafter_refresh",
		Description: "Run one background refresh cycle over tracked URLs now",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		res := s.RefreshNow(ctx)
		return map[string]any{
			"ok":         res.OK,
			"failed":     res.Failed,
			"purged":     res.Purged,
			"elapsed_ms": res.Elapsed.Milliseconds(),
		}, nil
	}
	kit.RegisterMCPTool(srv, tool, mw(endpoint), kit.DecodeArgs[req]())
}

func (s *Service) registerExport(srv *mcp.Server, mw kit.Middleware) {
	type req struct {
		URL    string        `json:"url"`
		Format string        `json:"format"`
		Query  string        `json:"query"`
		Sort   string        `json:"sort"`
		Fields grid.FieldMap `json:"fields"`
	}
	fieldProps := map[string]any{}
	for _, role := range []string{"image", "title", "subtitle", "description", "link"} {
		fieldProps[role] = map[string]any{"type": "string"}
	}
	tool := &mcp.Tool{
		Name:        "cardcrafter_export",
		Description: "Export a JSON source as CSV, JSON or PDF after optional search and sort",
		InputSchema: kit.InputSchema(map[string]any{
			"url":    map[string]any{"type": "string", "description": "http(s) URL of a JSON document"},
			"format": map[string]any{"type": "string", "enum": []string{"csv", "json", "pdf"}},
			"query":  map[string]any{"type": "string", "description": "Search query"},
			"sort":   map[string]any{"type": "string", "enum": []string{"default", "az", "za"}},
			"fields": map[string]any{"type": "object", "description": "Role to dotted-path mapping", "properties": fieldProps},
		}, []string{"url", "format"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		format, err := grid.ParseFormat(p.Format)
		if err != nil {
			return nil, err
		}
		sortKey, err := grid.ParseSortKey(p.Sort)
		if err != nil {
			return nil, err
		}

		cfg := grid.DefaultConfig()
		cfg.Selector = "mcp"
		cfg.Source = p.URL
		cfg.Pagination = false
		cfg.Fields = p.Fields
		eng, err := grid.New(cfg, LocalLoader{Service: s}, grid.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		defer eng.Close()
		if err := eng.Init(ctx); err != nil {
			return nil, publicError(err)
		}
		eng.ApplyQuery(p.Query)
		if err := eng.SetSort(sortKey); err != nil {
			return nil, err
		}
		file, err := eng.Export(format)
		if err != nil {
			return nil, err
		}

		out := map[string]any{
			"filename": file.Filename,
			"mime":     file.MIME,
			"items":    eng.Snapshot().Filtered,
		}
		if format == grid.FormatPDF {
			out["data_base64"] = base64.StdEncoding.EncodeToString(file.Data)
		} else {
			out["content"] = string(file.Data)
		}
		return out, nil
	}
	kit.RegisterMCPTool(srv, tool, mw(endpoint), kit.DecodeArgs[req]())
}

type publicErr struct{ msg string }

func (e publicErr) Error() string { return e.msg }

// publicError hides upstream detail from MCP callers.
func publicError(err error) error {
	if msg := grid.UserMessage(err); msg != grid.DefaultLoadMessage {
		return publicErr{msg}
	}
	return publicErr{PublicMessage(err)}
}
