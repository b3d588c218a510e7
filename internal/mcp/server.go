package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jcdickinson/ferrisfind/internal/daemon"
	"github.com/jcdickinson/ferrisfind/internal/markdown"
	"github.com/jcdickinson/ferrisfind/internal/rpc"
)

//go:embed instructions.md
var instructions string

const (
	defaultLimit = 10
	summaryLen   = 160
)

type Server struct {
	mcpServer *server.MCPServer
	client    *daemon.Client
	limit     int
}

// NewServer connects to the daemon, spawning it if needed. limit is the
// default number of results per category and cliName is how the
// instructions refer to the command line tool.
func NewServer(socketPath string, limit int, cliName string) (*Server, error) {
	client, err := daemon.ConnectOrSpawn(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w", err)
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	s := &Server{client: client, limit: limit}

	mcpServer := server.NewMCPServer(
		"ferrisfind",
		"0.1.0",
		server.WithInstructions(fmt.Sprintf(instructions, cliName)),
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s, nil
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("search_items",
			mcp.WithDescription("Search loaded rustdoc indexes by item name, path, or function signature. Accepts the rustdoc query syntax: `vec`, `std::vec::Vec`, `fn:push`, `u8 -> bool`, `\"Exact\"`. Returns three ranked lists: matches by name, by parameter type, and by return type."),
			mcp.WithString("query",
				mcp.Description("Query in rustdoc search syntax"),
				mcp.Required(),
			),
			mcp.WithString("crate",
				mcp.Description("Restrict results to one crate"),
			),
			mcp.WithString("current_crate",
				mcp.Description("Crate whose items rank ahead of equally good matches"),
			),
			mcp.WithNumber("limit",
				mcp.Description(fmt.Sprintf("Maximum results per list (default %d)", s.limitOrDefault())),
			),
		),
		s.handleSearchItems,
	)

	mcpServer.AddTool(
		mcp.NewTool("parse_query",
			mcp.WithDescription("Parse a query without searching. Shows how elements, generics, type filter, and return types were understood, or the parse error."),
			mcp.WithString("query",
				mcp.Description("Query in rustdoc search syntax"),
				mcp.Required(),
			),
		),
		s.handleParseQuery,
	)

	mcpServer.AddTool(
		mcp.NewTool("load_index",
			mcp.WithDescription("Load rustdoc search-index.js files (or JSON / .zst variants) into the search daemon. A crate loaded later replaces a crate of the same name."),
			mcp.WithArray("paths",
				mcp.Description("Index file paths"),
				mcp.Required(),
				mcp.Items(map[string]interface{}{"type": "string"}),
			),
		),
		s.handleLoadIndex,
	)

	mcpServer.AddTool(
		mcp.NewTool("list_sources",
			mcp.WithDescription("List loaded index files with their crates and item counts."),
		),
		s.handleListSources,
	)
}

func (s *Server) limitOrDefault() int {
	if s.limit <= 0 {
		return defaultLimit
	}
	return s.limit
}

// toolResult is a search result trimmed for tool output.
type toolResult struct {
	Path      string `json:"path"`
	Kind      string `json:"kind"`
	Crate     string `json:"crate"`
	Href      string `json:"href"`
	Signature string `json:"signature,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Alias     string `json:"alias,omitempty"`
}

type toolResponse struct {
	Error    string       `json:"error,omitempty"`
	Others   []toolResult `json:"names"`
	InArgs   []toolResult `json:"in_parameters"`
	Returned []toolResult `json:"in_return_types"`
}

func convertResults(items []rpc.ItemResult, limit int) []toolResult {
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]toolResult, 0, len(items))
	for _, it := range items {
		out = append(out, toolResult{
			Path:      it.DisplayPath + it.Name,
			Kind:      it.Kind.String(),
			Crate:     it.Crate,
			Href:      it.Href,
			Signature: it.Signature,
			Summary:   markdown.Summary(it.Desc, summaryLen),
			Alias:     it.Alias,
		})
	}
	return out
}

func convertResponse(resp *rpc.SearchResponse, limit int) toolResponse {
	out := toolResponse{
		Others:   convertResults(resp.Others, limit),
		InArgs:   convertResults(resp.InArgs, limit),
		Returned: convertResults(resp.Returned, limit),
	}
	if resp.Query != nil {
		out.Error = resp.Query.Error
	}
	return out
}

func (s *Server) handleSearchItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	query, _ := args["query"].(string)
	if query == "" {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	searchReq := rpc.SearchRequest{Query: query}
	searchReq.Crate, _ = args["crate"].(string)
	searchReq.CurrentCrate, _ = args["current_crate"].(string)

	limit := s.limitOrDefault()
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	resp, err := s.client.Search(ctx, searchReq)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(convertResponse(resp, limit), "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleParseQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	query, _ := args["query"].(string)
	if query == "" {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	resultJSON, _ := json.MarshalIndent(daemon.ParseQuery(query), "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleLoadIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	pathsRaw, ok := args["paths"]
	if !ok {
		return mcp.NewToolResultError("missing required parameter: paths"), nil
	}

	pathsJSON, err := json.Marshal(pathsRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid paths parameter: %v", err)), nil
	}
	var paths []string
	if err := json.Unmarshal(pathsJSON, &paths); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid paths format: %v", err)), nil
	}
	if len(paths) == 0 {
		return mcp.NewToolResultError("paths must not be empty"), nil
	}

	resp, err := s.client.Load(ctx, paths, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load indexes: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp.Results, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.client.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) Shutdown(_ context.Context) error {
	s.client.Close()
	return nil
}
