// Package mcp provides the codex-mcp server, registering the codex tools
// and publishing model instructions.
package mcp

import (
	_ "embed"

	codexmcp "github.com/deixis/codex-mcp"
	"github.com/deixis/codex-mcp/internal/codex"
	"github.com/deixis/codex-mcp/internal/config"
	"github.com/deixis/codex-mcp/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	cfg       *config.Config
	exec      *codex.Executor
	store     report.Store
	workspace string // absolute directory request cwd values resolve against
}

// NewServer creates an MCP server with the codex tools registered.
func NewServer(cfg *config.Config, exec *codex.Executor, store report.Store, workspace string) *mcp.Server {
	h := &handler{
		cfg:       cfg,
		exec:      exec,
		store:     store,
		workspace: workspace,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "codex-mcp", Version: codexmcp.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "codex",
		Description: `Execute the Codex CLI for an AI-assisted coding task.

Runs codex exec non-interactively in the workspace and returns a JSON object
with success, SESSION_ID, the agent's message, run_id, and any error or
warnings. Pass SESSION_ID from an earlier call to resume that session.`,
	}, h.codexHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "codex_result",
		Description: `Retrieve a stored codex run by its run_id.

Use the run_id from a codex tool result. Set events=true to include the
full NDJSON event log captured from the run.`,
	}, h.resultHandler)

	return s
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
