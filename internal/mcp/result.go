package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deixis/codex-mcp/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type resultParams struct {
	RunID  string `json:"run_id" jsonschema:"the run_id from a codex tool result"`
	Events bool   `json:"events,omitempty" jsonschema:"include the full captured event log"`
}

func (h *handler) resultHandler(ctx context.Context, req *mcp.CallToolRequest, params resultParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	rec, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}
	if rec.Result == nil {
		return errorResult(fmt.Sprintf("run %s has no stored result", params.RunID))
	}

	return textResult(formatRecord(rec, params.Events))
}

func formatRecord(rec *report.Record, withEvents bool) string {
	var b strings.Builder

	res := rec.Result
	fmt.Fprintf(&b, "Run: %s\n", rec.ID)
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	}
	if rec.WorkingDir != "" {
		fmt.Fprintf(&b, "Cwd: %s\n", rec.WorkingDir)
	}
	if res.Success {
		fmt.Fprintln(&b, "Status: SUCCESS")
	} else {
		fmt.Fprintln(&b, "Status: FAILED")
	}
	if res.SessionID != "" {
		fmt.Fprintf(&b, "SESSION_ID: %s\n", res.SessionID)
	}
	fmt.Fprintf(&b, "Exit code: %d\n", res.ExitCode)

	if res.AgentText != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Message:")
		fmt.Fprintln(&b, res.AgentText)
	}
	if res.Error != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Error:")
		fmt.Fprintln(&b, res.Error)
	}
	if res.Warnings != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Warnings:")
		fmt.Fprintln(&b, res.Warnings)
	}

	fmt.Fprintln(&b)
	if res.EventsTruncated {
		fmt.Fprintf(&b, "Events: %d captured (truncated)\n", len(res.Events))
	} else {
		fmt.Fprintf(&b, "Events: %d captured\n", len(res.Events))
	}

	if withEvents && len(res.Events) > 0 {
		for _, ev := range res.Events {
			line, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			b.Write(line)
			b.WriteByte('\n')
		}
	}

	return b.String()
}
