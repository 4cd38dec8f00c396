package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deixis/codex-mcp/internal/codex"
	"github.com/deixis/codex-mcp/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type codexParams struct {
	Prompt      string   `json:"PROMPT" jsonschema:"instruction for the task to send to codex; required, non-empty"`
	SessionID   string   `json:"SESSION_ID,omitempty" jsonschema:"exact SESSION_ID returned by an earlier codex call to resume that session; omit to start a new one"`
	Images      []string `json:"images,omitempty" jsonschema:"image files to attach to the prompt, absolute or relative to cwd"`
	Cwd         string   `json:"cwd,omitempty" jsonschema:"working directory for the run, relative to the server workspace; defaults to the workspace root"`
	TimeoutSecs int      `json:"timeout_secs,omitempty" jsonschema:"deadline in seconds; defaults to the configured timeout"`
}

// codexOutput is the JSON shape returned to the caller.
type codexOutput struct {
	Success            bool   `json:"success"`
	SessionID          string `json:"SESSION_ID"`
	Message            string `json:"message"`
	RunID              string `json:"run_id"`
	AgentTextTruncated bool   `json:"agent_messages_truncated,omitempty"`
	EventsTruncated    bool   `json:"events_truncated,omitempty"`
	Error              string `json:"error,omitempty"`
	Warnings           string `json:"warnings,omitempty"`
}

func (h *handler) codexHandler(ctx context.Context, req *mcp.CallToolRequest, params codexParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return errorResult("PROMPT is required and must be a non-empty string")
	}

	dir, err := h.resolveDir(params.Cwd)
	if err != nil {
		return errorResult(err.Error())
	}

	images, err := resolveImages(dir, params.Images)
	if err != nil {
		return errorResult(err.Error())
	}

	// Advisories about the supplementary instructions file are computed
	// before launch so even a timed-out run reports them.
	prompt, preflight := h.withInstructions(params.Prompt)

	creq := codex.Request{
		Prompt:            prompt,
		WorkingDir:        dir,
		ResumeSessionID:   params.SessionID,
		ExtraArgs:         h.cfg.DefaultArgs,
		AttachmentPaths:   images,
		Timeout:           time.Duration(params.TimeoutSecs) * time.Second,
		PreflightWarnings: preflight,
	}

	res, err := h.exec.Run(ctx, creq)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to execute codex: %v", err))
	}

	// Best effort: a run that cannot be stored is still reported.
	_ = h.store.Save(&report.Record{
		ID:         res.RunID,
		CreatedAt:  time.Now().UTC(),
		Prompt:     params.Prompt,
		WorkingDir: dir,
		Result:     res,
	})

	out := codexOutput{
		Success:            res.Success,
		SessionID:          res.SessionID,
		Message:            res.AgentText,
		RunID:              res.RunID,
		AgentTextTruncated: res.AgentTextTruncated,
		EventsTruncated:    res.EventsTruncated,
		Error:              res.Error,
		Warnings:           res.Warnings,
	}
	data, err := json.Marshal(out)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to serialize output: %v", err))
	}

	// Always a success result: callers inspect the success, error, and
	// warnings fields of the payload itself.
	return textResult(string(data))
}

// resolveDir resolves cwd relative to the workspace, validates it stays
// within the workspace boundary, and canonicalizes it.
func (h *handler) resolveDir(cwd string) (string, error) {
	dir := h.workspace
	if cwd != "" {
		if filepath.IsAbs(cwd) {
			dir = filepath.Clean(cwd)
		} else {
			dir = filepath.Clean(filepath.Join(h.workspace, cwd))
		}
		rel, err := filepath.Rel(h.workspace, dir)
		if err != nil {
			return "", fmt.Errorf("resolving cwd: %w", err)
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, h.workspace)
		}
	}

	canonical, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", fmt.Errorf("working directory does not exist or is not accessible: %s (%v)", dir, err)
	}
	info, err := os.Stat(canonical)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("working directory is not a directory: %s", dir)
	}
	return canonical, nil
}

// resolveImages canonicalizes attachment paths relative to dir and checks
// each one is a regular file. Paths are handed to codex as argument-vector
// values, so no quoting or escaping happens here.
func resolveImages(dir string, images []string) ([]string, error) {
	if len(images) == 0 {
		return nil, nil
	}
	resolved := make([]string, 0, len(images))
	for _, img := range images {
		p := img
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		canonical, err := filepath.EvalSymlinks(p)
		if err != nil {
			return nil, fmt.Errorf("image file does not exist or is not accessible: %s (%v)", p, err)
		}
		info, err := os.Stat(canonical)
		if err != nil || !info.Mode().IsRegular() {
			return nil, fmt.Errorf("image path is not a file: %s", p)
		}
		resolved = append(resolved, canonical)
	}
	return resolved, nil
}
