// Package report persists completed codex runs so a caller can drill into
// a run's event log and diagnostics after the tool call that produced it
// has returned.
package report

import (
	"time"

	"github.com/deixis/codex-mcp/internal/codex"
)

// Store persists and retrieves run records by run ID.
type Store interface {
	Save(rec *Record) error
	Load(runID string) (*Record, error)
}

// Record wraps one execution result with the request context worth keeping.
type Record struct {
	ID         string        `json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	Prompt     string        `json:"prompt,omitempty"`
	WorkingDir string        `json:"working_dir,omitempty"`
	Result     *codex.Result `json:"result"`
}
