package codex

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Hard resource bounds for a single execution.
const (
	// MaxAgentTextBytes caps the concatenated agent message text.
	MaxAgentTextBytes = 10 << 20
	// MaxEventBytes caps the cumulative serialized size of kept events.
	MaxEventBytes = 50 << 20
	// MaxEventCount caps the number of kept events.
	MaxEventCount = 10000
	// MaxStderrBytes caps the captured diagnostic stream.
	MaxStderrBytes = 1 << 20
)

const (
	agentTextTruncMarker = "[... agent messages truncated due to size limit ...]"
	stderrTruncMarker    = "[... stderr truncated due to size limit ...]"

	errMissingSession = "failed to capture a session id from the codex stream"
	warnNoAgentText   = "no agent messages returned; check the event log for details"
)

// Result is the aggregate built from one codex execution. While the child
// runs, the stdout drain loop is its only writer; finalize merges the
// stderr capture and validates afterwards. Success only ever flips to
// false, Error and Warnings only ever grow, and the truncation flags are
// sticky.
type Result struct {
	RunID              string           `json:"run_id"`
	Success            bool             `json:"success"`
	SessionID          string           `json:"session_id"`
	AgentText          string           `json:"agent_text"`
	AgentTextTruncated bool             `json:"agent_text_truncated,omitempty"`
	Events             []map[string]any `json:"events,omitempty"`
	EventsTruncated    bool             `json:"events_truncated,omitempty"`
	ExitCode           int              `json:"exit_code"`
	Error              string           `json:"error,omitempty"`
	Warnings           string           `json:"warnings,omitempty"`

	eventBytes int
}

// consumeEvent parses one NDJSON line and folds it into the result.
// The returned error is non-nil only for a JSON parse failure; every other
// condition is recorded on the result itself.
func (r *Result) consumeEvent(line []byte) error {
	var v any
	if err := json.Unmarshal(line, &v); err != nil {
		return err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		// Valid JSON that is not an object carries nothing to inspect.
		return nil
	}

	r.keepEvent(obj, len(line))

	// Latest non-empty thread_id wins.
	if tid, ok := obj["thread_id"].(string); ok && tid != "" {
		r.SessionID = tid
	}

	if item, ok := obj["item"].(map[string]any); ok {
		if t, _ := item["type"].(string); t == "agent_message" {
			if text, ok := item["text"].(string); ok {
				r.appendAgentText(text)
			}
		}
	}

	if t, ok := obj["type"].(string); ok {
		if strings.Contains(t, "fail") || strings.Contains(t, "error") {
			r.Success = false
			if msg := failureMessage(obj); msg != "" {
				r.appendError("codex error: " + msg)
			}
		}
	}
	return nil
}

// failureMessage extracts the most specific message from a failure event:
// a nested error.message wins over a top-level message.
func failureMessage(obj map[string]any) string {
	if eobj, ok := obj["error"].(map[string]any); ok {
		if msg, ok := eobj["message"].(string); ok {
			return msg
		}
	}
	if msg, ok := obj["message"].(string); ok {
		return msg
	}
	return ""
}

// keepEvent appends the event unless the count or cumulative size budget is
// exhausted. size is the serialized length of the originating line.
func (r *Result) keepEvent(obj map[string]any, size int) {
	if r.EventsTruncated {
		return
	}
	if len(r.Events) >= MaxEventCount || r.eventBytes+size > MaxEventBytes {
		r.EventsTruncated = true
		return
	}
	r.eventBytes += size
	r.Events = append(r.Events, obj)
}

// appendAgentText accumulates agent message text under MaxAgentTextBytes.
// Fragments are separated by a newline. Once the cap is reached the marker
// is appended exactly once and all further text is dropped.
func (r *Result) appendAgentText(text string) {
	if r.AgentTextTruncated || text == "" {
		return
	}
	sep := ""
	if r.AgentText != "" {
		sep = "\n"
	}
	if len(r.AgentText)+len(sep)+len(text) > MaxAgentTextBytes {
		r.AgentText += sep + agentTextTruncMarker
		r.AgentTextTruncated = true
		return
	}
	r.AgentText += sep + text
}

// appendError records a failure. An existing error is never overwritten;
// later messages are appended on their own lines.
func (r *Result) appendError(msg string) {
	r.Success = false
	if r.Error != "" {
		r.Error += "\n" + msg
		return
	}
	r.Error = msg
}

// addWarning records an advisory that does not imply failure.
func (r *Result) addWarning(msg string) {
	if r.Warnings != "" {
		r.Warnings += "\n" + msg
		return
	}
	r.Warnings = msg
}

// finalize merges the exit status and the captured stderr into the result
// and validates required fields. A synthetic timeout result never passes
// through here; its invariants hold by construction.
func (r *Result) finalize(exitCode int, stderrOut string) {
	r.ExitCode = exitCode

	if exitCode != 0 {
		r.Success = false
		msg := r.Error
		if msg == "" {
			msg = fmt.Sprintf("codex exited with code %d", exitCode)
		}
		// Stderr is context on top of the root cause, never a replacement.
		if stderrOut != "" {
			msg += "\nstderr: " + stderrOut
		}
		r.Error = msg
	} else if stderrOut != "" {
		// A noisy stderr on a clean exit is advisory only.
		r.addWarning(stderrOut)
	}

	// A missing session id is a secondary symptom: report it only when no
	// more specific error already explains the run.
	if r.SessionID == "" && r.Error == "" {
		r.appendError(errMissingSession)
	}
	if r.AgentText == "" {
		r.addWarning(warnNoAgentText)
	}
}
