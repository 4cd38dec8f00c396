package codex

import (
	"strings"
	"testing"
)

func TestConsumeEvent_SessionIDLatestWins(t *testing.T) {
	r := &Result{Success: true}
	for _, line := range []string{
		`{"thread_id":"first"}`,
		`{"thread_id":""}`,
		`{"type":"item.completed"}`,
		`{"thread_id":"second"}`,
	} {
		if err := r.consumeEvent([]byte(line)); err != nil {
			t.Fatalf("consumeEvent(%s): %v", line, err)
		}
	}
	if r.SessionID != "second" {
		t.Errorf("SessionID = %q, want %q", r.SessionID, "second")
	}
}

func TestConsumeEvent_AgentMessageSeparator(t *testing.T) {
	r := &Result{Success: true}
	lines := []string{
		`{"item":{"type":"agent_message","text":"one"}}`,
		`{"item":{"type":"reasoning","text":"ignored"}}`,
		`{"item":{"type":"agent_message","text":"two"}}`,
	}
	for _, line := range lines {
		if err := r.consumeEvent([]byte(line)); err != nil {
			t.Fatalf("consumeEvent: %v", err)
		}
	}
	if r.AgentText != "one\ntwo" {
		t.Errorf("AgentText = %q, want %q", r.AgentText, "one\ntwo")
	}
}

func TestConsumeEvent_FailureEventNestedMessageWins(t *testing.T) {
	r := &Result{Success: true}
	line := `{"type":"turn.failed","error":{"message":"boom"},"message":"outer"}`
	if err := r.consumeEvent([]byte(line)); err != nil {
		t.Fatalf("consumeEvent: %v", err)
	}
	if r.Success {
		t.Error("Success = true after failure event")
	}
	if r.Error != "codex error: boom" {
		t.Errorf("Error = %q, want nested message", r.Error)
	}
}

func TestConsumeEvent_FailureEventTopLevelMessage(t *testing.T) {
	r := &Result{Success: true}
	if err := r.consumeEvent([]byte(`{"type":"stream_error","message":"broken pipe"}`)); err != nil {
		t.Fatalf("consumeEvent: %v", err)
	}
	if r.Success {
		t.Error("Success = true after error event")
	}
	if !strings.Contains(r.Error, "broken pipe") {
		t.Errorf("Error = %q, want to contain %q", r.Error, "broken pipe")
	}
}

func TestConsumeEvent_FailureEventWithoutMessage(t *testing.T) {
	r := &Result{Success: true}
	if err := r.consumeEvent([]byte(`{"type":"task_failed"}`)); err != nil {
		t.Fatalf("consumeEvent: %v", err)
	}
	if r.Success {
		t.Error("Success = true after failure event")
	}
	if r.Error != "" {
		t.Errorf("Error = %q, want empty when the event carries no message", r.Error)
	}
}

func TestConsumeEvent_FailureDoesNotStopAccumulation(t *testing.T) {
	r := &Result{Success: true}
	lines := []string{
		`{"type":"task_failed","error":{"message":"boom"}}`,
		`{"thread_id":"after-failure"}`,
		`{"item":{"type":"agent_message","text":"still here"}}`,
	}
	for _, line := range lines {
		if err := r.consumeEvent([]byte(line)); err != nil {
			t.Fatalf("consumeEvent: %v", err)
		}
	}
	if r.SessionID != "after-failure" || r.AgentText != "still here" {
		t.Errorf("accumulation stopped after failure event: session=%q text=%q", r.SessionID, r.AgentText)
	}
	if len(r.Events) != 3 {
		t.Errorf("len(Events) = %d, want 3", len(r.Events))
	}
}

func TestConsumeEvent_NonObjectJSON(t *testing.T) {
	r := &Result{Success: true}
	for _, line := range []string{`5`, `"text"`, `[1,2]`, `null`} {
		if err := r.consumeEvent([]byte(line)); err != nil {
			t.Errorf("consumeEvent(%s) = %v, want nil", line, err)
		}
	}
	if len(r.Events) != 0 {
		t.Errorf("len(Events) = %d, want 0 for non-object lines", len(r.Events))
	}
	if !r.Success {
		t.Error("Success flipped by non-object lines")
	}
}

func TestConsumeEvent_ParseError(t *testing.T) {
	r := &Result{Success: true}
	if err := r.consumeEvent([]byte(`{not json`)); err == nil {
		t.Error("expected parse error")
	}
}

func TestAppendAgentText_TruncationIdempotent(t *testing.T) {
	r := &Result{Success: true}
	r.AgentText = strings.Repeat("a", MaxAgentTextBytes-4)

	for range 5 {
		r.appendAgentText("well past the cap")
	}

	if !r.AgentTextTruncated {
		t.Fatal("AgentTextTruncated = false")
	}
	if !strings.HasSuffix(r.AgentText, agentTextTruncMarker) {
		t.Error("AgentText does not end with the truncation marker")
	}
	if n := strings.Count(r.AgentText, agentTextTruncMarker); n != 1 {
		t.Errorf("marker appears %d times, want 1", n)
	}
	if len(r.AgentText) > MaxAgentTextBytes+len(agentTextTruncMarker)+1 {
		t.Errorf("len(AgentText) = %d, exceeds cap plus marker", len(r.AgentText))
	}
}

func TestKeepEvent_SizeBudgetSticky(t *testing.T) {
	r := &Result{Success: true}
	r.eventBytes = MaxEventBytes - 10

	big := []byte(`{"k":"` + strings.Repeat("v", 20) + `"}`)
	if err := r.consumeEvent(big); err != nil {
		t.Fatalf("consumeEvent: %v", err)
	}
	if !r.EventsTruncated {
		t.Fatal("EventsTruncated = false after budget exhausted")
	}
	if len(r.Events) != 0 {
		t.Errorf("len(Events) = %d, want 0", len(r.Events))
	}

	// Sticky: even a tiny event no longer gets in.
	if err := r.consumeEvent([]byte(`{"k":1}`)); err != nil {
		t.Fatalf("consumeEvent: %v", err)
	}
	if len(r.Events) != 0 {
		t.Error("event appended after EventsTruncated was set")
	}
}

func TestKeepEvent_CountBudget(t *testing.T) {
	r := &Result{Success: true}
	r.Events = make([]map[string]any, MaxEventCount)

	if err := r.consumeEvent([]byte(`{"k":1}`)); err != nil {
		t.Fatalf("consumeEvent: %v", err)
	}
	if !r.EventsTruncated {
		t.Error("EventsTruncated = false after count cap")
	}
	if len(r.Events) != MaxEventCount {
		t.Errorf("len(Events) = %d, want %d", len(r.Events), MaxEventCount)
	}
}

func TestAppendError_NeverOverwrites(t *testing.T) {
	r := &Result{Success: true}
	r.appendError("first")
	r.appendError("second")
	if r.Error != "first\nsecond" {
		t.Errorf("Error = %q, want newline-joined messages", r.Error)
	}
	if r.Success {
		t.Error("Success = true after appendError")
	}
}

func TestFinalize_NonZeroExit(t *testing.T) {
	r := &Result{Success: true, SessionID: "s1", AgentText: "hi"}
	r.finalize(2, "something went wrong")

	if r.Success {
		t.Error("Success = true after non-zero exit")
	}
	if !strings.Contains(r.Error, "exited with code 2") {
		t.Errorf("Error = %q, want exit code message", r.Error)
	}
	if !strings.Contains(r.Error, "stderr: something went wrong") {
		t.Errorf("Error = %q, want stderr context", r.Error)
	}
	if r.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", r.ExitCode)
	}
}

func TestFinalize_NonZeroExitKeepsRootCause(t *testing.T) {
	r := &Result{Success: true, SessionID: "s1", AgentText: "hi"}
	r.appendError("codex error: boom")
	r.finalize(1, "noise")

	if !strings.HasPrefix(r.Error, "codex error: boom") {
		t.Errorf("Error = %q, root cause was replaced", r.Error)
	}
	if strings.Contains(r.Error, "exited with code") {
		t.Errorf("Error = %q, generic exit message should not appear alongside a root cause", r.Error)
	}
	if !strings.Contains(r.Error, "stderr: noise") {
		t.Errorf("Error = %q, want stderr appended as context", r.Error)
	}
}

func TestFinalize_StderrIsWarningOnSuccess(t *testing.T) {
	r := &Result{Success: true, SessionID: "s1", AgentText: "hi"}
	r.finalize(0, "progress chatter")

	if !r.Success {
		t.Error("Success = false for clean exit with stderr output")
	}
	if r.Error != "" {
		t.Errorf("Error = %q, want empty", r.Error)
	}
	if r.Warnings != "progress chatter" {
		t.Errorf("Warnings = %q, want stderr content", r.Warnings)
	}
}

func TestFinalize_MissingSessionID(t *testing.T) {
	r := &Result{Success: true, AgentText: "hi"}
	r.finalize(0, "")

	if r.Success {
		t.Error("Success = true with missing session id")
	}
	if r.Error != errMissingSession {
		t.Errorf("Error = %q, want %q", r.Error, errMissingSession)
	}
}

func TestFinalize_MissingSessionIDDoesNotMaskError(t *testing.T) {
	r := &Result{Success: true, AgentText: "hi"}
	r.appendError("stdout line exceeded 64 bytes")
	r.finalize(0, "")

	if strings.Contains(r.Error, errMissingSession) {
		t.Errorf("Error = %q, missing-session message masked the root cause", r.Error)
	}
}

func TestFinalize_EmptyAgentTextIsWarningOnly(t *testing.T) {
	r := &Result{Success: true, SessionID: "s1"}
	r.finalize(0, "")

	if !r.Success {
		t.Error("Success = false for empty agent text")
	}
	if r.Warnings != warnNoAgentText {
		t.Errorf("Warnings = %q, want %q", r.Warnings, warnNoAgentText)
	}
}
