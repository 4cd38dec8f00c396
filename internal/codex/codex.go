// Package codex executes the Codex CLI as a one-shot child process,
// drains both of its output pipes under strict memory bounds, and folds
// the NDJSON event stream into a structured Result.
package codex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/deixis/codex-mcp/internal/lineio"
)

// EnvBinary overrides the configured codex binary, mainly for tests and
// custom installs.
const EnvBinary = "CODEX_BIN"

// DefaultTimeout bounds a run when neither the request nor the executor
// specifies a deadline.
const DefaultTimeout = 10 * time.Minute

// Request describes one codex execution. It is immutable once handed to Run.
// The caller is responsible for validating the prompt and canonicalizing
// WorkingDir and AttachmentPaths.
type Request struct {
	Prompt            string        // instruction text, non-empty
	WorkingDir        string        // absolute working directory for the child
	ResumeSessionID   string        // exact SESSION_ID of an earlier run, or empty
	ExtraArgs         []string      // extra codex exec flags
	AttachmentPaths   []string      // image files, one --image flag each
	Timeout           time.Duration // 0 means the executor default
	PreflightWarnings []string      // advisories computed before launch
}

// Executor runs codex child processes. One execution owns one child and its
// two pipes exclusively; there is no pooling or reuse.
type Executor struct {
	Binary         string        // codex binary; EnvBinary wins when set
	DefaultTimeout time.Duration // per-run deadline when the request has none
	MaxTimeout     time.Duration // ceiling any requested deadline is clamped to
	MaxLineBytes   int           // bound for a single stdout/stderr line
	Logger         *log.Logger
}

// Run executes codex under a wall-clock deadline. Launch failures are
// returned as errors; every recoverable condition lands in the Result.
// When the deadline fires first, the child is killed through the command
// context and a synthetic timeout Result is returned while the abandoned
// drain keeps consuming both pipes to EOF.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("empty prompt")
	}

	timeout := e.timeoutFor(req)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.runOnce(ctx, req)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		if ctx.Err() != context.DeadlineExceeded {
			return nil, ctx.Err()
		}
		e.logger().Warn("codex execution timed out", "timeout", timeout)
		return timeoutResult(req, timeout), nil
	}
}

// runOnce launches the child and coordinates the three concurrent
// activities: the stdout event drain (this goroutine), the stderr drain
// (its own goroutine), and the process-exit wait.
func (e *Executor) runOnce(ctx context.Context, req Request) (*Result, error) {
	bin := e.binary()
	cmd := exec.CommandContext(ctx, bin, buildArgs(req)...)
	cmd.Dir = req.WorkingDir
	// Stdin stays at the null device: codex is never interactive here.
	// WaitDelay breaks a Wait that would otherwise hang on inherited pipes.
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("acquiring stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("acquiring stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning %s: %w", bin, err)
	}
	e.logger().Debug("codex started", "pid", cmd.Process.Pid, "dir", req.WorkingDir)

	// Stderr is drained concurrently so the child can never stall on a full
	// stderr pipe while stdout is still being consumed, and vice versa.
	stderrCh := make(chan string, 1)
	go func() {
		stderrCh <- drainStderr(lineio.NewReader(stderr, e.maxLineBytes()))
	}()

	res := newResult(req)
	e.drainEvents(lineio.NewReader(stdout, e.maxLineBytes()), cmd, res)

	// Both pipes reach EOF once the child exits. Join the stderr drain
	// before Wait so Wait cannot close the pipe under the goroutine.
	stderrOut := <-stderrCh

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("waiting for codex: %w", err)
		}
	}

	res.finalize(exitCode, stderrOut)
	return res, nil
}

// drainEvents reads the event stream to EOF. After the first oversized or
// unparseable line the loop latches into drain-only mode: the child is
// killed best-effort, but bytes keep being consumed so a child that
// outlives the kill cannot block on a full pipe.
func (e *Executor) drainEvents(r *lineio.Reader, cmd *exec.Cmd, res *Result) {
	drainOnly := false
	latch := func(msg string) {
		if drainOnly {
			return
		}
		drainOnly = true
		res.appendError(msg)
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}

	for {
		line, truncated, err := r.ReadLine()
		if err != nil {
			if err != io.EOF {
				e.logger().Warn("reading codex stdout", "err", err)
			}
			return
		}
		if truncated {
			latch(fmt.Sprintf("stdout line exceeded %d bytes", r.Max()))
			continue
		}
		if len(line) == 0 || drainOnly {
			continue
		}
		if perr := res.consumeEvent(line); perr != nil {
			latch(fmt.Sprintf("JSON parse error: %v. Line: %s", perr, line))
		}
	}
}

// drainStderr accumulates the diagnostic stream into a newline-joined
// string capped at MaxStderrBytes, then keeps consuming to EOF.
func drainStderr(r *lineio.Reader) string {
	var b strings.Builder
	capped := false
	for {
		line, truncated, err := r.ReadLine()
		if err != nil {
			return b.String()
		}
		if capped || truncated {
			continue
		}
		sep := 0
		if b.Len() > 0 {
			sep = 1
		}
		if b.Len()+sep+len(line) > MaxStderrBytes {
			// Keep the prefix that fits, then mark the cut.
			if remain := MaxStderrBytes - b.Len() - sep; remain > 0 {
				if sep == 1 {
					b.WriteByte('\n')
				}
				b.Write(line[:remain])
				sep = 1
			}
			if sep == 1 {
				b.WriteByte('\n')
			}
			b.WriteString(stderrTruncMarker)
			capped = true
			continue
		}
		if sep == 1 {
			b.WriteByte('\n')
		}
		b.Write(line)
	}
}

// buildArgs assembles the codex exec argv. Attachments are passed as
// repeated --image flags and the prompt as the terminal positional
// argument, so the argument vector, not a shell, carries every value.
func buildArgs(req Request) []string {
	args := []string{"exec", "--cd", req.WorkingDir, "--json"}
	args = append(args, req.ExtraArgs...)
	for _, p := range req.AttachmentPaths {
		args = append(args, "--image", p)
	}
	if req.ResumeSessionID != "" {
		args = append(args, "resume", req.ResumeSessionID)
	}
	return append(args, "--", req.Prompt)
}

// newResult seeds a Result with a fresh run id and any advisories the
// caller computed before launch.
func newResult(req Request) *Result {
	res := &Result{RunID: uuid.New().String(), Success: true}
	for _, w := range req.PreflightWarnings {
		res.addWarning(w)
	}
	return res
}

// timeoutResult is the terminal result for a run abandoned at its deadline.
// It bypasses finalize: its fields already satisfy every invariant, and
// preflight advisories are kept so the timeout does not mask them.
func timeoutResult(req Request, timeout time.Duration) *Result {
	res := newResult(req)
	res.Success = false
	res.Error = fmt.Sprintf("codex execution timed out after %d seconds", int(timeout.Seconds()))
	return res
}

func (e *Executor) binary() string {
	if b := os.Getenv(EnvBinary); b != "" {
		return b
	}
	if e.Binary != "" {
		return e.Binary
	}
	return "codex"
}

func (e *Executor) maxLineBytes() int {
	return e.MaxLineBytes // lineio applies its own default for <= 0
}

// timeoutFor resolves the request deadline: request value, then the
// executor default, clamped to the configured ceiling.
func (e *Executor) timeoutFor(req Request) time.Duration {
	d := req.Timeout
	if d <= 0 {
		d = e.DefaultTimeout
	}
	if d <= 0 {
		d = DefaultTimeout
	}
	if e.MaxTimeout > 0 && d > e.MaxTimeout {
		d = e.MaxTimeout
	}
	return d
}

func (e *Executor) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}
