// Command codex-mcp exposes the Codex CLI as an MCP server and as a
// one-shot command-line runner.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	codexmcp "github.com/deixis/codex-mcp"
	"github.com/deixis/codex-mcp/internal/codex"
	"github.com/deixis/codex-mcp/internal/config"
	codexsrv "github.com/deixis/codex-mcp/internal/mcp"
	"github.com/deixis/codex-mcp/internal/report"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	// Stdout carries the MCP stdio channel; all diagnostics go to stderr.
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "codex-mcp"})

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "mcp":
		err = mcpMain(args, logger)
	case "run":
		err = runMain(args, logger)
	case "version":
		fmt.Println(codexmcp.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "codex-mcp: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: codex-mcp <command> [flags]

Commands:
  mcp         Start the MCP server (stdio, or HTTP with -http)
  run         Execute one codex task and print the result
  version     Print the version
  help        Show this help

Use "codex-mcp <command> -h" for command-specific flags.`)
}

// --- mcp ---

func mcpMain(args []string, logger *log.Logger) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(codexsrv.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	workspace, cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}

	store := report.NewLRUStore(5, report.NewDiskStore())
	server := codexsrv.NewServer(cfg, newExecutor(cfg, 0, logger), store, workspace)

	if *httpAddr != "" {
		return serveHTTP(ctx, server, *httpAddr, logger)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, logger *log.Logger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- run ---

func runMain(args []string, logger *log.Logger) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dirFlag := fs.String("C", "", "working directory for the run (default: current directory)")
	resumeFlag := fs.String("resume", "", "SESSION_ID of an earlier run to resume")
	timeoutFlag := fs.Duration("timeout", 0, "override the configured deadline (e.g. 5m)")
	jsonFlag := fs.Bool("json", false, "output the full result as JSON")
	var images stringList
	fs.Var(&images, "image", "attach an image file (repeatable)")
	_ = fs.Parse(args)

	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return fmt.Errorf("run: a non-empty prompt is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	workspace, cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}

	dir := workspace
	if *dirFlag != "" {
		dir = *dirFlag
	}

	exec := newExecutor(cfg, *timeoutFlag, logger)
	res, err := exec.Run(ctx, codex.Request{
		Prompt:          prompt,
		WorkingDir:      dir,
		ResumeSessionID: *resumeFlag,
		ExtraArgs:       cfg.DefaultArgs,
		AttachmentPaths: images,
	})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Print(formatRunCLI(res))
	}

	if !res.Success {
		os.Exit(1)
	}
	return nil
}

func formatRunCLI(res *codex.Result) string {
	var b []byte
	w := func(format string, args ...any) {
		b = fmt.Appendf(b, format, args...)
	}

	if res.Success {
		w("ok\n")
	} else {
		w("FAIL\n")
	}
	w("\n")
	if res.SessionID != "" {
		w("SESSION_ID: %s\n", res.SessionID)
	}
	w("Run: %s\n", res.RunID)
	if res.AgentText != "" {
		w("\n%s\n", res.AgentText)
	}
	if res.Error != "" {
		w("\nError: %s\n", res.Error)
	}
	if res.Warnings != "" {
		w("\nWarnings: %s\n", res.Warnings)
	}
	return string(b)
}

// --- shared ---

func loadWorkspaceConfig() (string, *config.Config, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return "", nil, fmt.Errorf("determining workspace: %w", err)
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return "", nil, fmt.Errorf("loading config: %w", err)
	}
	return workspace, cfg, nil
}

func newExecutor(cfg *config.Config, timeoutOverride time.Duration, logger *log.Logger) *codex.Executor {
	timeout := cfg.Timeout()
	if timeoutOverride > 0 {
		timeout = timeoutOverride
	}
	return &codex.Executor{
		Binary:         cfg.Binary(),
		DefaultTimeout: timeout,
		MaxTimeout:     cfg.MaxTimeout(),
		MaxLineBytes:   cfg.MaxLineBytes(),
		Logger:         logger,
	}
}

// stringList collects repeated flag values.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
