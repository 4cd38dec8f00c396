// Package codexmcp holds shared metadata for the codex-mcp module.
package codexmcp

// Version is the codex-mcp release version.
const Version = "0.2.0"
