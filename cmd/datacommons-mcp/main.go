// Package main is the datacommons-mcp command.
//
// Usage:
//
//	datacommons-mcp serve http [--host localhost] [--port 8080] [--skip-api-key-validation]
//	datacommons-mcp serve stdio [--skip-api-key-validation]
//	datacommons-mcp history [--tool T] [--session S] [--json]
//
// Exit codes:
//   - 0: Normal shutdown
//   - 1: Usage error, missing or invalid DC_API_KEY, or server failure
//
// Environment variables:
//   - DC_API_KEY: Required unless --skip-api-key-validation is given.
//   - DC_API_BASE_URL, DC_SEARCH_URL: Optional endpoint overrides.
//   - DC_MCP_CALL_LOG_BACKEND: Optional. none (default), json, sqlite or postgres.
//   - DC_MCP_CALL_LOG_DIR, DC_MCP_CALL_LOG_PATH, DC_MCP_POSTGRES_URL: Optional call log location.
package main

import (
	"os"

	"github.com/JamesPrial/datacommons-mcp/internal/cli"
)

func run() int {
	return cli.Execute(os.Args[1:])
}

func main() {
	os.Exit(run())
}
