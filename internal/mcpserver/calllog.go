package mcpserver

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/JamesPrial/datacommons-mcp/internal/storage"
)

// recorded wraps a tool handler so every call is written to the call log.
func (s *Server) recorded(tool string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := s.now()
		res, err := h(ctx, request)
		s.recordCall(ctx, tool, request.GetArguments(), start, res, err)
		return res, err
	}
}

func (s *Server) recordCall(ctx context.Context, tool string, args map[string]any, start time.Time, res *mcp.CallToolResult, callErr error) {
	entry := storage.CallEntry{
		ID:         uuid.NewString(),
		Timestamp:  storage.FormatTimestamp(start),
		SessionID:  sessionID(ctx),
		Tool:       tool,
		Arguments:  args,
		Status:     storage.StatusOK,
		DurationMs: s.now().Sub(start).Milliseconds(),
	}
	switch {
	case callErr != nil:
		entry.Status = storage.StatusError
		entry.Error = callErr.Error()
	case res != nil && res.IsError:
		entry.Status = storage.StatusError
		entry.Error = resultMessage(res)
	}

	s.logger.DebugContext(ctx, "tool call",
		"tool", tool,
		"session", entry.SessionID,
		"status", entry.Status,
		"duration_ms", entry.DurationMs)

	// The call log never fails a tool call.
	if err := s.calls.AppendEntry(entry); err != nil {
		s.logger.WarnContext(ctx, "failed to record tool call", "tool", tool, "error", err)
	}
}

func sessionID(ctx context.Context) string {
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		return cs.SessionID()
	}
	return ""
}

// resultMessage joins the text content of a result.
func resultMessage(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
