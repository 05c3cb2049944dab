package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JamesPrial/datacommons-mcp/internal/datacommons"
)

// handleSearchIndicators runs search_indicators.
func (s *Server) handleSearchIndicators(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in datacommons.SearchRequest
	if err := bindArguments(request, &in); err != nil {
		return mcp.NewToolResultError("Invalid arguments: " + err.Error()), nil
	}

	resp, err := s.svc.SearchIndicators(ctx, in)
	if err != nil {
		return s.toolError(ctx, ToolSearchIndicators, err), nil
	}
	return mcp.NewToolResultJSON(resp)
}

// handleGetObservations runs get_observations.
func (s *Server) handleGetObservations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in datacommons.ObservationRequest
	if err := bindArguments(request, &in); err != nil {
		return mcp.NewToolResultError("Invalid arguments: " + err.Error()), nil
	}

	resp, err := s.svc.GetObservations(ctx, in)
	if err != nil {
		return s.toolError(ctx, ToolGetObservations, err), nil
	}
	return mcp.NewToolResultJSON(resp)
}

// bindArguments decodes the tool arguments into dst by their JSON names.
func bindArguments(request mcp.CallToolRequest, dst any) error {
	args := request.GetArguments()
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%s must be of type %s", typeErr.Field, typeErr.Type)
		}
		return err
	}
	return nil
}

// toolError turns a service error into a tool error result. Caller mistakes
// are reported verbatim; upstream failures are logged as well.
func (s *Server) toolError(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	var reqErr *datacommons.RequestError
	switch {
	case errors.As(err, &reqErr):
		return mcp.NewToolResultError(reqErr.Error())
	case errors.Is(err, datacommons.ErrNoObservations):
		return mcp.NewToolResultError(err.Error())
	}

	s.logger.WarnContext(ctx, "tool call failed", "tool", tool, "error", err)
	var apiErr *datacommons.APIError
	if errors.As(err, &apiErr) {
		return mcp.NewToolResultError(fmt.Sprintf("Data Commons request failed with HTTP %d", apiErr.StatusCode))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", tool, err))
}
