// Package mcpserver exposes the Data Commons services as MCP tools over
// stdio or streamable HTTP.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names.
const (
	ToolSearchIndicators = "search_indicators"
	ToolGetObservations  = "get_observations"
)

// instructions is sent to clients on initialize.
const instructions = `You are connected to a Data Commons MCP server.

Core rules:
1. ALWAYS call search_indicators first; never invent DCIDs.
2. Use human-readable, qualified place names ("California, USA"), never DCIDs, in searches.
3. For child places, pass the parent place and a child_place_type (e.g. State, County) to get_observations.
4. Avoid date="all" when requesting child places; prefer date="latest" or a bounded range.
5. Treat search results as candidates; pick the most relevant variable based on places_with_data coverage.
6. For bilateral queries (trade, migration), set maybe_bilateral=true when searching.
7. Cite the primary source from observation responses.

Workflow: search_indicators -> choose variable/place DCIDs -> get_observations -> summarize.`

// searchIndicatorsTool returns the definition of search_indicators.
func searchIndicatorsTool() mcp.Tool {
	return mcp.NewTool(ToolSearchIndicators,
		mcp.WithDescription("Search Data Commons for statistical variables (and optionally topics) matching a natural-language query. "+
			"Returns candidate variable DCIDs, which of the given places have data for each, and DCID-to-name and place-type mappings."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What to look for, e.g. \"population\" or \"unemployment rate\"")),
		mcp.WithArray("places",
			mcp.Description("Human-readable place names, e.g. [\"France\", \"California, USA\"]"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithBoolean("include_topics",
			mcp.Description("Also return matching topics with their member variables (default false)")),
		mcp.WithBoolean("maybe_bilateral",
			mcp.Description("Set for bilateral indicators such as trade or migration between the given places (default false)")),
	)
}

// getObservationsTool returns the definition of get_observations.
func getObservationsTool() mcp.Tool {
	return mcp.NewTool(ToolGetObservations,
		mcp.WithDescription("Fetch observations of one statistical variable for a place, or for all child places of a given type within it. "+
			"One source is selected for all places; other sources are listed as alternatives."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("variable_dcid",
			mcp.Required(),
			mcp.Description("Variable DCID from search_indicators, e.g. Count_Person")),
		mcp.WithString("place_dcid",
			mcp.Required(),
			mcp.Description("Place DCID, e.g. country/USA. With child_place_type this is the parent place.")),
		mcp.WithString("child_place_type",
			mcp.Description("Return all places of this type within place_dcid, e.g. State or County")),
		mcp.WithString("source_override",
			mcp.Description("Source (facet) id to use instead of the default one")),
		mcp.WithString("date",
			mcp.Description("'latest' (default), 'all', 'range', or a date as YYYY, YYYY-MM or YYYY-MM-DD")),
		mcp.WithString("date_range_start",
			mcp.Description("Inclusive start of the range, YYYY, YYYY-MM or YYYY-MM-DD")),
		mcp.WithString("date_range_end",
			mcp.Description("Inclusive end of the range, YYYY, YYYY-MM or YYYY-MM-DD")),
	)
}
