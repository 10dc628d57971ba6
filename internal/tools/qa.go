package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ListQAInput defines the input schema for list_qa.
type ListQAInput struct {
	Limit  int `json:"limit,omitempty" jsonschema:"Page size, 1 to 500 (default 50)"`
	Offset int `json:"offset,omitempty" jsonschema:"Number of pairs to skip"`
}

// NewListQAHandler creates the list_qa handler.
func NewListQAHandler(deps *Dependencies) mcp.ToolHandlerFor[ListQAInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListQAInput) (*mcp.CallToolResult, any, error) {
		page, err := deps.QA.List(ctx, input.Limit, input.Offset)
		if err != nil {
			deps.Logger.Error("list qa failed", "error", err)
			return ErrorResult("Failed to list pairs", "Storage may be unavailable"), nil, nil
		}
		return JSONResult(page), nil, nil
	}
}

// StatsInput takes no arguments.
type StatsInput struct{}

// NewStatsHandler creates the stats handler.
func NewStatsHandler(deps *Dependencies) mcp.ToolHandlerFor[StatsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (*mcp.CallToolResult, any, error) {
		stats, err := deps.QA.Stats(ctx, deps.queueLen())
		if err != nil {
			deps.Logger.Error("stats failed", "error", err)
			return ErrorResult("Failed to load stats", "Storage may be unavailable"), nil, nil
		}
		return JSONResult(stats), nil, nil
	}
}
