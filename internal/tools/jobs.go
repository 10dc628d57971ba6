package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/qaharvest/internal/models"
)

// JobInput identifies a job.
type JobInput struct {
	JobID string `json:"job_id" jsonschema:"ID returned by submit_scrape"`
}

// NewGetJobHandler creates the get_job handler.
func NewGetJobHandler(deps *Dependencies) mcp.ToolHandlerFor[JobInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input JobInput) (*mcp.CallToolResult, any, error) {
		if input.JobID == "" {
			return ErrorResult("job_id is required", ""), nil, nil
		}

		job, err := deps.Jobs.Get(ctx, input.JobID)
		if err != nil {
			return jobError(deps, input.JobID, err), nil, nil
		}
		return JSONResult(job), nil, nil
	}
}

// NewJobResultsHandler creates the job_results handler.
func NewJobResultsHandler(deps *Dependencies) mcp.ToolHandlerFor[JobInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input JobInput) (*mcp.CallToolResult, any, error) {
		if input.JobID == "" {
			return ErrorResult("job_id is required", ""), nil, nil
		}

		if _, err := deps.Jobs.Get(ctx, input.JobID); err != nil {
			return jobError(deps, input.JobID, err), nil, nil
		}

		pairs, err := deps.QA.Results(ctx, input.JobID)
		if err != nil {
			deps.Logger.Error("load results failed", "job_id", input.JobID, "error", err)
			return ErrorResult("Failed to load results", "Storage may be unavailable"), nil, nil
		}
		return JSONResult(pairs), nil, nil
	}
}

func jobError(deps *Dependencies, id string, err error) *mcp.CallToolResult {
	if errors.Is(err, models.ErrNotFound) {
		return ErrorResult("Job not found", "Check the job_id returned by submit_scrape")
	}
	deps.Logger.Error("load job failed", "job_id", id, "error", err)
	return ErrorResult("Failed to load job", "Storage may be unavailable")
}
