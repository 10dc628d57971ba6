package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/qaharvest/internal/service"
)

// maxRandomCount caps submit_random like the HTTP endpoint does.
const maxRandomCount = 10

var validate = validator.New(validator.WithRequiredStructEnabled())

// SubmitInput defines the input schema for submit_scrape.
type SubmitInput struct {
	URL string `json:"url" jsonschema:"Absolute http or https URL of the article"`
}

// NewSubmitHandler creates the submit_scrape handler. Submitting a URL that
// already has a job returns that job.
func NewSubmitHandler(deps *Dependencies) mcp.ToolHandlerFor[SubmitInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SubmitInput) (*mcp.CallToolResult, any, error) {
		if err := validate.Var(input.URL, "required,http_url,max=2048"); err != nil {
			return ErrorResult("Invalid url", "Provide an absolute http or https URL"), nil, nil
		}

		res, err := deps.Submitter.Submit(ctx, input.URL)
		if err != nil {
			deps.Logger.Error("submit failed", "url", input.URL, "error", err)
			return ErrorResult("Failed to submit url", "Storage may be unavailable"), nil, nil
		}

		deps.Logger.Info("url submitted", "job_id", res.JobID, "created", res.Created)
		return JSONResult(res), nil, nil
	}
}

// SubmitRandomInput defines the input schema for submit_random.
type SubmitRandomInput struct {
	Count int `json:"count,omitempty" jsonschema:"Number of articles to submit, 1 to 10 (default 1)"`
}

// RandomResult is the response from submit_random.
type RandomResult struct {
	Message string                 `json:"message"`
	Jobs    []service.SubmitResult `json:"jobs"`
}

// NewSubmitRandomHandler creates the submit_random handler.
func NewSubmitRandomHandler(deps *Dependencies) mcp.ToolHandlerFor[SubmitRandomInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SubmitRandomInput) (*mcp.CallToolResult, any, error) {
		count := min(max(input.Count, 1), maxRandomCount)

		results, err := deps.Submitter.SubmitRandom(ctx, count)
		if err != nil {
			deps.Logger.Error("random submit failed", "error", err)
			return ErrorResult("Failed to discover articles", err.Error()), nil, nil
		}
		if len(results) == 0 {
			return ErrorResult("Failed to discover articles", "No article URLs were found"), nil, nil
		}

		return JSONResult(RandomResult{
			Message: fmt.Sprintf("Submitted %d random articles for scraping", len(results)),
			Jobs:    results,
		}), nil, nil
	}
}
