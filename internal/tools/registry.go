package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers every harvester tool with the MCP server.
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_scrape",
		Description: "Queue a web article for question and answer extraction",
	}, NewSubmitHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_random",
		Description: "Discover articles and queue them for extraction",
	}, NewSubmitRandomHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_job",
		Description: "Get the status of a scrape job",
	}, NewGetJobHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_results",
		Description: "List the question and answer pairs a job produced",
	}, NewJobResultsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_qa",
		Description: "Page through all stored question and answer pairs, newest first",
	}, NewListQAHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Job and question counts, success rate and queue size",
	}, NewStatsHandler(deps))
}
