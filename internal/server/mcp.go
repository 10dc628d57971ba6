package server

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCP creates the MCP server with request logging installed. Tools are
// registered by the caller.
func NewMCP(version string, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "qaharvest", Version: version}, nil)
	s.AddReceivingMiddleware(MCPLoggingMiddleware(logger))
	return s
}
