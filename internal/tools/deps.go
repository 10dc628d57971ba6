// Package tools exposes the harvester as MCP tools.
package tools

import (
	"log/slog"

	"github.com/raphaelgruber/qaharvest/internal/service"
)

// Dependencies holds the services the tool handlers call.
type Dependencies struct {
	Submitter *service.Submitter
	Jobs      *service.JobManager
	QA        *service.QAService
	QueueLen  func() int
	Logger    *slog.Logger
}

func (d *Dependencies) queueLen() int {
	if d.QueueLen == nil {
		return 0
	}
	return d.QueueLen()
}
