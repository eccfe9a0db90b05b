package ports

import (
	"context"

	"github.com/brelli/genrepl/internal/domain"
)

// ToolRunner executes one sandboxed file operation. Operational failures
// (missing file, denied path) come back inside the ToolResult, not as Go
// errors; an error return means the runner itself is unusable.
type ToolRunner interface {
	Run(ctx context.Context, tool domain.ToolName, args map[string]string) (domain.ToolResult, error)
	Schemas() []ToolSchema
}
