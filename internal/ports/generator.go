package ports

import (
	"context"

	"github.com/brelli/genrepl/internal/domain"
)

// ToolSchema describes one tool offered to the remote model.
type ToolSchema struct {
	Name        domain.ToolName
	Description string
	Parameters  map[string]string
}

// ToolCall is a structured tool invocation requested by the remote model.
type ToolCall struct {
	Name domain.ToolName
	Args map[string]string
}

// GenerateReply is the remote model's answer to one generation request.
type GenerateReply struct {
	Text      string
	ToolCalls []ToolCall
	Tokens    int
}

// TextGenerator is the remote text-generation collaborator. Quota rejections
// are reported as errors wrapping domain.ErrQuotaExceeded so callers can
// distinguish them from other failures.
type TextGenerator interface {
	Generate(ctx context.Context, turns []domain.Turn, tools []ToolSchema) (GenerateReply, error)
}
