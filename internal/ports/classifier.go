package ports

import (
	"context"

	"github.com/brelli/genrepl/internal/domain"
)

// DecisionClassifier asks the remote model whether a query needs a tool.
// Implementations normalize the model's loosely shaped response into a
// canonical ToolDecision before returning it; validation and fallback happen
// in the decision cache.
type DecisionClassifier interface {
	Classify(ctx context.Context, query string) (domain.ToolDecision, error)
}
