package domain

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one unit of conversation. Tokens is computed once at append time
// and never recomputed.
type Turn struct {
	Role      Role
	Content   string
	CreatedAt time.Time
	Tokens    int
}

// TokenEstimator maps text to an estimated token count.
type TokenEstimator func(text string) int

// HeuristicEstimator is the fallback estimator: roughly four characters per
// token, which tracks close enough to real tokenizers for budget enforcement.
func HeuristicEstimator(text string) int {
	return len(text) / 4
}
