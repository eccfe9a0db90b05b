package ports

import (
	"context"

	"github.com/brelli/genrepl/internal/domain"
)

// SessionLog is the append-only causal session ledger.
type SessionLog interface {
	SessionID() string
	Append(ctx context.Context, entryType domain.EntryType, message any, metadata map[string]any) (string, error)
	Resume(ctx context.Context) ([]domain.SessionEntry, error)
	ListSessions(ctx context.Context) ([]domain.SessionSummary, error)
}
