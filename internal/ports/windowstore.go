package ports

import (
	"context"

	"github.com/brelli/genrepl/internal/domain"
)

// WindowStore persists the full conversation window as one document,
// overwritten on every mutation.
type WindowStore interface {
	Save(ctx context.Context, turns []domain.Turn) error
	Load(ctx context.Context) ([]domain.Turn, error)
}
