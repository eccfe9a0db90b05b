package ports

import (
	"context"

	"github.com/brelli/genrepl/internal/domain"
)

type ModelProfileRepository interface {
	GetByName(ctx context.Context, name string) (domain.ModelProfile, error)
	List(ctx context.Context) ([]domain.ModelProfile, error)
	Save(ctx context.Context, profile domain.ModelProfile) error
}
