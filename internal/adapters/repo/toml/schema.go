package toml

import (
	"fmt"

	"github.com/brelli/genrepl/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version int           `toml:"version"`
	Models  []modelSchema `toml:"models"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported models schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type modelSchema struct {
	Name              string  `toml:"name"`
	RequestsPerMinute int     `toml:"rpm_limit"`
	SafetyMargin      float64 `toml:"safety_margin,omitempty"`
	MaxContextTokens  int     `toml:"max_context_tokens,omitempty"`
}

func toSchema(profile domain.ModelProfile) modelSchema {
	return modelSchema{
		Name:              profile.Name,
		RequestsPerMinute: profile.RequestsPerMinute,
		SafetyMargin:      profile.SafetyMargin,
		MaxContextTokens:  profile.MaxContextTokens,
	}
}

func fromSchema(entry modelSchema) domain.ModelProfile {
	profile := domain.ModelProfile{
		Name:              entry.Name,
		RequestsPerMinute: entry.RequestsPerMinute,
		SafetyMargin:      entry.SafetyMargin,
		MaxContextTokens:  entry.MaxContextTokens,
	}

	if profile.RequestsPerMinute <= 0 {
		profile.RequestsPerMinute = domain.DefaultRequestsPerMinute
	}
	if profile.SafetyMargin <= 0 || profile.SafetyMargin > 1 {
		profile.SafetyMargin = domain.DefaultSafetyMargin
	}
	if profile.MaxContextTokens <= 0 {
		profile.MaxContextTokens = domain.DefaultMaxContextTokens
	}

	return profile
}
