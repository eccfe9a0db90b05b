package domain

const (
	DefaultRequestsPerMinute = 10
	DefaultSafetyMargin      = 0.9
)

// ModelProfile describes the rate and context limits of one remote model
// identity.
type ModelProfile struct {
	Name              string
	RequestsPerMinute int
	SafetyMargin      float64
	MaxContextTokens  int
}

func (p ModelProfile) normalized() ModelProfile {
	if p.RequestsPerMinute <= 0 {
		p.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if p.SafetyMargin <= 0 || p.SafetyMargin > 1 {
		p.SafetyMargin = DefaultSafetyMargin
	}
	if p.MaxContextTokens <= 0 {
		p.MaxContextTokens = DefaultMaxContextTokens
	}
	return p
}

// EffectiveLimit is the admission threshold: the nominal per-minute limit
// scaled down by the safety margin to absorb clock skew and other processes
// sharing the same quota.
func (p ModelProfile) EffectiveLimit() int {
	p = p.normalized()
	limit := int(float64(p.RequestsPerMinute) * p.SafetyMargin)
	if limit < 1 {
		limit = 1
	}
	return limit
}

// DefaultModelProfiles are the published per-minute limits for known models.
func DefaultModelProfiles() []ModelProfile {
	return []ModelProfile{
		{Name: "gemini-2.0-flash-lite", RequestsPerMinute: 30, SafetyMargin: DefaultSafetyMargin, MaxContextTokens: DefaultMaxContextTokens},
		{Name: "gemini-2.0-flash", RequestsPerMinute: 15, SafetyMargin: DefaultSafetyMargin, MaxContextTokens: DefaultMaxContextTokens},
		{Name: "gemini-2.0-flash-exp", RequestsPerMinute: 10, SafetyMargin: DefaultSafetyMargin, MaxContextTokens: DefaultMaxContextTokens},
		{Name: "gemini-2.5-flash", RequestsPerMinute: 10, SafetyMargin: DefaultSafetyMargin, MaxContextTokens: DefaultMaxContextTokens},
		{Name: "gemini-2.5-flash-lite-preview-06-17", RequestsPerMinute: 15, SafetyMargin: DefaultSafetyMargin, MaxContextTokens: DefaultMaxContextTokens},
		{Name: "gemini-2.5-pro", RequestsPerMinute: 5, SafetyMargin: DefaultSafetyMargin, MaxContextTokens: DefaultMaxContextTokens},
		{Name: "gemini-1.5-flash", RequestsPerMinute: 15, SafetyMargin: DefaultSafetyMargin, MaxContextTokens: DefaultMaxContextTokens},
	}
}

// FallbackModelProfile is used for models absent from the repository.
func FallbackModelProfile(name string) ModelProfile {
	return ModelProfile{
		Name:              name,
		RequestsPerMinute: DefaultRequestsPerMinute,
		SafetyMargin:      DefaultSafetyMargin,
		MaxContextTokens:  DefaultMaxContextTokens,
	}
}
