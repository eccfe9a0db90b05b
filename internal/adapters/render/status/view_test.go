package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brelli/genrepl/internal/application"
	"github.com/brelli/genrepl/internal/domain"
)

func TestRenderViewShowsOccupancy(t *testing.T) {
	admission := application.AdmissionStatus{
		Model:          "gemini-2.5-flash",
		Used:           3,
		NominalLimit:   10,
		EffectiveLimit: 9,
		Remaining:      6,
		Percent:        33.3,
	}

	out := renderView(admission, nil, RenderOptions{}, newStyles())

	assert.Contains(t, out, "Rate Limit Status")
	assert.Contains(t, out, "model: gemini-2.5-flash")
	assert.Contains(t, out, "3/9 RPM (limit 10, margin applied)")
	assert.NotContains(t, out, "at effective limit")
}

func TestRenderViewWarnsAtLimit(t *testing.T) {
	admission := application.AdmissionStatus{
		Model:          "gemini-2.5-pro",
		Used:           4,
		NominalLimit:   5,
		EffectiveLimit: 4,
		Remaining:      0,
		Percent:        100,
	}

	out := renderView(admission, nil, RenderOptions{}, newStyles())
	assert.Contains(t, out, "at effective limit, next request will wait")
}

func TestRenderViewIncludesCacheSection(t *testing.T) {
	cache := &application.CacheStats{Size: 2, Hits: 3, Misses: 1, HitRate: 0.75}

	out := renderView(application.AdmissionStatus{Model: "m"}, cache, RenderOptions{}, newStyles())

	assert.Contains(t, out, "Decision Cache")
	assert.Contains(t, out, "entries: 2")
	assert.Contains(t, out, "hits: 3  misses: 1  hit rate: 75%")
}

func TestRenderSessionsView(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions := []domain.SessionSummary{
		{
			SessionID:      "8c0f18c4-1af0-4ab5-9829-2cb2b7e2d0a1",
			EntryCount:     6,
			SizeBytes:      2048,
			FirstTimestamp: now.Add(-2 * time.Hour),
			LastTimestamp:  now.Add(-time.Hour),
			ModifiedAt:     now.Add(-time.Hour),
		},
	}

	out := renderSessionsView(sessions, RenderOptions{Now: now}, newStyles())

	assert.Contains(t, out, "Sessions")
	assert.Contains(t, out, "sessions: 1")
	assert.Contains(t, out, "8c0f18c4-1af0-4ab5-9829-2cb2b7e2d0a1")
	assert.Contains(t, out, "entries: 6  size: 2048 bytes")
	assert.Contains(t, out, "modified 1 hours ago")
}

func TestRenderSessionsViewEmpty(t *testing.T) {
	out := renderSessionsView(nil, RenderOptions{}, newStyles())
	assert.Contains(t, out, "No sessions recorded.")
}

func TestRenderProgressBar(t *testing.T) {
	s := newStyles()

	assert.Equal(t, "[====------]", renderProgressBar(40, 10, s))
	assert.Equal(t, "[----------]", renderProgressBar(0, 10, s))
	assert.Equal(t, "[==========]", renderProgressBar(100, 10, s))
	assert.Equal(t, "[==========]", renderProgressBar(250, 10, s))
	assert.Equal(t, "[----------]", renderProgressBar(-5, 10, s))
	assert.Empty(t, renderProgressBar(50, 0, s))
}

func TestFormatRelative(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "just now", formatRelative(now.Add(-30*time.Second), now))
	assert.Equal(t, "5 minutes ago", formatRelative(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3 hours ago", formatRelative(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2 days ago", formatRelative(now.Add(-49*time.Hour), now))
	assert.Equal(t, "unknown", formatRelative(time.Time{}, now))
}

func TestRenderProducesOutput(t *testing.T) {
	out, err := Render(application.AdmissionStatus{Model: "m", NominalLimit: 10, EffectiveLimit: 9}, nil, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, "Rate Limit Status")
}
