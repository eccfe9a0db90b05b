package cmd

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brelli/genrepl/internal/application"
)

func TestWaitCountdownModelQuitsAtDeadline(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newWaitCountdownModel(application.AdmissionStatus{Used: 9, EffectiveLimit: 9}, deadline)

	updated, cmd := m.Update(waitTickMsg(deadline.Add(-time.Second)))
	model, ok := updated.(waitCountdownModel)
	require.True(t, ok)
	assert.False(t, model.done)
	assert.NotNil(t, cmd)

	updated, cmd = model.Update(waitTickMsg(deadline))
	model, ok = updated.(waitCountdownModel)
	require.True(t, ok)
	assert.True(t, model.done)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestWaitCountdownModelView(t *testing.T) {
	m := newWaitCountdownModel(application.AdmissionStatus{Used: 9, EffectiveLimit: 9}, time.Now().Add(30*time.Second))

	view := m.View()
	assert.Contains(t, view, "rate limit reached (9/9 RPM)")
	assert.Contains(t, view, "waiting")

	m.done = true
	assert.Empty(t, m.View())
}
