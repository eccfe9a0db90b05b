package status

import (
	"errors"
	"io"

	"github.com/brelli/genrepl/internal/application"
	"github.com/brelli/genrepl/internal/domain"
	tea "github.com/charmbracelet/bubbletea"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

type renderReadyMsg struct{}

type model struct {
	render func(s styles) string
	output string
}

func newModel(render func(s styles) string) model {
	return model{render: render}
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		return renderReadyMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case renderReadyMsg:
		m.output = m.render(newStyles())
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m model) View() string {
	return m.output
}

// Render produces the rate-limit status view.
func Render(admission application.AdmissionStatus, cache *application.CacheStats, opts RenderOptions) (string, error) {
	return run(func(s styles) string {
		return renderView(admission, cache, opts, s)
	})
}

// RenderSessions produces the session list view.
func RenderSessions(sessions []domain.SessionSummary, opts RenderOptions) (string, error) {
	return run(func(s styles) string {
		return renderSessionsView(sessions, opts, s)
	})
}

func run(render func(s styles) string) (string, error) {
	p := tea.NewProgram(
		newModel(render),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := finalModel.(model)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}

	return rendered.View(), nil
}
