package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/brelli/genrepl/internal/application"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type waitTickMsg time.Time

type waitCountdownModel struct {
	spinner  spinner.Model
	status   application.AdmissionStatus
	deadline time.Time
	done     bool
}

func newWaitCountdownModel(status application.AdmissionStatus, deadline time.Time) waitCountdownModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return waitCountdownModel{
		spinner:  s,
		status:   status,
		deadline: deadline,
	}
}

func waitTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return waitTickMsg(t)
	})
}

func (m waitCountdownModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitTick())
}

func (m waitCountdownModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case waitTickMsg:
		if !time.Time(msg).Before(m.deadline) {
			m.done = true
			return m, tea.Quit
		}
		return m, waitTick()
	default:
		return m, nil
	}
}

func (m waitCountdownModel) View() string {
	if m.done {
		return ""
	}

	remaining := time.Until(m.deadline)
	if remaining < 0 {
		remaining = 0
	}

	return fmt.Sprintf("%s rate limit reached (%d/%d RPM), waiting %.1fs...",
		m.spinner.View(), m.status.Used, m.status.EffectiveLimit, remaining.Seconds())
}

// runWaitCountdown blocks for the admission wait with a visible countdown,
// returning early if ctx is cancelled.
func runWaitCountdown(ctx context.Context, output io.Writer, controller *application.AdmissionController, wait time.Duration) error {
	p := tea.NewProgram(
		newWaitCountdownModel(controller.Status(), time.Now().Add(wait)),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	if _, err := p.Run(); err != nil {
		return err
	}

	return ctx.Err()
}
