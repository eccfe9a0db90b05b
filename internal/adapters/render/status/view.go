package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/brelli/genrepl/internal/application"
	"github.com/brelli/genrepl/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	Now time.Time
}

func renderView(admission application.AdmissionStatus, cache *application.CacheStats, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Rate Limit Status"),
		s.header.Render(fmt.Sprintf("model: %s", admission.Model)),
		limitLine(admission, s),
	}

	if admission.Remaining == 0 {
		lines = append(lines, s.warning.Render("at effective limit, next request will wait"))
	}

	if cache != nil {
		lines = append(lines, s.section.Render(cacheLines(*cache, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func limitLine(admission application.AdmissionStatus, s styles) string {
	bar := renderProgressBar(admission.Percent, 24, s)
	text := s.barText.Render(fmt.Sprintf("%d/%d RPM (limit %d, margin applied)",
		admission.Used, admission.EffectiveLimit, admission.NominalLimit))

	return lipgloss.JoinHorizontal(lipgloss.Top, bar, " ", text)
}

func cacheLines(cache application.CacheStats, s styles) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		s.title.Render("Decision Cache"),
		s.detail.Render(fmt.Sprintf("entries: %d", cache.Size)),
		s.detail.Render(fmt.Sprintf("hits: %d  misses: %d  hit rate: %.0f%%", cache.Hits, cache.Misses, cache.HitRate*100)),
	)
}

func renderSessionsView(sessions []domain.SessionSummary, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Sessions"),
		s.header.Render(fmt.Sprintf("sessions: %d", len(sessions))),
	}

	if len(sessions) == 0 {
		lines = append(lines, s.empty.Render("No sessions recorded."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, session := range sessions {
		lines = append(lines, s.section.Render(sessionLines(session, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func sessionLines(session domain.SessionSummary, opts RenderOptions, s styles) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		s.model.Render(session.SessionID),
		s.detail.Render(fmt.Sprintf("entries: %d  size: %d bytes", session.EntryCount, session.SizeBytes)),
		s.detail.Render(fmt.Sprintf("first: %s  last: %s",
			formatStamp(session.FirstTimestamp), formatStamp(session.LastTimestamp))),
		s.header.Render(fmt.Sprintf("modified %s", formatRelative(session.ModifiedAt, opts.Now))),
	)
}

func renderProgressBar(usedPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	used := clampPercent(usedPercent)
	filled := int(math.Round(float64(width) * used / 100.0))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	empty := width - filled
	fillSegment := s.barFill.Render(strings.Repeat("=", filled))
	emptySegment := s.barEmpty.Render(strings.Repeat("-", empty))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		fillSegment,
		emptySegment,
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("15:04 on 02 Jan")
}

func formatRelative(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	if now.IsZero() || t.After(now) {
		return t.Format(time.RFC3339)
	}

	elapsed := now.Sub(t)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%d days ago", int(elapsed.Hours()/24))
	}
}
