package render

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pario-ai/evalview/pkg/coordinator"
	"github.com/pario-ai/evalview/pkg/models"
)

var (
	accent    = lipgloss.Color("#50E3C2")
	amber     = lipgloss.Color("#F6AE2D")
	muted     = lipgloss.Color("#8CA1AE")
	danger    = lipgloss.Color("#FF6B6B")
	successFg = lipgloss.Color("#7BD88F")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(muted)

	errorStyle = lipgloss.NewStyle().
			Foreground(danger).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(successFg)

	runningStyle = lipgloss.NewStyle().
			Foreground(amber)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1)
)

func statusStyle(s models.OperationStatus) lipgloss.Style {
	switch s {
	case models.OpSuccess:
		return successStyle
	case models.OpError:
		return errorStyle
	default:
		return runningStyle
	}
}

func statusIcon(s models.OperationStatus) string {
	switch s {
	case models.OpSuccess:
		return "✓"
	case models.OpError:
		return "✗"
	default:
		return "…"
	}
}

func levelStyle(l coordinator.Level) lipgloss.Style {
	switch l {
	case coordinator.LevelSuccess:
		return successStyle
	case coordinator.LevelError:
		return errorStyle
	default:
		return headerStyle
	}
}

func jobStyle(s models.JobStatus) lipgloss.Style {
	switch s {
	case models.JobCompleted:
		return successStyle
	case models.JobFailed, models.JobCancelled:
		return errorStyle
	default:
		return runningStyle
	}
}
