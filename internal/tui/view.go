package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gridci/gridci/internal/model"
)

// View renders the current state of the model.
func (m Model) View() string {
	var sections []string

	title := titleStyle.Render(fmt.Sprintf("gridci • %s", m.title()))
	sections = append(sections, title)

	for _, version := range m.order {
		state := m.entries[version]
		sections = append(sections, sectionStyle.Render(entryHeading(state)))
		if lines := renderSteps(state); lines != "" {
			sections = append(sections, lines)
		}
	}

	if summary := m.summary(); summary != "" {
		sections = append(sections, summaryStyle.Render(summary))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func entryHeading(state *entryState) string {
	label := state.version
	if state.allowFailure {
		label += " (failures allowed)"
	}

	switch {
	case state.done:
		heading := fmt.Sprintf("%s %s", OutcomeIcon(state.outcome), label)
		if state.duration > 0 {
			heading = fmt.Sprintf("%s (%s)", heading, state.duration.Truncate(10*time.Millisecond))
		}
		return heading
	case state.running:
		return fmt.Sprintf("%s %s", runningStyle.Render("⏳"), label)
	default:
		return fmt.Sprintf("%s %s", pendingStyle.Render("…"), label)
	}
}

func renderSteps(state *entryState) string {
	var lines []string
	for _, id := range state.order {
		res := state.steps[id]
		line := fmt.Sprintf("   %s %s", StatusIcon(res.Status), id)
		if strings.TrimSpace(res.Message) != "" {
			line = fmt.Sprintf("%s · %s", line, res.Message)
		}
		if res.Duration > 0 {
			line = fmt.Sprintf("%s (%s)", line, res.Duration.Truncate(10*time.Millisecond))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) summary() string {
	switch {
	case m.cancelled:
		return failureStyle.Render("Cancelled.")
	case m.report != nil:
		if m.report.Success() {
			return successStyle.Render(m.report.Summary())
		}
		return failureStyle.Render(m.report.Summary())
	default:
		return ""
	}
}

func (m Model) title() string {
	if m.cfg != nil && strings.TrimSpace(m.cfg.Name) != "" {
		return m.cfg.Name
	}
	return "Matrix"
}

// OutcomeIcon returns the glyph representing a finished entry's outcome.
func OutcomeIcon(outcome model.Outcome) string {
	switch outcome {
	case model.OutcomePassed:
		return successStyle.Render("✓")
	case model.OutcomeExempted:
		return exemptedStyle.Render("!")
	default:
		return failureStyle.Render("✗")
	}
}

// StatusIcon returns the glyph representing a step status.
func StatusIcon(status string) string {
	switch status {
	case model.StatusSuccess:
		return successStyle.Render("✓")
	case model.StatusRunning:
		return runningStyle.Render("⏳")
	case model.StatusFailed:
		return failureStyle.Render("✗")
	case model.StatusSkipped:
		return skippedStyle.Render("⊘")
	case model.StatusWouldRun:
		return pendingStyle.Render("✱")
	default:
		return pendingStyle.Render("…")
	}
}
