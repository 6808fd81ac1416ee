package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gridci/gridci/internal/model"
)

// Update handles Bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, nil
	case EntryStartMsg:
		state := m.ensureEntry(msg.Entry.Version, msg.Entry.AllowFailure)
		state.running = true
		return m, nil
	case StepStartMsg:
		state := m.ensureEntry(msg.Version, false)
		state.ensureStep(msg.ID)
		step := state.steps[msg.ID]
		step.Status = model.StatusRunning
		state.steps[msg.ID] = step
		return m, nil
	case StepCompleteMsg:
		id := msg.Result.StepID
		if id == "" {
			return m, nil
		}
		state := m.ensureEntry(msg.Version, false)
		state.ensureStep(id)
		state.steps[id] = msg.Result
		return m, nil
	case EntryCompleteMsg:
		state := m.ensureEntry(msg.Result.Version, msg.Result.AllowFailure)
		state.running = false
		state.done = true
		state.outcome = msg.Result.Outcome
		state.duration = msg.Result.Duration
		return m, nil
	case RunCompleteMsg:
		m.report = &msg.Report
		m.finished = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			m.finished = true
			return m, tea.Quit
		}
	case tea.QuitMsg:
		m.finished = true
		return m, nil
	}

	return m, nil
}
