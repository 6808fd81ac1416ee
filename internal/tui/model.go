package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/matrix"
	"github.com/gridci/gridci/internal/model"
)

// EntryStartMsg indicates a matrix entry has started its pipeline.
type EntryStartMsg struct {
	Entry matrix.Entry
	Time  time.Time
}

// StepStartMsg indicates a step of one entry has started executing.
type StepStartMsg struct {
	Version string
	ID      string
	Time    time.Time
}

// StepCompleteMsg reports that a step of one entry has finished.
type StepCompleteMsg struct {
	Version string
	Result  model.StepResult
}

// EntryCompleteMsg reports the final outcome of a matrix entry.
type EntryCompleteMsg struct {
	Result model.EntryResult
}

// RunCompleteMsg carries the aggregated report once every entry finished.
type RunCompleteMsg struct {
	Report matrix.Report
}

type tickMsg struct{}

// entryState tracks the live step results of one matrix entry.
type entryState struct {
	version      string
	allowFailure bool
	running      bool
	done         bool
	outcome      model.Outcome
	duration     time.Duration
	order        []string
	steps        map[string]model.StepResult
}

// Model contains the Bubbletea state for the matrix execution TUI.
type Model struct {
	cfg            *config.Config
	order          []string
	entries        map[string]*entryState
	report         *matrix.Report
	finished       bool
	cancelled      bool
	nonInteractive bool
}

// NewModel constructs a TUI model seeded with the expanded matrix entries.
func NewModel(cfg *config.Config, entries []matrix.Entry, nonInteractive bool) Model {
	m := Model{
		cfg:            cfg,
		entries:        make(map[string]*entryState),
		nonInteractive: nonInteractive,
	}
	for _, entry := range entries {
		m.ensureEntry(entry.Version, entry.AllowFailure)
	}
	return m
}

// Init starts the Bubbletea program.
func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

// IsFinished reports whether the run has completed.
func (m Model) IsFinished() bool {
	return m.finished
}

// Cancelled reports whether the user interrupted the run.
func (m Model) Cancelled() bool {
	return m.cancelled
}

func (m *Model) ensureEntry(version string, allowFailure bool) *entryState {
	if state, exists := m.entries[version]; exists {
		return state
	}
	state := &entryState{
		version:      version,
		allowFailure: allowFailure,
		steps:        make(map[string]model.StepResult),
	}
	m.entries[version] = state
	m.order = append(m.order, version)
	return state
}

func (s *entryState) ensureStep(id string) {
	if id == "" {
		return
	}
	if _, exists := s.steps[id]; !exists {
		s.steps[id] = model.StepResult{StepID: id, Status: model.StatusPending}
		s.order = append(s.order, id)
	}
}
