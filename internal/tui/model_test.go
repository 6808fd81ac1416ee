package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/matrix"
	"github.com/gridci/gridci/internal/model"
)

func seededModel() Model {
	cfg := &config.Config{Name: "pymake-matrix"}
	entries := []matrix.Entry{
		{Version: "3.6"},
		{Version: "3.7-dev", AllowFailure: true},
	}
	return NewModel(cfg, entries, false)
}

func TestNewModelSeedsEntries(t *testing.T) {
	t.Parallel()

	m := seededModel()
	require.Equal(t, []string{"3.6", "3.7-dev"}, m.order)
	require.True(t, m.entries["3.7-dev"].allowFailure)
	require.False(t, m.IsFinished())
}

func TestUpdateStepLifecycle(t *testing.T) {
	t.Parallel()

	m := seededModel()

	updated, _ := m.Update(StepStartMsg{Version: "3.6", ID: "script_1"})
	m = updated.(Model)
	require.Equal(t, model.StatusRunning, m.entries["3.6"].steps["script_1"].Status)

	updated, _ = m.Update(StepCompleteMsg{
		Version: "3.6",
		Result:  model.StepResult{StepID: "script_1", Status: model.StatusSuccess},
	})
	m = updated.(Model)
	require.Equal(t, model.StatusSuccess, m.entries["3.6"].steps["script_1"].Status)
}

func TestUpdateEntryLifecycle(t *testing.T) {
	t.Parallel()

	m := seededModel()

	updated, _ := m.Update(EntryStartMsg{Entry: matrix.Entry{Version: "3.6"}})
	m = updated.(Model)
	require.True(t, m.entries["3.6"].running)

	updated, _ = m.Update(EntryCompleteMsg{Result: model.EntryResult{
		Version: "3.6",
		Outcome: model.OutcomePassed,
	}})
	m = updated.(Model)
	require.True(t, m.entries["3.6"].done)
	require.Equal(t, model.OutcomePassed, m.entries["3.6"].outcome)
	require.False(t, m.IsFinished(), "one entry finishing does not end the run")
}

func TestUpdateRunComplete(t *testing.T) {
	t.Parallel()

	m := seededModel()
	report := matrix.Aggregate([]model.EntryResult{
		{Version: "3.6", Outcome: model.OutcomePassed},
		{Version: "3.7-dev", Outcome: model.OutcomeExempted},
	})

	updated, cmd := m.Update(RunCompleteMsg{Report: report})
	m = updated.(Model)
	require.True(t, m.IsFinished())
	require.NotNil(t, cmd)
}

func TestUpdateCtrlCCancels(t *testing.T) {
	t.Parallel()

	m := seededModel()
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(Model)
	require.True(t, m.Cancelled())
	require.True(t, m.IsFinished())
	require.NotNil(t, cmd)
}

func TestUpdateUnknownEntryIsTracked(t *testing.T) {
	t.Parallel()

	m := NewModel(nil, nil, true)
	updated, _ := m.Update(StepStartMsg{Version: "2.7", ID: "install_1"})
	m = updated.(Model)
	require.Contains(t, m.entries, "2.7")
}
