package tui

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridci/gridci/internal/matrix"
	"github.com/gridci/gridci/internal/model"
)

func TestViewShowsTitleAndEntries(t *testing.T) {
	t.Parallel()

	m := seededModel()
	view := m.View()
	require.Contains(t, view, "pymake-matrix")
	require.Contains(t, view, "3.6")
	require.Contains(t, view, "3.7-dev (failures allowed)")
}

func TestViewShowsStepProgress(t *testing.T) {
	t.Parallel()

	m := seededModel()
	updated, _ := m.Update(StepCompleteMsg{
		Version: "3.6",
		Result:  model.StepResult{StepID: "script_1", Status: model.StatusSuccess, Message: "nosetests passed"},
	})
	m = updated.(Model)

	view := m.View()
	require.Contains(t, view, "script_1")
	require.Contains(t, view, "nosetests passed")
}

func TestViewSummaryAfterRun(t *testing.T) {
	t.Parallel()

	m := seededModel()
	report := matrix.Aggregate([]model.EntryResult{
		{Version: "3.6", Outcome: model.OutcomePassed},
		{Version: "3.7-dev", Outcome: model.OutcomeExempted},
	})
	updated, _ := m.Update(RunCompleteMsg{Report: report})
	m = updated.(Model)

	require.Contains(t, m.View(), "1 failed (allowed)")
}

func TestOutcomeIcon(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, OutcomeIcon(model.OutcomePassed))
	require.NotEqual(t, OutcomeIcon(model.OutcomePassed), OutcomeIcon(model.OutcomeFailed))
	require.NotEqual(t, OutcomeIcon(model.OutcomeExempted), OutcomeIcon(model.OutcomeFailed))
}
