package matrix

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/model"
)

func TestExpand(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Matrix: config.Matrix{
			Include:       []string{"2.7", "3.3", "3.6", "3.7-dev"},
			AllowFailures: []string{"3.7-dev"},
		},
		Requirements: config.Requirements{
			Default: "requirements.travis.txt",
			Rules: []config.RequirementRule{
				{When: "3.3", File: "requirements33.travis.txt"},
			},
		},
	}

	entries, err := Expand(cfg)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	byVersion := map[string]Entry{}
	seen := map[string]bool{}
	for _, entry := range entries {
		byVersion[entry.Version] = entry
		require.NotEmpty(t, entry.RunID)
		require.False(t, seen[entry.RunID], "run IDs must be unique")
		seen[entry.RunID] = true
	}

	require.False(t, byVersion["2.7"].AllowFailure)
	require.True(t, byVersion["3.7-dev"].AllowFailure)
	require.Equal(t, "requirements33.travis.txt", byVersion["3.3"].RequirementsFile)
	require.Equal(t, "requirements.travis.txt", byVersion["3.6"].RequirementsFile)
	require.Equal(t, "requirements.travis.txt", byVersion["3.7-dev"].RequirementsFile)
}

func TestExpandWithoutRequirements(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Matrix: config.Matrix{Include: []string{"3.6"}},
	}

	entries, err := Expand(cfg)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Empty(t, entries[0].RequirementsFile)
}

func TestAggregateAllPassed(t *testing.T) {
	t.Parallel()

	report := Aggregate([]model.EntryResult{
		{Version: "2.7", Outcome: model.OutcomePassed},
		{Version: "3.6", Outcome: model.OutcomePassed},
	})

	require.True(t, report.Success())
	require.Equal(t, 0, report.ExitCode())
	require.Equal(t, 2, report.Passed)
}

func TestAggregateExemptedFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	report := Aggregate([]model.EntryResult{
		{Version: "3.6", Outcome: model.OutcomePassed},
		{Version: "3.7-dev", Outcome: model.OutcomeExempted},
	})

	require.True(t, report.Success())
	require.Equal(t, 0, report.ExitCode())
	require.Equal(t, 1, report.Exempted)
	require.Contains(t, report.Summary(), "1 failed (allowed)")
}

func TestAggregateNonExemptFailureFails(t *testing.T) {
	t.Parallel()

	report := Aggregate([]model.EntryResult{
		{Version: "3.6", Outcome: model.OutcomeFailed},
		{Version: "3.7-dev", Outcome: model.OutcomeExempted},
	})

	require.False(t, report.Success())
	require.Equal(t, 1, report.ExitCode())
	require.Equal(t, 1, report.Failed)
}

func TestSummary(t *testing.T) {
	t.Parallel()

	report := Aggregate([]model.EntryResult{
		{Outcome: model.OutcomePassed},
		{Outcome: model.OutcomeFailed},
		{Outcome: model.OutcomeExempted},
	})
	require.Equal(t, "3 entries: 1 passed, 1 failed, 1 failed (allowed)", report.Summary())
}
