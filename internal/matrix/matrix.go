package matrix

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/model"
)

// Entry is one expanded cell of the build matrix: a runtime version paired
// with its resolved requirements file and allow-failure flag. Each entry
// gets a fresh run ID so logs and artifacts from concurrent entries stay
// distinguishable.
type Entry struct {
	RunID            string
	Version          string
	AllowFailure     bool
	RequirementsFile string
}

// Expand turns the declared matrix into concrete entries, resolving the
// requirements file for each version. The config is expected to be
// validated already, so an unresolvable version is a programming error
// surfaced as a plain error.
func Expand(cfg *config.Config) ([]Entry, error) {
	entries := make([]Entry, 0, len(cfg.Matrix.Include))
	for _, version := range cfg.Matrix.Include {
		entry := Entry{
			RunID:        uuid.NewString(),
			Version:      version,
			AllowFailure: cfg.Matrix.AllowsFailure(version),
		}
		if !cfg.Requirements.Empty() {
			file, err := cfg.Requirements.Resolve(version)
			if err != nil {
				return nil, fmt.Errorf("expand entry %s: %w", version, err)
			}
			entry.RequirementsFile = file
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Report aggregates the per-entry outcomes of a finished run.
type Report struct {
	Results  []model.EntryResult
	Passed   int
	Failed   int
	Exempted int
}

// Aggregate folds entry results into a report. Order of results is
// preserved as given.
func Aggregate(results []model.EntryResult) Report {
	report := Report{Results: results}
	for _, result := range results {
		switch result.Outcome {
		case model.OutcomePassed:
			report.Passed++
		case model.OutcomeExempted:
			report.Exempted++
		default:
			report.Failed++
		}
	}
	return report
}

// Success reports whether the run as a whole passed. Exempted failures do
// not count against it.
func (r Report) Success() bool {
	return r.Failed == 0
}

// ExitCode maps the report onto a process exit code.
func (r Report) ExitCode() int {
	if r.Success() {
		return 0
	}
	return 1
}

// Summary renders a one-line human summary of the run.
func (r Report) Summary() string {
	parts := []string{fmt.Sprintf("%d passed", r.Passed)}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	if r.Exempted > 0 {
		parts = append(parts, fmt.Sprintf("%d failed (allowed)", r.Exempted))
	}
	return fmt.Sprintf("%d entries: %s", len(r.Results), strings.Join(parts, ", "))
}
