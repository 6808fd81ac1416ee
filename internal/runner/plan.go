package runner

import (
	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/engine"
	"github.com/gridci/gridci/internal/matrix"
	"github.com/gridci/gridci/internal/provision"
)

// EntryPlan pairs a matrix entry with the execution plan its pipeline
// would run.
type EntryPlan struct {
	Entry matrix.Entry
	Steps []config.Step
	Plan  *engine.ExecutionPlan
}

// PlanMatrix previews the full run without touching the filesystem: it
// expands the matrix and computes each entry's leveled execution plan.
func PlanMatrix(cfg *config.Config, workdir string) ([]EntryPlan, error) {
	entries, err := matrix.Expand(cfg)
	if err != nil {
		return nil, err
	}

	plans := make([]EntryPlan, 0, len(entries))
	for _, entry := range entries {
		prov, err := provision.Plan(cfg.Provision, cfg.Env, workdir)
		if err != nil {
			return nil, err
		}

		steps := synthesizePipeline(cfg, entry, prov, workdir)
		graph, err := engine.BuildDAG(steps)
		if err != nil {
			return nil, err
		}
		plan, err := engine.GeneratePlan(graph)
		if err != nil {
			return nil, err
		}
		plans = append(plans, EntryPlan{Entry: entry, Steps: steps, Plan: plan})
	}
	return plans, nil
}
