package engine

import (
	"fmt"
	"strings"
)

// ExecutionPlan contains the ordered execution levels for one matrix entry.
type ExecutionPlan struct {
	Levels []ExecutionLevel
}

// ExecutionLevel represents a set of steps that can run in parallel.
type ExecutionLevel struct {
	StepIDs []string
}

// GeneratePlan converts a DAG into an execution plan grouped by level.
func GeneratePlan(graph *Graph) (*ExecutionPlan, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}

	levels := make([]ExecutionLevel, 0, len(graph.Levels))
	for _, ids := range graph.Levels {
		levels = append(levels, ExecutionLevel{StepIDs: append([]string(nil), ids...)})
	}

	return &ExecutionPlan{Levels: levels}, nil
}

// StepIDs returns every step in plan order.
func (p *ExecutionPlan) StepIDs() []string {
	if p == nil {
		return nil
	}

	var ids []string
	for _, level := range p.Levels {
		ids = append(ids, level.StepIDs...)
	}
	return ids
}

// String renders a human readable summary of the plan.
func (p *ExecutionPlan) String() string {
	if p == nil {
		return ""
	}

	var b strings.Builder
	for i, level := range p.Levels {
		fmt.Fprintf(&b, "Level %d (%d steps): %s\n", i, len(level.StepIDs), strings.Join(level.StepIDs, ", "))
	}
	return b.String()
}
