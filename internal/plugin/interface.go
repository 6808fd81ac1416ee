package plugin

import (
	"context"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/model"
)

// Metadata describes a plugin's identity.
type Metadata struct {
	// Name is the human-facing plugin name.
	Name string
	// Version is the plugin implementation version.
	Version string
	// Type is the step type the plugin handles.
	Type string
	// Description summarises what the plugin does.
	Description string
}

// Plugin defines the contract all gridci step implementations satisfy.
//
// Implementations provide a read-only state assessment via Evaluate() and a
// state mutation via Apply(). The executor only calls Apply() when
// Evaluate() reported RequiresAction, which keeps already-satisfied steps
// (an existing bin directory, an alias that already points at the right
// binary, an installed package set) from being re-applied.
type Plugin interface {
	// Metadata returns the plugin's identity.
	Metadata() Metadata

	// Schema returns the struct defining the step's YAML configuration.
	Schema() any

	// Evaluate performs a strictly read-only assessment of current state
	// against the desired state in the step configuration. It must not
	// mutate anything.
	Evaluate(ctx context.Context, step *config.Step) (*model.EvaluationResult, error)

	// Apply mutates the system to match the desired state. It must be
	// idempotent. The evalResult parameter carries the result of the
	// preceding Evaluate() call, including InternalData.
	Apply(ctx context.Context, evalResult *model.EvaluationResult, step *config.Step) (*model.StepResult, error)
}
