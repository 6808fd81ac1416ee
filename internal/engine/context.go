package engine

import (
	"context"
	"time"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/logger"
	"github.com/gridci/gridci/internal/model"
	"github.com/gridci/gridci/internal/plugin"
)

// ExecutionContext contains runtime state shared across executor workers for
// one matrix entry's pipeline.
type ExecutionContext struct {
	Steps           []config.Step
	Registry        *plugin.Registry
	DryRun          bool
	ContinueOnError bool
	StepTimeout     time.Duration
	WorkerPool      chan struct{}
	Results         map[string]*model.StepResult
	Logger          *logger.Logger
	Context         context.Context

	// OnStepStart and OnStepResult, when set, receive progress events for
	// the UI. They are invoked from executor goroutines.
	OnStepStart  func(stepID string)
	OnStepResult func(result model.StepResult)
}

func (e *ExecutionContext) notifyStart(stepID string) {
	if e.OnStepStart != nil {
		e.OnStepStart(stepID)
	}
}

func (e *ExecutionContext) notifyResult(result model.StepResult) {
	if e.OnStepResult != nil {
		e.OnStepResult(result)
	}
}
