package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/model"
	"github.com/gridci/gridci/internal/plugin"
	griderrors "github.com/gridci/gridci/pkg/errors"
)

// Execute runs the execution plan and returns step results in plan order.
func Execute(execCtx *ExecutionContext, plan *ExecutionPlan) ([]model.StepResult, error) {
	if execCtx == nil {
		return nil, griderrors.NewExecutionError("", fmt.Errorf("execution context is nil"))
	}
	if execCtx.Registry == nil {
		return nil, griderrors.NewExecutionError("", fmt.Errorf("execution context registry is nil"))
	}
	if plan == nil {
		return nil, griderrors.NewExecutionError("", fmt.Errorf("execution plan is nil"))
	}

	baseCtx := execCtx.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	stepLookup := make(map[string]*config.Step, len(execCtx.Steps))
	for i := range execCtx.Steps {
		step := &execCtx.Steps[i]
		stepLookup[step.ID] = step
	}

	if execCtx.Results == nil {
		execCtx.Results = make(map[string]*model.StepResult)
	}

	var resultsMu sync.Mutex
	var allResults []model.StepResult
	var firstErr error

	for _, level := range plan.Levels {
		levelResults := make([]model.StepResult, len(level.StepIDs))
		var levelErr error
		var once sync.Once
		var wg sync.WaitGroup

		for idx, stepID := range level.StepIDs {
			step, ok := stepLookup[stepID]
			if !ok {
				return allResults, griderrors.NewExecutionError(stepID, fmt.Errorf("step not found"))
			}

			wg.Add(1)
			go func(idx int, step *config.Step) {
				defer wg.Done()

				res, err := executeStep(ctx, execCtx, step)
				if res != nil {
					levelResults[idx] = *res
					resultsMu.Lock()
					execCtx.Results[step.ID] = res
					resultsMu.Unlock()
					execCtx.notifyResult(*res)
				}

				if err != nil {
					once.Do(func() {
						levelErr = err
						if !execCtx.ContinueOnError {
							cancel()
						}
					})
				}
			}(idx, step)
		}

		wg.Wait()

		if levelErr != nil {
			for _, res := range levelResults {
				if res.StepID != "" {
					allResults = append(allResults, res)
				}
			}
			if firstErr == nil {
				firstErr = levelErr
			}
			if !execCtx.ContinueOnError {
				return allResults, levelErr
			}
			levelErr = nil
			continue
		}

		allResults = append(allResults, levelResults...)
	}

	return allResults, firstErr
}

func executeStep(ctx context.Context, execCtx *ExecutionContext, step *config.Step) (*model.StepResult, error) {
	if ctx.Err() != nil {
		return nil, griderrors.NewExecutionError(step.ID, ctx.Err())
	}

	stepCtx := ctx
	var cancel context.CancelFunc
	if execCtx.StepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, execCtx.StepTimeout)
		defer cancel()
	}

	if execCtx.WorkerPool != nil {
		select {
		case execCtx.WorkerPool <- struct{}{}:
			defer func() { <-execCtx.WorkerPool }()
		case <-stepCtx.Done():
			return timeoutResult(step.ID, stepCtx.Err())
		}
	}

	impl, err := execCtx.Registry.Get(step.Type)
	if err != nil {
		return nil, err
	}

	execCtx.notifyStart(step.ID)
	execCtx.Logger.WithFields(map[string]any{"step": step.ID, "type": step.Type}).Debug("evaluating step")

	start := time.Now()

	evalResult, err := impl.Evaluate(stepCtx, step)
	if err != nil {
		if evalResult != nil {
			return &model.StepResult{
				StepID:    evalResult.StepID,
				Status:    model.StatusFailed,
				Message:   fmt.Sprintf("evaluation failed: %v", err),
				Duration:  time.Since(start),
				Timestamp: time.Now(),
				Error:     err,
			}, fmt.Errorf("evaluation failed for step %s: %w", step.ID, err)
		}
		return nil, fmt.Errorf("evaluation failed for step %s: %w", step.ID, err)
	}

	var result *model.StepResult
	if execCtx.DryRun {
		if evalResult.RequiresAction {
			result = &model.StepResult{
				StepID:    evalResult.StepID,
				Status:    model.StatusWouldRun,
				Message:   evalResult.Message,
				Duration:  time.Since(start),
				Timestamp: time.Now(),
			}
		} else {
			result = &model.StepResult{
				StepID:    evalResult.StepID,
				Status:    model.StatusSkipped,
				Message:   evalResult.Message,
				Duration:  time.Since(start),
				Timestamp: time.Now(),
			}
		}
	} else {
		if evalResult.RequiresAction {
			result, err = impl.Apply(stepCtx, evalResult, step)
		} else {
			result = &model.StepResult{
				StepID:    evalResult.StepID,
				Status:    model.StatusSkipped,
				Message:   evalResult.Message,
				Duration:  time.Since(start),
				Timestamp: time.Now(),
			}
		}
	}
	duration := time.Since(start)

	if result == nil {
		result = &model.StepResult{StepID: step.ID}
	}
	if result.StepID == "" {
		result.StepID = step.ID
	}
	result.Duration = duration
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	if err != nil {
		return finalizeFailure(result, stepCtx, step.ID, err)
	}

	if result.Status == "" {
		if execCtx.DryRun {
			result.Status = model.StatusSkipped
			if result.Message == "" {
				result.Message = "dry-run"
			}
		} else {
			result.Status = model.StatusSuccess
			if result.Message == "" {
				result.Message = "completed"
			}
		}
	}

	return result, nil
}

func finalizeFailure(result *model.StepResult, stepCtx context.Context, stepID string, err error) (*model.StepResult, error) {
	if result.Status == "" {
		result.Status = model.StatusFailed
	}
	if result.Error == nil {
		result.Error = err
	}
	if result.Message == "" {
		result.Message = err.Error()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		result.Message = "timeout exceeded"
	}

	return result, wrapStepFailure(stepID, err)
}

func timeoutResult(stepID string, err error) (*model.StepResult, error) {
	if err == nil {
		err = context.DeadlineExceeded
	}
	res := &model.StepResult{
		StepID:  stepID,
		Status:  model.StatusFailed,
		Message: "timeout exceeded",
		Error:   err,
	}
	return res, wrapStepFailure(stepID, err)
}

// wrapStepFailure attributes err to the step. Errors a plugin already
// attributed to the same step pass through unwrapped.
func wrapStepFailure(stepID string, err error) error {
	if stepErr, ok := plugin.AsStepError(err); ok && stepErr.StepID() == stepID {
		return err
	}
	return griderrors.NewExecutionError(stepID, err)
}
