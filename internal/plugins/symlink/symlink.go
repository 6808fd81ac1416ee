package symlinkplugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/model"
	"github.com/gridci/gridci/internal/plugin"
)

type symlinkPlugin struct{}

// New creates a new symlink plugin.
func New() plugin.Plugin {
	return &symlinkPlugin{}
}

var _ plugin.Plugin = (*symlinkPlugin)(nil)

func (p *symlinkPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "symlink",
		Version:     "1.0.0",
		Type:        "symlink",
		Description: "Creates symbolic links, such as versioned compiler aliases.",
	}
}

func (p *symlinkPlugin) Schema() any {
	return config.SymlinkStep{}
}

func (p *symlinkPlugin) Evaluate(ctx context.Context, step *config.Step) (*model.EvaluationResult, error) {
	cfg := step.Symlink
	if cfg == nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("symlink configuration missing"))
	}

	if err := ctx.Err(); err != nil {
		return nil, plugin.NewStateError(step.ID, err)
	}

	info, err := os.Lstat(cfg.Target)
	if err != nil {
		if os.IsNotExist(err) {
			return &model.EvaluationResult{
				StepID:         step.ID,
				CurrentState:   model.StateMissing,
				RequiresAction: true,
				Message:        fmt.Sprintf("link %s does not exist", cfg.Target),
				Diff:           fmt.Sprintf("Would link: %s -> %s", cfg.Target, cfg.Source),
			}, nil
		}
		return nil, plugin.NewStateError(step.ID, fmt.Errorf("cannot stat target: %w", err))
	}

	if info.Mode()&os.ModeSymlink == 0 {
		return &model.EvaluationResult{
			StepID:         step.ID,
			CurrentState:   model.StateDrifted,
			RequiresAction: true,
			Message:        fmt.Sprintf("target %s exists but is not a symlink", cfg.Target),
			Diff:           fmt.Sprintf("Would replace with link: %s -> %s", cfg.Target, cfg.Source),
		}, nil
	}

	current, err := os.Readlink(cfg.Target)
	if err != nil {
		return nil, plugin.NewStateError(step.ID, err)
	}

	if current == cfg.Source {
		return &model.EvaluationResult{
			StepID:         step.ID,
			CurrentState:   model.StateSatisfied,
			RequiresAction: false,
			Message:        fmt.Sprintf("link %s already points at %s", cfg.Target, cfg.Source),
		}, nil
	}

	return &model.EvaluationResult{
		StepID:         step.ID,
		CurrentState:   model.StateDrifted,
		RequiresAction: true,
		Message:        fmt.Sprintf("link %s points at %s, want %s", cfg.Target, current, cfg.Source),
		Diff:           fmt.Sprintf("Would relink: %s -> %s", cfg.Target, cfg.Source),
	}, nil
}

func (p *symlinkPlugin) Apply(ctx context.Context, evalResult *model.EvaluationResult, step *config.Step) (*model.StepResult, error) {
	cfg := step.Symlink
	if cfg == nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("symlink configuration missing"))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Target), 0o755); err != nil {
		return nil, plugin.NewExecutionError(step.ID, err)
	}

	if _, err := os.Lstat(cfg.Target); err == nil {
		if !cfg.Force {
			failure := fmt.Errorf("target %s already exists", cfg.Target)
			return &model.StepResult{
				StepID:  step.ID,
				Status:  model.StatusFailed,
				Message: failure.Error(),
				Error:   failure,
			}, plugin.NewExecutionError(step.ID, failure)
		}
		if err := os.Remove(cfg.Target); err != nil {
			return &model.StepResult{
				StepID:  step.ID,
				Status:  model.StatusFailed,
				Message: err.Error(),
				Error:   err,
			}, plugin.NewExecutionError(step.ID, err)
		}
	}

	if err := os.Symlink(cfg.Source, cfg.Target); err != nil {
		return &model.StepResult{
			StepID:  step.ID,
			Status:  model.StatusFailed,
			Message: err.Error(),
			Error:   err,
		}, plugin.NewExecutionError(step.ID, err)
	}

	return &model.StepResult{
		StepID:  step.ID,
		Status:  model.StatusSuccess,
		Message: fmt.Sprintf("linked %s -> %s", cfg.Target, cfg.Source),
	}, nil
}
