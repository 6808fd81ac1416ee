package aptgetplugin

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/model"
	"github.com/gridci/gridci/internal/plugin"
	"github.com/gridci/gridci/internal/plugins/internalexec"
)

type aptPlugin struct{}

// New creates a new apt plugin instance.
func New() plugin.Plugin {
	return &aptPlugin{}
}

var _ plugin.Plugin = (*aptPlugin)(nil)

func (p *aptPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "apt",
		Version:     "1.0.0",
		Type:        "apt",
		Description: "Installs system packages from apt sources.",
	}
}

func (p *aptPlugin) Schema() any {
	return config.AptStep{}
}

// aptEvaluationData carries the package census from Evaluate to Apply.
type aptEvaluationData struct {
	InstalledPackages []string
	MissingPackages   []string
}

func (p *aptPlugin) Evaluate(ctx context.Context, step *config.Step) (*model.EvaluationResult, error) {
	cfg := step.Apt
	if cfg == nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("apt configuration missing"))
	}

	if err := ctx.Err(); err != nil {
		return nil, plugin.NewStateError(step.ID, fmt.Errorf("context cancelled: %w", err))
	}

	var installed []string
	var missing []string

	for _, name := range cfg.Packages {
		if _, err := internalexec.Run(ctx, step.Env, "", "dpkg-query", "-W", name); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				missing = append(missing, name)
			} else {
				return nil, plugin.NewExecutionError(step.ID, fmt.Errorf("failed to query package %s: %w", name, err))
			}
		} else {
			installed = append(installed, name)
		}
	}

	internalData := &aptEvaluationData{
		InstalledPackages: installed,
		MissingPackages:   missing,
	}

	if len(missing) == 0 {
		return &model.EvaluationResult{
			StepID:         step.ID,
			CurrentState:   model.StateSatisfied,
			RequiresAction: false,
			Message:        fmt.Sprintf("all packages installed: %s", strings.Join(cfg.Packages, ", ")),
			InternalData:   internalData,
		}, nil
	}

	return &model.EvaluationResult{
		StepID:         step.ID,
		CurrentState:   model.StateMissing,
		RequiresAction: true,
		Message:        fmt.Sprintf("packages not installed: %s", strings.Join(missing, ", ")),
		Diff:           fmt.Sprintf("Would install: %s", strings.Join(missing, ", ")),
		InternalData:   internalData,
	}, nil
}

func (p *aptPlugin) Apply(ctx context.Context, evalResult *model.EvaluationResult, step *config.Step) (*model.StepResult, error) {
	cfg := step.Apt
	if cfg == nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("apt configuration missing"))
	}

	var data *aptEvaluationData
	if evalResult != nil {
		if typed, ok := evalResult.InternalData.(*aptEvaluationData); ok {
			data = typed
		}
	}
	if data == nil {
		refreshed, err := p.Evaluate(ctx, step)
		if err != nil {
			return nil, err
		}
		evalResult = refreshed
		data = refreshed.InternalData.(*aptEvaluationData)
	}

	if !evalResult.RequiresAction {
		return &model.StepResult{
			StepID:  step.ID,
			Status:  model.StatusSkipped,
			Message: "no changes needed",
		}, nil
	}

	for _, source := range cfg.Sources {
		if out, err := internalexec.Run(ctx, step.Env, "", "add-apt-repository", "-y", source); err != nil {
			return failure(step.ID, fmt.Errorf("failed to add source %s: %w: %s", source, err, out))
		}
	}

	if cfg.Update || len(cfg.Sources) > 0 {
		if out, err := internalexec.Run(ctx, step.Env, "", "apt-get", "update", "-qq"); err != nil {
			return failure(step.ID, fmt.Errorf("failed to update package index: %w: %s", err, out))
		}
	}

	args := append([]string{"install", "-y"}, data.MissingPackages...)
	if out, err := internalexec.Run(ctx, step.Env, "", "apt-get", args...); err != nil {
		return failure(step.ID, fmt.Errorf("failed to install packages: %w: %s", err, out))
	}

	return &model.StepResult{
		StepID:  step.ID,
		Status:  model.StatusSuccess,
		Message: fmt.Sprintf("installed packages: %s", strings.Join(data.MissingPackages, ", ")),
	}, nil
}

func failure(stepID string, err error) (*model.StepResult, error) {
	return &model.StepResult{
		StepID:  stepID,
		Status:  model.StatusFailed,
		Message: err.Error(),
		Error:   err,
	}, plugin.NewExecutionError(stepID, err)
}
