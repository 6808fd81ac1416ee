package pipinstallplugin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/model"
	"github.com/gridci/gridci/internal/plugin"
	"github.com/gridci/gridci/internal/plugins/internalexec"
)

type pipPlugin struct{}

// New creates a new pip plugin instance.
func New() plugin.Plugin {
	return &pipPlugin{}
}

var _ plugin.Plugin = (*pipPlugin)(nil)

func (p *pipPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "pip",
		Version:     "1.0.0",
		Type:        "pip",
		Description: "Installs language packages from requirements files, package names, or local sources.",
	}
}

func (p *pipPlugin) Schema() any {
	return config.PipStep{}
}

func (p *pipPlugin) Evaluate(ctx context.Context, step *config.Step) (*model.EvaluationResult, error) {
	cfg := step.Pip
	if cfg == nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("pip configuration missing"))
	}

	if err := ctx.Err(); err != nil {
		return nil, plugin.NewStateError(step.ID, err)
	}

	// A missing manifest is fatal to the entry; there is no fallback file.
	if cfg.Requirements != "" {
		if _, err := os.Stat(step.Resolve(cfg.Requirements)); err != nil {
			return nil, plugin.NewStateError(step.ID, fmt.Errorf("requirements file %s: %w", cfg.Requirements, err))
		}
	}

	if cfg.Editable != "" {
		if _, err := os.Stat(step.Resolve(cfg.Editable)); err != nil {
			return nil, plugin.NewStateError(step.ID, fmt.Errorf("editable source %s: %w", cfg.Editable, err))
		}
	}

	// Requirement sets change between runs; the installer itself settles
	// no-ops cheaply, so installation always runs.
	return &model.EvaluationResult{
		StepID:         step.ID,
		CurrentState:   model.StateMissing,
		RequiresAction: true,
		Message:        fmt.Sprintf("would install %s", describeTargets(cfg)),
		Diff:           fmt.Sprintf("Would run: %s", strings.Join(installArgs(cfg), " ")),
	}, nil
}

func (p *pipPlugin) Apply(ctx context.Context, evalResult *model.EvaluationResult, step *config.Step) (*model.StepResult, error) {
	cfg := step.Pip
	if cfg == nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("pip configuration missing"))
	}

	python := cfg.Python
	if python == "" {
		python = "python"
	}

	args := append([]string{"-m"}, installArgs(cfg)...)
	if out, err := internalexec.Run(ctx, step.Env, step.WorkDir, python, args...); err != nil {
		failure := fmt.Errorf("pip install failed: %w", err)
		if out != "" {
			failure = fmt.Errorf("%w: %s", failure, lastLine(out))
		}
		return &model.StepResult{
			StepID:  step.ID,
			Status:  model.StatusFailed,
			Message: failure.Error(),
			Error:   failure,
		}, plugin.NewExecutionError(step.ID, failure)
	}

	return &model.StepResult{
		StepID:  step.ID,
		Status:  model.StatusSuccess,
		Message: fmt.Sprintf("installed %s", describeTargets(cfg)),
	}, nil
}

func installArgs(cfg *config.PipStep) []string {
	args := []string{"pip", "install"}
	if cfg.Requirements != "" {
		args = append(args, "-r", cfg.Requirements)
	}
	args = append(args, cfg.Packages...)
	if cfg.Editable != "" {
		args = append(args, "-e", cfg.Editable)
	}
	return args
}

func describeTargets(cfg *config.PipStep) string {
	var targets []string
	if cfg.Requirements != "" {
		targets = append(targets, cfg.Requirements)
	}
	targets = append(targets, cfg.Packages...)
	if cfg.Editable != "" {
		targets = append(targets, cfg.Editable)
	}
	return strings.Join(targets, ", ")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
