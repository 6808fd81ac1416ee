package compileplugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gridci/gridci/internal/buildtool"
	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/logger"
	"github.com/gridci/gridci/internal/model"
	"github.com/gridci/gridci/internal/plugin"
)

// compilePlugin builds a native target from Fortran and C sources in
// module-dependency order.
type compilePlugin struct {
	log *logger.Logger
}

// New creates a new compile plugin.
func New(log *logger.Logger) plugin.Plugin {
	return &compilePlugin{log: log}
}

var _ plugin.Plugin = (*compilePlugin)(nil)

func (p *compilePlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "compile",
		Version:     "1.0.0",
		Type:        "compile",
		Description: "Compiles Fortran and C sources and links a target binary.",
	}
}

func (p *compilePlugin) Schema() any {
	return config.CompileStep{}
}

func (p *compilePlugin) Evaluate(ctx context.Context, step *config.Step) (*model.EvaluationResult, error) {
	cfg := step.Compile
	if cfg == nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("compile configuration missing"))
	}

	if err := ctx.Err(); err != nil {
		return nil, plugin.NewStateError(step.ID, err)
	}

	srcDir := step.Resolve(cfg.SrcDir)
	target := step.Resolve(cfg.Target)

	if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
		return nil, plugin.NewStateError(step.ID, fmt.Errorf("source directory %s not found", cfg.SrcDir))
	}

	sources, err := buildtool.ScanSources(srcDir, cfg.Subdirs)
	if err != nil {
		return nil, plugin.NewStateError(step.ID, err)
	}

	objectDir := filepath.Join(filepath.Dir(target), "obj_temp")
	plan, err := buildtool.NewPlan(sources, objectDir, target, cfg.Expedite)
	if err != nil {
		return nil, plugin.NewValidationError(step.ID, err)
	}

	stale := 0
	for _, unit := range plan.Units {
		if unit.Outdated {
			stale++
		}
	}

	if cfg.Expedite && stale == 0 && !plan.NeedsLink() {
		return &model.EvaluationResult{
			StepID:       step.ID,
			CurrentState: model.StateSatisfied,
			Message:      fmt.Sprintf("target %s is up to date", cfg.Target),
		}, nil
	}

	state := model.StateMissing
	if _, err := os.Stat(target); err == nil {
		state = model.StateDrifted
	}

	return &model.EvaluationResult{
		StepID:         step.ID,
		CurrentState:   state,
		RequiresAction: true,
		Message:        fmt.Sprintf("%d of %d units need compiling", stale, len(plan.Units)),
		Diff:           fmt.Sprintf("Would build %s:\n%s", cfg.Target, plan.Listing()),
	}, nil
}

func (p *compilePlugin) Apply(ctx context.Context, _ *model.EvaluationResult, step *config.Step) (*model.StepResult, error) {
	cfg := step.Compile
	if cfg == nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("compile configuration missing"))
	}

	result, err := buildtool.Build(ctx, buildtool.Options{
		SrcDir:   step.Resolve(cfg.SrcDir),
		Subdirs:  cfg.Subdirs,
		Target:   step.Resolve(cfg.Target),
		FC:       cfg.FC,
		CC:       cfg.CC,
		Double:   cfg.Double,
		Debug:    cfg.Debug,
		Expedite: cfg.Expedite,
		FFlags:   cfg.FFlags,
		CFlags:   cfg.CFlags,
		Env:      step.Env,
	}, p.log)
	if err != nil {
		return &model.StepResult{
			StepID:  step.ID,
			Status:  model.StatusFailed,
			Message: err.Error(),
			Error:   err,
		}, plugin.NewExecutionError(step.ID, err)
	}

	message := fmt.Sprintf("built %s (%d compiled, %d up to date)", cfg.Target, result.Compiled, result.Skipped)
	if !result.Linked {
		message = fmt.Sprintf("target %s already up to date", cfg.Target)
	}

	return &model.StepResult{
		StepID:  step.ID,
		Status:  model.StatusSuccess,
		Message: message,
	}, nil
}
