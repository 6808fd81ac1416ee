package scriptplugin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/model"
	"github.com/gridci/gridci/internal/plugin"
)

// scriptPlugin executes shell fragments through the embedded mvdan/sh
// interpreter, so install and script lines behave the same on hosts without
// a POSIX shell on PATH.
type scriptPlugin struct{}

// New creates a new script plugin.
func New() plugin.Plugin {
	return &scriptPlugin{}
}

var _ plugin.Plugin = (*scriptPlugin)(nil)

func (p *scriptPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "script",
		Version:     "1.0.0",
		Type:        "script",
		Description: "Runs shell fragments with the embedded interpreter.",
	}
}

func (p *scriptPlugin) Schema() any {
	return config.ScriptStep{}
}

func (p *scriptPlugin) Evaluate(ctx context.Context, step *config.Step) (*model.EvaluationResult, error) {
	cfg := step.Script
	if cfg == nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("script configuration missing"))
	}

	if err := ctx.Err(); err != nil {
		return nil, plugin.NewStateError(step.ID, err)
	}

	prog, err := syntax.NewParser().Parse(strings.NewReader(cfg.Run), step.ID)
	if err != nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("script syntax error: %w", err))
	}

	// Scripts are commands, not declarative state; they always run.
	return &model.EvaluationResult{
		StepID:         step.ID,
		CurrentState:   model.StateMissing,
		RequiresAction: true,
		Message:        fmt.Sprintf("script pending: %s", firstLine(cfg.Run)),
		Diff:           fmt.Sprintf("Would run: %s", cfg.Run),
		InternalData:   prog,
	}, nil
}

func (p *scriptPlugin) Apply(ctx context.Context, evalResult *model.EvaluationResult, step *config.Step) (*model.StepResult, error) {
	cfg := step.Script
	if cfg == nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("script configuration missing"))
	}

	prog, _ := evalResult.InternalData.(*syntax.File)
	if prog == nil {
		parsed, err := syntax.NewParser().Parse(strings.NewReader(cfg.Run), step.ID)
		if err != nil {
			return nil, plugin.NewValidationError(step.ID, fmt.Errorf("script syntax error: %w", err))
		}
		prog = parsed
	}

	var stdout, stderr bytes.Buffer
	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(buildEnv(step.Env, cfg.Env)...)),
		interp.StdIO(nil, &stdout, &stderr),
	}
	if dir := workDir(step, cfg); dir != "" {
		opts = append(opts, interp.Dir(dir))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return nil, plugin.NewExecutionError(step.ID, err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		combined := strings.TrimSpace(stderr.String())
		if combined == "" {
			combined = strings.TrimSpace(stdout.String())
		}

		if status, ok := interp.IsExitStatus(err); ok {
			err = fmt.Errorf("script exited with status %d", status)
		}
		if combined != "" {
			err = fmt.Errorf("%w: %s", err, combined)
		}

		return &model.StepResult{
			StepID:  step.ID,
			Status:  model.StatusFailed,
			Message: err.Error(),
			Error:   err,
		}, plugin.NewExecutionError(step.ID, err)
	}

	message := "script executed"
	if out := strings.TrimSpace(stdout.String()); out != "" {
		message = firstLine(out)
	}

	return &model.StepResult{
		StepID:  step.ID,
		Status:  model.StatusSuccess,
		Message: message,
	}, nil
}

// buildEnv merges the base environment with step-level variables; step
// variables win and are appended in sorted order for determinism. The base
// is the provisioned entry environment when present, the process
// environment otherwise.
func buildEnv(base []string, custom map[string]string) []string {
	if base == nil {
		base = os.Environ()
	}
	env := make([]string, len(base), len(base)+len(custom))
	copy(env, base)

	keys := make([]string, 0, len(custom))
	for k := range custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, custom[k]))
	}
	return env
}

// workDir picks the script's working directory: an explicit workdir wins,
// anchored at the step's directory when relative; otherwise the step's own
// working directory applies.
func workDir(step *config.Step, cfg *config.ScriptStep) string {
	if cfg.WorkDir != "" {
		return step.Resolve(cfg.WorkDir)
	}
	return step.WorkDir
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
