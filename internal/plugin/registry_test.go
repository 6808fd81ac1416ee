package plugin

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/logger"
	"github.com/gridci/gridci/internal/model"
)

type fakePlugin struct {
	stepType string
}

func (p *fakePlugin) Metadata() Metadata {
	return Metadata{Name: p.stepType, Version: "1.0.0", Type: p.stepType}
}

func (p *fakePlugin) Schema() any { return nil }

func (p *fakePlugin) Evaluate(ctx context.Context, step *config.Step) (*model.EvaluationResult, error) {
	return &model.EvaluationResult{StepID: step.ID, CurrentState: model.StateMissing, RequiresAction: true, Message: "fake"}, nil
}

func (p *fakePlugin) Apply(ctx context.Context, evalResult *model.EvaluationResult, step *config.Step) (*model.StepResult, error) {
	return &model.StepResult{StepID: step.ID, Status: model.StatusSuccess}, nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	log, err := logger.New(logger.Options{Level: "error"})
	require.NoError(t, err)
	return NewRegistry(log)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(&fakePlugin{stepType: "script"}))

	p, err := reg.Get("script")
	require.NoError(t, err)
	require.Equal(t, "script", p.Metadata().Type)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(&fakePlugin{stepType: "apt"}))
	require.Error(t, reg.Register(&fakePlugin{stepType: "apt"}))
}

func TestRegistryRejectsNilAndUntyped(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	require.Error(t, reg.Register(nil))
	require.Error(t, reg.Register(&fakePlugin{stepType: ""}))
}

func TestRegistryGetUnknown(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	_, err := reg.Get("ghost")
	require.Error(t, err)
}

func TestRegistryTypesSorted(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	for _, typ := range []string{"symlink", "apt", "script"} {
		require.NoError(t, reg.Register(&fakePlugin{stepType: typ}))
	}
	require.Equal(t, []string{"apt", "script", "symlink"}, reg.Types())
}

func TestStepErrorCategories(t *testing.T) {
	t.Parallel()

	valErr := NewValidationError("deps", fmt.Errorf("pip configuration missing"))
	stepErr, ok := AsStepError(valErr)
	require.True(t, ok)
	require.Equal(t, "deps", stepErr.StepID())

	execErr := NewExecutionError("run_tests", fmt.Errorf("exit status 1"))
	require.ErrorContains(t, execErr, "execution error in step run_tests")

	stateErr := NewStateError("apt_packages", nil)
	require.ErrorContains(t, stateErr, "state error in step apt_packages")
}
