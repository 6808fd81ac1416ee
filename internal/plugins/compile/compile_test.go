package compileplugin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/model"
	"github.com/gridci/gridci/internal/plugin"
)

func compileStep(id string, cfg config.CompileStep) *config.Step {
	return &config.Step{
		ID:      id,
		Type:    "compile",
		Enabled: true,
		Compile: &cfg,
	}
}

func TestEvaluateMissingConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Evaluate(context.Background(), &config.Step{ID: "build", Type: "compile"})
	require.Error(t, err)

	stepErr, ok := plugin.AsStepError(err)
	require.True(t, ok)
	require.Equal(t, "build", stepErr.StepID())
}

func TestEvaluateMissingSourceDir(t *testing.T) {
	t.Parallel()

	step := compileStep("build", config.CompileStep{
		SrcDir: filepath.Join(t.TempDir(), "missing"),
		Target: filepath.Join(t.TempDir(), "mfusg"),
		FC:     "gfortran",
	})

	_, err := New(nil).Evaluate(context.Background(), step)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestEvaluateFreshTreeNeedsBuild(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "main.f90"), []byte("program main\nend program main\n"), 0o644))

	step := compileStep("build", config.CompileStep{
		SrcDir: srcDir,
		Target: filepath.Join(t.TempDir(), "mfusg"),
		FC:     "gfortran",
	})

	result, err := New(nil).Evaluate(context.Background(), step)
	require.NoError(t, err)
	require.Equal(t, model.StateMissing, result.CurrentState)
	require.True(t, result.RequiresAction)
	require.Contains(t, result.Message, "1 of 1 units")
}

func TestEvaluateExpeditedUpToDate(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	binDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "main.f90")
	require.NoError(t, os.WriteFile(srcPath, []byte("program main\nend program main\n"), 0o644))

	objectDir := filepath.Join(binDir, "obj_temp")
	require.NoError(t, os.MkdirAll(objectDir, 0o755))
	objPath := filepath.Join(objectDir, "main.o")
	target := filepath.Join(binDir, "mfusg")
	require.NoError(t, os.WriteFile(objPath, []byte("obj"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte("bin"), 0o755))

	base := time.Now()
	require.NoError(t, os.Chtimes(srcPath, base.Add(-2*time.Hour), base.Add(-2*time.Hour)))
	require.NoError(t, os.Chtimes(objPath, base.Add(-time.Hour), base.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(target, base, base))

	step := compileStep("build", config.CompileStep{
		SrcDir:   srcDir,
		Target:   target,
		FC:       "gfortran",
		Expedite: true,
	})

	result, err := New(nil).Evaluate(context.Background(), step)
	require.NoError(t, err)
	require.Equal(t, model.StateSatisfied, result.CurrentState)
	require.False(t, result.RequiresAction)
}

func TestEvaluateDiffListsCompileOrder(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "precision.f90"), []byte("module precision\nend module precision\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "main.f90"), []byte("program main\n  use precision\nend program main\n"), 0o644))

	step := compileStep("build", config.CompileStep{
		SrcDir: srcDir,
		Target: filepath.Join(t.TempDir(), "mfusg"),
		FC:     "gfortran",
	})

	result, err := New(nil).Evaluate(context.Background(), step)
	require.NoError(t, err)

	// The dry-run diff lists every unit in compile order, modules first.
	lines := strings.Split(result.Diff, "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "Would build")
	require.Contains(t, lines[1], "precision.o: ")
	require.Contains(t, lines[2], "main.o: ")
	require.Contains(t, lines[3], ": link 2 objects")
}

func TestEvaluateResolvesPathsAgainstWorkdir(t *testing.T) {
	t.Parallel()

	workdir := t.TempDir()
	srcDir := filepath.Join(workdir, "src")
	require.NoError(t, os.Mkdir(srcDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "main.f90"), []byte("program main\nend program main\n"), 0o644))

	step := compileStep("build", config.CompileStep{SrcDir: "src", Target: "bin/mfusg", FC: "gfortran"})
	step.WorkDir = workdir

	result, err := New(nil).Evaluate(context.Background(), step)
	require.NoError(t, err)
	require.True(t, result.RequiresAction)
	require.Contains(t, result.Diff, filepath.Join(workdir, "bin", "obj_temp"))
}

func TestApplyMissingConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Apply(context.Background(), nil, &config.Step{ID: "build", Type: "compile"})
	require.Error(t, err)
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	meta := New(nil).Metadata()
	require.Equal(t, "compile", meta.Type)
	require.NotEmpty(t, meta.Description)
}
