package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/matrix"
	"github.com/gridci/gridci/internal/model"
	"github.com/gridci/gridci/internal/plugin"
	"github.com/gridci/gridci/internal/plugins/script"
	"github.com/gridci/gridci/internal/plugins/symlink"
	"github.com/gridci/gridci/internal/provision"
)

func testRegistry(t *testing.T) *plugin.Registry {
	t.Helper()

	registry := plugin.NewRegistry(nil)
	require.NoError(t, registry.Register(scriptplugin.New()))
	require.NoError(t, registry.Register(symlinkplugin.New()))
	return registry
}

func baseConfig(script ...string) *config.Config {
	return &config.Config{
		Version:  "1.0.0",
		Name:     "test-matrix",
		Language: "python",
		Matrix:   config.Matrix{Include: []string{"3.6"}},
		Script:   script,
	}
}

func TestRunAllEntriesPass(t *testing.T) {
	t.Parallel()

	workdir := t.TempDir()
	cfg := baseConfig("echo ok >> out.txt")
	cfg.Matrix.Include = []string{"2.7", "3.6"}

	r := New(cfg, testRegistry(t), nil, Options{Workdir: workdir}, Events{})
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Success())
	require.Equal(t, 2, report.Passed)
	require.Equal(t, 0, report.ExitCode())

	content, err := os.ReadFile(filepath.Join(workdir, "out.txt"))
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(string(content), "ok"))
}

func TestRunExemptedFailureKeepsRunGreen(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(`[ "$GRIDCI_RUNTIME_VERSION" != "3.7-dev" ]`)
	cfg.Matrix = config.Matrix{
		Include:       []string{"3.6", "3.7-dev"},
		AllowFailures: []string{"3.7-dev"},
	}

	r := New(cfg, testRegistry(t), nil, Options{Workdir: t.TempDir()}, Events{})
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Success())
	require.Equal(t, 0, report.ExitCode())
	require.Equal(t, 1, report.Passed)
	require.Equal(t, 1, report.Exempted)

	for _, result := range report.Results {
		if result.Version == "3.7-dev" {
			require.Equal(t, model.OutcomeExempted, result.Outcome)
			require.Error(t, result.Error)
		}
	}
}

func TestRunNonExemptFailureFails(t *testing.T) {
	t.Parallel()

	cfg := baseConfig("exit 1")

	r := New(cfg, testRegistry(t), nil, Options{Workdir: t.TempDir()}, Events{})
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Success())
	require.Equal(t, 1, report.ExitCode())
	require.Equal(t, model.OutcomeFailed, report.Results[0].Outcome)
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	t.Parallel()

	workdir := t.TempDir()
	cfg := baseConfig("echo ok >> out.txt")

	r := New(cfg, testRegistry(t), nil, Options{Workdir: workdir, DryRun: true}, Events{})
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Success())

	_, statErr := os.Stat(filepath.Join(workdir, "out.txt"))
	require.True(t, os.IsNotExist(statErr))
}

func TestRunEmitsEvents(t *testing.T) {
	t.Parallel()

	var started []string
	var stepResults []string
	var finished []string

	events := Events{
		OnEntryStart: func(entry matrix.Entry) { started = append(started, entry.Version) },
		OnStepResult: func(version string, result model.StepResult) {
			stepResults = append(stepResults, version+"/"+result.StepID)
		},
		OnEntryResult: func(result model.EntryResult) { finished = append(finished, result.Version) },
	}

	cfg := baseConfig("true")
	r := New(cfg, testRegistry(t), nil, Options{Workdir: t.TempDir()}, events)
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Success())

	require.Equal(t, []string{"3.6"}, started)
	require.Equal(t, []string{"3.6/script_1"}, stepResults)
	require.Equal(t, []string{"3.6"}, finished)
}

func TestRunEntriesKeepsCallerRunIDs(t *testing.T) {
	t.Parallel()

	cfg := baseConfig("true")
	cfg.Matrix.Include = []string{"2.7", "3.6"}

	entries, err := matrix.Expand(cfg)
	require.NoError(t, err)

	want := map[string]string{}
	for _, entry := range entries {
		want[entry.Version] = entry.RunID
	}

	var mu sync.Mutex
	got := map[string]string{}
	events := Events{
		OnEntryStart: func(entry matrix.Entry) {
			mu.Lock()
			got[entry.Version] = entry.RunID
			mu.Unlock()
		},
	}

	r := New(cfg, testRegistry(t), nil, Options{Workdir: t.TempDir()}, events)
	report, err := r.RunEntries(context.Background(), entries)
	require.NoError(t, err)
	require.True(t, report.Success())

	// The executed entries are the ones the caller expanded, so a UI
	// seeded from the same slice tracks them by run id.
	require.Equal(t, want, got)
	for _, result := range report.Results {
		require.Equal(t, want[result.Version], result.RunID)
	}
}

func TestRunProvisionsAliases(t *testing.T) {
	t.Parallel()

	workdir := t.TempDir()
	binDir := filepath.Join(workdir, "bin")
	source := filepath.Join(workdir, "gfortran-8")
	require.NoError(t, os.WriteFile(source, []byte("#!/bin/sh\necho aliased > ran.txt\n"), 0o755))

	// The script invokes the alias by its bare name, which only resolves
	// through the provisioned PATH.
	cfg := baseConfig("gfortran")
	cfg.Provision = config.Provision{
		BinDir:  binDir,
		Aliases: []config.Alias{{Source: source, Target: "gfortran"}},
	}

	r := New(cfg, testRegistry(t), nil, Options{Workdir: workdir}, Events{})
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Success())

	link, err := os.Readlink(filepath.Join(binDir, "gfortran"))
	require.NoError(t, err)
	require.Equal(t, source, link)

	content, err := os.ReadFile(filepath.Join(workdir, "ran.txt"))
	require.NoError(t, err)
	require.Equal(t, "aliased\n", string(content))
}

func TestRunRestoresAndSavesCache(t *testing.T) {
	t.Parallel()

	workdir := t.TempDir()
	cfg := baseConfig("echo cached > pipcache/marker.txt")
	cfg.Cache = config.Cache{Paths: []string{"pipcache"}}
	require.NoError(t, os.MkdirAll(filepath.Join(workdir, "pipcache"), 0o755))

	r := New(cfg, testRegistry(t), nil, Options{Workdir: workdir}, Events{})
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Success())

	// The entry's cache archive now exists in the local store.
	storeDir := filepath.Join(workdir, ".gridci", "cache")
	entries, err := os.ReadDir(storeDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	// Wipe the cached path and rerun with a script that only checks the
	// restored marker.
	require.NoError(t, os.RemoveAll(filepath.Join(workdir, "pipcache")))
	cfg2 := baseConfig("[ -f pipcache/marker.txt ]")
	cfg2.Cache = cfg.Cache

	r2 := New(cfg2, testRegistry(t), nil, Options{Workdir: workdir}, Events{})
	report, err = r2.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Success(), "marker must be restored from cache before the script runs")
}

func TestSynthesizePipelinePhaseOrdering(t *testing.T) {
	t.Parallel()

	cfg := baseConfig("nosetests autotest")
	cfg.Install = []string{"pip install ."}
	cfg.Addons = config.Addons{Apt: config.AptAddon{Packages: []string{"gfortran-8"}}}
	cfg.Snapshots = []config.Snapshot{
		{Name: "flopy", URL: "https://example.com/flopy/archive/develop.zip", Destination: "flopy", Format: "zip", Install: true},
	}
	cfg.Build = &config.BuildSpec{SrcDir: "src", Target: "bin/mfusg", FC: "gfortran"}
	cfg.Steps = []config.Step{{ID: "custom", Type: "script", Enabled: true, Script: &config.ScriptStep{Run: "true"}}}

	entry := matrix.Entry{RunID: "run-1", Version: "3.6", RequirementsFile: "requirements.travis.txt"}
	prov := &provision.Result{Env: provision.NewEnv()}

	steps := synthesizePipeline(cfg, entry, prov, "/work")

	index := map[string]int{}
	needs := map[string][]string{}
	for i, step := range steps {
		index[step.ID] = i
		needs[step.ID] = step.Needs
	}

	require.Contains(t, index, "addons_apt")
	require.Contains(t, index, "snapshot_flopy")
	require.Contains(t, index, "snapshot_flopy_install")
	require.Contains(t, index, "install_requirements")
	require.Contains(t, index, "build_target")
	require.Contains(t, index, "install_1")
	require.Contains(t, index, "custom")
	require.Contains(t, index, "script_1")

	require.Equal(t, []string{"snapshot_flopy"}, needs["snapshot_flopy_install"])
	require.Equal(t, []string{"addons_apt"}, needs["snapshot_flopy"])
	require.Contains(t, needs["script_1"], "custom")

	// Every step, not just scripts, inherits the workdir and the
	// provisioned entry environment.
	env := prov.Env.Slice()
	for _, step := range steps {
		require.Equal(t, "/work", step.WorkDir)
		require.Equal(t, env, step.Env)
	}
}

func TestSynthesizePipelineCarriesProvisionedEnv(t *testing.T) {
	t.Parallel()

	cfg := baseConfig("true")
	cfg.Build = &config.BuildSpec{SrcDir: "src", Target: "bin/mfusg", FC: "gfortran"}

	prov := &provision.Result{Env: provision.NewEnv()}
	prov.Env.Prepend("PATH", "/work/bin", ":")
	prov.Env.Set("FC", "gfortran-8")

	steps := synthesizePipeline(cfg, matrix.Entry{Version: "3.6"}, prov, "/work")

	for _, step := range steps {
		require.Contains(t, step.Env, "FC=gfortran-8")

		var path string
		for _, kv := range step.Env {
			if strings.HasPrefix(kv, "PATH=") {
				path = kv
			}
		}
		require.True(t, strings.HasPrefix(path, "PATH=/work/bin"), "provisioned bin directory must lead PATH for %s", step.ID)
	}
}

func TestPlanMatrixDoesNotTouchFilesystem(t *testing.T) {
	t.Parallel()

	workdir := t.TempDir()
	binDir := filepath.Join(workdir, "bin")
	cfg := baseConfig("true")
	cfg.Matrix.Include = []string{"2.7", "3.6"}
	cfg.Provision = config.Provision{BinDir: binDir}

	plans, err := PlanMatrix(cfg, workdir)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.NotEmpty(t, plans[0].Plan.Levels)

	_, statErr := os.Stat(binDir)
	require.True(t, os.IsNotExist(statErr), "planning must not create the bin directory")
}

func TestSynthesizePipelineMinimalConfig(t *testing.T) {
	t.Parallel()

	cfg := baseConfig("true")
	prov := &provision.Result{Env: provision.NewEnv()}

	steps := synthesizePipeline(cfg, matrix.Entry{Version: "3.6"}, prov, "")
	require.Len(t, steps, 1)
	require.Equal(t, "script_1", steps[0].ID)
	require.Empty(t, steps[0].Needs)
}
