package runner

import (
	"fmt"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/matrix"
	"github.com/gridci/gridci/internal/provision"
)

// synthesizePipeline expands one matrix entry into the full ordered step
// list: provisioning aliases, system packages, snapshots, language
// dependencies, the native build, declared install commands, user steps,
// and finally the script phase. Phases are chained through needs so the
// DAG executor keeps them ordered while still parallelizing within a
// phase.
func synthesizePipeline(cfg *config.Config, entry matrix.Entry, prov *provision.Result, workdir string) []config.Step {
	var steps []config.Step
	var frontier []string

	appendPhase := func(phase []config.Step) {
		if len(phase) == 0 {
			return
		}
		var ids []string
		for i := range phase {
			if len(phase[i].Needs) == 0 {
				phase[i].Needs = frontier
			}
			ids = append(ids, phase[i].ID)
		}
		steps = append(steps, phase...)
		frontier = ids
	}

	appendPhase(prov.AliasSteps)
	appendPhase(aptPhase(cfg))
	appendPhase(snapshotPhase(cfg))
	appendPhase(requirementsPhase(entry))
	appendPhase(buildPhase(cfg))
	appendPhase(installPhase(cfg))
	appendPhase(userPhase(cfg))
	appendPhase(scriptPhase(cfg))

	// Every step, synthesized or user-declared, runs under the
	// provisioned entry environment and resolves relative paths against
	// the workdir.
	env := prov.Env.Slice()
	for i := range steps {
		steps[i].Env = env
		steps[i].WorkDir = workdir
	}

	return steps
}

func aptPhase(cfg *config.Config) []config.Step {
	apt := cfg.Addons.Apt
	if len(apt.Packages) == 0 {
		return nil
	}
	return []config.Step{{
		ID:      "addons_apt",
		Name:    "install system packages",
		Type:    "apt",
		Enabled: true,
		Apt: &config.AptStep{
			Sources:  apt.Sources,
			Packages: apt.Packages,
			Update:   true,
		},
	}}
}

func snapshotPhase(cfg *config.Config) []config.Step {
	var phase []config.Step
	for _, snap := range cfg.Snapshots {
		fetchID := "snapshot_" + snap.Name
		phase = append(phase, config.Step{
			ID:      fetchID,
			Name:    fmt.Sprintf("fetch %s snapshot", snap.Name),
			Type:    "snapshot",
			Enabled: true,
			Snapshot: &config.SnapshotStep{
				URL:         snap.URL,
				Ref:         snap.Ref,
				Destination: snap.Destination,
				Format:      snap.Format,
			},
		})
		if snap.Install {
			phase = append(phase, config.Step{
				ID:      fetchID + "_install",
				Name:    fmt.Sprintf("install %s snapshot", snap.Name),
				Type:    "pip",
				Enabled: true,
				Needs:   []string{fetchID},
				Pip:     &config.PipStep{Editable: snap.Destination},
			})
		}
	}
	return phase
}

func requirementsPhase(entry matrix.Entry) []config.Step {
	if entry.RequirementsFile == "" {
		return nil
	}
	return []config.Step{{
		ID:      "install_requirements",
		Name:    "install requirements",
		Type:    "pip",
		Enabled: true,
		Pip:     &config.PipStep{Requirements: entry.RequirementsFile},
	}}
}

func buildPhase(cfg *config.Config) []config.Step {
	if cfg.Build == nil {
		return nil
	}
	return []config.Step{{
		ID:      "build_target",
		Name:    fmt.Sprintf("build %s", cfg.Build.Target),
		Type:    "compile",
		Enabled: true,
		Compile: &config.CompileStep{
			SrcDir:   cfg.Build.SrcDir,
			Target:   cfg.Build.Target,
			FC:       cfg.Build.FC,
			CC:       cfg.Build.CC,
			Double:   cfg.Build.Double,
			Debug:    cfg.Build.Debug,
			Expedite: cfg.Build.Expedite,
			Subdirs:  cfg.Build.Subdirs,
			FFlags:   cfg.Build.FFlags,
			CFlags:   cfg.Build.CFlags,
		},
	}}
}

// installPhase turns each declared install command into a sequential
// script step. Install commands often depend on each other, so they do
// not parallelize.
func installPhase(cfg *config.Config) []config.Step {
	return commandSteps("install", cfg.Install)
}

func userPhase(cfg *config.Config) []config.Step {
	if len(cfg.Steps) == 0 {
		return nil
	}
	phase := make([]config.Step, len(cfg.Steps))
	copy(phase, cfg.Steps)
	return phase
}

// scriptPhase turns the script commands into sequential steps. Script
// order is the declared order and a later command runs even though an
// earlier one failed only under continue-on-error.
func scriptPhase(cfg *config.Config) []config.Step {
	return commandSteps("script", cfg.Script)
}

func commandSteps(prefix string, commands []string) []config.Step {
	var phase []config.Step
	var prev string
	for i, command := range commands {
		id := fmt.Sprintf("%s_%d", prefix, i+1)
		step := config.Step{
			ID:      id,
			Name:    command,
			Type:    "script",
			Enabled: true,
			Script:  &config.ScriptStep{Run: command},
		}
		if prev != "" {
			step.Needs = []string{prev}
		}
		phase = append(phase, step)
		prev = id
	}
	return phase
}
