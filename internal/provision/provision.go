package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/logger"
)

// Result is the provisioned execution environment for one matrix entry:
// the variable overlay the entry runs under and the synthesized alias
// steps that must execute before anything else.
type Result struct {
	Env        *Env
	AliasSteps []config.Step
	BinDir     string
}

// Prepare builds the entry environment from the provisioning spec and the
// declared env block. It is idempotent: rerunning against an already
// provisioned workspace changes nothing.
func Prepare(spec config.Provision, declared config.Environment, workdir string, log *logger.Logger) (*Result, error) {
	return prepare(spec, declared, workdir, log, true)
}

// Plan computes the same result as Prepare without touching the
// filesystem, for previewing a run.
func Plan(spec config.Provision, declared config.Environment, workdir string) (*Result, error) {
	return prepare(spec, declared, workdir, nil, false)
}

func prepare(spec config.Provision, declared config.Environment, workdir string, log *logger.Logger, create bool) (*Result, error) {
	env := NewEnv()

	binDir := spec.BinDir
	if binDir != "" {
		expanded, err := expandHome(binDir)
		if err != nil {
			return nil, err
		}
		binDir = expanded
		if create {
			if err := ensureDir(binDir, log); err != nil {
				return nil, err
			}
		}
		env.Prepend("PATH", binDir, string(os.PathListSeparator))
	}

	if spec.CompilerVar != "" {
		path := spec.CompilerPath
		if path == "" {
			return nil, fmt.Errorf("compiler_var %s declared without compiler_path", spec.CompilerVar)
		}
		env.Set(spec.CompilerVar, path)
	}

	if spec.ModulePathVar != "" && workdir != "" {
		env.Prepend(spec.ModulePathVar, workdir, string(os.PathListSeparator))
	}

	for _, key := range sortedEnvKeys(declared) {
		env.Set(key, declared[key])
	}

	return &Result{
		Env:        env,
		AliasSteps: aliasSteps(spec.Aliases, binDir),
		BinDir:     binDir,
	}, nil
}

// aliasSteps turns declared aliases into symlink steps so they run through
// the same plugin machinery as user steps. Targets resolve inside the bin
// directory unless given absolute, and force is set because a rerun must
// repoint a link left by an earlier provisioning.
func aliasSteps(aliases []config.Alias, binDir string) []config.Step {
	steps := make([]config.Step, 0, len(aliases))
	for i, alias := range aliases {
		target := alias.Target
		if !filepath.IsAbs(target) && binDir != "" {
			target = filepath.Join(binDir, target)
		}
		steps = append(steps, config.Step{
			ID:      fmt.Sprintf("provision_alias_%d", i),
			Name:    fmt.Sprintf("alias %s -> %s", target, alias.Source),
			Type:    "symlink",
			Enabled: true,
			Symlink: &config.SymlinkStep{
				Source: alias.Source,
				Target: target,
				Force:  true,
			},
		})
	}
	return steps
}

func ensureDir(dir string, log *logger.Logger) error {
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("bin directory %s exists and is not a directory", dir)
		}
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bin directory %s: %w", dir, err)
	}
	log.Debugf("created bin directory %s", dir)
	return nil
}

func expandHome(path string) (string, error) {
	if path == "~" || len(path) > 1 && path[0] == '~' && path[1] == os.PathSeparator {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func sortedEnvKeys(env config.Environment) []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
