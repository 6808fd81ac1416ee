package internalexec

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Run executes a command and returns its combined output. The output is
// always returned, even on failure, so callers can attach it to errors.
// When env is set it replaces the process environment, and the binary is
// resolved against the PATH it carries, so tools aliased onto an
// entry-local bin directory are found.
func Run(ctx context.Context, env []string, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = env
		if resolved := lookPath(env, name); resolved != "" {
			cmd.Path = resolved
			cmd.Err = nil
		}
	}
	if dir != "" {
		cmd.Dir = dir
	}

	output, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(output)), err
}

// LookPath reports whether the named binary is resolvable on PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// lookPath resolves name against the PATH carried by env. Returns the
// empty string when name already carries a path or no candidate is found;
// the zero result leaves the default resolution in place.
func lookPath(env []string, name string) string {
	if strings.ContainsRune(name, filepath.Separator) {
		return ""
	}

	var pathVar string
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			pathVar = v
		}
	}

	for _, dir := range filepath.SplitList(pathVar) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return candidate
		}
	}
	return ""
}
