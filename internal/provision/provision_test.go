package provision

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridci/gridci/internal/config"
)

func TestEnvSetAndGet(t *testing.T) {
	t.Parallel()

	env := NewEnv()
	env.Set("FC", "gfortran-8")
	env.Set("FC", "gfortran")

	value, ok := env.Get("FC")
	require.True(t, ok)
	require.Equal(t, "gfortran", value)
}

func TestEnvPrependIdempotent(t *testing.T) {
	env := NewEnv()
	t.Setenv("GRIDCI_TEST_PATH", "/usr/bin")

	env.Prepend("GRIDCI_TEST_PATH", "/home/user/bin", ":")
	value, _ := env.Get("GRIDCI_TEST_PATH")
	require.Equal(t, "/home/user/bin:/usr/bin", value)

	// Prepending again must not duplicate the entry.
	env.Prepend("GRIDCI_TEST_PATH", "/home/user/bin", ":")
	value, _ = env.Get("GRIDCI_TEST_PATH")
	require.Equal(t, "/home/user/bin:/usr/bin", value)
}

func TestEnvPrependEmptyParent(t *testing.T) {
	env := NewEnv()
	t.Setenv("GRIDCI_TEST_EMPTY", "")

	env.Prepend("GRIDCI_TEST_EMPTY", "/opt/bin", ":")
	value, _ := env.Get("GRIDCI_TEST_EMPTY")
	require.Equal(t, "/opt/bin", value)
}

func TestEnvSliceOverridesParent(t *testing.T) {
	env := NewEnv()
	t.Setenv("GRIDCI_TEST_VAR", "parent")
	env.Set("GRIDCI_TEST_VAR", "overlay")

	var found []string
	for _, kv := range env.Slice() {
		if strings.HasPrefix(kv, "GRIDCI_TEST_VAR=") {
			found = append(found, kv)
		}
	}
	require.Equal(t, []string{"GRIDCI_TEST_VAR=overlay"}, found)
}

func TestPrepareCreatesBinDir(t *testing.T) {
	t.Parallel()

	binDir := filepath.Join(t.TempDir(), "bin")
	spec := config.Provision{BinDir: binDir}

	result, err := Prepare(spec, nil, "", nil)
	require.NoError(t, err)

	info, statErr := os.Stat(binDir)
	require.NoError(t, statErr)
	require.True(t, info.IsDir())

	path, ok := result.Env.Get("PATH")
	require.True(t, ok)
	require.True(t, strings.HasPrefix(path, binDir))

	// Second run against the provisioned workspace succeeds unchanged.
	again, err := Prepare(spec, nil, "", nil)
	require.NoError(t, err)
	againPath, _ := again.Env.Get("PATH")
	require.Equal(t, path, againPath)
}

func TestPrepareRejectsBinDirCollision(t *testing.T) {
	t.Parallel()

	collision := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.WriteFile(collision, []byte("file"), 0o644))

	_, err := Prepare(config.Provision{BinDir: collision}, nil, "", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a directory")
}

func TestPrepareCompilerVar(t *testing.T) {
	t.Parallel()

	result, err := Prepare(config.Provision{
		CompilerVar:  "FC",
		CompilerPath: "gfortran-8",
	}, nil, "", nil)
	require.NoError(t, err)

	fc, ok := result.Env.Get("FC")
	require.True(t, ok)
	require.Equal(t, "gfortran-8", fc)
}

func TestPrepareCompilerVarWithoutPath(t *testing.T) {
	t.Parallel()

	_, err := Prepare(config.Provision{CompilerVar: "FC"}, nil, "", nil)
	require.Error(t, err)
}

func TestPrepareModulePathVar(t *testing.T) {
	workdir := t.TempDir()
	t.Setenv("PYTHONPATH", "/existing")

	result, err := Prepare(config.Provision{ModulePathVar: "PYTHONPATH"}, nil, workdir, nil)
	require.NoError(t, err)

	value, ok := result.Env.Get("PYTHONPATH")
	require.True(t, ok)
	require.Equal(t, workdir+":/existing", value)
}

func TestPrepareDeclaredEnv(t *testing.T) {
	t.Parallel()

	result, err := Prepare(config.Provision{}, config.Environment{"NO_NET": "1"}, "", nil)
	require.NoError(t, err)

	value, ok := result.Env.Get("NO_NET")
	require.True(t, ok)
	require.Equal(t, "1", value)
}

func TestAliasSteps(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	result, err := Prepare(config.Provision{
		BinDir: binDir,
		Aliases: []config.Alias{
			{Source: "/usr/bin/gfortran-8", Target: "gfortran"},
		},
	}, nil, "", nil)
	require.NoError(t, err)
	require.Len(t, result.AliasSteps, 1)

	step := result.AliasSteps[0]
	require.Equal(t, "symlink", step.Type)
	require.True(t, step.Enabled)
	require.NotNil(t, step.Symlink)
	require.Equal(t, "/usr/bin/gfortran-8", step.Symlink.Source)
	require.Equal(t, filepath.Join(binDir, "gfortran"), step.Symlink.Target)
	require.True(t, step.Symlink.Force, "rerun must repoint an existing alias")
}
