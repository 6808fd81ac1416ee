package config

import (
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the full gridci configuration document.
type Config struct {
	Version      string       `yaml:"version" validate:"required,semver"`
	Name         string       `yaml:"name" validate:"required,min=1,max=100"`
	Description  string       `yaml:"description,omitempty"`
	Language     string       `yaml:"language" validate:"required,min=1"`
	Compilers    []string     `yaml:"compilers,omitempty" validate:"omitempty,dive,oneof=gfortran ifort gcc clang"`
	Env          Environment  `yaml:"env,omitempty"`
	Settings     Settings     `yaml:"settings,omitempty"`
	Matrix       Matrix       `yaml:"matrix" validate:"required"`
	Cache        Cache        `yaml:"cache,omitempty"`
	Addons       Addons       `yaml:"addons,omitempty"`
	Requirements Requirements `yaml:"requirements,omitempty"`
	Snapshots    []Snapshot   `yaml:"snapshots,omitempty" validate:"omitempty,dive"`
	Provision    Provision    `yaml:"provision,omitempty"`
	Build        *BuildSpec   `yaml:"build,omitempty"`
	Install      []string     `yaml:"install,omitempty"`
	Steps        []Step       `yaml:"steps,omitempty" validate:"omitempty,dive"`
	Script       []string     `yaml:"script" validate:"required,min=1,dive,min=1"`
}

// Environment is an ordered-insensitive map of variables applied to every
// shell step of an entry.
type Environment map[string]string

// Settings holds global execution parameters.
type Settings struct {
	Parallel        int  `yaml:"parallel,omitempty" validate:"omitempty,min=1,max=32"`
	Timeout         int  `yaml:"timeout,omitempty" validate:"omitempty,min=1,max=360000"`
	ContinueOnError bool `yaml:"continue_on_error,omitempty"`
	DryRun          bool `yaml:"dry_run,omitempty"`
	Verbose         bool `yaml:"verbose,omitempty"`
}

// Matrix declares the runtime versions to build and which of them are
// exempted from fatal-failure propagation.
type Matrix struct {
	Include       []string `yaml:"include" validate:"required,min=1,dive,runtime_version"`
	AllowFailures []string `yaml:"allow_failures,omitempty" validate:"omitempty,dive,runtime_version"`
}

// AllowsFailure reports whether the given version is flagged allow-failure.
func (m Matrix) AllowsFailure(version string) bool {
	for _, v := range m.AllowFailures {
		if v == version {
			return true
		}
	}
	return false
}

// Cache lists paths persisted across runs and an optional remote store.
type Cache struct {
	Paths  []string     `yaml:"paths,omitempty" validate:"omitempty,dive,min=1"`
	Remote *RemoteCache `yaml:"remote,omitempty"`
}

// RemoteCache configures an S3-compatible bucket used as cache backend.
// Credentials are read from the named environment variables so secrets
// never live in the configuration file.
type RemoteCache struct {
	Endpoint     string `yaml:"endpoint" validate:"required,hostname_port|url"`
	Bucket       string `yaml:"bucket" validate:"required,min=1"`
	AccessKeyEnv string `yaml:"access_key_env" validate:"required,min=1"`
	SecretKeyEnv string `yaml:"secret_key_env" validate:"required,min=1"`
	UseSSL       bool   `yaml:"use_ssl,omitempty"`
}

// Addons declares system-level provisioning extras.
type Addons struct {
	Apt AptAddon `yaml:"apt,omitempty"`
}

// AptAddon lists apt sources and packages installed before the pipeline runs.
type AptAddon struct {
	Sources  []string `yaml:"sources,omitempty" validate:"omitempty,dive,min=1"`
	Packages []string `yaml:"packages,omitempty" validate:"omitempty,dive,min=1,max=100"`
}

// Requirements selects the language-dependency manifest per runtime version.
// The first rule whose constraint matches wins; versions matching no rule use
// the default file.
type Requirements struct {
	Default string            `yaml:"default,omitempty"`
	Rules   []RequirementRule `yaml:"rules,omitempty" validate:"omitempty,dive"`
}

// Empty reports whether no requirements are configured at all.
func (r Requirements) Empty() bool {
	return r.Default == "" && len(r.Rules) == 0
}

// RequirementRule maps a version constraint to an alternate requirements file.
type RequirementRule struct {
	When string `yaml:"when" validate:"required,version_constraint"`
	File string `yaml:"file" validate:"required,min=1"`
}

// Snapshot fetches an unpinned development snapshot of an external
// dependency, either by cloning a git ref or by downloading a zip archive.
type Snapshot struct {
	Name        string `yaml:"name" validate:"required,step_id"`
	URL         string `yaml:"url" validate:"required,url"`
	Ref         string `yaml:"ref,omitempty"`
	Destination string `yaml:"destination,omitempty"`
	Format      string `yaml:"format,omitempty" validate:"omitempty,oneof=git zip"`
	Install     bool   `yaml:"install,omitempty"`
}

// UnmarshalYAML defaults the snapshot format from the URL suffix.
func (s *Snapshot) UnmarshalYAML(value *yaml.Node) error {
	type rawSnapshot Snapshot
	var temp rawSnapshot
	if err := value.Decode(&temp); err != nil {
		return err
	}
	*s = Snapshot(temp)
	if s.Format == "" {
		if strings.HasSuffix(strings.ToLower(s.URL), ".zip") {
			s.Format = "zip"
		} else {
			s.Format = "git"
		}
	}
	return nil
}

// Provision configures the per-entry environment: local bin directory,
// compiler variable, and versioned-binary aliases.
type Provision struct {
	BinDir        string  `yaml:"bin_dir,omitempty"`
	CompilerVar   string  `yaml:"compiler_var,omitempty"`
	CompilerPath  string  `yaml:"compiler_path,omitempty"`
	ModulePathVar string  `yaml:"module_path_var,omitempty"`
	Aliases       []Alias `yaml:"aliases,omitempty" validate:"omitempty,dive"`
}

// Alias links a versioned binary to the generic name downstream tooling expects.
type Alias struct {
	Source string `yaml:"source" validate:"required,min=1"`
	Target string `yaml:"target" validate:"required,min=1,nefield=Source"`
}

// BuildSpec describes an optional native build compiled in module-dependency
// order before the install phase.
type BuildSpec struct {
	SrcDir   string   `yaml:"srcdir" validate:"required,min=1"`
	Target   string   `yaml:"target" validate:"required,min=1"`
	FC       string   `yaml:"fc,omitempty" validate:"omitempty,oneof=gfortran ifort"`
	CC       string   `yaml:"cc,omitempty" validate:"omitempty,oneof=gcc clang"`
	Double   bool     `yaml:"double,omitempty"`
	Debug    bool     `yaml:"debug,omitempty"`
	Expedite bool     `yaml:"expedite,omitempty"`
	Subdirs  bool     `yaml:"subdirs,omitempty"`
	FFlags   []string `yaml:"fflags,omitempty"`
	CFlags   []string `yaml:"cflags,omitempty"`
}

// Step describes a user-declared unit of work inserted into the entry DAG
// between the install and script phases.
type Step struct {
	ID      string   `yaml:"id" validate:"required,step_id"`
	Name    string   `yaml:"name,omitempty"`
	Type    string   `yaml:"type" validate:"required,oneof=apt pip symlink script snapshot compile"`
	Needs   []string `yaml:"needs,omitempty"`
	Enabled bool     `yaml:"enabled,omitempty"`

	Apt      *AptStep      `yaml:",inline,omitempty"`
	Pip      *PipStep      `yaml:",inline,omitempty"`
	Symlink  *SymlinkStep  `yaml:",inline,omitempty"`
	Script   *ScriptStep   `yaml:",inline,omitempty"`
	Snapshot *SnapshotStep `yaml:",inline,omitempty"`
	Compile  *CompileStep  `yaml:",inline,omitempty"`

	// Env and WorkDir are injected at runtime by the pipeline, not
	// declared in configuration. Env is the fully merged entry
	// environment in KEY=VALUE form; WorkDir anchors the step's relative
	// paths and exec working directory.
	Env     []string `yaml:"-"`
	WorkDir string   `yaml:"-"`
}

// Resolve anchors a possibly-relative path at the step's working
// directory.
func (s *Step) Resolve(path string) string {
	if path == "" || s.WorkDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.WorkDir, path)
}

// UnmarshalYAML customises step decoding to populate type-specific
// structures without conflicts.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type baseStep struct {
		ID      string   `yaml:"id"`
		Name    string   `yaml:"name"`
		Type    string   `yaml:"type"`
		Needs   []string `yaml:"needs"`
		Enabled *bool    `yaml:"enabled"`
	}

	var base baseStep
	if err := value.Decode(&base); err != nil {
		return err
	}

	s.ID = base.ID
	s.Name = base.Name
	s.Type = base.Type
	s.Needs = append([]string(nil), base.Needs...)
	if base.Enabled != nil {
		s.Enabled = *base.Enabled
	} else {
		s.Enabled = true
	}

	s.Apt = nil
	s.Pip = nil
	s.Symlink = nil
	s.Script = nil
	s.Snapshot = nil
	s.Compile = nil

	switch base.Type {
	case "apt":
		var apt AptStep
		if err := value.Decode(&apt); err != nil {
			return err
		}
		s.Apt = &apt
	case "pip":
		var pip PipStep
		if err := value.Decode(&pip); err != nil {
			return err
		}
		s.Pip = &pip
	case "symlink":
		var link SymlinkStep
		if err := value.Decode(&link); err != nil {
			return err
		}
		s.Symlink = &link
	case "script":
		var sc ScriptStep
		if err := value.Decode(&sc); err != nil {
			return err
		}
		s.Script = &sc
	case "snapshot":
		var snap SnapshotStep
		if err := value.Decode(&snap); err != nil {
			return err
		}
		s.Snapshot = &snap
	case "compile":
		var comp CompileStep
		if err := value.Decode(&comp); err != nil {
			return err
		}
		s.Compile = &comp
	}

	return nil
}

// AptStep installs one or more system packages via apt.
type AptStep struct {
	Sources  []string `yaml:"sources,omitempty"`
	Packages []string `yaml:"packages" validate:"required,min=1,dive,min=1,max=100"`
	Update   bool     `yaml:"update,omitempty"`
}

// PipStep installs language packages from a requirements file, named
// packages, or an editable local source directory.
type PipStep struct {
	Requirements string   `yaml:"requirements,omitempty"`
	Packages     []string `yaml:"packages,omitempty" validate:"omitempty,dive,min=1"`
	Editable     string   `yaml:"editable,omitempty"`
	Python       string   `yaml:"python,omitempty"`
}

// SymlinkStep creates a symbolic link.
type SymlinkStep struct {
	Source string `yaml:"source" validate:"required"`
	Target string `yaml:"target" validate:"required,nefield=Source"`
	Force  bool   `yaml:"force,omitempty"`
}

// ScriptStep executes a shell fragment through the embedded interpreter.
type ScriptStep struct {
	Run     string            `yaml:"run" validate:"required,min=1"`
	WorkDir string            `yaml:"workdir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// SnapshotStep fetches a source snapshot as a pipeline step.
type SnapshotStep struct {
	URL         string `yaml:"url" validate:"required,url"`
	Ref         string `yaml:"ref,omitempty"`
	Destination string `yaml:"destination" validate:"required,min=1"`
	Format      string `yaml:"format,omitempty" validate:"omitempty,oneof=git zip"`
}

// CompileStep builds a native target in module-dependency order.
type CompileStep struct {
	SrcDir   string   `yaml:"srcdir" validate:"required,min=1"`
	Target   string   `yaml:"target" validate:"required,min=1"`
	FC       string   `yaml:"fc,omitempty" validate:"omitempty,oneof=gfortran ifort"`
	CC       string   `yaml:"cc,omitempty" validate:"omitempty,oneof=gcc clang"`
	Double   bool     `yaml:"double,omitempty"`
	Debug    bool     `yaml:"debug,omitempty"`
	Expedite bool     `yaml:"expedite,omitempty"`
	Subdirs  bool     `yaml:"subdirs,omitempty"`
	FFlags   []string `yaml:"fflags,omitempty"`
	CFlags   []string `yaml:"cflags,omitempty"`
}

// StepMap builds a lookup table for steps by ID.
func StepMap(steps []Step) map[string]Step {
	out := make(map[string]Step, len(steps))
	for _, step := range steps {
		out[step.ID] = step
	}
	return out
}
