package buildtool

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gridci/gridci/internal/logger"
	"github.com/gridci/gridci/internal/plugins/internalexec"
)

// Options describes one build target. FC compiles Fortran units and links;
// CC compiles C units. Expedite skips units whose objects are up to date.
type Options struct {
	SrcDir   string
	Subdirs  bool
	Target   string
	FC       string
	CC       string
	Double   bool
	Debug    bool
	Expedite bool
	FFlags   []string
	CFlags   []string
	Env      []string
}

// Default compilers when a build block leaves them unset. They match the
// usual toolchain on CI hosts.
const (
	DefaultFC = "gfortran"
	DefaultCC = "gcc"
)

// WithDefaults returns a copy with unset compilers filled in.
func (o Options) WithDefaults() Options {
	if o.FC == "" {
		o.FC = DefaultFC
	}
	if o.CC == "" {
		o.CC = DefaultCC
	}
	return o
}

// Result summarizes what a build did.
type Result struct {
	Compiled int
	Skipped  int
	Linked   bool
}

// Build scans the sources, compiles stale units in dependency order, and
// links the target. It is a no-op when expedite finds everything current.
func Build(ctx context.Context, opts Options, log *logger.Logger) (*Result, error) {
	opts = opts.WithDefaults()

	sources, err := ScanSources(opts.SrcDir, opts.Subdirs)
	if err != nil {
		return nil, err
	}

	objectDir := filepath.Join(filepath.Dir(opts.Target), "obj_temp")
	plan, err := NewPlan(sources, objectDir, opts.Target, opts.Expedite)
	if err != nil {
		return nil, err
	}
	if err := ensureObjectDir(objectDir); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, unit := range plan.Units {
		if !unit.Outdated {
			result.Skipped++
			log.Debugf("object up to date: %s", unit.Source.Path)
			continue
		}
		if err := compileUnit(ctx, opts, objectDir, unit); err != nil {
			return result, err
		}
		result.Compiled++
	}

	if !plan.NeedsLink() {
		log.Debugf("target up to date: %s", opts.Target)
		return result, nil
	}

	if err := link(ctx, opts, plan); err != nil {
		return result, err
	}
	result.Linked = true
	log.Infof("linked %s (%d compiled, %d up to date)", opts.Target, result.Compiled, result.Skipped)
	return result, nil
}

func compileUnit(ctx context.Context, opts Options, objectDir string, unit CompileUnit) error {
	var compiler string
	var args []string

	switch unit.Source.Language {
	case LanguageFortran:
		flags, err := FortranFlags(opts.FC, opts.Double, opts.Debug)
		if err != nil {
			return err
		}
		compiler = opts.FC
		args = append(flags, opts.FFlags...)
		args = append(args, moduleDirFlags(opts.FC, objectDir)...)
	case LanguageC:
		flags, err := CFlags(opts.CC, opts.Debug)
		if err != nil {
			return err
		}
		compiler = opts.CC
		args = append(flags, opts.CFlags...)
	default:
		return fmt.Errorf("unknown language for %s", unit.Source.Path)
	}

	args = append(args, "-I", filepath.Dir(unit.Source.Path), "-c", unit.Source.Path, "-o", unit.Object)
	output, err := internalexec.Run(ctx, opts.Env, "", compiler, args...)
	if err != nil {
		return fmt.Errorf("compile %s: %w\n%s", unit.Source.Path, err, output)
	}
	return nil
}

func link(ctx context.Context, opts Options, plan *Plan) error {
	linker := opts.FC
	if linker == "" {
		linker = opts.CC
	}

	args := append([]string{"-o", opts.Target}, plan.Objects()...)
	output, err := internalexec.Run(ctx, opts.Env, "", linker, args...)
	if err != nil {
		return fmt.Errorf("link %s: %w\n%s", opts.Target, err, output)
	}
	return nil
}

// moduleDirFlags directs compiled .mod files into the object directory so
// repeated builds do not litter the working directory.
func moduleDirFlags(fc, objectDir string) []string {
	switch fc {
	case "gfortran":
		return []string{"-J", objectDir}
	case "ifort":
		return []string{"-module", objectDir}
	default:
		return nil
	}
}
