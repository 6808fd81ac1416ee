package buildtool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CompileUnit pairs a source file with its object file path and whether the
// object is stale relative to the source.
type CompileUnit struct {
	Source   SourceFile
	Object   string
	Outdated bool
}

// Plan describes everything needed to build one target: the ordered
// compilation units, the object directory, and the target path.
type Plan struct {
	Units     []CompileUnit
	ObjectDir string
	Target    string
}

// NewPlan orders the sources and computes per-unit staleness. With expedite
// disabled every unit is marked outdated so the target is rebuilt from
// scratch; with it enabled only sources newer than their objects recompile.
func NewPlan(sources []SourceFile, objectDir, target string, expedite bool) (*Plan, error) {
	ordered, err := OrderSources(sources)
	if err != nil {
		return nil, err
	}

	plan := &Plan{ObjectDir: objectDir, Target: target}
	for _, src := range ordered {
		object := filepath.Join(objectDir, objectName(src.Path))
		unit := CompileUnit{Source: src, Object: object, Outdated: true}
		if expedite {
			unit.Outdated = isOutdated(src.Path, object)
		}
		plan.Units = append(plan.Units, unit)
	}
	return plan, nil
}

// NeedsLink reports whether the target must be relinked: any recompiled
// unit, a missing target, or a target older than one of its objects.
func (p *Plan) NeedsLink() bool {
	targetInfo, err := os.Stat(p.Target)
	if err != nil {
		return true
	}
	for _, unit := range p.Units {
		if unit.Outdated {
			return true
		}
		objInfo, err := os.Stat(unit.Object)
		if err != nil || objInfo.ModTime().After(targetInfo.ModTime()) {
			return true
		}
	}
	return false
}

// Listing renders the plan makefile-style, one unit per line in compile
// order, ending with the link line.
func (p *Plan) Listing() string {
	var b strings.Builder
	for _, unit := range p.Units {
		fmt.Fprintf(&b, "%s: %s\n", unit.Object, unit.Source.Path)
	}
	fmt.Fprintf(&b, "%s: link %d objects", p.Target, len(p.Units))
	return b.String()
}

// Objects returns every object path in compile order.
func (p *Plan) Objects() []string {
	objects := make([]string, len(p.Units))
	for i, unit := range p.Units {
		objects[i] = unit.Object
	}
	return objects
}

func objectName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + ".o"
}

func isOutdated(sourcePath, objectPath string) bool {
	objInfo, err := os.Stat(objectPath)
	if err != nil {
		return true
	}
	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return true
	}
	return srcInfo.ModTime().After(objInfo.ModTime())
}

func ensureObjectDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create object directory %s: %w", dir, err)
	}
	return nil
}
