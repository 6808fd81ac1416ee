package buildtool

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// SourceFile describes one compilation unit and the names it defines or
// references. Module and use names are lowercased because Fortran is case
// insensitive.
type SourceFile struct {
	Path     string
	Language Language
	Defines  []string
	Uses     []string
	Includes []string
}

// Language classifies a source file by extension.
type Language string

const (
	LanguageFortran Language = "fortran"
	LanguageC       Language = "c"
)

var fortranExtensions = map[string]bool{
	".f": true, ".for": true, ".f90": true, ".f95": true, ".fpp": true,
}

var cExtensions = map[string]bool{
	".c": true, ".cpp": true, ".cc": true,
}

var (
	moduleDefRe = regexp.MustCompile(`(?i)^\s*module\s+([a-z][a-z0-9_]*)\s*$`)
	moduleUseRe = regexp.MustCompile(`(?i)^\s*use\s+([a-z][a-z0-9_]*)`)
	fincludeRe  = regexp.MustCompile(`(?i)^\s*include\s+['"]([^'"]+)['"]`)
	cincludeRe  = regexp.MustCompile(`^\s*#include\s+"([^"]+)"`)
)

// ScanSources parses every Fortran and C file in the source directory for
// dependency references. With recurse set it descends into subdirectories.
func ScanSources(srcDir string, recurse bool) ([]SourceFile, error) {
	var sources []SourceFile
	err := filepath.WalkDir(srcDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("read source directory %s: %w", srcDir, err)
		}
		if entry.IsDir() {
			if path != srcDir && !recurse {
				return filepath.SkipDir
			}
			return nil
		}
		lang, ok := classify(path)
		if !ok {
			return nil
		}
		src, err := scanFile(path, lang)
		if err != nil {
			return err
		}
		sources = append(sources, src)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no source files found under %s", srcDir)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	return sources, nil
}

func classify(path string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case fortranExtensions[ext]:
		return LanguageFortran, true
	case cExtensions[ext]:
		return LanguageC, true
	default:
		return "", false
	}
}

func scanFile(path string, lang Language) (SourceFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return SourceFile{}, fmt.Errorf("open source %s: %w", path, err)
	}
	defer file.Close()

	src := SourceFile{Path: path, Language: lang}
	defines := map[string]bool{}
	uses := map[string]bool{}
	includes := map[string]bool{}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch lang {
		case LanguageFortran:
			if m := moduleDefRe.FindStringSubmatch(line); m != nil {
				defines[strings.ToLower(m[1])] = true
			} else if m := moduleUseRe.FindStringSubmatch(line); m != nil {
				uses[strings.ToLower(m[1])] = true
			} else if m := fincludeRe.FindStringSubmatch(line); m != nil {
				includes[m[1]] = true
			}
		case LanguageC:
			if m := cincludeRe.FindStringSubmatch(line); m != nil {
				includes[m[1]] = true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return SourceFile{}, fmt.Errorf("scan source %s: %w", path, err)
	}

	src.Defines = sortedKeys(defines)
	src.Includes = sortedKeys(includes)
	for name := range uses {
		if !defines[name] {
			src.Uses = append(src.Uses, name)
		}
	}
	sort.Strings(src.Uses)
	return src, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
