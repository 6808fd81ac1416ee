package buildtool

import (
	"fmt"
	"sort"
	"strings"
)

// OrderSources sorts compilation units so that every Fortran module is
// compiled before the files that use it. Uses of modules no scanned file
// defines are assumed to come from the compiler or an external library and
// are ignored. The sort is stable by path within each dependency rank so
// ordering is deterministic.
func OrderSources(sources []SourceFile) ([]SourceFile, error) {
	providers := make(map[string]int, len(sources))
	for i, src := range sources {
		for _, name := range src.Defines {
			if prev, exists := providers[name]; exists {
				return nil, fmt.Errorf("module %s defined in both %s and %s", name, sources[prev].Path, src.Path)
			}
			providers[name] = i
		}
	}

	indegree := make([]int, len(sources))
	dependents := make(map[int][]int, len(sources))
	for i, src := range sources {
		for _, name := range src.Uses {
			provider, known := providers[name]
			if !known || provider == i {
				continue
			}
			dependents[provider] = append(dependents[provider], i)
			indegree[i]++
		}
	}

	var ready []int
	for i := range sources {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	ordered := make([]SourceFile, 0, len(sources))
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool { return sources[ready[a]].Path < sources[ready[b]].Path })
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, sources[next])
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(ordered) != len(sources) {
		var stuck []string
		for i, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, sources[i].Path)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("circular module dependency involving: %s", strings.Join(stuck, ", "))
	}
	return ordered, nil
}
