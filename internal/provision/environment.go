package provision

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Env is an ordered set of environment variables layered over the parent
// process environment. Insertion order is preserved so provisioning output
// reads in the order it was declared.
type Env struct {
	keys   []string
	values map[string]string
}

// NewEnv creates an empty environment overlay.
func NewEnv() *Env {
	return &Env{values: map[string]string{}}
}

// Set assigns a variable, replacing an earlier assignment of the same key.
func (e *Env) Set(key, value string) {
	if _, exists := e.values[key]; !exists {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

// Prepend puts value at the front of a list-valued variable such as PATH.
// The existing value is looked up in the overlay first and the parent
// environment second. Prepending a value already at the front is a no-op,
// so repeated provisioning does not grow the variable.
func (e *Env) Prepend(key, value, sep string) {
	current, exists := e.values[key]
	if !exists {
		current = os.Getenv(key)
	}

	switch {
	case current == "":
		e.Set(key, value)
	case current == value || strings.HasPrefix(current, value+sep):
		e.Set(key, current)
	default:
		e.Set(key, value+sep+current)
	}
}

// Get returns the overlay value for key and whether it is set.
func (e *Env) Get(key string) (string, bool) {
	value, exists := e.values[key]
	return value, exists
}

// Slice merges the overlay onto the parent environment in exec-ready
// KEY=VALUE form. Overlay variables win over inherited ones.
func (e *Env) Slice() []string {
	overridden := make(map[string]bool, len(e.values))
	for _, key := range e.keys {
		overridden[key] = true
	}

	var merged []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !overridden[key] {
			merged = append(merged, kv)
		}
	}
	for _, key := range e.keys {
		merged = append(merged, key+"="+e.values[key])
	}
	return merged
}

// String renders the overlay for logs.
func (e *Env) String() string {
	keys := append([]string(nil), e.keys...)
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = fmt.Sprintf("%s=%s", key, e.values[key])
	}
	return strings.Join(parts, " ")
}
