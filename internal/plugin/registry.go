package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gridci/gridci/internal/logger"
	griderrors "github.com/gridci/gridci/pkg/errors"
)

// Registry maps step types to plugin implementations. It is safe for
// concurrent use by executor workers.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	log     *logger.Logger
}

// NewRegistry creates an empty plugin registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		log:     log,
	}
}

// Register adds a plugin implementation for its declared step type.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return griderrors.NewPluginError("", fmt.Errorf("plugin is nil"))
	}

	meta := p.Metadata()
	if meta.Type == "" {
		return griderrors.NewPluginError(meta.Name, fmt.Errorf("plugin declares no step type"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[meta.Type]; exists {
		return griderrors.NewPluginError(meta.Type, fmt.Errorf("plugin already registered"))
	}

	r.plugins[meta.Type] = p
	r.log.Debugf("registered plugin %s %s for step type %q", meta.Name, meta.Version, meta.Type)
	return nil
}

// Get retrieves a plugin by step type.
func (r *Registry) Get(stepType string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[stepType]
	if !ok {
		return nil, griderrors.NewPluginError(stepType, fmt.Errorf("no plugin registered"))
	}

	return p, nil
}

// Types returns the registered step types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.plugins))
	for t := range r.plugins {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
