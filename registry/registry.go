// Package registry holds the catalog of known agents. The catalog is loaded
// from a YAML file at process start; only the active flag changes at runtime.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// Catalog is the on-disk agent catalog format.
type Catalog struct {
	Agents []domain.Agent `yaml:"agents"`
}

// Registry is the in-process agent catalog.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{agents: make(map[string]domain.Agent)}
}

// Load reads the agent catalog from a YAML file.
func Load(path string) (*Registry, error) {
	r := New()
	if err := r.LoadFile(path); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadFile replaces the catalog with the contents of the YAML file. On error
// the existing catalog is left untouched.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read agent catalog: %w", err)
	}
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("parse agent catalog: %w", err)
	}
	for i, a := range catalog.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent catalog entry %d has no id", i)
		}
	}
	r.Replace(catalog.Agents)
	return nil
}

// Replace swaps the full catalog.
func (r *Registry) Replace(agents []domain.Agent) {
	next := make(map[string]domain.Agent, len(agents))
	for _, a := range agents {
		next[a.ID] = a
	}
	r.mu.Lock()
	r.agents = next
	r.mu.Unlock()
}

// Lookup returns the agent with the given id.
func (r *Registry) Lookup(id string) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// List returns all agents ordered by id.
func (r *Registry) List() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetActive flips an agent's active flag. Returns false for unknown agents.
func (r *Registry) SetActive(id string, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return false
	}
	a.Active = active
	r.agents[id] = a
	return true
}
