package core

import (
	"fmt"
	"sort"
)

// Plugin contributes dataset templates to a Service.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	index    []string
	datasets map[string]DatasetTemplate
}

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{datasets: make(map[string]DatasetTemplate)}
}

// RegisterDatasetTemplate stores a dataset template contributed by the plugin.
func (r *PluginRegistry) RegisterDatasetTemplate(template DatasetTemplate) error {
	if err := template.validate(); err != nil {
		return err
	}
	key := fmt.Sprintf("%s@%s", template.Key, template.Version)
	if _, exists := r.datasets[key]; exists {
		return fmt.Errorf("dataset template %s already registered", key)
	}
	r.datasets[key] = template
	r.index = append(r.index, key)
	return nil
}

// DatasetTemplates returns registered dataset templates sorted by key and version.
func (r *PluginRegistry) DatasetTemplates() []DatasetTemplate {
	out := make([]DatasetTemplate, 0, len(r.datasets))
	for _, key := range r.index {
		out = append(out, r.datasets[key])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key == out[j].Key {
			return out[i].Version < out[j].Version
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// PluginMetadata describes an installed plugin.
type PluginMetadata struct {
	Name     string                      `json:"name"`
	Version  string                      `json:"version"`
	Datasets []DatasetTemplateDescriptor `json:"datasets"`
}
