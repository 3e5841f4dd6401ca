package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"albuminome/pkg/datasetapi"
	"albuminome/pkg/domain"
)

// Service exposes the exploration pipeline and the dataset template catalog
// over one immutable dataset.
type Service struct {
	dataset    domain.Dataset
	vocabulary []string
	opts       serviceOptions
	plugins    map[string]PluginMetadata
	datasets   map[string]DatasetTemplate
}

// NewService constructs a service over ds and installs the built-in
// explorer templates.
func NewService(ds domain.Dataset, opts ...ServiceOption) (*Service, error) {
	options := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	svc := &Service{
		dataset:    ds,
		vocabulary: Vocabulary(ds.Index),
		opts:       options,
		plugins:    make(map[string]PluginMetadata),
		datasets:   make(map[string]DatasetTemplate),
	}
	if _, err := svc.InstallPlugin(NewExplorerPlugin(options.plugin, svc.vocabulary, svc.Explore)); err != nil {
		return nil, fmt.Errorf("install explorer templates: %w", err)
	}
	if missing := ds.UnmatchedLabels(); len(missing) > 0 {
		options.logger.Warn("study labels without mention column", "labels", missing)
	}
	options.logger.Info("explorer ready",
		"studies", ds.Index.Len(),
		"proteins", ds.Matrix.Len(),
		"vocabulary", len(svc.vocabulary),
		"source", ds.Source)
	return svc, nil
}

// Dataset returns the shared dataset.
func (s *Service) Dataset() domain.Dataset { return s.dataset }

// Logger returns the configured logger.
func (s *Service) Logger() Logger { return s.opts.logger }

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.opts.clock.Now() }

// Vocabulary returns the selectable co-removed proteins.
func (s *Service) Vocabulary() []string {
	return append([]string(nil), s.vocabulary...)
}

// DefaultParams returns the initial selection.
func (s *Service) DefaultParams() domain.Params {
	return domain.Params{
		AlbuminOnly:   domain.DefaultAlbuminOnlyMode,
		OtherProteins: s.Vocabulary(),
	}
}

// Explore validates params and derives both views.
func (s *Service) Explore(ctx context.Context, params domain.Params) (result Exploration, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "explore")
	start := s.opts.clock.Now()
	defer func() {
		span.End(err)
		s.opts.metrics.Observe(ctx, "explore", err == nil, s.opts.clock.Now().Sub(start))
	}()
	if err = ctx.Err(); err != nil {
		return Exploration{}, err
	}
	if !params.AlbuminOnly.Valid() {
		err = fmt.Errorf("%w: %q", domain.ErrInvalidMode, params.AlbuminOnly)
		s.opts.logger.Warn("explore rejected", "albumin_only", string(params.AlbuminOnly))
		return Exploration{}, err
	}
	result = Explore(s.dataset, params)
	s.opts.logger.Debug("explore",
		"albumin_only", string(params.AlbuminOnly),
		"selected", len(params.OtherProteins),
		"studies", len(result.Studies),
		"proteins", len(result.Summary.Counts))
	return result, nil
}

// InstallPlugin registers and binds the plugin's dataset templates.
func (s *Service) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}
	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, err
	}
	env := DatasetEnvironment{Dataset: s.dataset, Now: s.opts.clock.Now}
	meta := PluginMetadata{Name: plugin.Name(), Version: plugin.Version()}
	bound := make(map[string]DatasetTemplate)
	for _, template := range registry.DatasetTemplates() {
		template.Plugin = plugin.Name()
		if err := template.bind(env); err != nil {
			return PluginMetadata{}, fmt.Errorf("bind dataset template %s: %w", template.Slug(), err)
		}
		slug := template.Slug()
		if _, exists := s.datasets[slug]; exists {
			return PluginMetadata{}, fmt.Errorf("dataset template %s already registered", slug)
		}
		bound[slug] = template
		meta.Datasets = append(meta.Datasets, template.Descriptor())
	}
	for slug, template := range bound {
		s.datasets[slug] = template
	}
	s.plugins[plugin.Name()] = meta
	return meta, nil
}

// RegisteredPlugins returns metadata describing installed plugins sorted by name.
func (s *Service) RegisteredPlugins() []PluginMetadata {
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DatasetTemplates lists descriptors of every bound template.
func (s *Service) DatasetTemplates() []DatasetTemplateDescriptor {
	out := make([]DatasetTemplateDescriptor, 0, len(s.datasets))
	for _, template := range s.datasets {
		out = append(out, template.Descriptor())
	}
	datasetapi.SortTemplateDescriptors(out)
	return out
}

// ResolveDatasetTemplate finds a bound template by slug.
func (s *Service) ResolveDatasetTemplate(slug string) (DatasetTemplate, bool) {
	template, ok := s.datasets[slug]
	return template, ok
}
