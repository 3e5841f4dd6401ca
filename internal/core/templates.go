package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"albuminome/internal/present"
	"albuminome/pkg/datasetapi"
	"albuminome/pkg/domain"
)

// DefaultPlugin is the plugin segment of the built-in template slugs.
const DefaultPlugin = "albuminome"

// Template keys, titles and parameter names of the built-in explorer
// templates.
const (
	SelectedPapersKey    = "selected_papers"
	AggregatedTableKey   = "aggregated_table"
	TemplateVersion      = "1"
	ParamAlbuminOnly     = "albumin_only"
	ParamOtherProteins   = "other_proteins"
	SelectedPapersTitle  = "Details about selected studies"
	AggregatedTableTitle = "Albuminome and/or co-removed proteins with HAPs"
)

// Texts shown alongside the controls by user interfaces.
const (
	AboutText = "Albumin can bind to a wide quantity of proteins and peptides in human blood, which leads to the term " +
		"'albuminome' defined by Stanley et al. (2004). In quantitative proteomics studies, albumin depletion is the " +
		"standard procedure and can also remove other proteins bound to albumin. Depletion is usually done with " +
		"commercial kits that target other high-abundance proteins (HAPs) as well, so co-removed proteins may be due " +
		"to albumin or to other HAPs and cannot be distinguished. Included studies either examine albumin-binding " +
		"proteins only or examine proteins co-removed with albumin and other HAPs."
	AlbuminOnlyLabel = "Select 'Yes' for studies of albumin-binding proteins only, 'All' for every study, " +
		"or 'No' for studies of proteins co-removed with albumin."
	OtherProteinsLabel = "When 'No' is selected above, choose the co-removed HAPs of interest."
)

// ExploreFunc derives both views for validated parameters.
type ExploreFunc func(ctx context.Context, params domain.Params) (Exploration, error)

// ExplorerPlugin contributes the selected-studies and ranked-protein
// templates. Its parameter enums come from the loaded study index.
type ExplorerPlugin struct {
	name       string
	vocabulary []string
	explore    ExploreFunc
}

// NewExplorerPlugin builds the plugin for the given co-removed protein
// vocabulary. Template runs go through explore; a nil explore runs the pure
// pipeline over the bound dataset.
func NewExplorerPlugin(name string, vocabulary []string, explore ExploreFunc) ExplorerPlugin {
	if name == "" {
		name = DefaultPlugin
	}
	return ExplorerPlugin{name: name, vocabulary: append([]string(nil), vocabulary...), explore: explore}
}

// Name implements Plugin.
func (p ExplorerPlugin) Name() string { return p.name }

// Version implements Plugin.
func (p ExplorerPlugin) Version() string { return TemplateVersion }

// Register implements Plugin.
func (p ExplorerPlugin) Register(registry *PluginRegistry) error {
	params, err := p.parameters()
	if err != nil {
		return err
	}
	formats := []DatasetFormat{FormatJSON, FormatCSV, FormatHTML}
	templates := []DatasetTemplate{
		{
			Plugin: p.name,
			Template: datasetapi.Template{
				Key:           SelectedPapersKey,
				Version:       TemplateVersion,
				Title:         SelectedPapersTitle,
				Description:   "Studies of the index that match the albumin-only mode and co-removed protein selection.",
				Parameters:    params,
				Columns:       present.StudyColumns(),
				Metadata:      datasetapi.Metadata{Source: "study index", Tags: []string{"studies"}},
				OutputFormats: formats,
				Binder:        p.bindSelectedPapers,
			},
		},
		{
			Plugin: p.name,
			Template: datasetapi.Template{
				Key:           AggregatedTableKey,
				Version:       TemplateVersion,
				Title:         AggregatedTableTitle,
				Description:   "Proteins mentioned by the selected studies, ranked by number of mentioning studies.",
				Parameters:    params,
				Columns:       present.ProteinColumns(),
				Metadata:      datasetapi.Metadata{Source: "mention matrix", Tags: []string{"proteins", "ranking"}},
				OutputFormats: formats,
				Binder:        p.bindAggregatedTable,
			},
		},
	}
	for _, template := range templates {
		if err := registry.RegisterDatasetTemplate(template); err != nil {
			return err
		}
	}
	return nil
}

func (p ExplorerPlugin) parameters() ([]DatasetParameter, error) {
	modeDefault, err := json.Marshal(string(domain.DefaultAlbuminOnlyMode))
	if err != nil {
		return nil, err
	}
	vocabulary := p.vocabulary
	if vocabulary == nil {
		vocabulary = []string{}
	}
	proteinsDefault, err := json.Marshal(vocabulary)
	if err != nil {
		return nil, err
	}
	modes := domain.AlbuminOnlyModes()
	enum := make([]string, len(modes))
	for i, mode := range modes {
		enum[i] = string(mode)
	}
	return []DatasetParameter{
		{
			Name:        ParamAlbuminOnly,
			Type:        datasetapi.TypeString,
			Description: AlbuminOnlyLabel,
			Enum:        enum,
			Default:     modeDefault,
		},
		{
			Name:        ParamOtherProteins,
			Type:        datasetapi.TypeStringList,
			Description: OtherProteinsLabel,
			Enum:        append([]string(nil), p.vocabulary...),
			Default:     proteinsDefault,
		},
	}, nil
}

func (p ExplorerPlugin) bindSelectedPapers(env datasetapi.Environment) (datasetapi.Runner, error) {
	return p.bind(env, func(result Exploration) present.Table {
		return present.SelectedPapers(result.Studies)
	})
}

func (p ExplorerPlugin) bindAggregatedTable(env datasetapi.Environment) (datasetapi.Runner, error) {
	return p.bind(env, func(result Exploration) present.Table {
		return present.AggregatedTable(result.Summary.Counts, result.Summary.NoStudies())
	})
}

func (p ExplorerPlugin) bind(env datasetapi.Environment, shape func(Exploration) present.Table) (datasetapi.Runner, error) {
	now := env.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	explore := p.explore
	if explore == nil {
		dataset := env.Dataset
		explore = func(_ context.Context, params domain.Params) (Exploration, error) {
			return Explore(dataset, params), nil
		}
	}
	return func(ctx context.Context, req datasetapi.RunRequest) (datasetapi.RunResult, error) {
		if err := ctx.Err(); err != nil {
			return datasetapi.RunResult{}, err
		}
		params, err := ParamsFromValues(req.Parameters)
		if err != nil {
			return datasetapi.RunResult{}, err
		}
		result, err := explore(ctx, params)
		if err != nil {
			return datasetapi.RunResult{}, err
		}
		out := shape(result).RunResult(now())
		out.Metadata["albumin_only"] = string(params.AlbuminOnly)
		out.Metadata["studies"] = len(result.Studies)
		if len(result.Summary.Missing) > 0 {
			out.Metadata["unmatched_labels"] = result.Summary.Missing
		}
		return out, nil
	}, nil
}

// ParamsFromValues converts validated template parameters into domain
// parameters. Absent values fall back to the albumin-only default and an
// empty protein selection.
func ParamsFromValues(values map[string]any) (domain.Params, error) {
	params := domain.Params{AlbuminOnly: domain.DefaultAlbuminOnlyMode}
	if raw, ok := values[ParamAlbuminOnly]; ok {
		text, ok := raw.(string)
		if !ok {
			return domain.Params{}, fmt.Errorf("%s: expected string, got %T", ParamAlbuminOnly, raw)
		}
		mode, err := domain.ParseAlbuminOnlyMode(text)
		if err != nil {
			return domain.Params{}, err
		}
		params.AlbuminOnly = mode
	}
	if raw, ok := values[ParamOtherProteins]; ok {
		list, ok := raw.([]string)
		if !ok {
			return domain.Params{}, fmt.Errorf("%s: expected string list, got %T", ParamOtherProteins, raw)
		}
		params.OtherProteins = append([]string(nil), list...)
	}
	return params, nil
}
