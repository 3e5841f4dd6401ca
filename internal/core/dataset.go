package core

import (
	"context"
	"errors"
	"time"

	"albuminome/pkg/datasetapi"
	"albuminome/pkg/domain"
)

type (
	// DatasetFormat mirrors datasetapi.Format for core consumers.
	DatasetFormat = datasetapi.Format
	// DatasetScope mirrors datasetapi.Scope for core consumers.
	DatasetScope = datasetapi.Scope
	// DatasetParameter mirrors datasetapi.Parameter for core consumers.
	DatasetParameter = datasetapi.Parameter
	// DatasetColumn mirrors datasetapi.Column for core consumers.
	DatasetColumn = datasetapi.Column
	// DatasetRunResult mirrors datasetapi.RunResult for core consumers.
	DatasetRunResult = datasetapi.RunResult
	// DatasetParameterError mirrors datasetapi.ParameterError for core consumers.
	DatasetParameterError = datasetapi.ParameterError
	// DatasetTemplateDescriptor mirrors datasetapi.TemplateDescriptor for core consumers.
	DatasetTemplateDescriptor = datasetapi.TemplateDescriptor
)

const (
	FormatJSON DatasetFormat = datasetapi.FormatJSON
	FormatCSV  DatasetFormat = datasetapi.FormatCSV
	FormatHTML DatasetFormat = datasetapi.FormatHTML
)

// DatasetEnvironment provides runtime dependencies to binders within the core layer.
type DatasetEnvironment struct {
	Dataset domain.Dataset
	Now     func() time.Time
}

// DatasetTemplate wraps a registered template and its bound runner.
type DatasetTemplate struct {
	datasetapi.Template
	Plugin string

	host *datasetapi.HostTemplate
}

// Descriptor produces a descriptor snapshot for the template.
func (t DatasetTemplate) Descriptor() DatasetTemplateDescriptor {
	if host, err := t.hostOrNew(); err == nil {
		return host.Descriptor()
	}
	return DatasetTemplateDescriptor{
		Plugin:  t.Plugin,
		Key:     t.Key,
		Version: t.Version,
		Title:   t.Title,
		Slug:    datasetapi.SlugFor(t.Plugin, t.Key, t.Version),
	}
}

// SupportsFormat reports whether the template declares the requested format.
func (t DatasetTemplate) SupportsFormat(format DatasetFormat) bool {
	if t.host != nil {
		return t.host.SupportsFormat(format)
	}
	for _, candidate := range t.OutputFormats {
		if candidate == format {
			return true
		}
	}
	return false
}

// ValidateParameters validates supplied parameters against the template definition.
func (t DatasetTemplate) ValidateParameters(params map[string]any) (map[string]any, []DatasetParameterError) {
	host, err := t.hostOrNew()
	if err != nil {
		return nil, []DatasetParameterError{{Name: "", Message: err.Error()}}
	}
	return host.ValidateParameters(params)
}

// Run executes the template using the bound runner after validating parameters.
func (t DatasetTemplate) Run(ctx context.Context, params map[string]any, scope DatasetScope, format DatasetFormat) (DatasetRunResult, []DatasetParameterError, error) {
	if t.host == nil {
		return DatasetRunResult{}, nil, errors.New("dataset template not bound")
	}
	return t.host.Run(ctx, params, scope, format)
}

// Slug returns the canonical plugin/key@version identifier.
func (t DatasetTemplate) Slug() string {
	return datasetapi.SlugFor(t.Plugin, t.Key, t.Version)
}

func (t *DatasetTemplate) bind(env DatasetEnvironment) error {
	if t == nil {
		return errors.New("dataset template nil")
	}
	host, err := datasetapi.NewHostTemplate(t.Plugin, t.Template)
	if err != nil {
		return err
	}
	if err := host.Bind(datasetapi.Environment{Dataset: env.Dataset, Now: env.Now}); err != nil {
		return err
	}
	t.host = &host
	return nil
}

func (t DatasetTemplate) validate() error {
	_, err := datasetapi.NewHostTemplate(t.Plugin, t.Template)
	return err
}

func (t DatasetTemplate) hostOrNew() (datasetapi.HostTemplate, error) {
	if t.host != nil {
		return *t.host, nil
	}
	return datasetapi.NewHostTemplate(t.Plugin, t.Template)
}
