// Package testutil builds explorer services over the reference dataset for
// adapter and server tests, plus a minimal extra plugin for catalog tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"albuminome/internal/core"
	"albuminome/pkg/datasetapi"
	roottestutil "albuminome/testutil"
)

// NewService constructs a service over the reference dataset.
func NewService(t testing.TB, opts ...core.ServiceOption) *core.Service {
	t.Helper()
	opts = append([]core.ServiceOption{core.WithClock(core.ClockFunc(func() time.Time { return roottestutil.FixtureTime }))}, opts...)
	svc, err := core.NewService(roottestutil.Dataset(t), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

// StatsPlugin contributes a one-row template reporting dataset sizes. It
// only supports JSON so format negotiation failures can be exercised.
type StatsPlugin struct{}

// Name implements core.Plugin.
func (StatsPlugin) Name() string { return "stats" }

// Version implements core.Plugin.
func (StatsPlugin) Version() string { return "0.1.0" }

// Register implements core.Plugin.
func (StatsPlugin) Register(registry *core.PluginRegistry) error {
	return registry.RegisterDatasetTemplate(core.DatasetTemplate{Template: datasetapi.Template{
		Key:           "sizes",
		Version:       "1",
		Title:         "Dataset sizes",
		Columns:       []datasetapi.Column{{Name: "studies", Type: "integer"}, {Name: "proteins", Type: "integer"}},
		OutputFormats: []datasetapi.Format{datasetapi.FormatJSON},
		Binder: func(env datasetapi.Environment) (datasetapi.Runner, error) {
			return func(context.Context, datasetapi.RunRequest) (datasetapi.RunResult, error) {
				return datasetapi.RunResult{
					Rows:        []map[string]any{{"studies": env.Dataset.Index.Len(), "proteins": env.Dataset.Matrix.Len()}},
					GeneratedAt: env.Now(),
				}, nil
			}, nil
		},
	}})
}

// InstallStatsPlugin installs StatsPlugin on svc.
func InstallStatsPlugin(t testing.TB, svc *core.Service) core.PluginMetadata {
	t.Helper()
	meta, err := svc.InstallPlugin(StatsPlugin{})
	if err != nil {
		t.Fatalf("install stats plugin: %v", err)
	}
	return meta
}
