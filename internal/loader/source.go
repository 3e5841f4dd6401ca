package loader

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"albuminome/pkg/domain"
)

// Source yields the two reference tables.
type Source interface {
	StudyIndex(ctx context.Context) (domain.StudyIndex, error)
	MentionMatrix(ctx context.Context) (domain.MentionMatrix, error)
	Describe() string
}

// Logger is the subset of core.Logger the loader reports through.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Load reads both tables concurrently and assembles the dataset. now stamps
// LoadedAt; a nil logger is silent.
func Load(ctx context.Context, src Source, now func() time.Time, logger Logger) (domain.Dataset, error) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	var (
		index  domain.StudyIndex
		matrix domain.MentionMatrix
	)
	start := now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if index, err = src.StudyIndex(gctx); err != nil {
			return fmt.Errorf("load study index: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if matrix, err = src.MentionMatrix(gctx); err != nil {
			return fmt.Errorf("load mention matrix: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Dataset{}, err
	}
	ds := domain.Dataset{Index: index, Matrix: matrix, Source: src.Describe(), LoadedAt: now()}
	if logger != nil {
		logger.Info("reference tables loaded",
			"source", ds.Source,
			"studies", index.Len(),
			"proteins", matrix.Len(),
			"duration", ds.LoadedAt.Sub(start).String())
		if extra := ds.UnreferencedColumns(); len(extra) > 0 {
			logger.Warn("mention columns without study", "columns", extra)
		}
	}
	return ds, nil
}
