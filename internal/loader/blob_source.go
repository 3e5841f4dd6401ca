package loader

import (
	"context"
	"fmt"

	"albuminome/internal/blob"
	"albuminome/pkg/domain"
)

// Default object keys, matching the file names the tables are published as.
const (
	DefaultIndexKey  = "data_index.csv"
	DefaultMatrixKey = "data_main.csv"
)

// BlobSource reads both tables as CSV objects from a blob store.
type BlobSource struct {
	Store blob.Store
	// IndexKey and MatrixKey default to DefaultIndexKey and DefaultMatrixKey.
	IndexKey  string
	MatrixKey string
	// IndexEncoding and MatrixEncoding are utf-8 (default) or macroman.
	IndexEncoding  string
	MatrixEncoding string
}

// StudyIndex implements Source.
func (s BlobSource) StudyIndex(ctx context.Context) (domain.StudyIndex, error) {
	table, err := s.read(ctx, orDefault(s.IndexKey, DefaultIndexKey), s.IndexEncoding)
	if err != nil {
		return domain.StudyIndex{}, err
	}
	return StudyIndexFromTable(table)
}

// MentionMatrix implements Source.
func (s BlobSource) MentionMatrix(ctx context.Context) (domain.MentionMatrix, error) {
	table, err := s.read(ctx, orDefault(s.MatrixKey, DefaultMatrixKey), s.MatrixEncoding)
	if err != nil {
		return domain.MentionMatrix{}, err
	}
	return MentionMatrixFromTable(table)
}

// Describe implements Source.
func (s BlobSource) Describe() string {
	driver := "unknown"
	if s.Store != nil {
		driver = string(s.Store.Driver())
	}
	return fmt.Sprintf("blob:%s:%s,%s", driver, orDefault(s.IndexKey, DefaultIndexKey), orDefault(s.MatrixKey, DefaultMatrixKey))
}

func (s BlobSource) read(ctx context.Context, key, encoding string) (Table, error) {
	if s.Store == nil {
		return Table{}, fmt.Errorf("blob store not configured")
	}
	_, rc, err := s.Store.Get(ctx, key)
	if err != nil {
		return Table{}, fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()
	r, err := Decode(rc, encoding)
	if err != nil {
		return Table{}, err
	}
	table, err := ReadCSV(r)
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", key, err)
	}
	return table, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
