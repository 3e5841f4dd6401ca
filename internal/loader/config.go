package loader

import (
	"context"
	"fmt"

	"albuminome/internal/blob"
)

// Source kinds.
const (
	KindBlob = "blob"
	KindSQL  = "sql"
)

// SQLConfig selects the database holding the tables.
type SQLConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	IndexTable  string `yaml:"index_table"`
	MatrixTable string `yaml:"matrix_table"`
}

// Config describes where the reference tables live.
type Config struct {
	Kind           string    `yaml:"kind"`
	IndexKey       string    `yaml:"index_key"`
	MatrixKey      string    `yaml:"matrix_key"`
	IndexEncoding  string    `yaml:"index_encoding"`
	MatrixEncoding string    `yaml:"matrix_encoding"`
	SQL            SQLConfig `yaml:"sql"`
}

// Open builds the configured source. The returned close function releases
// database handles and is safe to call once loading finishes.
func Open(ctx context.Context, cfg Config, store blob.Store) (Source, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case "", KindBlob:
		if store == nil {
			return nil, noop, fmt.Errorf("blob source requires a blob store")
		}
		return BlobSource{
			Store:          store,
			IndexKey:       cfg.IndexKey,
			MatrixKey:      cfg.MatrixKey,
			IndexEncoding:  cfg.IndexEncoding,
			MatrixEncoding: cfg.MatrixEncoding,
		}, noop, nil
	case KindSQL:
		db, err := OpenSQL(ctx, cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, noop, err
		}
		return SQLSource{
			DB:          db,
			Driver:      cfg.SQL.Driver,
			IndexTable:  cfg.SQL.IndexTable,
			MatrixTable: cfg.SQL.MatrixTable,
		}, db.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown data source kind %q", cfg.Kind)
	}
}
