package loader

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"albuminome/pkg/domain"
)

// Default table names for SQL sources.
const (
	DefaultIndexTable  = "data_index"
	DefaultMatrixTable = "data_main"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex

	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// SQLSource reads both tables with SELECT * so the matrix study columns are
// discovered from the result set.
type SQLSource struct {
	DB          *sql.DB
	Driver      string
	IndexTable  string
	MatrixTable string
}

// OpenSQL opens a database for driver "sqlite" or "postgres".
func OpenSQL(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	var name string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		name = "sqlite"
	case "postgres", "postgresql", "pgx":
		name = "pgx"
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s dsn required", driver)
	}
	openMu.Lock()
	db, err := sqlOpen(name, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// StudyIndex implements Source.
func (s SQLSource) StudyIndex(ctx context.Context) (domain.StudyIndex, error) {
	table, err := s.selectAll(ctx, orDefault(s.IndexTable, DefaultIndexTable))
	if err != nil {
		return domain.StudyIndex{}, err
	}
	return StudyIndexFromTable(table)
}

// MentionMatrix implements Source.
func (s SQLSource) MentionMatrix(ctx context.Context) (domain.MentionMatrix, error) {
	table, err := s.selectAll(ctx, orDefault(s.MatrixTable, DefaultMatrixTable))
	if err != nil {
		return domain.MentionMatrix{}, err
	}
	return MentionMatrixFromTable(table)
}

// Describe implements Source.
func (s SQLSource) Describe() string {
	return fmt.Sprintf("sql:%s:%s,%s", s.Driver, orDefault(s.IndexTable, DefaultIndexTable), orDefault(s.MatrixTable, DefaultMatrixTable))
}

func (s SQLSource) selectAll(ctx context.Context, table string) (Table, error) {
	if s.DB == nil {
		return Table{}, fmt.Errorf("database not configured")
	}
	if !identPattern.MatchString(table) {
		return Table{}, fmt.Errorf("invalid table name %q", table)
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT * FROM "`+table+`"`) // #nosec G202 -- identifier validated above
	if err != nil {
		return Table{}, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return Table{}, err
	}
	out := Table{Header: make([]string, len(columns))}
	for i, name := range columns {
		out.Header[i] = NormalizeCell(name)
	}
	for rows.Next() {
		cells := make([]sql.NullString, len(columns))
		dest := make([]any, len(columns))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return Table{}, fmt.Errorf("scan %s: %w", table, err)
		}
		record := make([]string, len(columns))
		for i, cell := range cells {
			if cell.Valid {
				record[i] = NormalizeCell(cell.String)
			}
		}
		out.Records = append(out.Records, record)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("read %s: %w", table, err)
	}
	return out, nil
}
