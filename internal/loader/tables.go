// Package loader reads the study index and the protein mention matrix into
// an immutable domain.Dataset. Tables come from CSV objects in the blob
// store or from SQL tables; both load once, concurrently, at startup.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"albuminome/pkg/domain"
)

// Study index column headers.
const (
	ColumnLabel            = "Label"
	ColumnPaper            = "Paper"
	ColumnAlbuminOnly      = "Albumin_only"
	ColumnOtherProteins    = "Other_proteins"
	ColumnSample           = "Sample"
	ColumnSeparationMethod = "Separation_method"
	ColumnDetectionMethod  = "Detection_method"
)

// Text encodings accepted for CSV sources.
const (
	EncodingUTF8     = "utf-8"
	EncodingMacRoman = "macroman"
)

// ErrMissingColumn reports a required header absent from a table.
var ErrMissingColumn = errors.New("loader: missing column")

// Decode wraps r so that it yields UTF-8 for the named encoding.
func Decode(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", EncodingUTF8, "utf8":
		return r, nil
	case EncodingMacRoman, "mac-roman", "macintosh":
		return transform.NewReader(r, charmap.Macintosh.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// NormalizeCell trims surrounding whitespace; blank cells become "", the
// missing-value marker.
func NormalizeCell(raw string) string {
	return strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
}

// ParseMention reports whether a matrix cell marks a mention: numerically 1
// or a true boolean literal. Missing and any other values are not mentions.
func ParseMention(raw string) bool {
	cell := NormalizeCell(raw)
	if cell == "" {
		return false
	}
	if b, err := strconv.ParseBool(cell); err == nil && !isNumeric(cell) {
		return b
	}
	f, err := strconv.ParseFloat(cell, 64)
	return err == nil && f == 1
}

func isNumeric(cell string) bool {
	_, err := strconv.ParseFloat(cell, 64)
	return err == nil
}

// Table is a header plus records, all cells normalised.
type Table struct {
	Header  []string
	Records [][]string
}

func (t Table) index() map[string]int {
	idx := make(map[string]int, len(t.Header))
	for i, name := range t.Header {
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

func (t Table) require(names ...string) (map[string]int, error) {
	idx := t.index()
	for _, name := range names {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	return idx, nil
}

func cellAt(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

// ReadCSV reads a whole CSV table. Rows may be ragged; short rows read as
// missing trailing cells.
func ReadCSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, errors.New("empty table")
		}
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	table := Table{Header: make([]string, len(header))}
	for i, name := range header {
		table.Header[i] = NormalizeCell(name)
	}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read record: %w", err)
		}
		row := make([]string, len(record))
		blank := true
		for i, cell := range record {
			row[i] = NormalizeCell(cell)
			if row[i] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		table.Records = append(table.Records, row)
	}
	return table, nil
}

// StudyIndexFromTable builds the study index. The co-removed protein cell is
// split on commas once here.
func StudyIndexFromTable(t Table) (domain.StudyIndex, error) {
	idx, err := t.require(ColumnLabel, ColumnAlbuminOnly, ColumnOtherProteins)
	if err != nil {
		return domain.StudyIndex{}, err
	}
	studies := make([]domain.Study, 0, len(t.Records))
	for _, record := range t.Records {
		studies = append(studies, domain.Study{
			Label:            cellAt(record, idx, ColumnLabel),
			Paper:            cellAt(record, idx, ColumnPaper),
			AlbuminOnly:      cellAt(record, idx, ColumnAlbuminOnly),
			OtherProteins:    domain.SplitOtherProteins(cellAt(record, idx, ColumnOtherProteins)),
			Sample:           cellAt(record, idx, ColumnSample),
			SeparationMethod: cellAt(record, idx, ColumnSeparationMethod),
			DetectionMethod:  cellAt(record, idx, ColumnDetectionMethod),
		})
	}
	return domain.NewStudyIndex(studies)
}

// MentionMatrixFromTable builds the mention matrix. Every header other than
// the identity triple is a study column.
func MentionMatrixFromTable(t Table) (domain.MentionMatrix, error) {
	idx, err := t.require(domain.IdentityColumns()...)
	if err != nil {
		return domain.MentionMatrix{}, err
	}
	var columns []string
	for _, name := range t.Header {
		if name != "" && !domain.IsIdentityColumn(name) {
			columns = append(columns, name)
		}
	}
	rows := make([]domain.ProteinMentionRow, 0, len(t.Records))
	for _, record := range t.Records {
		mentions := make(map[string]bool)
		for i, name := range t.Header {
			if name == "" || domain.IsIdentityColumn(name) || i >= len(record) {
				continue
			}
			if ParseMention(record[i]) {
				mentions[name] = true
			}
		}
		rows = append(rows, domain.ProteinMentionRow{
			ProteinIdentity: domain.ProteinIdentity{
				Protein:     cellAt(record, idx, domain.ColumnProtein),
				UniprotID:   cellAt(record, idx, domain.ColumnUniprotID),
				ProteinName: cellAt(record, idx, domain.ColumnProteinName),
			},
			Mentions: mentions,
		})
	}
	return domain.NewMentionMatrix(columns, rows)
}
