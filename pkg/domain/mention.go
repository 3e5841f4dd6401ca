package domain

import (
	"errors"
	"fmt"
)

// Identity column headers of the mention matrix.
const (
	ColumnProtein     = "Protein"
	ColumnUniprotID   = "Uniprot ID"
	ColumnProteinName = "Protein Name"
)

// IdentityColumns lists the matrix columns that identify a protein.
func IdentityColumns() []string {
	return []string{ColumnProtein, ColumnUniprotID, ColumnProteinName}
}

// IsIdentityColumn reports whether name is one of the protein identity headers.
func IsIdentityColumn(name string) bool {
	return name == ColumnProtein || name == ColumnUniprotID || name == ColumnProteinName
}

// ErrDuplicateColumn reports a matrix header appearing twice.
var ErrDuplicateColumn = errors.New("domain: duplicate mention column")

// ProteinIdentity is the composite aggregation key of a protein. Two rows
// denote the same protein only when all three fields match.
type ProteinIdentity struct {
	Protein     string `json:"protein"`
	UniprotID   string `json:"uniprot_id"`
	ProteinName string `json:"protein_name"`
}

// Less orders identities by protein, then UniProt ID, then protein name.
func (p ProteinIdentity) Less(other ProteinIdentity) bool {
	if p.Protein != other.Protein {
		return p.Protein < other.Protein
	}
	if p.UniprotID != other.UniprotID {
		return p.UniprotID < other.UniprotID
	}
	return p.ProteinName < other.ProteinName
}

// ProteinMentionRow is one row of the mention matrix: a protein and whether
// each study column reported it.
type ProteinMentionRow struct {
	ProteinIdentity
	Mentions map[string]bool `json:"mentions"`
}

// Clone returns a deep copy of the row.
func (r ProteinMentionRow) Clone() ProteinMentionRow {
	dup := r
	if r.Mentions != nil {
		dup.Mentions = make(map[string]bool, len(r.Mentions))
		for label, mentioned := range r.Mentions {
			dup.Mentions[label] = mentioned
		}
	}
	return dup
}

// MentionMatrix is the immutable protein by study table. Cells are stored
// column-major so projections touch only the selected study columns.
type MentionMatrix struct {
	identities []ProteinIdentity
	columns    []string
	colIndex   map[string]int
	cells      [][]bool // cells[column][row]
}

// NewMentionMatrix builds a matrix from the study column headers (in source
// order) and the per-protein rows. Cells absent from a row's Mentions map are
// treated as not mentioned; keys that are not declared columns are ignored.
func NewMentionMatrix(columns []string, rows []ProteinMentionRow) (MentionMatrix, error) {
	m := MentionMatrix{
		identities: make([]ProteinIdentity, len(rows)),
		columns:    make([]string, 0, len(columns)),
		colIndex:   make(map[string]int, len(columns)),
	}
	for _, column := range columns {
		if IsIdentityColumn(column) {
			continue
		}
		if _, exists := m.colIndex[column]; exists {
			return MentionMatrix{}, fmt.Errorf("%w: %s", ErrDuplicateColumn, column)
		}
		m.colIndex[column] = len(m.columns)
		m.columns = append(m.columns, column)
	}
	m.cells = make([][]bool, len(m.columns))
	for c := range m.cells {
		m.cells[c] = make([]bool, len(rows))
	}
	for r, row := range rows {
		m.identities[r] = row.ProteinIdentity
		for label, mentioned := range row.Mentions {
			if c, ok := m.colIndex[label]; ok {
				m.cells[c][r] = mentioned
			}
		}
	}
	return m, nil
}

// Len returns the number of protein rows.
func (m MentionMatrix) Len() int { return len(m.identities) }

// Columns returns the study-label columns in source order.
func (m MentionMatrix) Columns() []string {
	return append([]string(nil), m.columns...)
}

// HasColumn reports whether the matrix carries a column for label.
func (m MentionMatrix) HasColumn(label string) bool {
	_, ok := m.colIndex[label]
	return ok
}

// Identity returns the protein identity of row r.
func (m MentionMatrix) Identity(r int) ProteinIdentity { return m.identities[r] }

// Mentioned reports whether row r is marked in the given study column. Unknown
// labels and out-of-range rows read as not mentioned.
func (m MentionMatrix) Mentioned(r int, label string) bool {
	c, ok := m.colIndex[label]
	if !ok || r < 0 || r >= len(m.identities) {
		return false
	}
	return m.cells[c][r]
}

// Column returns a copy of one study column, aligned with row order.
func (m MentionMatrix) Column(label string) ([]bool, bool) {
	c, ok := m.colIndex[label]
	if !ok {
		return nil, false
	}
	return append([]bool(nil), m.cells[c]...), true
}

// Rows materialises the matrix back into row form.
func (m MentionMatrix) Rows() []ProteinMentionRow {
	out := make([]ProteinMentionRow, len(m.identities))
	for r, identity := range m.identities {
		mentions := make(map[string]bool, len(m.columns))
		for c, label := range m.columns {
			mentions[label] = m.cells[c][r]
		}
		out[r] = ProteinMentionRow{ProteinIdentity: identity, Mentions: mentions}
	}
	return out
}
