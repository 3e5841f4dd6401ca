package domain

import (
	"sort"
	"time"
)

// Dataset bundles the two reference tables loaded at startup. It is shared
// read-only between all sessions.
type Dataset struct {
	Index    StudyIndex
	Matrix   MentionMatrix
	Source   string
	LoadedAt time.Time
}

// UnmatchedLabels returns study labels that have no mention column. The
// aggregator tolerates them; loaders surface them as warnings.
func (d Dataset) UnmatchedLabels() []string {
	var out []string
	for _, label := range d.Index.Labels() {
		if !d.Matrix.HasColumn(label) {
			out = append(out, label)
		}
	}
	return out
}

// UnreferencedColumns returns matrix columns without a study-index row.
func (d Dataset) UnreferencedColumns() []string {
	var out []string
	for _, column := range d.Matrix.Columns() {
		if _, ok := d.Index.Lookup(column); !ok {
			out = append(out, column)
		}
	}
	sort.Strings(out)
	return out
}

// Params are the user-controlled inputs of one exploration.
type Params struct {
	AlbuminOnly   AlbuminOnlyMode `json:"albumin_only"`
	OtherProteins []string        `json:"other_proteins"`
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	dup := p
	if p.OtherProteins != nil {
		dup.OtherProteins = append([]string(nil), p.OtherProteins...)
	}
	return dup
}

// ProteinCount is one entry of the ranked mention summary.
type ProteinCount struct {
	ProteinIdentity
	Count int `json:"count"`
}
