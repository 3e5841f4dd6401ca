// Package domain defines the reference tables of the albuminome explorer and
// the value types that flow between the filter, the aggregator and the
// presentation adapters. Tables are immutable once constructed.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// AlbuminOnlyMode selects which class of studies the filter retains.
type AlbuminOnlyMode string

const (
	// AlbuminOnlyAll disables filtering on the albumin-only flag.
	AlbuminOnlyAll AlbuminOnlyMode = "All"
	// AlbuminOnlyYes keeps studies of direct albumin binders only.
	AlbuminOnlyYes AlbuminOnlyMode = "Yes"
	// AlbuminOnlyNo keeps studies of proteins co-removed with albumin or other HAPs.
	AlbuminOnlyNo AlbuminOnlyMode = "No"
)

// DefaultAlbuminOnlyMode is the selection offered before the user interacts.
const DefaultAlbuminOnlyMode = AlbuminOnlyYes

// ExcludedVocabularyProtein is implied by every study and never offered as a choice.
const ExcludedVocabularyProtein = "Albumin"

var (
	// ErrInvalidMode reports an albumin-only value outside All/Yes/No.
	ErrInvalidMode = errors.New("domain: invalid albumin_only mode")
	// ErrUnknownProtein reports a co-removed protein outside the vocabulary.
	ErrUnknownProtein = errors.New("domain: unknown co-removed protein")
	// ErrDuplicateLabel reports two studies sharing the same label.
	ErrDuplicateLabel = errors.New("domain: duplicate study label")
	// ErrEmptyLabel reports a study without a label.
	ErrEmptyLabel = errors.New("domain: study label required")
)

// AlbuminOnlyModes lists the recognised modes in presentation order.
func AlbuminOnlyModes() []AlbuminOnlyMode {
	return []AlbuminOnlyMode{AlbuminOnlyAll, AlbuminOnlyYes, AlbuminOnlyNo}
}

// ParseAlbuminOnlyMode validates raw input against the recognised modes.
// Matching is exact; the stored dataset values are case-sensitive.
func ParseAlbuminOnlyMode(raw string) (AlbuminOnlyMode, error) {
	for _, mode := range AlbuminOnlyModes() {
		if string(mode) == raw {
			return mode, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
}

// Valid reports whether the mode is one of All, Yes or No.
func (m AlbuminOnlyMode) Valid() bool {
	_, err := ParseAlbuminOnlyMode(string(m))
	return err == nil
}

// Study is one row of the study index. Empty strings mark missing cells.
type Study struct {
	Label            string   `json:"label"`
	Paper            string   `json:"paper"`
	AlbuminOnly      string   `json:"albumin_only"`
	OtherProteins    []string `json:"other_proteins,omitempty"`
	Sample           string   `json:"sample"`
	SeparationMethod string   `json:"separation_method"`
	DetectionMethod  string   `json:"detection_method"`
}

// Clone returns a deep copy so callers never share the co-removed slice.
func (s Study) Clone() Study {
	dup := s
	if s.OtherProteins != nil {
		dup.OtherProteins = append([]string(nil), s.OtherProteins...)
	}
	return dup
}

// OtherProteinsText renders the co-removed list the way the source cell reads.
func (s Study) OtherProteinsText() string {
	return strings.Join(s.OtherProteins, ", ")
}

// SplitOtherProteins parses a comma-delimited co-removed cell into trimmed,
// non-empty entries. The input order is preserved and duplicates are kept.
func SplitOtherProteins(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	parts := strings.Split(cell, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// StudyIndex is the immutable, ordered table of studies.
type StudyIndex struct {
	studies []Study
	byLabel map[string]int
}

// NewStudyIndex validates labels and captures a private copy of the rows.
func NewStudyIndex(studies []Study) (StudyIndex, error) {
	idx := StudyIndex{
		studies: make([]Study, len(studies)),
		byLabel: make(map[string]int, len(studies)),
	}
	for i, study := range studies {
		if study.Label == "" {
			return StudyIndex{}, fmt.Errorf("%w (row %d)", ErrEmptyLabel, i+1)
		}
		if _, exists := idx.byLabel[study.Label]; exists {
			return StudyIndex{}, fmt.Errorf("%w: %s", ErrDuplicateLabel, study.Label)
		}
		idx.byLabel[study.Label] = i
		idx.studies[i] = study.Clone()
	}
	return idx, nil
}

// Len returns the number of studies.
func (idx StudyIndex) Len() int { return len(idx.studies) }

// Studies returns an independent copy of all rows in source order.
func (idx StudyIndex) Studies() []Study {
	out := make([]Study, len(idx.studies))
	for i, study := range idx.studies {
		out[i] = study.Clone()
	}
	return out
}

// Each visits rows in source order without copying the table. The callback
// receives a clone, so it cannot mutate the index.
func (idx StudyIndex) Each(fn func(Study) bool) {
	for _, study := range idx.studies {
		if !fn(study.Clone()) {
			return
		}
	}
}

// Lookup returns the study with the given label.
func (idx StudyIndex) Lookup(label string) (Study, bool) {
	i, ok := idx.byLabel[label]
	if !ok {
		return Study{}, false
	}
	return idx.studies[i].Clone(), true
}

// Labels returns every study label in source order.
func (idx StudyIndex) Labels() []string {
	out := make([]string, len(idx.studies))
	for i, study := range idx.studies {
		out[i] = study.Label
	}
	return out
}
