package core

import (
	"fmt"
	"sort"
	"strings"

	"albuminome/pkg/domain"
)

// Vocabulary returns the distinct co-removed proteins named by the study
// index, sorted ascending, without the implied Albumin entry.
func Vocabulary(index domain.StudyIndex) []string {
	set := make(map[string]struct{})
	index.Each(func(study domain.Study) bool {
		for _, protein := range study.OtherProteins {
			set[protein] = struct{}{}
		}
		return true
	})
	delete(set, domain.ExcludedVocabularyProtein)
	out := make([]string, 0, len(set))
	for protein := range set {
		out = append(out, protein)
	}
	sort.Strings(out)
	return out
}

// CheckSelection rejects selected proteins missing from vocabulary with
// domain.ErrUnknownProtein.
func CheckSelection(vocabulary, selected []string) error {
	known := make(map[string]struct{}, len(vocabulary))
	for _, protein := range vocabulary {
		known[protein] = struct{}{}
	}
	var unknown []string
	for _, protein := range selected {
		if _, ok := known[protein]; !ok {
			unknown = append(unknown, protein)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownProtein, strings.Join(unknown, ", "))
	}
	return nil
}

// DefaultParams is the selection before any user interaction: albumin
// binders only, with every co-removed protein ticked.
func DefaultParams(index domain.StudyIndex) domain.Params {
	return domain.Params{
		AlbuminOnly:   domain.DefaultAlbuminOnlyMode,
		OtherProteins: Vocabulary(index),
	}
}

// Exploration is the pair of derived views for one parameter state.
type Exploration struct {
	Params  domain.Params  `json:"params"`
	Studies []domain.Study `json:"studies"`
	Summary MentionSummary `json:"summary"`
}

// Explore runs the filter then the aggregator over ds. It is a pure function
// of its inputs; repeated calls with equal params yield equal results.
func Explore(ds domain.Dataset, params domain.Params) Exploration {
	params = params.Clone()
	studies := FilterStudies(ds.Index, params.AlbuminOnly, params.OtherProteins)
	summary := AggregateMentions(ds.Matrix, StudyLabels(studies))
	return Exploration{Params: params, Studies: studies, Summary: summary}
}
