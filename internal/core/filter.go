package core

import "albuminome/pkg/domain"

// FilterStudies returns the studies of index matching the albumin-only mode
// and, when mode is No, sharing at least one co-removed protein with
// selected. The selection is ignored for every other mode, and an empty
// selection disables the co-removed filter. Source order is preserved and the
// returned rows are independent copies.
func FilterStudies(index domain.StudyIndex, mode domain.AlbuminOnlyMode, selected []string) []domain.Study {
	var wanted map[string]struct{}
	if mode == domain.AlbuminOnlyNo && len(selected) > 0 {
		wanted = make(map[string]struct{}, len(selected))
		for _, protein := range selected {
			wanted[protein] = struct{}{}
		}
	}

	out := make([]domain.Study, 0, index.Len())
	index.Each(func(study domain.Study) bool {
		if mode != domain.AlbuminOnlyAll && study.AlbuminOnly != string(mode) {
			return true
		}
		if wanted != nil && !sharesProtein(study.OtherProteins, wanted) {
			return true
		}
		out = append(out, study)
		return true
	})
	return out
}

func sharesProtein(proteins []string, wanted map[string]struct{}) bool {
	for _, protein := range proteins {
		if _, ok := wanted[protein]; ok {
			return true
		}
	}
	return false
}

// StudyLabels extracts the label column of a filtered subset.
func StudyLabels(studies []domain.Study) []string {
	labels := make([]string, len(studies))
	for i, study := range studies {
		labels[i] = study.Label
	}
	return labels
}
