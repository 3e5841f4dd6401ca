package core

import (
	"sort"

	"albuminome/pkg/domain"
)

// MentionSummary is the ranked protein table derived from a set of study
// labels. Labels lists the distinct requested labels that had a matrix
// column; Missing lists those that did not.
type MentionSummary struct {
	Counts  []domain.ProteinCount `json:"counts"`
	Labels  []string              `json:"labels"`
	Missing []string              `json:"missing,omitempty"`

	requested int
}

// NoStudies reports that the aggregator received no labels at all. This is a
// distinct outcome from a non-empty label set in which no protein was
// mentioned, where NoStudies is false and Counts is empty.
func (s MentionSummary) NoStudies() bool { return s.requested == 0 }

// AggregateMentions counts, per protein identity, how many of the given
// study columns mark it as mentioned, and ranks the result by count
// descending. Equal counts are ordered by identity ascending (protein, then
// UniProt ID, then protein name). Duplicate labels are counted once and
// labels without a matrix column are ignored.
func AggregateMentions(matrix domain.MentionMatrix, labels []string) MentionSummary {
	distinct := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		distinct = append(distinct, label)
	}
	summary := MentionSummary{requested: len(distinct)}
	if len(distinct) == 0 {
		return summary
	}

	columns := make([][]bool, 0, len(distinct))
	for _, label := range distinct {
		column, ok := matrix.Column(label)
		if !ok {
			summary.Missing = append(summary.Missing, label)
			continue
		}
		summary.Labels = append(summary.Labels, label)
		columns = append(columns, column)
	}

	counts := make(map[domain.ProteinIdentity]int)
	for r := 0; r < matrix.Len(); r++ {
		mentioned := 0
		for _, column := range columns {
			if column[r] {
				mentioned++
			}
		}
		if mentioned > 0 {
			counts[matrix.Identity(r)] += mentioned
		}
	}

	summary.Counts = make([]domain.ProteinCount, 0, len(counts))
	for identity, count := range counts {
		summary.Counts = append(summary.Counts, domain.ProteinCount{ProteinIdentity: identity, Count: count})
	}
	sort.Slice(summary.Counts, func(i, j int) bool {
		a, b := summary.Counts[i], summary.Counts[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ProteinIdentity.Less(b.ProteinIdentity)
	})
	return summary
}
