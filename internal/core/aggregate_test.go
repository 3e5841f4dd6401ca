package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"albuminome/pkg/domain"
)

func TestAggregateMentionsEmptyLabels(t *testing.T) {
	ds := fixtureDataset(t)
	summary := AggregateMentions(ds.Matrix, nil)
	if !summary.NoStudies() {
		t.Fatalf("empty label list must report NoStudies")
	}
	if len(summary.Counts) != 0 {
		t.Fatalf("expected no counts, got %v", summary.Counts)
	}
}

func TestAggregateMentionsZeroCountIsDistinctFromNoStudies(t *testing.T) {
	ds := fixtureDataset(t)
	summary := AggregateMentions(ds.Matrix, []string{"S6"})
	if summary.NoStudies() {
		t.Fatalf("non-empty label list must not report NoStudies")
	}
	if len(summary.Counts) != 0 {
		t.Fatalf("expected zero counts, got %v", summary.Counts)
	}
}

func TestAggregateMentionsRanksByCount(t *testing.T) {
	studies := []domain.Study{
		{Label: "P1", AlbuminOnly: "Yes"}, {Label: "P2", AlbuminOnly: "Yes"},
		{Label: "P3", AlbuminOnly: "Yes"}, {Label: "P4", AlbuminOnly: "Yes"},
	}
	ds := buildDataset(t, studies, []string{"P1", "P2", "P3", "P4"}, []proteinRow{
		{"B", "Q2", "Protein B", []string{"P2"}},
		{"A", "Q1", "Protein A", []string{"P1", "P3", "P4"}},
	})
	summary := AggregateMentions(ds.Matrix, []string{"P1", "P2", "P3", "P4"})
	want := []domain.ProteinCount{
		{ProteinIdentity: domain.ProteinIdentity{Protein: "A", UniprotID: "Q1", ProteinName: "Protein A"}, Count: 3},
		{ProteinIdentity: domain.ProteinIdentity{Protein: "B", UniprotID: "Q2", ProteinName: "Protein B"}, Count: 1},
	}
	if diff := cmp.Diff(want, summary.Counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateMentionsTieBreakAndMissing(t *testing.T) {
	ds := fixtureDataset(t)
	summary := AggregateMentions(ds.Matrix, []string{"S2", "S5", "S5", "S9"})
	want := []domain.ProteinCount{
		{ProteinIdentity: domain.ProteinIdentity{Protein: "TF", UniprotID: "P02787", ProteinName: "Serotransferrin"}, Count: 2},
		{ProteinIdentity: domain.ProteinIdentity{Protein: "APOA1", UniprotID: "P02647", ProteinName: "Apolipoprotein A-I"}, Count: 1},
		{ProteinIdentity: domain.ProteinIdentity{Protein: "CLU", UniprotID: "P10909", ProteinName: "Clusterin"}, Count: 1},
	}
	if diff := cmp.Diff(want, summary.Counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"S2", "S5"}, summary.Labels); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"S9"}, summary.Missing); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateMentionsMergesRepeatedIdentity(t *testing.T) {
	studies := []domain.Study{{Label: "A", AlbuminOnly: "No"}, {Label: "B", AlbuminOnly: "No"}}
	ds := buildDataset(t, studies, []string{"A", "B"}, []proteinRow{
		{"TF", "P02787", "Serotransferrin", []string{"A"}},
		{"TF", "P02787", "Serotransferrin", []string{"A", "B"}},
	})
	summary := AggregateMentions(ds.Matrix, []string{"A", "B"})
	if len(summary.Counts) != 1 || summary.Counts[0].Count != 3 {
		t.Fatalf("expected merged count 3, got %+v", summary.Counts)
	}
}

func TestAggregateMentionsSortedDescending(t *testing.T) {
	ds := fixtureDataset(t)
	summary := AggregateMentions(ds.Matrix, ds.Index.Labels())
	for i := 1; i < len(summary.Counts); i++ {
		prev, cur := summary.Counts[i-1], summary.Counts[i]
		if prev.Count < cur.Count {
			t.Fatalf("entry %d count %d precedes larger count %d", i-1, prev.Count, cur.Count)
		}
		if prev.Count == cur.Count && !prev.ProteinIdentity.Less(cur.ProteinIdentity) {
			t.Fatalf("tie at %d not ordered by identity: %+v then %+v", i, prev, cur)
		}
	}
}
