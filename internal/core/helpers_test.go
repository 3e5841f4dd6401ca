package core

import (
	"testing"
	"time"

	"albuminome/pkg/domain"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type proteinRow struct {
	protein, uniprot, name string
	mentions               []string
}

func fixtureDataset(t *testing.T) domain.Dataset {
	t.Helper()
	studies := []domain.Study{
		{Label: "S1", Paper: "Gundry 2007", AlbuminOnly: "Yes", OtherProteins: []string{"Albumin"}, Sample: "Serum"},
		{Label: "S2", Paper: "Zhou 2004", AlbuminOnly: "No", OtherProteins: []string{"Albumin", "Transferrin", "IgG"}, Sample: "Serum"},
		{Label: "S3", Paper: "Lowenthal 2005", AlbuminOnly: "No", OtherProteins: []string{"IgG", "Haptoglobin"}, Sample: "Plasma"},
		{Label: "S4", Paper: "Stanley 2004", AlbuminOnly: "Yes", Sample: "Serum"},
		{Label: "S5", Paper: "Bellei 2011", AlbuminOnly: "No", OtherProteins: []string{"Transferrin"}},
		{Label: "S6", Paper: "Holewinski 2013", AlbuminOnly: "No"},
	}
	rows := []proteinRow{
		{"APOA1", "P02647", "Apolipoprotein A-I", []string{"S1", "S2", "S4"}},
		{"TF", "P02787", "Serotransferrin", []string{"S2", "S5"}},
		{"HP", "P00738", "Haptoglobin", []string{"S3"}},
		{"CLU", "P10909", "Clusterin", []string{"S1", "S3", "S5"}},
		{"ORM1", "P02763", "Alpha-1-acid glycoprotein 1", nil},
	}
	return buildDataset(t, studies, []string{"S1", "S2", "S3", "S4", "S5", "S6"}, rows)
}

func buildDataset(t *testing.T, studies []domain.Study, columns []string, rows []proteinRow) domain.Dataset {
	t.Helper()
	index, err := domain.NewStudyIndex(studies)
	if err != nil {
		t.Fatalf("new study index: %v", err)
	}
	mentionRows := make([]domain.ProteinMentionRow, len(rows))
	for i, row := range rows {
		mentions := make(map[string]bool, len(row.mentions))
		for _, label := range row.mentions {
			mentions[label] = true
		}
		mentionRows[i] = domain.ProteinMentionRow{
			ProteinIdentity: domain.ProteinIdentity{Protein: row.protein, UniprotID: row.uniprot, ProteinName: row.name},
			Mentions:        mentions,
		}
	}
	matrix, err := domain.NewMentionMatrix(columns, mentionRows)
	if err != nil {
		t.Fatalf("new mention matrix: %v", err)
	}
	return domain.Dataset{Index: index, Matrix: matrix, Source: "fixture", LoadedAt: fixedNow}
}

func labelsOf(studies []domain.Study) []string { return StudyLabels(studies) }
