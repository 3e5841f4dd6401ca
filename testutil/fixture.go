package testutil

import (
	"testing"
	"time"

	"albuminome/pkg/domain"
)

// FixtureTime is the load time stamped on Dataset.
var FixtureTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// IndexCSV is the study index of the reference dataset. S4 and S6 list no
// co-removed proteins; S5 has no sample.
const IndexCSV = `Label,Paper,Albumin_only,Other_proteins,Sample,Separation_method,Detection_method
S1,Gundry 2007,Yes,Albumin,Serum,SEC,LC-MS/MS
S2,Zhou 2004,No,"Albumin, Transferrin, IgG",Serum,2-DE,MALDI-TOF
S3,Lowenthal 2005,No,"IgG, Haptoglobin",Plasma,SDS-PAGE,LC-MS/MS
S4,Stanley 2004,Yes,,Serum,SEC,LC-MS/MS
S5,Bellei 2011,No,Transferrin,,2-DE,MALDI-TOF
S6,Holewinski 2013,No,,Plasma,,LC-MS/MS
`

// MatrixCSV is the mention matrix of the reference dataset.
const MatrixCSV = `Protein,Uniprot ID,Protein Name,S1,S2,S3,S4,S5,S6
APOA1,P02647,Apolipoprotein A-I,1,1,,1,,
TF,P02787,Serotransferrin,,1,,,1,
HP,P00738,Haptoglobin,,,1,,,
CLU,P10909,Clusterin,1,,1,,1,
ORM1,P02763,Alpha-1-acid glycoprotein 1,,,,,,
`

// Vocabulary is the co-removed protein vocabulary of the reference dataset.
var Vocabulary = []string{"Haptoglobin", "IgG", "Transferrin"}

type proteinRow struct {
	protein, uniprot, name string
	mentions               []string
}

// Dataset builds the reference dataset described by IndexCSV and MatrixCSV.
func Dataset(t testing.TB) domain.Dataset {
	t.Helper()
	studies := []domain.Study{
		{Label: "S1", Paper: "Gundry 2007", AlbuminOnly: "Yes", OtherProteins: []string{"Albumin"}, Sample: "Serum", SeparationMethod: "SEC", DetectionMethod: "LC-MS/MS"},
		{Label: "S2", Paper: "Zhou 2004", AlbuminOnly: "No", OtherProteins: []string{"Albumin", "Transferrin", "IgG"}, Sample: "Serum", SeparationMethod: "2-DE", DetectionMethod: "MALDI-TOF"},
		{Label: "S3", Paper: "Lowenthal 2005", AlbuminOnly: "No", OtherProteins: []string{"IgG", "Haptoglobin"}, Sample: "Plasma", SeparationMethod: "SDS-PAGE", DetectionMethod: "LC-MS/MS"},
		{Label: "S4", Paper: "Stanley 2004", AlbuminOnly: "Yes", Sample: "Serum", SeparationMethod: "SEC", DetectionMethod: "LC-MS/MS"},
		{Label: "S5", Paper: "Bellei 2011", AlbuminOnly: "No", OtherProteins: []string{"Transferrin"}, SeparationMethod: "2-DE", DetectionMethod: "MALDI-TOF"},
		{Label: "S6", Paper: "Holewinski 2013", AlbuminOnly: "No", Sample: "Plasma", DetectionMethod: "LC-MS/MS"},
	}
	rows := []proteinRow{
		{"APOA1", "P02647", "Apolipoprotein A-I", []string{"S1", "S2", "S4"}},
		{"TF", "P02787", "Serotransferrin", []string{"S2", "S5"}},
		{"HP", "P00738", "Haptoglobin", []string{"S3"}},
		{"CLU", "P10909", "Clusterin", []string{"S1", "S3", "S5"}},
		{"ORM1", "P02763", "Alpha-1-acid glycoprotein 1", nil},
	}
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
	matrix, err := domain.NewMentionMatrix([]string{"S1", "S2", "S3", "S4", "S5", "S6"}, mentionRows)
	if err != nil {
		t.Fatalf("new mention matrix: %v", err)
	}
	return domain.Dataset{Index: index, Matrix: matrix, Source: "fixture", LoadedAt: FixtureTime}
}
