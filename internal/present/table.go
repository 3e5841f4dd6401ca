// Package present shapes derived views into the tables a user sees: the
// selected-studies table and the ranked protein table, each with an
// informational placeholder in place of an empty table.
package present

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"time"

	"albuminome/pkg/datasetapi"
	"albuminome/pkg/domain"
)

// Column headers of the presented tables.
const (
	ColumnPaper            = "Paper"
	ColumnOtherProteins    = "Other_proteins"
	ColumnSample           = "Sample"
	ColumnSeparationMethod = "Separation_method"
	ColumnDetectionMethod  = "Detection_method"
	ColumnCount            = "Count"
	ColumnMessage          = "Message"
)

// Placeholder messages shown instead of empty tables.
const (
	NoStudiesMessage  = "No studies match the selected criteria."
	NoProteinsMessage = "No proteins match the selected criteria."
)

// Table is a presented view: ordered columns and rows keyed by column name.
// Missing cells are nil.
type Table struct {
	Columns     []datasetapi.Column `json:"columns"`
	Rows        []map[string]any    `json:"rows"`
	Placeholder bool                `json:"placeholder"`
}

// StudyColumns are the columns of the selected-studies table.
func StudyColumns() []datasetapi.Column {
	return []datasetapi.Column{
		{Name: ColumnPaper, Type: "string", Description: "Study reference"},
		{Name: ColumnOtherProteins, Type: "string", Description: "Co-removed high-abundance proteins"},
		{Name: ColumnSample, Type: "string", Description: "Biological sample"},
		{Name: ColumnSeparationMethod, Type: "string", Description: "Separation method"},
		{Name: ColumnDetectionMethod, Type: "string", Description: "Detection method"},
	}
}

// ProteinColumns are the columns of the ranked protein table.
func ProteinColumns() []datasetapi.Column {
	return []datasetapi.Column{
		{Name: domain.ColumnProtein, Type: "string"},
		{Name: domain.ColumnUniprotID, Type: "string"},
		{Name: domain.ColumnProteinName, Type: "string"},
		{Name: ColumnCount, Type: "integer", Description: "Number of selected studies mentioning the protein"},
	}
}

// Placeholder builds the single-column, single-row informational table.
func Placeholder(message string) Table {
	return Table{
		Columns:     []datasetapi.Column{{Name: ColumnMessage, Type: "string"}},
		Rows:        []map[string]any{{ColumnMessage: message}},
		Placeholder: true,
	}
}

// SelectedPapers presents the filtered studies in source order.
func SelectedPapers(studies []domain.Study) Table {
	if len(studies) == 0 {
		return Placeholder(NoStudiesMessage)
	}
	rows := make([]map[string]any, len(studies))
	for i, study := range studies {
		rows[i] = map[string]any{
			ColumnPaper:            cell(study.Paper),
			ColumnOtherProteins:    cell(study.OtherProteinsText()),
			ColumnSample:           cell(study.Sample),
			ColumnSeparationMethod: cell(study.SeparationMethod),
			ColumnDetectionMethod:  cell(study.DetectionMethod),
		}
	}
	return Table{Columns: StudyColumns(), Rows: rows}
}

// AggregatedTable presents ranked protein counts. noStudies selects the
// placeholder; a label set that produced no mentions yields an empty table
// with the regular columns.
func AggregatedTable(counts []domain.ProteinCount, noStudies bool) Table {
	if noStudies {
		return Placeholder(NoProteinsMessage)
	}
	rows := make([]map[string]any, len(counts))
	for i, entry := range counts {
		rows[i] = map[string]any{
			domain.ColumnProtein:     cell(entry.Protein),
			domain.ColumnUniprotID:   cell(entry.UniprotID),
			domain.ColumnProteinName: cell(entry.ProteinName),
			ColumnCount:              entry.Count,
		}
	}
	return Table{Columns: ProteinColumns(), Rows: rows}
}

// RunResult converts the table into a dataset run result.
func (t Table) RunResult(now time.Time) datasetapi.RunResult {
	return datasetapi.RunResult{
		Schema:      append([]datasetapi.Column(nil), t.Columns...),
		Rows:        t.Rows,
		Metadata:    map[string]any{"rows": len(t.Rows), "placeholder": t.Placeholder},
		GeneratedAt: now.UTC(),
	}
}

// ColumnNames returns the header line.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, column := range t.Columns {
		names[i] = column.Name
	}
	return names
}

// Records renders every row as display strings in column order.
func (t Table) Records() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		record := make([]string, len(t.Columns))
		for j, column := range t.Columns {
			record[j] = FormatValue(row[column.Name])
		}
		out[i] = record
	}
	return out
}

// WriteCSV writes the header and rows as CSV.
func (t Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.ColumnNames()); err != nil {
		return err
	}
	if err := writer.WriteAll(t.Records()); err != nil {
		return err
	}
	return writer.Error()
}

var htmlTable = template.Must(template.New("table").Parse(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>{{.Title}}</title></head><body><h3>{{.Title}}</h3><table><thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead><tbody>{{range .Records}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody></table></body></html>`))

// WriteHTML renders the table as a standalone HTML document.
func (t Table) WriteHTML(w io.Writer, title string) error {
	return htmlTable.Execute(w, struct {
		Title   string
		Header  []string
		Records [][]string
	}{Title: title, Header: t.ColumnNames(), Records: t.Records()})
}

// FormatValue renders a cell for text outputs; nil renders empty.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

func cell(value string) any {
	if value == "" {
		return nil
	}
	return value
}
