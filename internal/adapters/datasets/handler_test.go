package datasets

import (
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"albuminome/internal/adapters/testutil"
	"albuminome/internal/core"
)

const aggregatedPath = "/api/v1/datasets/templates/albuminome/aggregated_table/1"

func TestListAndDescribeTemplates(t *testing.T) {
	h, svc := newTestHandler(t)
	testutil.InstallStatsPlugin(t, svc)

	rec := serve(t, h, http.MethodGet, "/api/v1/datasets/templates", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	list := decode[struct {
		Templates []core.DatasetTemplateDescriptor `json:"templates"`
	}](t, rec)
	var slugs []string
	for _, tpl := range list.Templates {
		slugs = append(slugs, tpl.Slug)
	}
	want := []string{"albuminome/aggregated_table@1", "albuminome/selected_papers@1", "stats/sizes@1"}
	if diff := cmp.Diff(want, slugs); diff != "" {
		t.Fatalf("slugs mismatch (-want +got):\n%s", diff)
	}

	rec = serve(t, h, http.MethodGet, aggregatedPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[struct {
		Template core.DatasetTemplateDescriptor `json:"template"`
	}](t, rec)
	if got.Template.Key != core.AggregatedTableKey || len(got.Template.Parameters) != 2 {
		t.Fatalf("unexpected descriptor %+v", got.Template)
	}

	cases := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/api/v1/datasets/templates/albuminome", http.StatusNotFound},
		{http.MethodGet, "/api/v1/datasets/templates/albuminome/missing/1", http.StatusNotFound},
		{http.MethodPost, aggregatedPath, http.StatusMethodNotAllowed},
		{http.MethodGet, aggregatedPath + "/run", http.StatusMethodNotAllowed},
		{http.MethodGet, aggregatedPath + "/validate", http.StatusMethodNotAllowed},
		{http.MethodPost, aggregatedPath + "/explain", http.StatusNotFound},
		{http.MethodPost, aggregatedPath + "/run/extra", http.StatusNotFound},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/v1/datasets/exports/abc", http.StatusNotFound},
	}
	for _, c := range cases {
		if rec := serve(t, h, c.method, c.path, nil); rec.Code != c.status {
			t.Fatalf("%s %s: expected %d, got %d", c.method, c.path, c.status, rec.Code)
		}
	}
}

func TestHandlerWithoutCatalog(t *testing.T) {
	rec := serve(t, &Handler{}, http.MethodGet, "/api/v1/datasets/templates", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestValidateTemplate(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := serve(t, h, http.MethodPost, aggregatedPath+"/validate", map[string]any{
		"parameters": map[string]any{"albumin_only": "Perhaps"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[validationResponse](t, rec)
	if resp.Valid || len(resp.Errors) != 1 || resp.Errors[0].Name != core.ParamAlbuminOnly {
		t.Fatalf("expected albumin_only error, got %+v", resp)
	}

	rec = serve(t, h, http.MethodPost, aggregatedPath+"/validate", nil)
	resp = decode[validationResponse](t, rec)
	if !resp.Valid || resp.Parameters[core.ParamAlbuminOnly] != "Yes" {
		t.Fatalf("empty body should validate with defaults, got %+v", resp)
	}

	req := httptest.NewRequest(http.MethodPost, aggregatedPath+"/validate", strings.NewReader("{"))
	bad := httptest.NewRecorder()
	h.ServeHTTP(bad, req)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", bad.Code)
	}
}

func TestRunTemplateJSON(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := serve(t, h, http.MethodPost, aggregatedPath+"/run", map[string]any{
		"parameters": map[string]any{"albumin_only": "No", "other_proteins": []string{"Haptoglobin"}},
		"scope":      map[string]any{"requestor": "analyst"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[struct {
		Scope  core.DatasetScope `json:"scope"`
		Result tableJSON         `json:"result"`
	}](t, rec)
	if resp.Scope.Requestor != "analyst" {
		t.Fatalf("scope not echoed: %+v", resp.Scope)
	}
	if diff := cmp.Diff([]any{"CLU", "HP"}, resp.Result.column("Protein")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	rec = serve(t, h, http.MethodPost, aggregatedPath+"/run", map[string]any{
		"parameters": map[string]any{"albumin_only": "Perhaps"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRunTemplateCSVAndHTML(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, aggregatedPath+"/run", nil)
	req.Header.Set("Accept", "text/csv")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("expected csv, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "aggregated_table-") {
		t.Fatalf("missing attachment filename: %q", rec.Header().Get("Content-Disposition"))
	}
	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := [][]string{
		{"Protein", "Uniprot ID", "Protein Name", "Count"},
		{"APOA1", "P02647", "Apolipoprotein A-I", "2"},
		{"CLU", "P10909", "Clusterin", "1"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("csv mismatch (-want +got):\n%s", diff)
	}

	rec = serve(t, h, http.MethodPost, aggregatedPath+"/run?format=html", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<td>APOA1</td>") {
		t.Fatalf("expected html table, got %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, h, http.MethodPost, aggregatedPath+"/run?format=parquet", nil)
	if rec.Code != http.StatusNotAcceptable {
		t.Fatalf("expected 406, got %d", rec.Code)
	}
}

func TestRunTemplateFormatNotSupported(t *testing.T) {
	h, svc := newTestHandler(t)
	testutil.InstallStatsPlugin(t, svc)
	rec := serve(t, h, http.MethodPost, "/api/v1/datasets/templates/stats/sizes/1/run?format=csv", nil)
	if rec.Code != http.StatusNotAcceptable {
		t.Fatalf("expected 406, got %d", rec.Code)
	}
	rec = serve(t, h, http.MethodPost, "/api/v1/datasets/templates/stats/sizes/1/run", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"studies":6`) {
		t.Fatalf("expected stats row, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestNegotiateFormat(t *testing.T) {
	supported := []core.DatasetFormat{core.FormatJSON, core.FormatCSV, core.FormatHTML}
	cases := []struct {
		query, accept string
		want          core.DatasetFormat
	}{
		{"", "", core.FormatJSON},
		{"", "text/csv", core.FormatCSV},
		{"", "text/html,application/xhtml+xml", core.FormatHTML},
		{"CSV", "", core.FormatCSV},
		{"xml", "", ""},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodPost, "/run?format="+c.query, nil)
		if c.accept != "" {
			req.Header.Set("Accept", c.accept)
		}
		if got := negotiateFormat(req, supported); got != c.want {
			t.Fatalf("query %q accept %q: got %q want %q", c.query, c.accept, got, c.want)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/run?format=html", nil)
	if got := negotiateFormat(req, []core.DatasetFormat{core.FormatJSON}); got != "" {
		t.Fatalf("unsupported format should not negotiate, got %q", got)
	}
}
