package datasets

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"albuminome/internal/adapters/testutil"
	"albuminome/internal/blob"
	"albuminome/internal/core"
)

func startWorker(t *testing.T, catalog Catalog, store blob.Store, audit AuditLogger, cfg WorkerConfig) *Worker {
	t.Helper()
	w := NewWorker(catalog, store, audit, cfg)
	w.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.Stop(ctx); err != nil {
			t.Errorf("stop worker: %v", err)
		}
	})
	return w
}

func waitForExport(t *testing.T, w *Worker, id string) ExportRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := w.GetExport(id)
		if !ok {
			t.Fatalf("export %s not found", id)
		}
		if record.Status == ExportStatusSucceeded || record.Status == ExportStatusFailed {
			return record
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("export %s did not complete", id)
	return ExportRecord{}
}

func TestWorkerExportsToBlobStore(t *testing.T) {
	svc := testutil.NewService(t)
	store := blob.NewMemory()
	audit := &MemoryAuditLog{}
	w := startWorker(t, svc, store, audit, WorkerConfig{Prefix: "exports"})

	queued, err := w.EnqueueExport(context.Background(), ExportInput{
		TemplateSlug: "albuminome/aggregated_table@1",
		Parameters:   map[string]any{"albumin_only": "No", "other_proteins": []string{"Transferrin"}},
		Formats:      []core.DatasetFormat{core.FormatCSV, core.FormatHTML, core.FormatCSV},
		RequestedBy:  "analyst",
		Reason:       "review",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != ExportStatusQueued || len(queued.Formats) != 2 {
		t.Fatalf("unexpected queued record %+v", queued)
	}

	record := waitForExport(t, w, queued.ID)
	if record.Status != ExportStatusSucceeded {
		t.Fatalf("export failed: %s", record.Error)
	}
	if record.CompletedAt == nil || len(record.Artifacts) != 2 {
		t.Fatalf("unexpected completed record %+v", record)
	}
	csvArtifact := record.Artifacts[0]
	if csvArtifact.Key != "exports/"+queued.ID+"/aggregated_table.csv" || csvArtifact.Rows != 3 {
		t.Fatalf("unexpected csv artifact %+v", csvArtifact)
	}

	info, body, err := store.Get(context.Background(), csvArtifact.Key)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	defer body.Close()
	if info.ContentType != "text/csv" || info.Metadata["export-id"] != queued.ID {
		t.Fatalf("unexpected stored info %+v", info)
	}
	records, err := csv.NewReader(body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	var proteins []string
	for _, row := range records[1:] {
		proteins = append(proteins, row[0])
	}
	if diff := cmp.Diff([]string{"TF", "APOA1", "CLU"}, proteins); diff != "" {
		t.Fatalf("exported ranking mismatch (-want +got):\n%s", diff)
	}

	_, htmlBody, err := store.Get(context.Background(), record.Artifacts[1].Key)
	if err != nil {
		t.Fatalf("get html: %v", err)
	}
	defer htmlBody.Close()
	html, _ := io.ReadAll(htmlBody)
	if !strings.Contains(string(html), "<td>Serotransferrin</td>") {
		t.Fatalf("unexpected html %s", html)
	}

	statuses := map[ExportStatus]bool{}
	for _, entry := range audit.Entries() {
		if entry.ExportID != queued.ID || entry.Actor != "analyst" {
			t.Fatalf("unexpected audit entry %+v", entry)
		}
		statuses[entry.Status] = true
	}
	for _, status := range []ExportStatus{ExportStatusQueued, ExportStatusRunning, ExportStatusSucceeded} {
		if !statuses[status] {
			t.Fatalf("audit trail missing %s: %+v", status, audit.Entries())
		}
	}
}

func TestWorkerDefaultFormatsWithoutStore(t *testing.T) {
	svc := testutil.NewService(t)
	w := startWorker(t, svc, nil, nil, WorkerConfig{Workers: 2})
	queued, err := w.EnqueueExport(context.Background(), ExportInput{TemplateSlug: "albuminome/selected_papers@1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForExport(t, w, queued.ID)
	if record.Status != ExportStatusSucceeded {
		t.Fatalf("export failed: %s", record.Error)
	}
	var formats []core.DatasetFormat
	for _, artifact := range record.Artifacts {
		formats = append(formats, artifact.Format)
		if artifact.Key != "" || artifact.SizeBytes == 0 {
			t.Fatalf("unstored artifact should carry only its size, got %+v", artifact)
		}
	}
	if diff := cmp.Diff([]core.DatasetFormat{core.FormatJSON, core.FormatCSV}, formats); diff != "" {
		t.Fatalf("formats mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkerFailsOnInvalidParameters(t *testing.T) {
	svc := testutil.NewService(t)
	audit := &MemoryAuditLog{}
	w := startWorker(t, svc, blob.NewMemory(), audit, WorkerConfig{})
	queued, err := w.EnqueueExport(context.Background(), ExportInput{
		TemplateSlug: "albuminome/aggregated_table@1",
		Parameters:   map[string]any{"albumin_only": "Sometimes"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForExport(t, w, queued.ID)
	if record.Status != ExportStatusFailed || !strings.Contains(record.Error, "parameter validation failed") {
		t.Fatalf("expected validation failure, got %+v", record)
	}
	entries := audit.Entries()
	if last := entries[len(entries)-1]; last.Status != ExportStatusFailed || last.Note == "" {
		t.Fatalf("failure not audited: %+v", last)
	}
}

func TestWorkerStoreConflict(t *testing.T) {
	svc := testutil.NewService(t)
	store := blob.NewMemory()
	w := NewWorker(svc, store, nil, WorkerConfig{Prefix: "exports"})
	queued, err := w.EnqueueExport(context.Background(), ExportInput{
		TemplateSlug: "albuminome/aggregated_table@1",
		Formats:      []core.DatasetFormat{core.FormatJSON},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	key := "exports/" + queued.ID + "/aggregated_table.json"
	if _, err := store.Put(context.Background(), key, strings.NewReader("taken"), blob.PutOptions{}); err != nil {
		t.Fatalf("seed conflicting key: %v", err)
	}
	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()
	record := waitForExport(t, w, queued.ID)
	if record.Status != ExportStatusFailed || !strings.Contains(record.Error, "store artifact failed") {
		t.Fatalf("expected store failure, got %+v", record)
	}
}

func TestEnqueueExportErrors(t *testing.T) {
	svc := testutil.NewService(t)
	testutil.InstallStatsPlugin(t, svc)

	if _, err := NewWorker(nil, nil, nil, WorkerConfig{}).EnqueueExport(context.Background(), ExportInput{}); err == nil {
		t.Fatalf("expected catalog error")
	}
	w := NewWorker(svc, nil, nil, WorkerConfig{Queue: 1})
	cases := []ExportInput{
		{},
		{TemplateSlug: "albuminome/missing@1"},
		{TemplateSlug: "stats/sizes@1", Formats: []core.DatasetFormat{core.FormatCSV}},
	}
	for _, input := range cases {
		if _, err := w.EnqueueExport(context.Background(), input); err == nil {
			t.Fatalf("expected error for %+v", input)
		}
	}

	// The worker is not started, so the single slot stays occupied.
	if _, err := w.EnqueueExport(context.Background(), ExportInput{TemplateSlug: "stats/sizes@1"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	_, err := w.EnqueueExport(context.Background(), ExportInput{TemplateSlug: "stats/sizes@1"})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if _, ok := w.GetExport("missing"); ok {
		t.Fatalf("unexpected export")
	}
}

func TestWorkerStopHonoursContext(t *testing.T) {
	w := NewWorker(testutil.NewService(t), nil, nil, WorkerConfig{})
	w.wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Stop(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	w.wg.Done()
}

func TestExportRoutes(t *testing.T) {
	h, svc := newTestHandler(t)
	w := startWorker(t, svc, blob.NewMemory(), nil, WorkerConfig{})
	h.Exports = w

	rec := serve(t, h, http.MethodPost, "/api/v1/datasets/exports", map[string]any{
		"template":   map[string]any{"plugin": "albuminome", "key": "selected_papers", "version": "1"},
		"formats":    []string{"JSON"},
		"parameters": map[string]any{"albumin_only": "All"},
		"scope":      map[string]any{"requestor": "curator"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[struct {
		Export ExportRecord `json:"export"`
	}](t, rec)
	if created.Export.RequestedBy != "curator" {
		t.Fatalf("requested_by should fall back to scope requestor, got %q", created.Export.RequestedBy)
	}
	waitForExport(t, w, created.Export.ID)

	rec = serve(t, h, http.MethodGet, "/api/v1/datasets/exports/"+created.Export.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	fetched := decode[struct {
		Export ExportRecord `json:"export"`
	}](t, rec)
	if fetched.Export.Status != ExportStatusSucceeded || len(fetched.Export.Artifacts) != 1 {
		t.Fatalf("unexpected export %+v", fetched.Export)
	}

	cases := []struct {
		method, path string
		body         any
		status       int
	}{
		{http.MethodGet, "/api/v1/datasets/exports", nil, http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/v1/datasets/exports/" + created.Export.ID, nil, http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/datasets/exports/unknown", nil, http.StatusNotFound},
		{http.MethodPost, "/api/v1/datasets/exports", map[string]any{}, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/datasets/exports", map[string]any{"template": map[string]any{"slug": "albuminome/selected_papers@1"}, "formats": []string{"png"}}, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/datasets/exports", map[string]any{"template": map[string]any{"slug": "albuminome/nope@1"}}, http.StatusBadRequest},
	}
	for _, c := range cases {
		if rec := serve(t, h, c.method, c.path, c.body); rec.Code != c.status {
			t.Fatalf("%s %s: expected %d, got %d (%s)", c.method, c.path, c.status, rec.Code, rec.Body.String())
		}
	}
}

type recordingLogger struct {
	messages []string
	args     [][]any
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(msg string, args ...any) {
	l.messages = append(l.messages, msg)
	l.args = append(l.args, args)
}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}

func TestLoggerAudit(t *testing.T) {
	logger := &recordingLogger{}
	LoggerAudit{Logger: logger}.Record(context.Background(), AuditEntry{ID: "a", ExportID: "e", Status: ExportStatusQueued})
	LoggerAudit{}.Record(context.Background(), AuditEntry{})
	if diff := cmp.Diff([]string{"dataset export audit"}, logger.messages); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
	if logger.args[0][3] != "e" || logger.args[0][9] != "queued" {
		t.Fatalf("unexpected audit fields %v", logger.args[0])
	}
}

// signingStore presigns every key and records the requested expiry.
type signingStore struct {
	blob.Store
	mu     sync.Mutex
	expiry []time.Duration
}

func (s *signingStore) PresignURL(_ context.Context, key string, opts blob.SignedURLOptions) (string, error) {
	s.mu.Lock()
	s.expiry = append(s.expiry, opts.Expiry)
	s.mu.Unlock()
	return "https://signed.example/" + key, nil
}

func TestWorkerPresignsWithConfiguredExpiry(t *testing.T) {
	svc := testutil.NewService(t)
	store := &signingStore{Store: blob.NewMemory()}
	w := startWorker(t, svc, store, nil, WorkerConfig{URLExpiry: 5 * time.Minute})

	queued, err := w.EnqueueExport(context.Background(), ExportInput{
		TemplateSlug: "albuminome/selected_papers@1",
		Formats:      []core.DatasetFormat{core.FormatJSON},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForExport(t, w, queued.ID)
	if record.Status != ExportStatusSucceeded {
		t.Fatalf("export failed: %s", record.Error)
	}
	if got := record.Artifacts[0].URL; got != "https://signed.example/"+record.Artifacts[0].Key {
		t.Fatalf("unexpected artifact url %q", got)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if diff := cmp.Diff([]time.Duration{5 * time.Minute}, store.expiry); diff != "" {
		t.Fatalf("presign expiry mismatch (-want +got):\n%s", diff)
	}
}
