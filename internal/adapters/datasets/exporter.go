package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"albuminome/internal/blob"
	"albuminome/internal/core"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ErrQueueFull reports an export rejected because every slot is taken.
var ErrQueueFull = errors.New("export queue full")

// ExportArtifact captures a stored dataset artifact.
type ExportArtifact struct {
	Key         string             `json:"key"`
	Format      core.DatasetFormat `json:"format"`
	ContentType string             `json:"content_type"`
	SizeBytes   int64              `json:"size_bytes"`
	URL         string             `json:"url,omitempty"`
	Rows        int                `json:"rows"`
	CreatedAt   time.Time          `json:"created_at"`
}

// ExportRecord tracks an export request and resulting artifacts.
type ExportRecord struct {
	ID          string                         `json:"id"`
	Template    core.DatasetTemplateDescriptor `json:"template"`
	Scope       core.DatasetScope              `json:"scope"`
	Parameters  map[string]any                 `json:"parameters"`
	Formats     []core.DatasetFormat           `json:"formats"`
	Status      ExportStatus                   `json:"status"`
	Error       string                         `json:"error,omitempty"`
	Artifacts   []ExportArtifact               `json:"artifacts,omitempty"`
	RequestedBy string                         `json:"requested_by"`
	Reason      string                         `json:"reason,omitempty"`
	CreatedAt   time.Time                      `json:"created_at"`
	UpdatedAt   time.Time                      `json:"updated_at"`
	CompletedAt *time.Time                     `json:"completed_at,omitempty"`
}

// ExportInput represents an enqueue request for the worker.
type ExportInput struct {
	TemplateSlug string
	Parameters   map[string]any
	Formats      []core.DatasetFormat
	Scope        core.DatasetScope
	RequestedBy  string
	Reason       string
}

// ExportScheduler queues dataset export requests and exposes status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string            `json:"id"`
	ExportID   string            `json:"export_id"`
	Action     string            `json:"action"`
	Actor      string            `json:"actor"`
	Template   string            `json:"template"`
	Status     ExportStatus      `json:"status"`
	Scope      core.DatasetScope `json:"scope"`
	Reason     string            `json:"reason,omitempty"`
	Note       string            `json:"note,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// WorkerConfig sizes the export worker.
type WorkerConfig struct {
	Workers int
	Queue   int
	// Prefix is prepended to every artifact key.
	Prefix string
	// URLExpiry bounds presigned artifact URLs.
	URLExpiry time.Duration
}

// Worker executes dataset exports asynchronously and stores the rendered
// artifacts in a blob store.
type Worker struct {
	catalog Catalog
	store   blob.Store
	audit   AuditLogger
	cfg     WorkerConfig
	now     func() time.Time

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

type renderedArtifact struct {
	Artifact ExportArtifact
	Payload  []byte
}

// NewWorker constructs an export worker. A nil audit logger disables the
// audit trail.
func NewWorker(c Catalog, store blob.Store, audit AuditLogger, cfg WorkerConfig) *Worker {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Queue < 1 {
		cfg.Queue = 32
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 15 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		catalog: c,
		store:   store,
		audit:   audit,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		queue:   make(chan exportTask, cfg.Queue),
		jobs:    make(map[string]*ExportRecord),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.loop()
	}
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.catalog == nil {
		return ExportRecord{}, fmt.Errorf("export catalog not configured")
	}
	slug := input.TemplateSlug
	if slug == "" {
		return ExportRecord{}, fmt.Errorf("template slug required")
	}
	template, ok := w.catalog.ResolveDatasetTemplate(slug)
	if !ok {
		return ExportRecord{}, fmt.Errorf("dataset template %s not found", slug)
	}

	formats := input.Formats
	if len(formats) == 0 {
		for _, format := range []core.DatasetFormat{core.FormatJSON, core.FormatCSV} {
			if template.SupportsFormat(format) {
				formats = append(formats, format)
			}
		}
	}
	uniqFormats := make([]core.DatasetFormat, 0, len(formats))
	seen := make(map[core.DatasetFormat]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if !template.SupportsFormat(format) {
			return ExportRecord{}, fmt.Errorf("format %s not supported by template", format)
		}
		uniqFormats = append(uniqFormats, format)
		seen[format] = struct{}{}
	}

	id := uuid.NewString()
	now := w.now()
	record := ExportRecord{
		ID:          id,
		Template:    template.Descriptor(),
		Scope:       input.Scope,
		Parameters:  cloneMap(input.Parameters),
		Formats:     uniqFormats,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	snapshot := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- exportTask{id: id, input: input}:
	default:
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return ExportRecord{}, ErrQueueFull
	}

	w.record(ctx, snapshot, "")
	return snapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	if _, ok := w.GetExport(task.id); !ok {
		return
	}
	template, ok := w.catalog.ResolveDatasetTemplate(task.input.TemplateSlug)
	if !ok {
		w.fail(task.id, fmt.Sprintf("template %s missing", task.input.TemplateSlug))
		return
	}
	w.transition(task.id, ExportStatusRunning, nil, "")

	cleaned, errs := template.ValidateParameters(task.input.Parameters)
	if len(errs) > 0 {
		w.fail(task.id, fmt.Sprintf("parameter validation failed: %v", errs))
		return
	}
	result, paramErrs, err := template.Run(w.ctx, cleaned, task.input.Scope, core.FormatJSON)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("dataset run failed: %v", err))
		return
	}
	if len(paramErrs) > 0 {
		w.fail(task.id, fmt.Sprintf("parameter validation failed: %v", paramErrs))
		return
	}

	record, _ := w.GetExport(task.id)
	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		rendered, err := w.materialize(format, template.Descriptor(), result)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		stored, err := w.storeArtifact(task.id, template.Key, rendered)
		if err != nil {
			w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
			return
		}
		artifacts = append(artifacts, stored)
	}
	w.transition(task.id, ExportStatusSucceeded, artifacts, "")
}

func (w *Worker) storeArtifact(exportID, key string, rendered renderedArtifact) (ExportArtifact, error) {
	artifact := rendered.Artifact
	if w.store == nil {
		return artifact, nil
	}
	artifact.Key = path.Join(w.cfg.Prefix, exportID, key+"."+string(artifact.Format))
	info, err := w.store.Put(w.ctx, artifact.Key, bytes.NewReader(rendered.Payload), blob.PutOptions{
		ContentType: artifact.ContentType,
		Metadata: map[string]string{
			"export-id": exportID,
			"rows":      strconv.Itoa(artifact.Rows),
		},
	})
	if err != nil {
		return ExportArtifact{}, err
	}
	if info.Size > 0 {
		artifact.SizeBytes = info.Size
	}
	artifact.URL = info.URL
	signed, err := w.store.PresignURL(w.ctx, artifact.Key, blob.SignedURLOptions{Method: "GET", Expiry: w.cfg.URLExpiry})
	switch {
	case err == nil:
		artifact.URL = signed
	case !errors.Is(err, blob.ErrUnsupported):
		return ExportArtifact{}, fmt.Errorf("presign %s: %w", artifact.Key, err)
	}
	return artifact, nil
}

func (w *Worker) transition(id string, status ExportStatus, artifacts []ExportArtifact, reason string) {
	now := w.now()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	record.Status = status
	record.Error = reason
	record.UpdatedAt = now
	if artifacts != nil {
		record.Artifacts = artifacts
	}
	if status == ExportStatusSucceeded || status == ExportStatusFailed {
		record.CompletedAt = &now
	}
	snapshot := record.copy()
	w.mu.Unlock()
	w.record(w.ctx, snapshot, reason)
}

func (w *Worker) fail(id, reason string) {
	w.transition(id, ExportStatusFailed, nil, reason)
}

func (w *Worker) record(ctx context.Context, record ExportRecord, note string) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		ExportID:   record.ID,
		Action:     "dataset_export",
		Actor:      record.RequestedBy,
		Template:   record.Template.Slug,
		Status:     record.Status,
		Scope:      record.Scope,
		Reason:     record.Reason,
		Note:       note,
		OccurredAt: record.UpdatedAt,
	})
}

func (w *Worker) materialize(format core.DatasetFormat, descriptor core.DatasetTemplateDescriptor, result core.DatasetRunResult) (renderedArtifact, error) {
	buf := &bytes.Buffer{}
	var contentType string
	switch format {
	case core.FormatJSON:
		contentType = "application/json"
		if err := json.NewEncoder(buf).Encode(result); err != nil {
			return renderedArtifact{}, fmt.Errorf("marshal json: %w", err)
		}
	case core.FormatCSV:
		contentType = "text/csv"
		if err := resultTable(descriptor, result).WriteCSV(buf); err != nil {
			return renderedArtifact{}, fmt.Errorf("render csv: %w", err)
		}
	case core.FormatHTML:
		contentType = "text/html"
		if err := resultTable(descriptor, result).WriteHTML(buf, descriptor.Title); err != nil {
			return renderedArtifact{}, fmt.Errorf("render html: %w", err)
		}
	default:
		return renderedArtifact{}, fmt.Errorf("unsupported export format %s", format)
	}
	payload := buf.Bytes()
	return renderedArtifact{
		Artifact: ExportArtifact{
			Format:      format,
			ContentType: contentType,
			SizeBytes:   int64(len(payload)),
			Rows:        len(result.Rows),
			CreatedAt:   w.now(),
		},
		Payload: payload,
	}, nil
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Parameters = cloneMap(r.Parameters)
	dup.Formats = append([]core.DatasetFormat(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	}
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		dup.CompletedAt = &at
	}
	return dup
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// LoggerAudit writes audit entries to a structured logger.
type LoggerAudit struct {
	Logger core.Logger
}

// Record implements AuditLogger.
func (a LoggerAudit) Record(_ context.Context, entry AuditEntry) {
	if a.Logger == nil {
		return
	}
	a.Logger.Info("dataset export audit",
		"audit_id", entry.ID,
		"export_id", entry.ExportID,
		"actor", entry.Actor,
		"template", entry.Template,
		"status", string(entry.Status),
		"note", entry.Note)
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
