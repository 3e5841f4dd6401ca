// Package datasets serves the explorer over HTTP: stateless exploration,
// per-user sessions, the dataset template catalog and asynchronous exports.
package datasets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"albuminome/internal/core"
	"albuminome/internal/present"
)

// Catalog exposes dataset templates for HTTP handlers.
type Catalog interface {
	DatasetTemplates() []core.DatasetTemplateDescriptor
	ResolveDatasetTemplate(slug string) (core.DatasetTemplate, bool)
}

// Handler provides HTTP access to the explorer, dataset templates and exports.
type Handler struct {
	Catalog  Catalog
	Explorer Explorer
	Sessions SessionStore
	Exports  ExportScheduler
}

// NewHandler constructs a dataset HTTP handler.
func NewHandler(c Catalog) *Handler {
	return &Handler{Catalog: c}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		writeError(w, http.StatusInternalServerError, "dataset catalog not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/explore" || path == "/api/v1/vocabulary" || strings.HasPrefix(path, "/api/v1/sessions"):
		if h.Explorer == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExplorer(w, r, path)
	case r.Method == http.MethodGet && path == "/api/v1/datasets/templates":
		h.handleListTemplates(w, r)
	case strings.HasPrefix(path, "/api/v1/datasets/exports"):
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExports(w, r, path)
	case strings.HasPrefix(path, "/api/v1/datasets/templates/"):
		h.handleTemplate(w, r, strings.TrimPrefix(path, "/api/v1/datasets/templates/"))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": h.Catalog.DatasetTemplates()})
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	if len(segments) < 3 {
		writeError(w, http.StatusNotFound, "dataset template not found")
		return
	}
	plugin, key, version := segments[0], segments[1], segments[2]
	slug := fmt.Sprintf("%s/%s@%s", plugin, key, version)

	template, ok := h.Catalog.ResolveDatasetTemplate(slug)
	if !ok {
		writeError(w, http.StatusNotFound, "dataset template not found")
		return
	}

	if len(segments) == 3 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"template": template.Descriptor()})
		return
	}
	if len(segments) != 4 {
		writeError(w, http.StatusNotFound, "dataset endpoint not found")
		return
	}

	switch segments[3] {
	case "validate":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleValidate(w, r, template)
	case "run":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleRun(w, r, template)
	default:
		writeError(w, http.StatusNotFound, "dataset endpoint not found")
	}
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, path string) {
	if path == "/api/v1/datasets/exports" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleExportCreate(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(path, "/api/v1/datasets/exports/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	record, ok := h.Exports.GetExport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

type validationRequest struct {
	Parameters map[string]any `json:"parameters"`
}

type validationResponse struct {
	Template   core.DatasetTemplateDescriptor `json:"template"`
	Valid      bool                           `json:"valid"`
	Parameters map[string]any                 `json:"parameters"`
	Errors     []core.DatasetParameterError   `json:"errors,omitempty"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request, template core.DatasetTemplate) {
	var req validationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid validation request payload")
		return
	}
	cleaned, errs := template.ValidateParameters(req.Parameters)
	writeJSON(w, http.StatusOK, validationResponse{
		Template:   template.Descriptor(),
		Valid:      len(errs) == 0,
		Parameters: cleaned,
		Errors:     errs,
	})
}

type scopeRequest struct {
	Requestor string   `json:"requestor"`
	Roles     []string `json:"roles"`
	SessionID string   `json:"session_id"`
}

func (s scopeRequest) scope() core.DatasetScope {
	return core.DatasetScope{Requestor: s.Requestor, Roles: s.Roles, SessionID: s.SessionID}
}

type runRequest struct {
	Parameters map[string]any `json:"parameters"`
	Scope      scopeRequest   `json:"scope"`
}

type runResponse struct {
	Template   core.DatasetTemplateDescriptor `json:"template"`
	Scope      core.DatasetScope              `json:"scope"`
	Parameters map[string]any                 `json:"parameters"`
	Result     core.DatasetRunResult          `json:"result"`
}

type exportRequest struct {
	Template struct {
		Slug    string `json:"slug"`
		Plugin  string `json:"plugin"`
		Key     string `json:"key"`
		Version string `json:"version"`
	} `json:"template"`
	Parameters  map[string]any `json:"parameters"`
	Formats     []string       `json:"formats"`
	Scope       scopeRequest   `json:"scope"`
	RequestedBy string         `json:"requested_by"`
	Reason      string         `json:"reason"`
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request, template core.DatasetTemplate) {
	var req runRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid run request payload")
		return
	}
	scope := req.Scope.scope()

	cleaned, errs := template.ValidateParameters(req.Parameters)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Template:   template.Descriptor(),
			Parameters: cleaned,
			Errors:     errs,
		})
		return
	}

	format := negotiateFormat(r, template.OutputFormats)
	if format == "" {
		writeError(w, http.StatusNotAcceptable, "requested format not supported")
		return
	}

	result, paramErrs, err := template.Run(r.Context(), cleaned, scope, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(paramErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Template:   template.Descriptor(),
			Parameters: cleaned,
			Errors:     paramErrs,
		})
		return
	}

	switch format {
	case core.FormatCSV:
		streamCSV(w, template.Descriptor(), result)
	case core.FormatHTML:
		streamHTML(w, template.Descriptor(), result)
	default:
		writeJSON(w, http.StatusOK, runResponse{
			Template:   template.Descriptor(),
			Scope:      scope,
			Parameters: cleaned,
			Result:     result,
		})
	}
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}

	slug := strings.TrimSpace(req.Template.Slug)
	if slug == "" {
		if req.Template.Plugin == "" || req.Template.Key == "" || req.Template.Version == "" {
			writeError(w, http.StatusBadRequest, "template slug or plugin/key/version required")
			return
		}
		slug = fmt.Sprintf("%s/%s@%s", req.Template.Plugin, req.Template.Key, req.Template.Version)
	}

	formats := make([]core.DatasetFormat, 0, len(req.Formats))
	for _, f := range req.Formats {
		format, ok := parseFormat(f)
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported export format")
			return
		}
		formats = append(formats, format)
	}

	record, err := h.Exports.EnqueueExport(r.Context(), ExportInput{
		TemplateSlug: slug,
		Parameters:   req.Parameters,
		Formats:      formats,
		Scope:        req.Scope.scope(),
		RequestedBy:  firstNonEmpty(req.RequestedBy, req.Scope.Requestor),
		Reason:       req.Reason,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseFormat(raw string) (core.DatasetFormat, bool) {
	switch core.DatasetFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case core.FormatJSON:
		return core.FormatJSON, true
	case core.FormatCSV:
		return core.FormatCSV, true
	case core.FormatHTML:
		return core.FormatHTML, true
	default:
		return "", false
	}
}

func negotiateFormat(r *http.Request, supported []core.DatasetFormat) core.DatasetFormat {
	wanted := strings.ToLower(r.URL.Query().Get("format"))
	if wanted == "" {
		accept := r.Header.Get("Accept")
		switch {
		case strings.Contains(accept, "text/csv"):
			wanted = string(core.FormatCSV)
		case strings.Contains(accept, "text/html"):
			wanted = string(core.FormatHTML)
		default:
			wanted = string(core.FormatJSON)
		}
	}
	format, ok := parseFormat(wanted)
	if !ok {
		return ""
	}
	for _, candidate := range supported {
		if candidate == format {
			return format
		}
	}
	return ""
}

func resultTable(descriptor core.DatasetTemplateDescriptor, result core.DatasetRunResult) present.Table {
	columns := result.Schema
	if len(columns) == 0 {
		columns = descriptor.Columns
	}
	placeholder, _ := result.Metadata["placeholder"].(bool)
	return present.Table{Columns: columns, Rows: result.Rows, Placeholder: placeholder}
}

func streamCSV(w http.ResponseWriter, descriptor core.DatasetTemplateDescriptor, result core.DatasetRunResult) {
	filename := fmt.Sprintf("%s-%s.csv", descriptor.Key, result.GeneratedAt.UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_ = resultTable(descriptor, result).WriteCSV(w)
}

func streamHTML(w http.ResponseWriter, descriptor core.DatasetTemplateDescriptor, result core.DatasetRunResult) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = resultTable(descriptor, result).WriteHTML(w, descriptor.Title)
}

// decodeBody decodes an optional JSON body; an empty body is not an error.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
