package datasets

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"albuminome/internal/core"
	"albuminome/internal/session"
	"albuminome/pkg/domain"
)

// Explorer is the exploration surface served by the handler.
type Explorer interface {
	Explore(ctx context.Context, params domain.Params) (core.Exploration, error)
	Vocabulary() []string
	DefaultParams() domain.Params
	Now() time.Time
}

// SessionStore keeps per-user sessions.
type SessionStore interface {
	Create(ctx context.Context, presenter session.Presenter) (*session.Session, error)
	Get(id string) (*session.Session, error)
	Delete(id string) bool
}

type exploreResponse struct {
	session.View
	Vocabulary []string `json:"vocabulary"`
}

type vocabularyResponse struct {
	Vocabulary       []string                 `json:"vocabulary"`
	Defaults         domain.Params            `json:"defaults"`
	AlbuminOnlyModes []domain.AlbuminOnlyMode `json:"albumin_only_modes"`
	Labels           map[string]string        `json:"labels"`
}

type sessionResponse struct {
	ID   string       `json:"id"`
	View session.View `json:"view"`
}

// paramsPatch carries a partial parameter update; nil fields are unchanged.
type paramsPatch struct {
	AlbuminOnly   *string   `json:"albumin_only"`
	OtherProteins *[]string `json:"other_proteins"`
}

func (p paramsPatch) apply(params *domain.Params) {
	if p.AlbuminOnly != nil {
		params.AlbuminOnly = domain.AlbuminOnlyMode(*p.AlbuminOnly)
	}
	if p.OtherProteins != nil {
		params.OtherProteins = append([]string{}, (*p.OtherProteins)...)
	}
}

func (p paramsPatch) empty() bool { return p.AlbuminOnly == nil && p.OtherProteins == nil }

func (h *Handler) handleExplorer(w http.ResponseWriter, r *http.Request, path string) {
	switch {
	case path == "/api/v1/explore":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleExplore(w, r)
	case path == "/api/v1/vocabulary":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleVocabulary(w, r)
	case h.Sessions == nil:
		http.NotFound(w, r)
	case path == "/api/v1/sessions":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleSessionCreate(w, r)
	default:
		id := strings.TrimPrefix(path, "/api/v1/sessions/")
		if id == path || id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}
		h.handleSession(w, r, id)
	}
}

// queryParams reads albumin_only and repeated other_proteins values. An
// absent key keeps the default; other_proteins= with no value selects none.
func (h *Handler) queryParams(r *http.Request) domain.Params {
	params := h.Explorer.DefaultParams()
	query := r.URL.Query()
	if query.Has("albumin_only") {
		params.AlbuminOnly = domain.AlbuminOnlyMode(query.Get("albumin_only"))
	}
	if query.Has("other_proteins") {
		selected := []string{}
		for _, value := range query["other_proteins"] {
			if value = strings.TrimSpace(value); value != "" {
				selected = append(selected, value)
			}
		}
		params.OtherProteins = selected
	}
	return params
}

func (h *Handler) handleExplore(w http.ResponseWriter, r *http.Request) {
	params := h.queryParams(r)
	if err := core.CheckSelection(h.Explorer.Vocabulary(), params.OtherProteins); err != nil {
		writeExploreError(w, err)
		return
	}
	result, err := h.Explorer.Explore(r.Context(), params)
	if err != nil {
		writeExploreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exploreResponse{
		View:       session.NewView(result, h.Explorer.Now()),
		Vocabulary: h.Explorer.Vocabulary(),
	})
}

func (h *Handler) handleVocabulary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vocabularyResponse{
		Vocabulary:       h.Explorer.Vocabulary(),
		Defaults:         h.Explorer.DefaultParams(),
		AlbuminOnlyModes: domain.AlbuminOnlyModes(),
		Labels: map[string]string{
			"about":                 core.AboutText,
			core.ParamAlbuminOnly:   core.AlbuminOnlyLabel,
			core.ParamOtherProteins: core.OtherProteinsLabel,
		},
	})
}

func (h *Handler) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var patch paramsPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session request payload")
		return
	}
	// Validate before creating so a bad body leaves no session behind.
	initial := h.Explorer.DefaultParams()
	patch.apply(&initial)
	if !initial.AlbuminOnly.Valid() {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidMode.Error())
		return
	}
	if err := core.CheckSelection(h.Explorer.Vocabulary(), initial.OtherProteins); err != nil {
		writeExploreError(w, err)
		return
	}
	s, err := h.Sessions.Create(r.Context(), nil)
	if err != nil {
		writeExploreError(w, err)
		return
	}
	view := s.View()
	if !patch.empty() {
		if view, err = s.Apply(r.Context(), initial); err != nil {
			h.Sessions.Delete(s.ID())
			writeExploreError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": sessionResponse{ID: s.ID(), View: view}})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method == http.MethodDelete {
		if !h.Sessions.Delete(id) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s, err := h.Sessions.Get(id)
	if err != nil {
		writeExploreError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"session": sessionResponse{ID: s.ID(), View: s.View()}})
	case http.MethodPatch:
		var patch paramsPatch
		if err := decodeBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid session request payload")
			return
		}
		if patch.OtherProteins != nil {
			if err := core.CheckSelection(h.Explorer.Vocabulary(), *patch.OtherProteins); err != nil {
				writeExploreError(w, err)
				return
			}
		}
		view, err := s.Update(r.Context(), patch.apply)
		if err != nil {
			writeExploreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": sessionResponse{ID: s.ID(), View: view}})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeExploreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidMode), errors.Is(err, domain.ErrUnknownProtein):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
