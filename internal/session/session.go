// Package session holds per-user exploration state. Every parameter change
// recomputes the filter and aggregation synchronously and pushes both views
// to the session's presenter.
package session

import (
	"context"
	"sync"
	"time"

	"albuminome/internal/core"
	"albuminome/internal/present"
	"albuminome/pkg/domain"
)

// Explorer derives both views for a parameter state.
type Explorer interface {
	Explore(ctx context.Context, params domain.Params) (core.Exploration, error)
}

// View is the pair of presented tables for one settled parameter state.
type View struct {
	Params          domain.Params `json:"params"`
	SelectedPapers  present.Table `json:"selected_papers"`
	AggregatedTable present.Table `json:"aggregated_table"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewView shapes an exploration into presented tables.
func NewView(result core.Exploration, at time.Time) View {
	return View{
		Params:          result.Params.Clone(),
		SelectedPapers:  present.SelectedPapers(result.Studies),
		AggregatedTable: present.AggregatedTable(result.Summary.Counts, result.Summary.NoStudies()),
		UpdatedAt:       at.UTC(),
	}
}

// Presenter receives every recomputed view.
type Presenter interface {
	Present(ctx context.Context, view View)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, view View)

// Present implements Presenter.
func (f PresenterFunc) Present(ctx context.Context, view View) { f(ctx, view) }

// Session is one user's exploration state. Events are applied in arrival
// order; the presenter always observes the last settled state last.
type Session struct {
	id        string
	explorer  Explorer
	presenter Presenter
	now       func() time.Time

	mu     sync.Mutex
	params domain.Params
	view   View
}

// New builds a session with initial params and computes the first view.
func New(ctx context.Context, id string, explorer Explorer, initial domain.Params, presenter Presenter, now func() time.Time) (*Session, error) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	s := &Session{id: id, explorer: explorer, presenter: presenter, now: now}
	if _, err := s.Apply(ctx, initial); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Params returns a copy of the current parameters.
func (s *Session) Params() domain.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.Clone()
}

// View returns the last computed view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetAlbuminOnly changes the albumin-only mode and recomputes.
func (s *Session) SetAlbuminOnly(ctx context.Context, mode domain.AlbuminOnlyMode) (View, error) {
	return s.Update(ctx, func(p *domain.Params) { p.AlbuminOnly = mode })
}

// SetOtherProteins replaces the co-removed protein selection and recomputes.
func (s *Session) SetOtherProteins(ctx context.Context, proteins []string) (View, error) {
	selected := append([]string(nil), proteins...)
	return s.Update(ctx, func(p *domain.Params) { p.OtherProteins = selected })
}

// Apply replaces both parameters at once and recomputes.
func (s *Session) Apply(ctx context.Context, params domain.Params) (View, error) {
	next := params.Clone()
	return s.Update(ctx, func(p *domain.Params) { *p = next })
}

// Update mutates a copy of the current parameters under the session lock
// and recomputes. Concurrent partial updates compose; a failed recomputation
// leaves the session unchanged.
func (s *Session) Update(ctx context.Context, mutate func(*domain.Params)) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.params.Clone()
	mutate(&next)
	result, err := s.explorer.Explore(ctx, next)
	if err != nil {
		return View{}, err
	}
	s.params = next
	s.view = NewView(result, s.now())
	if s.presenter != nil {
		s.presenter.Present(ctx, s.view)
	}
	return s.view, nil
}
