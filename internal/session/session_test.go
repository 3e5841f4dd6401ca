package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"albuminome/internal/core"
	"albuminome/internal/present"
	"albuminome/pkg/domain"
)

func newExplorer(t *testing.T) *core.Service {
	t.Helper()
	index, err := domain.NewStudyIndex([]domain.Study{
		{Label: "S1", Paper: "Alpha", AlbuminOnly: "Yes"},
		{Label: "S2", Paper: "Beta", AlbuminOnly: "No", OtherProteins: []string{"Transferrin"}},
		{Label: "S3", Paper: "Gamma", AlbuminOnly: "No", OtherProteins: []string{"IgG"}},
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	matrix, err := domain.NewMentionMatrix([]string{"S1", "S2", "S3"}, []domain.ProteinMentionRow{
		{ProteinIdentity: domain.ProteinIdentity{Protein: "A", UniprotID: "P1", ProteinName: "Alpha protein"}, Mentions: map[string]bool{"S1": true, "S2": true, "S3": true}},
		{ProteinIdentity: domain.ProteinIdentity{Protein: "B", UniprotID: "P2", ProteinName: "Beta protein"}, Mentions: map[string]bool{"S2": true}},
	})
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	svc, err := core.NewService(domain.Dataset{Index: index, Matrix: matrix})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

type viewRecorder struct {
	mu    sync.Mutex
	views []View
}

func (r *viewRecorder) Present(_ context.Context, view View) {
	r.mu.Lock()
	r.views = append(r.views, view)
	r.mu.Unlock()
}

func (r *viewRecorder) last() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[len(r.views)-1]
}

func TestSessionPushesRecomputedViews(t *testing.T) {
	svc := newExplorer(t)
	rec := &viewRecorder{}
	s, err := New(context.Background(), "s", svc, svc.DefaultParams(), rec, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if len(rec.views) != 1 {
		t.Fatalf("expected initial view, got %d", len(rec.views))
	}
	if got := rec.last().SelectedPapers.Rows; len(got) != 1 || got[0][present.ColumnPaper] != "Alpha" {
		t.Fatalf("unexpected initial studies %+v", got)
	}

	if _, err := s.SetAlbuminOnly(context.Background(), domain.AlbuminOnlyNo); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if _, err := s.SetOtherProteins(context.Background(), []string{"Transferrin"}); err != nil {
		t.Fatalf("set proteins: %v", err)
	}
	view := rec.last()
	if len(rec.views) != 3 {
		t.Fatalf("expected one push per event, got %d", len(rec.views))
	}
	if diff := cmp.Diff([][]string{{"A", "P1", "Alpha protein", "1"}, {"B", "P2", "Beta protein", "1"}}, view.AggregatedTable.Records()); diff != "" {
		t.Fatalf("aggregated mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(view, s.View()); diff != "" {
		t.Fatalf("session view differs from last push (-want +got):\n%s", diff)
	}
}

func TestSessionPlaceholdersWhenNothingMatches(t *testing.T) {
	svc := newExplorer(t)
	s, err := New(context.Background(), "s", svc, domain.Params{AlbuminOnly: domain.AlbuminOnlyNo, OtherProteins: []string{"Haptoglobin"}}, nil, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	view := s.View()
	if !view.SelectedPapers.Placeholder || !view.AggregatedTable.Placeholder {
		t.Fatalf("expected both placeholders, got %+v", view)
	}
	if view.AggregatedTable.Rows[0][present.ColumnMessage] != present.NoProteinsMessage {
		t.Fatalf("unexpected message %+v", view.AggregatedTable.Rows)
	}
}

func TestSessionRejectsInvalidModeAndKeepsState(t *testing.T) {
	svc := newExplorer(t)
	rec := &viewRecorder{}
	s, err := New(context.Background(), "s", svc, svc.DefaultParams(), rec, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	before := s.Params()
	if _, err := s.SetAlbuminOnly(context.Background(), "maybe"); !errors.Is(err, domain.ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if diff := cmp.Diff(before, s.Params()); diff != "" {
		t.Fatalf("params changed after rejected event (-want +got):\n%s", diff)
	}
	if len(rec.views) != 1 {
		t.Fatalf("rejected event must not push a view")
	}
}

func TestSessionConcurrentEventsSettleOnLastState(t *testing.T) {
	svc := newExplorer(t)
	var mu sync.Mutex
	var last View
	presenter := PresenterFunc(func(_ context.Context, view View) {
		mu.Lock()
		last = view
		mu.Unlock()
	})
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := New(context.Background(), "s", svc, svc.DefaultParams(), presenter, func() time.Time { return clock })
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mode := domain.AlbuminOnlyModes()[i%3]
			_, _ = s.SetAlbuminOnly(context.Background(), mode)
		}(i)
	}
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(s.View(), last); diff != "" {
		t.Fatalf("presenter did not observe the settled state (-want +got):\n%s", diff)
	}
	if last.Params.AlbuminOnly != s.Params().AlbuminOnly {
		t.Fatalf("presented params %v differ from session %v", last.Params, s.Params())
	}
}

// gatedExplorer blocks the first gated Explore call until release is closed.
type gatedExplorer struct {
	Explorer
	gate    bool
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedExplorer) Explore(ctx context.Context, params domain.Params) (core.Exploration, error) {
	if g.gate {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.Explorer.Explore(ctx, params)
}

func TestSessionConcurrentPartialUpdatesCompose(t *testing.T) {
	svc := newExplorer(t)
	gated := &gatedExplorer{Explorer: svc, entered: make(chan struct{}), release: make(chan struct{})}
	s, err := New(context.Background(), "s", gated, svc.DefaultParams(), nil, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	gated.gate = true

	modeDone := make(chan error, 1)
	go func() {
		_, err := s.Update(context.Background(), func(p *domain.Params) { p.AlbuminOnly = domain.AlbuminOnlyNo })
		modeDone <- err
	}()
	<-gated.entered

	proteinsDone := make(chan error, 1)
	go func() {
		_, err := s.Update(context.Background(), func(p *domain.Params) { p.OtherProteins = []string{"Transferrin"} })
		proteinsDone <- err
	}()
	close(gated.release)
	if err := <-modeDone; err != nil {
		t.Fatalf("mode update: %v", err)
	}
	if err := <-proteinsDone; err != nil {
		t.Fatalf("proteins update: %v", err)
	}

	want := domain.Params{AlbuminOnly: domain.AlbuminOnlyNo, OtherProteins: []string{"Transferrin"}}
	if diff := cmp.Diff(want, s.Params()); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
	if got := s.View().SelectedPapers.Rows; len(got) != 1 || got[0][present.ColumnPaper] != "Beta" {
		t.Fatalf("view must reflect both updates, got %+v", got)
	}
}

func TestSessionUpdateFailureKeepsState(t *testing.T) {
	svc := newExplorer(t)
	s, err := New(context.Background(), "s", svc, svc.DefaultParams(), nil, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	before := s.Params()
	_, err = s.Update(context.Background(), func(p *domain.Params) {
		p.AlbuminOnly = "Maybe"
		p.OtherProteins = nil
	})
	if !errors.Is(err, domain.ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if diff := cmp.Diff(before, s.Params()); diff != "" {
		t.Fatalf("params changed on failure (-want +got):\n%s", diff)
	}
}
