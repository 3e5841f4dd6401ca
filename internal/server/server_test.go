package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type fakeWorker struct {
	mu      sync.Mutex
	started int
	stopped int
}

func (f *fakeWorker) Start() {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
}

func (f *fakeWorker) Stop(context.Context) error {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
	return nil
}

func TestMuxRoutes(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "api:"+r.URL.Path) })
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "metrics") })
	ready := error(nil)
	mux := NewMux("/metrics", Routes{API: api, Metrics: metrics, Ready: func() error { return ready }})

	cases := []struct {
		path   string
		status int
		body   string
	}{
		{"/api/v1/explore", http.StatusOK, "api:/api/v1/explore"},
		{"/metrics", http.StatusOK, "metrics"},
		{"/healthz", http.StatusOK, "ok\n"},
		{"/other", http.StatusNotFound, ""},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, c.path, nil))
		if rec.Code != c.status {
			t.Fatalf("%s: expected %d, got %d", c.path, c.status, rec.Code)
		}
		if c.body != "" && rec.Body.String() != c.body {
			t.Fatalf("%s: unexpected body %q", c.path, rec.Body.String())
		}
	}

	ready = errors.New("dataset not loaded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "dataset not loaded") {
		t.Fatalf("expected unready probe, got %d %q", rec.Code, rec.Body.String())
	}

	bare := NewMux("/metrics", Routes{})
	rec = httptest.NewRecorder()
	bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics should not be mounted without a handler, got %d", rec.Code)
	}
}

func TestServeLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	worker := &fakeWorker{}
	srv := New(Config{ShutdownTimeout: time.Second}, Routes{}, nil, worker)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = client.Get("http://" + ln.Addr().String() + "/healthz")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Fatalf("unexpected healthz %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop")
	}
	worker.mu.Lock()
	defer worker.mu.Unlock()
	if worker.started != 1 || worker.stopped != 1 {
		t.Fatalf("worker lifecycle mismatch: started=%d stopped=%d", worker.started, worker.stopped)
	}
}

func TestListenAndServeBadAddr(t *testing.T) {
	srv := New(Config{Addr: "256.0.0.1:bad"}, Routes{}, nil)
	if err := srv.ListenAndServe(context.Background()); err == nil {
		t.Fatalf("expected listen error")
	}
}
