package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManagerLifecycle(t *testing.T) {
	svc := newExplorer(t)
	m := NewManager(svc, svc.DefaultParams, Config{}, nil)
	s, err := m.Create(context.Background(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID() == "" {
		t.Fatalf("expected generated id")
	}
	got, err := m.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("get: %v %v", got, err)
	}
	other, err := m.Create(context.Background(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if other.ID() == s.ID() || m.Len() != 2 {
		t.Fatalf("sessions must be distinct, len=%d", m.Len())
	}
	if _, err := other.SetAlbuminOnly(context.Background(), "All"); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if s.Params().AlbuminOnly != "Yes" {
		t.Fatalf("session state leaked between sessions")
	}
	if !m.Delete(s.ID()) {
		t.Fatalf("delete returned false")
	}
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerEvictsOldestBeyondCapacity(t *testing.T) {
	svc := newExplorer(t)
	m := NewManager(svc, svc.DefaultParams, Config{MaxSessions: 1, TTL: time.Hour}, nil)
	first, err := m.Create(context.Background(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Create(context.Background(), nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Get(first.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected first session evicted, got %v", err)
	}
}

func TestManagerKeepsActiveSessionsAlive(t *testing.T) {
	svc := newExplorer(t)
	const ttl = 150 * time.Millisecond
	m := NewManager(svc, svc.DefaultParams, Config{TTL: ttl}, nil)
	s, err := m.Create(context.Background(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	deadline := time.Now().Add(3 * ttl)
	for time.Now().Before(deadline) {
		got, err := m.Get(s.ID())
		if err != nil {
			t.Fatalf("session in active use expired: %v", err)
		}
		if _, err := got.SetAlbuminOnly(context.Background(), "All"); err != nil {
			t.Fatalf("set mode: %v", err)
		}
		time.Sleep(ttl / 4)
	}
}

func TestManagerExpiresIdleSessions(t *testing.T) {
	svc := newExplorer(t)
	const ttl = 50 * time.Millisecond
	m := NewManager(svc, svc.DefaultParams, Config{TTL: ttl}, nil)
	s, err := m.Create(context.Background(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(3 * ttl)
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected idle session to expire, got %v", err)
	}
}
