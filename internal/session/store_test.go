package session

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func mustOpen(t *testing.T, s *Store, principal string) *Session {
	t.Helper()
	st, err := s.Open(principal, "d", "", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestStoreOpen(t *testing.T) {
	s := NewStore()
	st, err := s.Open("alice", "Acme", "10.0.0.1:5000", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st.ID == "" {
		t.Fatal("Open should assign an ID")
	}

	all := s.GetAll()
	if len(all) != 1 {
		t.Fatalf("expected 1 session, got %d", len(all))
	}
	got := all[0]
	if got.Principal != "alice" || got.Domain != "Acme" || got.RemoteAddr != "10.0.0.1:5000" {
		t.Errorf("unexpected session %+v", got)
	}

	// Returned values are copies.
	got.Principal = "mallory"
	st.Principal = "mallory"
	if again := s.GetAll()[0]; again.Principal != "alice" {
		t.Error("mutating a returned session changed the store")
	}
}

func TestStoreOpenSeatLimit(t *testing.T) {
	s := NewStore()
	a, err := s.Open("a", "d", "", 2)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := s.Open("b", "d", "", 2); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if _, err := s.Open("c", "d", "", 2); !errors.Is(err, ErrSeatsExhausted) {
		t.Fatalf("third Open err = %v, want ErrSeatsExhausted", err)
	}
	s.Close(a.ID)
	if _, err := s.Open("c", "d", "", 2); err != nil {
		t.Fatalf("Open after Close: %v", err)
	}
}

func TestStoreOpenSeatLimitConcurrent(t *testing.T) {
	s := NewStore()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Open("u", "d", "", 3); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if accepted != 3 || s.ActiveCount() != 3 {
		t.Errorf("accepted=%d active=%d, want 3 and 3", accepted, s.ActiveCount())
	}
}

func TestStoreIDsUnique(t *testing.T) {
	s := NewStore()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		st := mustOpen(t, s, "u")
		if seen[st.ID] {
			t.Fatalf("duplicate session id %s", st.ID)
		}
		seen[st.ID] = true
	}
	if s.ActiveCount() != 50 {
		t.Errorf("ActiveCount = %d, want 50", s.ActiveCount())
	}
}

func TestStoreClose(t *testing.T) {
	s := NewStore()
	st := mustOpen(t, s, "alice")
	if !s.Close(st.ID) {
		t.Error("Close should report an existing session")
	}
	if s.Close(st.ID) {
		t.Error("second Close should report false")
	}
	if len(s.GetAll()) != 0 {
		t.Error("closed session still present")
	}
	if s.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", s.ActiveCount())
	}
}

func TestStoreGetAllOrdered(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	a := mustOpen(t, s, "a")
	b := mustOpen(t, s, "b")
	c := mustOpen(t, s, "c")

	all := s.GetAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(all))
	}
	for i, want := range []string{a.ID, b.ID, c.ID} {
		if all[i].ID != want {
			t.Errorf("all[%d] = %s, want %s", i, all[i].ID, want)
		}
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, _ := s.Open("u", "d", "", 0)
			s.GetAll()
			s.Close(st.ID)
		}()
	}
	wg.Wait()
	if s.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", s.ActiveCount())
	}
}
