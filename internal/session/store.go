// Package session tracks the authenticated sessions of the demo server.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one logged-in connection.
type Session struct {
	ID         string
	Principal  string
	Domain     string
	RemoteAddr string
	StartedAt  time.Time
}

// ErrSeatsExhausted is returned by Open when every seat is taken.
var ErrSeatsExhausted = errors.New("all seats in use")

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Open registers a new session and returns a copy of it. When seats is
// positive the session is refused once that many are open; the check and
// the insert happen under one lock.
func (s *Store) Open(principal, domain, remoteAddr string, seats int) (*Session, error) {
	st := &Session{
		ID:         uuid.NewString(),
		Principal:  principal,
		Domain:     domain,
		RemoteAddr: remoteAddr,
		StartedAt:  s.now(),
	}
	s.mu.Lock()
	if seats > 0 && len(s.sessions) >= seats {
		s.mu.Unlock()
		return nil, ErrSeatsExhausted
	}
	s.sessions[st.ID] = st
	s.mu.Unlock()
	copy := *st
	return &copy, nil
}

// GetAll returns copies of every session, oldest first.
func (s *Store) GetAll() []*Session {
	s.mu.RLock()
	result := make([]*Session, 0, len(s.sessions))
	for _, st := range s.sessions {
		copy := *st
		result = append(result, &copy)
	}
	s.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result
}

// Close removes the session. It reports whether the session existed.
func (s *Store) Close(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
