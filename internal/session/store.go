// Package session keeps the calculators behind the REST API in memory.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/livetemplate/tinkercalc"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// ErrFull is returned by Create when the store is at capacity.
var ErrFull = errors.New("too many sessions")

// Session is a calculator owned by one API client.
// Callers must hold the session via Do to touch the calculator.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	calc      *tinkercalc.Calculator
	expiresAt time.Time
}

// Do runs fn with exclusive access to the session's calculator.
func (s *Session) Do(fn func(c *tinkercalc.Calculator)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.calc)
}

func (s *Session) isExpired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.After(s.expiresAt)
}

func (s *Session) touch(ttl time.Duration) {
	s.mu.Lock()
	s.expiresAt = time.Now().Add(ttl)
	s.mu.Unlock()
}

// Store is an in-memory session store with idle expiry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	max      int

	// OnEvict is called after a session is removed, for any reason.
	OnEvict func(id string)

	// For background cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once // Ensures Stop() is idempotent
}

// NewStore creates a store whose sessions expire after ttl of inactivity.
// max <= 0 means unbounded.
func NewStore(ttl time.Duration, max int) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	interval := time.Minute
	if ttl < interval {
		interval = ttl
	}
	s := &Store{
		sessions:        make(map[string]*Session),
		ttl:             ttl,
		max:             max,
		cleanupInterval: interval,
		stopCleanup:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Create starts a new session with a fresh calculator.
func (s *Store) Create() (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		calc:      tinkercalc.New(),
		expiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max > 0 && len(s.sessions) >= s.max {
		return nil, ErrFull
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

// Get returns the session and extends its lifetime.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, exists := s.sessions[id]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	if sess.isExpired(time.Now()) {
		s.Delete(id)
		return nil, ErrNotFound
	}

	sess.touch(s.ttl)
	return sess, nil
}

// Delete removes a session. It reports whether the session existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	_, exists := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if exists && s.OnEvict != nil {
		s.OnEvict(id)
	}
	return exists
}

// cleanupLoop periodically removes expired sessions
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired sessions
func (s *Store) cleanup() {
	now := time.Now()
	var evicted []string

	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.isExpired(now) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	s.mu.Unlock()

	if s.OnEvict != nil {
		for _, id := range evicted {
			s.OnEvict(id)
		}
	}
}

// Stop stops the background cleanup goroutine
// Safe to call multiple times
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
