// Package session holds the locally persisted record of the authenticated user.
package session

import (
	"errors"
	"strings"
	"sync"
)

// ErrEmptyToken is returned by Set when the session carries no bearer token.
var ErrEmptyToken = errors.New("session token is empty")

// Session is the local record of the authenticated user and their bearer credential.
type Session struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

// Backend is the durable key-value slot a Store persists into.
type Backend interface {
	Load() (Session, bool, error)
	Save(Session) error
	Clear() error
}

// Listener observes every successful session change. ok is false after a clear.
type Listener func(s Session, ok bool)

// Store is the single writer of the process-wide session.
// Writes are whole-value replacements guarded by a mutex.
type Store struct {
	mu        sync.RWMutex
	current   Session
	present   bool
	backend   Backend
	listeners []Listener
}

// Open creates a Store and loads the persisted session from backend.
// A nil backend keeps the session in memory only.
func Open(backend Backend) (*Store, error) {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{backend: backend}
	loaded, ok, err := backend.Load()
	if err != nil {
		return nil, err
	}
	if ok && strings.TrimSpace(loaded.Token) != "" {
		s.current = loaded
		s.present = true
	}
	return s, nil
}

// Get returns a copy of the current session.
func (s *Store) Get() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.present
}

// Token returns the current bearer token or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return ""
	}
	return s.current.Token
}

// IsAuthenticated reports whether a session is present.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Get()
	return ok
}

// Set persists sess and then makes it current.
// If persisting fails the in-memory session is left untouched.
func (s *Store) Set(sess Session) error {
	if strings.TrimSpace(sess.Token) == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	if err := s.backend.Save(sess); err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = sess
	s.present = true
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(sess, true)
	}
	return nil
}

// Clear drops the session from memory and from the backend.
// Memory is cleared even if the backend fails so a stale token is never reused.
func (s *Store) Clear() error {
	s.mu.Lock()
	wasPresent := s.present
	s.current = Session{}
	s.present = false
	err := s.backend.Clear()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if wasPresent {
		for _, fn := range listeners {
			fn(Session{}, false)
		}
	}
	return err
}

// Subscribe registers fn for future session changes.
func (s *Store) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
