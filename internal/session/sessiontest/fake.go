// Package sessiontest provides an in-memory session for tests.
package sessiontest

import (
	"context"
	"errors"
	"sync"
	"time"

	"netflow-crawler/internal/session"
)

// Session serves text per selector and counts calls.
type Session struct {
	mu sync.Mutex

	// Rows maps a selector's XPath to the text it yields; missing keys yield ErrNoMatch.
	Rows    map[string]string
	LoadErr error
	CloseFn func() error

	Loads    int
	Finds    map[string]int
	Closes   int
	LastWait time.Duration
}

// New returns a session serving rows keyed by XPath.
func New(rows map[string]string) *Session {
	return &Session{Rows: rows, Finds: map[string]int{}}
}

func (s *Session) ID() string { return "fake" }

func (s *Session) Load(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Loads++
	return s.LoadErr
}

func (s *Session) FindText(_ context.Context, sel session.Selector, wait time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Finds[sel.XPath]++
	s.LastWait = wait
	text, ok := s.Rows[sel.XPath]
	if !ok {
		return "", session.ErrNoMatch
	}
	return text, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.Closes++
	fn := s.CloseFn
	s.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

// Opener hands out sessions built by NewSession and tracks them.
type Opener struct {
	mu sync.Mutex

	NewSession func() *Session
	OpenErr    error
	Opened     []*Session
}

// ErrOpen is a canned open failure.
var ErrOpen = errors.New("browser failed to start")

func (o *Opener) Open(_ context.Context) (session.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.OpenErr != nil {
		return nil, &session.SessionError{Op: "open", Err: o.OpenErr}
	}
	s := o.NewSession()
	o.Opened = append(o.Opened, s)
	return s, nil
}

var (
	_ session.Session = (*Session)(nil)
	_ session.Opener  = (*Opener)(nil)
)
