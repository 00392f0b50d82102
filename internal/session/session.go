package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	browser "github.com/EDDYCJY/fake-useragent"
	random "github.com/mazen160/go-random"
)

// ErrNoMatch is returned by FindText when no element matched before the wait elapsed.
var ErrNoMatch = errors.New("no element matched")

// ErrUnsupportedSelector is returned when a selector has no form the session can evaluate.
var ErrUnsupportedSelector = errors.New("selector not supported by session")

// Selector addresses one element. Browser sessions evaluate XPath, document
// sessions evaluate CSS (with goquery's :contains/:has extensions).
type Selector struct {
	XPath string
	CSS   string
}

// Session is a single-use handle to a page retrieval context.
type Session interface {
	// ID identifies the session in logs.
	ID() string
	// Load navigates to url.
	Load(ctx context.Context, url string) error
	// FindText returns the text of the first element matching sel, waiting up to wait.
	FindText(ctx context.Context, sel Selector, wait time.Duration) (string, error)
	// Close releases the session. It must be called exactly once.
	Close() error
}

// Opener creates sessions; each Open yields a fresh identity.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// SessionError wraps failures to open, drive or close a session.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// UserAgentFunc picks a user agent for a new session.
type UserAgentFunc func() string

// RandomUserAgent draws a real-world browser user agent.
func RandomUserAgent() string {
	return browser.Random()
}

// FixedUserAgent always returns ua.
func FixedUserAgent(ua string) UserAgentFunc {
	return func() string { return ua }
}

// UserAgents returns a fixed provider when ua is set, otherwise a random one.
func UserAgents(ua string) UserAgentFunc {
	if ua != "" {
		return FixedUserAgent(ua)
	}
	return RandomUserAgent
}

func newID() string {
	id, err := random.String(8)
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return id
}
