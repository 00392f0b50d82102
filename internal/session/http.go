package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// HTTPOptions parameterise plain HTTP sessions.
type HTTPOptions struct {
	Timeout    time.Duration
	UserAgents UserAgentFunc
}

// HTTPOpener fetches pages without executing scripts; only server-rendered
// markup is visible to selectors.
type HTTPOpener struct {
	opts   HTTPOptions
	logger zerolog.Logger
}

// NewHTTPOpener constructs an HTTP session opener.
func NewHTTPOpener(opts HTTPOptions, logger zerolog.Logger) *HTTPOpener {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgents == nil {
		opts.UserAgents = RandomUserAgent
	}
	return &HTTPOpener{opts: opts, logger: logger.With().Str("component", "http_session").Logger()}
}

// Open builds a fresh client with its own cookie jar and user agent.
func (o *HTTPOpener) Open(ctx context.Context) (Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, &SessionError{Op: "open", Err: err}
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetTimeout(o.opts.Timeout)

	ua := o.opts.UserAgents()
	client.SetHeader("User-Agent", ua)
	client.SetHeader("Accept", "text/html,application/xhtml+xml")

	s := &httpSession{id: newID(), client: client}
	o.logger.Debug().Str("session", s.id).Str("user_agent", ua).Msg("session opened")
	return s, nil
}

type httpSession struct {
	id     string
	client *resty.Client
	doc    *goquery.Document
	closed bool
}

func (s *httpSession) ID() string { return s.id }

func (s *httpSession) Load(ctx context.Context, url string) error {
	if s.closed {
		return &SessionError{Op: "load", Err: errors.New("session closed")}
	}

	res, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return &SessionError{Op: "load", Err: err}
	}
	if res.IsError() {
		return &SessionError{Op: "load", Err: fmt.Errorf("unexpected status %d", res.StatusCode())}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return &SessionError{Op: "parse", Err: err}
	}
	s.doc = doc
	return nil
}

func (s *httpSession) FindText(_ context.Context, sel Selector, _ time.Duration) (string, error) {
	if s.doc == nil {
		return "", &SessionError{Op: "find", Err: errors.New("no page loaded")}
	}
	if sel.CSS == "" {
		return "", ErrUnsupportedSelector
	}

	text, ok := documentText(s.doc, sel.CSS)
	if !ok {
		return "", ErrNoMatch
	}
	return text, nil
}

func (s *httpSession) Close() error {
	if s.closed {
		return &SessionError{Op: "close", Err: errors.New("already closed")}
	}
	s.closed = true
	s.doc = nil
	s.client.GetClient().CloseIdleConnections()
	return nil
}

var _ Opener = (*HTTPOpener)(nil)
