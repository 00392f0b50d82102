package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

const hideWebdriverJS = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

// ChromeOptions parameterise headless Chrome sessions.
type ChromeOptions struct {
	ExecPath   string
	Headless   bool
	UserAgents UserAgentFunc
}

// ChromeOpener launches one headless Chrome per session so pages render
// their client-side content before selectors run.
type ChromeOpener struct {
	opts   ChromeOptions
	logger zerolog.Logger
}

// NewChromeOpener constructs a browser session opener.
func NewChromeOpener(opts ChromeOptions, logger zerolog.Logger) *ChromeOpener {
	if opts.UserAgents == nil {
		opts.UserAgents = RandomUserAgent
	}
	return &ChromeOpener{opts: opts, logger: logger.With().Str("component", "chrome_session").Logger()}
}

func (o *ChromeOpener) allocatorOptions(ua string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.opts.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("ignore-ssl-errors", true),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("allow-running-insecure-content", true),
		chromedp.Flag("disable-software-rasterizer", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(ua),
	)
	if o.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.opts.ExecPath))
	}
	return opts
}

// Open starts a browser and an empty tab with webdriver detection masked.
func (o *ChromeOpener) Open(ctx context.Context) (Session, error) {
	ua := o.opts.UserAgents()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, o.allocatorOptions(ua)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverJS).Do(ctx)
		return err
	}))
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, &SessionError{Op: "open", Err: err}
	}

	s := &chromeSession{
		id:          newID(),
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		logger:      o.logger,
	}
	o.logger.Debug().Str("session", s.id).Str("user_agent", ua).Msg("browser started")
	return s, nil
}

type chromeSession struct {
	id          string
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (s *chromeSession) ID() string { return s.id }

func (s *chromeSession) Load(_ context.Context, url string) error {
	if err := chromedp.Run(s.ctx, chromedp.Navigate(url)); err != nil {
		return &SessionError{Op: "load", Err: err}
	}
	return nil
}

func (s *chromeSession) FindText(_ context.Context, sel Selector, wait time.Duration) (string, error) {
	if sel.XPath == "" {
		return "", ErrUnsupportedSelector
	}
	if wait <= 0 {
		wait = 10 * time.Second
	}

	waitCtx, cancel := context.WithTimeout(s.ctx, wait)
	defer cancel()

	var text string
	err := chromedp.Run(waitCtx, chromedp.Text(sel.XPath, &text, chromedp.BySearch, chromedp.NodeReady))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrNoMatch
		}
		return "", &SessionError{Op: "find", Err: err}
	}
	return text, nil
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancelTab()
		s.cancelAlloc()
		if s.closeErr != nil {
			s.closeErr = &SessionError{Op: "close", Err: s.closeErr}
		}
	})
	return s.closeErr
}

var _ Opener = (*ChromeOpener)(nil)
