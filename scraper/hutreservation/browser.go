package hutreservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"hut-availability/utils"
)

// BrowserOptions configures the Chrome process backing all sessions
type BrowserOptions struct {
	Headless  bool
	UserAgent string
}

// Browser owns one Chrome process; every session is a separate tab
type Browser struct {
	opts   BrowserOptions
	logger *utils.Logger

	mu          sync.Mutex
	generation  uint64 // bumped by every Restart
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelCtx   context.CancelFunc
}

// how long a liveness check may take before Chrome counts as dead
const healthCheckTimeout = 5 * time.Second

// NewBrowser starts Chrome and keeps it running until Close
func NewBrowser(opts BrowserOptions, logger *utils.Logger) (*Browser, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	b := &Browser{opts: opts, logger: logger}
	if err := b.launch(); err != nil {
		return nil, err
	}
	return b, nil
}

// launch starts a fresh Chrome process; callers hold mu or own b exclusively
func (b *Browser) launch() error {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("log-level", "3"), // suppress Chrome logs
		chromedp.UserAgent(b.opts.UserAgent),
		chromedp.WindowSize(1280, 900),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// the first Run launches the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		cancelCtx()
		cancelAlloc()
		return fmt.Errorf("%w: start chrome: %v", ErrSession, err)
	}
	b.logger.Info("Chrome started (headless=%t)", b.opts.Headless)
	b.browserCtx, b.cancelAlloc, b.cancelCtx = browserCtx, cancelAlloc, cancelCtx
	return nil
}

// NewSession opens a new tab, tagged with the current browser generation
func (b *Browser) NewSession(ctx context.Context) (Session, error) {
	b.mu.Lock()
	browserCtx, generation := b.browserCtx, b.generation
	b.mu.Unlock()

	if err := browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: browser closed: %v", ErrSession, err)
	}
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: open tab: %v", ErrSession, err)
	}
	return &chromeSession{tabCtx: tabCtx, cancel: cancel, generation: generation}, nil
}

// Generation counts the Chrome processes started so far, minus one
func (b *Browser) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// Healthy reports whether the Chrome process still answers
func (b *Browser) Healthy(ctx context.Context) bool {
	b.mu.Lock()
	browserCtx := b.browserCtx
	b.mu.Unlock()

	if browserCtx.Err() != nil {
		return false
	}
	checkCtx, cancel := context.WithTimeout(browserCtx, healthCheckTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	_, err := chromedp.Targets(checkCtx)
	return err == nil
}

// Restart kills Chrome and launches a new process, unless the browser
// already moved past generation. Open tabs of the old process fail with
// ErrSession from then on.
func (b *Browser) Restart(ctx context.Context, generation uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if generation != b.generation {
		return false, nil
	}
	b.cancelCtx()
	b.cancelAlloc()
	b.generation++
	b.logger.Warn("Restarting Chrome (generation %d)", b.generation)
	return true, b.launch()
}

// Close shuts Chrome down
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelCtx()
	b.cancelAlloc()
}

type chromeSession struct {
	tabCtx     context.Context
	cancel     context.CancelFunc
	generation uint64
}

// Generation is the browser generation the tab was opened on
func (s *chromeSession) Generation() uint64 {
	return s.generation
}

// run executes actions in the tab, bounded by ctx and an optional timeout.
// Child contexts of the tab context can be cancelled without closing the tab.
func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) wrap(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %v", ErrSession, op, err)
}

func (s *chromeSession) Open(ctx context.Context, url string) error {
	return s.wrap(ctx, "navigate", s.run(ctx, 0, chromedp.Navigate(url)))
}

func (s *chromeSession) SetField(ctx context.Context, selector, text string) error {
	err := s.run(ctx, 0,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	return s.wrap(ctx, "set field "+selector, err)
}

func (s *chromeSession) Submit(ctx context.Context, selector string) error {
	return s.wrap(ctx, "submit "+selector, s.run(ctx, 0, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery)))
}

func (s *chromeSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	err := s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, s.wrap(ctx, "wait for "+selector, err)
	}
}

func (s *chromeSession) Markup(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, s.wrap(ctx, "read markup", err)
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}
