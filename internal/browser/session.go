// internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seatrunner/internal/booking"
)

// ErrSessionClosed is returned by every operation on a closed session.
var ErrSessionClosed = errors.New("browser session is closed")

// Session is a single browser tab driven over CDP. It implements booking.Page;
// every selector is resolved as XPath.
type Session struct {
	id string
	// ctx is the tab context. It carries the CDP target and must be the parent
	// of every chromedp.Run call.
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	harvester   *Harvester
	quietPeriod time.Duration

	mu       sync.Mutex
	isClosed bool
}

var _ booking.Page = (*Session)(nil)

func newSession(ctx context.Context, cancel, allocCancel context.CancelFunc, quietPeriod time.Duration, logger *zap.Logger) *Session {
	id := uuid.New().String()
	sessionLogger := logger.With(zap.String("session_id", id))
	return &Session{
		id:          id,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      sessionLogger,
		harvester:   NewHarvester(ctx, sessionLogger),
		quietPeriod: quietPeriod,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// start allocates the browser and opens the tab. The first chromedp.Run on a
// tab context owns the browser process, so it runs on s.ctx itself and ctx
// only bounds how long we wait for it.
func (s *Session) start(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(s.ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to initialize browser context/target connection: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("browser did not start: %w", ctx.Err())
	}
}

// run executes actions on the tab, bounded by ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.isClosed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	opCtx, cancel := boundTo(s.ctx, ctx)
	defer cancel()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		// opCtx only ever reports Canceled; surface the caller's real reason.
		return ctx.Err()
	}
	return err
}

// boundTo returns a child of tab that is also canceled when op is done.
// chromedp resolves the target from tab's values, so operations must derive
// from it, while op carries the caller's deadline and cancellation.
func boundTo(tab, op context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(op, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Navigate starts loading url and returns once the document has a body. It
// does not wait for the load event, so slow third-party resources cannot
// hold the flow back.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	return s.run(ctx, navigateActions(url)...)
}

func navigateActions(url string) []chromedp.Action {
	return []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errorText, _, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return fmt.Errorf("page load error %s", errorText)
			}
			return nil
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
}

func (s *Session) WaitAttached(ctx context.Context, sel string) error {
	return s.run(ctx, chromedp.WaitReady(sel, chromedp.BySearch))
}

func (s *Session) WaitVisible(ctx context.Context, sel string) error {
	return s.run(ctx, chromedp.WaitVisible(sel, chromedp.BySearch))
}

func (s *Session) WaitEnabled(ctx context.Context, sel string) error {
	return s.run(ctx, chromedp.WaitEnabled(sel, chromedp.BySearch))
}

func (s *Session) ScrollIntoView(ctx context.Context, sel string) error {
	return s.run(ctx, chromedp.ScrollIntoView(sel, chromedp.BySearch))
}

// Click waits for the element to be visible and clicks its center.
func (s *Session) Click(ctx context.Context, sel string) error {
	return s.run(ctx, chromedp.Click(sel, chromedp.BySearch))
}

// Evaluate resolves sel in the page and calls fn with the element, or null
// when nothing matches.
func (s *Session) Evaluate(ctx context.Context, sel string, fn string, res interface{}) error {
	expr, err := elementExpression(sel, fn)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.Evaluate(expr, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

// WaitNetworkIdle waits for the tab to go quiet for the session's quiet period.
func (s *Session) WaitNetworkIdle(ctx context.Context) error {
	s.mu.Lock()
	closed := s.isClosed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	return s.harvester.WaitNetworkIdle(ctx, s.quietPeriod)
}

// Screenshot captures the visible viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close stops the harvester, closes the tab and shuts the browser down. It
// waits for the browser process to exit until ctx is done.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.harvester.Stop()

	done := make(chan error, 1)
	go func() {
		// Blocks until the browser process has exited.
		done <- chromedp.Cancel(s.ctx)
	}()

	var err error
	select {
	case err = <-done:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	case <-ctx.Done():
		err = fmt.Errorf("timed out waiting for the browser to exit: %w", ctx.Err())
	}

	s.cancel()
	s.allocCancel()
	s.logger.Debug("Session closed.")
	return err
}

// elementExpression builds a JS expression that applies fn to the first node
// matching the XPath sel.
func elementExpression(sel, fn string) (string, error) {
	quoted, err := json.Marshal(sel)
	if err != nil {
		return "", fmt.Errorf("failed to encode selector: %w", err)
	}
	return fmt.Sprintf(
		"(%s)(document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue)",
		fn, quoted,
	), nil
}
