// internal/browser/harvester.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// minIdlePoll bounds how often WaitNetworkIdle samples the in-flight set.
const minIdlePoll = 10 * time.Millisecond

// Harvester listens to the tab's network events and keeps track of the
// requests still in flight, which is what network-idle waits are built on.
// Uncaught page exceptions are logged along the way.
type Harvester struct {
	logger *zap.Logger

	// The context for the browser tab this harvester is attached to.
	sessionCtx context.Context
	// A separate context for the listener so it can be stopped cleanly.
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	inflightRequests map[network.RequestID]string
	lastActivity     time.Time
	lock             sync.RWMutex

	isStarted bool
	now       func() time.Time
}

// NewHarvester creates a new harvester for a specific session.
func NewHarvester(sessionCtx context.Context, logger *zap.Logger) *Harvester {
	return &Harvester{
		sessionCtx:       sessionCtx,
		logger:           logger.Named("harvester"),
		inflightRequests: make(map[network.RequestID]string),
		lastActivity:     time.Now(),
		now:              time.Now,
	}
}

// Start registers the event listener and enables the CDP domains it needs.
func (h *Harvester) Start(ctx context.Context) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.isStarted {
		return nil
	}

	// Derived from the session, so if the tab dies, the listener dies.
	h.listenerCtx, h.cancelListener = context.WithCancel(h.sessionCtx)
	chromedp.ListenTarget(h.listenerCtx, h.handle)

	opCtx, cancel := boundTo(h.sessionCtx, ctx)
	defer cancel()
	if err := chromedp.Run(opCtx, network.Enable(), runtime.Enable()); err != nil {
		h.cancelListener()
		return err
	}

	h.isStarted = true
	h.logger.Debug("Harvester started and listening for events.")
	return nil
}

// Stop detaches the listener. It is safe to call more than once.
func (h *Harvester) Stop() {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.cancelListener != nil {
		h.cancelListener()
		h.cancelListener = nil
	}
	if h.isStarted {
		h.isStarted = false
		h.logger.Debug("Harvester stopped.", zap.Int("inflight_requests", len(h.inflightRequests)))
	}
}

// handle dispatches one CDP event.
func (h *Harvester) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		h.handleRequestWillBeSent(e)
	case *network.EventLoadingFinished:
		h.finish(e.RequestID)
	case *network.EventLoadingFailed:
		h.finish(e.RequestID)
	case *runtime.EventExceptionThrown:
		h.handleExceptionThrown(e)
	}
}

// Inflight reports how many requests have started and not yet finished.
func (h *Harvester) Inflight() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.inflightRequests)
}

// WaitNetworkIdle polls until there have been no in flight requests for
// quietPeriod, or ctx is done.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	interval := quietPeriod / 2
	if interval < minIdlePoll {
		interval = minIdlePoll
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := h.now()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("WaitNetworkIdle aborted.", zap.Int("inflight_requests", h.Inflight()), zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
			h.lock.RLock()
			inflight := len(h.inflightRequests)
			last := h.lastActivity
			h.lock.RUnlock()

			if inflight > 0 {
				continue
			}
			// Idle time only counts from when this wait began or the last request ended, whichever is later.
			if last.Before(start) {
				last = start
			}
			if h.now().Sub(last) >= quietPeriod {
				return nil
			}
		}
	}
}

func (h *Harvester) handleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	url := ""
	if e.Request != nil {
		url = e.Request.URL
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	// A redirect reuses the request ID, so the entry is simply refreshed.
	h.inflightRequests[e.RequestID] = url
	h.lastActivity = h.now()
}

func (h *Harvester) finish(id network.RequestID) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if _, ok := h.inflightRequests[id]; !ok {
		return
	}
	delete(h.inflightRequests, id)
	h.lastActivity = h.now()
}

func (h *Harvester) handleExceptionThrown(e *runtime.EventExceptionThrown) {
	if e.ExceptionDetails == nil {
		return
	}
	text := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		text = e.ExceptionDetails.Exception.Description
	}
	h.logger.Debug("Uncaught page exception.", zap.String("text", text), zap.String("url", e.ExceptionDetails.URL))
}
