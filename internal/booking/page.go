// Package booking drives the seat-booking flow on the ticket site, from the
// search results page up to, but never including, payment.
package booking

import (
	"context"
)

// Page is the browser capability the flow needs. Every selector is an XPath
// expression that is expected to resolve to a single element.
//
// Implementations must honor ctx: each wait returns once the condition holds
// or ctx is done, whichever comes first.
type Page interface {
	// Navigate loads url and waits for the document body to be ready.
	Navigate(ctx context.Context, url string) error
	// WaitAttached waits until the element exists in the DOM.
	WaitAttached(ctx context.Context, sel string) error
	// WaitVisible waits until the element is rendered and visible.
	WaitVisible(ctx context.Context, sel string) error
	// WaitEnabled waits until the element is not disabled.
	WaitEnabled(ctx context.Context, sel string) error
	ScrollIntoView(ctx context.Context, sel string) error
	Click(ctx context.Context, sel string) error
	// Evaluate calls the JS function fn with the element as its only argument
	// and decodes the return value into res.
	Evaluate(ctx context.Context, sel string, fn string, res interface{}) error
	// WaitNetworkIdle waits until the page has had no in-flight requests for a quiet period.
	WaitNetworkIdle(ctx context.Context) error
	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// ScreenshotSaver persists a screenshot for a stage and returns where it went.
type ScreenshotSaver interface {
	Save(stage string, png []byte) (string, error)
}
