package booking

import (
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"
)

// fakePage is an in-memory Page. Calls are recorded as "Method" or
// "Method selector". Behaviour is keyed the same way; a selector-specific key
// wins over a method-wide one.
type fakePage struct {
	mu    sync.Mutex
	calls []string

	// failures makes a call return the given error immediately.
	failures map[string]error
	// hangs makes a call block until its context is done, as a real wait would on timeout.
	hangs map[string]bool
	// occupied marks seat selectors whose availability check reports true.
	occupied map[string]bool

	png           []byte
	screenshotErr error
	closeErr      error
}

func newFakePage() *fakePage {
	return &fakePage{
		failures: make(map[string]error),
		hangs:    make(map[string]bool),
		occupied: make(map[string]bool),
		png:      []byte("\x89PNG fake"),
	}
}

func (f *fakePage) record(ctx context.Context, method, sel string) error {
	key := method
	if sel != "" {
		key = method + " " + sel
	}

	f.mu.Lock()
	f.calls = append(f.calls, key)
	err, failing := f.failures[key]
	if !failing {
		err, failing = f.failures[method]
	}
	hang := f.hangs[key] || f.hangs[method]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if failing {
		return err
	}
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	return f.record(ctx, "Navigate", url)
}

func (f *fakePage) WaitAttached(ctx context.Context, sel string) error {
	return f.record(ctx, "WaitAttached", sel)
}

func (f *fakePage) WaitVisible(ctx context.Context, sel string) error {
	return f.record(ctx, "WaitVisible", sel)
}

func (f *fakePage) WaitEnabled(ctx context.Context, sel string) error {
	return f.record(ctx, "WaitEnabled", sel)
}

func (f *fakePage) ScrollIntoView(ctx context.Context, sel string) error {
	return f.record(ctx, "ScrollIntoView", sel)
}

func (f *fakePage) Click(ctx context.Context, sel string) error {
	return f.record(ctx, "Click", sel)
}

func (f *fakePage) Evaluate(ctx context.Context, sel string, fn string, res interface{}) error {
	if err := f.record(ctx, "Evaluate", sel); err != nil {
		return err
	}
	out, ok := res.(*bool)
	if !ok {
		return errors.New("fakePage: Evaluate expects *bool")
	}
	f.mu.Lock()
	*out = f.occupied[sel]
	f.mu.Unlock()
	return nil
}

func (f *fakePage) WaitNetworkIdle(ctx context.Context) error {
	return f.record(ctx, "WaitNetworkIdle", "")
}

func (f *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := f.record(ctx, "Screenshot", ""); err != nil {
		return nil, err
	}
	if f.screenshotErr != nil {
		return nil, f.screenshotErr
	}
	return f.png, nil
}

func (f *fakePage) Close(ctx context.Context) error {
	if err := f.record(ctx, "Close", ""); err != nil {
		return err
	}
	return f.closeErr
}

func (f *fakePage) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePage) count(key string) int {
	n := 0
	for _, c := range f.recorded() {
		if c == key {
			n++
		}
	}
	return n
}

func (f *fakePage) indexOf(key string) int {
	for i, c := range f.recorded() {
		if c == key {
			return i
		}
	}
	return -1
}

// mockSaver mocks ScreenshotSaver.
type mockSaver struct {
	mock.Mock
}

func (m *mockSaver) Save(stage string, png []byte) (string, error) {
	args := m.Called(stage, png)
	return args.String(0), args.Error(1)
}
