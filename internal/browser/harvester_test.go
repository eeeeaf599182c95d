// internal/browser/harvester_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func requestSent(id, url string) *network.EventRequestWillBeSent {
	return &network.EventRequestWillBeSent{
		RequestID: network.RequestID(id),
		Request:   &network.Request{URL: url},
	}
}

func TestHarvester_TracksInflightRequests(t *testing.T) {
	h := NewHarvester(context.Background(), zaptest.NewLogger(t))

	h.handle(requestSent("1", "https://queropassagem.com.br/onibus"))
	h.handle(requestSent("2", "https://queropassagem.com.br/api/poltronas"))
	assert.Equal(t, 2, h.Inflight())

	// A redirect keeps the same ID in flight.
	h.handle(requestSent("1", "https://www.queropassagem.com.br/onibus"))
	assert.Equal(t, 2, h.Inflight())

	h.handle(&network.EventLoadingFinished{RequestID: "1"})
	h.handle(&network.EventLoadingFailed{RequestID: "2"})
	assert.Zero(t, h.Inflight())

	// Unknown IDs are ignored.
	h.handle(&network.EventLoadingFinished{RequestID: "99"})
	assert.Zero(t, h.Inflight())
}

func TestHarvester_WaitNetworkIdle(t *testing.T) {
	t.Run("idle page returns after the quiet period", func(t *testing.T) {
		h := NewHarvester(context.Background(), zaptest.NewLogger(t))
		quiet := 40 * time.Millisecond

		start := time.Now()
		require.NoError(t, h.WaitNetworkIdle(context.Background(), quiet))
		assert.GreaterOrEqual(t, time.Since(start), quiet)
	})

	t.Run("waits for in flight requests to finish", func(t *testing.T) {
		h := NewHarvester(context.Background(), zaptest.NewLogger(t))
		h.handle(requestSent("seat-map", "https://queropassagem.com.br/api/mapa"))

		go func() {
			time.Sleep(60 * time.Millisecond)
			h.handle(&network.EventLoadingFinished{RequestID: "seat-map"})
		}()

		start := time.Now()
		require.NoError(t, h.WaitNetworkIdle(context.Background(), 30*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
		assert.Zero(t, h.Inflight())
	})

	t.Run("stuck request hits the deadline", func(t *testing.T) {
		h := NewHarvester(context.Background(), zaptest.NewLogger(t))
		h.handle(requestSent("long-poll", "https://queropassagem.com.br/socket"))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := h.WaitNetworkIdle(ctx, 20*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, h.Inflight())
	})

	t.Run("zero quiet period still polls", func(t *testing.T) {
		h := NewHarvester(context.Background(), zaptest.NewLogger(t))
		assert.NoError(t, h.WaitNetworkIdle(context.Background(), 0))
	})
}

func TestHarvester_LogsPageExceptions(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := NewHarvester(context.Background(), zap.New(core))

	h.handle(&runtime.EventExceptionThrown{ExceptionDetails: &runtime.ExceptionDetails{
		Text:      "Uncaught",
		URL:       "https://queropassagem.com.br/app.js",
		Exception: &runtime.RemoteObject{Description: "TypeError: x is undefined"},
	}})
	h.handle(&runtime.EventExceptionThrown{})

	entries := logs.FilterMessage("Uncaught page exception.").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "TypeError: x is undefined", entries[0].ContextMap()["text"])
	assert.Equal(t, "harvester", entries[0].LoggerName)
}

func TestHarvester_StopIsIdempotent(t *testing.T) {
	h := NewHarvester(context.Background(), zaptest.NewLogger(t))
	assert.NotPanics(t, func() {
		h.Stop()
		h.Stop()
	})
}
