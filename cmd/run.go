package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seatrunner/internal/artifacts"
	"github.com/xkilldash9x/seatrunner/internal/booking"
	"github.com/xkilldash9x/seatrunner/internal/browser"
	"github.com/xkilldash9x/seatrunner/internal/config"
)

// runBooking wires the screenshot store, the browser and the runner, and
// executes one run.
func runBooking(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*booking.Result, error) {
	screenshots := artifacts.NewScreenshotStore(cfg.Screenshots.Dir, logger)
	if err := screenshots.EnsureDir(); err != nil {
		return nil, fmt.Errorf("screenshot directory unusable: %w", err)
	}

	session, err := browser.Launch(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	runner, err := booking.NewRunner(session, screenshots, cfg, logger)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if closeErr := session.Close(closeCtx); closeErr != nil {
			logger.Warn("Error while closing the browser.", zap.Error(closeErr))
		}
		return nil, err
	}

	return runner.Run(ctx), nil
}
