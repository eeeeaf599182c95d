package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// step runs op as stage. On failure it captures one screenshot labelled with
// the stage and returns the failure as a *StepError.
func (r *Runner) step(ctx context.Context, stage Stage, op func(context.Context) error) *StepError {
	log := r.logger.With(zap.String("stage", string(stage)))
	log.Info("Stage started.")
	start := r.now()

	err := op(ctx)
	if err == nil {
		log.Info("Stage completed.", zap.Duration("elapsed", r.now().Sub(start)))
		return nil
	}

	stepErr := &StepError{Stage: stage, Err: err}
	stepErr.Screenshot = r.captureScreenshot(ctx, stage)
	log.Error("Stage failed.",
		zap.Error(err),
		zap.String("screenshot", stepErr.Screenshot),
		zap.Duration("elapsed", r.now().Sub(start)),
	)
	return stepErr
}

// captureScreenshot returns the saved path, or "" if the capture failed. The
// capture outlives cancellation of ctx so an interrupted run still leaves a picture.
func (r *Runner) captureScreenshot(ctx context.Context, stage Stage) string {
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeouts.Screenshot)
	defer cancel()

	png, err := r.page.Screenshot(shotCtx)
	if err != nil {
		r.logger.Warn("Could not capture screenshot.", zap.String("stage", string(stage)), zap.Error(err))
		return ""
	}
	path, err := r.screenshots.Save(string(stage), png)
	if err != nil {
		r.logger.Warn("Could not save screenshot.", zap.String("stage", string(stage)), zap.Error(err))
		return ""
	}
	return path
}

// within runs op with a deadline of d derived from ctx. A deadline hit is
// reported as a timeout naming d.
func within(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := op(opCtx)
	if err != nil && ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", d, err)
	}
	return err
}
