package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seatrunner/internal/config"
)

// closeTimeout bounds browser teardown.
const closeTimeout = 10 * time.Second

// Runner executes the booking flow against a Page. A Runner is single use.
type Runner struct {
	page        Page
	screenshots ScreenshotSaver
	logger      *zap.Logger
	timeouts    config.TimeoutConfig
	linger      time.Duration

	runID        string
	url          string
	departureKey string
	legs         []leg

	// Overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewRunner prepares a run of the flow described by cfg. It fails only when
// the trip cannot be turned into a URL and departure key.
func NewRunner(page Page, screenshots ScreenshotSaver, cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	url, err := cfg.Trip.URL()
	if err != nil {
		return nil, fmt.Errorf("failed to build trip URL: %w", err)
	}
	key, err := cfg.Trip.DepartureKey()
	if err != nil {
		return nil, fmt.Errorf("failed to build departure key: %w", err)
	}

	runID := uuid.New().String()
	r := &Runner{
		page:         page,
		screenshots:  screenshots,
		logger:       logger.Named("booking").With(zap.String("run_id", runID)),
		timeouts:     cfg.Timeouts,
		linger:       cfg.Browser.Linger,
		runID:        runID,
		url:          url,
		departureKey: key,
		sleep:        sleepContext,
		now:          time.Now,
	}

	r.legs = []leg{{
		name:             "outbound",
		stage:            StageOutboundSeat,
		seatMap:          outboundSeatMap,
		seat:             cfg.Trip.OutboundSeat,
		awaitSeatMapLoad: true,
	}}
	if !cfg.Trip.OneWay() {
		returnMap := defaultReturnSeatMap
		if cfg.Trip.ReturnSeatMap != "" {
			returnMap = cfg.Trip.ReturnSeatMap
		}
		r.legs = append(r.legs, leg{
			name:    "return",
			stage:   StageReturnSeat,
			seatMap: returnMap,
			seat:    cfg.Trip.ReturnSeat,
		})
	}
	return r, nil
}

// RunID identifies this run in logs.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes every stage in order and stops at the first failure. The
// browser is always closed before Run returns. Failures are reported in the
// Result, never as a panic or a returned error.
func (r *Runner) Run(ctx context.Context) *Result {
	res := &Result{
		RunID:     r.runID,
		URL:       r.url,
		StartedAt: r.now(),
	}
	r.logger.Info("Starting booking run.",
		zap.String("url", r.url),
		zap.String("departure", r.departureKey),
		zap.Int("legs", len(r.legs)),
	)

	res.Failure = r.execute(ctx, res)
	r.teardown(ctx)
	res.FinishedAt = r.now()

	if res.Failure != nil {
		r.logger.Error("Booking run failed.",
			zap.String("stage", string(res.Failure.Stage)),
			zap.Error(res.Failure.Err),
			zap.String("screenshot", res.Failure.Screenshot),
			zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
		)
		return res
	}
	r.logger.Info("Booking run reached checkout; payment was not attempted.",
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res
}

// plannedStage pairs a stage label with the work it performs.
type plannedStage struct {
	stage Stage
	op    func(context.Context) error
}

func (r *Runner) plan() []plannedStage {
	stages := []plannedStage{
		{StageNavigate, r.navigate},
		{StageOutboundDeparture, r.chooseDeparture},
	}
	for _, l := range r.legs {
		stages = append(stages, plannedStage{l.stage, func(ctx context.Context) error { return r.selectSeat(ctx, l) }})
	}
	return append(stages, plannedStage{StageCheckout, r.locateCheckout})
}

func (r *Runner) execute(ctx context.Context, res *Result) *StepError {
	for _, s := range r.plan() {
		if err := r.step(ctx, s.stage, s.op); err != nil {
			return err
		}
		res.Completed = append(res.Completed, s.stage)
	}
	res.CheckoutLocated = true
	return nil
}

func (r *Runner) navigate(ctx context.Context) error {
	t := r.timeouts
	if err := within(ctx, t.Navigation, func(c context.Context) error { return r.page.Navigate(c, r.url) }); err != nil {
		return fmt.Errorf("failed to load %s: %w", r.url, err)
	}
	r.logger.Debug("Page loaded.")

	r.dismissCookieBanner(ctx)

	if err := within(ctx, t.NetworkIdle, r.page.WaitNetworkIdle); err != nil {
		return fmt.Errorf("network did not settle after page load: %w", err)
	}
	return nil
}

// dismissCookieBanner clicks the consent button if one shows up quickly.
// Any failure means the banner is absent and is not propagated.
func (r *Runner) dismissCookieBanner(ctx context.Context) {
	err := within(ctx, r.timeouts.CookieBanner, func(c context.Context) error {
		return r.page.Click(c, cookieAcceptButton)
	})
	if err != nil {
		r.logger.Warn("Cookie banner not dismissed; assuming it is absent.", zap.Error(err))
		return
	}
	r.logger.Info("Cookie banner dismissed.")
	if err := r.sleep(ctx, r.timeouts.CookieSettle); err != nil {
		r.logger.Debug("Cookie banner settle pause interrupted.", zap.Error(err))
	}
}

func (r *Runner) chooseDeparture(ctx context.Context) error {
	t := r.timeouts
	row := departureRow(r.departureKey)
	button := chooseOutboundButton(r.departureKey)

	if err := within(ctx, t.DepartureRow, func(c context.Context) error { return r.page.WaitAttached(c, row) }); err != nil {
		return fmt.Errorf("departure row %s not found: %w", r.departureKey, err)
	}
	if err := within(ctx, t.DepartureRow, func(c context.Context) error { return r.page.ScrollIntoView(c, row) }); err != nil {
		return fmt.Errorf("failed to scroll to departure row %s: %w", r.departureKey, err)
	}
	if err := within(ctx, t.ChooseButton, func(c context.Context) error { return r.page.WaitEnabled(c, button) }); err != nil {
		return fmt.Errorf("choose button for departure %s not enabled: %w", r.departureKey, err)
	}
	if err := within(ctx, t.ChooseButton, func(c context.Context) error { return r.page.Click(c, button) }); err != nil {
		return fmt.Errorf("failed to choose departure %s: %w", r.departureKey, err)
	}
	r.logger.Info("Departure chosen.", zap.String("departure", r.departureKey))
	return nil
}

// locateCheckout waits for the payment control to show up. It is never clicked.
func (r *Runner) locateCheckout(ctx context.Context) error {
	if err := within(ctx, r.timeouts.Checkout, func(c context.Context) error {
		return r.page.WaitVisible(c, checkoutButton)
	}); err != nil {
		return fmt.Errorf("checkout control not found: %w", err)
	}
	r.logger.Info("Checkout control located; stopping before payment.")
	return nil
}

// teardown lingers briefly and then closes the browser, whatever the outcome.
func (r *Runner) teardown(ctx context.Context) {
	if r.linger > 0 && ctx.Err() == nil {
		r.logger.Debug("Lingering before closing the browser.", zap.Duration("linger", r.linger))
		_ = r.sleep(ctx, r.linger)
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := r.page.Close(closeCtx); err != nil {
		r.logger.Warn("Error while closing the browser.", zap.Error(err))
		return
	}
	r.logger.Debug("Browser closed.")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
