package booking

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// occupiedCheck reports whether a seat element, or its immediate parent, is
// marked disabled or occupied.
const occupiedCheck = `function(el) {
	if (!el) {
		throw new Error("seat element not found");
	}
	const blocked = (n) =>
		n.classList.contains("disabled") ||
		n.classList.contains("seat-disabled") ||
		n.classList.contains("occupied") ||
		n.classList.contains("seat-occupied") ||
		n.hasAttribute("disabled");
	return blocked(el) || (el.parentElement !== null && blocked(el.parentElement));
}`

// leg is one direction of travel and the seat wanted on it.
type leg struct {
	name    string
	stage   Stage
	seatMap string
	seat    int
	// awaitSeatMapLoad waits for the network to settle before looking for the seat map.
	awaitSeatMapLoad bool
}

// selectSeat picks and confirms the seat for one leg. An occupied seat fails
// with ErrSeatUnavailable before anything is clicked.
func (r *Runner) selectSeat(ctx context.Context, l leg) error {
	t := r.timeouts
	log := r.logger.With(zap.String("leg", l.name), zap.Int("seat", l.seat))

	if l.awaitSeatMapLoad {
		if err := within(ctx, t.SeatMapLoad, r.page.WaitNetworkIdle); err != nil {
			return fmt.Errorf("network did not settle while loading the seat map: %w", err)
		}
	}

	if err := within(ctx, t.SeatMap, func(c context.Context) error { return r.page.WaitVisible(c, l.seatMap) }); err != nil {
		return fmt.Errorf("%s seat map not visible: %w", l.name, err)
	}
	log.Debug("Seat map visible.")

	seat := seatIn(l.seatMap, l.seat)
	if err := within(ctx, t.Seat, func(c context.Context) error { return r.page.WaitVisible(c, seat) }); err != nil {
		return fmt.Errorf("%s seat %d not found: %w", l.name, l.seat, err)
	}
	if err := within(ctx, t.Seat, func(c context.Context) error { return r.page.ScrollIntoView(c, seat) }); err != nil {
		return fmt.Errorf("failed to scroll to %s seat %d: %w", l.name, l.seat, err)
	}

	var occupied bool
	if err := within(ctx, t.Seat, func(c context.Context) error {
		return r.page.Evaluate(c, seat, occupiedCheck, &occupied)
	}); err != nil {
		return fmt.Errorf("failed to check availability of %s seat %d: %w", l.name, l.seat, err)
	}
	if occupied {
		return fmt.Errorf("%s seat %d: %w", l.name, l.seat, ErrSeatUnavailable)
	}

	if err := within(ctx, t.Seat, func(c context.Context) error { return r.page.Click(c, seat) }); err != nil {
		return fmt.Errorf("failed to click %s seat %d: %w", l.name, l.seat, err)
	}
	log.Info("Seat selected.")

	if err := within(ctx, t.Confirm, func(c context.Context) error { return r.page.WaitEnabled(c, confirmSeatButton) }); err != nil {
		return fmt.Errorf("%s seat confirmation not available: %w", l.name, err)
	}
	if err := within(ctx, t.Confirm, func(c context.Context) error { return r.page.Click(c, confirmSeatButton) }); err != nil {
		return fmt.Errorf("failed to confirm %s seat: %w", l.name, err)
	}
	log.Info("Seat confirmed.")

	if err := within(ctx, t.NetworkIdle, r.page.WaitNetworkIdle); err != nil {
		return fmt.Errorf("network did not settle after confirming %s seat: %w", l.name, err)
	}
	return nil
}
