package booking

import (
	"errors"
	"fmt"
	"time"
)

// Stage names a fallible step of the flow. It labels logs, errors and screenshot files.
type Stage string

const (
	StageNavigate          Stage = "navigate"
	StageOutboundDeparture Stage = "outbound_departure"
	StageOutboundSeat      Stage = "outbound_seat"
	StageReturnSeat        Stage = "return_seat"
	StageCheckout          Stage = "checkout"
)

// ErrSeatUnavailable is returned when the requested seat is marked disabled or occupied.
var ErrSeatUnavailable = errors.New("seat unavailable")

// StepError is the failure of a single stage.
type StepError struct {
	Stage Stage
	Err   error
	// Screenshot is the path of the diagnostic screenshot, empty if none could be taken.
	Screenshot string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Result describes how far a run got.
type Result struct {
	RunID     string
	URL       string
	Completed []Stage
	// CheckoutLocated is the terminal success signal. The checkout control is never clicked.
	CheckoutLocated bool
	Failure         *StepError
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Succeeded reports whether the run reached the checkout control without failing.
func (r *Result) Succeeded() bool {
	return r.Failure == nil && r.CheckoutLocated
}

// Err returns the failure as an error, or nil for a successful run.
func (r *Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}
