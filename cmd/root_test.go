// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seatrunner/internal/booking"
	"github.com/xkilldash9x/seatrunner/internal/config"
	"github.com/xkilldash9x/seatrunner/internal/observability"
)

// capturingRun records the config it was given and returns a canned result.
type capturingRun struct {
	cfg    *config.Config
	result *booking.Result
	err    error
	calls  int
}

func (c *capturingRun) run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*booking.Result, error) {
	c.calls++
	c.cfg = cfg
	return c.result, c.err
}

func executeRoot(t *testing.T, run runFunc, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	// Keep any ./config.yaml in the package directory out of the test.
	t.Chdir(t.TempDir())

	rootCmd := newRootCommand(run)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_DefaultScenario(t *testing.T) {
	rec := &capturingRun{result: &booking.Result{RunID: "run-1", CheckoutLocated: true}}

	out, err := executeRoot(t, rec.run, "--log-level", "error")

	require.NoError(t, err)
	require.Equal(t, 1, rec.calls)
	assert.Equal(t, "cruzeiro-sp", rec.cfg.Trip.Origin)
	assert.Equal(t, "sao-paulo-sp", rec.cfg.Trip.Destination)
	assert.Equal(t, 11, rec.cfg.Trip.OutboundSeat)
	assert.Equal(t, 15, rec.cfg.Trip.ReturnSeat)
	assert.Equal(t, "error", rec.cfg.Logger.Level)
	assert.Contains(t, out, "Checkout reached for run run-1")
}

func TestRootCmd_FlagsOverrideConfig(t *testing.T) {
	rec := &capturingRun{result: &booking.Result{RunID: "run-2", CheckoutLocated: true}}

	_, err := executeRoot(t, rec.run,
		"--origin", "campinas-sp",
		"--destination", "santos-sp",
		"--date", "2025-05-02",
		"--return-date", "2025-05-04",
		"--departure-time", "22:30",
		"--outbound-seat", "3",
		"--return-seat", "0",
		"--headless=false",
		"--screenshot-dir", "shots",
	)

	require.NoError(t, err)
	trip := rec.cfg.Trip
	assert.Equal(t, "campinas-sp", trip.Origin)
	assert.Equal(t, "santos-sp", trip.Destination)
	assert.Equal(t, "2025-05-02", trip.DepartureDate)
	assert.Equal(t, "2025-05-04", trip.ReturnDate)
	assert.Equal(t, "22:30", trip.DepartureTime)
	assert.Equal(t, 3, trip.OutboundSeat)
	assert.True(t, trip.OneWay())
	assert.False(t, rec.cfg.Browser.Headless)
	assert.Equal(t, "shots", rec.cfg.Screenshots.Dir)
}

func TestRootCmd_DepartureDateAlone(t *testing.T) {
	rec := &capturingRun{result: &booking.Result{CheckoutLocated: true}}

	_, err := executeRoot(t, rec.run, "--date", "2025-05-02")

	require.NoError(t, err)
	require.Equal(t, 1, rec.calls)
	assert.Empty(t, rec.cfg.Trip.ReturnDate)
	got, err := rec.cfg.Trip.URL()
	require.NoError(t, err)
	assert.Contains(t, got, "partida=02/05/2025&chegada=02/05/2025")
}

func TestRootCmd_ConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trip.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
trip:
  origin: taubate-sp
  outbound_seat: 7
timeouts:
  checkout: 5s
`), 0o600))
	t.Setenv("SEATRUNNER_TRIP_RETURN_SEAT", "21")

	rec := &capturingRun{result: &booking.Result{CheckoutLocated: true}}
	_, err := executeRoot(t, rec.run, "--config", path, "--outbound-seat", "9")

	require.NoError(t, err)
	assert.Equal(t, "taubate-sp", rec.cfg.Trip.Origin)
	// Flags beat the file.
	assert.Equal(t, 9, rec.cfg.Trip.OutboundSeat)
	assert.Equal(t, 21, rec.cfg.Trip.ReturnSeat)
	assert.Equal(t, "5s", rec.cfg.Timeouts.Checkout.String())
}

func TestRootCmd_InvalidConfigIsASetupError(t *testing.T) {
	rec := &capturingRun{}

	_, err := executeRoot(t, rec.run, "--date", "16/04/2025")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Zero(t, rec.calls)
}

func TestRootCmd_MissingConfigFile(t *testing.T) {
	_, err := executeRoot(t, (&capturingRun{}).run, "--config", filepath.Join(t.TempDir(), "absent.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestRootCmd_FlowFailureIsNotACommandError(t *testing.T) {
	rec := &capturingRun{result: &booking.Result{
		RunID: "run-3",
		Failure: &booking.StepError{
			Stage:      booking.StageOutboundSeat,
			Err:        booking.ErrSeatUnavailable,
			Screenshot: "screenshots/outbound_seat_20250416_061500.png",
		},
	}}

	out, err := executeRoot(t, rec.run)

	require.NoError(t, err)
	assert.Contains(t, out, "Run run-3 failed at stage outbound_seat: seat unavailable")
	assert.Contains(t, out, "Screenshot: screenshots/outbound_seat_20250416_061500.png")
}

func TestRootCmd_SetupErrorPropagates(t *testing.T) {
	rec := &capturingRun{err: errors.New("failed to launch browser: exec: \"google-chrome\": not found")}

	_, err := executeRoot(t, rec.run)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to launch browser")
}

func TestRootCmd_RejectsPositionalArgs(t *testing.T) {
	rec := &capturingRun{}
	_, err := executeRoot(t, rec.run, "cruzeiro-sp")
	require.Error(t, err)
	assert.Zero(t, rec.calls)
}

func TestVersion(t *testing.T) {
	original := Version
	Version = "1.2.3"
	t.Cleanup(func() { Version = original })

	t.Run("subcommand", func(t *testing.T) {
		rec := &capturingRun{}
		out, err := executeRoot(t, rec.run, "version")
		require.NoError(t, err)
		assert.Equal(t, "seatrunner 1.2.3\n", out)
		assert.Zero(t, rec.calls)
	})

	t.Run("flag", func(t *testing.T) {
		out, err := executeRoot(t, (&capturingRun{}).run, "--version")
		require.NoError(t, err)
		assert.Equal(t, "1.2.3\n", out)
	})
}
