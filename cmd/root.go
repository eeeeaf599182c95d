// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seatrunner/internal/booking"
	"github.com/xkilldash9x/seatrunner/internal/config"
	"github.com/xkilldash9x/seatrunner/internal/observability"
)

// runFunc executes one booking run. It returns an error only when the run
// could not be set up; a flow failure is reported in the Result.
type runFunc func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*booking.Result, error)

// flagBindings maps command line flags to their configuration keys.
var flagBindings = map[string]string{
	"origin":         "trip.origin",
	"destination":    "trip.destination",
	"date":           "trip.departure_date",
	"return-date":    "trip.return_date",
	"departure-time": "trip.departure_time",
	"outbound-seat":  "trip.outbound_seat",
	"return-seat":    "trip.return_seat",
	"headless":       "browser.headless",
	"screenshot-dir": "screenshots.dir",
	"log-level":      "logger.level",
}

// NewRootCommand builds a fresh seatrunner command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	return newRootCommand(runBooking)
}

func newRootCommand(run runFunc) *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)
	defaults := config.NewDefaultConfig()

	var (
		cfgFile string
		cfg     *config.Config
	)

	rootCmd := &cobra.Command{
		Use:   "seatrunner",
		Short: "Books a bus trip on queropassagem.com.br up to the checkout page.",
		Long: `seatrunner opens the search results for a trip, picks the departure,
selects the outbound and return seats and stops once the checkout control is
visible. Payment is never attempted.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}
			root := cmd.Root()
			for name, key := range flagBindings {
				flag := root.Flags().Lookup(name)
				if flag == nil {
					flag = root.PersistentFlags().Lookup(name)
				}
				if err := v.BindPFlag(key, flag); err != nil {
					return fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}

			loaded, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(defaults.Logger)
				return err
			}
			observability.InitializeLogger(loaded.Logger)
			cfg = loaded

			observability.GetLogger().Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()),
			)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := run(cmd.Context(), cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			printSummary(cmd, res)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", defaults.Logger.Level, "log level (debug, info, warn, error)")

	flags := rootCmd.Flags()
	flags.String("origin", defaults.Trip.Origin, "origin city slug")
	flags.String("destination", defaults.Trip.Destination, "destination city slug")
	flags.String("date", defaults.Trip.DepartureDate, "departure date (YYYY-MM-DD)")
	flags.String("return-date", defaults.Trip.ReturnDate, "return date (YYYY-MM-DD, defaults to the departure date)")
	flags.String("departure-time", defaults.Trip.DepartureTime, "outbound departure time (HH:MM, site local time)")
	flags.Int("outbound-seat", defaults.Trip.OutboundSeat, "outbound seat number")
	flags.Int("return-seat", defaults.Trip.ReturnSeat, "return seat number, 0 for a one-way run")
	flags.Bool("headless", defaults.Browser.Headless, "run the browser without a window")
	flags.String("screenshot-dir", defaults.Screenshots.Dir, "directory for failure screenshots")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the root command with ctx and logs any setup error.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads in the config file and ENV variables if set.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SEATRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults, env vars and flags apply.
	}
	return nil
}

func printSummary(cmd *cobra.Command, res *booking.Result) {
	out := cmd.OutOrStdout()
	if res.Succeeded() {
		fmt.Fprintf(out, "Checkout reached for run %s. Payment was not attempted.\n", res.RunID)
		return
	}
	fmt.Fprintf(out, "Run %s failed at stage %s: %v\n", res.RunID, res.Failure.Stage, res.Failure.Err)
	if res.Failure.Screenshot != "" {
		fmt.Fprintf(out, "Screenshot: %s\n", res.Failure.Screenshot)
	}
}
