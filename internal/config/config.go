// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Trip        TripConfig       `mapstructure:"trip" yaml:"trip"`
	Timeouts    TimeoutConfig    `mapstructure:"timeouts" yaml:"timeouts"`
	Screenshots ScreenshotConfig `mapstructure:"screenshots" yaml:"screenshots"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless  bool           `mapstructure:"headless" yaml:"headless"`
	Args      []string       `mapstructure:"args" yaml:"args"`
	Viewport  map[string]int `mapstructure:"viewport" yaml:"viewport"`
	UserAgent string         `mapstructure:"user_agent" yaml:"user_agent"`
	Locale    string         `mapstructure:"locale" yaml:"locale"`
	// Linger is how long the browser stays up after the flow ends, before it is closed.
	Linger time.Duration `mapstructure:"linger" yaml:"linger"`
	// QuietPeriod is how long the page must go without in-flight requests to count as network idle.
	QuietPeriod time.Duration `mapstructure:"quiet_period" yaml:"quiet_period"`
	Debug       bool          `mapstructure:"debug" yaml:"debug"`
}

// TripConfig describes the trip being booked. Dates use the 2006-01-02 layout
// and the departure time uses 15:04, both interpreted in Timezone.
type TripConfig struct {
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	Origin        string `mapstructure:"origin" yaml:"origin"`
	Destination   string `mapstructure:"destination" yaml:"destination"`
	DepartureDate string `mapstructure:"departure_date" yaml:"departure_date"`
	ReturnDate    string `mapstructure:"return_date" yaml:"return_date"`
	DepartureTime string `mapstructure:"departure_time" yaml:"departure_time"`
	Timezone      string `mapstructure:"timezone" yaml:"timezone"`
	OutboundSeat  int    `mapstructure:"outbound_seat" yaml:"outbound_seat"`
	// ReturnSeat of zero runs the flow one way.
	ReturnSeat int `mapstructure:"return_seat" yaml:"return_seat"`
	// ReturnSeatMap overrides the XPath used to find the return seat map container.
	ReturnSeatMap string `mapstructure:"return_seat_map" yaml:"return_seat_map"`
}

// TimeoutConfig bounds every wait in the booking flow.
type TimeoutConfig struct {
	Navigation    time.Duration `mapstructure:"navigation" yaml:"navigation"`
	CookieBanner  time.Duration `mapstructure:"cookie_banner" yaml:"cookie_banner"`
	CookieSettle  time.Duration `mapstructure:"cookie_settle" yaml:"cookie_settle"`
	NetworkIdle   time.Duration `mapstructure:"network_idle" yaml:"network_idle"`
	DepartureRow  time.Duration `mapstructure:"departure_row" yaml:"departure_row"`
	ChooseButton  time.Duration `mapstructure:"choose_button" yaml:"choose_button"`
	SeatMapLoad   time.Duration `mapstructure:"seat_map_load" yaml:"seat_map_load"`
	SeatMap       time.Duration `mapstructure:"seat_map" yaml:"seat_map"`
	Seat          time.Duration `mapstructure:"seat" yaml:"seat"`
	Confirm       time.Duration `mapstructure:"confirm" yaml:"confirm"`
	Checkout      time.Duration `mapstructure:"checkout" yaml:"checkout"`
	Screenshot    time.Duration `mapstructure:"screenshot" yaml:"screenshot"`
	BrowserLaunch time.Duration `mapstructure:"browser_launch" yaml:"browser_launch"`
}

// ScreenshotConfig controls where failure screenshots are written.
type ScreenshotConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
	// The site expects dates as DD/MM/YYYY in the query string.
	siteDateLayout = "02/01/2006"
)

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "seatrunner")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport", map[string]int{"width": 1366, "height": 900})
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.locale", "pt-BR")
	v.SetDefault("browser.linger", "5s")
	v.SetDefault("browser.quiet_period", "500ms")
	v.SetDefault("browser.debug", false)

	// -- Trip --
	v.SetDefault("trip.base_url", "https://queropassagem.com.br")
	v.SetDefault("trip.origin", "cruzeiro-sp")
	v.SetDefault("trip.destination", "sao-paulo-sp")
	v.SetDefault("trip.departure_date", "2025-04-16")
	// Empty follows the departure date.
	v.SetDefault("trip.return_date", "")
	v.SetDefault("trip.departure_time", "06:15")
	v.SetDefault("trip.timezone", "America/Sao_Paulo")
	v.SetDefault("trip.outbound_seat", 11)
	v.SetDefault("trip.return_seat", 15)
	v.SetDefault("trip.return_seat_map", "")

	// -- Timeouts --
	v.SetDefault("timeouts.navigation", "60s")
	v.SetDefault("timeouts.cookie_banner", "5s")
	v.SetDefault("timeouts.cookie_settle", "1s")
	v.SetDefault("timeouts.network_idle", "45s")
	v.SetDefault("timeouts.departure_row", "30s")
	v.SetDefault("timeouts.choose_button", "10s")
	v.SetDefault("timeouts.seat_map_load", "90s")
	v.SetDefault("timeouts.seat_map", "60s")
	v.SetDefault("timeouts.seat", "15s")
	v.SetDefault("timeouts.confirm", "15s")
	v.SetDefault("timeouts.checkout", "45s")
	v.SetDefault("timeouts.screenshot", "10s")
	v.SetDefault("timeouts.browser_launch", "60s")

	// -- Screenshots --
	v.SetDefault("screenshots.dir", "screenshots")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Trip.Validate(); err != nil {
		return fmt.Errorf("trip configuration invalid: %w", err)
	}
	if c.Screenshots.Dir == "" {
		return fmt.Errorf("screenshots.dir must not be empty")
	}
	if c.Browser.QuietPeriod <= 0 {
		return fmt.Errorf("browser.quiet_period must be a positive duration")
	}
	if c.Browser.Linger < 0 {
		return fmt.Errorf("browser.linger must not be negative")
	}
	if err := c.Timeouts.Validate(); err != nil {
		return fmt.Errorf("timeouts configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the trip settings and that every derived value can be built.
func (t *TripConfig) Validate() error {
	if t.Origin == "" || t.Destination == "" {
		return fmt.Errorf("origin and destination are required")
	}
	if t.OutboundSeat <= 0 {
		return fmt.Errorf("outbound_seat must be a positive integer")
	}
	if t.ReturnSeat < 0 {
		return fmt.Errorf("return_seat must not be negative")
	}
	if _, err := t.URL(); err != nil {
		return err
	}
	if _, err := t.DepartureKey(); err != nil {
		return err
	}
	return nil
}

// Validate checks that every timeout is positive.
func (t *TimeoutConfig) Validate() error {
	named := map[string]time.Duration{
		"navigation":     t.Navigation,
		"cookie_banner":  t.CookieBanner,
		"network_idle":   t.NetworkIdle,
		"departure_row":  t.DepartureRow,
		"choose_button":  t.ChooseButton,
		"seat_map_load":  t.SeatMapLoad,
		"seat_map":       t.SeatMap,
		"seat":           t.Seat,
		"confirm":        t.Confirm,
		"checkout":       t.Checkout,
		"screenshot":     t.Screenshot,
		"browser_launch": t.BrowserLaunch,
	}
	for name, d := range named {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if t.CookieSettle < 0 {
		return fmt.Errorf("cookie_settle must not be negative")
	}
	return nil
}

// OneWay reports whether the return leg is skipped.
func (t *TripConfig) OneWay() bool {
	return t.ReturnSeat == 0
}

// URL builds the search-results URL for the trip.
func (t *TripConfig) URL() (string, error) {
	base, err := url.Parse(t.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("base_url must be an absolute URL: %q", t.BaseURL)
	}
	departure, err := time.Parse(dateLayout, t.DepartureDate)
	if err != nil {
		return "", fmt.Errorf("departure_date %q: %w", t.DepartureDate, err)
	}
	// The site requires chegada even for one-way searches; it defaults to the departure date.
	returning := departure
	if t.ReturnDate != "" {
		returning, err = time.Parse(dateLayout, t.ReturnDate)
		if err != nil {
			return "", fmt.Errorf("return_date %q: %w", t.ReturnDate, err)
		}
	}
	if returning.Before(departure) {
		return "", fmt.Errorf("return_date %s is before departure_date %s", t.ReturnDate, t.DepartureDate)
	}

	base.Path = strings.TrimRight(base.Path, "/") + "/onibus/" + t.Origin + "-para-" + t.Destination
	// Slashes in the dates are kept literal; the site does not decode %2F.
	base.RawQuery = "partida=" + departure.Format(siteDateLayout) + "&chegada=" + returning.Format(siteDateLayout)
	return base.String(), nil
}

// DepartureKey returns the timestamp the site stores in the data attribute of
// the departure row, e.g. 2025-04-16T06:15:00-03:00.
func (t *TripConfig) DepartureKey() (string, error) {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return "", fmt.Errorf("timezone %q: %w", t.Timezone, err)
	}
	departure, err := time.ParseInLocation(dateLayout+" "+timeLayout, t.DepartureDate+" "+t.DepartureTime, loc)
	if err != nil {
		return "", fmt.Errorf("departure %q %q: %w", t.DepartureDate, t.DepartureTime, err)
	}
	return departure.Format(time.RFC3339), nil
}
