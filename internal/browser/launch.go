// internal/browser/launch.go
package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seatrunner/internal/browser/stealth"
	"github.com/xkilldash9x/seatrunner/internal/config"
)

const cleanupTimeout = 10 * time.Second

// Launch starts a Chrome process with a single tab configured from cfg and
// returns it as a Session. ctx bounds the launch only; the browser lives
// until Session.Close so that a cancelled run can still be photographed.
func Launch(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	log := logger.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(cfg.Browser)...)

	sugar := log.Sugar()
	tabOpts := []chromedp.ContextOption{
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Warnf),
	}
	if cfg.Browser.Debug {
		tabOpts = append(tabOpts, chromedp.WithDebugf(sugar.Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, tabOpts...)

	s := newSession(tabCtx, tabCancel, allocCancel, cfg.Browser.QuietPeriod, log)

	launchCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.BrowserLaunch)
	defer cancel()

	if err := s.initialize(launchCtx, PersonaFor(cfg)); err != nil {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cleanupCancel()
		if closeErr := s.Close(cleanupCtx); closeErr != nil {
			log.Warn("Error while cleaning up after a failed launch.", zap.Error(closeErr))
		}
		return nil, err
	}

	log.Info("Browser launched.", zap.Bool("headless", cfg.Browser.Headless), zap.String("session_id", s.ID()))
	return s, nil
}

func (s *Session) initialize(ctx context.Context, persona stealth.Persona) error {
	if err := s.start(ctx); err != nil {
		return err
	}
	if err := s.harvester.Start(ctx); err != nil {
		return fmt.Errorf("failed to start harvester: %w", err)
	}
	if err := s.run(ctx, stealth.Apply(persona, s.logger)); err != nil {
		return fmt.Errorf("failed to apply browser persona: %w", err)
	}
	return nil
}

// PersonaFor derives the stealth persona from the browser and trip settings.
func PersonaFor(cfg *config.Config) stealth.Persona {
	p := stealth.DefaultPersona
	if cfg.Browser.UserAgent != "" {
		p.UserAgent = cfg.Browser.UserAgent
	}
	if cfg.Browser.Locale != "" {
		p.Locale = cfg.Browser.Locale
		lang, _, _ := strings.Cut(cfg.Browser.Locale, "-")
		p.Languages = []string{cfg.Browser.Locale}
		if lang != cfg.Browser.Locale {
			p.Languages = append(p.Languages, lang)
		}
	}
	if cfg.Trip.Timezone != "" {
		p.Timezone = cfg.Trip.Timezone
	}
	if w, h := cfg.Browser.Viewport["width"], cfg.Browser.Viewport["height"]; w > 0 && h > 0 {
		p.Width, p.Height = w, h
	}
	return p
}

// AllocatorOptions translates the browser config into chromedp allocator options.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := allocatorFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	return opts
}

// allocatorFlags returns the command line flags layered over chromedp's
// defaults. A false value removes a default flag.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":              cfg.Headless,
		"no-sandbox":            true,
		"disable-gpu":           true,
		"disable-dev-shm-usage": true,
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", w, h)
	}
	if cfg.UserAgent != "" {
		flags["user-agent"] = cfg.UserAgent
	}
	if cfg.Locale != "" {
		flags["lang"] = cfg.Locale
	}

	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			flags[key] = value
		} else {
			flags[key] = true
		}
	}
	return flags
}
