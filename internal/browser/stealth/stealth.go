// internal/browser/stealth/stealth.go
package stealth

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// evasionsScript is a function expression; Script applies it to the persona.
//
//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Timezone  string
	Locale    string
	Width     int
	Height    int
}

// DefaultPersona is a desktop Chrome user in Brazil.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"pt-BR", "pt"},
	Timezone:  "America/Sao_Paulo",
	Locale:    "pt-BR",
	Width:     1366,
	Height:    900,
}

// Script returns the evasion script bound to p, ready to run on a new document.
func Script(p Persona) (string, error) {
	args, err := json.Marshal(struct {
		Languages []string `json:"languages"`
		Platform  string   `json:"platform"`
	}{p.Languages, p.Platform})
	if err != nil {
		return "", fmt.Errorf("failed to encode persona: %w", err)
	}
	return strings.TrimSpace(evasionsScript) + "(" + string(args) + ");", nil
}

// AcceptLanguage renders the persona's languages as an Accept-Language header value.
func (p Persona) AcceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// Apply constructs the CDP actions that make the headless browser look like
// the persona. Empty persona fields are left at the browser's defaults.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("locale", p.Locale),
		zap.String("timezone", p.Timezone),
	)

	var tasks chromedp.Tasks

	if p.UserAgent != "" {
		ua := emulation.SetUserAgentOverride(p.UserAgent).WithPlatform(p.Platform)
		if len(p.Languages) > 0 {
			ua = ua.WithAcceptLanguage(p.AcceptLanguage())
		}
		tasks = append(tasks, ua)
	}

	// Do() returns the script identifier too, so it needs an ActionFunc wrapper.
	tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
		script, err := Script(p)
		if err != nil {
			return err
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("failed to inject evasions script: %w", err)
		}
		return nil
	}))

	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if len(p.Languages) > 0 {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": p.AcceptLanguage(),
		}))
	}
	if p.Width > 0 && p.Height > 0 {
		tasks = append(tasks, chromedp.EmulateViewport(int64(p.Width), int64(p.Height)))
	}
	return tasks
}
