// internal/browser/launch_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/seatrunner/internal/browser/stealth"
	"github.com/xkilldash9x/seatrunner/internal/config"
)

func TestAllocatorFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		flags := allocatorFlags(config.NewDefaultConfig().Browser)

		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, true, flags["no-sandbox"])
		assert.Equal(t, true, flags["disable-dev-shm-usage"])
		assert.Equal(t, "1366,900", flags["window-size"])
		assert.Equal(t, "pt-BR", flags["lang"])
		assert.Contains(t, flags["user-agent"], "Chrome/")
	})

	t.Run("headed browser", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: false})
		assert.Equal(t, false, flags["headless"])
		assert.NotContains(t, flags, "window-size")
		assert.NotContains(t, flags, "user-agent")
	})

	t.Run("extra args", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Args: []string{
			"--disable-extensions",
			"proxy-server=http://127.0.0.1:8080",
			"--no-sandbox=false",
			"--",
		}})
		assert.Equal(t, true, flags["disable-extensions"])
		assert.Equal(t, "http://127.0.0.1:8080", flags["proxy-server"])
		// Args win over built-in flags.
		assert.Equal(t, "false", flags["no-sandbox"])
		assert.NotContains(t, flags, "")
	})
}

func TestAllocatorOptions(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	opts := AllocatorOptions(cfg)
	assert.Len(t, opts, len(allocatorFlags(cfg))+len(chromedpDefaults()))
}

func TestPersonaFor(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := PersonaFor(config.NewDefaultConfig())
		assert.Equal(t, "pt-BR", p.Locale)
		assert.Equal(t, []string{"pt-BR", "pt"}, p.Languages)
		assert.Equal(t, "America/Sao_Paulo", p.Timezone)
		assert.Equal(t, 1366, p.Width)
		assert.Equal(t, 900, p.Height)
	})

	t.Run("overrides", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.Browser.UserAgent = "seatrunner-test"
		cfg.Browser.Locale = "en"
		cfg.Browser.Viewport = map[string]int{"width": 800, "height": 600}
		cfg.Trip.Timezone = "UTC"

		p := PersonaFor(cfg)
		assert.Equal(t, "seatrunner-test", p.UserAgent)
		assert.Equal(t, []string{"en"}, p.Languages)
		assert.Equal(t, "UTC", p.Timezone)
		assert.Equal(t, 800, p.Width)
	})

	t.Run("empty values keep the default persona", func(t *testing.T) {
		cfg := &config.Config{}
		assert.Equal(t, stealth.DefaultPersona, PersonaFor(cfg))
	})
}
