// Package browser manages headless Chromium processes driven by rod and hands
// out request-scoped sessions, each an incognito context with one tab.
package browser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

// Options controls how browsers are launched and how sessions are set up.
type Options struct {
	Headless  bool   // default: true
	NoSandbox bool   // default: true
	Bin       string // Chromium binary; empty = rod's managed download
	Proxy     string

	UserAgent      string
	AcceptLanguage string // default: "fr-FR,fr;q=0.9,en;q=0.8"
	ViewportWidth  int    // default: 1920
	ViewportHeight int    // default: 1080

	// BlockedResourceTypes are aborted at the network layer
	// ("Image", "Stylesheet", "Font", "Media", "Script").
	BlockedResourceTypes []string
	BlockTrackers        bool
	Stealth              bool

	// PoolSize is the number of warm browser processes kept between requests.
	// 0 launches a fresh browser per session and closes it on release.
	PoolSize int
	// MaxSessions bounds concurrent sessions when PoolSize is 0.
	MaxSessions int // default: 4
}

// launch starts one Chromium process and connects to it.
// The returned kill func terminates the process and removes its profile dir.
func launch(opts Options) (*rod.Browser, func(), error) {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox)

	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", opts.ViewportWidth, opts.ViewportHeight))
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	if lang, _, _ := strings.Cut(opts.AcceptLanguage, ","); lang != "" {
		l.Set(flags.Flag("lang"), lang)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect to browser: %w", err)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	kill := func() {
		l.Kill()
		l.Cleanup()
	}
	return b, kill, nil
}
