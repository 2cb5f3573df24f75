// Package scrape implements the page extraction providers and the
// dropdown matrix scraper.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultUserAgent         = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// BrowserConfig contains configuration for the headless browser session
type BrowserConfig struct {
	// NavigationTimeout bounds each page interaction
	NavigationTimeout time.Duration
	// RemoteURL is the URL of a remote Chrome/Chromium instance (optional)
	// If empty, chromedp will launch a new browser instance
	RemoteURL string
	// Headful shows the browser window; the zero value runs headless
	Headful bool
	// NoSandbox runs Chrome without sandbox (required for Docker/root)
	NoSandbox bool
	UserAgent string
	Logger    *zap.Logger
}

// Browser is one headless browser tab. The tab is not reentrant, so every
// interaction holds the session lock for its whole duration.
type Browser struct {
	config      *BrowserConfig
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu        sync.Mutex
	tabCtx    context.Context
	tabCancel context.CancelFunc
}

// NewBrowser creates a browser session. Chrome is started lazily on first use.
func NewBrowser(config *BrowserConfig) *Browser {
	if config == nil {
		config = &BrowserConfig{}
	}
	if config.NavigationTimeout == 0 {
		config.NavigationTimeout = defaultNavigationTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Browser{config: config, logger: logger}
	b.initAllocator()
	return b
}

func (b *Browser) initAllocator() {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !b.config.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true), // Important for Docker
		chromedp.Flag("disable-background-networking", true),
		chromedp.UserAgent(b.config.UserAgent),
	)
	if b.config.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}

	if b.config.RemoteURL != "" {
		b.allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), b.config.RemoteURL)
	} else {
		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}
}

// tab returns the shared tab context, starting the browser on first use.
// The first Run must happen on the undecorated tab context, otherwise the
// browser dies with the first per-call timeout.
func (b *Browser) tab() (context.Context, error) {
	if b.tabCtx != nil {
		return b.tabCtx, nil
	}
	tabCtx, cancel := chromedp.NewContext(b.allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			b.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	b.tabCtx, b.tabCancel = tabCtx, cancel
	return tabCtx, nil
}

// Run executes actions on the tab under the navigation timeout. Cancelling
// ctx cancels the actions.
func (b *Browser) Run(ctx context.Context, actions ...chromedp.Action) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tabCtx, err := b.tab()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(tabCtx, b.config.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("browser timeout after %v: %w", b.config.NavigationTimeout, err)
		}
		return err
	}
	return nil
}

// Evaluate runs script on the current page and decodes its result into res
func (b *Browser) Evaluate(ctx context.Context, script string, res any) error {
	return b.Run(ctx, chromedp.Evaluate(script, res))
}

// Close shuts down the tab and the browser
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tabCancel != nil {
		b.tabCancel()
		b.tabCtx, b.tabCancel = nil, nil
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

// jsString quotes s as a JavaScript string literal
func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// consentScript clicks the first visible cookie-consent accept button
const consentScript = `(() => {
  const ids = ['#onetrust-accept-btn-handler', '#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll',
    '#CybotCookiebotDialogBodyButtonAccept', '.cc-allow', '.cookie-accept', '[data-cookie-accept]'];
  for (const sel of ids) {
    const el = document.querySelector(sel);
    if (el) { el.click(); return true; }
  }
  const words = /^(accept|accept all|allow all|agree|ok|accepter|accepter alle|tillad alle|alle akzeptieren|akzeptieren|godkend)$/i;
  for (const el of document.querySelectorAll('button, a[role=button], input[type=button]')) {
    const text = (el.innerText || el.value || '').trim();
    if (words.test(text)) { el.click(); return true; }
  }
  return false;
})()`

// dismissConsent clicks away a cookie banner. Failures are only logged.
func (b *Browser) dismissConsent(ctx context.Context) {
	var clicked bool
	if err := b.Evaluate(ctx, consentScript, &clicked); err != nil {
		b.logger.Debug("cookie consent dismissal failed", zap.Error(err))
		return
	}
	if clicked {
		b.logger.Debug("cookie consent dismissed")
		_ = b.Run(ctx, chromedp.Sleep(300*time.Millisecond))
	}
}
