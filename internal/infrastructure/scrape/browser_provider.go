package scrape

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/erp/priceimport/internal/domain/extraction"
	"go.uber.org/zap"
)

const loginWallScript = `document.querySelector('input[type=password]') !== null`

// childTextScript returns the collapsed text of each direct child of the
// container, or null when the container is missing.
func childTextScript(selector string) string {
	return fmt.Sprintf(`(() => {
  const c = document.querySelector(%s);
  if (!c) return null;
  return Array.from(c.children)
    .map(e => (e.innerText || e.textContent || '').replace(/\s+/g, ' ').trim())
    .filter(t => t.length > 0);
})()`, jsString(selector))
}

// BrowserProvider extracts items with a headless browser
type BrowserProvider struct {
	browser *Browser
	logger  *zap.Logger
}

// NewBrowserProvider creates a provider on a shared browser session
func NewBrowserProvider(browser *Browser, logger *zap.Logger) *BrowserProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserProvider{browser: browser, logger: logger}
}

// Name implements extraction.Provider
func (p *BrowserProvider) Name() string {
	return extraction.ProviderBrowser
}

// Extract loads the page, clears any cookie banner, refuses login walls and
// reads the text of each child under the container.
func (p *BrowserProvider) Extract(ctx context.Context, url string, selector extraction.Selector) ([]string, error) {
	if err := p.browser.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeRequestFailed, "navigation failed", err)
	}

	p.browser.dismissConsent(ctx)

	var loginWall bool
	if err := p.browser.Evaluate(ctx, loginWallScript, &loginWall); err != nil {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeRequestFailed, "page evaluation failed", err)
	}
	if loginWall {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeLoginWall, "password field present", extraction.ErrLoginWall)
	}

	var items []string
	if err := p.browser.Evaluate(ctx, childTextScript(selector.String()), &items); err != nil {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeRequestFailed, "reading items failed", err)
	}
	if items == nil {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeContainerMissing,
			"no element matches "+selector.String(), extraction.ErrContainerNotFound)
	}
	if len(items) == 0 {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeNoItems, "container has no text items", extraction.ErrNoItems)
	}

	p.logger.Debug("browser extraction finished", zap.String("url", url), zap.Int("items", len(items)))
	return items, nil
}
