package scrape

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/erp/priceimport/internal/domain/extraction"
	"github.com/erp/priceimport/internal/domain/shared"
	"go.uber.org/zap"
)

// TransientPattern matches browser errors caused by client-side rendering
// racing the automation: torn-down execution contexts, closed targets,
// aborted navigations and timeouts.
var TransientPattern = regexp.MustCompile(`(?i)execution context was destroyed|cannot find context with specified id|target closed|inspected target navigated|navigation|timeout|deadline exceeded|did not settle`)

var errNotSettled = errors.New("dependent select did not settle")

// DefaultRetryPolicy is the retry policy of the matrix scraper
func DefaultRetryPolicy() shared.RetryPolicy {
	return shared.NewPatternRetryPolicy(3, TransientPattern)
}

// SelectOption is one <option> of a select element
type SelectOption struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// MatrixConfig tunes the settle detection of the dependent select
type MatrixConfig struct {
	PollInterval  time.Duration
	SettleTimeout time.Duration
	Retry         shared.RetryPolicy
}

// scriptRunner evaluates a script on the loaded page
type scriptRunner interface {
	Evaluate(ctx context.Context, script string, res any) error
}

// MatrixScraper drives a material select and reads the dependent quantity
// select for each material. Page interactions that race client-side
// rendering are retried under the configured policy.
type MatrixScraper struct {
	browser *Browser
	page    scriptRunner
	config  MatrixConfig
	logger  *zap.Logger
}

// NewMatrixScraper creates a matrix scraper on a shared browser session
func NewMatrixScraper(browser *Browser, config MatrixConfig, logger *zap.Logger) *MatrixScraper {
	if config.PollInterval == 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	if config.SettleTimeout == 0 {
		config.SettleTimeout = 10 * time.Second
	}
	if config.Retry.IsRetryable == nil {
		config.Retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MatrixScraper{browser: browser, page: browser, config: config, logger: logger}
	if s.config.Retry.OnRetry == nil {
		s.config.Retry.OnRetry = func(attempt int, err error) {
			s.logger.Warn("transient browser error, retrying", zap.Int("attempt", attempt), zap.Error(err))
		}
	}
	return s
}

func optionsScript(selector string) string {
	return fmt.Sprintf(`(() => {
  const s = document.querySelector(%s);
  if (!s) return null;
  return Array.from(s.options).map(o => ({value: o.value, text: (o.text || '').replace(/\s+/g, ' ').trim()}));
})()`, jsString(selector))
}

func selectScript(selector, value string) string {
	return fmt.Sprintf(`(() => {
  const s = document.querySelector(%s);
  if (!s) return false;
  s.value = %s;
  s.dispatchEvent(new Event('input', {bubbles: true}));
  s.dispatchEvent(new Event('change', {bubbles: true}));
  return true;
})()`, jsString(selector), jsString(value))
}

// Scrape visits every requested material in order
func (s *MatrixScraper) Scrape(ctx context.Context, req extraction.MatrixRequest) (*extraction.MatrixResult, error) {
	if err := s.config.Retry.Do(ctx, func(ctx context.Context) error {
		return s.browser.Run(ctx,
			chromedp.Navigate(req.URL),
			chromedp.WaitReady(req.MaterialSelect, chromedp.ByQuery),
		)
	}); err != nil {
		return nil, fmt.Errorf("matrix: navigation failed: %w", err)
	}
	s.browser.dismissConsent(ctx)

	return s.scrapeMaterials(ctx, req)
}

// scrapeMaterials selects each material on the loaded page and collects the
// settled quantity options.
func (s *MatrixScraper) scrapeMaterials(ctx context.Context, req extraction.MatrixRequest) (*extraction.MatrixResult, error) {
	available, err := s.readOptions(ctx, req.MaterialSelect)
	if err != nil {
		return nil, fmt.Errorf("matrix: reading material options failed: %w", err)
	}

	result := &extraction.MatrixResult{}
	for _, label := range req.Materials {
		opt, ok := MatchOption(available, label)
		if !ok {
			s.logger.Warn("material option not found", zap.String("material", label))
			result.Missing = append(result.Missing, label)
			continue
		}

		before, err := s.readOptions(ctx, req.QuantitySelect)
		if err != nil {
			return nil, fmt.Errorf("matrix: reading %s before selection failed: %w", label, err)
		}

		if err := s.config.Retry.Do(ctx, func(ctx context.Context) error {
			var found bool
			if err := s.page.Evaluate(ctx, selectScript(req.MaterialSelect, opt.Value), &found); err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("material select %s not present", req.MaterialSelect)
			}
			return nil
		}); err != nil {
			return nil, fmt.Errorf("matrix: selecting %s failed: %w", label, err)
		}

		items, err := shared.Retry(ctx, s.config.Retry, func(ctx context.Context) ([]string, error) {
			return s.waitSettled(ctx, req.QuantitySelect, OptionTexts(before))
		})
		if err != nil {
			return nil, fmt.Errorf("matrix: reading quantities for %s failed: %w", label, err)
		}

		s.logger.Debug("material scraped", zap.String("material", label), zap.Int("items", len(items)))
		result.Materials = append(result.Materials, extraction.MaterialOptions{Label: label, Value: opt.Value, Items: items})
	}
	return result, nil
}

func (s *MatrixScraper) readOptions(ctx context.Context, selector string) ([]SelectOption, error) {
	var opts []SelectOption
	if err := s.page.Evaluate(ctx, optionsScript(selector), &opts); err != nil {
		return nil, err
	}
	if opts == nil {
		return nil, fmt.Errorf("select %s not found", selector)
	}
	return opts, nil
}

// waitSettled polls the dependent select until two consecutive reads agree
// on a non-empty option list. A list identical to the one seen before the
// selection is only accepted after it stayed put for several polls.
func (s *MatrixScraper) waitSettled(ctx context.Context, selector string, before []string) ([]string, error) {
	const unchangedPolls = 4

	deadline := time.Now().Add(s.config.SettleTimeout)
	var previous []string
	stable := 0
	for time.Now().Before(deadline) {
		opts, err := s.readOptions(ctx, selector)
		if err != nil {
			return nil, err
		}
		current := OptionTexts(opts)
		if len(current) > 0 && slices.Equal(current, previous) {
			stable++
			if !slices.Equal(current, before) || stable >= unchangedPolls {
				return current, nil
			}
		} else {
			stable = 0
		}
		previous = current
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.config.PollInterval):
		}
	}
	return nil, fmt.Errorf("%w within %v", errNotSettled, s.config.SettleTimeout)
}

// MatchOption finds the option whose text equals label, ignoring case and
// surrounding whitespace.
func MatchOption(options []SelectOption, label string) (SelectOption, bool) {
	want := collapseWhitespace(label)
	for _, o := range options {
		if strings.EqualFold(collapseWhitespace(o.Text), want) {
			return o, true
		}
	}
	return SelectOption{}, false
}

var placeholderPattern = regexp.MustCompile(`(?i)^(-+|vælg.*|choose.*|select.*|bitte wählen.*|wählen.*)$`)

// OptionTexts returns the texts of real options, dropping empty-valued
// placeholders such as "Choose quantity".
func OptionTexts(options []SelectOption) []string {
	out := make([]string, 0, len(options))
	for _, o := range options {
		text := collapseWhitespace(o.Text)
		if text == "" || placeholderPattern.MatchString(text) {
			continue
		}
		out = append(out, text)
	}
	return out
}

var _ extraction.MatrixScraper = (*MatrixScraper)(nil)
