package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/erp/priceimport/internal/domain/extraction"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const defaultStaticTimeout = 20 * time.Second

var (
	tagPattern     = regexp.MustCompile(`<(/?)([a-zA-Z][a-zA-Z0-9-]*)((?:[^>"']|"[^"]*"|'[^']*')*?)(/?)>`)
	attrPattern    = regexp.MustCompile(`([a-zA-Z_:][-a-zA-Z0-9_:.]*)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`)
	commentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)
	scriptPattern  = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	stylePattern   = regexp.MustCompile(`(?is)<style\b.*?</style\s*>`)
	anyTagPattern  = regexp.MustCompile(`<[^>]*>`)
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

// elements whose end tag may be omitted when a sibling of the same name opens
var impliedEnd = map[string]bool{"li": true, "option": true, "tr": true, "td": true, "th": true, "dt": true, "dd": true, "p": true}

// StaticConfig configures the plain HTTP provider
type StaticConfig struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
}

// StaticProvider fetches raw markup and scans it for the item container.
// It runs no JavaScript, so it is the last resort.
type StaticProvider struct {
	config     StaticConfig
	httpClient *http.Client
	limiter    *hostLimiter
	logger     *zap.Logger
}

// NewStaticProvider creates the static HTML provider
func NewStaticProvider(config StaticConfig, logger *zap.Logger) *StaticProvider {
	if config.Timeout == 0 {
		config.Timeout = defaultStaticTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaticProvider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    newHostLimiter(config.RequestsPerSecond, 1),
		logger:     logger,
	}
}

// Name implements extraction.Provider
func (p *StaticProvider) Name() string {
	return extraction.ProviderStatic
}

// Extract implements extraction.Provider
func (p *StaticProvider) Extract(ctx context.Context, url string, selector extraction.Selector) ([]string, error) {
	if err := p.limiter.Wait(ctx, url); err != nil {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeTimeout, "rate limiter wait aborted", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("static: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		code := extraction.ErrCodeRequestFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = extraction.ErrCodeTimeout
		}
		return nil, extraction.NewProviderError(p.Name(), code, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeRequestFailed, "failed to read response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeRequestFailed,
			fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	items, err := ExtractItems(string(body), selector)
	if err != nil {
		code := extraction.ErrCodeNoItems
		if errors.Is(err, extraction.ErrContainerNotFound) {
			code = extraction.ErrCodeContainerMissing
		}
		return nil, extraction.NewProviderError(p.Name(), code, "markup scan failed", err)
	}

	p.logger.Debug("static extraction finished", zap.String("url", url), zap.Int("items", len(items)))
	return items, nil
}

type tagMatch struct {
	start, end int
	closing    bool
	selfClose  bool
	name       string
	attrs      string
}

func scanTags(markup string) []tagMatch {
	locs := tagPattern.FindAllStringSubmatchIndex(markup, -1)
	tags := make([]tagMatch, 0, len(locs))
	for _, l := range locs {
		tags = append(tags, tagMatch{
			start:     l[0],
			end:       l[1],
			closing:   l[3] > l[2],
			name:      strings.ToLower(markup[l[4]:l[5]]),
			attrs:     markup[l[6]:l[7]],
			selfClose: l[9] > l[8],
		})
	}
	return tags
}

func parseAttrs(raw string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(raw, -1) {
		attrs[strings.ToLower(m[1])] = m[2] + m[3] + m[4]
	}
	return attrs
}

func matchesSelector(t tagMatch, s extraction.Selector) bool {
	if t.closing {
		return false
	}
	if s.Tag != "" && t.name != s.Tag {
		return false
	}
	if s.ID == "" && s.Class == "" {
		return true
	}
	attrs := parseAttrs(t.attrs)
	if s.ID != "" {
		return attrs["id"] == s.ID
	}
	for _, c := range strings.Fields(attrs["class"]) {
		if c == s.Class {
			return true
		}
	}
	return false
}

// ExtractItems finds the first element matching selector in raw markup and
// returns the cleaned text of each of its direct children.
func ExtractItems(markup string, selector extraction.Selector) ([]string, error) {
	markup = commentPattern.ReplaceAllString(markup, "")
	markup = scriptPattern.ReplaceAllString(markup, "")
	markup = stylePattern.ReplaceAllString(markup, "")

	tags := scanTags(markup)
	open := -1
	for i, t := range tags {
		// an empty <div/> or void element cannot hold items
		if t.selfClose || voidElements[t.name] {
			continue
		}
		if matchesSelector(t, selector) {
			open = i
			break
		}
	}
	if open < 0 {
		return nil, fmt.Errorf("%w: %s", extraction.ErrContainerNotFound, selector)
	}

	container := tags[open]
	innerEnd := len(markup)
	depth := 1
	closeIdx := len(tags)
	for i := open + 1; i < len(tags); i++ {
		t := tags[i]
		if t.name != container.name || t.selfClose || voidElements[t.name] {
			continue
		}
		if t.closing {
			depth--
		} else {
			depth++
		}
		if depth == 0 {
			innerEnd, closeIdx = t.start, i
			break
		}
	}

	items := make([]string, 0)
	depth = 0
	childStart, childName := -1, ""
	flush := func(end int) {
		if childStart >= 0 {
			if text := cleanText(markup[childStart:end]); text != "" {
				items = append(items, text)
			}
		}
		childStart, childName = -1, ""
	}
	for i := open + 1; i < closeIdx; i++ {
		t := tags[i]
		if t.start >= innerEnd {
			break
		}
		void := t.selfClose || voidElements[t.name]
		switch {
		case depth == 0 && !t.closing:
			childStart, childName = t.end, t.name
			if void {
				// a bare <br> or <img> between items carries no text
				childStart = -1
				continue
			}
			depth = 1
		case depth == 1 && !t.closing && !void && t.name == childName && impliedEnd[t.name]:
			flush(t.start)
			childStart, childName = t.end, t.name
		case void:
		case t.closing:
			depth--
			if depth == 0 {
				flush(t.start)
			}
			if depth < 0 {
				depth = 0
			}
		default:
			depth++
		}
	}
	if depth > 0 {
		flush(innerEnd)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w under %s", extraction.ErrNoItems, selector)
	}
	return items, nil
}

// cleanText strips tags, decodes entities and collapses whitespace
func cleanText(fragment string) string {
	text := anyTagPattern.ReplaceAllString(fragment, " ")
	return collapseWhitespace(html.UnescapeString(text))
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
