package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/erp/priceimport/internal/domain/extraction"
	"go.uber.org/zap"
)

const (
	defaultHostedBaseURL = "https://api.firecrawl.dev"
	defaultHostedTimeout = 45 * time.Second
	maxResponseSize      = 8 << 20
)

// HostedConfig configures the hosted scraping API
type HostedConfig struct {
	BaseURL string
	APIKey  string
	// Timeout for one scrape call; a timeout is not retried
	Timeout           time.Duration
	RequestsPerSecond float64
}

// HostedProvider asks a hosted LLM scraping API for the items under a
// selector. It is the preferred provider.
type HostedProvider struct {
	config     HostedConfig
	httpClient *http.Client
	limiter    *hostLimiter
	logger     *zap.Logger
}

// NewHostedProvider creates the hosted API provider
func NewHostedProvider(config HostedConfig, logger *zap.Logger) *HostedProvider {
	if config.BaseURL == "" {
		config.BaseURL = defaultHostedBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultHostedTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostedProvider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    newHostLimiter(config.RequestsPerSecond, 1),
		logger:     logger,
	}
}

// Name implements extraction.Provider
func (p *HostedProvider) Name() string {
	return extraction.ProviderHosted
}

type scrapeRequest struct {
	URL         string      `json:"url"`
	Formats     []string    `json:"formats"`
	JSONOptions jsonOptions `json:"jsonOptions"`
	Timeout     int64       `json:"timeout,omitempty"`
}

type jsonOptions struct {
	Prompt string         `json:"prompt"`
	Schema map[string]any `json:"schema"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		JSON struct {
			Items []string `json:"items"`
		} `json:"json"`
	} `json:"data"`
}

var itemsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"items": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"items"},
}

func extractionPrompt(selector extraction.Selector) string {
	return fmt.Sprintf("Find the element matching the CSS selector %q. Return the visible text of each of its direct "+
		"child elements in page order as the items array, one string per child, without rewording prices or quantities.",
		selector.String())
}

// Extract implements extraction.Provider
func (p *HostedProvider) Extract(ctx context.Context, url string, selector extraction.Selector) ([]string, error) {
	if strings.TrimSpace(p.config.APIKey) == "" {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeMissingCredential,
			"no API key configured", extraction.ErrMissingCredential)
	}

	if err := p.limiter.Wait(ctx, p.config.BaseURL); err != nil {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeTimeout, "rate limiter wait aborted", err)
	}

	body, err := json.Marshal(scrapeRequest{
		URL:         url,
		Formats:     []string{"json"},
		JSONOptions: jsonOptions{Prompt: extractionPrompt(selector), Schema: itemsSchema},
		Timeout:     p.config.Timeout.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("hosted: failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.config.BaseURL, "/")+"/v1/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("hosted: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		code := extraction.ErrCodeRequestFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = extraction.ErrCodeTimeout
		}
		return nil, extraction.NewProviderError(p.Name(), code, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeRequestFailed, "failed to read response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeRequestFailed,
			fmt.Sprintf("HTTP %d", resp.StatusCode), errors.New(truncate(string(raw), 200)))
	}

	var parsed scrapeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeInvalidResponse, "malformed response", err)
	}
	if !parsed.Success {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeRequestFailed, "scrape unsuccessful", errors.New(parsed.Error))
	}

	items := make([]string, 0, len(parsed.Data.JSON.Items))
	for _, item := range parsed.Data.JSON.Items {
		if text := collapseWhitespace(item); text != "" {
			items = append(items, text)
		}
	}
	if len(items) == 0 {
		return nil, extraction.NewProviderError(p.Name(), extraction.ErrCodeNoItems, "response held no items", extraction.ErrNoItems)
	}

	p.logger.Debug("hosted extraction finished",
		zap.String("url", url),
		zap.Int("items", len(items)),
		zap.Duration("duration", time.Since(start)),
	)
	return items, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
