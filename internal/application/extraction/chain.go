// Package extractionapp runs the extraction providers as an ordered chain.
package extractionapp

import (
	"context"
	"errors"

	"github.com/erp/priceimport/internal/domain/extraction"
	"github.com/erp/priceimport/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Chain tries providers one at a time in priority order and returns the
// first non-empty result. It never retries a provider.
type Chain struct {
	providers []extraction.Provider
	logger    *zap.Logger
}

// NewChain creates a chain over providers in the given order
func NewChain(logger *zap.Logger, providers ...extraction.Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		providers: providers,
		logger:    logger,
	}
}

// Providers returns the provider names in attempt order
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Extract returns the items of the first provider that succeeds. Failures of
// earlier providers are attached to the result as FallbackErrors. When all
// providers fail the error is an *extraction.ExtractionError listing each
// failure.
func (c *Chain) Extract(ctx context.Context, url string, selector extraction.Selector) (*extraction.Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "extraction", "extract",
		telemetry.WithAttribute(telemetry.SpanAttrURL, url),
		telemetry.WithAttribute(telemetry.SpanAttrSelector, selector.String()),
	)
	defer span.End()

	var failures []*extraction.ProviderError
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			failures = append(failures, extraction.NewProviderError(p.Name(), extraction.ErrCodeTimeout, "skipped", err))
			continue
		}

		items, err := p.Extract(ctx, url, selector)
		if err == nil && len(items) == 0 {
			err = extraction.NewProviderError(p.Name(), extraction.ErrCodeNoItems, "provider returned no items", extraction.ErrNoItems)
		}
		if err != nil {
			pe := extraction.AsProviderError(p.Name(), err)
			if errors.Is(err, context.DeadlineExceeded) && pe.Code == extraction.ErrCodeRequestFailed {
				pe.Code = extraction.ErrCodeTimeout
			}
			failures = append(failures, pe)
			c.logger.Warn("extraction provider failed, falling back",
				zap.String("provider", p.Name()),
				zap.String("code", pe.Code),
				zap.String("url", url),
				zap.Error(err),
			)
			telemetry.AddEvent(span, "provider_failed",
				telemetry.SpanAttrProvider, p.Name(),
				"code", pe.Code,
			)
			continue
		}

		c.logger.Info("extraction succeeded",
			zap.String("provider", p.Name()),
			zap.Int("items", len(items)),
			zap.Int("fallbacks", len(failures)),
		)
		telemetry.SetAttributes(span,
			telemetry.SpanAttrProvider, p.Name(),
			telemetry.SpanAttrItemCount, len(items),
		)
		return &extraction.Result{
			Provider:       p.Name(),
			Items:          items,
			FallbackErrors: failures,
		}, nil
	}

	err := &extraction.ExtractionError{URL: url, Attempts: failures}
	telemetry.RecordError(span, err)
	return nil, err
}
