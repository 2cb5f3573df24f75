package priceimport

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/erp/priceimport/internal/domain/extraction"
	"github.com/erp/priceimport/internal/domain/pricing"
	"github.com/erp/priceimport/internal/domain/shared"
	"github.com/erp/priceimport/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	mattItems  = []string{"100 stk 40,00 kr", "250 stk 70,00 kr", "Ring for tilbud"}
	glossItems = []string{"100 stk 44,00 kr", "500 stk 120,00 kr"}
)

func hostedResult(items []string) *extraction.Result {
	return &extraction.Result{Provider: extraction.ProviderHosted, Items: items}
}

func TestService_Run(t *testing.T) {
	t.Run("imports every material and writes the snapshot first", func(t *testing.T) {
		repos := newCatalogRepos(t)
		plan := testPlan(t)
		plan.Quantities = []int{100, 250, 500}

		ext := new(MockExtractor)
		ext.On("Extract", mock.Anything, "https://example.com/matt", plan.Materials[0].Selector).Return(hostedResult(mattItems), nil).Once()
		ext.On("Extract", mock.Anything, "https://example.com/gloss", plan.Materials[1].Selector).Return(&extraction.Result{
			Provider:       extraction.ProviderStatic,
			Items:          glossItems,
			FallbackErrors: []*extraction.ProviderError{extraction.NewProviderError(extraction.ProviderHosted, extraction.ErrCodeMissingCredential, "no key", extraction.ErrMissingCredential)},
		}, nil).Once()

		locker := newMemLocker()
		snaps := &recordingSnapshots{}
		svc := NewService(ext, repos.reconciler(), nil, WithLocker(locker, 0), WithSnapshots(snaps))

		report, err := svc.Run(context.Background(), plan, RunOptions{RunID: "run-1"})
		require.NoError(t, err)
		ext.AssertExpectations(t)

		assert.Equal(t, "run-1", report.RunID)
		require.Len(t, report.Sources, 2)
		assert.Equal(t, SourceReport{Material: "Gloss 300g", Provider: extraction.ProviderStatic, Items: 2, Fallbacks: 1}, report.Sources[1])
		assert.Equal(t, 4, report.ParsedRows)
		// matt misses 500, gloss misses 250
		assert.Equal(t, 2, report.InferredRows)
		assert.Equal(t, 6, report.MappedRows)
		assert.Equal(t, 1, report.SkippedRows)
		assert.Equal(t, map[string]int{pricing.ErrCodeRowNoAmount: 1}, report.SkippedByCode)
		assert.Equal(t, []string{"business-cards.json", "business-cards.csv"}, report.Artifacts)

		require.NotNil(t, report.Reconcile)
		assert.Equal(t, StageDone, report.Reconcile.Stage)
		assert.Equal(t, 6, report.Reconcile.Replace.Inserted)
		assert.Equal(t, []string{LockKey(plan)}, locker.unlocked)
		assert.Empty(t, locker.held)

		require.Len(t, snaps.snaps, 1)
		snap := snaps.snaps[0]
		assert.Equal(t, "run-1", snap.RunID)
		assert.Equal(t, plan.Source, snap.Descriptor)
		require.Len(t, snap.Extractions, 2)
		assert.Equal(t, mattItems, snap.Extractions[0].Items)
		assert.Len(t, snap.Extractions[1].FallbackErrors, 1)
		assert.Len(t, snap.Mapped, 6)
		assert.Len(t, snap.Skipped, 1)

		var buf bytes.Buffer
		report.WriteSummary(&buf)
		assert.Contains(t, buf.String(), "product business-cards (chain mode)")
		assert.Contains(t, buf.String(), "ERR_ROW_NO_AMOUNT: 1")
		assert.Contains(t, buf.String(), "6 inserted")
	})

	t.Run("shared sources are extracted once", func(t *testing.T) {
		repos := newCatalogRepos(t)
		plan := testPlan(t)
		plan.Materials[1].URL = plan.Materials[0].URL

		ext := new(MockExtractor)
		ext.On("Extract", mock.Anything, "https://example.com/matt", mock.Anything).Return(hostedResult(mattItems), nil).Once()

		svc := NewService(ext, repos.reconciler(), nil)
		report, err := svc.Run(context.Background(), plan, RunOptions{DryRun: true})
		require.NoError(t, err)
		ext.AssertNumberOfCalls(t, "Extract", 1)
		assert.Len(t, report.Sources, 2)
	})

	t.Run("dry run stops before reconciliation", func(t *testing.T) {
		repos := newCatalogRepos(t)
		plan := testPlan(t)

		ext := new(MockExtractor)
		ext.On("Extract", mock.Anything, "https://example.com/matt", mock.Anything).Return(hostedResult(mattItems), nil)
		ext.On("Extract", mock.Anything, "https://example.com/gloss", mock.Anything).Return(hostedResult(glossItems), nil)

		locker := newMemLocker()
		snaps := &recordingSnapshots{}
		svc := NewService(ext, repos.reconciler(), nil, WithLocker(locker, 0), WithSnapshots(snaps))

		report, err := svc.Run(context.Background(), plan, RunOptions{DryRun: true})
		require.NoError(t, err)
		assert.True(t, report.DryRun)
		assert.NotEmpty(t, report.RunID)
		assert.Nil(t, report.Reconcile)
		assert.Equal(t, 4, report.MappedRows)
		assert.Len(t, snaps.snaps, 1)
		assert.Empty(t, locker.unlocked)

		_, err = repos.products.FindBySlug(context.Background(), testTenantID, plan.Product.Slug)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("no surviving rows fails after the snapshot", func(t *testing.T) {
		repos := newCatalogRepos(t)
		plan := testPlan(t)
		plan.Materials = plan.Materials[:1]

		ext := new(MockExtractor)
		ext.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(hostedResult([]string{"Ring for tilbud", "   "}), nil)

		snaps := &recordingSnapshots{}
		svc := NewService(ext, repos.reconciler(), nil, WithSnapshots(snaps))

		report, err := svc.Run(context.Background(), plan, RunOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, pricing.ErrNoRowsParsed)
		assert.Equal(t, 2, report.SkippedRows)
		assert.Len(t, snaps.snaps, 1)
		assert.Nil(t, report.Reconcile)
	})

	t.Run("extraction failure aborts the run", func(t *testing.T) {
		repos := newCatalogRepos(t)
		plan := testPlan(t)
		exhausted := &extraction.ExtractionError{
			URL: "https://example.com/matt",
			Attempts: []*extraction.ProviderError{
				extraction.NewProviderError(extraction.ProviderHosted, extraction.ErrCodeMissingCredential, "no key", extraction.ErrMissingCredential),
				extraction.NewProviderError(extraction.ProviderStatic, extraction.ErrCodeContainerMissing, "missing", extraction.ErrContainerNotFound),
			},
		}
		ext := new(MockExtractor)
		ext.On("Extract", mock.Anything, "https://example.com/matt", mock.Anything).Return(nil, exhausted)

		snaps := &recordingSnapshots{}
		svc := NewService(ext, repos.reconciler(), nil, WithSnapshots(snaps))
		_, err := svc.Run(context.Background(), plan, RunOptions{})

		var eerr *extraction.ExtractionError
		require.True(t, errors.As(err, &eerr))
		assert.ErrorIs(t, err, extraction.ErrContainerNotFound)
		assert.Contains(t, err.Error(), "extract Matt 350g")
		assert.Empty(t, snaps.snaps)
	})

	t.Run("held lock refuses the run", func(t *testing.T) {
		repos := newCatalogRepos(t)
		plan := testPlan(t)

		ext := new(MockExtractor)
		ext.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(hostedResult(mattItems), nil)

		locker := newMemLocker()
		_, err := locker.TryLock(context.Background(), LockKey(plan), 0)
		require.NoError(t, err)

		svc := NewService(ext, repos.reconciler(), nil, WithLocker(locker, 0))
		report, err := svc.Run(context.Background(), plan, RunOptions{})
		assert.ErrorIs(t, err, shared.ErrLocked)
		assert.Contains(t, err.Error(), "priceimport:8c3f6d5e-2b1a-4c7d-9e8f-0a1b2c3d4e5f:business-cards")
		assert.Nil(t, report.Reconcile)
	})

	t.Run("snapshot failure is logged and the run continues", func(t *testing.T) {
		repos := newCatalogRepos(t)
		plan := testPlan(t)
		ext := new(MockExtractor)
		ext.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(hostedResult(mattItems), nil)

		core, logs := observer.New(zap.WarnLevel)
		snaps := &recordingSnapshots{err: errors.New("disk full")}
		svc := NewService(ext, repos.reconciler(), zap.New(core), WithSnapshots(snaps))

		report, err := svc.Run(context.Background(), plan, RunOptions{})
		require.NoError(t, err)
		assert.Empty(t, report.Artifacts)
		assert.Equal(t, 1, logs.FilterMessage("failed to write snapshot").Len())
	})
}

func TestService_RunMatrix(t *testing.T) {
	repos := newCatalogRepos(t)
	plan := testPlan(t)
	plan.Mode = SourceModeMatrix
	plan.Matrix = MatrixSource{URL: "https://example.com/cards", MaterialSelect: "#paper", QuantitySelect: "#qty"}

	scraper := new(MockMatrixScraper)
	scraper.On("Scrape", mock.Anything, extraction.MatrixRequest{
		URL:            "https://example.com/cards",
		MaterialSelect: "#paper",
		QuantitySelect: "#qty",
		Materials:      []string{"350g matt", "300g gloss"},
	}).Return(&extraction.MatrixResult{
		Materials: []extraction.MaterialOptions{
			{Label: "350g Matt", Value: "m350", Items: []string{"100 stk 40,00 kr", "250 stk 70,00 kr"}},
		},
		Missing: []string{"300g gloss"},
	}, nil)

	ext := new(MockExtractor)
	svc := NewService(ext, repos.reconciler(), nil, WithMatrixScraper(scraper))

	report, err := svc.Run(context.Background(), plan, RunOptions{})
	require.NoError(t, err)
	ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)

	assert.Equal(t, []string{"300g gloss"}, report.MissingMaterials)
	require.Len(t, report.Sources, 1)
	assert.Equal(t, MatrixProvider, report.Sources[0].Provider)
	assert.Equal(t, 2, report.MappedRows)
	assert.Equal(t, 2, report.Reconcile.PriceRows)

	groups, _ := loadCatalog(t, repos, report.Reconcile.ProductID)
	assert.Len(t, groups[catalog.GroupKindMaterial].Values, 1)
}

func TestService_MatrixModeNeedsScraper(t *testing.T) {
	plan := testPlan(t)
	plan.Mode = SourceModeMatrix
	svc := NewService(new(MockExtractor), newCatalogRepos(t).reconciler(), nil)

	_, err := svc.Run(context.Background(), plan, RunOptions{})
	assert.ErrorIs(t, err, shared.ErrInvalidConfiguration)
}

func TestService_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := telemetry.NewImportMetrics(provider.Meter(telemetry.MeterName))
	require.NoError(t, err)

	plan := testPlan(t)
	ext := new(MockExtractor)
	ext.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(hostedResult(mattItems), nil)
	svc := NewService(ext, newCatalogRepos(t).reconciler(), nil, WithMetrics(metrics))

	_, err = svc.Run(context.Background(), plan, RunOptions{DryRun: true})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), sums["priceimport_runs_total"])
	assert.Equal(t, int64(2), sums["priceimport_extraction_attempts_total"])
	assert.Positive(t, sums["priceimport_rows_total"])
}
