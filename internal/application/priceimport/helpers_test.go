package priceimport

import (
	"context"
	"testing"
	"time"

	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/erp/priceimport/internal/domain/extraction"
	"github.com/erp/priceimport/internal/domain/pricing"
	"github.com/erp/priceimport/internal/domain/shared"
	"github.com/erp/priceimport/internal/infrastructure/persistence"
	"github.com/erp/priceimport/internal/infrastructure/persistence/persistencetest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testTenantID = uuid.MustParse("8c3f6d5e-2b1a-4c7d-9e8f-0a1b2c3d4e5f")

func mustSelector(t testing.TB, raw string) extraction.Selector {
	t.Helper()
	s, err := extraction.ParseSelector(raw)
	require.NoError(t, err)
	return s
}

func intPtr(v int) *int {
	return &v
}

// testPlan is a chain-mode business card import: one format, two materials
// and a finish modifier, priced at 7.5x with no tier markup.
func testPlan(t *testing.T) *Plan {
	t.Helper()
	table, err := pricing.NewTierTable([]pricing.Tier{pricing.UnboundedTier(decimal.NewFromInt(1))})
	require.NoError(t, err)
	transformer, err := pricing.NewTransformer(decimal.RequireFromString("7.5"), decimal.NewFromInt(1), table)
	require.NoError(t, err)

	return &Plan{
		TenantID: testTenantID,
		Product: ProductSpec{
			Name:     "Business Cards",
			Slug:     "business-cards",
			Category: "print",
		},
		Mode:          SourceModeChain,
		VerticalAxis:  catalog.GroupKindMaterial,
		FormatGroup:   "Format",
		Format:        catalog.ValueSpec{Name: "85x55 mm", WidthMM: intPtr(85), HeightMM: intPtr(55)},
		MaterialGroup: "Material",
		Materials: []MaterialSource{
			{
				Value:       catalog.ValueSpec{Name: "Matt 350g", Meta: map[string]any{"gsm": 350}},
				SourceLabel: "350g matt",
				URL:         "https://example.com/matt",
				Selector:    mustSelector(t, "ul.prices"),
			},
			{
				Value:       catalog.ValueSpec{Name: "Gloss 300g"},
				SourceLabel: "300g gloss",
				URL:         "https://example.com/gloss",
				Selector:    mustSelector(t, "ul.prices"),
			},
		},
		Modifiers: []ModifierSpec{
			{Group: GroupSpec{Name: "Finish", Kind: catalog.GroupKindFinish}, Value: catalog.ValueSpec{Name: "None"}},
		},
		Transformer: transformer,
		RowOptions:  pricing.RowOptions{QuantityStart: 100, QuantityStep: 100},
		BatchSize:   2,
		Source:      map[string]any{"slug": "business-cards"},
	}
}

// transformedRow builds a row as the transform stage would
func transformedRow(index int, material string, qty int, final int64) pricing.TransformedRow {
	return pricing.TransformedRow{
		SourceRow: pricing.SourceRow{
			SourceIndex:   index,
			MaterialLabel: material,
			Quantity:      qty,
			UnitPrice:     decimal.NewFromInt(final).Div(decimal.RequireFromString("7.5")),
			SourceText:    "row",
		},
		BaseAmount:     decimal.NewFromInt(final),
		TierMultiplier: decimal.NewFromInt(1),
		FinalAmount:    final,
	}
}

type catalogRepos struct {
	products   *persistence.GormProductRepository
	attributes *persistence.GormAttributeRepository
	prices     *persistence.GormPriceRowRepository
}

func newCatalogRepos(t *testing.T) catalogRepos {
	db := persistencetest.NewCatalogDB(t)
	return catalogRepos{
		products:   persistence.NewGormProductRepository(db),
		attributes: persistence.NewGormAttributeRepository(db),
		prices:     persistence.NewGormPriceRowRepository(db),
	}
}

func (r catalogRepos) reconciler() *Reconciler {
	return NewReconciler(r.products, r.attributes, r.prices, nil)
}

// MockExtractor is a mock implementation of Extractor
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, url string, selector extraction.Selector) (*extraction.Result, error) {
	args := m.Called(ctx, url, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extraction.Result), args.Error(1)
}

// MockMatrixScraper is a mock implementation of extraction.MatrixScraper
type MockMatrixScraper struct {
	mock.Mock
}

func (m *MockMatrixScraper) Scrape(ctx context.Context, req extraction.MatrixRequest) (*extraction.MatrixResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extraction.MatrixResult), args.Error(1)
}

// MockPriceRowRepository is a mock implementation of catalog.PriceRowRepository
type MockPriceRowRepository struct {
	mock.Mock
}

func (m *MockPriceRowRepository) ReplaceForProduct(ctx context.Context, scope catalog.ReplaceScope, rows []catalog.PriceRow, batchSize int) (catalog.ReplaceResult, error) {
	args := m.Called(ctx, scope, rows, batchSize)
	return args.Get(0).(catalog.ReplaceResult), args.Error(1)
}

func (m *MockPriceRowRepository) CountForProduct(ctx context.Context, tenantID, productID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID, productID)
	return args.Get(0).(int64), args.Error(1)
}

// MockProductRepository is a mock implementation of catalog.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) FindBySlug(ctx context.Context, tenantID uuid.UUID, slug string) (*catalog.Product, error) {
	args := m.Called(ctx, tenantID, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) Create(ctx context.Context, product *catalog.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) UpdatePricingStructure(ctx context.Context, tenantID, productID uuid.UUID, ps *catalog.PricingStructure) error {
	args := m.Called(ctx, tenantID, productID, ps)
	return args.Error(0)
}

// memLocker grants one holder per key
type memLocker struct {
	held     map[string]string
	unlocked []string
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, ok := l.held[key]; ok {
		return "", shared.ErrLocked
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, nil
}

func (l *memLocker) Unlock(_ context.Context, key, token string) error {
	if l.held[key] == token {
		delete(l.held, key)
		l.unlocked = append(l.unlocked, key)
	}
	return nil
}

// recordingSnapshots keeps every snapshot it is given
type recordingSnapshots struct {
	snaps []*Snapshot
	err   error
}

func (w *recordingSnapshots) Write(_ context.Context, snap *Snapshot) ([]string, error) {
	w.snaps = append(w.snaps, snap)
	if w.err != nil {
		return nil, w.err
	}
	return []string{snap.Slug + ".json", snap.Slug + ".csv"}, nil
}
