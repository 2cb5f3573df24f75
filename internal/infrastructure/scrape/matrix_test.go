package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/erp/priceimport/internal/domain/extraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTransientPattern(t *testing.T) {
	retryable := []string{
		"Execution context was destroyed, most likely because of a navigation",
		"Cannot find context with specified id",
		"target closed",
		"browser timeout after 30s: context deadline exceeded",
		"dependent select did not settle within 10s",
	}
	for _, msg := range retryable {
		assert.True(t, DefaultRetryPolicy().IsRetryable(errors.New(msg)), msg)
	}
	assert.False(t, DefaultRetryPolicy().IsRetryable(errors.New("select #material not found")))
	assert.Equal(t, 3, DefaultRetryPolicy().MaxAttempts)
}

func TestMatchOption(t *testing.T) {
	options := []SelectOption{
		{Value: "", Text: "Vælg materiale"},
		{Value: "12", Text: "Hvid  vinyl"},
		{Value: "13", Text: "Transparent vinyl"},
	}

	opt, ok := MatchOption(options, " hvid vinyl ")
	require.True(t, ok)
	assert.Equal(t, "12", opt.Value)

	_, ok = MatchOption(options, "Papir")
	assert.False(t, ok)
}

func TestOptionTexts(t *testing.T) {
	texts := OptionTexts([]SelectOption{
		{Text: "Vælg antal"},
		{Text: "--"},
		{Text: "100 stk.  -  899,00 kr"},
		{Text: ""},
		{Text: "250 stk. - 1.499,00 kr"},
	})
	assert.Equal(t, []string{"100 stk. - 899,00 kr", "250 stk. - 1.499,00 kr"}, texts)
}

func TestNewMatrixScraper_Defaults(t *testing.T) {
	s := NewMatrixScraper(nil, MatrixConfig{}, nil)
	assert.Equal(t, 250*time.Millisecond, s.config.PollInterval)
	assert.Equal(t, 10*time.Second, s.config.SettleTimeout)
	assert.NotNil(t, s.config.Retry.IsRetryable)
	assert.NotNil(t, s.config.Retry.OnRetry)
}

func TestScripts(t *testing.T) {
	assert.Contains(t, childTextScript(`ul[data-x="1"]`), `"ul[data-x=\"1\"]"`)
	assert.Contains(t, selectScript("#material", "12"), `s.value = "12"`)
	assert.Contains(t, optionsScript("#qty"), `document.querySelector("#qty")`)
}

func TestBrowserConfig_Defaults(t *testing.T) {
	config := &BrowserConfig{}
	b := NewBrowser(config)
	defer b.Close()

	assert.Equal(t, defaultNavigationTimeout, config.NavigationTimeout)
	assert.False(t, config.Headful)
	assert.Equal(t, defaultUserAgent, config.UserAgent)
}

// fakePage answers the option and select scripts of a material/quantity
// pair. Each read of the quantity select returns the next list queued for the
// selected material, repeating the last one.
type fakePage struct {
	materials  []SelectOption
	initial    []SelectOption
	quantities map[string][][]SelectOption
	selectErrs []error

	selected string
	reads    int
	selects  int
}

func (f *fakePage) Evaluate(_ context.Context, script string, res any) error {
	switch {
	case strings.Contains(script, "dispatchEvent"):
		f.selects++
		if len(f.selectErrs) > 0 {
			err := f.selectErrs[0]
			f.selectErrs = f.selectErrs[1:]
			return err
		}
		for _, m := range f.materials {
			if m.Value != "" && strings.Contains(script, jsString(m.Value)) {
				f.selected, f.reads = m.Value, 0
			}
		}
		*res.(*bool) = true
	case strings.Contains(script, jsString("#material")):
		*res.(*[]SelectOption) = f.materials
	default:
		*res.(*[]SelectOption) = f.next()
	}
	return nil
}

func (f *fakePage) next() []SelectOption {
	if f.selected == "" {
		return f.initial
	}
	seq := f.quantities[f.selected]
	i := min(f.reads, len(seq)-1)
	f.reads++
	return seq[i]
}

func newPageScraper(page scriptRunner, settle time.Duration) *MatrixScraper {
	s := NewMatrixScraper(nil, MatrixConfig{PollInterval: time.Millisecond, SettleTimeout: settle}, zap.NewNop())
	s.page = page
	return s
}

var (
	chooseQuantity  = []SelectOption{{Value: "", Text: "Vælg antal"}}
	vinylQuantities = []SelectOption{
		{Value: "", Text: "Vælg antal"},
		{Value: "100", Text: "100 stk. - 899,00 kr"},
		{Value: "250", Text: "250 stk. - 1.499,00 kr"},
	}
	clearQuantities = []SelectOption{
		{Value: "100", Text: "100 stk. - 999,00 kr"},
		{Value: "250", Text: "250 stk. - 1.699,00 kr"},
	}
)

func TestMatrixScraper_WaitSettled(t *testing.T) {
	ctx := context.Background()

	t.Run("placeholder-only list is not settled", func(t *testing.T) {
		page := &fakePage{selected: "12", quantities: map[string][][]SelectOption{
			"12": {chooseQuantity, chooseQuantity, vinylQuantities, vinylQuantities},
		}}
		items, err := newPageScraper(page, time.Second).waitSettled(ctx, "#quantity", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"100 stk. - 899,00 kr", "250 stk. - 1.499,00 kr"}, items)
		assert.Equal(t, 4, page.reads)
	})

	t.Run("list identical to the previous material needs several polls", func(t *testing.T) {
		page := &fakePage{selected: "12", quantities: map[string][][]SelectOption{
			"12": {vinylQuantities},
		}}
		before := OptionTexts(vinylQuantities)
		items, err := newPageScraper(page, time.Second).waitSettled(ctx, "#quantity", before)
		require.NoError(t, err)
		assert.Equal(t, before, items)
		assert.Equal(t, 5, page.reads)
	})

	t.Run("empty list times out", func(t *testing.T) {
		page := &fakePage{selected: "12", quantities: map[string][][]SelectOption{
			"12": {chooseQuantity},
		}}
		_, err := newPageScraper(page, 20*time.Millisecond).waitSettled(ctx, "#quantity", nil)
		assert.ErrorIs(t, err, errNotSettled)
		assert.True(t, DefaultRetryPolicy().IsRetryable(err))
	})

	t.Run("cancelled context stops polling", func(t *testing.T) {
		page := &fakePage{selected: "12", quantities: map[string][][]SelectOption{
			"12": {chooseQuantity},
		}}
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := newPageScraper(page, time.Second).waitSettled(cancelled, "#quantity", nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMatrixScraper_ScrapeMaterials(t *testing.T) {
	ctx := context.Background()
	req := extraction.MatrixRequest{
		MaterialSelect: "#material",
		QuantitySelect: "#quantity",
		Materials:      []string{"hvid vinyl", "Papir", "Transparent vinyl"},
	}
	newPage := func() *fakePage {
		return &fakePage{
			materials: []SelectOption{
				{Value: "", Text: "Vælg materiale"},
				{Value: "12", Text: "Hvid vinyl"},
				{Value: "13", Text: "Transparent vinyl"},
			},
			initial: chooseQuantity,
			quantities: map[string][][]SelectOption{
				"12": {vinylQuantities},
				"13": {clearQuantities},
			},
		}
	}

	t.Run("visits materials in order", func(t *testing.T) {
		page := newPage()
		result, err := newPageScraper(page, time.Second).scrapeMaterials(ctx, req)
		require.NoError(t, err)

		require.Len(t, result.Materials, 2)
		assert.Equal(t, "hvid vinyl", result.Materials[0].Label)
		assert.Equal(t, "12", result.Materials[0].Value)
		assert.Equal(t, []string{"100 stk. - 899,00 kr", "250 stk. - 1.499,00 kr"}, result.Materials[0].Items)
		assert.Equal(t, "13", result.Materials[1].Value)
		assert.Equal(t, []string{"100 stk. - 999,00 kr", "250 stk. - 1.699,00 kr"}, result.Materials[1].Items)
		assert.Equal(t, []string{"Papir"}, result.Missing)
		assert.Equal(t, 2, page.selects)
	})

	t.Run("transient select error is retried", func(t *testing.T) {
		page := newPage()
		page.selectErrs = []error{errors.New("Execution context was destroyed, most likely because of a navigation")}

		result, err := newPageScraper(page, time.Second).scrapeMaterials(ctx, req)
		require.NoError(t, err)
		assert.Len(t, result.Materials, 2)
		assert.Equal(t, 3, page.selects)
	})

	t.Run("permanent select error fails at once", func(t *testing.T) {
		page := newPage()
		page.selectErrs = []error{errors.New("select #material not found")}

		_, err := newPageScraper(page, time.Second).scrapeMaterials(ctx, req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "selecting hvid vinyl failed")
		assert.Equal(t, 1, page.selects)
	})

	t.Run("unsettled quantities are retried then reported", func(t *testing.T) {
		page := newPage()
		page.quantities["12"] = [][]SelectOption{chooseQuantity}

		_, err := newPageScraper(page, 10*time.Millisecond).scrapeMaterials(ctx, req)
		require.Error(t, err)
		assert.ErrorIs(t, err, errNotSettled)
		assert.Contains(t, err.Error(), "reading quantities for hvid vinyl failed")
	})
}
