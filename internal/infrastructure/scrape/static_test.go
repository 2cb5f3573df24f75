package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/priceimport/internal/domain/extraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSelector(t testing.TB, raw string) extraction.Selector {
	t.Helper()
	s, err := extraction.ParseSelector(raw)
	require.NoError(t, err)
	return s
}

const priceListPage = `<!DOCTYPE html>
<html><head><title>Stickers</title>
<style>.prices li { color: red; }</style>
<script>var x = "<ul class='prices'><li>fake</li></ul>";</script>
</head><body>
<!-- <ul class="prices"><li>commented</li></ul> -->
<div id="main">
  <ul class="list prices" data-x='a>b'>
    <li><span>100 stk.</span> <b>899,00&nbsp;kr</b></li>
    <li>250 stk. &ndash; 1.499,00 kr</li>
    <li>
       500   stk.
       <em>2.299,00 kr</em>
    </li>
    <li></li>
    <li><ul><li>nested</li></ul></li>
  </ul>
  <table class="matrix"><tr><td>A</td></tr></table>
</div>
</body></html>`

func TestExtractItems(t *testing.T) {
	t.Run("class selector reads direct children", func(t *testing.T) {
		items, err := ExtractItems(priceListPage, mustSelector(t, "ul.prices"))
		require.NoError(t, err)
		assert.Equal(t, []string{
			"100 stk. 899,00 kr",
			"250 stk. – 1.499,00 kr",
			"500 stk. 2.299,00 kr",
			"nested",
		}, items)
	})

	t.Run("id selector", func(t *testing.T) {
		items, err := ExtractItems(priceListPage, mustSelector(t, "#main"))
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "A", items[1])
	})

	t.Run("bare tag selector picks first match", func(t *testing.T) {
		items, err := ExtractItems(`<ol><li>one</li><li>two</li></ol><ol><li>three</li></ol>`, mustSelector(t, "ol"))
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two"}, items)
	})

	t.Run("self-closing match is not a container", func(t *testing.T) {
		markup := `<div class="p"/><p>intro</p><div class="p"><span>100 stk 40 kr</span><span>250 stk 70 kr</span></div><footer>x</footer>`
		items, err := ExtractItems(markup, mustSelector(t, "div.p"))
		require.NoError(t, err)
		assert.Equal(t, []string{"100 stk 40 kr", "250 stk 70 kr"}, items)
	})

	t.Run("void element never becomes the container", func(t *testing.T) {
		_, err := ExtractItems(`<img class="prices"><p>100 stk 40 kr</p>`, mustSelector(t, ".prices"))
		assert.ErrorIs(t, err, extraction.ErrContainerNotFound)
	})

	t.Run("unclosed list items", func(t *testing.T) {
		items, err := ExtractItems(`<ul id="q"><li>10 stk 5 kr<li>20 stk 9 kr</ul>`, mustSelector(t, "ul#q"))
		require.NoError(t, err)
		assert.Equal(t, []string{"10 stk 5 kr", "20 stk 9 kr"}, items)
	})

	t.Run("missing container", func(t *testing.T) {
		_, err := ExtractItems(priceListPage, mustSelector(t, "ol.none"))
		assert.ErrorIs(t, err, extraction.ErrContainerNotFound)
	})

	t.Run("container without text items", func(t *testing.T) {
		_, err := ExtractItems(`<ul class="prices"><li> </li></ul>`, mustSelector(t, ".prices"))
		assert.ErrorIs(t, err, extraction.ErrNoItems)
	})
}

func TestStaticProvider_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/prices":
			assert.NotEmpty(t, r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(priceListPage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p := NewStaticProvider(StaticConfig{}, nil)
	assert.Equal(t, extraction.ProviderStatic, p.Name())

	t.Run("reads items", func(t *testing.T) {
		items, err := p.Extract(context.Background(), server.URL+"/prices", mustSelector(t, "ul.prices"))
		require.NoError(t, err)
		assert.Len(t, items, 4)
	})

	t.Run("http error is a provider error", func(t *testing.T) {
		_, err := p.Extract(context.Background(), server.URL+"/missing", mustSelector(t, "ul.prices"))
		var pe *extraction.ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, extraction.ProviderStatic, pe.Provider)
		assert.Equal(t, extraction.ErrCodeRequestFailed, pe.Code)
	})

	t.Run("missing container code", func(t *testing.T) {
		_, err := p.Extract(context.Background(), server.URL+"/prices", mustSelector(t, "ol"))
		var pe *extraction.ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, extraction.ErrCodeContainerMissing, pe.Code)
	})
}
