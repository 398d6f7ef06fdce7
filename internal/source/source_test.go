package source

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shutdown-tracker/internal/registry"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestForLocation(t *testing.T) {
	client := DefaultClient()

	tests := []struct {
		strategy registry.Strategy
		want     any
	}{
		{registry.StrategyTable, &TableAdapter{}},
		{registry.StrategyScript, &ScriptPayloadAdapter{}},
		{registry.StrategyImage, &ImageReferenceAdapter{}},
		{registry.StrategyAddress, &AddressLookupAdapter{}},
	}
	for _, tt := range tests {
		a, err := ForLocation(registry.LocationConfig{ID: "x", Strategy: tt.strategy}, client)
		require.NoError(t, err)
		assert.IsType(t, tt.want, a)
	}

	_, err := ForLocation(registry.LocationConfig{ID: "x", Strategy: "rss"}, client)
	assert.Error(t, err)
}

func TestHasNoOutageMarker(t *testing.T) {
	assert.True(t, hasNoOutageMarker(mustDoc(t, `<p>Відключення не заплановані на сьогодні</p>`)))
	assert.True(t, hasNoOutageMarker(mustDoc(t, `<p>Наразі відключень немає.</p>`)))
	assert.False(t, hasNoOutageMarker(mustDoc(t, `<p>Графік відключень на сьогодні</p>`)))
}
