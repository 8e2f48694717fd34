package scrape

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText_RemovesNonContent(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body>
<header><a href="/">Logo</a></header>
<main><h2>Serviços</h2><ul><li>Limpeza</li><li>Clareamento</li></ul><!-- hidden --></main>
<noscript>Ative o JavaScript</noscript><svg><text>icon</text></svg><iframe src="x"></iframe>
</body></html>`))
	require.NoError(t, err)

	assert.Equal(t, "Serviços Limpeza Clareamento", ExtractText(doc))
}

func TestNormalizeSpace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeSpace("  a\n\n b\t\tc  "))
	assert.Equal(t, "", NormalizeSpace(" \n "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))

	// Limits count characters, not bytes.
	assert.Equal(t, "Sã", Truncate("São", 2))
	assert.Equal(t, "São", Truncate("São", 3))
	assert.Equal(t, "ação", Truncate("ação e reação", 4))
}
