package website

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/place-enrich/internal/model"
)

func s2u(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"padariacentral.com.br", "https://padariacentral.com.br/"},
		{"  http://Padaria.com.br/Home#top ", "http://padaria.com.br/Home"},
		{"//cdn.padaria.com.br", "https://cdn.padaria.com.br/"},
		{"https://www.padaria.com.br/?utm=x", "https://www.padaria.com.br/?utm=x"},
	}
	for _, tt := range tests {
		u, err := NormalizeURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, u.String(), tt.in)
	}
}

func TestNormalizeURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "padaria central.com.br", "ftp://padaria.com.br", "https://", "localhost", "http://%zz"} {
		_, err := NormalizeURL(in)
		require.Error(t, err, in)
		assert.True(t, model.IsValidation(err), in)
		assert.Contains(t, err.Error(), "invalid URL", in)
	}
}

func TestCanonicalAndSameSite(t *testing.T) {
	assert.Equal(t, canonical(s2u(t, "https://A.com.br/sobre/")), canonical(s2u(t, "https://a.com.br/sobre?x=1#y")))
	assert.Equal(t, "https://a.com.br", canonical(s2u(t, "https://a.com.br/")))
	assert.True(t, sameSite("www.a.com.br", "A.com.br"))
	assert.False(t, sameSite("b.com.br", "a.com.br"))
}
