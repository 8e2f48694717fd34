package scrape

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/place-enrich/internal/fetcher"
)

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name string
		resp *fetcher.Response
		want BlockType
	}{
		{
			name: "cloudflare 403 header",
			resp: &fetcher.Response{StatusCode: 403, Header: http.Header{"Cf-Ray": {"abc"}}},
			want: BlockCloudflare,
		},
		{
			name: "cloudflare 503 server",
			resp: &fetcher.Response{StatusCode: 503, Header: http.Header{"Server": {"cloudflare"}}},
			want: BlockCloudflare,
		},
		{
			name: "challenge body",
			resp: &fetcher.Response{StatusCode: 200, Header: http.Header{}, Body: []byte("Checking your browser before accessing")},
			want: BlockCloudflare,
		},
		{
			name: "recaptcha widget",
			resp: &fetcher.Response{StatusCode: 200, Header: http.Header{}, Body: []byte(`<div class="g-recaptcha"></div>`)},
			want: BlockCaptcha,
		},
		{
			name: "js shell",
			resp: &fetcher.Response{StatusCode: 200, Header: http.Header{}, Body: []byte("<html><noscript>Enable JavaScript to continue</noscript></html>")},
			want: BlockJSShell,
		},
		{
			name: "large page with noscript is fine",
			resp: &fetcher.Response{StatusCode: 200, Header: http.Header{}, Body: []byte("<noscript>javascript</noscript>" + strings.Repeat("conteudo ", 400))},
			want: BlockNone,
		},
		{
			name: "ddos-guard server",
			resp: &fetcher.Response{StatusCode: 403, Header: http.Header{"Server": {"ddos-guard"}}},
			want: BlockWAF,
		},
		{
			name: "sucuri body",
			resp: &fetcher.Response{StatusCode: 200, Header: http.Header{}, Body: []byte("<title>Sucuri WebSite Firewall - Access Denied</title>")},
			want: BlockWAF,
		},
		{
			name: "portuguese captcha",
			resp: &fetcher.Response{StatusCode: 200, Header: http.Header{}, Body: []byte("<p>Confirme que você não sou um robô</p>")},
			want: BlockCaptcha,
		},
		{
			name: "portuguese challenge",
			resp: &fetcher.Response{StatusCode: 200, Header: http.Header{}, Body: []byte("Verificando seu navegador antes de acessar")},
			want: BlockCloudflare,
		},
		{
			name: "plain 403",
			resp: &fetcher.Response{StatusCode: 403, Header: http.Header{}, Body: []byte("Forbidden")},
			want: BlockNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, kind := DetectBlock(tt.resp)
			assert.Equal(t, tt.want != BlockNone, blocked)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestDetectBlock_Nil(t *testing.T) {
	blocked, kind := DetectBlock(nil)
	assert.False(t, blocked)
	assert.Equal(t, BlockNone, kind)
}
