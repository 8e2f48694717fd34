package scrape

import (
	"net/http"
	"strings"

	"github.com/sells-group/place-enrich/internal/fetcher"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockWAF        BlockType = "waf"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// shellMaxBytes bounds documents inspected for JavaScript-only shells.
const shellMaxBytes = 2000

type bodySignature struct {
	kind    BlockType
	markers []string // any marker matches
}

// Checked in order; markers are lower case.
var bodySignatures = []bodySignature{
	{BlockCloudflare, []string{"checking your browser", "cf-browser-verification", "cf-chl-", "verificando seu navegador"}},
	{BlockWAF, []string{"ddos-guard", "sucuri website firewall", "access denied | sucuri", "incapsula incident"}},
	{BlockCaptcha, []string{"g-recaptcha", "h-captcha", "hcaptcha.com", "complete the captcha", "não sou um robô", "nao sou um robo"}},
}

// DetectBlock checks a response for signs of anti-bot protection.
func DetectBlock(resp *fetcher.Response) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if kind := headerBlock(resp); kind != BlockNone {
		return true, kind
	}

	lower := strings.ToLower(string(resp.Body))
	for _, sig := range bodySignatures {
		for _, m := range sig.markers {
			if strings.Contains(lower, m) {
				return true, sig.kind
			}
		}
	}

	if len(resp.Body) < shellMaxBytes {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}

// headerBlock recognises edge-network denials from status and headers alone.
func headerBlock(resp *fetcher.Response) BlockType {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusServiceUnavailable {
		return BlockNone
	}
	h := resp.Header
	switch {
	case h.Get("Cf-Ray") != "", h.Get("Cf-Cache-Status") != "", strings.EqualFold(h.Get("Server"), "cloudflare"):
		return BlockCloudflare
	case h.Get("X-Sucuri-Id") != "", strings.EqualFold(h.Get("Server"), "ddos-guard"):
		return BlockWAF
	}
	return BlockNone
}
