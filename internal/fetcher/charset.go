package fetcher

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CharsetReader converts input in the named charset to UTF-8.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([a-zA-Z0-9_\-]+)`)

// DecodeHTML returns body as UTF-8, using the header charset, then a <meta>
// charset in the first KiB, and falling back to the raw bytes.
func DecodeHTML(body []byte, headerCharset string) []byte {
	label := strings.TrimSpace(headerCharset)
	if label == "" {
		head := body
		if len(head) > 1024 {
			head = head[:1024]
		}
		if m := metaCharsetRe.FindSubmatch(head); m != nil {
			label = string(m[1])
		}
	}
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return body
	}

	r, err := CharsetReader(label, bytes.NewReader(body))
	if err != nil {
		return body
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return decoded
}
