package fetcher

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
)

// StreamXML decodes every element with the given local name into T and sends
// it on the returned channel, stopping after limit items when limit > 0.
// Non-UTF-8 documents are decoded through their declared charset. Both
// channels are closed when decoding ends.
func StreamXML[T any](ctx context.Context, r io.Reader, element string, limit int) (<-chan T, <-chan error) {
	out := make(chan T, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		dec := xml.NewDecoder(r)
		dec.CharsetReader = CharsetReader
		dec.Strict = false

		sent := 0
		for limit <= 0 || sent < limit {
			tok, err := dec.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errc <- eris.Wrap(err, "fetcher: read xml token")
				return
			}

			se, ok := tok.(xml.StartElement)
			if !ok || se.Name.Local != element {
				continue
			}

			var item T
			if err := dec.DecodeElement(&item, &se); err != nil {
				errc <- eris.Wrapf(err, "fetcher: decode <%s>", element)
				return
			}

			select {
			case out <- item:
				sent++
			case <-ctx.Done():
				errc <- eris.Wrap(ctx.Err(), "fetcher: xml stream cancelled")
				return
			}
		}
	}()

	return out, errc
}
