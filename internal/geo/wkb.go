package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/place-enrich/internal/model"
)

// EncodePoint converts coordinates to little-endian EWKB with SRID 4326.
// Invalid coordinates encode to nil.
func EncodePoint(c *model.Coordinates) ([]byte, error) {
	if c == nil || !c.Valid() {
		return nil, nil
	}
	data, err := ewkb.Marshal(c.Point(), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode point")
	}
	return data, nil
}

// DecodePoint parses an EWKB point. Empty input decodes to nil.
func DecodePoint(data []byte) (*model.Coordinates, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geo: decode point")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return nil, eris.Errorf("geo: expected point, got %T", g)
	}
	c := model.CoordinatesFromPoint(p)
	return &c, nil
}
