package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/place-enrich/internal/model"
)

func TestEncodePoint_RoundTrip(t *testing.T) {
	data, err := EncodePoint(&model.Coordinates{Lat: -22.9056, Lng: -47.0608})
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, byte(1), data[0], "little-endian byte order")

	c, err := DecodePoint(data)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.InDelta(t, -22.9056, c.Lat, 1e-9)
	assert.InDelta(t, -47.0608, c.Lng, 1e-9)
}

func TestEncodePoint_Missing(t *testing.T) {
	data, err := EncodePoint(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = EncodePoint(&model.Coordinates{})
	require.NoError(t, err)
	assert.Nil(t, data)

	c, err := DecodePoint(nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodePoint_Garbage(t *testing.T) {
	_, err := DecodePoint([]byte{0x01, 0x02})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geo: decode point")
}
