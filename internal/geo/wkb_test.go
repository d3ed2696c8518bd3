package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePoint(t *testing.T) {
	data, err := EncodePoint(-23.5505, -46.6333)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	p, err := DecodePoint(data)
	require.NoError(t, err)
	assert.InDelta(t, -23.5505, p.Lat, 1e-9)
	assert.InDelta(t, -46.6333, p.Lng, 1e-9)
}

func TestDecodePoint_Garbage(t *testing.T) {
	_, err := DecodePoint([]byte{0x01, 0x02})
	assert.Error(t, err)
}
