package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLZ77NearMatch(t *testing.T) {
	t.Parallel()

	enc, err := LZ77{}.Encode([]byte("hello hello hello"))
	require.NoError(t, err)
	// six literals then one overlapping match of 11 bytes at distance 6
	assert.Equal(t, append([]byte("hello "), lzNear, 11-lzMinMatch, 6-1), enc)
}

func TestLZ77EscapesMarkers(t *testing.T) {
	t.Parallel()

	enc, err := LZ77{}.Encode([]byte{253, 254, 255, 0})
	require.NoError(t, err)
	assert.Equal(t, []byte{lzEscape, 253, lzEscape, 254, lzEscape, 255, 0}, enc)
}

func TestLZ77FarMatch(t *testing.T) {
	t.Parallel()

	block := []byte("0123456789abcdefghij")
	src := append([]byte{}, block...)
	for i := range 1000 {
		src = append(src, byte('A'+i%20))
	}
	src = append(src, block...)

	enc, err := LZ77{}.Encode(src)
	require.NoError(t, err)
	tail := enc[len(enc)-4:]
	assert.Equal(t, byte(lzFar), tail[0])
	assert.Equal(t, byte(len(block)-lzMinMatch), tail[1])

	dec, err := LZ77{}.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, src, dec)
}

func TestLZ77LongRun(t *testing.T) {
	t.Parallel()

	src := bytes.Repeat([]byte{'z'}, 5000)
	enc, err := LZ77{}.Encode(src)
	require.NoError(t, err)
	assert.Less(t, len(enc), 100)

	dec, err := LZ77{}.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, src, dec)
}
