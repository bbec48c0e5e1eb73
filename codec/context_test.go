package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/klondike/internal/testutil"
)

func TestContextOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		alphabet int
		want     int
	}{
		{1, 6}, {4, 6}, {5, 5}, {16, 5}, {17, 4}, {32, 4}, {33, 3}, {64, 3}, {65, 2}, {256, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, contextOrder(tt.alphabet), "alphabet %d", tt.alphabet)
	}
}

func TestContextPredictsDNA(t *testing.T) {
	t.Parallel()

	data := testutil.DNA(64<<10, 3)
	enc, err := Context{}.Encode(data)
	require.NoError(t, err)
	assert.Equal(t, byte(6), enc[0])
	assert.Less(t, len(enc), len(data))

	dec, err := Context{}.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestContextRejectsRandom(t *testing.T) {
	t.Parallel()

	_, err := Context{}.Encode(testutil.Random(16<<10, 9))
	require.ErrorIs(t, err, ErrUnsuitable)
}

func TestContextStatsKeepsFirstOnTie(t *testing.T) {
	t.Parallel()

	var s ctxStats
	s.add('x')
	s.add('y')
	assert.Equal(t, byte('x'), s.top)
	s.add('y')
	assert.Equal(t, byte('y'), s.top)
	s.add('x')
	assert.Equal(t, byte('y'), s.top)
}

func TestContextEscapesMarkers(t *testing.T) {
	t.Parallel()

	data := []byte{0xFE, 0xFF, 0xFE, 0xFF, 0xFE, 0xFF, 0xFE, 0xFF, 0xFE, 0xFF}
	enc, err := Context{}.Encode(data)
	require.NoError(t, err)
	dec, err := Context{}.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}
