package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/klondike/internal/testutil"
)

func TestBWTForwardBanana(t *testing.T) {
	t.Parallel()

	last, primary := bwtForward([]byte("banana"))
	assert.Equal(t, "nnbaaa", string(last))
	assert.Equal(t, 3, primary)
	assert.Equal(t, "banana", string(bwtInverse(last, primary)))
}

func TestBWTPeriodic(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"a", "aa", "abab", "abcabcabc", "aaaaaaab"} {
		last, primary := bwtForward([]byte(s))
		assert.Equal(t, s, string(bwtInverse(last, primary)), s)
	}
}

func TestBWTCompressesText(t *testing.T) {
	t.Parallel()

	data := testutil.Text(100_000)
	enc, err := BWT{}.Encode(data)
	require.NoError(t, err)
	assert.Less(t, len(enc), len(data)/10)

	dec, err := BWT{}.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestMTF(t *testing.T) {
	t.Parallel()

	enc := mtfEncode([]byte("bbba"))
	assert.Equal(t, []byte{'b', 0, 0, 'a' + 1}, enc)
	assert.Equal(t, []byte("bbba"), mtfDecode(enc))
}

func TestRLE(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{name: "short runs", in: []byte("aaabb"), want: []byte("aaabb")},
		{name: "threshold", in: []byte("aaaa"), want: []byte{'a', 'a', 'a', 'a', 0}},
		{name: "longer", in: []byte("aaaaaaab"), want: []byte{'a', 'a', 'a', 'a', 3, 'b'}},
		{
			name: "split at max",
			in:   bytes.Repeat([]byte{'a'}, 300),
			want: []byte{'a', 'a', 'a', 'a', 255, 'a', 'a', 'a', 'a', 37},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := rleEncode(tt.in)
			assert.Equal(t, tt.want, got)
			dec, err := rleDecode(got)
			require.NoError(t, err)
			assert.Equal(t, tt.in, dec)
		})
	}

	_, err := rleDecode([]byte("aaaa"))
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestBWTRejectsOversized(t *testing.T) {
	t.Parallel()

	_, err := BWT{}.Encode(make([]byte, MaxBWTBlock+1))
	require.ErrorIs(t, err, ErrUnsuitable)
}
