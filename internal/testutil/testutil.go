// Package testutil provides deterministic data generators and filesystem
// helpers shared by package tests.
package testutil

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Random returns n pseudo-random bytes. The same seed always yields the same
// bytes.
func Random(n int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // test data
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.Uint32())
	}
	return out
}

// Text returns n bytes of repetitive English-like text.
func Text(n int) []byte {
	const words = "the quick brown fox jumps over the lazy dog while klondike packs another archive "
	return []byte(strings.Repeat(words, n/len(words)+1)[:n])
}

// Periodic returns n bytes repeating pattern.
func Periodic(pattern string, n int) []byte {
	return []byte(strings.Repeat(pattern, n/len(pattern)+1)[:n])
}

// DNA returns n bytes over the alphabet ACGT with local repetition, the kind
// of input a high-order context model predicts well.
func DNA(n int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, seed+1)) //nolint:gosec // test data
	const bases = "ACGT"
	motif := make([]byte, 24)
	for i := range motif {
		motif[i] = bases[r.IntN(len(bases))]
	}
	out := make([]byte, n)
	for i := range out {
		if r.IntN(16) == 0 {
			out[i] = bases[r.IntN(len(bases))]
		} else {
			out[i] = motif[i%len(motif)]
		}
	}
	return out
}

// WriteFile writes data to dir/name, creating parent directories, and
// returns the full path.
func WriteFile(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(tb, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tb, os.WriteFile(path, data, 0o600))
	return path
}
