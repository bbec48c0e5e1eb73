package klondike

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/klondike/codec"
	"github.com/meigma/klondike/internal/testutil"
)

func TestExtractNotFound(t *testing.T) {
	t.Parallel()

	a := New()
	_, err := a.Extract("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractEmpty(t *testing.T) {
	t.Parallel()

	a := New()
	_, err := a.Add("empty", []byte{})
	require.NoError(t, err)
	got, err := a.Extract("empty")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	var buf bytes.Buffer
	_, err = a.WriteTo(&buf)
	require.NoError(t, err)
	b, err := Load(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	got, err = b.Extract("empty")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, []byte{}, got)
}

func TestExtractCorrupt(t *testing.T) {
	t.Parallel()

	a := New()
	_, err := a.Add("a.txt", testutil.Text(100))
	require.NoError(t, err)
	a.slots[0].blob = []byte{byte(codec.TechniqueLZ77), 254}

	_, err = a.Extract("a.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
	var ee *EntryError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "a.txt", ee.Name)
}

func TestExtractSizeMismatch(t *testing.T) {
	t.Parallel()

	a := New()
	_, err := a.Add("a.txt", []byte("abc"))
	require.NoError(t, err)
	a.slots[0].entry.OriginalSize = 4

	_, err = a.Extract("a.txt")
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestExtractAllContinues(t *testing.T) {
	t.Parallel()

	a := New()
	for _, name := range []string{"a", "b", "c"} {
		_, err := a.Add(name, []byte(name))
		require.NoError(t, err)
	}
	a.slots[1].blob = []byte{0xEE}

	var seen []string
	err := a.ExtractAll(func(e Entry, data []byte) error {
		seen = append(seen, e.Name)
		assert.Equal(t, []byte(e.Name), data)
		return nil
	})
	assert.Equal(t, []string{"a", "c"}, seen)

	var xe *ExtractError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, []string{"b"}, xe.Names())
	assert.ErrorIs(t, err, ErrUnknownTechnique)
	assert.Contains(t, err.Error(), `"b"`)
}

func TestExtractAllStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	a := New()
	for _, name := range []string{"a", "b"} {
		_, err := a.Add(name, []byte(name))
		require.NoError(t, err)
	}
	stop := errors.New("stop")
	calls := 0
	err := a.ExtractAll(func(Entry, []byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestExtractTo(t *testing.T) {
	t.Parallel()

	a := New()
	files := map[string][]byte{
		"top.txt":          []byte("top"),
		"nested/deep/a.md": testutil.Text(700),
	}
	for _, name := range []string{"top.txt", "nested/deep/a.md"} {
		_, err := a.Add(name, files[name])
		require.NoError(t, err)
	}

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, a.ExtractTo(dest))
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	only := t.TempDir()
	require.NoError(t, a.ExtractTo(only, "top.txt"))
	assert.FileExists(t, filepath.Join(only, "top.txt"))
	assert.NoDirExists(t, filepath.Join(only, "nested"))

	err := a.ExtractTo(only, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractToRejectsTraversal(t *testing.T) {
	t.Parallel()

	a := New()
	for _, name := range []string{"../evil.txt", "/abs.txt", "ok.txt"} {
		_, err := a.Add(name, []byte("x"))
		require.NoError(t, err)
	}

	parent := t.TempDir()
	dest := filepath.Join(parent, "dest")
	err := a.ExtractTo(dest)

	var xe *ExtractError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, []string{"../evil.txt", "/abs.txt"}, xe.Names())
	assert.ErrorIs(t, err, fs.ErrInvalid)

	assert.FileExists(t, filepath.Join(dest, "ok.txt"))
	assert.NoFileExists(t, filepath.Join(parent, "evil.txt"))
}

func TestVerify(t *testing.T) {
	t.Parallel()

	a := New()
	_, err := a.Add("good.txt", []byte("good"))
	require.NoError(t, err)
	_, err = a.Add("bad.txt", []byte("bad"))
	require.NoError(t, err)
	a.slots[1].entry.OriginalSize = 10

	ok, err := a.Verify()
	require.Len(t, ok, 1)
	assert.Equal(t, "good.txt", ok[0].Name)
	assert.Equal(t, digest.FromBytes([]byte("good")), ok[0].Digest)

	var xe *ExtractError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, []string{"bad.txt"}, xe.Names())
	assert.ErrorIs(t, err, ErrSizeMismatch)
}
