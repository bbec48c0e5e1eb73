package klondike

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/klondike/engine"
	"github.com/meigma/klondike/internal/format"
	"github.com/meigma/klondike/internal/testutil"
)

func TestEncryptedRoundTrip(t *testing.T) {
	t.Parallel()

	a := New()
	_, err := a.Add("secret-name.txt", testutil.Text(2048))
	require.NoError(t, err)
	require.NoError(t, a.SetPassword("correct horse"))
	assert.True(t, a.Encrypted())

	path := filepath.Join(t.TempDir(), "enc.kld")
	require.NoError(t, a.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("KLONDIKEENCRYPTED")))
	assert.False(t, bytes.Contains(raw, []byte("secret-name.txt")))

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = Open(path, WithPassword("wrong"))
	assert.ErrorIs(t, err, ErrAuth)

	b, err := Open(path, WithPassword("correct horse"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	assert.True(t, b.Encrypted())
	got, err := b.Extract("secret-name.txt")
	require.NoError(t, err)
	assert.Equal(t, testutil.Text(2048), got)
}

func TestClearPassword(t *testing.T) {
	t.Parallel()

	a := New()
	_, err := a.Add("a.txt", []byte("plain"))
	require.NoError(t, err)
	require.NoError(t, a.SetPassword("pw"))
	a.ClearPassword()
	assert.False(t, a.Encrypted())

	var buf bytes.Buffer
	_, err = a.WriteTo(&buf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("KLONDIKEULTIMATE")))

	assert.Error(t, a.SetPassword(""))
}

func TestOpenPlainClearsPassword(t *testing.T) {
	t.Parallel()

	plain := New()
	_, err := plain.Add("a", []byte("a"))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = plain.WriteTo(&buf)
	require.NoError(t, err)

	b, err := Load(&buf, WithPassword("unused"))
	require.NoError(t, err)
	assert.False(t, b.Encrypted())
}

func TestLegacyFormat(t *testing.T) {
	t.Parallel()

	a := New(WithLegacyFormat(true))
	_, err := a.Add("Notes.TXT", testutil.Text(300))
	require.NoError(t, err)
	_, err = a.Add("Makefile", []byte("all:\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = a.WriteTo(&buf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("KLONDIKE")))
	assert.False(t, bytes.HasPrefix(buf.Bytes(), []byte("KLONDIKEULTIMATE")))

	b, err := Load(&buf)
	require.NoError(t, err)
	e, ok := b.Entry("Notes.TXT")
	require.True(t, ok)
	assert.Equal(t, ".txt", e.Type)
	e, ok = b.Entry("Makefile")
	require.True(t, ok)
	assert.Equal(t, "file", e.Type)

	got, err := b.Extract("Notes.TXT")
	require.NoError(t, err)
	assert.Equal(t, testutil.Text(300), got)
}

func TestOpenTableOverflow(t *testing.T) {
	t.Parallel()

	buf := []byte("KLONDIKEULTIMATE")
	buf = binary.LittleEndian.AppendUint32(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, 0xFFFFFFFF)
	buf = append(buf, 0, 0, 0, 0)

	_, err := Load(bytes.NewReader(buf))
	require.Error(t, err)
	var fe *FormatError
	assert.ErrorAs(t, err, &fe)
	assert.True(t, IsFormatError(err))
}

func TestOpenRejectsGarbage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte("NOTKLONDIKE")},
		{"truncated header", []byte("KLOND")},
		{"legacy garbage", []byte("KLONDIKEENCRYPTX\x00\x00\x00\x00")},
		{"truncated marker", []byte("KLONDIKEENCRYPTE")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(bytes.NewReader(tt.data))
			assert.True(t, IsFormatError(err), "%v", err)
		})
	}
}

// duplicateContainer returns a typed container whose second record repeats
// the first name.
func duplicateContainer(t *testing.T) []byte {
	t.Helper()
	blocks := [][]byte{engine.Stored([]byte("one")), engine.Stored([]byte("two"))}
	records := []format.Record{
		{Name: "a.txt", OriginalSize: 3, CompressedSize: 4, Type: ".txt"},
		{Name: "a.txt", OriginalSize: 3, CompressedSize: 4, Type: ".txt"},
	}
	_, err := format.Layout(records)
	require.NoError(t, err)

	var buf bytes.Buffer
	buf.Write(format.Header(format.VariantTyped))
	_, err = format.WriteBody(&buf, records, true, func(i int) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(blocks[i])), nil
	})
	require.NoError(t, err)
	return buf.Bytes()
}

func TestOpenSalvage(t *testing.T) {
	t.Parallel()

	data := duplicateContainer(t)

	_, err := Load(bytes.NewReader(data))
	assert.True(t, IsFormatError(err), "%v", err)

	a, err := Load(bytes.NewReader(data), WithSalvage(true))
	require.NoError(t, err)
	require.Equal(t, 1, a.Len())
	got, err := a.Extract("a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)
}

func TestOpenSalvageTruncated(t *testing.T) {
	t.Parallel()

	a := New()
	_, err := a.Add("first.txt", []byte("first"))
	require.NoError(t, err)
	_, err = a.Add("second.txt", testutil.Text(1000))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = a.WriteTo(&buf)
	require.NoError(t, err)
	data := buf.Bytes()[:buf.Len()-10]

	_, err = Load(bytes.NewReader(data))
	require.Error(t, err)

	b, err := Load(bytes.NewReader(data), WithSalvage(true))
	require.NoError(t, err)
	require.Equal(t, 1, b.Len())
	got, err := b.Extract("first.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
}

func TestFailedOpenLeavesArchive(t *testing.T) {
	t.Parallel()

	a := New()
	_, err := a.Add("keep.txt", []byte("keep"))
	require.NoError(t, err)

	err = a.LoadFrom(bytes.NewReader([]byte("garbage that is not a container")))
	require.Error(t, err)
	assert.Equal(t, StateModified, a.State())
	require.Equal(t, 1, a.Len())
	got, err := a.Extract("keep.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), got)

	err = a.OpenFile(filepath.Join(t.TempDir(), "missing.kld"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 1, a.Len())
}

func TestOpenReplacesEntries(t *testing.T) {
	t.Parallel()

	src := New()
	_, err := src.Add("new.txt", []byte("new"))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = src.WriteTo(&buf)
	require.NoError(t, err)

	a := New()
	_, err = a.Add("old.txt", []byte("old"))
	require.NoError(t, err)
	require.NoError(t, a.LoadFrom(&buf))

	_, ok := a.Entry("old.txt")
	assert.False(t, ok)
	_, ok = a.Entry("new.txt")
	assert.True(t, ok)
}

func TestProgressStages(t *testing.T) {
	t.Parallel()

	var stages []ProgressStage
	record := func(ev ProgressEvent) { stages = append(stages, ev.Stage) }

	a := New(WithProgress(record))
	_, err := a.Add("a.txt", testutil.Text(100))
	require.NoError(t, err)
	require.NoError(t, a.SetPassword("pw"))
	var buf bytes.Buffer
	_, err = a.WriteTo(&buf)
	require.NoError(t, err)

	_, err = Load(&buf, WithPassword("pw"), WithProgress(record))
	require.NoError(t, err)

	assert.Contains(t, stages, StageCompressing)
	assert.Contains(t, stages, StageWriting)
	assert.Contains(t, stages, StageEncrypting)
	assert.Contains(t, stages, StageReading)
	assert.Contains(t, stages, StageDecrypting)
}
