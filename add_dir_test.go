package klondike

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/klondike/internal/testutil"
)

func TestAddFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "report.csv", testutil.Text(900))

	a := New()
	e, err := a.AddFile("", path)
	require.NoError(t, err)
	assert.Equal(t, "report.csv", e.Name)
	assert.Equal(t, ".csv", e.Type)

	e, err = a.AddFile("renamed.csv", path)
	require.NoError(t, err)
	assert.Equal(t, "renamed.csv", e.Name)

	_, err = a.AddFile("", filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAddDir(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{-1, 0, 3} {
		dir := t.TempDir()
		files := map[string][]byte{
			"a.txt":           testutil.Text(5000),
			"b/c.bin":         testutil.Random(3000, 2),
			"b/d/e.dna":       testutil.DNA(4000, 3),
			"b/d/empty":       {},
			"z/last.periodic": testutil.Periodic("xyz", 6000),
		}
		for name, data := range files {
			testutil.WriteFile(t, dir, filepath.FromSlash(name), data)
		}

		var mu sync.Mutex
		enumerated := 0
		a := New(WithWorkers(workers), WithMemoryBudget(8<<10), WithProgress(func(ev ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			if ev.Stage == StageEnumerating {
				enumerated++
			}
		}))
		entries, err := a.AddDir(context.Background(), dir)
		require.NoError(t, err, "workers=%d", workers)
		assert.Equal(t, len(files), enumerated)

		var names []string
		for _, e := range entries {
			names = append(names, e.Name)
		}
		assert.Equal(t, []string{"a.txt", "b/c.bin", "b/d/e.dna", "b/d/empty", "z/last.periodic"}, names)

		for name, want := range files {
			got, err := a.Extract(name)
			require.NoError(t, err, name)
			assert.Equal(t, want, got, name)
		}
	}
}

func TestAddDirSkipsSymlinks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := testutil.WriteFile(t, dir, "real.txt", []byte("real"))
	if err := os.Symlink(target, filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	a := New()
	entries, err := a.AddDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "real.txt", entries[0].Name)
}

func TestAddDirCanceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.txt", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := New()
	_, err := a.AddDir(ctx, dir)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, a.Len())
}

func TestAddDirMissing(t *testing.T) {
	t.Parallel()

	a := New()
	_, err := a.AddDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestAddDirSpoolFailureAddsNothing(t *testing.T) {
	t.Parallel()

	a := New(WithSpoolDir(t.TempDir()), WithSpoolThreshold(64))
	t.Cleanup(func() { a.Close() })
	big := testutil.Random(4096, 7)
	_, err := a.Add("big.bin", big)
	require.NoError(t, err)
	require.NotNil(t, a.spool)

	// Known blobs only gain a reference; new ones fail to write.
	spoolDir := a.spool.Dir()
	require.NoError(t, os.RemoveAll(spoolDir))
	require.NoError(t, os.WriteFile(spoolDir, []byte("not a directory"), 0o600))

	src := t.TempDir()
	testutil.WriteFile(t, src, "a.bin", big)
	testutil.WriteFile(t, src, "b.bin", testutil.Random(4096, 8))

	_, err = a.AddDir(context.Background(), src)
	require.Error(t, err)
	assert.Equal(t, 1, a.Len())
	_, ok := a.Entry("a.bin")
	assert.False(t, ok)

	// The reference taken for a.bin was rolled back.
	require.True(t, a.Remove("big.bin"))
	assert.Equal(t, 0, a.spool.Len())
}
