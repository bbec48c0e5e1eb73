package engine

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/klondike/codec"
	"github.com/meigma/klondike/internal/progress"
	"github.com/meigma/klondike/internal/testutil"
)

func TestChunkSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 256<<10, ChunkSize(11<<20))
	assert.Equal(t, 256<<10, ChunkSize(16<<20))
	assert.Equal(t, 512<<10, ChunkSize(16<<20+1))
	assert.Equal(t, 512<<10, ChunkSize(128<<20))
	assert.Equal(t, 1<<20, ChunkSize(128<<20+1))
}

func TestEngineSmallPayloadNotChunked(t *testing.T) {
	t.Parallel()

	e := New()
	data := testutil.Text(10_000)
	blob, err := e.Encode(context.Background(), "a.txt", data)
	require.NoError(t, err)
	assert.False(t, IsChunked(blob))
	assert.Equal(t, e.Selector().Encode(data), blob)

	got, err := e.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestEngineChunkedMatchesUnchunked(t *testing.T) {
	t.Parallel()

	data := append(testutil.Text(40_000), testutil.Random(20_000, 8)...)
	whole, err := New().Decode(New().Selector().Encode(data))
	require.NoError(t, err)
	require.Equal(t, data, whole)

	for _, size := range []int{1000, 4096, 7777, 60_000, 1 << 20} {
		e := New(WithChunkThreshold(100), WithChunkSize(size), WithWorkers(4))
		blob, err := e.Encode(context.Background(), "mixed", data)
		require.NoError(t, err)
		require.True(t, IsChunked(blob))
		assert.Equal(t, codec.TechniqueChunked, Technique(blob))

		want := (len(data) + size - 1) / size
		assert.Equal(t, uint32(want), binary.LittleEndian.Uint32(blob[4:]), "chunk size %d", size)

		got, err := New().Decode(blob)
		require.NoError(t, err)
		assert.Equal(t, data, got, "chunk size %d", size)
	}
}

func TestEngineTinyChunks(t *testing.T) {
	t.Parallel()

	data := testutil.Periodic("abcabd", 300)
	e := New(WithChunkThreshold(10), WithChunkSize(1), WithWorkers(-1))
	blob, err := e.Encode(context.Background(), "tiny", data)
	require.NoError(t, err)

	got, err := e.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestEngineProgressPerChunk(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []progress.Event
	)
	e := New(
		WithChunkThreshold(1000),
		WithChunkSize(1000),
		WithProgress(func(ev progress.Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		}),
	)
	data := testutil.Text(9_500)
	_, err := e.Encode(context.Background(), "p.txt", data)
	require.NoError(t, err)

	require.Len(t, events, 10)
	for i, ev := range events {
		assert.Equal(t, progress.StageCompressing, ev.Stage)
		assert.Equal(t, "p.txt", ev.Name)
		assert.Equal(t, 10, ev.ChunksTotal)
		assert.Equal(t, i+1, ev.ChunksDone)
	}
	last := events[len(events)-1]
	assert.Equal(t, uint64(len(data)), last.BytesDone)
	assert.Equal(t, uint64(len(data)), last.BytesTotal)
}

func TestEngineEncodeCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(WithChunkThreshold(10), WithChunkSize(10))
	_, err := e.Encode(ctx, "x", testutil.Text(1000))
	require.ErrorIs(t, err, context.Canceled)
}

func TestEngineDecodeCorruptChunks(t *testing.T) {
	t.Parallel()

	e := New(WithChunkThreshold(10), WithChunkSize(100))
	blob, err := e.Encode(context.Background(), "x", testutil.Text(1000))
	require.NoError(t, err)

	tests := []struct {
		name string
		blob []byte
	}{
		{name: "header only", blob: []byte(ChunkMagic)},
		{name: "truncated", blob: blob[:len(blob)-3]},
		{name: "trailing", blob: append(append([]byte{}, blob...), 0)},
		{name: "count overflow", blob: append([]byte(ChunkMagic), 0xff, 0xff, 0xff, 0xff, 1, 0, 0, 0, 0)},
		{name: "zero length chunk", blob: append([]byte(ChunkMagic), 1, 0, 0, 0, 0, 0, 0, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := e.Decode(tt.blob)
			require.ErrorIs(t, err, codec.ErrCorrupt)
		})
	}
}

func TestEngineEmptyChunkStream(t *testing.T) {
	t.Parallel()

	got, err := New().Decode(append([]byte(ChunkMagic), 0, 0, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEngineChunkedIncompressibleBound(t *testing.T) {
	t.Parallel()

	data := testutil.Random(DefaultChunkThreshold+1<<20, 11)
	blob, err := New().Encode(context.Background(), "noise.bin", data)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(blob), len(data)+1)
	assert.False(t, IsChunked(blob))
	assert.Equal(t, codec.TechniqueRaw, Technique(blob))

	got, err := New().Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestEngineSmallChunksIncompressibleBound(t *testing.T) {
	t.Parallel()

	data := testutil.Random(50_000, 12)
	e := New(WithChunkThreshold(100), WithChunkSize(1000), WithWorkers(2))
	blob, err := e.Encode(context.Background(), "noise.bin", data)
	require.NoError(t, err)
	assert.Len(t, blob, len(data)+1)

	got, err := e.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
