package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/klondike/codec"
	"github.com/meigma/klondike/internal/progress"
)

// ChunkMagic starts every chunked blob. Its first byte is
// codec.TechniqueChunked, which no codec uses.
const ChunkMagic = "KCCH"

const (
	// DefaultChunkThreshold is the payload size above which Encode chunks.
	DefaultChunkThreshold = 10 << 20

	chunkHeaderSize = len(ChunkMagic) + 4
)

// ChunkSize returns the automatic chunk size for a payload of total bytes.
func ChunkSize(total int) int {
	switch {
	case total <= 16<<20:
		return 256 << 10
	case total <= 128<<20:
		return 512 << 10
	default:
		return 1 << 20
	}
}

// Engine encodes blobs through a Selector, chunking large ones.
type Engine struct {
	selector  *Selector
	threshold int
	chunkSize int // 0 = ChunkSize(total)
	workers   int // 0 = GOMAXPROCS, <0 = serial
	progress  progress.Func
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSelector replaces the default Selector.
func WithSelector(s *Selector) Option {
	return func(e *Engine) {
		e.selector = s
	}
}

// WithChunkThreshold sets the payload size above which Encode chunks.
// Values < 1 restore the default.
func WithChunkThreshold(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = DefaultChunkThreshold
		}
		e.threshold = n
	}
}

// WithChunkSize fixes the chunk size. Values < 1 pick it from the payload size.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		e.chunkSize = max(n, 0)
	}
}

// WithWorkers sets the number of chunks encoded in parallel.
// Values < 0 force serial encoding. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithProgress sets a callback invoked after each chunk is encoded.
// Calls are serialized.
func WithProgress(fn progress.Func) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithLogger sets the logger for engine operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{threshold: DefaultChunkThreshold}
	for _, opt := range opts {
		opt(e)
	}
	if e.selector == nil {
		e.selector = NewSelector(WithSelectorLogger(e.logger))
	}
	return e
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.logger
}

// Selector returns the engine's selector.
func (e *Engine) Selector() *Selector {
	return e.selector
}

// Encode returns the encoded blob for data. The blob is never more than one
// byte longer than data. name is used only for progress and logging. The
// only errors are context cancellation and payloads that cannot be framed.
func (e *Engine) Encode(ctx context.Context, name string, data []byte) ([]byte, error) {
	if len(data) <= e.threshold {
		blob := e.selector.Encode(data)
		e.progress.Report(progress.Event{
			Stage:      progress.StageCompressing,
			Name:       name,
			BytesDone:  uint64(len(data)),
			BytesTotal: uint64(len(data)),
		})
		return blob, nil
	}
	blob, err := e.encodeChunked(ctx, name, data)
	if err != nil {
		return nil, err
	}
	if len(blob) > len(data)+1 {
		// Chunk framing outgrew the input; keep the one-byte bound.
		return Stored(data), nil
	}
	return blob, nil
}

func (e *Engine) encodeChunked(ctx context.Context, name string, data []byte) ([]byte, error) {
	size := e.chunkSize
	if size == 0 {
		size = ChunkSize(len(data))
	}
	count := (len(data) + size - 1) / size
	if uint64(count) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("engine: %d chunks: %w", count, codec.ErrTooLarge)
	}
	e.log().Debug("chunked encode", "name", name, "size", len(data), "chunk_size", size, "chunks", count)

	workers := e.workers
	switch {
	case workers == 0:
		workers = runtime.GOMAXPROCS(0)
	case workers < 0:
		workers = 1
	}

	results := make([][]byte, count)
	var (
		mu        sync.Mutex
		done      int
		bytesDone uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range count {
		lo := i * size
		hi := min(lo+size, len(data))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.selector.Encode(data[lo:hi])

			mu.Lock()
			defer mu.Unlock()
			done++
			bytesDone += uint64(hi - lo)
			e.progress.Report(progress.Event{
				Stage:       progress.StageCompressing,
				Name:        name,
				BytesDone:   bytesDone,
				BytesTotal:  uint64(len(data)),
				ChunksDone:  done,
				ChunksTotal: count,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := chunkHeaderSize
	for _, r := range results {
		total += 4 + len(r)
	}
	out := make([]byte, 0, total)
	out = append(out, ChunkMagic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(count)) //nolint:gosec // checked above
	for _, r := range results {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(r))) //nolint:gosec // chunk size is bounded
		out = append(out, r...)
	}
	return out, nil
}

// IsChunked reports whether blob uses the chunk layout.
func IsChunked(blob []byte) bool {
	return bytes.HasPrefix(blob, []byte(ChunkMagic))
}

// Technique reports the technique byte of blob.
func Technique(blob []byte) codec.Technique {
	if len(blob) == 0 {
		return codec.TechniqueRaw
	}
	return codec.Technique(blob[0])
}

// Decode decodes a blob produced by Encode, chunked or not.
func (e *Engine) Decode(blob []byte) ([]byte, error) {
	if !IsChunked(blob) {
		return e.selector.Decode(blob)
	}
	return e.decodeChunked(blob)
}

func (e *Engine) decodeChunked(blob []byte) ([]byte, error) {
	if len(blob) < chunkHeaderSize {
		return nil, fmt.Errorf("engine: truncated chunk header: %w", codec.ErrCorrupt)
	}
	count := binary.LittleEndian.Uint32(blob[len(ChunkMagic):])
	rest := blob[chunkHeaderSize:]
	// every chunk needs a length and a technique byte
	if uint64(count)*5 > uint64(len(rest)) {
		return nil, fmt.Errorf("engine: chunk count %d exceeds blob: %w", count, codec.ErrCorrupt)
	}
	var out []byte
	for i := range count {
		if len(rest) < 4 {
			return nil, fmt.Errorf("engine: chunk %d: truncated length: %w", i, codec.ErrCorrupt)
		}
		n := binary.LittleEndian.Uint32(rest)
		rest = rest[4:]
		if n == 0 || uint64(n) > uint64(len(rest)) {
			return nil, fmt.Errorf("engine: chunk %d: length %d out of range: %w", i, n, codec.ErrCorrupt)
		}
		dec, err := e.selector.Decode(rest[:n])
		if err != nil {
			return nil, fmt.Errorf("engine: chunk %d: %w", i, err)
		}
		if uint64(len(out))+uint64(len(dec)) > codec.MaxBlobSize {
			return nil, fmt.Errorf("engine: %w", codec.ErrTooLarge)
		}
		out = append(out, dec...)
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("engine: %d trailing bytes after chunks: %w", len(rest), codec.ErrCorrupt)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}
