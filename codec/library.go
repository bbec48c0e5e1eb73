package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/meigma/klondike/internal/classify"
	"github.com/meigma/klondike/internal/sizing"
)

// Deflate levels picked by DeflateLevel.
const (
	deflateLevelSmall   = 9
	deflateLevelMedium  = 6
	deflateLevelLarge   = 4
	deflateLevelEntropy = flate.BestSpeed

	deflateMediumSize = 1 << 20
	deflateLargeSize  = 8 << 20

	// highEntropy is the sampled entropy above which data is treated as
	// already compressed.
	highEntropy = 7.5
)

// DeflateLevel chooses a compression level from the size and sampled entropy
// of src. The level is not stored; any level decodes the same way.
func DeflateLevel(src []byte) int {
	switch {
	case classify.Entropy(src) >= highEntropy:
		return deflateLevelEntropy
	case len(src) > deflateLargeSize:
		return deflateLevelLarge
	case len(src) > deflateMediumSize:
		return deflateLevelMedium
	default:
		return deflateLevelSmall
	}
}

// Deflate is a raw DEFLATE stream.
type Deflate struct{}

// Technique implements Codec.
func (Deflate) Technique() Technique { return TechniqueDeflate }

// Encode implements Codec.
func (Deflate) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(src) / 2)
	w, err := flate.NewWriter(&buf, DeflateLevel(src))
	if err != nil {
		return nil, encodeErr(TechniqueDeflate, err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, encodeErr(TechniqueDeflate, err)
	}
	if err := w.Close(); err != nil {
		return nil, encodeErr(TechniqueDeflate, err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (Deflate) Decode(src []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	out, err := sizing.ReadAllWithLimit(r, MaxBlobSize, ErrTooLarge)
	if err != nil {
		return nil, decodeErr(TechniqueDeflate, fmt.Errorf("%w: %w", ErrCorrupt, err))
	}
	return out, nil
}

var zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
	return zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		zstd.WithEncoderConcurrency(1),
		zstd.WithLowerEncoderMem(true),
	)
})

var zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(MaxBlobSize),
	)
})

// Zstd is a single zstd frame.
type Zstd struct{}

// Technique implements Codec.
func (Zstd) Technique() Technique { return TechniqueZstd }

// Encode implements Codec.
func (Zstd) Encode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	enc, err := zstdEncoder()
	if err != nil {
		return nil, encodeErr(TechniqueZstd, err)
	}
	return enc.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
}

// Decode implements Codec.
func (Zstd) Decode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	dec, err := zstdDecoder()
	if err != nil {
		return nil, decodeErr(TechniqueZstd, err)
	}
	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, decodeErr(TechniqueZstd, fmt.Errorf("%w: %w", ErrCorrupt, err))
	}
	return out, nil
}

// LZ4 is an LZ4 block prefixed with the uvarint decoded size, since blocks
// do not record it themselves.
type LZ4 struct{}

// Technique implements Codec.
func (LZ4) Technique() Technique { return TechniqueLZ4 }

// Encode implements Codec.
func (LZ4) Encode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{0}, nil
	}
	if uint64(len(src)) > MaxBlobSize {
		return nil, encodeErr(TechniqueLZ4, ErrUnsuitable)
	}
	dst := make([]byte, binary.MaxVarintLen64+lz4.CompressBlockBound(len(src)))
	hdr := binary.PutUvarint(dst, uint64(len(src)))
	n, err := lz4.CompressBlock(src, dst[hdr:], nil)
	if err != nil {
		return nil, encodeErr(TechniqueLZ4, err)
	}
	if n == 0 {
		// incompressible
		return nil, encodeErr(TechniqueLZ4, ErrUnsuitable)
	}
	return dst[:hdr+n], nil
}

// Decode implements Codec.
func (LZ4) Decode(src []byte) ([]byte, error) {
	size, hdr := binary.Uvarint(src)
	if hdr <= 0 {
		return nil, decodeErr(TechniqueLZ4, ErrCorrupt)
	}
	if size > MaxBlobSize || size > uint64(len(src)-hdr)*255+16 {
		return nil, decodeErr(TechniqueLZ4, ErrCorrupt)
	}
	if size == 0 {
		if len(src) != hdr {
			return nil, decodeErr(TechniqueLZ4, ErrCorrupt)
		}
		return []byte{}, nil
	}
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(src[hdr:], out)
	if err != nil {
		return nil, decodeErr(TechniqueLZ4, fmt.Errorf("%w: %w", ErrCorrupt, err))
	}
	if uint64(n) != size {
		return nil, decodeErr(TechniqueLZ4, ErrCorrupt)
	}
	return out, nil
}

const (
	xzMinDict = 1 << 12
	xzMaxDict = 8 << 20
)

// XZ is an xz container holding one LZMA2 stream.
type XZ struct{}

// Technique implements Codec.
func (XZ) Technique() Technique { return TechniqueXZ }

// Encode implements Codec.
func (XZ) Encode(src []byte) ([]byte, error) {
	cfg := xz.WriterConfig{DictCap: min(max(len(src), xzMinDict), xzMaxDict)}
	var buf bytes.Buffer
	w, err := cfg.NewWriter(&buf)
	if err != nil {
		return nil, encodeErr(TechniqueXZ, err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, encodeErr(TechniqueXZ, err)
	}
	if err := w.Close(); err != nil {
		return nil, encodeErr(TechniqueXZ, err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (XZ) Decode(src []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, decodeErr(TechniqueXZ, fmt.Errorf("%w: %w", ErrCorrupt, err))
	}
	out, err := sizing.ReadAllWithLimit(r, MaxBlobSize, ErrTooLarge)
	if err != nil {
		return nil, decodeErr(TechniqueXZ, fmt.Errorf("%w: %w", ErrCorrupt, err))
	}
	return out, nil
}
