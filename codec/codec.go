package codec

import (
	"errors"
	"fmt"
	"math"
)

// Technique identifies the codec used for a stored blob. Technique ids are
// persisted as the first byte of every blob and must never be renumbered.
type Technique uint8

const (
	TechniqueRaw     Technique = 0
	TechniqueDeflate Technique = 1
	TechniqueLZ77    Technique = 2
	TechniqueBWT     Technique = 3
	TechniqueContext Technique = 4
	TechniqueHuffman Technique = 5
	TechniqueZstd    Technique = 6
	TechniqueLZ4     Technique = 7
	TechniqueXZ      Technique = 8

	// TechniqueChunked is reserved for the chunk wrapper. It is the first
	// byte of the "KCCH" magic and never used by a Codec.
	TechniqueChunked Technique = 'K'
)

// MaxBlobSize bounds the output of every decoder. Table fields are u32, so
// no entry can decode to more.
const MaxBlobSize = math.MaxUint32

// String returns the human-readable name of the technique.
func (t Technique) String() string {
	switch t {
	case TechniqueRaw:
		return "raw"
	case TechniqueDeflate:
		return "deflate"
	case TechniqueLZ77:
		return "lz77"
	case TechniqueBWT:
		return "bwt"
	case TechniqueContext:
		return "context"
	case TechniqueHuffman:
		return "huffman"
	case TechniqueZstd:
		return "zstd"
	case TechniqueLZ4:
		return "lz4"
	case TechniqueXZ:
		return "xz"
	case TechniqueChunked:
		return "chunked"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Codec is a reversible byte transform.
//
// Decode(Encode(d)) must equal d for every d that Encode accepts. Encode
// returns ErrUnsuitable for inputs it refuses; Decode returns ErrCorrupt for
// input that is not a valid encoding.
type Codec interface {
	Technique() Technique
	Encode(src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
}

// Sentinel errors.
var (
	// ErrUnsuitable is returned by Encode when a codec refuses its input.
	ErrUnsuitable = errors.New("codec: input not suitable")

	// ErrCorrupt is returned by Decode for malformed encoded data.
	ErrCorrupt = errors.New("codec: corrupt data")

	// ErrUnknownTechnique is returned for technique ids with no codec.
	ErrUnknownTechnique = errors.New("codec: unknown technique")

	// ErrTooLarge is returned when decoded output would exceed MaxBlobSize.
	ErrTooLarge = errors.New("codec: output too large")
)

// Error records a failure of a specific codec operation.
type Error struct {
	Technique Technique
	Op        string
	Err       error
}

func (e *Error) Error() string {
	return "codec: " + e.Technique.String() + " " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func encodeErr(t Technique, err error) error {
	return &Error{Technique: t, Op: "encode", Err: err}
}

func decodeErr(t Technique, err error) error {
	return &Error{Technique: t, Op: "decode", Err: err}
}

var registry = map[Technique]Codec{}

var order []Technique

func register(c Codec) {
	t := c.Technique()
	if _, dup := registry[t]; dup {
		panic("codec: duplicate technique " + t.String())
	}
	registry[t] = c
	order = append(order, t)
}

func init() {
	register(Raw{})
	register(Deflate{})
	register(LZ77{})
	register(BWT{})
	register(Context{})
	register(Huffman{})
	register(Zstd{})
	register(LZ4{})
	register(XZ{})
}

// Lookup returns the codec for t.
func Lookup(t Technique) (Codec, error) {
	c, ok := registry[t]
	if !ok {
		return nil, &Error{Technique: t, Op: "lookup", Err: ErrUnknownTechnique}
	}
	return c, nil
}

// All returns every registered codec in technique order.
func All() []Codec {
	out := make([]Codec, 0, len(order))
	for _, t := range order {
		out = append(out, registry[t])
	}
	return out
}

// Raw stores data unchanged.
type Raw struct{}

// Technique implements Codec.
func (Raw) Technique() Technique { return TechniqueRaw }

// Encode implements Codec. The result is never nil.
func (Raw) Encode(src []byte) ([]byte, error) {
	return append([]byte{}, src...), nil
}

// Decode implements Codec. The result is never nil.
func (Raw) Decode(src []byte) ([]byte, error) {
	return append([]byte{}, src...), nil
}
