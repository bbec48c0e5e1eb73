package engine

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meigma/klondike/codec"
	"github.com/meigma/klondike/internal/classify"
)

// Size bands used to pick candidate codecs.
const (
	TinySize   = 100
	SmallSize  = 1 << 20
	MediumSize = 4 << 20

	// HighEntropy is the sampled entropy (bits per byte) above which only
	// the fast codecs are tried.
	HighEntropy = 7.9

	// DefaultEarlyExit stops the race once the best output is below this
	// fraction of the input.
	DefaultEarlyExit = 0.40
)

var (
	tinyBand    = []codec.Technique{codec.TechniqueLZ77}
	entropyBand = []codec.Technique{codec.TechniqueLZ4, codec.TechniqueDeflate}
	smallBand   = []codec.Technique{
		codec.TechniqueLZ4, codec.TechniqueDeflate, codec.TechniqueZstd, codec.TechniqueLZ77,
		codec.TechniqueHuffman, codec.TechniqueContext, codec.TechniqueBWT, codec.TechniqueXZ,
	}
	mediumBand = []codec.Technique{
		codec.TechniqueLZ4, codec.TechniqueDeflate, codec.TechniqueZstd, codec.TechniqueLZ77,
		codec.TechniqueContext, codec.TechniqueBWT,
	}
	largeBand = []codec.Technique{codec.TechniqueLZ4, codec.TechniqueDeflate, codec.TechniqueZstd}
)

// ErrEmptyBlob is returned when decoding a blob with no technique byte.
var ErrEmptyBlob = errors.New("engine: empty blob")

// Selector picks the smallest encoding of a blob.
type Selector struct {
	verify    bool
	earlyExit float64
	logger    *slog.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithVerify controls whether winning encodings are decoded and compared
// against the input before being accepted. Enabled by default.
func WithVerify(enabled bool) SelectorOption {
	return func(s *Selector) {
		s.verify = enabled
	}
}

// WithEarlyExit sets the ratio below which the race stops early.
// Zero disables early exit.
func WithEarlyExit(ratio float64) SelectorOption {
	return func(s *Selector) {
		s.earlyExit = ratio
	}
}

// WithSelectorLogger sets the logger for codec decisions.
// If not set, logging is disabled.
func WithSelectorLogger(logger *slog.Logger) SelectorOption {
	return func(s *Selector) {
		s.logger = logger
	}
}

// NewSelector creates a Selector.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{
		verify:    true,
		earlyExit: DefaultEarlyExit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Selector) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Candidates returns the techniques tried for data, in order.
func Candidates(data []byte) []codec.Technique {
	n := len(data)
	switch {
	case n == 0:
		return nil
	case n < TinySize:
		return tinyBand
	case classify.Entropy(data) >= HighEntropy:
		return entropyBand
	case n < SmallSize:
		return smallBand
	case n < MediumSize:
		return mediumBand
	default:
		return largeBand
	}
}

// Encode returns technique || payload for the smallest encoding found.
// Codec failures are logged and skipped; the result falls back to Raw.
func (s *Selector) Encode(data []byte) []byte {
	best, payload := codec.TechniqueRaw, data
	for _, t := range Candidates(data) {
		c, err := codec.Lookup(t)
		if err != nil {
			continue
		}
		out, err := c.Encode(data)
		if err != nil {
			s.log().Debug("codec skipped", "technique", t.String(), "size", len(data), "error", err)
			continue
		}
		if len(out) >= len(payload) {
			continue
		}
		if s.verify && !roundTrips(c, out, data) {
			s.log().Warn("codec failed verification", "technique", t.String(), "size", len(data))
			continue
		}
		best, payload = t, out
		if s.earlyExit > 0 && float64(len(payload)) < s.earlyExit*float64(len(data)) {
			break
		}
	}
	s.log().Debug("codec selected", "technique", best.String(), "size", len(data), "encoded", len(payload))
	return Tag(best, payload)
}

func roundTrips(c codec.Codec, enc, want []byte) bool {
	got, err := c.Decode(enc)
	return err == nil && bytes.Equal(got, want)
}

// Decode decodes a blob produced by Encode.
func (s *Selector) Decode(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, ErrEmptyBlob
	}
	c, err := codec.Lookup(codec.Technique(blob[0]))
	if err != nil {
		return nil, err
	}
	out, err := c.Decode(blob[1:])
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return out, nil
}

// Tag prefixes payload with the technique byte.
func Tag(t codec.Technique, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(t)
	copy(out[1:], payload)
	return out
}

// Stored returns data tagged as Raw without running any codec.
func Stored(data []byte) []byte {
	return Tag(codec.TechniqueRaw, data)
}
