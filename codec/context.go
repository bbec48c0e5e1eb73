package codec

import "github.com/meigma/klondike/internal/classify"

// Context token markers. Any other byte is a literal.
const (
	ctxHit    = 0xFE // u8 n-1: the next n bytes equal the model's predictions
	ctxEscape = 0xFF // literal b follows (b is 0xFE or 0xFF)
)

const (
	// MaxContextInput is the largest input Context accepts.
	MaxContextInput = 8 << 20

	ctxMaxOrder   = 7
	ctxMinHitRate = 10 // percent
)

// Context is an order-N next-byte predictor. The order is picked from the
// input's alphabet size and written as the first byte. Each position whose
// byte equals the most frequent follower of its context extends a hit run;
// everything else is emitted as a literal. The token stream is then Huffman
// coded.
//
// Encode returns ErrUnsuitable when fewer than ctxMinHitRate percent of bytes
// are predicted. Empty input encodes to empty output.
type Context struct{}

// Technique implements Codec.
func (Context) Technique() Technique { return TechniqueContext }

// Encode implements Codec.
func (Context) Encode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	if len(src) > MaxContextInput {
		return nil, encodeErr(TechniqueContext, ErrUnsuitable)
	}
	order := contextOrder(classify.Alphabet(src))
	m := newContextModel(order)
	tokens := make([]byte, 0, len(src))
	hits, run := 0, 0
	flush := func() {
		for run > 0 {
			k := min(run, 256)
			tokens = append(tokens, ctxHit, byte(k-1))
			run -= k
		}
	}
	for _, b := range src {
		if pred, ok := m.predict(); ok && pred == b {
			run++
			hits++
		} else {
			flush()
			if b >= ctxHit {
				tokens = append(tokens, ctxEscape, b)
			} else {
				tokens = append(tokens, b)
			}
		}
		m.update(b)
	}
	flush()
	if hits*100 < len(src)*ctxMinHitRate {
		return nil, encodeErr(TechniqueContext, ErrUnsuitable)
	}
	return append([]byte{byte(order)}, huffmanEncode(tokens)...), nil
}

// Decode implements Codec.
func (Context) Decode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	out, err := contextDecode(src)
	if err != nil {
		return nil, decodeErr(TechniqueContext, err)
	}
	return out, nil
}

func contextDecode(src []byte) ([]byte, error) {
	order := int(src[0])
	if order == 0 || order > ctxMaxOrder {
		return nil, ErrCorrupt
	}
	tokens, err := huffmanDecode(src[1:])
	if err != nil {
		return nil, err
	}
	m := newContextModel(order)
	out := make([]byte, 0, len(tokens)*2)
	for i := 0; i < len(tokens); i++ {
		switch t := tokens[i]; t {
		case ctxHit:
			i++
			if i >= len(tokens) {
				return nil, ErrCorrupt
			}
			for range int(tokens[i]) + 1 {
				pred, ok := m.predict()
				if !ok {
					return nil, ErrCorrupt
				}
				out = append(out, pred)
				m.update(pred)
			}
		case ctxEscape:
			i++
			if i >= len(tokens) {
				return nil, ErrCorrupt
			}
			out = append(out, tokens[i])
			m.update(tokens[i])
		default:
			out = append(out, t)
			m.update(t)
		}
		if len(out) > MaxContextInput {
			return nil, ErrTooLarge
		}
	}
	return out, nil
}

// contextOrder maps alphabet size to model order; small alphabets afford
// longer contexts.
func contextOrder(alphabet int) int {
	switch {
	case alphabet <= 4:
		return 6
	case alphabet <= 16:
		return 5
	case alphabet <= 32:
		return 4
	case alphabet <= 64:
		return 3
	default:
		return 2
	}
}

// ctxStats counts the bytes seen after one context.
type ctxStats struct {
	syms     []byte
	counts   []uint32
	top      byte
	topCount uint32
}

// add records b. The prediction only moves on a strictly greater count, so
// the earliest of equally frequent bytes stays on top.
func (s *ctxStats) add(b byte) {
	for j, x := range s.syms {
		if x == b {
			s.counts[j]++
			if c := s.counts[j]; c > s.topCount {
				s.top, s.topCount = b, c
			}
			return
		}
	}
	s.syms = append(s.syms, b)
	s.counts = append(s.counts, 1)
	if s.topCount == 0 {
		s.top, s.topCount = b, 1
	}
}

// contextModel tracks the last order bytes and per-context statistics.
// The key packs the history length into the top byte so that short
// contexts at the start of the input never collide with full ones.
type contextModel struct {
	order int
	mask  uint64
	hist  uint64
	seen  int
	stats map[uint64]*ctxStats
}

func newContextModel(order int) *contextModel {
	return &contextModel{
		order: order,
		mask:  1<<(8*uint(order)) - 1,
		stats: make(map[uint64]*ctxStats),
	}
}

func (m *contextModel) key() uint64 {
	return uint64(min(m.seen, m.order))<<56 | m.hist //nolint:gosec // seen >= 0
}

func (m *contextModel) predict() (byte, bool) {
	s, ok := m.stats[m.key()]
	if !ok {
		return 0, false
	}
	return s.top, true
}

func (m *contextModel) update(b byte) {
	k := m.key()
	s, ok := m.stats[k]
	if !ok {
		s = &ctxStats{}
		m.stats[k] = s
	}
	s.add(b)
	m.hist = (m.hist<<8 | uint64(b)) & m.mask
	m.seen++
}
