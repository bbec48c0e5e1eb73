package codec

import (
	"container/heap"
	"encoding/binary"
	"slices"
)

// maxCodeLen caps Huffman code lengths so codes fit in a uint32.
const maxCodeLen = 32

// Huffman is a static canonical Huffman coder.
//
// Layout:
//
//	u16 symbolCount-1
//	symbolCount × (symbol u8, codeLength u8), ascending by symbol
//	payload bits, MSB first
//	u8 number of valid bits in the last payload byte (1..8)
//
// Empty input encodes to empty output.
type Huffman struct{}

// Technique implements Codec.
func (Huffman) Technique() Technique { return TechniqueHuffman }

// Encode implements Codec.
func (Huffman) Encode(src []byte) ([]byte, error) {
	return huffmanEncode(src), nil
}

// Decode implements Codec.
func (Huffman) Decode(src []byte) ([]byte, error) {
	out, err := huffmanDecode(src)
	if err != nil {
		return nil, decodeErr(TechniqueHuffman, err)
	}
	return out, nil
}

func huffmanEncode(src []byte) []byte {
	if len(src) == 0 {
		return []byte{}
	}
	var freq [256]uint64
	for _, b := range src {
		freq[b]++
	}
	lengths := codeLengths(freq)
	codes := canonicalCodes(&lengths)

	var symbols int
	for _, l := range lengths {
		if l > 0 {
			symbols++
		}
	}
	out := make([]byte, 2, 2+2*symbols+len(src)/2+1)
	binary.LittleEndian.PutUint16(out, uint16(symbols-1)) //nolint:gosec // 1..256 symbols
	for sym, l := range lengths {
		if l > 0 {
			out = append(out, byte(sym), l)
		}
	}

	var acc uint64
	var nbits uint
	for _, b := range src {
		acc = acc<<lengths[b] | uint64(codes[b])
		nbits += uint(lengths[b])
		for nbits >= 8 {
			nbits -= 8
			out = append(out, byte(acc>>nbits))
		}
	}
	last := byte(8)
	if nbits > 0 {
		out = append(out, byte(acc<<(8-nbits)))
		last = byte(nbits)
	}
	return append(out, last)
}

func huffmanDecode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	if len(src) < 2 {
		return nil, ErrCorrupt
	}
	symbols := int(binary.LittleEndian.Uint16(src)) + 1
	if symbols > 256 || len(src) < 2+2*symbols+2 {
		return nil, ErrCorrupt
	}
	var lengths [256]uint8
	book := src[2 : 2+2*symbols]
	var kraft uint64
	for i := 0; i < len(book); i += 2 {
		sym, l := book[i], book[i+1]
		if l == 0 || l > maxCodeLen || lengths[sym] != 0 {
			return nil, ErrCorrupt
		}
		lengths[sym] = l
		kraft += 1 << (maxCodeLen - l)
	}
	if kraft > 1<<maxCodeLen {
		return nil, ErrCorrupt
	}

	payload := src[2+2*symbols : len(src)-1]
	last := src[len(src)-1]
	if len(payload) == 0 || last == 0 || last > 8 {
		return nil, ErrCorrupt
	}
	totalBits := uint64(len(payload)-1)*8 + uint64(last)

	dec := newCanonicalDecoder(&lengths)
	out := make([]byte, 0, len(payload)*2)
	var code uint32
	var clen uint8
	for bit := uint64(0); bit < totalBits; bit++ {
		b := payload[bit>>3] >> (7 - bit&7) & 1
		code = code<<1 | uint32(b)
		clen++
		if sym, ok := dec.lookup(code, clen); ok {
			out = append(out, sym)
			code, clen = 0, 0
			continue
		}
		if clen >= maxCodeLen {
			return nil, ErrCorrupt
		}
	}
	if clen != 0 {
		return nil, ErrCorrupt
	}
	return out, nil
}

// canonicalDecoder resolves canonical codes one length at a time.
type canonicalDecoder struct {
	count     [maxCodeLen + 1]uint32
	firstCode [maxCodeLen + 1]uint32
	firstIdx  [maxCodeLen + 1]uint32
	sorted    []byte
}

func newCanonicalDecoder(lengths *[256]uint8) *canonicalDecoder {
	d := &canonicalDecoder{sorted: sortedSymbols(lengths)}
	for _, sym := range d.sorted {
		d.count[lengths[sym]]++
	}
	var code, idx uint32
	for l := 1; l <= maxCodeLen; l++ {
		code = (code + d.count[l-1]) << 1
		d.firstCode[l] = code
		d.firstIdx[l] = idx
		idx += d.count[l]
	}
	return d
}

func (d *canonicalDecoder) lookup(code uint32, l uint8) (byte, bool) {
	n := d.count[l]
	if n == 0 || code < d.firstCode[l] || code-d.firstCode[l] >= n {
		return 0, false
	}
	return d.sorted[d.firstIdx[l]+code-d.firstCode[l]], true
}

// sortedSymbols returns the coded symbols ordered by (length, symbol).
func sortedSymbols(lengths *[256]uint8) []byte {
	syms := make([]byte, 0, 256)
	for sym, l := range lengths {
		if l > 0 {
			syms = append(syms, byte(sym))
		}
	}
	slices.SortStableFunc(syms, func(a, b byte) int {
		return int(lengths[a]) - int(lengths[b])
	})
	return syms
}

// canonicalCodes assigns canonical codes in (length, symbol) order.
func canonicalCodes(lengths *[256]uint8) [256]uint32 {
	var codes [256]uint32
	var code uint32
	var prev uint8
	for i, sym := range sortedSymbols(lengths) {
		l := lengths[sym]
		if i > 0 {
			code = (code + 1) << (l - prev)
		}
		codes[sym] = code
		prev = l
	}
	return codes
}

// huffNode is a tree node; leaves have sym >= 0.
type huffNode struct {
	freq        uint64
	minSym      int
	sym         int
	left, right int
}

// huffHeap orders node indices by frequency, then by lowest contained
// symbol, so equal inputs always build the same tree.
type huffHeap struct {
	nodes []huffNode
	idx   []int
}

func (h *huffHeap) Len() int { return len(h.idx) }

func (h *huffHeap) Less(i, j int) bool {
	a, b := h.nodes[h.idx[i]], h.nodes[h.idx[j]]
	if a.freq != b.freq {
		return a.freq < b.freq
	}
	return a.minSym < b.minSym
}

func (h *huffHeap) Swap(i, j int) { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }

func (h *huffHeap) Push(x any) { h.idx = append(h.idx, x.(int)) }

func (h *huffHeap) Pop() any {
	n := len(h.idx) - 1
	v := h.idx[n]
	h.idx = h.idx[:n]
	return v
}

// codeLengths builds a Huffman tree over freq and returns each symbol's code
// length. Frequencies are halved until no code exceeds maxCodeLen.
func codeLengths(freq [256]uint64) [256]uint8 {
	for {
		lengths, depth := buildLengths(&freq)
		if depth <= maxCodeLen {
			return lengths
		}
		for i, f := range freq {
			if f > 0 {
				freq[i] = f/2 + 1
			}
		}
	}
}

func buildLengths(freq *[256]uint64) ([256]uint8, int) {
	h := &huffHeap{nodes: make([]huffNode, 0, 512)}
	for sym, f := range freq {
		if f == 0 {
			continue
		}
		h.nodes = append(h.nodes, huffNode{freq: f, minSym: sym, sym: sym, left: -1, right: -1})
		h.idx = append(h.idx, len(h.nodes)-1)
	}
	var lengths [256]uint8
	if len(h.nodes) == 1 {
		lengths[h.nodes[0].sym] = 1
		return lengths, 1
	}
	heap.Init(h)
	for h.Len() > 1 {
		a := heap.Pop(h).(int)
		b := heap.Pop(h).(int)
		h.nodes = append(h.nodes, huffNode{
			freq:   h.nodes[a].freq + h.nodes[b].freq,
			minSym: min(h.nodes[a].minSym, h.nodes[b].minSym),
			sym:    -1,
			left:   a,
			right:  b,
		})
		heap.Push(h, len(h.nodes)-1)
	}

	type frame struct{ node, depth int }
	stack := []frame{{node: h.idx[0]}}
	maxDepth := 0
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := h.nodes[f.node]
		if n.sym >= 0 {
			maxDepth = max(maxDepth, f.depth)
			if f.depth <= maxCodeLen {
				lengths[n.sym] = uint8(f.depth) //nolint:gosec // bounded by maxCodeLen
			}
			continue
		}
		stack = append(stack, frame{n.left, f.depth + 1}, frame{n.right, f.depth + 1})
	}
	return lengths, maxDepth
}
