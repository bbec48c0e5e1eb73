package codec

import "encoding/binary"

// MaxBWTBlock is the largest input BWT accepts. The rotation sort holds five
// int32 arrays of the input length.
const MaxBWTBlock = 8 << 20

// BWT is a block-sorting coder: Burrows-Wheeler transform, then move-to-front,
// run-length and Huffman stages.
//
// Layout: u32 primary index || huffman(rle(mtf(last column))).
// Empty input encodes to empty output.
type BWT struct{}

// Technique implements Codec.
func (BWT) Technique() Technique { return TechniqueBWT }

// Encode implements Codec.
func (BWT) Encode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	if len(src) > MaxBWTBlock {
		return nil, encodeErr(TechniqueBWT, ErrUnsuitable)
	}
	last, primary := bwtForward(src)
	body := huffmanEncode(rleEncode(mtfEncode(last)))
	out := make([]byte, 4, 4+len(body))
	binary.LittleEndian.PutUint32(out, uint32(primary)) //nolint:gosec // primary < MaxBWTBlock
	return append(out, body...), nil
}

// Decode implements Codec.
func (BWT) Decode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	out, err := bwtDecode(src)
	if err != nil {
		return nil, decodeErr(TechniqueBWT, err)
	}
	return out, nil
}

func bwtDecode(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, ErrCorrupt
	}
	primary := int(binary.LittleEndian.Uint32(src))
	rle, err := huffmanDecode(src[4:])
	if err != nil {
		return nil, err
	}
	mtf, err := rleDecode(rle)
	if err != nil {
		return nil, err
	}
	last := mtfDecode(mtf)
	if len(last) == 0 || len(last) > MaxBWTBlock || primary >= len(last) {
		return nil, ErrCorrupt
	}
	return bwtInverse(last, primary), nil
}

// bwtForward returns the last column of the sorted rotation matrix of s and
// the row holding s itself.
func bwtForward(s []byte) ([]byte, int) {
	n := len(s)
	sa := sortRotations(s)
	last := make([]byte, n)
	primary := 0
	for i, p := range sa {
		if p == 0 {
			primary = i
		}
		last[i] = s[(int(p)+n-1)%n]
	}
	return last, primary
}

// sortRotations sorts the cyclic rotations of s by prefix doubling with
// counting sorts, O(n log n).
func sortRotations(s []byte) []int32 {
	n := len(s)
	p := make([]int32, n)
	c := make([]int32, n)
	cnt := make([]int32, max(256, n))

	for _, b := range s {
		cnt[b]++
	}
	for i := 1; i < 256; i++ {
		cnt[i] += cnt[i-1]
	}
	for i := n - 1; i >= 0; i-- {
		cnt[s[i]]--
		p[cnt[s[i]]] = int32(i) //nolint:gosec // n <= MaxBWTBlock
	}
	classes := int32(1)
	for i := 1; i < n; i++ {
		if s[p[i]] != s[p[i-1]] {
			classes++
		}
		c[p[i]] = classes - 1
	}

	pn := make([]int32, n)
	cn := make([]int32, n)
	n32 := int32(n) //nolint:gosec // n <= MaxBWTBlock
	for h := int32(1); h < n32 && classes < n32; h <<= 1 {
		for i, v := range p {
			pn[i] = v - h
			if pn[i] < 0 {
				pn[i] += n32
			}
		}
		clear(cnt[:classes])
		for _, v := range pn {
			cnt[c[v]]++
		}
		for i := int32(1); i < classes; i++ {
			cnt[i] += cnt[i-1]
		}
		for i := n - 1; i >= 0; i-- {
			k := c[pn[i]]
			cnt[k]--
			p[cnt[k]] = pn[i]
		}
		cn[p[0]] = 0
		classes = 1
		for i := 1; i < n; i++ {
			a, b := p[i], p[i-1]
			if c[a] != c[b] || c[(a+h)%n32] != c[(b+h)%n32] {
				classes++
			}
			cn[a] = classes - 1
		}
		c, cn = cn, c
	}
	return p
}

// bwtInverse rebuilds the input from the last column using the LF mapping.
func bwtInverse(last []byte, primary int) []byte {
	n := len(last)
	var counts, first [256]int
	for _, b := range last {
		counts[b]++
	}
	sum := 0
	for b := range first {
		first[b] = sum
		sum += counts[b]
	}
	lf := make([]int32, n)
	var seen [256]int
	for i, b := range last {
		lf[i] = int32(first[b] + seen[b]) //nolint:gosec // n <= MaxBWTBlock
		seen[b]++
	}
	out := make([]byte, n)
	idx := primary
	for k := n - 1; k >= 0; k-- {
		out[k] = last[idx]
		idx = int(lf[idx])
	}
	return out
}
