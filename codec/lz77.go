package codec

import "encoding/binary"

// LZ77 token markers. Any other byte is a literal.
const (
	lzEscape = 253 // escape, literal b follows (b >= 253)
	lzNear   = 254 // len-4 u8, dist-1 u8
	lzFar    = 255 // len-4 u8, dist-1 u16
)

const (
	lzWindow        = 1 << 16
	lzNearWindow    = 1 << 8
	lzMinMatch      = 4
	lzMinFarMatch   = 5
	lzMaxMatch      = lzMinMatch + 255
	lzHashBits      = 15
	lzMaxCandidates = 16
)

// LZ77 is a sliding-window match coder.
//
// Candidate positions are bucketed by a hash of the next three bytes and
// chained newest first; at most lzMaxCandidates are compared per position.
// The longest match wins and, at equal length, the nearest one.
type LZ77 struct{}

// Technique implements Codec.
func (LZ77) Technique() Technique { return TechniqueLZ77 }

// Encode implements Codec.
func (LZ77) Encode(src []byte) ([]byte, error) {
	return lz77Encode(src), nil
}

// Decode implements Codec.
func (LZ77) Decode(src []byte) ([]byte, error) {
	out, err := lz77Decode(src)
	if err != nil {
		return nil, decodeErr(TechniqueLZ77, err)
	}
	return out, nil
}

func hash3(b []byte) uint32 {
	v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	return (v * 2654435761) >> (32 - lzHashBits)
}

func lz77Encode(src []byte) []byte {
	n := len(src)
	out := make([]byte, 0, n/2+16)
	head := make([]int32, 1<<lzHashBits)
	for i := range head {
		head[i] = -1
	}
	prev := make([]int32, n)

	insert := func(i int) {
		if i+3 > n {
			return
		}
		h := hash3(src[i:])
		prev[i] = head[h]
		head[h] = int32(i) //nolint:gosec // inputs are bounded by MaxBlobSize
	}

	for i := 0; i < n; {
		bestLen, bestDist := 0, 0
		if i+lzMinMatch <= n {
			limit := min(lzMaxMatch, n-i)
			cand := head[hash3(src[i:])]
			for k := 0; cand >= 0 && k < lzMaxCandidates; k++ {
				dist := i - int(cand)
				if dist > lzWindow {
					break
				}
				if l := matchLen(src, int(cand), i, limit); l > bestLen {
					bestLen, bestDist = l, dist
					if l == limit {
						break
					}
				}
				cand = prev[cand]
			}
		}

		switch {
		case bestLen >= lzMinMatch && bestDist <= lzNearWindow:
			out = append(out, lzNear, byte(bestLen-lzMinMatch), byte(bestDist-1))
		case bestLen >= lzMinFarMatch:
			out = append(out, lzFar, byte(bestLen-lzMinMatch))
			out = binary.LittleEndian.AppendUint16(out, uint16(bestDist-1)) //nolint:gosec // dist <= lzWindow
		default:
			if b := src[i]; b >= lzEscape {
				out = append(out, lzEscape, b)
			} else {
				out = append(out, b)
			}
			insert(i)
			i++
			continue
		}
		for j := i; j < i+bestLen; j++ {
			insert(j)
		}
		i += bestLen
	}
	return out
}

func matchLen(src []byte, a, b, limit int) int {
	l := 0
	for l < limit && src[a+l] == src[b+l] {
		l++
	}
	return l
}

func lz77Decode(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src)*2)
	for i := 0; i < len(src); {
		var length, dist int
		switch src[i] {
		case lzEscape:
			if i+1 >= len(src) {
				return nil, ErrCorrupt
			}
			out = append(out, src[i+1])
			i += 2
			continue
		case lzNear:
			if i+2 >= len(src) {
				return nil, ErrCorrupt
			}
			length = int(src[i+1]) + lzMinMatch
			dist = int(src[i+2]) + 1
			i += 3
		case lzFar:
			if i+3 >= len(src) {
				return nil, ErrCorrupt
			}
			length = int(src[i+1]) + lzMinMatch
			dist = int(binary.LittleEndian.Uint16(src[i+2:])) + 1
			i += 4
		default:
			out = append(out, src[i])
			i++
			continue
		}
		if dist > len(out) {
			return nil, ErrCorrupt
		}
		if uint64(len(out)+length) > MaxBlobSize {
			return nil, ErrTooLarge
		}
		start := len(out) - dist
		for k := range length {
			out = append(out, out[start+k])
		}
	}
	return out, nil
}
