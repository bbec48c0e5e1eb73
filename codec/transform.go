package codec

// rleThreshold is the run length after which a count byte follows.
const rleThreshold = 4

// mtfEncode replaces each byte with its index in a move-to-front list.
func mtfEncode(src []byte) []byte {
	var list [256]byte
	for i := range list {
		list[i] = byte(i)
	}
	out := make([]byte, len(src))
	for i, b := range src {
		j := 0
		for list[j] != b {
			j++
		}
		out[i] = byte(j)
		copy(list[1:j+1], list[:j])
		list[0] = b
	}
	return out
}

func mtfDecode(src []byte) []byte {
	var list [256]byte
	for i := range list {
		list[i] = byte(i)
	}
	out := make([]byte, len(src))
	for i, j := range src {
		b := list[j]
		out[i] = b
		copy(list[1:int(j)+1], list[:j])
		list[0] = b
	}
	return out
}

// rleEncode writes runs of rleThreshold or more equal bytes as the first
// rleThreshold bytes followed by a count of extra repeats (0..255).
func rleEncode(src []byte) []byte {
	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); {
		b := src[i]
		run := 1
		for i+run < len(src) && src[i+run] == b && run < rleThreshold+255 {
			run++
		}
		if run >= rleThreshold {
			for range rleThreshold {
				out = append(out, b)
			}
			out = append(out, byte(run-rleThreshold))
		} else {
			for range run {
				out = append(out, b)
			}
		}
		i += run
	}
	return out
}

func rleDecode(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src)*2)
	run := 0
	var last byte
	for i := 0; i < len(src); i++ {
		b := src[i]
		if run > 0 && b == last {
			run++
		} else {
			run = 1
		}
		last = b
		out = append(out, b)
		if run < rleThreshold {
			continue
		}
		i++
		if i >= len(src) {
			return nil, ErrCorrupt
		}
		for range int(src[i]) {
			out = append(out, b)
		}
		run = 0
	}
	return out, nil
}
