// Package sizing provides safe size arithmetic and conversions to prevent overflow.
//
// Every length the container persists is a u32, so most helpers here convert
// between Go ints and the on-disk width.
package sizing

import (
	"io"
	"math"
)

// MaxUint32 is the largest size representable in a table field.
const MaxUint32 = math.MaxUint32

// ToUint32 converts an int to uint32, returning overflowErr if it doesn't fit.
func ToUint32(n int, overflowErr error) (uint32, error) {
	if n < 0 || uint64(n) > MaxUint32 {
		return 0, overflowErr
	}
	return uint32(n), nil //nolint:gosec // checked above
}

// ToUint16 converts an int to uint16, returning overflowErr if it doesn't fit.
func ToUint16(n int, overflowErr error) (uint16, error) {
	if n < 0 || n > math.MaxUint16 {
		return 0, overflowErr
	}
	return uint16(n), nil //nolint:gosec // checked above
}

// AddUint32 adds two uint32 values, returning (result, false) on overflow.
func AddUint32(a, b uint32) (uint32, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// FitsRange reports whether [off, off+n) lies within a buffer of size total.
func FitsRange(off, n uint64, total int) bool {
	end := off + n
	if end < off {
		return false
	}
	return total >= 0 && end <= uint64(total)
}

// ReadAllWithLimit reads up to maxSize bytes from r.
// Returns overflowErr if more than maxSize bytes are available.
func ReadAllWithLimit(r io.Reader, maxSize uint64, overflowErr error) ([]byte, error) {
	if maxSize > uint64(math.MaxInt-1) {
		return nil, overflowErr
	}
	limit := int64(maxSize) + 1 //nolint:gosec // checked above
	lr := &io.LimitedReader{R: r, N: limit}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize {
		return nil, overflowErr
	}
	return data, nil
}
