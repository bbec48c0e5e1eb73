// Package format reads and writes the klondike container layout.
//
// All integers are little-endian.
//
//	"KLONDIKE" "ULTIMATE"    typed body
//	"KLONDIKE"               legacy body (no marker, untyped records)
//	"KLONDIKE" "ENCRYPTED"   u32 sealed length, sealed body
//
//	body:   u32 count | u32 table length | table | data
//	record: u16 name length | name | u32 original size | u32 compressed size |
//	        u32 data offset | [u16 type length | type] (typed only)
//
// Data offsets are relative to the start of the data section. The sealed
// body of an encrypted container decrypts to a typed body.
package format

import (
	"errors"
	"fmt"
)

// Header constants.
const (
	Magic           = "KLONDIKE"
	MarkerTyped     = "ULTIMATE"
	MarkerEncrypted = "ENCRYPTED"

	bodyHeaderSize = 8
	minLegacyRec   = 2 + 12
	minTypedRec    = minLegacyRec + 2
)

// Variant identifies the header form of a container.
type Variant uint8

const (
	VariantTyped Variant = iota
	VariantLegacy
	VariantEncrypted
)

func (v Variant) String() string {
	switch v {
	case VariantTyped:
		return "typed"
	case VariantLegacy:
		return "legacy"
	case VariantEncrypted:
		return "encrypted"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// Typed reports whether body records of v carry a type tag.
func (v Variant) Typed() bool {
	return v != VariantLegacy
}

var (
	// ErrFormat is the sentinel wrapped by every *Error.
	ErrFormat = errors.New("format: malformed container")

	// ErrFieldTooLong is returned when a name or type does not fit a u16.
	ErrFieldTooLong = errors.New("format: field too long")

	// ErrTooLarge is returned when a size does not fit a u32.
	ErrTooLarge = errors.New("format: container too large")
)

// Error describes where parsing failed.
type Error struct {
	Offset int
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("format: %s at offset %d", e.Reason, e.Offset)
}

func (e *Error) Unwrap() error { return ErrFormat }

func formatErr(off int, format string, args ...any) *Error {
	return &Error{Offset: off, Reason: fmt.Sprintf(format, args...)}
}

// Record is one table entry.
type Record struct {
	Name           string
	OriginalSize   uint32
	CompressedSize uint32
	Offset         uint32
	Type           string
}

// End returns the offset just past the record's data block.
func (r Record) End() uint64 {
	return uint64(r.Offset) + uint64(r.CompressedSize)
}
