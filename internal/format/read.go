package format

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"unicode/utf8"

	"github.com/meigma/klondike/internal/sizing"
)

// Body is a parsed container body.
type Body struct {
	Records []Record

	// Data is the data section; record offsets are relative to it.
	Data []byte
}

// Block returns the stored blob of record i.
func (b *Body) Block(i int) ([]byte, error) {
	r := b.Records[i]
	if !sizing.FitsRange(uint64(r.Offset), uint64(r.CompressedSize), len(b.Data)) {
		return nil, formatErr(int(r.Offset),
			"entry %q: data range %d+%d exceeds data section of %d bytes",
			r.Name, r.Offset, r.CompressedSize, len(b.Data))
	}
	return b.Data[r.Offset:r.End()], nil
}

// ParseHeader identifies the container variant and returns the offset at
// which the body (or, when encrypted, the sealed length) starts.
func ParseHeader(buf []byte) (Variant, int, error) {
	if len(buf) < len(Magic) || string(buf[:len(Magic)]) != Magic {
		return 0, 0, formatErr(0, "bad magic")
	}
	rest := buf[len(Magic):]
	switch {
	case bytes.HasPrefix(rest, []byte(MarkerTyped)):
		return VariantTyped, len(Magic) + len(MarkerTyped), nil
	case bytes.HasPrefix(rest, []byte(MarkerEncrypted)):
		return VariantEncrypted, len(Magic) + len(MarkerEncrypted), nil
	case bytes.HasPrefix(rest, []byte(MarkerEncrypted[:8])):
		return 0, 0, formatErr(len(Magic), "truncated encrypted marker")
	default:
		return VariantLegacy, len(Magic), nil
	}
}

// ParseSealed returns the sealed body that follows an encrypted header.
func ParseSealed(buf []byte, off int) ([]byte, error) {
	if len(buf)-off < 4 {
		return nil, formatErr(off, "truncated sealed length")
	}
	n := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if uint64(n) > uint64(len(buf)-off) {
		return nil, formatErr(off, "sealed length %d exceeds remaining %d bytes", n, len(buf)-off)
	}
	if rest := len(buf) - off - int(n); rest != 0 {
		return nil, formatErr(off+int(n), "%d trailing bytes after sealed body", rest)
	}
	return buf[off : off+int(n)], nil
}

// ParseBody parses a body starting at off.
//
// A table length that exceeds the buffer fails without a body. A record
// that is truncated or malformed stops parsing: the records before it are
// returned in a non-nil Body together with an *Error.
func ParseBody(buf []byte, off int, typed bool) (*Body, error) {
	if len(buf)-off < bodyHeaderSize {
		return nil, formatErr(off, "truncated body header")
	}
	count := binary.LittleEndian.Uint32(buf[off:])
	tableLen := binary.LittleEndian.Uint32(buf[off+4:])
	off += bodyHeaderSize
	if uint64(tableLen) > uint64(len(buf)-off) {
		return nil, formatErr(off-4, "table length %d exceeds remaining %d bytes", tableLen, len(buf)-off)
	}
	table := buf[off : off+int(tableLen)]
	body := &Body{Data: buf[off+int(tableLen):]}

	minRec := minLegacyRec
	if typed {
		minRec = minTypedRec
	}
	body.Records = make([]Record, 0, min(int(count), len(table)/minRec))

	p := tableParser{buf: table, base: off}
	for i := range count {
		r, err := p.record(typed)
		if err != nil {
			err.Reason = "record " + strconv.FormatUint(uint64(i), 10) + ": " + err.Reason
			return body, err
		}
		body.Records = append(body.Records, r)
	}
	if len(p.buf) != p.pos {
		return body, formatErr(p.base+p.pos, "%d trailing table bytes", len(p.buf)-p.pos)
	}
	return body, nil
}

type tableParser struct {
	buf  []byte
	pos  int
	base int
}

func (p *tableParser) record(typed bool) (Record, *Error) {
	var r Record
	name, err := p.str("name")
	if err != nil {
		return r, err
	}
	r.Name = name
	if len(p.buf)-p.pos < 12 {
		return r, p.fail("truncated sizes")
	}
	r.OriginalSize = binary.LittleEndian.Uint32(p.buf[p.pos:])
	r.CompressedSize = binary.LittleEndian.Uint32(p.buf[p.pos+4:])
	r.Offset = binary.LittleEndian.Uint32(p.buf[p.pos+8:])
	p.pos += 12
	if typed {
		if r.Type, err = p.str("type"); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (p *tableParser) str(field string) (string, *Error) {
	if len(p.buf)-p.pos < 2 {
		return "", p.fail("truncated " + field + " length")
	}
	n := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2
	if n > len(p.buf)-p.pos {
		return "", p.fail(field + " length exceeds table")
	}
	s := p.buf[p.pos : p.pos+n]
	if !utf8.Valid(s) {
		return "", p.fail(field + " is not valid UTF-8")
	}
	p.pos += n
	return string(s), nil
}

func (p *tableParser) fail(reason string) *Error {
	return &Error{Offset: p.base + p.pos, Reason: reason}
}
