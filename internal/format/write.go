package format

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meigma/klondike/internal/sizing"
)

// Header returns the header bytes for v.
func Header(v Variant) []byte {
	switch v {
	case VariantLegacy:
		return []byte(Magic)
	case VariantEncrypted:
		return []byte(Magic + MarkerEncrypted)
	default:
		return []byte(Magic + MarkerTyped)
	}
}

// Layout assigns consecutive data offsets from each record's compressed
// size and returns the data section length.
func Layout(records []Record) (uint32, error) {
	var off uint32
	for i := range records {
		records[i].Offset = off
		next, ok := sizing.AddUint32(off, records[i].CompressedSize)
		if !ok {
			return 0, fmt.Errorf("format: data section: %w", ErrTooLarge)
		}
		off = next
	}
	return off, nil
}

// AppendTable appends the encoded records to dst.
func AppendTable(dst []byte, records []Record, typed bool) ([]byte, error) {
	for _, r := range records {
		nameLen, err := sizing.ToUint16(len(r.Name), ErrFieldTooLong)
		if err != nil {
			return nil, fmt.Errorf("format: name %q: %w", r.Name, err)
		}
		dst = binary.LittleEndian.AppendUint16(dst, nameLen)
		dst = append(dst, r.Name...)
		dst = binary.LittleEndian.AppendUint32(dst, r.OriginalSize)
		dst = binary.LittleEndian.AppendUint32(dst, r.CompressedSize)
		dst = binary.LittleEndian.AppendUint32(dst, r.Offset)
		if !typed {
			continue
		}
		typeLen, err := sizing.ToUint16(len(r.Type), ErrFieldTooLong)
		if err != nil {
			return nil, fmt.Errorf("format: type of %q: %w", r.Name, err)
		}
		dst = binary.LittleEndian.AppendUint16(dst, typeLen)
		dst = append(dst, r.Type...)
	}
	return dst, nil
}

// BlockFunc opens the stored blob of record i.
type BlockFunc func(i int) (io.ReadCloser, error)

// WriteBody writes count, table length, table and data blocks to w.
// Record offsets must already be assigned by Layout.
func WriteBody(w io.Writer, records []Record, typed bool, open BlockFunc) (int64, error) {
	count, err := sizing.ToUint32(len(records), ErrTooLarge)
	if err != nil {
		return 0, fmt.Errorf("format: entry count: %w", err)
	}
	table, err := AppendTable(make([]byte, bodyHeaderSize, 1024), records, typed)
	if err != nil {
		return 0, err
	}
	tableLen, err := sizing.ToUint32(len(table)-bodyHeaderSize, ErrTooLarge)
	if err != nil {
		return 0, fmt.Errorf("format: table: %w", err)
	}
	binary.LittleEndian.PutUint32(table[0:], count)
	binary.LittleEndian.PutUint32(table[4:], tableLen)

	n, err := w.Write(table)
	written := int64(n)
	if err != nil {
		return written, fmt.Errorf("format: write table: %w", err)
	}
	for i, r := range records {
		m, err := copyBlock(w, open, i, r)
		written += m
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func copyBlock(w io.Writer, open BlockFunc, i int, r Record) (int64, error) {
	rc, err := open(i)
	if err != nil {
		return 0, fmt.Errorf("format: open block %q: %w", r.Name, err)
	}
	defer rc.Close()
	n, err := io.CopyN(w, rc, int64(r.CompressedSize))
	if err != nil {
		return n, fmt.Errorf("format: write block %q: %w", r.Name, err)
	}
	return n, nil
}

// WriteSealed writes an encrypted container around sealed.
func WriteSealed(w io.Writer, sealed []byte) (int64, error) {
	n, err := sizing.ToUint32(len(sealed), ErrTooLarge)
	if err != nil {
		return 0, fmt.Errorf("format: sealed body: %w", err)
	}
	hdr := binary.LittleEndian.AppendUint32(Header(VariantEncrypted), n)
	m, err := w.Write(hdr)
	written := int64(m)
	if err != nil {
		return written, fmt.Errorf("format: write header: %w", err)
	}
	m, err = w.Write(sealed)
	written += int64(m)
	if err != nil {
		return written, fmt.Errorf("format: write sealed body: %w", err)
	}
	return written, nil
}
