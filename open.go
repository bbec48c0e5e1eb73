package klondike

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/meigma/klondike/engine"
	"github.com/meigma/klondike/internal/classify"
	"github.com/meigma/klondike/internal/format"
	"github.com/meigma/klondike/internal/progress"
	"github.com/meigma/klondike/internal/seal"
	"github.com/meigma/klondike/internal/sizing"
)

// maxContainerSize bounds the bytes read by Load: a u32 table plus a u32
// data section and headers.
const maxContainerSize = 2*sizing.MaxUint32 + 64

// Open reads the archive at path.
func Open(path string, opts ...Option) (*Archive, error) {
	a := New(opts...)
	if err := a.OpenFile(path); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Load reads an archive from r.
func Load(r io.Reader, opts ...Option) (*Archive, error) {
	a := New(opts...)
	if err := a.LoadFrom(r); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// OpenFile replaces the archive's entries with those of the file at path.
// On failure the archive is left unchanged.
func (a *Archive) OpenFile(path string) error {
	f, err := os.Open(path) //nolint:gosec // caller-provided archive path
	if err != nil {
		return fmt.Errorf("klondike: open: %w", err)
	}
	defer f.Close()
	if err := a.LoadFrom(f); err != nil {
		return err
	}
	a.log().Info("archive opened", "path", path, "entries", len(a.slots), "encrypted", a.Encrypted())
	return nil
}

// LoadFrom replaces the archive's entries with those read from r.
// On failure the archive is left unchanged.
func (a *Archive) LoadFrom(r io.Reader) error {
	if a.closed {
		return ErrClosed
	}
	prev := a.state
	a.state = StateLoading
	slots, encrypted, err := a.load(r)
	if err != nil {
		a.state = prev
		return err
	}

	staged := &Archive{cfg: a.cfg, spool: a.spool, index: make(map[string]int, len(slots))}
	for _, s := range slots {
		if err := staged.insert(s); err != nil {
			for _, t := range staged.slots {
				staged.release(t)
			}
			a.spool = staged.spool
			a.state = prev
			return err
		}
	}
	for _, s := range a.slots {
		a.release(s)
	}
	a.spool = staged.spool
	a.slots = staged.slots
	a.index = staged.index
	a.state = StateLoaded
	if !encrypted {
		// encryption follows the file that was opened
		a.password = ""
	}
	return nil
}

func (a *Archive) load(r io.Reader) ([]*slot, bool, error) {
	buf, err := sizing.ReadAllWithLimit(r, maxContainerSize, ErrTooLarge)
	if err != nil {
		return nil, false, fmt.Errorf("klondike: read: %w", err)
	}
	a.cfg.progress.Report(progress.Event{
		Stage:      progress.StageReading,
		BytesDone:  uint64(len(buf)),
		BytesTotal: uint64(len(buf)),
	})

	variant, off, err := format.ParseHeader(buf)
	if err != nil {
		return nil, false, fmt.Errorf("klondike: open: %w", err)
	}
	body, perr := a.parseBody(buf, variant, off)
	if body == nil {
		return nil, false, perr
	}
	if perr != nil {
		if !a.cfg.salvage {
			return nil, false, fmt.Errorf("klondike: open: %w", perr)
		}
		a.log().Warn("salvaging damaged table", "kept", len(body.Records), "error", perr)
	}
	slots, err := a.slotsFrom(body, variant)
	if err != nil {
		return nil, false, err
	}
	return slots, variant == format.VariantEncrypted, nil
}

// parseBody returns the parsed body, decrypting it first when needed. A
// non-nil body with an error is a partially parsed table.
func (a *Archive) parseBody(buf []byte, variant format.Variant, off int) (*format.Body, error) {
	if variant != format.VariantEncrypted {
		body, err := format.ParseBody(buf, off, variant.Typed())
		if body == nil {
			return nil, fmt.Errorf("klondike: open: %w", err)
		}
		return body, err
	}
	if a.password == "" {
		return nil, ErrPasswordRequired
	}
	sealed, err := format.ParseSealed(buf, off)
	if err != nil {
		return nil, fmt.Errorf("klondike: open: %w", err)
	}
	a.cfg.progress.Report(progress.Event{Stage: progress.StageDecrypting, BytesTotal: uint64(len(sealed))})
	plain, err := seal.Open(a.password, sealed)
	if err != nil {
		return nil, fmt.Errorf("klondike: open: %w", err)
	}
	body, err := format.ParseBody(plain, 0, true)
	if body == nil {
		return nil, fmt.Errorf("klondike: open: %w", err)
	}
	return body, err
}

// slotsFrom converts parsed records to slots. Blobs are copied out of the
// container buffer so it can be released.
func (a *Archive) slotsFrom(body *format.Body, variant format.Variant) ([]*slot, error) {
	slots := make([]*slot, 0, len(body.Records))
	seen := make(map[string]struct{}, len(body.Records))
	for i, r := range body.Records {
		blob, err := body.Block(i)
		if err == nil {
			err = checkRecord(r, seen)
		}
		if err != nil {
			if a.cfg.salvage {
				a.log().Warn("salvaging damaged table", "kept", len(slots), "error", err)
				break
			}
			return nil, fmt.Errorf("klondike: open: %w", err)
		}
		seen[r.Name] = struct{}{}

		typ := r.Type
		if !variant.Typed() || typ == "" {
			typ = classify.TypeOf(r.Name)
		}
		slots = append(slots, &slot{
			entry: Entry{
				Name:           r.Name,
				OriginalSize:   r.OriginalSize,
				CompressedSize: r.CompressedSize,
				Type:           typ,
				Technique:      engine.Technique(blob),
			},
			blob: bytes.Clone(blob),
		})
	}
	return slots, nil
}

func checkRecord(r format.Record, seen map[string]struct{}) error {
	if _, dup := seen[r.Name]; dup {
		return &format.Error{Reason: fmt.Sprintf("duplicate entry %q", r.Name)}
	}
	if err := validName(r.Name); err != nil {
		return &format.Error{Reason: err.Error()}
	}
	return nil
}

// IsFormatError reports whether err is a container format error.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrFormat)
}
