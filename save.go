package klondike

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/meigma/klondike/internal/format"
	"github.com/meigma/klondike/internal/progress"
	"github.com/meigma/klondike/internal/seal"
)

// Save writes the archive to path.
//
// Uses atomic writes (temp file + rename) so a failed save never leaves a
// partial file at path. Parent directories are created as needed.
func (a *Archive) Save(path string) error {
	if a.closed {
		return ErrClosed
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("klondike: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".klondike-*")
	if err != nil {
		return fmt.Errorf("klondike: save: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := a.WriteTo(tmp)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("klondike: save: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("klondike: save: %w", err)
	}

	a.state = StateSaved
	a.log().Info("archive saved", "path", path, "entries", len(a.slots), "bytes", n, "encrypted", a.Encrypted())
	return nil
}

// WriteTo writes the archive container to w. It does not change the
// archive state; use Save to persist and mark the archive saved.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	if a.closed {
		return 0, ErrClosed
	}
	records := make([]format.Record, len(a.slots))
	for i, s := range a.slots {
		records[i] = format.Record{
			Name:           s.entry.Name,
			OriginalSize:   s.entry.OriginalSize,
			CompressedSize: s.entry.CompressedSize,
			Type:           s.entry.Type,
		}
	}
	dataLen, err := format.Layout(records)
	if err != nil {
		return 0, fmt.Errorf("klondike: save: %w: %w", ErrTooLarge, err)
	}
	a.log().Debug("writing archive", "entries", len(records), "data_size", dataLen, "encrypted", a.Encrypted())

	if !a.Encrypted() {
		variant := format.VariantTyped
		if a.cfg.legacy {
			variant = format.VariantLegacy
		}
		hdr := format.Header(variant)
		n, err := w.Write(hdr)
		if err != nil {
			return int64(n), fmt.Errorf("klondike: save: %w", err)
		}
		m, err := format.WriteBody(w, records, variant.Typed(), a.blockFunc(len(records)))
		if err != nil {
			return int64(n) + m, fmt.Errorf("klondike: save: %w", err)
		}
		return int64(n) + m, nil
	}

	var body bytes.Buffer
	if _, err := format.WriteBody(&body, records, true, a.blockFunc(len(records))); err != nil {
		return 0, fmt.Errorf("klondike: save: %w", err)
	}
	a.cfg.progress.Report(progress.Event{
		Stage:      progress.StageEncrypting,
		BytesTotal: uint64(body.Len()),
	})
	sealed, err := seal.Seal(a.password, body.Bytes())
	clear(body.Bytes())
	if err != nil {
		return 0, fmt.Errorf("klondike: save: %w", err)
	}
	n, err := format.WriteSealed(w, sealed)
	if err != nil {
		return n, fmt.Errorf("klondike: save: %w", err)
	}
	return n, nil
}

// blockFunc opens stored blobs for the container writer and reports
// progress per entry.
func (a *Archive) blockFunc(total int) format.BlockFunc {
	return func(i int) (io.ReadCloser, error) {
		s := a.slots[i]
		a.cfg.progress.Report(progress.Event{
			Stage:        progress.StageWriting,
			Name:         s.entry.Name,
			BytesTotal:   uint64(s.entry.CompressedSize),
			EntriesDone:  i,
			EntriesTotal: total,
		})
		return a.openStored(s)
	}
}
