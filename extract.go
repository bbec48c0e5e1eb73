package klondike

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/meigma/klondike/internal/progress"
)

// Extract returns the decoded content of the named entry.
func (a *Archive) Extract(name string) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	i, ok := a.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return a.decode(a.slots[i])
}

func (a *Archive) decode(s *slot) ([]byte, error) {
	e := s.entry
	if e.CompressedSize == 0 && e.OriginalSize == 0 {
		return []byte{}, nil
	}
	blob, err := a.stored(s)
	if err != nil {
		return nil, &EntryError{Name: e.Name, Err: err}
	}
	data, err := a.engine.Decode(blob)
	if err != nil {
		return nil, &EntryError{Name: e.Name, Err: err}
	}
	if len(data) != int(e.OriginalSize) {
		return nil, &EntryError{
			Name: e.Name,
			Err:  fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(data), e.OriginalSize),
		}
	}
	return data, nil
}

// ExtractAll decodes every entry in table order and passes it to fn.
//
// Entries that fail to decode are skipped and reported together in an
// *ExtractError once all entries were visited. An error returned by fn
// stops the walk and is returned as is.
func (a *Archive) ExtractAll(fn func(Entry, []byte) error) error {
	if a.closed {
		return ErrClosed
	}
	var failed failures
	entries := a.Entries()
	for i, s := range a.slots {
		a.cfg.progress.Report(progress.Event{
			Stage:        progress.StageExtracting,
			Name:         s.entry.Name,
			BytesTotal:   uint64(s.entry.OriginalSize),
			EntriesDone:  i,
			EntriesTotal: len(entries),
		})
		data, err := a.decode(s)
		if err != nil {
			a.log().Warn("entry failed to decode", "name", s.entry.Name, "error", err)
			failed.add(s.entry.Name, err)
			continue
		}
		if err := fn(entries[i], data); err != nil {
			return err
		}
	}
	return failed.err()
}

// ExtractTo writes entries to files under dir, creating it if needed. With
// no names, every entry is written.
//
// Files are written to a temporary file and renamed into place. Names that
// would escape dir are rejected. Failures are collected in an *ExtractError
// and do not stop the remaining entries.
func (a *Archive) ExtractTo(dir string, names ...string) error {
	if a.closed {
		return ErrClosed
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("klondike: create directory: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return fmt.Errorf("klondike: open destination root %s: %w", dir, err)
	}
	defer root.Close()

	if len(names) == 0 {
		for _, s := range a.slots {
			names = append(names, s.entry.Name)
		}
	}

	var failed failures
	for i, name := range names {
		a.cfg.progress.Report(progress.Event{
			Stage:        progress.StageExtracting,
			Name:         name,
			EntriesDone:  i,
			EntriesTotal: len(names),
		})
		if err := a.extractFile(root, name); err != nil {
			a.log().Warn("entry not extracted", "name", name, "error", err)
			failed.add(name, err)
		}
	}
	return failed.err()
}

func (a *Archive) extractFile(root *os.Root, name string) error {
	if !fs.ValidPath(name) || name == "." {
		return &fs.PathError{Op: "extract", Path: name, Err: fs.ErrInvalid}
	}
	i, ok := a.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	data, err := a.decode(a.slots[i])
	if err != nil {
		return err
	}

	rel := filepath.FromSlash(name)
	if err := root.MkdirAll(filepath.Dir(rel), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, tmpRel, err := createTempFile(root, filepath.Dir(rel), ".klondike-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()            //nolint:errcheck // best-effort cleanup
		_ = root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := root.Rename(tmpRel, rel); err != nil {
		_ = root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", name, err)
	}
	return nil
}

func createTempFile(root *os.Root, dir, prefix string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		name, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		relPath := filepath.Join(dir, prefix+name)
		f, err := root.OpenFile(relPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, relPath, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
