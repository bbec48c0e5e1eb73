package klondike

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/meigma/klondike/codec"
	"github.com/meigma/klondike/internal/format"
	"github.com/meigma/klondike/internal/seal"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when an entry does not exist.
	ErrNotFound = errors.New("klondike: entry not found")

	// ErrInvalidName is returned for empty, non-UTF-8 or overlong entry names.
	ErrInvalidName = errors.New("klondike: invalid entry name")

	// ErrTooLarge is returned when an entry or archive exceeds the u32 limits
	// of the container format.
	ErrTooLarge = errors.New("klondike: too large")

	// ErrPasswordRequired is returned when opening an encrypted archive
	// without a password.
	ErrPasswordRequired = errors.New("klondike: password required")

	// ErrSizeMismatch is returned when an entry decodes to a different size
	// than its table record states.
	ErrSizeMismatch = errors.New("klondike: decoded size mismatch")

	// ErrClosed is returned by operations on a closed Archive.
	ErrClosed = errors.New("klondike: archive closed")
)

// Errors re-exported from the format, seal and codec packages.
var (
	// ErrFormat is wrapped by every FormatError.
	ErrFormat = format.ErrFormat

	// ErrAuth is returned when decryption fails, usually because the
	// password is wrong.
	ErrAuth = seal.ErrAuth

	// ErrCorrupt is returned when a stored blob cannot be decoded.
	ErrCorrupt = codec.ErrCorrupt

	// ErrUnknownTechnique is returned for blobs tagged with an unknown codec.
	ErrUnknownTechnique = codec.ErrUnknownTechnique
)

type (
	// FormatError describes a malformed container.
	FormatError = format.Error

	// CodecError describes a codec failure on one blob.
	CodecError = codec.Error
)

// EntryError records a failure on a single entry.
type EntryError struct {
	Name string
	Err  error
}

func (e *EntryError) Error() string {
	return "klondike: entry " + strconv.Quote(e.Name) + ": " + e.Err.Error()
}

func (e *EntryError) Unwrap() error { return e.Err }

// ExtractError collects the entries that failed during a multi-entry
// operation. The remaining entries were processed.
type ExtractError struct {
	Entries []*EntryError
}

func (e *ExtractError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "klondike: %d entries failed", len(e.Entries))
	for i, ee := range e.Entries {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Entries)-i)
			break
		}
		b.WriteString("; ")
		b.WriteString(strconv.Quote(ee.Name))
		b.WriteString(": ")
		b.WriteString(ee.Err.Error())
	}
	return b.String()
}

// Unwrap returns the per-entry errors.
func (e *ExtractError) Unwrap() []error {
	errs := make([]error, len(e.Entries))
	for i, ee := range e.Entries {
		errs[i] = ee
	}
	return errs
}

// Names returns the names of the failed entries.
func (e *ExtractError) Names() []string {
	names := make([]string, len(e.Entries))
	for i, ee := range e.Entries {
		names[i] = ee.Name
	}
	return names
}

// failures accumulates EntryErrors.
type failures []*EntryError

func (f *failures) add(name string, err error) {
	var ee *EntryError
	if errors.As(err, &ee) && ee.Name == name {
		*f = append(*f, ee)
		return
	}
	*f = append(*f, &EntryError{Name: name, Err: err})
}

func (f failures) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ExtractError{Entries: f}
}
