package klondike

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"unicode/utf8"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/klondike/codec"
	"github.com/meigma/klondike/engine"
	"github.com/meigma/klondike/internal/classify"
	"github.com/meigma/klondike/internal/pathutil"
	"github.com/meigma/klondike/internal/seal"
	"github.com/meigma/klondike/internal/sizing"
	"github.com/meigma/klondike/internal/spool"
)

// slot holds one entry and its stored blob, either in memory or spooled.
type slot struct {
	entry  Entry
	blob   []byte
	digest digest.Digest
}

// Archive is an ordered set of named, compressed entries.
//
// Insertion order defines the on-disk table and data order. Replacing an
// entry keeps its position.
type Archive struct {
	cfg      config
	engine   *engine.Engine
	slots    []*slot
	index    map[string]int
	state    State
	password string
	spool    *spool.Spool
	closed   bool
}

// New creates an empty Archive.
func New(opts ...Option) *Archive {
	cfg := config{
		spoolThreshold:  DefaultSpoolThreshold,
		memoryBudget:    DefaultMemoryBudget,
		skipCompression: DefaultSkipCompression(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.memoryBudget < 1 {
		cfg.memoryBudget = DefaultMemoryBudget
	}
	engineOpts := append([]engine.Option{
		engine.WithLogger(cfg.logger),
		engine.WithProgress(cfg.progress),
	}, cfg.engineOpts...)
	return &Archive{
		cfg:      cfg,
		engine:   engine.New(engineOpts...),
		index:    make(map[string]int),
		password: cfg.password,
	}
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.cfg.logger
}

func validName(name string) error {
	if name == "" || len(name) > math.MaxUint16 || !utf8.ValidString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Add compresses data and stores it under name, replacing any entry with
// the same name in place.
func (a *Archive) Add(name string, data []byte) (Entry, error) {
	return a.AddContext(context.Background(), name, data)
}

// AddContext is Add with a context that can cancel chunked encoding.
func (a *Archive) AddContext(ctx context.Context, name string, data []byte) (Entry, error) {
	if a.closed {
		return Entry{}, ErrClosed
	}
	s, err := a.encode(ctx, name, data)
	if err != nil {
		return Entry{}, err
	}
	if err := a.insert(s); err != nil {
		return Entry{}, err
	}
	e, _ := a.Entry(name)
	return e, nil
}

// encode builds a slot for data without touching the archive, so it may run
// concurrently.
func (a *Archive) encode(ctx context.Context, name string, data []byte) (*slot, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	size, err := sizing.ToUint32(len(data), ErrTooLarge)
	if err != nil {
		return nil, fmt.Errorf("klondike: add %q: %w", name, err)
	}

	var blob []byte
	if classify.ShouldSkip(name, data, a.cfg.skipCompression) {
		a.log().Debug("compression skipped", "name", name, "size", len(data))
		blob = engine.Stored(data)
	} else {
		blob, err = a.engine.Encode(ctx, name, data)
		if err != nil {
			return nil, fmt.Errorf("klondike: add %q: %w", name, err)
		}
	}
	stored, err := sizing.ToUint32(len(blob), ErrTooLarge)
	if err != nil {
		return nil, fmt.Errorf("klondike: add %q: %w", name, err)
	}

	s := &slot{
		entry: Entry{
			Name:           name,
			OriginalSize:   size,
			CompressedSize: stored,
			Type:           classify.TypeOf(name),
			Technique:      engine.Technique(blob),
		},
		blob: blob,
	}
	a.log().Debug("entry encoded",
		"name", name,
		"size", size,
		"stored", stored,
		"technique", s.entry.Technique.String())
	return s, nil
}

// insert stores s, replacing an entry of the same name in place.
func (a *Archive) insert(s *slot) error {
	if err := a.spoolSlot(s); err != nil {
		return err
	}
	if i, ok := a.index[s.entry.Name]; ok {
		a.release(a.slots[i])
		a.slots[i] = s
	} else {
		a.index[s.entry.Name] = len(a.slots)
		a.slots = append(a.slots, s)
	}
	a.state = StateModified
	return nil
}

func (a *Archive) spoolSlot(s *slot) error {
	if !a.cfg.spoolEnabled || len(s.blob) < a.cfg.spoolThreshold {
		return nil
	}
	if a.spool == nil {
		sp, err := spool.New(a.cfg.spoolDir)
		if err != nil {
			return fmt.Errorf("klondike: %w", err)
		}
		a.spool = sp
		a.log().Debug("spool created", "dir", sp.Dir())
	}
	d, err := a.spool.Put(s.blob)
	if err != nil {
		return fmt.Errorf("klondike: spool %q: %w", s.entry.Name, err)
	}
	s.digest = d
	s.blob = nil
	return nil
}

func (a *Archive) release(s *slot) {
	if s.digest == "" || a.spool == nil {
		return
	}
	if err := a.spool.Release(s.digest); err != nil {
		a.log().Warn("spool release failed", "name", s.entry.Name, "error", err)
	}
}

// stored returns the stored blob of s.
func (a *Archive) stored(s *slot) ([]byte, error) {
	if s.digest == "" {
		return s.blob, nil
	}
	if a.spool == nil {
		return nil, ErrClosed
	}
	return a.spool.ReadAll(s.digest)
}

func (a *Archive) openStored(s *slot) (io.ReadCloser, error) {
	if s.digest == "" {
		return io.NopCloser(bytes.NewReader(s.blob)), nil
	}
	if a.spool == nil {
		return nil, ErrClosed
	}
	return a.spool.Open(s.digest)
}

// Remove deletes the entry and any spooled data. It reports whether the
// entry existed.
func (a *Archive) Remove(name string) bool {
	i, ok := a.index[name]
	if !ok || a.closed {
		return false
	}
	a.release(a.slots[i])
	a.slots = slices.Delete(a.slots, i, i+1)
	delete(a.index, name)
	for j := i; j < len(a.slots); j++ {
		a.index[a.slots[j].entry.Name] = j
	}
	a.state = StateModified
	a.log().Debug("entry removed", "name", name)
	return true
}

// Entries returns the entries in table order with data offsets assigned.
func (a *Archive) Entries() []Entry {
	out := make([]Entry, len(a.slots))
	var off uint64
	for i, s := range a.slots {
		out[i] = s.entry
		out[i].DataOffset = clampOffset(off)
		off += uint64(s.entry.CompressedSize)
	}
	return out
}

// Entry returns the entry with the given name.
func (a *Archive) Entry(name string) (Entry, bool) {
	i, ok := a.index[name]
	if !ok {
		return Entry{}, false
	}
	var off uint64
	for _, s := range a.slots[:i] {
		off += uint64(s.entry.CompressedSize)
	}
	e := a.slots[i].entry
	e.DataOffset = clampOffset(off)
	return e, true
}

// clampOffset saturates a data offset at math.MaxUint32. Such an archive is
// too large to save.
func clampOffset(off uint64) uint32 {
	return uint32(min(off, math.MaxUint32)) //nolint:gosec // clamped
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.slots)
}

// List returns the immediate children of dir, in table order. Directories
// are returned with a trailing slash. Use "." or "" for the top level.
func (a *Archive) List(dir string) []string {
	if dir == "" {
		dir = "."
	}
	prefix := pathutil.DirPrefix(pathutil.Clean(dir))
	seen := make(map[string]bool)
	var out []string
	for _, s := range a.slots {
		name := s.entry.Name
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		child, isDir := pathutil.Child(name, prefix)
		if isDir {
			child += "/"
		}
		if !seen[child] {
			seen[child] = true
			out = append(out, child)
		}
	}
	return out
}

// State returns the lifecycle state.
func (a *Archive) State() State {
	return a.state
}

// Modified reports whether the archive has unsaved changes.
func (a *Archive) Modified() bool {
	return a.state == StateModified
}

// Stats summarizes the archive.
func (a *Archive) Stats() Stats {
	st := Stats{
		Entries:    len(a.slots),
		Techniques: make(map[codec.Technique]int),
	}
	for _, s := range a.slots {
		st.OriginalBytes += uint64(s.entry.OriginalSize)
		st.StoredBytes += uint64(s.entry.CompressedSize)
		st.Techniques[s.entry.Technique]++
	}
	st.SavedBytes = int64(st.OriginalBytes) - int64(st.StoredBytes) //nolint:gosec // bounded by u32 entries
	if st.OriginalBytes > 0 {
		st.Savings = float64(st.SavedBytes) / float64(st.OriginalBytes)
	}
	return st
}

// SetPassword enables encryption with password on the next save. On an
// encrypted archive it changes the password.
func (a *Archive) SetPassword(password string) error {
	if password == "" {
		return seal.ErrEmptyPassword
	}
	if password != a.password {
		a.password = password
		a.state = StateModified
	}
	return nil
}

// ClearPassword disables encryption on the next save.
func (a *Archive) ClearPassword() {
	if a.password != "" {
		a.password = ""
		a.state = StateModified
	}
}

// Encrypted reports whether the archive is saved encrypted.
func (a *Archive) Encrypted() bool {
	return a.password != ""
}

// Close releases spooled data. The Archive cannot be used afterwards.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.slots = nil
	clear(a.index)
	if a.spool == nil {
		return nil
	}
	err := a.spool.Close()
	a.spool = nil
	return err
}
