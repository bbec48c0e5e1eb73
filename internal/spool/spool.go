// Package spool keeps large stored blobs on disk instead of in memory.
//
// Blobs are content-addressed by their sha256 digest and stored in a private
// temporary directory with sharded subdirectories. Identical blobs share one
// file and are reference counted. The directory is removed by Close.
package spool

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/klondike/internal/sizing"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
)

var (
	// ErrNotFound is returned for digests the spool does not hold.
	ErrNotFound = errors.New("spool: blob not found")

	// ErrDigestMismatch is returned when a spooled file no longer matches
	// its digest.
	ErrDigestMismatch = errors.New("spool: digest mismatch")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("spool: closed")
)

// Spool is a reference-counted, content-addressed blob store on disk.
// It is safe for concurrent use.
type Spool struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode

	mu     sync.Mutex
	refs   map[digest.Digest]int
	sizes  map[digest.Digest]int64
	bytes  int64
	closed bool
}

// Option configures a Spool.
type Option func(*Spool)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(s *Spool) {
		s.shardPrefixLen = n
	}
}

// WithDirPerm sets the permissions of created directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *Spool) {
		s.dirPerm = mode
	}
}

// New creates a spool in a fresh directory under parent. An empty parent
// uses the system temporary directory.
func New(parent string, opts ...Option) (*Spool, error) {
	s := &Spool{
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
		refs:           make(map[digest.Digest]int),
		sizes:          make(map[digest.Digest]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.shardPrefixLen < 0 {
		return nil, errors.New("spool: shard prefix length must be >= 0")
	}
	if parent != "" {
		if err := os.MkdirAll(parent, s.dirPerm); err != nil {
			return nil, fmt.Errorf("spool: %w", err)
		}
	}
	dir, err := os.MkdirTemp(parent, "klondike-spool-*")
	if err != nil {
		return nil, fmt.Errorf("spool: %w", err)
	}
	s.dir = dir
	return s, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// Put stores blob and returns its digest. Storing a blob that is already
// present only adds a reference.
func (s *Spool) Put(blob []byte) (digest.Digest, error) {
	d := digest.FromBytes(blob)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if s.refs[d] > 0 {
		s.refs[d]++
		return d, nil
	}

	path := s.path(d)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return "", fmt.Errorf("spool: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "blob-*")
	if err != nil {
		return "", fmt.Errorf("spool: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("spool: write %s: %w", d, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("spool: write %s: %w", d, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("spool: %w", err)
	}
	s.refs[d] = 1
	s.sizes[d] = int64(len(blob))
	s.bytes += int64(len(blob))
	return d, nil
}

// Open returns a reader for the blob with digest d.
func (s *Spool) Open(d digest.Digest) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.refs[d] == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, d)
	}
	f, err := os.Open(s.path(d)) //nolint:gosec // path is derived from a digest, not user input
	if err != nil {
		return nil, fmt.Errorf("spool: %w", err)
	}
	return f, nil
}

// ReadAll reads the blob with digest d and verifies it.
func (s *Spool) ReadAll(d digest.Digest) ([]byte, error) {
	rc, err := s.Open(d)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	size := s.Size(d)
	verifier := d.Verifier()
	blob, err := sizing.ReadAllWithLimit(io.TeeReader(rc, verifier), uint64(size), ErrDigestMismatch) //nolint:gosec // size >= 0
	if err != nil {
		return nil, fmt.Errorf("spool: read %s: %w", d, err)
	}
	if int64(len(blob)) != size || !verifier.Verified() {
		return nil, fmt.Errorf("%w: %s", ErrDigestMismatch, d)
	}
	return blob, nil
}

// Size returns the stored size of d, or zero if absent.
func (s *Spool) Size(d digest.Digest) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizes[d]
}

// Release drops one reference to d and deletes the file when none remain.
func (s *Spool) Release(d digest.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	switch s.refs[d] {
	case 0:
		return nil
	case 1:
		delete(s.refs, d)
		s.bytes -= s.sizes[d]
		delete(s.sizes, d)
		if err := os.Remove(s.path(d)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("spool: %w", err)
		}
		return nil
	default:
		s.refs[d]--
		return nil
	}
}

// Len returns the number of distinct blobs held.
func (s *Spool) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}

// SizeBytes returns the total size of distinct blobs held.
func (s *Spool) SizeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Close removes the spool directory and everything in it.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	clear(s.refs)
	clear(s.sizes)
	s.bytes = 0
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("spool: %w", err)
	}
	return nil
}

func (s *Spool) path(d digest.Digest) string {
	enc := d.Encoded()
	if s.shardPrefixLen <= 0 {
		return filepath.Join(s.dir, enc)
	}
	prefixLen := min(s.shardPrefixLen, len(enc))
	return filepath.Join(s.dir, enc[:prefixLen], enc)
}
