package klondike

import (
	"log/slog"

	"github.com/meigma/klondike/engine"
	"github.com/meigma/klondike/internal/classify"
)

// SkipCompressionFunc returns true when an entry should be stored without
// running the codec engine. It is called once per entry and should be
// inexpensive.
type SkipCompressionFunc = classify.SkipFunc

// DefaultSkipCompression returns the predicates used when none are
// configured: known compressed extensions and compressed-format signatures.
func DefaultSkipCompression() []SkipCompressionFunc {
	return []SkipCompressionFunc{classify.SkipByExtension(), classify.SkipBySignature()}
}

const (
	// DefaultSpoolThreshold is the stored size from which blobs are spooled
	// to disk when a spool directory is configured.
	DefaultSpoolThreshold = 1 << 20

	// DefaultMemoryBudget bounds the bytes AddDir holds in flight.
	DefaultMemoryBudget = 256 << 20
)

// config holds Archive configuration.
type config struct {
	logger          *slog.Logger
	progress        ProgressFunc
	password        string
	spoolDir        string
	spoolEnabled    bool
	spoolThreshold  int
	skipCompression []SkipCompressionFunc
	salvage         bool
	legacy          bool
	engineOpts      []engine.Option
	workers         int
	memoryBudget    int64
}

// Option configures an Archive.
type Option func(*config)

// WithLogger sets the logger for archive operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithProgress sets a callback for progress updates.
func WithProgress(fn ProgressFunc) Option {
	return func(c *config) {
		c.progress = fn
	}
}

// WithPassword sets the password used to open an encrypted archive. The
// archive keeps it for later saves, which are encrypted while a password is
// set.
func WithPassword(password string) Option {
	return func(c *config) {
		c.password = password
	}
}

// WithSpoolDir enables spooling of large stored blobs to a private
// directory created under dir. An empty dir uses the system temporary
// directory.
func WithSpoolDir(dir string) Option {
	return func(c *config) {
		c.spoolDir = dir
		c.spoolEnabled = true
	}
}

// WithSpoolThreshold sets the stored size from which blobs are spooled.
// It has no effect unless WithSpoolDir is set.
func WithSpoolThreshold(n int) Option {
	return func(c *config) {
		c.spoolThreshold = n
	}
}

// WithSkipCompression replaces the predicates that decide to store an entry
// without compression. If any predicate returns true, the entry is stored Raw.
// Passing no predicates compresses everything.
func WithSkipCompression(fns ...SkipCompressionFunc) Option {
	return func(c *config) {
		c.skipCompression = append([]SkipCompressionFunc{}, fns...)
	}
}

// WithSalvage makes Open keep the valid prefix of a damaged table instead of
// failing. The damage is logged at warn level.
func WithSalvage(enabled bool) Option {
	return func(c *config) {
		c.salvage = enabled
	}
}

// WithLegacyFormat writes unencrypted archives in the older untyped layout,
// which has no format marker and no type tags.
func WithLegacyFormat(enabled bool) Option {
	return func(c *config) {
		c.legacy = enabled
	}
}

// WithEngineOptions configures the codec engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(c *config) {
		c.engineOpts = append(c.engineOpts, opts...)
	}
}

// WithWorkers sets the number of files AddDir encodes in parallel.
// Values < 0 force serial processing. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithMemoryBudget bounds the file bytes AddDir holds in flight.
// Values < 1 restore DefaultMemoryBudget.
func WithMemoryBudget(n int64) Option {
	return func(c *config) {
		c.memoryBudget = n
	}
}
