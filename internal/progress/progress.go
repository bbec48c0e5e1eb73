// Package progress defines the progress events shared by the engine and the
// archive manager.
package progress

// Event represents a progress update during add, save, open or extraction.
type Event struct {
	// Stage identifies the current phase of the operation.
	Stage Stage

	// Name is the entry currently being processed, if applicable.
	Name string

	// BytesDone is the number of bytes completed in the current operation.
	BytesDone uint64

	// BytesTotal is the total bytes for the current operation.
	// Zero indicates the total is unknown.
	BytesTotal uint64

	// ChunksDone is the number of chunks completed for a chunked entry.
	ChunksDone int

	// ChunksTotal is the number of chunks of a chunked entry, or zero.
	ChunksTotal int

	// EntriesDone is the number of entries completed.
	EntriesDone int

	// EntriesTotal is the total number of entries.
	// Zero indicates the total is unknown.
	EntriesTotal int
}

// Stage identifies the current phase of an operation.
type Stage uint8

// Progress stages.
const (
	// StageEnumerating indicates a directory tree is being walked.
	StageEnumerating Stage = iota

	// StageCompressing indicates an entry is being run through the engine.
	StageCompressing

	// StageWriting indicates the container is being written.
	StageWriting

	// StageEncrypting indicates the container body is being sealed.
	StageEncrypting

	// StageReading indicates the container is being read and parsed.
	StageReading

	// StageDecrypting indicates the container body is being opened.
	StageDecrypting

	// StageExtracting indicates entries are being decoded.
	StageExtracting
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageEnumerating:
		return "enumerating"
	case StageCompressing:
		return "compressing"
	case StageWriting:
		return "writing"
	case StageEncrypting:
		return "encrypting"
	case StageReading:
		return "reading"
	case StageDecrypting:
		return "decrypting"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// Func receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type Func func(Event)

// Report calls fn with ev when fn is non-nil.
func (fn Func) Report(ev Event) {
	if fn != nil {
		fn(ev)
	}
}
