package klondike

import (
	"fmt"

	"github.com/meigma/klondike/codec"
)

// Entry describes one archived blob.
type Entry struct {
	// Name is the unique, slash-separated entry name.
	Name string

	// OriginalSize is the decoded size in bytes.
	OriginalSize uint32

	// CompressedSize is the stored size in bytes, technique byte included.
	CompressedSize uint32

	// DataOffset is the position of the stored blob relative to the start
	// of the data section, following the current entry order. It saturates
	// at math.MaxUint32 once the data section outgrows the format.
	DataOffset uint32

	// Type is the lower-cased extension of Name, or "file".
	Type string

	// Technique is the codec of the stored blob, or codec.TechniqueChunked.
	Technique codec.Technique
}

// Ratio returns CompressedSize/OriginalSize, or 1 for empty entries.
func (e Entry) Ratio() float64 {
	if e.OriginalSize == 0 {
		return 1
	}
	return float64(e.CompressedSize) / float64(e.OriginalSize)
}

// State is the lifecycle state of an Archive.
type State uint8

const (
	// StateEmpty is a new archive that has not been changed.
	StateEmpty State = iota

	// StateModified has changes that are not saved.
	StateModified

	// StateSaved matches the last saved file.
	StateSaved

	// StateLoading is reading a container.
	StateLoading

	// StateLoaded matches the container it was opened from.
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateModified:
		return "modified"
	case StateSaved:
		return "saved"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Stats summarizes an archive.
type Stats struct {
	Entries       int
	OriginalBytes uint64
	StoredBytes   uint64

	// SavedBytes is OriginalBytes - StoredBytes; negative when storage
	// overhead exceeds the savings.
	SavedBytes int64

	// Savings is SavedBytes/OriginalBytes, or 0 for an empty archive.
	Savings float64

	// Techniques counts entries per technique.
	Techniques map[codec.Technique]int
}
