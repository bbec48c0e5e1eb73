package klondike

import "github.com/meigma/klondike/internal/progress"

type (
	// ProgressEvent represents a progress update during add, save, open or
	// extraction.
	ProgressEvent = progress.Event

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = progress.Stage

	// ProgressFunc receives progress updates during operations.
	// Implementations must be safe for concurrent calls.
	ProgressFunc = progress.Func
)

// Progress stages.
const (
	StageEnumerating = progress.StageEnumerating
	StageCompressing = progress.StageCompressing
	StageWriting     = progress.StageWriting
	StageEncrypting  = progress.StageEncrypting
	StageReading     = progress.StageReading
	StageDecrypting  = progress.StageDecrypting
	StageExtracting  = progress.StageExtracting
)
