// Package engine turns raw blobs into tagged, compressed blobs and back.
//
// A [Selector] races a size-dependent subset of the codecs in package codec
// and keeps the smallest output, prefixed with its one-byte technique id. It
// never fails: when no codec beats the input, the blob is stored Raw, so an
// encoded blob is at most one byte larger than its input.
//
// An [Engine] wraps a Selector and splits payloads above a threshold into
// chunks that are encoded in parallel:
//
//	"KCCH" | u32 chunk count | (u32 length | technique | codec output)*
//
// All integers are little-endian.
package engine
