// Package classify decides how an entry should be treated before it reaches
// the codec engine: its type tag, whether it is already compressed, and how
// random its bytes look.
package classify

import (
	"bytes"
	"math"
	"path"
	"strings"
)

// DefaultType is the type tag used for names without an extension.
const DefaultType = "file"

// SampleSize is the prefix length inspected by Entropy.
const SampleSize = 64 << 10

// SkipFunc returns true when an entry should be stored without compression.
// It is called once per entry and should be inexpensive.
type SkipFunc func(name string, data []byte) bool

// TypeOf returns the type tag for name: its lower-cased extension including
// the dot, or DefaultType when there is none.
func TypeOf(name string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(name, `\`, "/")))
	if ext == "" || ext == "." {
		return DefaultType
	}
	return ext
}

// SkipByExtension returns a SkipFunc matching known already-compressed
// extensions.
func SkipByExtension() SkipFunc {
	return func(name string, _ []byte) bool {
		_, ok := compressedExts[TypeOf(name)]
		return ok
	}
}

// SkipBySignature returns a SkipFunc matching content that starts with the
// magic bytes of a compressed format.
func SkipBySignature() SkipFunc {
	return func(_ string, data []byte) bool {
		return HasCompressedSignature(data)
	}
}

// ShouldSkip checks if any predicate returns true for the given entry.
func ShouldSkip(name string, data []byte, predicates []SkipFunc) bool {
	for _, fn := range predicates {
		if fn == nil {
			continue
		}
		if fn(name, data) {
			return true
		}
	}
	return false
}

// HasCompressedSignature reports whether data begins with a signature of a
// format that is already compressed.
func HasCompressedSignature(data []byte) bool {
	for _, sig := range compressedSignatures {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}

// Entropy returns the Shannon entropy in bits per byte of at most the first
// SampleSize bytes of data.
func Entropy(data []byte) float64 {
	if len(data) > SampleSize {
		data = data[:SampleSize]
	}
	if len(data) == 0 {
		return 0
	}
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	n := float64(len(data))
	var h float64
	for _, c := range freq {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// Alphabet returns the number of distinct byte values in data.
func Alphabet(data []byte) int {
	var seen [256]bool
	n := 0
	for _, b := range data {
		if !seen[b] {
			seen[b] = true
			n++
			if n == 256 {
				break
			}
		}
	}
	return n
}

var compressedSignatures = [][]byte{
	[]byte("\x89PNG\r\n\x1a\n"),
	{0xff, 0xd8, 0xff},
	[]byte("GIF87a"),
	[]byte("GIF89a"),
	[]byte("PK\x03\x04"),
	[]byte("PK\x05\x06"),
	[]byte("PK\x07\x08"),
	[]byte("Rar!\x1a\x07"),
	{0x1f, 0x8b},
	[]byte("BZh"),
	{0xfd, '7', 'z', 'X', 'Z', 0x00},
	{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c},
	{0x28, 0xb5, 0x2f, 0xfd},
	{0x04, 0x22, 0x4d, 0x18},
	[]byte("%PDF"),
	[]byte("ID3"),
	{0x1a, 0x45, 0xdf, 0xa3},
	[]byte("KLONDIKE"),
}

var compressedExts = map[string]struct{}{
	".7z":    {},
	".aac":   {},
	".apk":   {},
	".avi":   {},
	".avif":  {},
	".bmp":   {},
	".br":    {},
	".bz2":   {},
	".dll":   {},
	".dmg":   {},
	".exe":   {},
	".flac":  {},
	".flv":   {},
	".gif":   {},
	".gz":    {},
	".heic":  {},
	".ico":   {},
	".ipa":   {},
	".jpeg":  {},
	".jpg":   {},
	".kcl":   {},
	".m4v":   {},
	".mkv":   {},
	".mov":   {},
	".mp3":   {},
	".mp4":   {},
	".msi":   {},
	".ogg":   {},
	".opus":  {},
	".pdf":   {},
	".pkg":   {},
	".png":   {},
	".rar":   {},
	".tar":   {},
	".tgz":   {},
	".tiff":  {},
	".wav":   {},
	".webm":  {},
	".webp":  {},
	".wmv":   {},
	".woff":  {},
	".woff2": {},
	".xz":    {},
	".zip":   {},
	".zst":   {},
}
