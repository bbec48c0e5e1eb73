// Package platform opens input files without following symbolic links.
package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrSymlink is returned when the path names a symbolic link.
	ErrSymlink = errors.New("platform: symbolic link")

	// ErrNotRegular is returned when the path names a device, pipe or other
	// non-regular file.
	ErrNotRegular = errors.New("platform: not a regular file")
)

// ReadFile reads name under root into memory. Symbolic links and
// non-regular files are refused. Files larger than limit return tooLarge.
func ReadFile(root *os.Root, name string, limit int64, tooLarge error) ([]byte, error) {
	f, err := OpenFileNoFollow(root, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegular, name)
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes", tooLarge, name, info.Size())
	}
	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return buf, nil
}
