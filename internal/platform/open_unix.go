//go:build unix

package platform

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// OpenFileNoFollow opens name under root read-only. The final path element
// must not be a symbolic link.
//
// os.Root resolves links inside the root on its own, so O_NOFOLLOW alone is
// not enough. The file is checked with Lstat first and compared with the
// opened file afterwards, which catches a link swapped in between.
func OpenFileNoFollow(root *os.Root, name string) (*os.File, error) {
	before, err := root.Lstat(name)
	if err != nil {
		return nil, err
	}
	if before.Mode()&fs.ModeSymlink != 0 {
		return nil, ErrSymlink
	}
	f, err := root.OpenFile(name, os.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if errors.Is(err, syscall.ELOOP) {
		return nil, ErrSymlink
	}
	if err != nil {
		return nil, err
	}
	after, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !os.SameFile(before, after) {
		_ = f.Close()
		return nil, ErrSymlink
	}
	return f, nil
}
