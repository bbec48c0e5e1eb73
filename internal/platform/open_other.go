//go:build !unix

package platform

import (
	"io/fs"
	"os"
)

// OpenFileNoFollow opens name under root read-only. The final path element
// must not be a symbolic link; the opened file must be the one Lstat saw.
func OpenFileNoFollow(root *os.Root, name string) (*os.File, error) {
	before, err := root.Lstat(name)
	if err != nil {
		return nil, err
	}
	if before.Mode()&fs.ModeSymlink != 0 {
		return nil, ErrSymlink
	}
	f, err := root.Open(name)
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
